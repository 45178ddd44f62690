package workflow

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// StatusTabAll 不按状态过滤
const StatusTabAll = "all"

// DateLayout 日期过滤条件的格式
const DateLayout = "2006-01-02"

// DefaultDebounce 过滤条件变更的默认防抖时间
const DefaultDebounce = 300 * time.Millisecond

// MinDebounce 防抖时间下限
const MinDebounce = 250 * time.Millisecond

// Criteria 过滤条件
type Criteria struct {
	StatusTab  string `json:"status" form:"status"`
	SearchText string `json:"search" form:"search"`
	DateFrom   string `json:"from_date" form:"from_date"` // YYYY-MM-DD,包含当天
	DateTo     string `json:"to_date" form:"to_date"`     // YYYY-MM-DD,包含当天 23:59:59
}

// Validate 校验日期格式
func (c Criteria) Validate() error {
	verr := &ValidationError{}
	if c.DateFrom != "" {
		if _, err := time.Parse(DateLayout, c.DateFrom); err != nil {
			verr.Add("from_date", "from_date must be YYYY-MM-DD")
		}
	}
	if c.DateTo != "" {
		if _, err := time.Parse(DateLayout, c.DateTo); err != nil {
			verr.Add("to_date", "to_date must be YYYY-MM-DD")
		}
	}
	if verr.Empty() {
		return nil
	}
	return verr
}

// bounds 计算日期范围,无法解析的边界视为未设置
func (c Criteria) bounds(loc *time.Location) (from, to time.Time) {
	if c.DateFrom != "" {
		if d, err := time.ParseInLocation(DateLayout, c.DateFrom, loc); err == nil {
			from = d
		}
	}
	if c.DateTo != "" {
		if d, err := time.ParseInLocation(DateLayout, c.DateTo, loc); err == nil {
			to = d.AddDate(0, 0, 1).Add(-time.Nanosecond)
		}
	}
	return from, to
}

// Filter 计算可见记录: 状态、关键字(不区分大小写的子串)、开始时间范围
func Filter(records []Record, c Criteria, fields []string, loc *time.Location) []Record {
	if loc == nil {
		loc = time.Local
	}
	status := strings.TrimSpace(c.StatusTab)
	search := strings.ToLower(strings.TrimSpace(c.SearchText))
	from, to := c.bounds(loc)

	out := make([]Record, 0, len(records))
	for _, r := range records {
		if status != "" && status != StatusTabAll && !strings.EqualFold(string(r.Status), status) {
			continue
		}
		if search != "" && !matchesSearch(r, search, fields) {
			continue
		}
		if !from.IsZero() && r.Start.Before(from) {
			continue
		}
		if !to.IsZero() && r.Start.After(to) {
			continue
		}
		out = append(out, r)
	}
	return out
}

func matchesSearch(r Record, needle string, fields []string) bool {
	for _, f := range fields {
		if strings.Contains(strings.ToLower(r.Field(f)), needle) {
			return true
		}
	}
	return false
}

// FilterOptions 过滤引擎参数
type FilterOptions struct {
	Fields   []string
	Location *time.Location
	Debounce time.Duration
	// OnChange 每次重新计算后调用,在锁外执行
	OnChange func(visible []Record)
}

// FilterEngine 对记录集做防抖过滤
// 条件变更在静默期后只计算一次,记录集变更立即重算
type FilterEngine struct {
	mu          sync.Mutex
	source      RecordReader
	fields      []string
	loc         *time.Location
	delay       time.Duration
	onChange    func([]Record)
	criteria    Criteria
	visible     []Record
	timer       *time.Timer
	generation  uint64
	applied     uint64 // 已写入 visible 的记录集版本
	recomputes  int
	closed      bool
	unsubscribe func()
}

// NewFilterEngine 创建过滤引擎并立即计算一次
func NewFilterEngine(source RecordReader, opts FilterOptions) (*FilterEngine, error) {
	delay := opts.Debounce
	if delay == 0 {
		delay = DefaultDebounce
	}
	if delay < MinDebounce {
		return nil, fmt.Errorf("debounce must be at least %s, got %s", MinDebounce, delay)
	}
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}
	e := &FilterEngine{
		source:   source,
		fields:   append([]string(nil), opts.Fields...),
		loc:      loc,
		delay:    delay,
		onChange: opts.OnChange,
		criteria: Criteria{StatusTab: StatusTabAll},
	}
	e.recompute()
	e.unsubscribe = source.Subscribe(func(uint64) { e.recompute() })
	return e, nil
}

// SetStatusTab 切换状态标签
func (e *FilterEngine) SetStatusTab(tab string) {
	e.update(func(c *Criteria) { c.StatusTab = tab })
}

// SetSearchText 修改关键字
func (e *FilterEngine) SetSearchText(text string) {
	e.update(func(c *Criteria) { c.SearchText = text })
}

// SetDateRange 修改日期范围
func (e *FilterEngine) SetDateRange(from, to string) {
	e.update(func(c *Criteria) {
		c.DateFrom = from
		c.DateTo = to
	})
}

// SetCriteria 整体替换过滤条件
func (e *FilterEngine) SetCriteria(next Criteria) {
	e.update(func(c *Criteria) { *c = next })
}

// Criteria 当前过滤条件
func (e *FilterEngine) Criteria() Criteria {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.criteria
}

// update 修改条件并重新计时,定时器触发时使用最新的条件
func (e *FilterEngine) update(mutate func(*Criteria)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	mutate(&e.criteria)
	e.generation++
	gen := e.generation
	if e.timer != nil {
		e.timer.Stop()
	}
	e.timer = time.AfterFunc(e.delay, func() { e.fire(gen) })
}

func (e *FilterEngine) fire(gen uint64) {
	e.mu.Lock()
	if e.closed || gen != e.generation {
		e.mu.Unlock()
		return
	}
	e.timer = nil
	e.mu.Unlock()
	e.recompute()
}

// Flush 立即执行挂起的防抖计算
func (e *FilterEngine) Flush() {
	e.mu.Lock()
	if e.closed || e.timer == nil {
		e.mu.Unlock()
		return
	}
	e.timer.Stop()
	e.timer = nil
	e.generation++
	e.mu.Unlock()
	e.recompute()
}

func (e *FilterEngine) recompute() {
	records, version := e.source.VersionedSnapshot()

	e.mu.Lock()
	// 并发的重算可能先写入更新的快照,旧快照不得覆盖
	if e.closed || version < e.applied {
		e.mu.Unlock()
		return
	}
	e.applied = version
	e.visible = Filter(records, e.criteria, e.fields, e.loc)
	e.recomputes++
	visible := cloneRecords(e.visible)
	onChange := e.onChange
	e.mu.Unlock()

	if onChange != nil {
		onChange(visible)
	}
}

// Visible 当前可见记录
func (e *FilterEngine) Visible() []Record {
	e.mu.Lock()
	defer e.mu.Unlock()
	return cloneRecords(e.visible)
}

// VisibleIDs 当前可见记录 id
func (e *FilterEngine) VisibleIDs() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	ids := make([]string, len(e.visible))
	for i, r := range e.visible {
		ids[i] = r.ID
	}
	return ids
}

// Recomputations 重新计算的次数
func (e *FilterEngine) Recomputations() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.recomputes
}

// Close 停止防抖定时器并取消订阅
func (e *FilterEngine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	unsubscribe := e.unsubscribe
	e.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
}

func cloneRecords(records []Record) []Record {
	out := make([]Record, len(records))
	for i, r := range records {
		out[i] = r.Clone()
	}
	return out
}
