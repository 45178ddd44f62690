package workflow

import "sync"

// VisibleSource 提供当前可见记录 id
type VisibleSource interface {
	VisibleIDs() []string
}

// SelectionSet 批量操作的多选状态
type SelectionSet struct {
	mu          sync.Mutex
	table       *TransitionTable
	principal   Principal
	records     RecordReader
	visible     VisibleSource
	selected    map[string]struct{}
	unsubscribe func()
}

// NewSelectionSet 创建多选集合,记录集中消失的 id 会被自动移除
func NewSelectionSet(table *TransitionTable, principal Principal, records RecordReader, visible VisibleSource) *SelectionSet {
	s := &SelectionSet{
		table:     table,
		principal: principal,
		records:   records,
		visible:   visible,
		selected:  make(map[string]struct{}),
	}
	s.unsubscribe = records.Subscribe(func(uint64) { s.prune() })
	return s
}

// CanSelect 当前调用者在该记录上至少有一条可用转换时才可选
func (s *SelectionSet) CanSelect(rec Record) bool {
	return len(s.table.Allowed(rec, s.principal)) > 0
}

// Toggle 切换单条记录的选中状态,返回切换后是否选中
func (s *SelectionSet) Toggle(id string) (bool, error) {
	rec, ok := s.records.Get(id)
	if !ok {
		return false, ErrRecordNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, on := s.selected[id]; on {
		delete(s.selected, id)
		return false, nil
	}
	if !s.CanSelect(rec) {
		return false, NewValidationError("ids", "record "+id+" has no action available for the current user")
	}
	s.selected[id] = struct{}{}
	return true, nil
}

// SelectAllVisible 可见且可选的记录未全部选中时全部选中,否则全部取消
func (s *SelectionSet) SelectAllVisible() {
	candidates := s.selectableVisible()

	s.mu.Lock()
	defer s.mu.Unlock()
	all := true
	for _, id := range candidates {
		if _, on := s.selected[id]; !on {
			all = false
			break
		}
	}
	for _, id := range candidates {
		if all {
			delete(s.selected, id)
		} else {
			s.selected[id] = struct{}{}
		}
	}
}

// DeselectAll 取消所有可见记录的选中状态
func (s *SelectionSet) DeselectAll() {
	ids := s.visible.VisibleIDs()
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		delete(s.selected, id)
	}
}

// Clear 清空选择
func (s *SelectionSet) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.selected)
}

// Contains 是否选中
func (s *SelectionSet) Contains(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.selected[id]
	return ok
}

// Len 选中数量
func (s *SelectionSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.selected)
}

// IDs 按记录集顺序返回选中的 id
func (s *SelectionSet) IDs() []string {
	snapshot := s.records.Snapshot()
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.selected))
	for _, r := range snapshot {
		if _, ok := s.selected[r.ID]; ok {
			ids = append(ids, r.ID)
		}
	}
	return ids
}

// Close 取消订阅并清空选择
func (s *SelectionSet) Close() {
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
	s.Clear()
}

func (s *SelectionSet) selectableVisible() []string {
	var ids []string
	for _, id := range s.visible.VisibleIDs() {
		rec, ok := s.records.Get(id)
		if ok && s.CanSelect(rec) {
			ids = append(ids, id)
		}
	}
	return ids
}

func (s *SelectionSet) prune() {
	s.mu.Lock()
	ids := make([]string, 0, len(s.selected))
	for id := range s.selected {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	for _, id := range ids {
		if _, ok := s.records.Get(id); ok {
			continue
		}
		s.mu.Lock()
		delete(s.selected, id)
		s.mu.Unlock()
	}
}
