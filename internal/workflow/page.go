package workflow

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrModalOpen 已有弹窗打开
var ErrModalOpen = errors.New("another modal is already open")

// Modal 弹窗类型
type Modal string

const (
	ModalDetail     Modal = "detail"
	ModalEdit       Modal = "edit"
	ModalReschedule Modal = "reschedule"
	ModalBulk       Modal = "bulk"
	ModalCreate     Modal = "create"
)

// PageOptions 页面参数
type PageOptions struct {
	Kind            *KindConfig
	Remote          Remote
	Principal       Principal
	Notifier        Notifier
	Confirmer       Confirmer
	Logger          logrus.FieldLogger
	Location        *time.Location
	Debounce        time.Duration
	RefreshInterval time.Duration
	OnVisible       func(visible []Record)
}

// Page 一种记录类型的列表页容器,唯一持有记录集写权限
type Page struct {
	kind      *KindConfig
	remote    Remote
	log       logrus.FieldLogger
	store     *RecordStore
	filter    *FilterEngine
	selection *SelectionSet
	ctrl      *Controller
	scheduler *AutoRefreshScheduler

	mu     sync.Mutex
	modal  Modal
	closed bool
}

// NewPage 组装记录集、过滤、多选、控制器与自动刷新
func NewPage(opts PageOptions) (*Page, error) {
	if opts.Kind == nil {
		return nil, errors.New("page requires a kind config")
	}
	log := opts.Logger
	if log == nil {
		discard := logrus.New()
		discard.SetOutput(io.Discard)
		log = discard
	}
	log = log.WithField("kind", opts.Kind.Name)

	p := &Page{kind: opts.Kind, remote: opts.Remote, log: log, store: NewRecordStore()}

	filter, err := NewFilterEngine(p.store, FilterOptions{
		Fields:   opts.Kind.SearchFields,
		Location: opts.Location,
		Debounce: opts.Debounce,
		OnChange: opts.OnVisible,
	})
	if err != nil {
		return nil, err
	}
	p.filter = filter
	p.selection = NewSelectionSet(opts.Kind.Table(), opts.Principal, p.store, filter)
	p.scheduler = NewAutoRefreshScheduler(RefreshFunc(p.Refresh), SchedulerOptions{
		Interval: opts.RefreshInterval,
		Logger:   log,
	})

	ctrl, err := NewController(ControllerOptions{
		Kind:      opts.Kind,
		Store:     p.store,
		Selection: p.selection,
		Remote:    opts.Remote,
		Notifier:  opts.Notifier,
		Confirmer: opts.Confirmer,
		Principal: opts.Principal,
		Logger:    log,
		OnBusy:    p.operationBusy,
	})
	if err != nil {
		filter.Close()
		p.selection.Close()
		return nil, err
	}
	p.ctrl = ctrl
	return p, nil
}

// Load 首次加载并开始自动刷新
func (p *Page) Load(ctx context.Context) error {
	if err := p.Refresh(ctx); err != nil {
		return err
	}
	p.scheduler.Start()
	return nil
}

// Refresh 拉取完整快照
// 页面关闭、有弹窗或操作进行中,或拉取期间记录集已被本地写入时丢弃结果
func (p *Page) Refresh(ctx context.Context) error {
	version := p.store.Version()
	records, err := p.remote.List(ctx)
	if err != nil {
		return asRemoteFailure("load "+p.kind.Name, err)
	}

	// 持有 p.mu 直到写入完成,弹窗不会在检查与写入之间打开
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed || p.modal != "" || !p.scheduler.Accepting() {
		p.log.Debug("Discarding refresh result")
		return nil
	}
	replaced, current := p.store.ReplaceIfVersion(version, records)
	if !current {
		p.log.Debug("Discarding stale refresh result")
		return nil
	}
	if replaced {
		p.log.WithField("count", len(records)).Debug("Records refreshed")
	}
	return nil
}

// operationBusy 控制器有操作进行时挂起自动刷新
func (p *Page) operationBusy(busy bool) {
	if busy {
		p.scheduler.Suspend()
		return
	}
	p.scheduler.Resume()
}

// OpenModal 打开弹窗并挂起自动刷新,同时只允许一个弹窗
func (p *Page) OpenModal(m Modal) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	if p.modal != "" {
		return ErrModalOpen
	}
	p.modal = m
	p.scheduler.Suspend()
	return nil
}

// CloseModal 关闭弹窗并恢复自动刷新
func (p *Page) CloseModal() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.modal == "" {
		return
	}
	p.modal = ""
	p.scheduler.Resume()
}

// ActiveModal 当前打开的弹窗
func (p *Page) ActiveModal() Modal {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.modal
}

// Close 离开页面: 停止本地定时器,清空选择; 已发出的请求不取消,其结果不再写入
func (p *Page) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.modal = ""
	p.mu.Unlock()

	p.scheduler.Stop()
	p.filter.Close()
	p.ctrl.Close()
	p.selection.Close()
}

// Kind 记录类型配置
func (p *Page) Kind() *KindConfig { return p.kind }

// Records 记录集只读视图
func (p *Page) Records() RecordReader { return p.store }

// Filter 过滤引擎
func (p *Page) Filter() *FilterEngine { return p.filter }

// Selection 多选集合
func (p *Page) Selection() *SelectionSet { return p.selection }

// Controller 工作流控制器
func (p *Page) Controller() *Controller { return p.ctrl }

// Scheduler 自动刷新调度器
func (p *Page) Scheduler() *AutoRefreshScheduler { return p.scheduler }
