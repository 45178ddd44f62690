package workflow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// OperationState 单条记录上的操作状态
type OperationState string

const (
	StateIdle       OperationState = "idle"
	StateValidating OperationState = "validating"
	StateSubmitting OperationState = "submitting"
)

// Input 单条转换的附加输入
type Input struct {
	Remarks string
	Start   *time.Time // 改期时必填
	End     *time.Time
}

// ControllerOptions 控制器依赖
type ControllerOptions struct {
	Kind      *KindConfig
	Store     *RecordStore
	Selection *SelectionSet
	Remote    Remote
	Notifier  Notifier
	Confirmer Confirmer
	Principal Principal
	Logger    logrus.FieldLogger
	Clock     func() time.Time
	// OnStateChange 操作状态变化回调
	OnStateChange func(id string, state OperationState)
	// OnBusy 第一个操作开始时以 true 调用,最后一个操作结束时以 false 调用
	// 在控制器锁内执行,不得回调控制器
	OnBusy func(busy bool)
}

// Controller 驱动单条/批量状态转换、编辑与删除
// 远程调用成功后才写入记录集,同一条记录同时只允许一个操作
type Controller struct {
	kind      *KindConfig
	store     *RecordStore
	selection *SelectionSet
	remote    Remote
	notifier  Notifier
	confirmer Confirmer
	principal Principal
	log       logrus.FieldLogger
	clock     func() time.Time
	onState   func(string, OperationState)
	onBusy    func(bool)

	mu     sync.Mutex
	states map[string]OperationState
	active int
	closed bool
}

// NewController 创建控制器
func NewController(opts ControllerOptions) (*Controller, error) {
	if opts.Kind == nil || opts.Kind.Table() == nil {
		return nil, errors.New("controller requires a compiled kind config")
	}
	if opts.Store == nil {
		return nil, errors.New("controller requires a record store")
	}
	if opts.Remote == nil {
		return nil, errors.New("controller requires a remote")
	}
	c := &Controller{
		kind:      opts.Kind,
		store:     opts.Store,
		selection: opts.Selection,
		remote:    opts.Remote,
		notifier:  opts.Notifier,
		confirmer: opts.Confirmer,
		principal: opts.Principal,
		log:       opts.Logger,
		clock:     opts.Clock,
		onState:   opts.OnStateChange,
		onBusy:    opts.OnBusy,
		states:    make(map[string]OperationState),
	}
	if c.notifier == nil {
		c.notifier = nopNotifier{}
	}
	if c.confirmer == nil {
		c.confirmer = declineConfirmer{}
	}
	if c.log == nil {
		discard := logrus.New()
		discard.SetOutput(io.Discard)
		c.log = discard
	}
	if c.clock == nil {
		c.clock = time.Now
	}
	return c, nil
}

// Principal 当前调用者
func (c *Controller) Principal() Principal {
	return c.principal
}

// State 查询记录的操作状态
func (c *Controller) State(id string) OperationState {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.states[id]; ok {
		return s
	}
	return StateIdle
}

// Allowed 调用者在该记录上可执行的转换
func (c *Controller) Allowed(id string) ([]Edge, error) {
	rec, ok := c.store.Get(id)
	if !ok {
		return nil, ErrRecordNotFound
	}
	return c.kind.Table().Allowed(rec, c.principal), nil
}

// Transition 单条状态转换; 改期边需要 Input.Start/End
func (c *Controller) Transition(ctx context.Context, id string, to Status, in Input) (rec Record, err error) {
	action := "update " + c.kind.Name + " status"
	defer func() { c.report(action, []string{id}, err, fmt.Sprintf("%s %s is now %s", c.kind.Name, id, to)) }()

	if err = c.acquire(id); err != nil {
		return Record{}, err
	}
	defer c.release(id)

	current, ok := c.store.Get(id)
	if !ok {
		return Record{}, ErrRecordNotFound
	}
	edge, err := c.checkEdge(current, to)
	if err != nil {
		return Record{}, err
	}
	remarks := strings.TrimSpace(in.Remarks)
	if edge.RequiresRemarks && remarks == "" {
		return Record{}, NewValidationError("remarks", fmt.Sprintf("remarks are required to move to %s", to))
	}
	if edge.RequiresSchedule {
		if verr := validateSchedule(in.Start, in.End); verr != nil {
			return Record{}, verr
		}
	}
	if edge.Destructive {
		if err = c.confirm(ctx, fmt.Sprintf("Change %s %s from %s to %s?", c.kind.Name, id, current.Status, to)); err != nil {
			return Record{}, err
		}
	}

	c.setState(id, StateSubmitting)
	var remote Record
	if edge.RequiresSchedule {
		remote, err = c.remote.Reschedule(ctx, id, RescheduleRequest{Start: *in.Start, End: *in.End, Remarks: remarks})
	} else {
		remote, err = c.remote.UpdateStatus(ctx, id, StatusRequest{Status: to, Remarks: remarks})
	}
	if err != nil {
		return Record{}, asRemoteFailure(action, err)
	}
	if c.isClosed() {
		return Record{}, ErrClosed
	}

	update := c.update(to, remarks, in.Start, in.End, remote.ApprovedAt)
	return c.store.ApplyTransition(id, update)
}

// BulkTransition 批量转换: 全部校验通过才发出一次远程调用,结果整体写入
func (c *Controller) BulkTransition(ctx context.Context, ids []string, to Status, remarks string) (recs []Record, err error) {
	ids = dedupe(ids)
	action := "bulk update " + c.kind.Name + " status"
	defer func() {
		c.report(action, ids, err, fmt.Sprintf("%d %s moved to %s", len(ids), c.kind.Name, to))
	}()

	if len(ids) == 0 {
		return nil, NewValidationError("ids", "select at least one record")
	}
	if err = c.acquire(ids...); err != nil {
		return nil, err
	}
	defer c.release(ids...)

	remarks = strings.TrimSpace(remarks)
	verr := &ValidationError{}
	needsRemarks, destructive := false, false
	for _, id := range ids {
		rec, ok := c.store.Get(id)
		if !ok {
			return nil, ErrRecordNotFound
		}
		edge, eerr := c.checkEdge(rec, to)
		if eerr != nil {
			var ve *ValidationError
			if errors.As(eerr, &ve) {
				verr.Add("ids", fmt.Sprintf("%s: %s", id, strings.Join(ve.Fields["status"], ", ")))
				continue
			}
			return nil, eerr
		}
		if edge.RequiresSchedule {
			verr.Add("ids", fmt.Sprintf("%s: rescheduling is not a bulk action", id))
		}
		needsRemarks = needsRemarks || edge.RequiresRemarks
		destructive = destructive || edge.Destructive
	}
	if needsRemarks && remarks == "" {
		verr.Add("remarks", fmt.Sprintf("remarks are required to move to %s", to))
	}
	if !verr.Empty() {
		return nil, verr
	}
	if destructive {
		if err = c.confirm(ctx, fmt.Sprintf("Change %d %s to %s?", len(ids), c.kind.Name, to)); err != nil {
			return nil, err
		}
	}

	for _, id := range ids {
		c.setState(id, StateSubmitting)
	}
	result, err := c.remote.BulkUpdateStatus(ctx, BulkRequest{IDs: ids, Status: to, Remarks: remarks})
	if err != nil {
		return nil, asRemoteFailure(action, err)
	}
	if c.isClosed() {
		return nil, ErrClosed
	}
	if result.Updated != 0 && result.Updated != len(ids) {
		c.log.WithFields(logrus.Fields{"kind": c.kind.Name, "requested": len(ids), "updated": result.Updated}).
			Warn("Bulk update count differs from request")
	}
	return c.store.ApplyTransitions(ids, c.update(to, remarks, nil, nil, nil))
}

// BulkTransitionSelected 对当前选择执行批量转换,成功后清空选择
func (c *Controller) BulkTransitionSelected(ctx context.Context, to Status, remarks string) ([]Record, error) {
	if c.selection == nil {
		return nil, errors.New("controller has no selection set")
	}
	recs, err := c.BulkTransition(ctx, c.selection.IDs(), to, remarks)
	if err != nil {
		return nil, err
	}
	c.selection.Clear()
	return recs, nil
}

// Delete 删除处于初始状态的记录,始终需要确认
func (c *Controller) Delete(ctx context.Context, id string) (err error) {
	action := "delete " + c.kind.Name
	defer func() { c.report(action, []string{id}, err, fmt.Sprintf("%s %s deleted", c.kind.Name, id)) }()

	if err = c.acquire(id); err != nil {
		return err
	}
	defer c.release(id)

	rec, ok := c.store.Get(id)
	if !ok {
		return ErrRecordNotFound
	}
	if !c.kind.IsInitial(rec.Status) {
		return NewValidationError("status", fmt.Sprintf("only %s records can be deleted", joinStatuses(c.kind.Initial)))
	}
	if !c.kind.CanDelete(rec, c.principal) {
		return NewValidationError("status", "you are not allowed to delete this record")
	}
	if err = c.confirm(ctx, fmt.Sprintf("Delete %s %s? This cannot be undone.", c.kind.Name, id)); err != nil {
		return err
	}

	c.setState(id, StateSubmitting)
	if err = c.remote.Delete(ctx, id); err != nil {
		return asRemoteFailure(action, err)
	}
	if c.isClosed() {
		return ErrClosed
	}
	return c.store.Remove(id)
}

// Create 新建记录,多员工申报时服务端返回多条独立记录
func (c *Controller) Create(ctx context.Context, draft Draft) (recs []Record, err error) {
	action := "create " + c.kind.Name
	defer func() {
		var ids []string
		for _, r := range recs {
			ids = append(ids, r.ID)
		}
		c.report(action, ids, err, fmt.Sprintf("%d %s created", len(recs), c.kind.Name))
	}()

	if err = draft.Validate(c.kind.RequireEmployees); err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.beginLocked()
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.endLocked()
		c.mu.Unlock()
	}()

	recs, err = c.remote.Create(ctx, draft)
	if err != nil {
		return nil, asRemoteFailure(action, err)
	}
	if c.isClosed() {
		return nil, ErrClosed
	}
	c.store.Upsert(recs...)
	return recs, nil
}

// Update 编辑记录字段,不改变状态
func (c *Controller) Update(ctx context.Context, id string, draft Draft) (rec Record, err error) {
	action := "update " + c.kind.Name
	defer func() { c.report(action, []string{id}, err, fmt.Sprintf("%s %s updated", c.kind.Name, id)) }()

	if err = c.acquire(id); err != nil {
		return Record{}, err
	}
	defer c.release(id)

	current, ok := c.store.Get(id)
	if !ok {
		return Record{}, ErrRecordNotFound
	}
	if err = draft.Validate(false); err != nil {
		return Record{}, err
	}

	c.setState(id, StateSubmitting)
	rec, err = c.remote.Update(ctx, id, draft)
	if err != nil {
		return Record{}, asRemoteFailure(action, err)
	}
	if c.isClosed() {
		return Record{}, ErrClosed
	}
	rec.ID = id
	rec.Status = current.Status
	c.store.Upsert(rec)
	return rec, nil
}

// Close 之后迟到的远程结果不再写入记录集
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *Controller) checkEdge(rec Record, to Status) (Edge, error) {
	edge, ok := c.kind.Table().Lookup(rec.Status, to)
	if !ok {
		return Edge{}, NewValidationError("status", fmt.Sprintf("cannot move from %s to %s", rec.Status, to))
	}
	if !edge.Permits(c.principal, rec.Department) {
		return Edge{}, NewValidationError("status", fmt.Sprintf("your role cannot move records to %s", to))
	}
	return edge, nil
}

func (c *Controller) update(to Status, remarks string, start, end, approvedAt *time.Time) TransitionUpdate {
	at := c.clock()
	if approvedAt != nil {
		at = *approvedAt
	}
	return TransitionUpdate{
		Status:  to,
		Remarks: remarks,
		Start:   start,
		End:     end,
		ActorID: c.principal.UserID,
		At:      at,
		Initial: c.kind.Initial,
	}
}

func (c *Controller) confirm(ctx context.Context, prompt string) error {
	ok, err := c.confirmer.Confirm(ctx, prompt)
	if err != nil {
		return fmt.Errorf("confirmation failed: %w", err)
	}
	if !ok {
		return ErrDeclined
	}
	return nil
}

// acquire 原子地占用所有 id,任一已被占用时全部失败
func (c *Controller) acquire(ids ...string) error {
	c.mu.Lock()
	for _, id := range ids {
		if _, busy := c.states[id]; busy {
			c.mu.Unlock()
			return ErrAlreadyProcessing
		}
	}
	for _, id := range ids {
		c.states[id] = StateValidating
	}
	c.beginLocked()
	c.mu.Unlock()

	for _, id := range ids {
		c.emit(id, StateValidating)
	}
	return nil
}

func (c *Controller) release(ids ...string) {
	c.mu.Lock()
	for _, id := range ids {
		delete(c.states, id)
	}
	c.endLocked()
	c.mu.Unlock()

	for _, id := range ids {
		c.emit(id, StateIdle)
	}
}

// Busy 是否有操作正在进行
func (c *Controller) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active > 0
}

func (c *Controller) beginLocked() {
	c.active++
	if c.active == 1 && c.onBusy != nil {
		c.onBusy(true)
	}
}

func (c *Controller) endLocked() {
	c.active--
	if c.active == 0 && c.onBusy != nil {
		c.onBusy(false)
	}
}

func (c *Controller) setState(id string, s OperationState) {
	c.mu.Lock()
	c.states[id] = s
	c.mu.Unlock()
	c.emit(id, s)
}

func (c *Controller) emit(id string, s OperationState) {
	if c.onState != nil {
		c.onState(id, s)
	}
}

func (c *Controller) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// report 每次操作结束时通知一次
func (c *Controller) report(action string, ids []string, err error, success string) {
	n := Notification{Kind: c.kind.Name, Action: action, IDs: ids}
	if err == nil {
		n.Success = true
		n.Message = success
		c.notifier.Notify(n)
		return
	}

	n.Error = Classify(err)
	n.Message = err.Error()
	var verr *ValidationError
	var rerr *RemoteError
	switch {
	case errors.As(err, &verr):
		n.Fields = verr.Fields
	case errors.As(err, &rerr):
		n.Message = rerr.Message
		n.Fields = rerr.Fields
	case n.Error == KindAlreadyProcessing:
		n.Message = "this record is already being processed"
	}

	entry := c.log.WithFields(logrus.Fields{"kind": c.kind.Name, "action": action, "ids": ids, "error_kind": n.Error})
	switch n.Error {
	case KindNetworkFailure, KindRemoteRejected, KindRecordNotFound:
		entry.WithError(err).Warn("Workflow operation failed")
	default:
		entry.Debug(n.Message)
	}
	c.notifier.Notify(n)
}

func validateSchedule(start, end *time.Time) error {
	verr := &ValidationError{}
	if start == nil || start.IsZero() {
		verr.Add("start", "start is required")
	}
	if end == nil || end.IsZero() {
		verr.Add("end", "end is required")
	}
	if verr.Empty() && !end.After(*start) {
		verr.Add("end", "end must be after start")
	}
	if verr.Empty() {
		return nil
	}
	return verr
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func joinStatuses(statuses []Status) string {
	parts := make([]string, len(statuses))
	for i, s := range statuses {
		parts[i] = string(s)
	}
	return strings.Join(parts, "/")
}
