package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/progenxxx/hris-sub006/internal/metrics"
	"github.com/progenxxx/hris-sub006/internal/model"
	"github.com/progenxxx/hris-sub006/internal/repository"
	"github.com/progenxxx/hris-sub006/internal/utils"
	"github.com/progenxxx/hris-sub006/internal/workflow"
)

// EventPublisher 记录变更推送
type EventPublisher interface {
	Publish(event workflow.ChangeEvent)
}

// RecordService 记录服务接口,服务端按同一张转换表校验所有状态变更
type RecordService interface {
	Kinds() *workflow.Registry
	List(ctx context.Context, kind string, criteria workflow.Criteria) ([]workflow.Record, error)
	Get(ctx context.Context, kind, id string) (workflow.Record, error)
	Create(ctx context.Context, kind string, p workflow.Principal, draft workflow.Draft) ([]workflow.Record, error)
	Update(ctx context.Context, kind, id string, p workflow.Principal, draft workflow.Draft) (workflow.Record, error)
	ChangeStatus(ctx context.Context, kind, id string, p workflow.Principal, req workflow.StatusRequest) (workflow.Record, error)
	Reschedule(ctx context.Context, kind, id string, p workflow.Principal, req workflow.RescheduleRequest) (workflow.Record, error)
	BulkUpdateStatus(ctx context.Context, kind string, p workflow.Principal, req workflow.BulkRequest) (workflow.BulkResult, error)
	Delete(ctx context.Context, kind, id string, p workflow.Principal) error
	History(ctx context.Context, kind, id string) ([]*model.StateHistoryModel, error)
}

// RecordServiceOptions 记录服务依赖
type RecordServiceOptions struct {
	Kinds       *workflow.Registry
	Records     repository.RecordRepository
	History     repository.StateHistoryRepository
	AuditLogSvc AuditLogService
	Publisher   EventPublisher
	Location    *time.Location
	Logger      logrus.FieldLogger
}

type recordService struct {
	kinds     *workflow.Registry
	records   repository.RecordRepository
	history   repository.StateHistoryRepository
	audit     AuditLogService
	publisher EventPublisher
	loc       *time.Location
	log       logrus.FieldLogger
	now       func() time.Time
	newID     func() string
}

// NewRecordService 创建记录服务
func NewRecordService(opts RecordServiceOptions) RecordService {
	s := &recordService{
		kinds:     opts.Kinds,
		records:   opts.Records,
		history:   opts.History,
		audit:     opts.AuditLogSvc,
		publisher: opts.Publisher,
		loc:       opts.Location,
		log:       opts.Logger,
		now:       time.Now,
		newID:     func() string { return uuid.New().String() },
	}
	if s.kinds == nil {
		s.kinds = workflow.DefaultRegistry()
	}
	if s.loc == nil {
		s.loc = time.Local
	}
	if s.log == nil {
		discard := logrus.New()
		discard.SetOutput(io.Discard)
		s.log = discard
	}
	return s
}

// Kinds 已注册的记录类型
func (s *recordService) Kinds() *workflow.Registry {
	return s.kinds
}

// List 按过滤条件查询,过滤语义与客户端 FilterEngine 一致
func (s *recordService) List(ctx context.Context, kind string, criteria workflow.Criteria) ([]workflow.Record, error) {
	kc, err := s.kind(kind)
	if err != nil {
		return nil, err
	}
	if err := criteria.Validate(); err != nil {
		return nil, fromValidation(err)
	}
	models, err := s.records.FindByFilter(ctx, &repository.RecordFilter{Kind: kc.Name})
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", kc.Name, err)
	}
	return workflow.Filter(model.ToRecords(models), criteria, kc.SearchFields, s.loc), nil
}

// Get 获取单条记录
func (s *recordService) Get(ctx context.Context, kind, id string) (workflow.Record, error) {
	kc, err := s.kind(kind)
	if err != nil {
		return workflow.Record{}, err
	}
	m, err := s.find(ctx, kc, id)
	if err != nil {
		return workflow.Record{}, err
	}
	return m.ToRecord(), nil
}

// Create 新建记录,每个员工生成一条独立记录并共享批次号
func (s *recordService) Create(ctx context.Context, kind string, p workflow.Principal, draft workflow.Draft) ([]workflow.Record, error) {
	kc, err := s.kind(kind)
	if err != nil {
		return nil, err
	}
	if !p.Authenticated() {
		return nil, ErrForbidden
	}
	if err := draft.Validate(kc.RequireEmployees); err != nil {
		return nil, fromValidation(err)
	}

	employees := draft.Filers()
	if len(employees) == 0 {
		employees = []workflow.EmployeeRef{{Name: strings.TrimSpace(draft.EmployeeName)}}
	}
	batchID := ""
	if len(employees) > 1 {
		batchID = s.newID()
	}

	now := s.now()
	models := make([]*model.RecordModel, 0, len(employees))
	for _, employee := range employees {
		m := &model.RecordModel{
			ID:         s.newID(),
			Kind:       kc.Name,
			BatchID:    batchID,
			EmployeeID: employee.ID,
			Status:     string(kc.Initial[0]),
			CreatedBy:  p.UserID,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		m.ApplyDraft(draft, s.newID)
		m.EmployeeName = employee.Name
		models = append(models, m)
	}
	if err := s.records.CreateBatch(ctx, models); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", kc.Name, err)
	}

	recs := model.ToRecords(models)
	ids := recordIDs(recs)
	metrics.RecordCreated(kc.Name, len(recs))
	for _, rec := range recs {
		s.recordAudit(ctx, p, AuditCreate, kc.Name, rec.ID, map[string]interface{}{
			"status": rec.Status, "batch_id": batchID, "employee_id": rec.EmployeeID,
		})
	}
	s.publish(kc.Name, workflow.ActionCreated, ids, "", p)
	return recs, nil
}

// Update 修改记录字段,状态保持不变
func (s *recordService) Update(ctx context.Context, kind, id string, p workflow.Principal, draft workflow.Draft) (workflow.Record, error) {
	kc, err := s.kind(kind)
	if err != nil {
		return workflow.Record{}, err
	}
	m, err := s.find(ctx, kc, id)
	if err != nil {
		return workflow.Record{}, err
	}
	if !canEdit(m.ToRecord(), p) {
		return workflow.Record{}, fmt.Errorf("%w: you are not allowed to edit this record", ErrForbidden)
	}
	if err := draft.Validate(false); err != nil {
		return workflow.Record{}, fromValidation(err)
	}

	m.ApplyDraft(draft, s.newID)
	m.UpdatedAt = s.now()
	if err := s.records.Update(ctx, m); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return workflow.Record{}, ErrNotFound
		}
		return workflow.Record{}, fmt.Errorf("failed to update %s %s: %w", kc.Name, id, err)
	}

	rec := m.ToRecord()
	s.recordAudit(ctx, p, AuditUpdate, kc.Name, id, map[string]interface{}{"title": rec.Title})
	s.publish(kc.Name, workflow.ActionUpdated, []string{id}, "", p)
	return rec, nil
}

// ChangeStatus 单条状态变更
func (s *recordService) ChangeStatus(ctx context.Context, kind, id string, p workflow.Principal, req workflow.StatusRequest) (workflow.Record, error) {
	kc, err := s.kind(kind)
	if err != nil {
		return workflow.Record{}, err
	}
	m, err := s.find(ctx, kc, id)
	if err != nil {
		return workflow.Record{}, err
	}
	rec := m.ToRecord()
	edge, err := s.checkEdge(kc, rec, req.Status, p)
	if err != nil {
		return workflow.Record{}, err
	}
	if edge.RequiresSchedule {
		return workflow.Record{}, NewFieldErrors("start", fmt.Sprintf("moving to %s requires a new schedule, use reschedule", req.Status))
	}
	remarks := strings.TrimSpace(utils.StripControl(req.Remarks))
	if edge.RequiresRemarks && remarks == "" {
		metrics.RecordTransitionRejected(kc.Name, "remarks")
		return workflow.Record{}, NewFieldErrors("remarks", fmt.Sprintf("remarks are required to move to %s", req.Status))
	}

	change := s.statusChange(kc, rec, req.Status, remarks, p)
	if err := s.records.UpdateStatus(ctx, change); err != nil {
		return workflow.Record{}, s.mapWriteError(kc, err)
	}
	return s.afterTransition(ctx, kc, p, AuditStatus, []repository.StatusChange{change}, id)
}

// Reschedule 改期,目标状态由转换表中需要新时间的边决定
func (s *recordService) Reschedule(ctx context.Context, kind, id string, p workflow.Principal, req workflow.RescheduleRequest) (workflow.Record, error) {
	kc, err := s.kind(kind)
	if err != nil {
		return workflow.Record{}, err
	}
	m, err := s.find(ctx, kc, id)
	if err != nil {
		return workflow.Record{}, err
	}
	rec := m.ToRecord()

	var edge workflow.Edge
	found := false
	for _, e := range kc.Table().Edges(rec.Status) {
		if e.RequiresSchedule {
			edge, found = e, true
			break
		}
	}
	if !found {
		metrics.RecordTransitionRejected(kc.Name, "illegal")
		return workflow.Record{}, NewFieldErrors("status", fmt.Sprintf("a %s record cannot be rescheduled", rec.Status))
	}
	if !edge.Permits(p, rec.Department) {
		metrics.RecordTransitionRejected(kc.Name, "forbidden")
		return workflow.Record{}, fmt.Errorf("%w: your role cannot reschedule this record", ErrForbidden)
	}

	fe := &FieldErrors{}
	if req.Start.IsZero() {
		fe.Add("start", "start is required")
	}
	if req.End.IsZero() {
		fe.Add("end", "end is required")
	}
	if !req.Start.IsZero() && !req.End.IsZero() && !req.End.After(req.Start) {
		fe.Add("end", "end must be after start")
	}
	remarks := strings.TrimSpace(utils.StripControl(req.Remarks))
	if edge.RequiresRemarks && remarks == "" {
		fe.Add("remarks", fmt.Sprintf("remarks are required to move to %s", edge.To))
	}
	if !fe.Empty() {
		return workflow.Record{}, fe
	}

	change := s.statusChange(kc, rec, edge.To, remarks, p)
	start, end := req.Start, req.End
	change.StartAt, change.EndAt = &start, &end
	if err := s.records.UpdateStatus(ctx, change); err != nil {
		return workflow.Record{}, s.mapWriteError(kc, err)
	}
	return s.afterTransition(ctx, kc, p, AuditStatus, []repository.StatusChange{change}, id)
}

// BulkUpdateStatus 批量状态变更,全部校验通过后在一个事务中写入
func (s *recordService) BulkUpdateStatus(ctx context.Context, kind string, p workflow.Principal, req workflow.BulkRequest) (workflow.BulkResult, error) {
	kc, err := s.kind(kind)
	if err != nil {
		return workflow.BulkResult{}, err
	}
	ids := dedupe(req.IDs)
	if len(ids) == 0 {
		return workflow.BulkResult{}, NewFieldErrors("ids", "select at least one record")
	}

	models, err := s.records.FindByIDs(ctx, kc.Name, ids)
	if err != nil {
		return workflow.BulkResult{}, fmt.Errorf("failed to load %s: %w", kc.Name, err)
	}
	byID := make(map[string]*model.RecordModel, len(models))
	for _, m := range models {
		byID[m.ID] = m
	}

	remarks := strings.TrimSpace(utils.StripControl(req.Remarks))
	fe := &FieldErrors{}
	needsRemarks := false
	changes := make([]repository.StatusChange, 0, len(ids))
	for _, id := range ids {
		m, ok := byID[id]
		if !ok {
			fe.Add("ids", fmt.Sprintf("%s: not found", id))
			continue
		}
		rec := m.ToRecord()
		edge, err := s.checkEdge(kc, rec, req.Status, p)
		if err != nil {
			var fieldErr *FieldErrors
			if errors.As(err, &fieldErr) {
				fe.Add("ids", fmt.Sprintf("%s: %s", id, strings.Join(fieldErr.Fields["status"], ", ")))
				continue
			}
			return workflow.BulkResult{}, err
		}
		if edge.RequiresSchedule {
			fe.Add("ids", fmt.Sprintf("%s: rescheduling is not a bulk action", id))
			continue
		}
		needsRemarks = needsRemarks || edge.RequiresRemarks
		changes = append(changes, s.statusChange(kc, rec, req.Status, remarks, p))
	}
	if needsRemarks && remarks == "" {
		fe.Add("remarks", fmt.Sprintf("remarks are required to move to %s", req.Status))
	}
	if !fe.Empty() {
		return workflow.BulkResult{}, fe
	}

	if err := s.records.BulkUpdateStatus(ctx, changes); err != nil {
		return workflow.BulkResult{}, s.mapWriteError(kc, err)
	}

	updated, err := s.records.FindByIDs(ctx, kc.Name, ids)
	if err != nil {
		return workflow.BulkResult{}, fmt.Errorf("failed to reload %s: %w", kc.Name, err)
	}
	for _, c := range changes {
		metrics.RecordTransition(kc.Name, c.To)
		s.recordAudit(ctx, p, AuditBulkStatus, kc.Name, c.ID, auditDetails(c))
	}
	s.publish(kc.Name, workflow.ActionStatus, ids, req.Status, p)

	recs := orderByIDs(model.ToRecords(updated), ids)
	return workflow.BulkResult{Updated: len(changes), Records: recs}, nil
}

// Delete 删除处于初始状态的记录
func (s *recordService) Delete(ctx context.Context, kind, id string, p workflow.Principal) error {
	kc, err := s.kind(kind)
	if err != nil {
		return err
	}
	m, err := s.find(ctx, kc, id)
	if err != nil {
		return err
	}
	rec := m.ToRecord()
	if !kc.IsInitial(rec.Status) {
		return NewFieldErrors("status", fmt.Sprintf("only %s records can be deleted", joinStatuses(kc.Initial)))
	}
	if !kc.CanDelete(rec, p) {
		return fmt.Errorf("%w: you are not allowed to delete this record", ErrForbidden)
	}
	if err := s.records.Delete(ctx, kc.Name, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to delete %s %s: %w", kc.Name, id, err)
	}

	s.recordAudit(ctx, p, AuditDelete, kc.Name, id, map[string]interface{}{"status": rec.Status, "title": rec.Title})
	s.publish(kc.Name, workflow.ActionDeleted, []string{id}, "", p)
	return nil
}

// History 记录的状态变更历史
func (s *recordService) History(ctx context.Context, kind, id string) ([]*model.StateHistoryModel, error) {
	kc, err := s.kind(kind)
	if err != nil {
		return nil, err
	}
	if _, err := s.find(ctx, kc, id); err != nil {
		return nil, err
	}
	return s.history.FindByRecordID(ctx, id)
}

func (s *recordService) kind(name string) (*workflow.KindConfig, error) {
	kc, ok := s.kinds.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: unknown record kind %q", ErrNotFound, name)
	}
	return kc, nil
}

func (s *recordService) find(ctx context.Context, kc *workflow.KindConfig, id string) (*model.RecordModel, error) {
	m, err := s.records.FindByID(ctx, kc.Name, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s %s", ErrNotFound, kc.Name, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load %s %s: %w", kc.Name, id, err)
	}
	return m, nil
}

// checkEdge 非法边返回字段错误,角色不足返回 ErrForbidden
func (s *recordService) checkEdge(kc *workflow.KindConfig, rec workflow.Record, to workflow.Status, p workflow.Principal) (workflow.Edge, error) {
	if !p.Authenticated() {
		return workflow.Edge{}, ErrForbidden
	}
	edge, ok := kc.Table().Lookup(rec.Status, to)
	if !ok {
		metrics.RecordTransitionRejected(kc.Name, "illegal")
		return workflow.Edge{}, NewFieldErrors("status", fmt.Sprintf("cannot move from %s to %s", rec.Status, to))
	}
	if !edge.Permits(p, rec.Department) {
		metrics.RecordTransitionRejected(kc.Name, "forbidden")
		return workflow.Edge{}, fmt.Errorf("%w: your role cannot move records to %s", ErrForbidden, to)
	}
	return edge, nil
}

func (s *recordService) statusChange(kc *workflow.KindConfig, rec workflow.Record, to workflow.Status, remarks string, p workflow.Principal) repository.StatusChange {
	now := s.now()
	change := repository.StatusChange{
		ID:      rec.ID,
		Kind:    kc.Name,
		From:    string(rec.Status),
		To:      string(to),
		Remarks: remarks,
		History: &model.StateHistoryModel{
			ID:        s.newID(),
			RecordID:  rec.ID,
			Kind:      kc.Name,
			FromState: string(rec.Status),
			ToState:   string(to),
			Remarks:   remarks,
			Operator:  p.UserID,
			Forced:    to == workflow.StatusForceApproved,
			CreatedAt: now,
		},
	}
	// 第一次离开初始状态时记录审批人
	if rec.ApprovedAt == nil && kc.IsInitial(rec.Status) && to != rec.Status {
		change.ApprovedAt = &now
		change.ApprovedBy = p.UserID
	}
	return change
}

func (s *recordService) afterTransition(ctx context.Context, kc *workflow.KindConfig, p workflow.Principal, action string, changes []repository.StatusChange, id string) (workflow.Record, error) {
	for _, c := range changes {
		metrics.RecordTransition(kc.Name, c.To)
		s.recordAudit(ctx, p, action, kc.Name, c.ID, auditDetails(c))
		s.publish(kc.Name, workflow.ActionStatus, []string{c.ID}, workflow.Status(c.To), p)
	}
	m, err := s.find(ctx, kc, id)
	if err != nil {
		return workflow.Record{}, err
	}
	return m.ToRecord(), nil
}

func (s *recordService) mapWriteError(kc *workflow.KindConfig, err error) error {
	if errors.Is(err, repository.ErrStaleStatus) {
		metrics.RecordTransitionRejected(kc.Name, "stale")
		return fmt.Errorf("%w (%v)", ErrConflict, err)
	}
	return fmt.Errorf("failed to update %s status: %w", kc.Name, err)
}

// recordAudit 审计失败只记录日志,不影响业务结果
func (s *recordService) recordAudit(ctx context.Context, p workflow.Principal, action, kind, id string, details map[string]interface{}) {
	if s.audit == nil {
		return
	}
	if err := s.audit.RecordAction(ctx, p.UserID, action, kind, id, details); err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{"kind": kind, "id": id, "action": action}).
			Warn("Failed to record audit log")
	}
}

func (s *recordService) publish(kind, action string, ids []string, status workflow.Status, p workflow.Principal) {
	if s.publisher == nil {
		return
	}
	s.publisher.Publish(workflow.ChangeEvent{
		Kind:    kind,
		Action:  action,
		IDs:     ids,
		Status:  status,
		ActorID: p.UserID,
		At:      s.now(),
	})
}

func auditDetails(c repository.StatusChange) map[string]interface{} {
	details := map[string]interface{}{
		"from":    c.From,
		"to":      c.To,
		"remarks": c.Remarks,
	}
	if c.StartAt != nil {
		details["start"] = c.StartAt
		details["end"] = c.EndAt
	}
	if c.History != nil && c.History.Forced {
		details["forced"] = true
		details["notation"] = "force approved by super admin"
	}
	return details
}

// canEdit 创建人、HRD、超级管理员或所属部门经理可以编辑
func canEdit(rec workflow.Record, p workflow.Principal) bool {
	if !p.Authenticated() {
		return false
	}
	return p.SuperAdmin || p.HrdManager || rec.CreatedBy == p.UserID || p.Manages(rec.Department)
}

// fromValidation 将引擎的 ValidationError 转换为 FieldErrors
func fromValidation(err error) error {
	var verr *workflow.ValidationError
	if errors.As(err, &verr) {
		return &FieldErrors{Fields: verr.Fields}
	}
	return err
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func recordIDs(recs []workflow.Record) []string {
	ids := make([]string, 0, len(recs))
	for _, r := range recs {
		ids = append(ids, r.ID)
	}
	return ids
}

func orderByIDs(recs []workflow.Record, ids []string) []workflow.Record {
	byID := make(map[string]workflow.Record, len(recs))
	for _, r := range recs {
		byID[r.ID] = r
	}
	out := make([]workflow.Record, 0, len(ids))
	for _, id := range ids {
		if r, ok := byID[id]; ok {
			out = append(out, r)
		}
	}
	return out
}

func joinStatuses(statuses []workflow.Status) string {
	parts := make([]string, 0, len(statuses))
	for _, st := range statuses {
		parts = append(parts, string(st))
	}
	return strings.Join(parts, "/")
}
