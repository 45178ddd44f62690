package workflow_test

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/progenxxx/hris-sub006/internal/workflow"
)

// fakeRemote 记录所有调用的远程服务
type fakeRemote struct {
	mu         sync.Mutex
	records    []workflow.Record
	calls      []string
	statuses   []workflow.StatusRequest
	reschedule []workflow.RescheduleRequest
	bulk       []workflow.BulkRequest
	deleted    []string
	created    []workflow.Draft
	err        error
	// gate 非空时 UpdateStatus 阻塞到关闭为止
	gate    chan struct{}
	entered chan struct{}
	// listGate 非空时 List 在取得快照后阻塞
	listGate    chan struct{}
	listEntered chan struct{}
}

func newFakeRemote(records ...workflow.Record) *fakeRemote {
	return &fakeRemote{records: records}
}

func (f *fakeRemote) record(call string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	return f.err
}

func (f *fakeRemote) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeRemote) setRecords(records ...workflow.Record) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = records
}

func (f *fakeRemote) List(ctx context.Context) ([]workflow.Record, error) {
	if err := f.record("list"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	out := make([]workflow.Record, len(f.records))
	for i, r := range f.records {
		out[i] = r.Clone()
	}
	gate, entered := f.listGate, f.listEntered
	f.mu.Unlock()

	if entered != nil {
		entered <- struct{}{}
	}
	if gate != nil {
		<-gate
	}
	return out, nil
}

func (f *fakeRemote) Create(ctx context.Context, draft workflow.Draft) ([]workflow.Record, error) {
	if err := f.record("create"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, draft)
	var out []workflow.Record
	for i, emp := range draft.Filers() {
		out = append(out, workflow.Record{
			ID:           fmt.Sprintf("new-%d", i+1),
			Title:        draft.Title,
			EmployeeID:   emp.ID,
			EmployeeName: emp.Name,
			Status:       workflow.StatusPending,
			Start:        draft.Start,
			End:          draft.End,
		})
	}
	return out, nil
}

func (f *fakeRemote) Update(ctx context.Context, id string, draft workflow.Draft) (workflow.Record, error) {
	if err := f.record("update:" + id); err != nil {
		return workflow.Record{}, err
	}
	return workflow.Record{ID: id, Title: draft.Title, Start: draft.Start, End: draft.End, Location: draft.Location}, nil
}

func (f *fakeRemote) UpdateStatus(ctx context.Context, id string, req workflow.StatusRequest) (workflow.Record, error) {
	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.gate != nil {
		<-f.gate
	}
	if err := f.record("status:" + id); err != nil {
		return workflow.Record{}, err
	}
	f.mu.Lock()
	f.statuses = append(f.statuses, req)
	f.mu.Unlock()
	return workflow.Record{ID: id, Status: req.Status}, nil
}

func (f *fakeRemote) Reschedule(ctx context.Context, id string, req workflow.RescheduleRequest) (workflow.Record, error) {
	if err := f.record("reschedule:" + id); err != nil {
		return workflow.Record{}, err
	}
	f.mu.Lock()
	f.reschedule = append(f.reschedule, req)
	f.mu.Unlock()
	return workflow.Record{ID: id, Status: workflow.StatusScheduled, Start: req.Start, End: req.End}, nil
}

func (f *fakeRemote) BulkUpdateStatus(ctx context.Context, req workflow.BulkRequest) (workflow.BulkResult, error) {
	if err := f.record("bulk"); err != nil {
		return workflow.BulkResult{}, err
	}
	f.mu.Lock()
	f.bulk = append(f.bulk, req)
	f.mu.Unlock()
	return workflow.BulkResult{Updated: len(req.IDs)}, nil
}

func (f *fakeRemote) Delete(ctx context.Context, id string) error {
	if err := f.record("delete:" + id); err != nil {
		return err
	}
	f.mu.Lock()
	f.deleted = append(f.deleted, id)
	f.mu.Unlock()
	return nil
}

// recordingNotifier 收集通知
type recordingNotifier struct {
	mu    sync.Mutex
	items []workflow.Notification
}

func (n *recordingNotifier) Notify(note workflow.Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.items = append(n.items, note)
}

func (n *recordingNotifier) All() []workflow.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]workflow.Notification(nil), n.items...)
}

func confirmWith(answer bool, prompts *[]string) workflow.Confirmer {
	return workflow.ConfirmFunc(func(ctx context.Context, prompt string) (bool, error) {
		if prompts != nil {
			*prompts = append(*prompts, prompt)
		}
		return answer, nil
	})
}

var (
	hrd        = workflow.Principal{UserID: "hrd-1", HrdManager: true}
	superAdmin = workflow.Principal{UserID: "admin-1", SuperAdmin: true}
	itManager  = workflow.Principal{UserID: "mgr-1", DepartmentManager: true, ManagedDepartments: []string{"IT"}}
	employee   = workflow.Principal{UserID: "emp-1"}
)

func mustKind(name string) *workflow.KindConfig {
	k, ok := workflow.DefaultRegistry().Get(name)
	if !ok {
		panic("unknown kind " + name)
	}
	return k
}

func day(s string) time.Time {
	t, err := time.ParseInLocation("2006-01-02T15:04", s, time.UTC)
	if err != nil {
		panic(err)
	}
	return t
}

func leave(id string, status workflow.Status, dept string) workflow.Record {
	return workflow.Record{
		ID:           id,
		Kind:         workflow.KindLeave,
		EmployeeID:   "emp-" + id,
		EmployeeName: "Employee " + id,
		Department:   dept,
		Status:       status,
		Start:        day("2024-06-10T08:00"),
		End:          day("2024-06-11T17:00"),
		CreatedBy:    "emp-" + id,
	}
}

func meeting(id string, status workflow.Status) workflow.Record {
	return workflow.Record{
		ID:         id,
		Kind:       workflow.KindMeetings,
		Title:      "Meeting " + id,
		Department: "IT",
		Location:   "Board Room",
		Organizer:  "Maria Santos",
		Status:     status,
		Start:      day("2024-06-10T09:00"),
		End:        day("2024-06-10T10:00"),
		CreatedBy:  "emp-1",
	}
}

type controllerFixture struct {
	store    *workflow.RecordStore
	remote   *fakeRemote
	notifier *recordingNotifier
	ctrl     *workflow.Controller
	prompts  []string
}

func newControllerFixture(kind string, principal workflow.Principal, confirm bool, records ...workflow.Record) *controllerFixture {
	f := &controllerFixture{
		store:    workflow.NewRecordStore(),
		remote:   newFakeRemote(records...),
		notifier: &recordingNotifier{},
	}
	f.store.ReplaceAll(records)
	ctrl, err := workflow.NewController(workflow.ControllerOptions{
		Kind:      mustKind(kind),
		Store:     f.store,
		Remote:    f.remote,
		Notifier:  f.notifier,
		Confirmer: confirmWith(confirm, &f.prompts),
		Principal: principal,
		Clock:     func() time.Time { return day("2024-06-01T12:00") },
	})
	if err != nil {
		panic(err)
	}
	f.ctrl = ctrl
	return f
}
