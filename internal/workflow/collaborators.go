package workflow

import (
	"context"
	"time"
)

// StatusRequest 单条状态变更请求体
type StatusRequest struct {
	Status  Status `json:"status"`
	Remarks string `json:"remarks"`
}

// RescheduleRequest 改期请求体
type RescheduleRequest struct {
	Start   time.Time `json:"start"`
	End     time.Time `json:"end"`
	Remarks string    `json:"remarks,omitempty"`
}

// BulkRequest 批量状态变更请求体
type BulkRequest struct {
	IDs     []string `json:"ids"`
	Status  Status   `json:"status"`
	Remarks string   `json:"remarks"`
}

// BulkResult 批量状态变更结果
type BulkResult struct {
	Updated int      `json:"updated"`
	Records []Record `json:"records,omitempty"`
}

// Remote 记录服务,每个实例对应一种记录类型
type Remote interface {
	List(ctx context.Context) ([]Record, error)
	Create(ctx context.Context, draft Draft) ([]Record, error)
	Update(ctx context.Context, id string, draft Draft) (Record, error)
	UpdateStatus(ctx context.Context, id string, req StatusRequest) (Record, error)
	Reschedule(ctx context.Context, id string, req RescheduleRequest) (Record, error)
	BulkUpdateStatus(ctx context.Context, req BulkRequest) (BulkResult, error)
	Delete(ctx context.Context, id string) error
}

// Notification 一次操作的最终结果
type Notification struct {
	Kind    string              `json:"kind"`
	Action  string              `json:"action"`
	IDs     []string            `json:"ids,omitempty"`
	Success bool                `json:"success"`
	Error   ErrorKind           `json:"error,omitempty"`
	Message string              `json:"message"`
	Fields  map[string][]string `json:"fields,omitempty"`
}

// Notifier 结果通知,每次操作结束时恰好调用一次
type Notifier interface {
	Notify(n Notification)
}

// NotifyFunc 函数适配器
type NotifyFunc func(Notification)

// Notify implements Notifier
func (f NotifyFunc) Notify(n Notification) { f(n) }

// Confirmer 破坏性操作前的阻塞确认
type Confirmer interface {
	Confirm(ctx context.Context, prompt string) (bool, error)
}

// ConfirmFunc 函数适配器
type ConfirmFunc func(ctx context.Context, prompt string) (bool, error)

// Confirm implements Confirmer
func (f ConfirmFunc) Confirm(ctx context.Context, prompt string) (bool, error) {
	return f(ctx, prompt)
}

// Refresher 按需拉取最新记录
type Refresher interface {
	Refresh(ctx context.Context) error
}

// RefreshFunc 函数适配器
type RefreshFunc func(ctx context.Context) error

// Refresh implements Refresher
func (f RefreshFunc) Refresh(ctx context.Context) error { return f(ctx) }

type nopNotifier struct{}

func (nopNotifier) Notify(Notification) {}

// declineConfirmer 未配置确认方式时拒绝所有破坏性操作
type declineConfirmer struct{}

func (declineConfirmer) Confirm(context.Context, string) (bool, error) { return false, nil }

// 变更推送动作
const (
	ActionCreated = "created"
	ActionUpdated = "updated"
	ActionStatus  = "status"
	ActionDeleted = "deleted"
)

// ChangeEvent 记录变更推送
type ChangeEvent struct {
	Kind    string    `json:"kind"`
	Action  string    `json:"action"`
	IDs     []string  `json:"ids"`
	Status  Status    `json:"status,omitempty"`
	ActorID string    `json:"actor_id,omitempty"`
	At      time.Time `json:"at"`
}
