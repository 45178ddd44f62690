package workflow

import (
	"fmt"
	"os"
	"slices"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// 内置记录类型
const (
	KindMeetings     = "meetings"
	KindEvents       = "events"
	KindLeave        = "leave"
	KindTravelOrders = "travel_orders"
)

// Endpoints 远程接口路径模板,{kind} 和 {id} 会被替换
type Endpoints struct {
	List       string `yaml:"list"`
	Create     string `yaml:"create"`
	Update     string `yaml:"update"`
	Status     string `yaml:"status"`
	Reschedule string `yaml:"reschedule"`
	Bulk       string `yaml:"bulk"`
	Delete     string `yaml:"delete"`
	Export     string `yaml:"export"`
	Events     string `yaml:"events"`
}

// DefaultEndpoints 统一的接口约定
func DefaultEndpoints() Endpoints {
	return Endpoints{
		List:       "/api/v1/{kind}/list",
		Create:     "/api/v1/{kind}",
		Update:     "/api/v1/{kind}/{id}",
		Status:     "/api/v1/{kind}/{id}/status",
		Reschedule: "/api/v1/{kind}/{id}/reschedule",
		Bulk:       "/api/v1/{kind}/bulkUpdateStatus",
		Delete:     "/api/v1/{kind}/{id}",
		Export:     "/api/v1/{kind}/export",
		Events:     "/ws/{kind}",
	}
}

// Path 展开路径模板
func (e Endpoints) Path(template, kind, id string) string {
	return strings.NewReplacer("{kind}", kind, "{id}", id).Replace(template)
}

// KindConfig 一种记录类型的完整配置
type KindConfig struct {
	Name             string           `yaml:"name"`
	Label            string           `yaml:"label"`
	Statuses         []Status         `yaml:"statuses"`
	Initial          []Status         `yaml:"initial"` // 初始状态集合,仅在这些状态下允许删除
	SearchFields     []string         `yaml:"search_fields"`
	DepartmentScoped bool             `yaml:"department_scoped"`
	RequireEmployees bool             `yaml:"require_employees"` // 申报时需要指定员工,每个员工一条记录
	Endpoints        Endpoints        `yaml:"endpoints"`
	Rules            []TransitionRule `yaml:"transitions"`

	table *TransitionTable
}

// Table 返回转换表
func (k *KindConfig) Table() *TransitionTable {
	return k.table
}

// IsInitial 判断状态是否属于初始状态集合
func (k *KindConfig) IsInitial(s Status) bool {
	return slices.Contains(k.Initial, s)
}

// HasStatus 判断状态是否属于该类型
func (k *KindConfig) HasStatus(s Status) bool {
	return slices.Contains(k.Statuses, s)
}

// CanDelete 判断调用者能否删除该记录:
// 仅初始状态,且为创建人、所管部门的部门经理或超级管理员
func (k *KindConfig) CanDelete(rec Record, p Principal) bool {
	if !p.Authenticated() || !k.IsInitial(rec.Status) {
		return false
	}
	return p.SuperAdmin || rec.CreatedBy == p.UserID || p.Manages(rec.Department)
}

// compile 校验配置并生成转换表
func (k *KindConfig) compile() error {
	if k.Name == "" {
		return fmt.Errorf("kind name is required")
	}
	if len(k.Statuses) == 0 {
		return fmt.Errorf("kind %s: statuses are required", k.Name)
	}
	if len(k.Initial) == 0 {
		return fmt.Errorf("kind %s: initial statuses are required", k.Name)
	}
	for _, s := range k.Initial {
		if !k.HasStatus(s) {
			return fmt.Errorf("kind %s: initial status %q is not declared", k.Name, s)
		}
	}
	for i, r := range k.Rules {
		for _, from := range r.From {
			if !k.HasStatus(from) {
				return fmt.Errorf("kind %s: rule %d uses undeclared status %q", k.Name, i, from)
			}
		}
		if !k.HasStatus(r.To) {
			return fmt.Errorf("kind %s: rule %d targets undeclared status %q", k.Name, i, r.To)
		}
	}
	table, err := NewTransitionTable(k.Rules)
	if err != nil {
		return fmt.Errorf("kind %s: %w", k.Name, err)
	}
	k.table = table

	defaults := DefaultEndpoints()
	fillEndpoint(&k.Endpoints.List, defaults.List)
	fillEndpoint(&k.Endpoints.Create, defaults.Create)
	fillEndpoint(&k.Endpoints.Update, defaults.Update)
	fillEndpoint(&k.Endpoints.Status, defaults.Status)
	fillEndpoint(&k.Endpoints.Reschedule, defaults.Reschedule)
	fillEndpoint(&k.Endpoints.Bulk, defaults.Bulk)
	fillEndpoint(&k.Endpoints.Delete, defaults.Delete)
	fillEndpoint(&k.Endpoints.Export, defaults.Export)
	fillEndpoint(&k.Endpoints.Events, defaults.Events)
	if len(k.SearchFields) == 0 {
		k.SearchFields = []string{FieldTitle, FieldEmployeeName, FieldDepartment}
	}
	if k.Label == "" {
		k.Label = k.Name
	}
	return nil
}

func fillEndpoint(v *string, def string) {
	if *v == "" {
		*v = def
	}
}

// Registry 记录类型注册表
type Registry struct {
	kinds map[string]*KindConfig
}

// NewRegistry 校验并注册类型配置
func NewRegistry(kinds ...*KindConfig) (*Registry, error) {
	r := &Registry{kinds: make(map[string]*KindConfig, len(kinds))}
	for _, k := range kinds {
		if err := k.compile(); err != nil {
			return nil, err
		}
		if _, dup := r.kinds[k.Name]; dup {
			return nil, fmt.Errorf("duplicate kind %q", k.Name)
		}
		r.kinds[k.Name] = k
	}
	return r, nil
}

// Get 获取类型配置
func (r *Registry) Get(name string) (*KindConfig, bool) {
	k, ok := r.kinds[name]
	return k, ok
}

// Names 返回已注册的类型名(排序)
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.kinds))
	for n := range r.kinds {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// kindsFile 类型配置文件结构
type kindsFile struct {
	Kinds []*KindConfig `yaml:"kinds"`
}

// LoadRegistry 从 YAML 文件加载类型配置; path 为空时使用内置配置
func LoadRegistry(path string) (*Registry, error) {
	if path == "" {
		return DefaultRegistry(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read kinds file: %w", err)
	}
	return ParseRegistry(data)
}

// ParseRegistry 解析 YAML 类型配置
func ParseRegistry(data []byte) (*Registry, error) {
	var f kindsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse kinds file: %w", err)
	}
	if len(f.Kinds) == 0 {
		return nil, fmt.Errorf("kinds file declares no kinds")
	}
	return NewRegistry(f.Kinds...)
}

// DefaultRegistry 内置的四种记录类型
func DefaultRegistry() *Registry {
	r, err := NewRegistry(
		scheduleKind(KindMeetings, "Meetings", []string{FieldTitle, FieldDepartment, FieldLocation, FieldOrganizer}),
		scheduleKind(KindEvents, "Events", []string{FieldTitle, FieldDepartment, FieldLocation, FieldOrganizer}),
		requestKind(KindLeave, "Leave Requests", true, false),
		requestKind(KindTravelOrders, "Travel Orders", false, true),
	)
	if err != nil {
		panic(err)
	}
	return r
}

// scheduleKind 会议/活动类型
func scheduleKind(name, label string, fields []string) *KindConfig {
	return &KindConfig{
		Name:         name,
		Label:        label,
		Statuses:     []Status{StatusScheduled, StatusCompleted, StatusCancelled, StatusPostponed},
		Initial:      []Status{StatusScheduled},
		SearchFields: fields,
		Rules: []TransitionRule{
			{From: []Status{StatusScheduled, StatusPostponed}, To: StatusCompleted},
			{From: []Status{StatusScheduled, StatusPostponed}, To: StatusCancelled, Destructive: true},
			{From: []Status{StatusScheduled}, To: StatusPostponed},
			{From: []Status{StatusScheduled, StatusCancelled, StatusPostponed}, To: StatusScheduled, RequiresSchedule: true},
		},
	}
}

// requestKind 请假/出差单类型
func requestKind(name, label string, departmentScoped, cancelNeedsRemarks bool) *KindConfig {
	approvers := []Role{RoleHrdManager, RoleSuperAdmin}
	if departmentScoped {
		approvers = append([]Role{RoleDepartmentManager}, approvers...)
	}
	return &KindConfig{
		Name:             name,
		Label:            label,
		Statuses:         []Status{StatusPending, StatusApproved, StatusRejected, StatusDone, StatusVoided, StatusForceApproved},
		Initial:          []Status{StatusPending},
		SearchFields:     []string{FieldEmployeeName, FieldDepartment, FieldLocation, FieldPurpose},
		DepartmentScoped: departmentScoped,
		RequireEmployees: true,
		Rules: []TransitionRule{
			{From: []Status{StatusPending}, To: StatusApproved, Roles: approvers},
			{From: []Status{StatusPending}, To: StatusRejected, Roles: approvers, RequiresRemarks: true},
			{From: []Status{StatusPending}, To: StatusForceApproved, Roles: []Role{RoleSuperAdmin}, RequiresRemarks: true, Destructive: true},
			{From: []Status{StatusPending, StatusApproved}, To: StatusDone},
			{From: []Status{StatusPending, StatusApproved}, To: StatusVoided, RequiresRemarks: cancelNeedsRemarks, Destructive: true},
		},
	}
}
