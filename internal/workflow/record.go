package workflow

import (
	"maps"
	"slices"
	"strings"
	"time"
)

// Participant 参与人(员工引用 + 出席状态)
type Participant struct {
	EmployeeID string     `json:"employee_id"`
	Name       string     `json:"name"`
	Attendance Attendance `json:"attendance_status"`
}

// Record 会议、活动、请假单、出差单的通用记录
type Record struct {
	ID           string            `json:"id"`
	Kind         string            `json:"kind"`
	Title        string            `json:"title"`
	EmployeeID   string            `json:"employee_id,omitempty"`
	EmployeeName string            `json:"employee_name,omitempty"`
	Department   string            `json:"department,omitempty"`
	Location     string            `json:"location,omitempty"`
	Organizer    string            `json:"organizer,omitempty"`
	Purpose      string            `json:"purpose,omitempty"`
	Status       Status            `json:"status"`
	Participants []Participant     `json:"participants,omitempty"`
	Start        time.Time         `json:"start"`
	End          time.Time         `json:"end"`
	Remarks      string            `json:"remarks,omitempty"`
	Attributes   map[string]string `json:"attributes,omitempty"`
	CreatedBy    string            `json:"created_by,omitempty"`
	ApprovedBy   string            `json:"approved_by,omitempty"`
	ApprovedAt   *time.Time        `json:"approved_at,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
}

// 可搜索字段名
const (
	FieldTitle        = "title"
	FieldEmployeeName = "employee_name"
	FieldDepartment   = "department"
	FieldLocation     = "location"
	FieldOrganizer    = "organizer"
	FieldPurpose      = "purpose"
)

// Field 按名称读取文本字段,未知名称从 Attributes 中查找
func (r Record) Field(name string) string {
	switch name {
	case FieldTitle:
		return r.Title
	case FieldEmployeeName:
		return r.EmployeeName
	case FieldDepartment:
		return r.Department
	case FieldLocation:
		return r.Location
	case FieldOrganizer:
		return r.Organizer
	case FieldPurpose:
		return r.Purpose
	}
	return r.Attributes[name]
}

// Clone 深拷贝
func (r Record) Clone() Record {
	c := r
	c.Participants = slices.Clone(r.Participants)
	c.Attributes = maps.Clone(r.Attributes)
	if r.ApprovedAt != nil {
		at := *r.ApprovedAt
		c.ApprovedAt = &at
	}
	return c
}

// Equal 结构相等比较,时间按时刻比较
func (r Record) Equal(o Record) bool {
	if r.ID != o.ID || r.Kind != o.Kind || r.Title != o.Title ||
		r.EmployeeID != o.EmployeeID || r.EmployeeName != o.EmployeeName ||
		r.Department != o.Department || r.Location != o.Location ||
		r.Organizer != o.Organizer || r.Purpose != o.Purpose ||
		r.Status != o.Status || r.Remarks != o.Remarks ||
		r.CreatedBy != o.CreatedBy || r.ApprovedBy != o.ApprovedBy {
		return false
	}
	if !r.Start.Equal(o.Start) || !r.End.Equal(o.End) || !r.CreatedAt.Equal(o.CreatedAt) {
		return false
	}
	if (r.ApprovedAt == nil) != (o.ApprovedAt == nil) {
		return false
	}
	if r.ApprovedAt != nil && !r.ApprovedAt.Equal(*o.ApprovedAt) {
		return false
	}
	if len(r.Attributes) != len(o.Attributes) || !maps.Equal(r.Attributes, o.Attributes) {
		return false
	}
	return slices.Equal(r.Participants, o.Participants)
}

// RecordsEqual 比较两个有序记录列表
func RecordsEqual(a, b []Record) bool {
	return slices.EqualFunc(a, b, Record.Equal)
}

// TransitionUpdate 一次已确认的状态转换
type TransitionUpdate struct {
	Status  Status
	Remarks string
	Start   *time.Time // 改期时的新时间
	End     *time.Time
	ActorID string
	At      time.Time
	// Initial 为该类型的初始状态集合,用于判断是否设置 ApprovedAt
	Initial []Status
}

// apply 将转换应用到记录副本上
func (u TransitionUpdate) apply(r *Record) {
	if r.ApprovedAt == nil && slices.Contains(u.Initial, r.Status) && u.Status != r.Status {
		at := u.At
		r.ApprovedAt = &at
		r.ApprovedBy = u.ActorID
	}
	r.Status = u.Status
	r.Remarks = u.Remarks
	if u.Start != nil {
		r.Start = *u.Start
	}
	if u.End != nil {
		r.End = *u.End
	}
}

// EmployeeRef 申报对象
type EmployeeRef struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// Draft 新建或编辑记录时提交的字段
// 多员工申报: Employees 与 EmployeeIDs 中的每个员工生成一条独立记录
type Draft struct {
	Title        string            `json:"title"`
	Employees    []EmployeeRef     `json:"employees,omitempty"`
	EmployeeIDs  []string          `json:"employee_ids,omitempty"`
	EmployeeName string            `json:"employee_name,omitempty"` // 只有一个员工时使用
	Department   string            `json:"department,omitempty"`
	Location     string            `json:"location,omitempty"`
	Organizer    string            `json:"organizer,omitempty"`
	Purpose      string            `json:"purpose,omitempty"`
	Participants []Participant     `json:"participants,omitempty"`
	Start        time.Time         `json:"start"`
	End          time.Time         `json:"end"`
	Remarks      string            `json:"remarks,omitempty"`
	Attributes   map[string]string `json:"attributes,omitempty"`
}

// Validate 提交前校验,返回的 ValidationError 包含全部字段错误
func (d Draft) Validate(requireEmployees bool) error {
	verr := &ValidationError{}
	if strings.TrimSpace(d.Title) == "" {
		verr.Add("title", "title is required")
	}
	for _, e := range d.Employees {
		if strings.TrimSpace(e.ID) == "" {
			verr.Add("employees", "employee id is required")
			break
		}
	}
	if requireEmployees && len(d.Filers()) == 0 {
		verr.Add("employee_ids", "at least one employee is required")
	}
	if d.Start.IsZero() {
		verr.Add("start", "start is required")
	}
	if d.End.IsZero() {
		verr.Add("end", "end is required")
	}
	if !d.Start.IsZero() && !d.End.IsZero() && d.End.Before(d.Start) {
		verr.Add("end", "end must not be before start")
	}
	for i, p := range d.Participants {
		if p.EmployeeID == "" {
			verr.Add("participants", "participant employee is required")
		}
		if p.Attendance != "" && !p.Attendance.Valid() {
			verr.Add("participants", "invalid attendance status for participant "+d.Participants[i].EmployeeID)
		}
	}
	if verr.Empty() {
		return nil
	}
	return verr
}

// Filers 按提交顺序去重后的申报员工,先 Employees 后 EmployeeIDs
// 只有一个员工且未带姓名时使用 EmployeeName
func (d Draft) Filers() []EmployeeRef {
	seen := make(map[string]struct{}, len(d.Employees)+len(d.EmployeeIDs))
	var out []EmployeeRef
	add := func(ref EmployeeRef) {
		ref.ID = strings.TrimSpace(ref.ID)
		ref.Name = strings.TrimSpace(ref.Name)
		if ref.ID == "" {
			return
		}
		if _, ok := seen[ref.ID]; ok {
			return
		}
		seen[ref.ID] = struct{}{}
		out = append(out, ref)
	}
	for _, e := range d.Employees {
		add(e)
	}
	for _, id := range d.EmployeeIDs {
		add(EmployeeRef{ID: id})
	}
	if len(out) == 1 && out[0].Name == "" {
		out[0].Name = strings.TrimSpace(d.EmployeeName)
	}
	return out
}
