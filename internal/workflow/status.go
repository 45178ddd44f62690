package workflow

import "strings"

// Status 记录状态
type Status string

// 会议/活动状态
const (
	StatusScheduled Status = "Scheduled"
	StatusCompleted Status = "Completed"
	StatusCancelled Status = "Cancelled"
	StatusPostponed Status = "Postponed"
)

// 请假/出差单状态
const (
	StatusPending       Status = "pending"
	StatusApproved      Status = "approved"
	StatusRejected      Status = "rejected"
	StatusDone          Status = "completed"
	StatusVoided        Status = "cancelled"
	StatusForceApproved Status = "force_approved"
)

// Role 角色
type Role string

const (
	RoleAny               Role = "any"
	RoleDepartmentManager Role = "department_manager"
	RoleHrdManager        Role = "hrd_manager"
	RoleSuperAdmin        Role = "super_admin"
)

// Attendance 参与人出席状态,与记录状态相互独立
type Attendance string

const (
	AttendanceConfirmed Attendance = "Confirmed"
	AttendanceAttended  Attendance = "Attended"
	AttendanceAbsent    Attendance = "Absent"
	AttendanceDeclined  Attendance = "Declined"
)

// Valid 判断出席状态是否合法
func (a Attendance) Valid() bool {
	switch a {
	case AttendanceConfirmed, AttendanceAttended, AttendanceAbsent, AttendanceDeclined:
		return true
	}
	return false
}

// Principal 当前调用者的角色集合
type Principal struct {
	UserID             string   `json:"user_id"`
	Name               string   `json:"name,omitempty"`
	SuperAdmin         bool     `json:"is_super_admin"`
	HrdManager         bool     `json:"is_hrd_manager"`
	DepartmentManager  bool     `json:"is_department_manager"`
	ManagedDepartments []string `json:"managed_departments,omitempty"`
}

// Authenticated 是否为已认证用户
func (p Principal) Authenticated() bool {
	return p.UserID != ""
}

// Manages 判断是否管理指定部门(大小写不敏感)
func (p Principal) Manages(department string) bool {
	if !p.DepartmentManager || department == "" {
		return false
	}
	for _, d := range p.ManagedDepartments {
		if strings.EqualFold(d, department) {
			return true
		}
	}
	return false
}

// Satisfies 判断调用者对指定部门的记录是否具备该角色
func (p Principal) Satisfies(role Role, department string) bool {
	if !p.Authenticated() {
		return false
	}
	switch role {
	case RoleAny:
		return true
	case RoleSuperAdmin:
		return p.SuperAdmin
	case RoleHrdManager:
		return p.HrdManager
	case RoleDepartmentManager:
		return p.Manages(department)
	}
	return false
}

// Roles 返回调用者拥有的角色列表
func (p Principal) Roles() []Role {
	var roles []Role
	if p.SuperAdmin {
		roles = append(roles, RoleSuperAdmin)
	}
	if p.HrdManager {
		roles = append(roles, RoleHrdManager)
	}
	if p.DepartmentManager {
		roles = append(roles, RoleDepartmentManager)
	}
	return roles
}
