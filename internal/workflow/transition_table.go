package workflow

import "fmt"

// Edge 一条合法的状态转换
type Edge struct {
	To               Status `yaml:"to" json:"to"`
	RequiresRemarks  bool   `yaml:"requires_remarks" json:"requires_remarks"`
	Roles            []Role `yaml:"roles" json:"roles"`
	Destructive      bool   `yaml:"destructive" json:"destructive"`
	RequiresSchedule bool   `yaml:"requires_schedule" json:"requires_schedule"` // 改期: 需要新的开始/结束时间
}

// Permits 判断调用者是否可以在该记录上执行这条转换
func (e Edge) Permits(p Principal, department string) bool {
	for _, role := range e.Roles {
		if p.Satisfies(role, department) {
			return true
		}
	}
	return false
}

// TransitionRule 配置文件中的转换规则,一条规则可以覆盖多个起始状态
type TransitionRule struct {
	From             []Status `yaml:"from"`
	To               Status   `yaml:"to"`
	RequiresRemarks  bool     `yaml:"requires_remarks"`
	Roles            []Role   `yaml:"roles"`
	Destructive      bool     `yaml:"destructive"`
	RequiresSchedule bool     `yaml:"requires_schedule"`
}

// TransitionTable 状态转换表
type TransitionTable struct {
	edges map[Status][]Edge
}

// NewTransitionTable 根据规则构建转换表
func NewTransitionTable(rules []TransitionRule) (*TransitionTable, error) {
	t := &TransitionTable{edges: make(map[Status][]Edge)}
	for i, rule := range rules {
		if rule.To == "" {
			return nil, fmt.Errorf("rule %d: target status is required", i)
		}
		if len(rule.From) == 0 {
			return nil, fmt.Errorf("rule %d: at least one source status is required", i)
		}
		roles := rule.Roles
		if len(roles) == 0 {
			roles = []Role{RoleAny}
		}
		for _, from := range rule.From {
			if _, dup := t.Lookup(from, rule.To); dup {
				return nil, fmt.Errorf("rule %d: duplicate transition %s -> %s", i, from, rule.To)
			}
			t.edges[from] = append(t.edges[from], Edge{
				To:               rule.To,
				RequiresRemarks:  rule.RequiresRemarks,
				Roles:            append([]Role(nil), roles...),
				Destructive:      rule.Destructive,
				RequiresSchedule: rule.RequiresSchedule,
			})
		}
	}
	return t, nil
}

// MustTransitionTable 构建转换表,规则非法时 panic(仅用于内置表)
func MustTransitionTable(rules []TransitionRule) *TransitionTable {
	t, err := NewTransitionTable(rules)
	if err != nil {
		panic(err)
	}
	return t
}

// Edges 返回从指定状态出发的所有转换
func (t *TransitionTable) Edges(from Status) []Edge {
	return append([]Edge(nil), t.edges[from]...)
}

// Lookup 查找 from -> to 的转换
func (t *TransitionTable) Lookup(from, to Status) (Edge, bool) {
	for _, e := range t.edges[from] {
		if e.To == to {
			return e, true
		}
	}
	return Edge{}, false
}

// CanTransition 判断 from -> to 是否为合法边
func (t *TransitionTable) CanTransition(from, to Status) bool {
	_, ok := t.Lookup(from, to)
	return ok
}

// Allowed 返回调用者在该记录上可以执行的转换
func (t *TransitionTable) Allowed(rec Record, p Principal) []Edge {
	var allowed []Edge
	for _, e := range t.edges[rec.Status] {
		if e.Permits(p, rec.Department) {
			allowed = append(allowed, e)
		}
	}
	return allowed
}
