package rbac

import (
	"fmt"
	"sort"
	"time"
)

// Branch partitions roles and resources on either side of the wall.
type Branch uint8

const (
	BranchNone Branch = iota
	BranchAcademic
	BranchFinancial
	BranchAdministrative
	// BranchCross marks roles allowed on both sides of the wall.
	BranchCross
)

var branchNames = [...]string{"", "academic", "financial", "administrative", "cross"}

func (b Branch) String() string {
	if int(b) < len(branchNames) {
		return branchNames[b]
	}
	return fmt.Sprintf("branch(%d)", b)
}

func (b Branch) MarshalText() ([]byte, error) { return []byte(b.String()), nil }

// Role is the single role held by a principal.
type Role uint8

const (
	RoleUnknown Role = iota
	RoleProprietaire
	RoleAdminSysteme
	RoleDirecteur
	RoleComptable
	RoleCaissier
	RoleDirecteurAcademique
	RoleSecretaire
	RoleEnseignant
	RoleSurveillant
	RoleParent
)

type roleInfo struct {
	name    string
	branch  Branch
	aliases []string
}

var roleTable = [...]roleInfo{
	RoleUnknown:             {},
	RoleProprietaire:        {name: "proprietaire", branch: BranchCross, aliases: []string{"owner"}},
	RoleAdminSysteme:        {name: "admin_systeme", branch: BranchCross, aliases: []string{"system_admin", "admin"}},
	RoleDirecteur:           {name: "directeur", branch: BranchFinancial, aliases: []string{"director"}},
	RoleComptable:           {name: "comptable", branch: BranchFinancial, aliases: []string{"accountant"}},
	RoleCaissier:            {name: "caissier", branch: BranchFinancial, aliases: []string{"cashier"}},
	RoleDirecteurAcademique: {name: "directeur_academique", branch: BranchAcademic, aliases: []string{"academic_director"}},
	RoleSecretaire:          {name: "secretaire", branch: BranchAcademic, aliases: []string{"secretary"}},
	RoleEnseignant:          {name: "enseignant", branch: BranchAcademic, aliases: []string{"teacher"}},
	RoleSurveillant:         {name: "surveillant", branch: BranchAcademic, aliases: []string{"supervisor"}},
	RoleParent:              {name: "parent", branch: BranchAcademic, aliases: []string{"guardian"}},
}

// Roles returns every known role in declaration order.
func Roles() []Role {
	out := make([]Role, 0, len(roleTable)-1)
	for r := RoleProprietaire; int(r) < len(roleTable); r++ {
		out = append(out, r)
	}
	return out
}

// Valid reports whether r is a member of the closed role set.
func (r Role) Valid() bool { return r > RoleUnknown && int(r) < len(roleTable) }

func (r Role) String() string {
	if r.Valid() {
		return roleTable[r].name
	}
	return fmt.Sprintf("role(%d)", r)
}

// Branch reports which side of the wall the role sits on.
func (r Role) Branch() Branch {
	if r.Valid() {
		return roleTable[r].branch
	}
	return BranchNone
}

// CrossesWall reports whether the role may see both academic and financial data.
func (r Role) CrossesWall() bool { return r.Branch() == BranchCross }

func (r Role) MarshalText() ([]byte, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("%w: unknown role %d", ErrInvalidRequest, r)
	}
	return []byte(r.String()), nil
}

func (r *Role) UnmarshalText(text []byte) error {
	parsed, err := ParseRole(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// Resource identifies a protected class of domain objects.
type Resource uint8

const (
	ResourceUnknown Resource = iota
	// academic
	ResourceStudents
	ResourceEnrollments
	ResourceClasses
	ResourceSubjects
	ResourceGrades
	ResourceReportCards
	ResourceAttendance
	ResourceTimetables
	ResourceTeachers
	ResourceDiscipline
	ResourceClubs
	ResourceClubEnrollments
	// financial
	ResourcePayments
	ResourceFees
	ResourceInvoices
	ResourceExpenses
	ResourceSafeExpense
	ResourceBankTransfers
	ResourceSalaryHours
	ResourcePayroll
	ResourceTreasury
	ResourceFinancialReports
	ResourceRefunds
	ResourceDiscounts
	// administrative
	ResourceUsers
	ResourceRoleAssignment
	ResourcePermissionOverrides
	ResourceSchoolSettings
	ResourceAuditLogs
)

type resourceInfo struct {
	name    string
	branch  Branch
	actions ActionSet
}

var (
	crud      = Actions(ActionView, ActionCreate, ActionUpdate, ActionDelete)
	crudx     = crud | Actions(ActionExport)
	allVerbs  = crudx | Actions(ActionApprove)
	viewAudit = Actions(ActionView, ActionExport)
)

var resourceTable = [...]resourceInfo{
	ResourceUnknown:             {},
	ResourceStudents:            {name: "students", branch: BranchAcademic, actions: crudx},
	ResourceEnrollments:         {name: "enrollments", branch: BranchAcademic, actions: allVerbs},
	ResourceClasses:             {name: "classes", branch: BranchAcademic, actions: crud},
	ResourceSubjects:            {name: "subjects", branch: BranchAcademic, actions: crud},
	ResourceGrades:              {name: "grades", branch: BranchAcademic, actions: allVerbs},
	ResourceReportCards:         {name: "report_cards", branch: BranchAcademic, actions: allVerbs},
	ResourceAttendance:          {name: "attendance", branch: BranchAcademic, actions: crudx},
	ResourceTimetables:          {name: "timetables", branch: BranchAcademic, actions: crudx},
	ResourceTeachers:            {name: "teachers", branch: BranchAcademic, actions: crudx},
	ResourceDiscipline:          {name: "discipline", branch: BranchAcademic, actions: allVerbs},
	ResourceClubs:               {name: "clubs", branch: BranchAcademic, actions: crud},
	ResourceClubEnrollments:     {name: "club_enrollments", branch: BranchAcademic, actions: allVerbs},
	ResourcePayments:            {name: "payments", branch: BranchFinancial, actions: allVerbs},
	ResourceFees:                {name: "fees", branch: BranchFinancial, actions: crudx},
	ResourceInvoices:            {name: "invoices", branch: BranchFinancial, actions: allVerbs},
	ResourceExpenses:            {name: "expenses", branch: BranchFinancial, actions: allVerbs},
	ResourceSafeExpense:         {name: "safe_expense", branch: BranchFinancial, actions: allVerbs},
	ResourceBankTransfers:       {name: "bank_transfers", branch: BranchFinancial, actions: allVerbs},
	ResourceSalaryHours:         {name: "salary_hours", branch: BranchFinancial, actions: allVerbs},
	ResourcePayroll:             {name: "payroll", branch: BranchFinancial, actions: allVerbs},
	ResourceTreasury:            {name: "treasury", branch: BranchFinancial, actions: viewAudit},
	ResourceFinancialReports:    {name: "financial_reports", branch: BranchFinancial, actions: viewAudit},
	ResourceRefunds:             {name: "refunds", branch: BranchFinancial, actions: allVerbs},
	ResourceDiscounts:           {name: "discounts", branch: BranchFinancial, actions: allVerbs},
	ResourceUsers:               {name: "users", branch: BranchAdministrative, actions: crudx},
	ResourceRoleAssignment:      {name: "role_assignment", branch: BranchAdministrative, actions: Actions(ActionView, ActionUpdate)},
	ResourcePermissionOverrides: {name: "permission_overrides", branch: BranchAdministrative, actions: crud},
	ResourceSchoolSettings:      {name: "school_settings", branch: BranchAdministrative, actions: Actions(ActionView, ActionUpdate)},
	ResourceAuditLogs:           {name: "audit_logs", branch: BranchAdministrative, actions: viewAudit},
}

// Resources returns every known resource in declaration order.
func Resources() []Resource {
	out := make([]Resource, 0, len(resourceTable)-1)
	for r := ResourceStudents; int(r) < len(resourceTable); r++ {
		out = append(out, r)
	}
	return out
}

// Valid reports whether r is a member of the closed resource set.
func (r Resource) Valid() bool { return r > ResourceUnknown && int(r) < len(resourceTable) }

func (r Resource) String() string {
	if r.Valid() {
		return resourceTable[r].name
	}
	return fmt.Sprintf("resource(%d)", r)
}

// Branch reports which side of the wall the resource belongs to.
func (r Resource) Branch() Branch {
	if r.Valid() {
		return resourceTable[r].branch
	}
	return BranchNone
}

// Actions lists the verbs the resource supports.
func (r Resource) Actions() ActionSet {
	if r.Valid() {
		return resourceTable[r].actions
	}
	return 0
}

// Supports reports whether action is meaningful for the resource.
func (r Resource) Supports(a Action) bool { return a.Valid() && r.Actions().Has(a) }

func (r Resource) MarshalText() ([]byte, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("%w: unknown resource %d", ErrInvalidRequest, r)
	}
	return []byte(r.String()), nil
}

func (r *Resource) UnmarshalText(text []byte) error {
	parsed, err := ParseResource(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// Action is a verb applied to a resource.
type Action uint8

const (
	ActionUnknown Action = iota
	ActionView
	ActionCreate
	ActionUpdate
	ActionDelete
	ActionApprove
	ActionExport
)

var actionNames = [...]string{"", "view", "create", "update", "delete", "approve", "export"}

// AllActions returns every known action in declaration order.
func AllActions() []Action {
	return []Action{ActionView, ActionCreate, ActionUpdate, ActionDelete, ActionApprove, ActionExport}
}

func (a Action) Valid() bool { return a > ActionUnknown && int(a) < len(actionNames) }

func (a Action) String() string {
	if a.Valid() {
		return actionNames[a]
	}
	return fmt.Sprintf("action(%d)", a)
}

func (a Action) MarshalText() ([]byte, error) {
	if !a.Valid() {
		return nil, fmt.Errorf("%w: unknown action %d", ErrInvalidRequest, a)
	}
	return []byte(a.String()), nil
}

func (a *Action) UnmarshalText(text []byte) error {
	parsed, err := ParseAction(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// ActionSet is a bitset of actions.
type ActionSet uint8

// Actions builds a set from the given actions.
func Actions(actions ...Action) ActionSet {
	var set ActionSet
	for _, a := range actions {
		if a.Valid() {
			set |= 1 << a
		}
	}
	return set
}

// Has reports membership.
func (s ActionSet) Has(a Action) bool { return a.Valid() && s&(1<<a) != 0 }

// List expands the set in declaration order.
func (s ActionSet) List() []Action {
	out := make([]Action, 0, len(actionNames))
	for _, a := range AllActions() {
		if s.Has(a) {
			out = append(out, a)
		}
	}
	return out
}

// Scope is the breadth of data a grant covers. The zero value is ScopeNone.
type Scope uint8

const (
	ScopeNone Scope = iota
	ScopeAll
	ScopeOwnLevel
	ScopeOwnClasses
	ScopeOwnChildren
)

var scopeNames = [...]string{"none", "all", "own_level", "own_classes", "own_children"}

func (s Scope) Valid() bool { return int(s) < len(scopeNames) }

func (s Scope) String() string {
	if s.Valid() {
		return scopeNames[s]
	}
	return fmt.Sprintf("scope(%d)", s)
}

func (s Scope) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("%w: unknown scope %d", ErrInvalidRequest, s)
	}
	return []byte(s.String()), nil
}

func (s *Scope) UnmarshalText(text []byte) error {
	parsed, err := ParseScope(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Effect is the direction of an override.
type Effect uint8

const (
	EffectUnknown Effect = iota
	EffectGrant
	EffectRevoke
)

var effectNames = [...]string{"", "grant", "revoke"}

func (e Effect) Valid() bool { return e > EffectUnknown && int(e) < len(effectNames) }

func (e Effect) String() string {
	if e.Valid() {
		return effectNames[e]
	}
	return fmt.Sprintf("effect(%d)", e)
}

func (e Effect) MarshalText() ([]byte, error) {
	if !e.Valid() {
		return nil, fmt.Errorf("%w: unknown effect %d", ErrInvalidRequest, e)
	}
	return []byte(e.String()), nil
}

func (e *Effect) UnmarshalText(text []byte) error {
	parsed, err := ParseEffect(string(text))
	if err != nil {
		return err
	}
	*e = parsed
	return nil
}

// Check is a single (resource, action) question.
type Check struct {
	Resource Resource `json:"resource"`
	Action   Action   `json:"action"`
}

func (c Check) String() string { return c.Resource.String() + ":" + c.Action.String() }

// Override is a per-user exception layered on top of the default grant table.
type Override struct {
	ID        string     `json:"id"`
	UserID    int64      `json:"user_id"`
	Resource  Resource   `json:"resource"`
	Action    Action     `json:"action"`
	Effect    Effect     `json:"effect"`
	Scope     Scope      `json:"scope"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	Reason    string     `json:"reason,omitempty"`
	CreatedBy int64      `json:"created_by"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// ActiveAt reports whether the override still applies at t.
func (o Override) ActiveAt(t time.Time) bool {
	return o.ExpiresAt == nil || o.ExpiresAt.After(t)
}

// Key returns the uniqueness key of the override.
func (o Override) Key() Check { return Check{Resource: o.Resource, Action: o.Action} }

// Principal is the resolved user behind a request.
type Principal struct {
	ID          int64
	TenantID    int64
	Role        Role
	SchoolLevel string
	ClassIDs    []int64
	ChildIDs    []int64
	Active      bool
}

// PermissionContext is a per-request snapshot used for every check of that request.
type PermissionContext struct {
	Principal Principal
	At        time.Time
	overrides map[Check]Override
}

// NewPermissionContext assembles a context, keeping only overrides active at `at`.
// When two overrides share a key the most recently updated one is kept.
func NewPermissionContext(p Principal, at time.Time, overrides []Override) PermissionContext {
	pc := PermissionContext{Principal: p, At: at, overrides: make(map[Check]Override, len(overrides))}
	for _, o := range overrides {
		if o.UserID != p.ID || !o.ActiveAt(at) {
			continue
		}
		if prev, ok := pc.overrides[o.Key()]; ok && !supersedes(o, prev) {
			continue
		}
		pc.overrides[o.Key()] = o
	}
	return pc
}

func supersedes(candidate, current Override) bool {
	if !candidate.UpdatedAt.Equal(current.UpdatedAt) {
		return candidate.UpdatedAt.After(current.UpdatedAt)
	}
	return candidate.ID > current.ID
}

// Override returns the active override for a key, if any.
func (pc PermissionContext) Override(resource Resource, action Action) (Override, bool) {
	o, ok := pc.overrides[Check{Resource: resource, Action: action}]
	if !ok || !o.ActiveAt(pc.At) {
		return Override{}, false
	}
	return o, true
}

// Overrides lists the active overrides ordered by resource then action.
func (pc PermissionContext) Overrides() []Override {
	out := make([]Override, 0, len(pc.overrides))
	for _, o := range pc.overrides {
		if o.ActiveAt(pc.At) {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Resource != out[j].Resource {
			return out[i].Resource < out[j].Resource
		}
		return out[i].Action < out[j].Action
	})
	return out
}

// DecisionSource records which rule produced a decision.
type DecisionSource uint8

const (
	SourceDefault DecisionSource = iota
	SourceOverride
	SourceRole
	SourceUnavailable
)

var sourceNames = [...]string{"default", "override", "role", "unavailable"}

func (s DecisionSource) String() string {
	if int(s) < len(sourceNames) {
		return sourceNames[s]
	}
	return fmt.Sprintf("source(%d)", s)
}

// Decision is the outcome of one evaluation.
type Decision struct {
	Resource Resource
	Action   Action
	Granted  bool
	Scope    Scope
	Reason   string
	Source   DecisionSource
}
