package rbac

import "slices"

// Target carries the attributes of a data row that scope narrowing looks at.
type Target struct {
	SchoolLevel string
	ClassID     int64
	StudentID   int64
}

// ScopeFilter is the caller-side narrowing derived from a granted decision.
// The evaluator never applies it; data-layer callers do.
type ScopeFilter struct {
	Scope       Scope
	SchoolLevel string
	ClassIDs    []int64
	ChildIDs    []int64
}

// NewScopeFilter derives the filter for d. A denied decision yields ScopeNone.
func NewScopeFilter(pc PermissionContext, d Decision) ScopeFilter {
	if !d.Granted {
		return ScopeFilter{Scope: ScopeNone}
	}
	return ScopeFilter{
		Scope:       d.Scope,
		SchoolLevel: pc.Principal.SchoolLevel,
		ClassIDs:    pc.Principal.ClassIDs,
		ChildIDs:    pc.Principal.ChildIDs,
	}
}

// Allows reports whether t falls inside the filter.
func (f ScopeFilter) Allows(t Target) bool {
	switch f.Scope {
	case ScopeAll:
		return true
	case ScopeOwnLevel:
		return f.SchoolLevel != "" && t.SchoolLevel == f.SchoolLevel
	case ScopeOwnClasses:
		return t.ClassID != 0 && slices.Contains(f.ClassIDs, t.ClassID)
	case ScopeOwnChildren:
		return t.StudentID != 0 && slices.Contains(f.ChildIDs, t.StudentID)
	default:
		return false
	}
}
