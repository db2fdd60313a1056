package rbac

import "fmt"

// Evaluator renders decisions against a catalog. It performs no I/O and holds no
// mutable state, so one instance is shared by every request.
type Evaluator struct {
	catalog *Catalog
}

// NewEvaluator binds an evaluator to a catalog; nil selects DefaultCatalog.
func NewEvaluator(catalog *Catalog) *Evaluator {
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	return &Evaluator{catalog: catalog}
}

// Catalog exposes the grant table the evaluator consults.
func (e *Evaluator) Catalog() *Catalog { return e.catalog }

// Evaluate decides whether the context's principal may perform action on resource.
// An active override wins outright over the default grant, in either direction.
func (e *Evaluator) Evaluate(pc PermissionContext, resource Resource, action Action) (Decision, error) {
	if !resource.Valid() {
		return Decision{}, fmt.Errorf("%w: unknown resource %d", ErrInvalidRequest, resource)
	}
	if !action.Valid() {
		return Decision{}, fmt.Errorf("%w: unknown action %d", ErrInvalidRequest, action)
	}
	if !resource.Supports(action) {
		return Decision{}, fmt.Errorf("%w: %s does not support %s", ErrInvalidRequest, resource, action)
	}

	d := Decision{Resource: resource, Action: action}
	if o, ok := pc.Override(resource, action); ok {
		d.Source = SourceOverride
		if o.Effect == EffectGrant {
			// a scopeless grant is never widened
			if o.Scope == ScopeNone {
				d.Reason = fmt.Sprintf("override for %s:%s grants no scope", resource, action)
				return d, nil
			}
			d.Granted = true
			d.Scope = o.Scope
			return d, nil
		}
		d.Reason = fmt.Sprintf("revoked by override for %s:%s", resource, action)
		return d, nil
	}

	d.Source = SourceDefault
	scope, ok := e.catalog.DefaultScope(pc.Principal.Role, resource, action)
	if !ok {
		d.Reason = fmt.Sprintf("no default grant for %s:%s", resource, action)
		return d, nil
	}
	d.Granted = true
	d.Scope = scope
	return d, nil
}
