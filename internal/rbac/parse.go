package rbac

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	roleLookup     = map[string]Role{}
	resourceLookup = map[string]Resource{}
	actionLookup   = map[string]Action{}
	scopeLookup    = map[string]Scope{}
	effectLookup   = map[string]Effect{}
)

func init() {
	for _, r := range Roles() {
		roleLookup[roleTable[r].name] = r
		for _, alias := range roleTable[r].aliases {
			roleLookup[alias] = r
		}
	}
	for _, r := range Resources() {
		resourceLookup[resourceTable[r].name] = r
	}
	for _, a := range AllActions() {
		actionLookup[actionNames[a]] = a
	}
	for i, name := range scopeNames {
		scopeLookup[name] = Scope(i)
	}
	effectLookup["grant"] = EffectGrant
	effectLookup["allow"] = EffectGrant
	effectLookup["revoke"] = EffectRevoke
	effectLookup["deny"] = EffectRevoke
}

// normalizeTag folds case, strips accents and maps separators to underscores so
// "Propriétaire", "PROPRIETAIRE" and "proprietaire" all resolve to the same tag.
func normalizeTag(raw string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(t, strings.TrimSpace(raw))
	if err != nil {
		stripped = strings.TrimSpace(raw)
	}
	folded := cases.Fold().String(stripped)
	return strings.Map(func(r rune) rune {
		switch r {
		case '-', ' ', '.':
			return '_'
		}
		return r
	}, folded)
}

// ParseRole maps a boundary string to a Role.
func ParseRole(raw string) (Role, error) {
	if r, ok := roleLookup[normalizeTag(raw)]; ok {
		return r, nil
	}
	return RoleUnknown, fmt.Errorf("%w: unknown role %q", ErrInvalidRequest, raw)
}

// ParseResource maps a boundary string to a Resource.
func ParseResource(raw string) (Resource, error) {
	if r, ok := resourceLookup[normalizeTag(raw)]; ok {
		return r, nil
	}
	return ResourceUnknown, fmt.Errorf("%w: unknown resource %q", ErrInvalidRequest, raw)
}

// ParseAction maps a boundary string to an Action.
func ParseAction(raw string) (Action, error) {
	if a, ok := actionLookup[normalizeTag(raw)]; ok {
		return a, nil
	}
	return ActionUnknown, fmt.Errorf("%w: unknown action %q", ErrInvalidRequest, raw)
}

// ParseScope maps a boundary string to a Scope. The empty string is not accepted.
func ParseScope(raw string) (Scope, error) {
	if s, ok := scopeLookup[normalizeTag(raw)]; ok {
		return s, nil
	}
	return ScopeNone, fmt.Errorf("%w: unknown scope %q", ErrInvalidRequest, raw)
}

// ParseEffect maps a boundary string to an Effect.
func ParseEffect(raw string) (Effect, error) {
	if e, ok := effectLookup[normalizeTag(raw)]; ok {
		return e, nil
	}
	return EffectUnknown, fmt.Errorf("%w: unknown effect %q", ErrInvalidRequest, raw)
}

// ParseCheck parses a resource/action pair and verifies the resource supports the action.
func ParseCheck(resource, action string) (Check, error) {
	res, err := ParseResource(resource)
	if err != nil {
		return Check{}, err
	}
	act, err := ParseAction(action)
	if err != nil {
		return Check{}, err
	}
	if !res.Supports(act) {
		return Check{}, fmt.Errorf("%w: %s does not support %s", ErrInvalidRequest, res, act)
	}
	return Check{Resource: res, Action: act}, nil
}
