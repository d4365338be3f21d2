// Package policy decides whether a role set may invoke a tool, and for
// CRUD-capable tools, whether it may apply an action to a resource.
// Evaluation is pure: the ruleset is immutable once loaded and every
// (roles, tool, resource, action) tuple yields exactly one decision.
package policy

import "strings"

// Action is a CRUD verb applied to a backend resource.
type Action string

const (
	ActionCreate Action = "create"
	ActionRead   Action = "read"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Denial reasons. Kept generic so a denial never reveals what other
// roles would have been granted.
const (
	ReasonToolNotPermitted     = "tool not permitted"
	ReasonResourceNotPermitted = "resource/action not permitted"
)

// Decision is the outcome of an authorization check.
type Decision struct {
	Allowed bool
	Reason  string
}

// Allow is the positive decision.
var Allow = Decision{Allowed: true}

// Deny produces a negative decision with the given reason.
func Deny(reason string) Decision {
	return Decision{Allowed: false, Reason: reason}
}

// ResourceGrant permits a set of actions on resources matching Pattern.
// Patterns support a trailing "*" wildcard ("public.*") or a bare "*".
type ResourceGrant struct {
	Pattern string
	Actions []Action
}

// RoleGrants is the full grant set of a single role.
type RoleGrants struct {
	// Tools lists invocable tool names; trailing "*" wildcards apply.
	Tools []string
	// Resources constrains CRUD-capable tools. A role with no matching
	// resource grant is denied even when the tool itself is listed.
	Resources []ResourceGrant
}

// Ruleset maps role name to its grants.
type Ruleset map[string]RoleGrants

// Engine evaluates a Ruleset. It holds no mutable state.
type Engine struct {
	rules Ruleset
}

// NewEngine builds an Engine over rules. Role names are normalized to
// lower case at construction time.
func NewEngine(rules Ruleset) *Engine {
	normalized := make(Ruleset, len(rules))
	for role, grants := range rules {
		normalized[strings.ToLower(strings.TrimSpace(role))] = grants
	}
	return &Engine{rules: normalized}
}

// Authorize decides whether the role set may invoke tool, optionally
// applying action to resource. Grants are unioned across roles: one
// granting role is enough. Everything not explicitly granted is denied.
//
// For CRUD-capable tools the caller passes the resolved resource and
// action; an empty resource under a CRUD action is always denied.
func (e *Engine) Authorize(roles []string, tool, resource string, action Action) Decision {
	tool = strings.TrimSpace(tool)
	if tool == "" {
		return Deny(ReasonToolNotPermitted)
	}

	toolPermitted := false
	for _, role := range roles {
		grants, ok := e.rules[strings.ToLower(strings.TrimSpace(role))]
		if !ok {
			continue
		}
		for _, pattern := range grants.Tools {
			if matchPattern(pattern, tool) {
				toolPermitted = true
				break
			}
		}
		if toolPermitted {
			break
		}
	}
	if !toolPermitted {
		return Deny(ReasonToolNotPermitted)
	}

	if action == "" {
		return Allow
	}
	if strings.TrimSpace(resource) == "" {
		return Deny(ReasonResourceNotPermitted)
	}

	for _, role := range roles {
		grants, ok := e.rules[strings.ToLower(strings.TrimSpace(role))]
		if !ok {
			continue
		}
		for _, grant := range grants.Resources {
			if !matchPattern(grant.Pattern, resource) {
				continue
			}
			for _, a := range grant.Actions {
				if a == action {
					return Allow
				}
			}
		}
	}
	return Deny(ReasonResourceNotPermitted)
}

// matchPattern matches a pattern against a value.
// Supports "*" as a trailing wildcard for any characters.
func matchPattern(pattern, value string) bool {
	if pattern == "*" {
		return true
	}
	if strings.HasSuffix(pattern, "*") {
		return strings.HasPrefix(value, strings.TrimSuffix(pattern, "*"))
	}
	return pattern == value
}
