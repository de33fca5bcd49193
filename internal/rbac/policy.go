package rbac

import "strings"

// Policy maps a role to permission patterns. A pattern is an exact
// permission, "*", or a resource wildcard such as "note:*".
type Policy map[string][]string

// Allows reports whether role holds perm.
func (p Policy) Allows(role, perm string) bool {
	if role == "" {
		return false
	}
	for _, pattern := range p[role] {
		if matches(pattern, perm) {
			return true
		}
	}
	return false
}

func (p Policy) AllowsAny(role string, perms ...string) bool {
	for _, perm := range perms {
		if p.Allows(role, perm) {
			return true
		}
	}
	return false
}

func matches(pattern, perm string) bool {
	if pattern == "*" || pattern == perm {
		return true
	}
	resource, ok := strings.CutSuffix(pattern, ":*")
	return ok && strings.HasPrefix(perm, resource+":")
}
