package auth

import (
	"slices"
	"strings"
)

// ParseScopes splits a space separated scope string, dropping duplicates and
// keeping first-seen order.
func ParseScopes(scope string) []string {
	fields := strings.Fields(scope)
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if !slices.Contains(out, f) {
			out = append(out, f)
		}
	}
	return out
}

// JoinScopes is the inverse of ParseScopes.
func JoinScopes(scopes []string) string {
	return strings.Join(scopes, " ")
}

// HasAll reports whether every required scope is granted. An empty
// requirement is always satisfied.
func HasAll(granted, required []string) bool {
	for _, r := range required {
		if !slices.Contains(granted, r) {
			return false
		}
	}
	return true
}

// Intersect returns the requested scopes that are also allowed, in request order.
func Intersect(requested, allowed []string) []string {
	out := make([]string, 0, len(requested))
	for _, r := range requested {
		if slices.Contains(allowed, r) && !slices.Contains(out, r) {
			out = append(out, r)
		}
	}
	return out
}

// RoleAdmin is the user role that may be granted privileged scopes.
const RoleAdmin = "admin"

// IsPrivilegedScope reports whether scope unlocks administrative routes.
func IsPrivilegedScope(scope string) bool {
	return scope == "admin" || strings.HasPrefix(scope, "user:")
}

// GrantableFor drops the privileged scopes that roles do not cover.
func GrantableFor(scopes, roles []string) []string {
	if slices.Contains(roles, RoleAdmin) {
		return scopes
	}
	out := make([]string, 0, len(scopes))
	for _, s := range scopes {
		if !IsPrivilegedScope(s) {
			out = append(out, s)
		}
	}
	return out
}
