// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package password

import (
	"fmt"
	"strings"
	"unicode"
)

// commonPasswords is a small blacklist of passwords nobody should use.
var commonPasswords = map[string]struct{}{
	"password": {}, "password123": {}, "12345678": {}, "qwerty": {},
	"abc123": {}, "letmein": {}, "welcome": {}, "monkey": {},
	"admin": {}, "admin123": {},
}

// Policy validates passwords against configurable rules.
type Policy struct {
	MinLength        int
	RequireUppercase bool
	RequireLowercase bool
	RequireDigit     bool
	RequireSpecial   bool
	CheckCommon      bool
}

// DefaultPolicy returns the policy applied at registration and password change.
func DefaultPolicy() *Policy {
	return &Policy{
		MinLength:        8,
		RequireUppercase: true,
		RequireLowercase: true,
		RequireDigit:     true,
		RequireSpecial:   false,
		CheckCommon:      true,
	}
}

// PolicyError lists the rules a password failed. It is safe to be
// specific here: this is pre-account feedback, not an enumeration vector.
type PolicyError struct {
	Failures []string
}

func (e *PolicyError) Error() string {
	return "password must contain: " + strings.Join(e.Failures, ", ")
}

// Validate checks a password against the policy. Returns a *PolicyError
// naming every failed rule, or nil.
func (p *Policy) Validate(plain string) error {
	var failures []string

	if len(plain) < p.MinLength {
		failures = append(failures, fmt.Sprintf("at least %d characters", p.MinLength))
	}

	var hasUpper, hasLower, hasDigit, hasSpecial bool
	for _, r := range plain {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			hasSpecial = true
		}
	}

	if p.RequireUppercase && !hasUpper {
		failures = append(failures, "at least one uppercase letter")
	}
	if p.RequireLowercase && !hasLower {
		failures = append(failures, "at least one lowercase letter")
	}
	if p.RequireDigit && !hasDigit {
		failures = append(failures, "at least one digit")
	}
	if p.RequireSpecial && !hasSpecial {
		failures = append(failures, "at least one special character")
	}

	if p.CheckCommon {
		if _, ok := commonPasswords[strings.ToLower(plain)]; ok {
			failures = append(failures, "a less common password")
		}
	}

	if len(failures) > 0 {
		return &PolicyError{Failures: failures}
	}
	return nil
}
