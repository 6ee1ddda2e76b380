// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package models

import "time"

// LoginAttempt is an append-only audit record. One row is written for
// every authentication decision, successful or not, and never mutated.
type LoginAttempt struct { //nolint:govet // fieldalignment: readability over optimization
	ID          int64     `db:"id" json:"id"`
	UserID      int64     `db:"user_id" json:"user_id"`
	IPAddress   *string   `db:"ip_address" json:"ip_address,omitempty"`
	UserAgent   *string   `db:"user_agent" json:"user_agent,omitempty"`
	Success     bool      `db:"success" json:"success"`
	AttemptTime time.Time `db:"attempt_time" json:"attempt_time"`
}
