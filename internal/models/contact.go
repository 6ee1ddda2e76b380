// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package models

import "time"

// ContactMessage is a message submitted through the public contact form.
type ContactMessage struct { //nolint:govet // fieldalignment: readability over optimization
	ID           int64     `db:"id" json:"id"`
	Name         string    `db:"name" json:"name"`
	Email        string    `db:"email" json:"email"`
	Organization *string   `db:"organization" json:"organization,omitempty"`
	Phone        *string   `db:"phone" json:"phone,omitempty"`
	Service      *string   `db:"service" json:"service,omitempty"`
	Message      string    `db:"message" json:"message"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// NewsletterSubscription is a newsletter signup.
type NewsletterSubscription struct { //nolint:govet // fieldalignment: readability over optimization
	ID           int64     `db:"id" json:"id"`
	Email        string    `db:"email" json:"email"`
	FirstName    *string   `db:"first_name" json:"first_name,omitempty"`
	LastName     *string   `db:"last_name" json:"last_name,omitempty"`
	Organization *string   `db:"organization" json:"organization,omitempty"`
	Role         *string   `db:"role" json:"role,omitempty"`
	Interests    *string   `db:"interests" json:"interests,omitempty"` // comma-separated
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}
