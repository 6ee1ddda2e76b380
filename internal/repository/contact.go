// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package repository

import (
	"context"
	"time"

	"github.com/stem-ed-architects/backend/internal/models"
)

// CreateContactMessage stores a contact form submission.
func (r *Repository) CreateContactMessage(ctx context.Context, msg *models.ContactMessage) error {
	msg.CreatedAt = time.Now().UTC()
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO contact_messages (name, email, organization, phone, service, message, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		msg.Name, msg.Email, msg.Organization, msg.Phone, msg.Service, msg.Message, msg.CreatedAt)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	msg.ID = id
	return nil
}

// CreateNewsletterSubscription stores a newsletter signup. Duplicate
// emails are rejected by the unique index.
func (r *Repository) CreateNewsletterSubscription(ctx context.Context, sub *models.NewsletterSubscription) error {
	sub.CreatedAt = time.Now().UTC()
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO newsletter_subscriptions (email, first_name, last_name, organization, role, interests, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sub.Email, sub.FirstName, sub.LastName, sub.Organization, sub.Role, sub.Interests, sub.CreatedAt)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	sub.ID = id
	return nil
}

// GetNewsletterSubscriptionByEmail looks up a subscription by email.
func (r *Repository) GetNewsletterSubscriptionByEmail(ctx context.Context, email string) (*models.NewsletterSubscription, error) {
	var sub models.NewsletterSubscription
	err := r.db.GetContext(ctx, &sub, `SELECT * FROM newsletter_subscriptions WHERE email = ?`, email)
	if err != nil {
		return nil, wrapError(err)
	}
	return &sub, nil
}
