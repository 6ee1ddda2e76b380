// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package repository

import (
	"context"
	"time"

	"github.com/stem-ed-architects/backend/internal/models"
)

// GetSetting retrieves a setting by key.
func (r *Repository) GetSetting(ctx context.Context, key string) (*models.SiteSetting, error) {
	var setting models.SiteSetting
	err := r.db.GetContext(ctx, &setting, `SELECT * FROM site_settings WHERE setting_key = ?`, key)
	if err != nil {
		return nil, wrapError(err)
	}
	return &setting, nil
}

// ListSettings returns all settings, optionally filtered by category.
func (r *Repository) ListSettings(ctx context.Context, category string) ([]models.SiteSetting, error) {
	var settings []models.SiteSetting
	var err error
	if category == "" {
		err = r.db.SelectContext(ctx, &settings, `SELECT * FROM site_settings ORDER BY setting_key`)
	} else {
		err = r.db.SelectContext(ctx, &settings,
			`SELECT * FROM site_settings WHERE setting_category = ? ORDER BY setting_key`, category)
	}
	if err != nil {
		return nil, err
	}
	return settings, nil
}

// UpsertSetting creates or replaces a setting value.
func (r *Repository) UpsertSetting(ctx context.Context, key, value, category string, updatedBy *int64) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO site_settings (setting_key, setting_value, setting_category, updated_at, updated_by_user_id)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(setting_key) DO UPDATE SET
		    setting_value = excluded.setting_value,
		    setting_category = excluded.setting_category,
		    updated_at = excluded.updated_at,
		    updated_by_user_id = excluded.updated_by_user_id`,
		key, value, category, time.Now().UTC(), updatedBy)
	return err
}

// DeleteSetting removes a setting by key.
func (r *Repository) DeleteSetting(ctx context.Context, key string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM site_settings WHERE setting_key = ?`, key)
	return err
}
