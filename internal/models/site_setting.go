// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package models

import "time"

// SiteSetting is a single key in the site-wide key-value store.
type SiteSetting struct { //nolint:govet // fieldalignment: readability over optimization
	ID              int64     `db:"id" json:"id"`
	SettingKey      string    `db:"setting_key" json:"setting_key"`
	SettingValue    string    `db:"setting_value" json:"setting_value"`
	SettingCategory string    `db:"setting_category" json:"setting_category"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
	UpdatedByUserID *int64    `db:"updated_by_user_id" json:"updated_by_user_id,omitempty"`
}
