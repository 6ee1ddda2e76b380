// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package models

import "time"

// BlogPost is a content record for the public blog.
type BlogPost struct { //nolint:govet // fieldalignment: readability over optimization
	ID             int64     `db:"id" json:"id"`
	Title          string    `db:"title" json:"title"`
	Slug           string    `db:"slug" json:"slug"`
	Content        string    `db:"content" json:"content"`
	Excerpt        *string   `db:"excerpt" json:"excerpt,omitempty"`
	AuthorID       int64     `db:"author_id" json:"author_id"`
	Category       *string   `db:"category" json:"category,omitempty"`
	FeaturedImage  *string   `db:"featured_image" json:"featured_image,omitempty"`
	Published      bool      `db:"published" json:"published"`
	SEOTitle       *string   `db:"seo_title" json:"seo_title,omitempty"`
	SEODescription *string   `db:"seo_description" json:"seo_description,omitempty"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}
