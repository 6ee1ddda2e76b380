// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package repository

import (
	"context"
	"time"

	"github.com/stem-ed-architects/backend/internal/models"
)

// CreateBlogPost inserts a blog post.
func (r *Repository) CreateBlogPost(ctx context.Context, post *models.BlogPost) error {
	now := time.Now().UTC()
	post.CreatedAt = now
	post.UpdatedAt = now
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO blog_posts (title, slug, content, excerpt, author_id, category,
		    featured_image, published, seo_title, seo_description, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		post.Title, post.Slug, post.Content, post.Excerpt, post.AuthorID, post.Category,
		post.FeaturedImage, post.Published, post.SEOTitle, post.SEODescription,
		post.CreatedAt, post.UpdatedAt)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	post.ID = id
	return nil
}

// GetBlogPostBySlug retrieves a post by its slug.
func (r *Repository) GetBlogPostBySlug(ctx context.Context, slug string) (*models.BlogPost, error) {
	var post models.BlogPost
	err := r.db.GetContext(ctx, &post, `SELECT * FROM blog_posts WHERE slug = ?`, slug)
	if err != nil {
		return nil, wrapError(err)
	}
	return &post, nil
}

// GetBlogPostByID retrieves a post by ID.
func (r *Repository) GetBlogPostByID(ctx context.Context, id int64) (*models.BlogPost, error) {
	var post models.BlogPost
	err := r.db.GetContext(ctx, &post, `SELECT * FROM blog_posts WHERE id = ?`, id)
	if err != nil {
		return nil, wrapError(err)
	}
	return &post, nil
}

// ListBlogPosts returns posts, optionally only published ones.
func (r *Repository) ListBlogPosts(ctx context.Context, publishedOnly bool) ([]models.BlogPost, error) {
	query := `SELECT * FROM blog_posts ORDER BY created_at DESC`
	if publishedOnly {
		query = `SELECT * FROM blog_posts WHERE published = 1 ORDER BY created_at DESC`
	}
	var posts []models.BlogPost
	if err := r.db.SelectContext(ctx, &posts, query); err != nil {
		return nil, err
	}
	return posts, nil
}

// UpdateBlogPost persists all mutable fields of a post.
func (r *Repository) UpdateBlogPost(ctx context.Context, post *models.BlogPost) error {
	post.UpdatedAt = time.Now().UTC()
	_, err := r.db.ExecContext(ctx,
		`UPDATE blog_posts SET title = ?, slug = ?, content = ?, excerpt = ?, category = ?,
		    featured_image = ?, published = ?, seo_title = ?, seo_description = ?, updated_at = ?
		 WHERE id = ?`,
		post.Title, post.Slug, post.Content, post.Excerpt, post.Category,
		post.FeaturedImage, post.Published, post.SEOTitle, post.SEODescription,
		post.UpdatedAt, post.ID)
	return err
}

// DeleteBlogPost deletes a post by ID.
func (r *Repository) DeleteBlogPost(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM blog_posts WHERE id = ?`, id)
	return err
}
