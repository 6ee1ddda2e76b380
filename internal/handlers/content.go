// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/stem-ed-architects/backend/internal/models"
	"github.com/stem-ed-architects/backend/internal/repository"
)

type upsertSettingRequest struct {
	Value    string `json:"value"`
	Category string `json:"category"`
}

// ListBlogPosts returns published posts. Admins can pass ?all=true to
// include drafts.
func (h *Handlers) ListBlogPosts(c echo.Context) error {
	publishedOnly := true
	if c.QueryParam("all") == "true" {
		user := currentUser(c)
		publishedOnly = user == nil || !user.IsAdmin()
	}

	posts, err := h.repo.ListBlogPosts(c.Request().Context(), publishedOnly)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, posts)
}

// GetBlogPost returns a single post by slug. Unpublished posts stay
// hidden from the public.
func (h *Handlers) GetBlogPost(c echo.Context) error {
	post, err := h.repo.GetBlogPostBySlug(c.Request().Context(), c.Param("slug"))
	if err != nil {
		return fail(c, err)
	}
	if !post.Published {
		user := currentUser(c)
		if user == nil || !user.IsAdmin() {
			return fail(c, repository.ErrNotFound)
		}
	}
	return c.JSON(http.StatusOK, post)
}

// AdminCreateBlogPost creates a post authored by the caller.
func (h *Handlers) AdminCreateBlogPost(c echo.Context) error {
	var post models.BlogPost
	if err := c.Bind(&post); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid request body")
	}
	if post.Title == "" || post.Slug == "" {
		return errorJSON(c, http.StatusUnprocessableEntity, "title and slug are required")
	}
	post.AuthorID = currentUser(c).ID

	if err := h.repo.CreateBlogPost(c.Request().Context(), &post); err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusCreated, post)
}

// AdminUpdateBlogPost updates a post in place.
func (h *Handlers) AdminUpdateBlogPost(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid post id")
	}
	existing, err := h.repo.GetBlogPostByID(c.Request().Context(), id)
	if err != nil {
		return fail(c, err)
	}

	var post models.BlogPost
	if err := c.Bind(&post); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid request body")
	}
	post.ID = existing.ID
	post.AuthorID = existing.AuthorID
	post.CreatedAt = existing.CreatedAt

	if err := h.repo.UpdateBlogPost(c.Request().Context(), &post); err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, post)
}

// AdminDeleteBlogPost removes a post.
func (h *Handlers) AdminDeleteBlogPost(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid post id")
	}
	if err := h.repo.DeleteBlogPost(c.Request().Context(), id); err != nil {
		return fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// ListSettings returns the site settings, optionally filtered by
// ?category=.
func (h *Handlers) ListSettings(c echo.Context) error {
	settings, err := h.repo.ListSettings(c.Request().Context(), c.QueryParam("category"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, settings)
}

// GetSetting returns a single setting by key.
func (h *Handlers) GetSetting(c echo.Context) error {
	setting, err := h.repo.GetSetting(c.Request().Context(), c.Param("key"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, setting)
}

// AdminUpsertSetting creates or replaces one setting key.
func (h *Handlers) AdminUpsertSetting(c echo.Context) error {
	key := c.Param("key")
	var req upsertSettingRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid request body")
	}

	userID := currentUser(c).ID
	if err := h.repo.UpsertSetting(c.Request().Context(), key, req.Value, req.Category, &userID); err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "setting saved"})
}

// AdminDeleteSetting removes one setting key.
func (h *Handlers) AdminDeleteSetting(c echo.Context) error {
	if err := h.repo.DeleteSetting(c.Request().Context(), c.Param("key")); err != nil {
		return fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// SubmitContact stores a contact form message.
func (h *Handlers) SubmitContact(c echo.Context) error {
	var msg models.ContactMessage
	if err := c.Bind(&msg); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid request body")
	}
	if msg.Name == "" || msg.Email == "" || msg.Message == "" {
		return errorJSON(c, http.StatusUnprocessableEntity, "name, email and message are required")
	}

	if err := h.repo.CreateContactMessage(c.Request().Context(), &msg); err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusCreated, map[string]string{"message": "message received"})
}

// SubscribeNewsletter stores a newsletter signup. Subscribing an
// already subscribed address succeeds without a duplicate row.
func (h *Handlers) SubscribeNewsletter(c echo.Context) error {
	var sub models.NewsletterSubscription
	if err := c.Bind(&sub); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid request body")
	}
	if sub.Email == "" {
		return errorJSON(c, http.StatusUnprocessableEntity, "email is required")
	}

	if _, err := h.repo.GetNewsletterSubscriptionByEmail(c.Request().Context(), sub.Email); err == nil {
		return c.JSON(http.StatusOK, map[string]string{"message": "already subscribed"})
	} else if !errors.Is(err, repository.ErrNotFound) {
		return fail(c, err)
	}

	if err := h.repo.CreateNewsletterSubscription(c.Request().Context(), &sub); err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusCreated, map[string]string{"message": "subscribed"})
}
