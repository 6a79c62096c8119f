package embedding

import (
	"strings"

	"github.com/dummi-ai/dummi/internal/models"
)

// ContentText builds the canonical embedding input for a content item:
// title, category, tags, and description joined by single spaces, in that
// order, with empty fields skipped. Deterministic: the same item always
// yields the same text.
func ContentText(item *models.ContentItem) string {
	parts := make([]string, 0, 4)
	if item.Title != "" {
		parts = append(parts, item.Title)
	}
	if item.Category != "" {
		parts = append(parts, item.Category)
	}
	if tags := strings.Join(item.Tags, " "); tags != "" {
		parts = append(parts, tags)
	}
	if item.Description != "" {
		parts = append(parts, item.Description)
	}
	return strings.Join(parts, " ")
}

// InterestText builds the embedding input for a user's interest profile by
// joining interest tags with single spaces.
func InterestText(user *models.UserProfile) string {
	return strings.Join(user.Interests, " ")
}
