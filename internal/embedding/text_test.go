package embedding

import (
	"testing"

	"github.com/dummi-ai/dummi/internal/models"
)

func TestContentText(t *testing.T) {
	cases := []struct {
		name string
		item models.ContentItem
		want string
	}{
		{
			name: "all fields",
			item: models.ContentItem{
				Title:       "Intro to Go",
				Category:    "programming",
				Tags:        []string{"go", "beginner"},
				Description: "a gentle start",
			},
			want: "Intro to Go programming go beginner a gentle start",
		},
		{
			name: "empty fields skipped",
			item: models.ContentItem{Title: "Solo Title"},
			want: "Solo Title",
		},
		{
			name: "tags only",
			item: models.ContentItem{Tags: []string{"a", "b"}},
			want: "a b",
		},
		{
			name: "empty item",
			item: models.ContentItem{},
			want: "",
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := ContentText(&c.item); got != c.want {
				t.Errorf("got %q, want %q", got, c.want)
			}
		})
	}
}

func TestInterestText(t *testing.T) {
	user := &models.UserProfile{Interests: []string{"python", "ml"}}
	if got := InterestText(user); got != "python ml" {
		t.Errorf("got %q", got)
	}
	if got := InterestText(&models.UserProfile{}); got != "" {
		t.Errorf("empty interests: got %q", got)
	}
}
