// Package e2e runs recommendation scenarios over a seeded catalog and
// interaction log.
package e2e

import (
	"fmt"
	"time"

	"github.com/dummi-ai/dummi/internal/models"
)

// Case describes one recommendation scenario: the user to serve and the
// content ids that must (or must never) appear in the response.
type Case struct {
	Description string
	UserID      string
	// ExpectedIDs must contribute at least one recommendation.
	ExpectedIDs []string
	// ExcludedIDs were interacted with and must never be recommended.
	ExcludedIDs []string
	// WantMethod, when set, is required on every recommendation.
	WantMethod string
}

// Corpus is a self-consistent fixture: every interaction references a seeded
// user and content item, and every case's expectations follow from the log.
type Corpus struct {
	Users        []*models.UserProfile
	Content      []*models.ContentItem
	Interactions []*models.InteractionEvent
	Cases        []Case
}

// InteractedBy returns the content ids the given user has events against.
func (c *Corpus) InteractedBy(userID string) map[string]bool {
	seen := make(map[string]bool)
	for _, ev := range c.Interactions {
		if ev.UserID == userID {
			seen[ev.ContentID] = true
		}
	}
	return seen
}

// BuildCorpus returns the scenario fixture. Warm users carry at least five
// events so they clear the cold-start threshold; expected warm candidates all
// appear in someone's interaction history, so the factorization model knows
// them.
func BuildCorpus() *Corpus {
	content := []*models.ContentItem{
		{ContentID: "py-basics", Title: "Python Basics", Category: "programming", Tags: []string{"python"}},
		{ContentID: "py-web", Title: "Python Web Frameworks", Category: "programming", Tags: []string{"python", "web"}},
		{ContentID: "py-data", Title: "Data Analysis in Python", Category: "data", Tags: []string{"python", "ml"}},
		{ContentID: "py-testing", Title: "Testing Python Applications", Category: "programming", Tags: []string{"python", "testing"}},
		{ContentID: "go-basics", Title: "Go Basics", Category: "programming", Tags: []string{"go"}},
		{ContentID: "go-web", Title: "Web Services in Go", Category: "programming", Tags: []string{"go", "web"}},
		{ContentID: "go-concurrency", Title: "Concurrency Patterns in Go", Category: "programming", Tags: []string{"go"}},
		{ContentID: "go-testing", Title: "Testing Go Code", Category: "programming", Tags: []string{"go", "testing"}},
		{ContentID: "ml-intro", Title: "Machine Learning Introduction", Category: "data", Tags: []string{"ml"}},
		{ContentID: "ml-nn", Title: "Neural Networks", Category: "data", Tags: []string{"ml"}},
		{ContentID: "ml-nlp", Title: "Natural Language Processing", Category: "data", Tags: []string{"ml", "python"}},
		{ContentID: "ml-vision", Title: "Computer Vision", Category: "data", Tags: []string{"ml"}},
	}

	users := []*models.UserProfile{
		{UserID: "cold-python", Interests: []string{"python"}, SkillLevel: models.SkillBeginner},
		{UserID: "cold-tester", Interests: []string{"testing", "web"}, SkillLevel: models.SkillBeginner},
		{UserID: "warm-pythonista", Interests: []string{"python"}, SkillLevel: models.SkillIntermediate},
		{UserID: "warm-gopher", Interests: []string{"go"}, SkillLevel: models.SkillIntermediate},
		{UserID: "warm-tester", Interests: []string{"testing"}, SkillLevel: models.SkillAdvanced},
	}

	raw := []struct {
		user, content, typ string
	}{
		{"cold-tester", "py-web", models.InteractionClick},
		{"cold-tester", "py-web", models.InteractionViewTime},

		{"warm-pythonista", "py-basics", models.InteractionLike},
		{"warm-pythonista", "py-web", models.InteractionLike},
		{"warm-pythonista", "py-basics", models.InteractionClick},
		{"warm-pythonista", "py-data", models.InteractionViewTime},
		{"warm-pythonista", "py-web", models.InteractionClick},

		{"warm-gopher", "go-basics", models.InteractionLike},
		{"warm-gopher", "go-web", models.InteractionLike},
		{"warm-gopher", "go-concurrency", models.InteractionLike},
		{"warm-gopher", "go-basics", models.InteractionClick},
		{"warm-gopher", "go-web", models.InteractionViewTime},

		{"warm-tester", "py-testing", models.InteractionLike},
		{"warm-tester", "go-testing", models.InteractionLike},
		{"warm-tester", "py-testing", models.InteractionClick},
		{"warm-tester", "go-testing", models.InteractionClick},
		{"warm-tester", "py-testing", models.InteractionViewTime},
	}
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	events := make([]*models.InteractionEvent, len(raw))
	for i, r := range raw {
		events[i] = &models.InteractionEvent{
			ID:        fmt.Sprintf("evt-%03d", i),
			UserID:    r.user,
			ContentID: r.content,
			Type:      r.typ,
			Timestamp: base.Add(time.Duration(i) * time.Minute),
		}
	}

	cases := []Case{
		{
			Description: "cold user with one interest gets tag matches",
			UserID:      "cold-python",
			ExpectedIDs: []string{"py-basics", "py-web", "py-data", "py-testing", "ml-nlp"},
			WantMethod:  "tag_overlap",
		},
		{
			Description: "cold user below threshold still excludes interacted content",
			UserID:      "cold-tester",
			ExpectedIDs: []string{"py-testing", "go-testing", "go-web"},
			ExcludedIDs: []string{"py-web"},
			WantMethod:  "tag_overlap",
		},
		{
			Description: "warm python user is led to the unread python course",
			UserID:      "warm-pythonista",
			ExpectedIDs: []string{"py-testing"},
			ExcludedIDs: []string{"py-basics", "py-web", "py-data"},
		},
		{
			Description: "warm go user is led to the unread go course",
			UserID:      "warm-gopher",
			ExpectedIDs: []string{"go-testing"},
			ExcludedIDs: []string{"go-basics", "go-web", "go-concurrency"},
		},
		{
			Description: "warm tester branches out beyond testing content",
			UserID:      "warm-tester",
			ExpectedIDs: []string{"py-basics", "py-web", "py-data", "go-basics", "go-web", "go-concurrency"},
			ExcludedIDs: []string{"py-testing", "go-testing"},
		},
	}

	return &Corpus{
		Users:        users,
		Content:      content,
		Interactions: events,
		Cases:        cases,
	}
}
