package e2e

import "testing"

// TestCorpusConsistency validates the fixture's referential integrity so
// scenario failures point at the engine, not a broken fixture.
func TestCorpusConsistency(t *testing.T) {
	corpus := BuildCorpus()
	if len(corpus.Content) == 0 || len(corpus.Users) == 0 || len(corpus.Cases) == 0 {
		t.Fatal("corpus is empty")
	}

	users := make(map[string]bool)
	for _, u := range corpus.Users {
		users[u.UserID] = true
	}
	content := make(map[string]bool)
	for _, c := range corpus.Content {
		content[c.ContentID] = true
	}

	for _, ev := range corpus.Interactions {
		if !users[ev.UserID] {
			t.Errorf("event %s references unknown user %s", ev.ID, ev.UserID)
		}
		if !content[ev.ContentID] {
			t.Errorf("event %s references unknown content %s", ev.ID, ev.ContentID)
		}
	}

	for _, tc := range corpus.Cases {
		if !users[tc.UserID] {
			t.Errorf("case %q references unknown user %s", tc.Description, tc.UserID)
		}
		interacted := corpus.InteractedBy(tc.UserID)
		for _, id := range tc.ExpectedIDs {
			if !content[id] {
				t.Errorf("case %q expects unknown content %s", tc.Description, id)
			}
			if interacted[id] {
				t.Errorf("case %q expects %s, which %s already interacted with", tc.Description, id, tc.UserID)
			}
		}
		for _, id := range tc.ExcludedIDs {
			if !interacted[id] {
				t.Errorf("case %q excludes %s, but %s never interacted with it", tc.Description, id, tc.UserID)
			}
		}
	}
}
