package search

import (
	"testing"

	"github.com/MartinInglin/da-bubble-sub000/pkg/models"
)

func testSnapshot() Snapshot {
	return Snapshot{
		Channels: []models.Channel{
			{ID: "c1", Name: "general", Description: "everyday chat", Posts: []models.Post{
				{ID: "p1", Message: "deploy is done"},
				{ID: "p2", Message: "lunch anyone?"},
			}},
			{ID: "c2", Name: "platform", Description: "deploy pipeline"},
		},
		Users: []models.User{
			{ID: "u1", Name: "Ada", Email: "ada@example.com"},
			{ID: "u2", Name: "Bob", Email: "bob@deploys.example.com"},
		},
		DirectMessages: []models.DirectMessage{
			{ID: "dm1", Posts: []models.Post{
				{ID: "p3", Message: "the deploy broke again"},
			}},
		},
	}
}

func countKind(results []Result, k Kind) int {
	n := 0
	for _, r := range results {
		if r.Kind == k {
			n++
		}
	}
	return n
}

func TestQueryMatchesAcrossKinds(t *testing.T) {
	results := Query("deploy", testSnapshot())

	if got := countKind(results, KindChannel); got != 1 {
		t.Fatalf("channel matches = %d", got)
	}
	if got := countKind(results, KindUser); got != 1 {
		t.Fatalf("user matches = %d", got)
	}
	if got := countKind(results, KindPost); got != 2 {
		t.Fatalf("post matches = %d", got)
	}
	for _, r := range results {
		switch r.Kind {
		case KindChannel:
			if r.Channel == nil || r.Channel.ID != "c2" {
				t.Fatalf("channel result = %+v", r)
			}
		case KindUser:
			if r.User == nil || r.User.ID != "u2" {
				t.Fatalf("user result = %+v", r)
			}
		case KindPost:
			if r.Post == nil || r.ParentID == "" {
				t.Fatalf("post result missing parent: %+v", r)
			}
		}
	}
}

func TestQueryPostsCarryParent(t *testing.T) {
	results := Query("lunch", testSnapshot())
	if len(results) != 1 {
		t.Fatalf("results = %+v", results)
	}
	r := results[0]
	if r.Kind != KindPost || r.Post.ID != "p2" || r.ParentID != "c1" {
		t.Fatalf("result = %+v", r)
	}
}

func TestQueryDirectMessagePosts(t *testing.T) {
	results := Query("broke", testSnapshot())
	if len(results) != 1 || results[0].ParentID != "dm1" {
		t.Fatalf("results = %+v", results)
	}
}

func TestQueryCaseInsensitive(t *testing.T) {
	results := Query("GENERAL", testSnapshot())
	if countKind(results, KindChannel) != 1 {
		t.Fatalf("results = %+v", results)
	}
}

func TestQueryUserByEmail(t *testing.T) {
	results := Query("ada@example", testSnapshot())
	if len(results) != 1 || results[0].Kind != KindUser || results[0].User.ID != "u1" {
		t.Fatalf("results = %+v", results)
	}
}

func TestQueryBlankMatchesNothing(t *testing.T) {
	if got := Query("", testSnapshot()); got != nil {
		t.Fatalf("empty query: %+v", got)
	}
	if got := Query("   ", testSnapshot()); got != nil {
		t.Fatalf("whitespace query: %+v", got)
	}
}

func TestQueryNoMatches(t *testing.T) {
	if got := Query("zzzz", testSnapshot()); len(got) != 0 {
		t.Fatalf("results = %+v", got)
	}
}
