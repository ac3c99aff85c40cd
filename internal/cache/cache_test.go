package cache

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/medquill/medquill/pipeline/pkg/models"
)

func TestKey_Deterministic(t *testing.T) {
	a := Key("section_draft", "same prompt", models.TierMini)
	b := Key("section_draft", "same prompt", models.TierMini)
	if a != b {
		t.Errorf("identical inputs produced different keys: %s vs %s", a, b)
	}
	if !strings.HasPrefix(a, "medquill:resp:") {
		t.Errorf("key missing namespace prefix: %s", a)
	}
}

func TestKey_SensitiveToEveryInput(t *testing.T) {
	base := Key("section_draft", "prompt", models.TierMini)

	if Key("abstract", "prompt", models.TierMini) == base {
		t.Error("task type must participate in the key")
	}
	if Key("section_draft", "other prompt", models.TierMini) == base {
		t.Error("prompt must participate in the key")
	}
	if Key("section_draft", "prompt", models.TierFrontier) == base {
		t.Error("tier must participate in the key")
	}
}

func TestKey_FieldBoundaries(t *testing.T) {
	// Concatenation ambiguity: ("ab","c") and ("a","bc") must not collide.
	if Key("ab", "c", models.TierMini) == Key("a", "bc", models.TierMini) {
		t.Error("adjacent fields collide without a separator")
	}
}

func TestMemoryCache_RoundTrip(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()
	key := Key("section_draft", "prompt", models.TierMini)

	if _, ok := c.Get(ctx, key); ok {
		t.Error("empty cache reported a hit")
	}

	resp := &models.AIInvocationResponse{Content: "cached [1]."}
	c.Set(ctx, key, resp, time.Minute)

	got, ok := c.Get(ctx, key)
	if !ok {
		t.Fatal("expected a hit after Set")
	}
	if got.Content != resp.Content {
		t.Errorf("Content = %q, want %q", got.Content, resp.Content)
	}
}

func TestMemoryCache_TTLExpiry(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()
	key := Key("section_draft", "prompt", models.TierMini)

	c.Set(ctx, key, &models.AIInvocationResponse{Content: "ephemeral"}, 10*time.Millisecond)
	time.Sleep(25 * time.Millisecond)

	if _, ok := c.Get(ctx, key); ok {
		t.Error("expired entry reported a hit")
	}
}
