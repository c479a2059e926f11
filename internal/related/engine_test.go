package related

import (
	"context"
	"testing"
	"time"

	"almofadaria/backend/internal/cache"
	"almofadaria/backend/internal/domain"
	"almofadaria/backend/internal/store/memory"
)

const (
	storeA = domain.StoreID("loja-centro")
	storeB = domain.StoreID("loja-shopping")
)

func newTestEngine(t *testing.T) (*Engine, *memory.Store) {
	t.Helper()
	repo := memory.NewSeeded(storeA, storeB)
	return NewEngine(repo, cache.NoopSuggestionCache{}, time.Second), repo
}

func TestSuggestPicksFamilySibling(t *testing.T) {
	engine, _ := newTestEngine(t)

	resp, err := engine.Suggest(context.Background(), domain.SuggestionRequest{
		ProductIDs: []string{"prod-lisa-verde"},
	})
	if err != nil {
		t.Fatalf("suggest: %v", err)
	}
	if resp.Suggestion == nil {
		t.Fatalf("expected a suggestion for a product with in-stock siblings")
	}
	got := resp.Suggestion.ProductID
	if got != "prod-lisa-azul" && got != "prod-lisa-azul-marinho" {
		t.Fatalf("suggestion should come from the lisa family, got %s", got)
	}
	if resp.Suggestion.ReasonCode != "same_family_other_color" {
		t.Fatalf("unexpected reason %q", resp.Suggestion.ReasonCode)
	}
	if !resp.UIPolicy.Show {
		t.Fatalf("fresh suggestion should be shown")
	}
}

func TestSuggestNeverReturnsCartProduct(t *testing.T) {
	engine, _ := newTestEngine(t)

	cartIDs := []string{"prod-lisa-verde", "prod-lisa-azul", "prod-lisa-azul-marinho"}
	resp, err := engine.Suggest(context.Background(), domain.SuggestionRequest{ProductIDs: cartIDs})
	if err != nil {
		t.Fatalf("suggest: %v", err)
	}
	if resp.Suggestion != nil {
		for _, id := range cartIDs {
			if resp.Suggestion.ProductID == id {
				t.Fatalf("suggested a product already in the cart: %s", id)
			}
		}
	}
}

func TestSuggestSkipsOutOfStockSiblings(t *testing.T) {
	engine, _ := newTestEngine(t)

	// Tricot Terracota is the only sibling of Tricot Cru and has no stock
	// anywhere, so nothing can be suggested.
	resp, err := engine.Suggest(context.Background(), domain.SuggestionRequest{
		ProductIDs: []string{"prod-tricot-cru"},
	})
	if err != nil {
		t.Fatalf("suggest: %v", err)
	}
	if resp.Suggestion != nil {
		t.Fatalf("out-of-stock sibling must not be suggested: %+v", resp.Suggestion)
	}
	if resp.UIPolicy.Show {
		t.Fatalf("widget should hide when there is nothing to offer")
	}
}

func TestSuggestCooldownGrows(t *testing.T) {
	engine, _ := newTestEngine(t)

	first, err := engine.Suggest(context.Background(), domain.SuggestionRequest{
		ProductIDs:  []string{"prod-lisa-verde"},
		PromptCount: 0,
	})
	if err != nil {
		t.Fatalf("suggest: %v", err)
	}
	second, err := engine.Suggest(context.Background(), domain.SuggestionRequest{
		ProductIDs:  []string{"prod-lisa-verde"},
		PromptCount: 2,
	})
	if err != nil {
		t.Fatalf("suggest: %v", err)
	}
	if second.UIPolicy.CooldownSeconds <= first.UIPolicy.CooldownSeconds {
		t.Fatalf("cooldown should grow with prompt count: %d vs %d",
			first.UIPolicy.CooldownSeconds, second.UIPolicy.CooldownSeconds)
	}
}

type recordingCache struct {
	getKeys []string
}

func (c *recordingCache) Get(_ context.Context, key string) (*domain.SuggestionResponse, bool, error) {
	c.getKeys = append(c.getKeys, key)
	return nil, false, nil
}

func (c *recordingCache) Set(_ context.Context, _ string, _ *domain.SuggestionResponse, _ time.Duration) error {
	return nil
}

func TestStockChangeInvalidatesCachedSuggestions(t *testing.T) {
	repo := memory.NewSeeded(storeA, storeB)
	rec := &recordingCache{}
	engine := NewEngine(repo, rec, time.Minute)

	req := domain.SuggestionRequest{ProductIDs: []string{"prod-lisa-verde"}}
	if _, err := engine.Suggest(context.Background(), req); err != nil {
		t.Fatalf("suggest: %v", err)
	}
	if _, err := repo.AdjustStock(context.Background(), "prod-lisa-azul", domain.Size45x45, storeA, -1); err != nil {
		t.Fatalf("adjust: %v", err)
	}
	if _, err := engine.Suggest(context.Background(), req); err != nil {
		t.Fatalf("suggest after stock change: %v", err)
	}

	if len(rec.getKeys) != 2 {
		t.Fatalf("expected 2 cache lookups, got %d", len(rec.getKeys))
	}
	if rec.getKeys[0] == rec.getKeys[1] {
		t.Fatalf("stock movement must rotate the cache key")
	}
}

func TestRelatedColorsExcludesSelf(t *testing.T) {
	engine, _ := newTestEngine(t)

	resp, err := engine.RelatedColors(context.Background(), "prod-lisa-azul")
	if err != nil {
		t.Fatalf("related colors: %v", err)
	}
	for _, p := range resp.Products {
		if p.ID == "prod-lisa-azul" {
			t.Fatalf("a product is not its own sibling")
		}
	}
	if len(resp.Products) != 2 {
		t.Fatalf("expected 2 lisa siblings, got %d", len(resp.Products))
	}
}
