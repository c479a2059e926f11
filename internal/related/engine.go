// Package related suggests other colors of cushions the customer is already
// looking at. Candidates come from the family grouping; anything out of
// stock or already in the cart is never suggested.
package related

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"almofadaria/backend/internal/cache"
	"almofadaria/backend/internal/domain"
	"almofadaria/backend/internal/family"
	"almofadaria/backend/internal/stock"
	"almofadaria/backend/internal/store"
)

const (
	minConfidence       = 0.35
	baseCooldownSeconds = 45
)

type Engine struct {
	repo  store.Repository
	cache cache.SuggestionCache
	ttl   time.Duration

	// generation invalidates cached suggestions whenever stock moves, so a
	// sibling that just sold out stops being offered before the TTL runs.
	generation atomic.Uint64
}

func NewEngine(repo store.Repository, suggestionCache cache.SuggestionCache, ttl time.Duration) *Engine {
	if suggestionCache == nil {
		suggestionCache = cache.NoopSuggestionCache{}
	}
	if ttl <= 0 {
		ttl = 20 * time.Second
	}
	e := &Engine{repo: repo, cache: suggestionCache, ttl: ttl}
	repo.SubscribeStockChanges(func(domain.StockChange) {
		e.generation.Add(1)
	})
	return e
}

// RelatedColors lists the active products sharing the given product's
// family, i.e. the same cushion in other colors. Out-of-stock siblings are
// included here; the catalog page greys them out.
func (e *Engine) RelatedColors(ctx context.Context, productID string) (*domain.RelatedColorsResponse, error) {
	catalog, err := e.repo.ListProducts(ctx)
	if err != nil {
		return nil, err
	}

	vocab := catalogVocabulary(catalog)
	var target *domain.Product
	for i := range catalog {
		if catalog[i].ID == productID {
			target = &catalog[i]
			break
		}
	}
	if target == nil {
		// Inactive products are absent from the catalog listing.
		p, err := e.repo.GetProduct(ctx, productID)
		if err != nil {
			return nil, err
		}
		target = p
	}

	key := family.KeyOf(*target, vocab)
	siblings := make([]domain.Product, 0, 4)
	for _, p := range catalog {
		if p.ID == productID {
			continue
		}
		if family.KeyOf(p, vocab) == key {
			siblings = append(siblings, p)
		}
	}
	sort.Slice(siblings, func(i, j int) bool { return siblings[i].Name < siblings[j].Name })

	return &domain.RelatedColorsResponse{
		ProductID: productID,
		FamilyKey: key,
		Products:  siblings,
	}, nil
}

// Suggest picks at most one in-stock family sibling of the cart's products
// to offer at the point of sale. Results are cached briefly so a busy
// counter does not recompute the catalog scan on every keystroke.
func (e *Engine) Suggest(ctx context.Context, req domain.SuggestionRequest) (*domain.SuggestionResponse, error) {
	started := time.Now()

	key := cacheKey(req, e.generation.Load())
	if cached, ok, err := e.cache.Get(ctx, key); err == nil && ok {
		cached.LatencyMS = time.Since(started).Milliseconds()
		return cached, nil
	}

	catalog, err := e.repo.ListProducts(ctx)
	if err != nil {
		return nil, err
	}

	vocab := catalogVocabulary(catalog)
	byID := make(map[string]domain.Product, len(catalog))
	for _, p := range catalog {
		byID[p.ID] = p
	}

	inCart := make(map[string]struct{}, len(req.ProductIDs))
	cartFamilies := make(map[string]struct{}, len(req.ProductIDs))
	for _, id := range req.ProductIDs {
		inCart[id] = struct{}{}
		if p, ok := byID[id]; ok {
			cartFamilies[family.KeyOf(p, vocab)] = struct{}{}
		}
	}

	best := scoreCandidates(catalog, vocab, inCart, cartFamilies)
	resp := &domain.SuggestionResponse{
		UIPolicy: uiPolicy(best != nil, req.PromptCount),
	}
	if best != nil {
		resp.Suggestion = best
	}
	resp.LatencyMS = time.Since(started).Milliseconds()

	// Cache writes are best-effort; the suggestion goes out either way.
	_ = e.cache.Set(ctx, key, resp, e.ttl)
	return resp, nil
}

func scoreCandidates(catalog []domain.Product, vocab family.Vocabulary, inCart map[string]struct{}, cartFamilies map[string]struct{}) *domain.Suggestion {
	var best *domain.Suggestion
	bestScore := 0.0
	for _, p := range catalog {
		if _, taken := inCart[p.ID]; taken {
			continue
		}
		if _, sameFamily := cartFamilies[family.KeyOf(p, vocab)]; !sameFamily {
			continue
		}

		available := 0
		for _, v := range p.Variations {
			available += stock.TotalAvailable(v)
		}
		if available == 0 {
			continue
		}

		score := confidence(available, p.UnitsSold)
		if score < minConfidence {
			continue
		}
		if best == nil || score > bestScore || (score == bestScore && p.Name < best.Name) {
			best = &domain.Suggestion{
				ProductID:  p.ID,
				Name:       p.Name,
				Colors:     p.Colors,
				ReasonCode: "same_family_other_color",
				Confidence: score,
			}
			bestScore = score
		}
	}
	return best
}

// confidence blends stock depth and sales history into (0, 1). Deep stock
// and a sales record push the score up; both saturate quickly.
func confidence(available int, unitsSold int) float64 {
	stockScore := float64(available) / float64(available+3)
	salesScore := float64(unitsSold) / float64(unitsSold+10)
	return 0.4 + 0.35*stockScore + 0.25*salesScore
}

// uiPolicy backs off repeated prompts within one checkout: each prompt
// already shown doubles the cooldown, and once nothing scores high enough
// the widget hides entirely.
func uiPolicy(hasSuggestion bool, promptCount int) domain.UIPolicy {
	if !hasSuggestion {
		return domain.UIPolicy{Show: false, CooldownSeconds: baseCooldownSeconds}
	}
	if promptCount < 0 {
		promptCount = 0
	}
	if promptCount > 4 {
		return domain.UIPolicy{Show: false, CooldownSeconds: baseCooldownSeconds * 16}
	}
	cooldown := baseCooldownSeconds
	for i := 0; i < promptCount; i++ {
		cooldown *= 2
	}
	return domain.UIPolicy{Show: true, CooldownSeconds: cooldown}
}

func cacheKey(req domain.SuggestionRequest, generation uint64) string {
	ids := make([]string, len(req.ProductIDs))
	copy(ids, req.ProductIDs)
	sort.Strings(ids)
	sum := sha1.Sum([]byte(strings.Join(ids, "|")))
	return fmt.Sprintf("suggestion:%d:%s", generation, hex.EncodeToString(sum[:]))
}

func catalogVocabulary(catalog []domain.Product) family.Vocabulary {
	colors := make([]domain.Color, 0, len(catalog)*2)
	for _, p := range catalog {
		colors = append(colors, p.Colors...)
	}
	return family.NewVocabulary(colors)
}
