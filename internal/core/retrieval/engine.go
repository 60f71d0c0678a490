package retrieval

import (
	"context"
	"log"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/docuquery/docuquery/internal/core"
	"github.com/docuquery/docuquery/internal/models"
)

// LexicalIndex issues term-overlap (BM25-style) queries filtered to one user.
type LexicalIndex interface {
	Query(ctx context.Context, userID, query string, topN int) ([]models.ScoredChunk, error)
}

// SemanticIndex issues nearest-neighbor queries filtered to one user.
type SemanticIndex interface {
	Query(ctx context.Context, userID, query string, topN int) ([]models.ScoredChunk, error)
}

// Config tunes the fusion step.
//
// LexicalWeight/SemanticWeight: fusion weights over normalized scores.
// CandidateMultiplier:          each adapter is asked for multiplier*k hits
//                               so fusion has enough candidates.
// AdapterTimeout:               per-adapter wall clock bound; a slow adapter
//                               counts as failed, not an indefinite block.
type Config struct {
	LexicalWeight       float64
	SemanticWeight      float64
	CandidateMultiplier int
	AdapterTimeout      time.Duration
}

// Engine fans a query out to the lexical and semantic indexes concurrently,
// normalizes both score spaces to [0,1], and fuses them into one ranked,
// deduplicated context set. A chunk never crosses user boundaries: both
// adapters filter by user_id server-side.
type Engine struct {
	lexical  LexicalIndex
	semantic SemanticIndex
	cfg      Config
}

func NewEngine(lexical LexicalIndex, semantic SemanticIndex, cfg Config) *Engine {
	if cfg.LexicalWeight <= 0 && cfg.SemanticWeight <= 0 {
		cfg.LexicalWeight, cfg.SemanticWeight = 0.5, 0.5
	}
	if cfg.CandidateMultiplier <= 0 {
		cfg.CandidateMultiplier = 3
	}
	if cfg.AdapterTimeout <= 0 {
		cfg.AdapterTimeout = 5 * time.Second
	}
	return &Engine{lexical: lexical, semantic: semantic, cfg: cfg}
}

// Search returns at most k fused chunks for the user's query, best first.
// An empty result with a nil error means "no relevant context" - a valid
// outcome, not a failure. core.ErrRetrievalUnavailable is returned only when
// both adapters failed.
func (e *Engine) Search(ctx context.Context, userID, query string, k int) ([]models.RetrievedChunk, error) {
	if k <= 0 {
		k = 5
	}
	topN := k * e.cfg.CandidateMultiplier

	var lexHits, semHits []models.ScoredChunk
	var lexErr, semErr error

	// Fan out both index queries; each gets its own deadline so one slow
	// backend cannot stall the whole query. Adapter errors are collected,
	// not propagated - degradation is decided after the join.
	g := new(errgroup.Group)
	g.Go(func() error {
		qctx, cancel := context.WithTimeout(ctx, e.cfg.AdapterTimeout)
		defer cancel()
		lexHits, lexErr = e.lexical.Query(qctx, userID, query, topN)
		return nil
	})
	g.Go(func() error {
		qctx, cancel := context.WithTimeout(ctx, e.cfg.AdapterTimeout)
		defer cancel()
		semHits, semErr = e.semantic.Query(qctx, userID, query, topN)
		return nil
	})
	_ = g.Wait()

	if lexErr != nil && semErr != nil {
		log.Printf("retrieval: user=%s both adapters failed: lexical=%v semantic=%v", userID, lexErr, semErr)
		return nil, core.ErrRetrievalUnavailable
	}
	if lexErr != nil {
		log.Printf("retrieval: user=%s lexical adapter failed, degrading to semantic: %v", userID, lexErr)
	}
	if semErr != nil {
		log.Printf("retrieval: user=%s semantic adapter failed, degrading to lexical: %v", userID, semErr)
	}

	fused := fuse(lexHits, semHits, e.cfg.LexicalWeight, e.cfg.SemanticWeight)
	if len(fused) > k {
		fused = fused[:k]
	}
	return fused, nil
}

// fuse merges the two candidate sets by weighted sum of min-max normalized
// scores. A chunk appearing in both sets gets both contributions, so
// agreement between the lexical and semantic signals outranks strength in
// only one.
func fuse(lexHits, semHits []models.ScoredChunk, wLex, wSem float64) []models.RetrievedChunk {
	byID := make(map[string]*models.RetrievedChunk, len(lexHits)+len(semHits))
	order := make([]string, 0, len(lexHits)+len(semHits))

	add := func(hits []models.ScoredChunk, weight float64, source models.MatchSource) {
		norm := normalize(hits)
		for i, h := range hits {
			if cur, ok := byID[h.Chunk.ID]; ok {
				cur.Score += weight * norm[i]
				cur.Source = models.MatchBoth
				continue
			}
			byID[h.Chunk.ID] = &models.RetrievedChunk{
				Chunk:  h.Chunk,
				Score:  weight * norm[i],
				Source: source,
			}
			order = append(order, h.Chunk.ID)
		}
	}
	add(lexHits, wLex, models.MatchLexical)
	add(semHits, wSem, models.MatchSemantic)

	out := make([]models.RetrievedChunk, 0, len(order))
	for _, id := range order {
		out = append(out, *byID[id])
	}

	// Descending by fused score; ties prefer agreement across sources, then
	// the earlier chunk in its source document, for determinism.
	sort.SliceStable(out, func(a, b int) bool {
		if out[a].Score != out[b].Score {
			return out[a].Score > out[b].Score
		}
		if (out[a].Source == models.MatchBoth) != (out[b].Source == models.MatchBoth) {
			return out[a].Source == models.MatchBoth
		}
		return out[a].Chunk.Position < out[b].Chunk.Position
	})
	return out
}

// normalize min-max scales raw scores to [0,1] within one candidate set.
// A single-result set gets fixed score 1.0.
func normalize(hits []models.ScoredChunk) []float64 {
	out := make([]float64, len(hits))
	if len(hits) == 0 {
		return out
	}
	min, max := hits[0].Score, hits[0].Score
	for _, h := range hits[1:] {
		if h.Score < min {
			min = h.Score
		}
		if h.Score > max {
			max = h.Score
		}
	}
	for i, h := range hits {
		if max == min {
			out[i] = 1.0
			continue
		}
		out[i] = (h.Score - min) / (max - min)
	}
	return out
}
