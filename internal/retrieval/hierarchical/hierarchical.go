// Package hierarchical implements the hierarchical retriever: it
// decomposes complex queries into weighted sub-queries, fans them out to
// the distributed retriever, and merges/reranks the combined results.
package hierarchical

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"github.com/Basilakis/kai-sub004/internal/config"
	"github.com/Basilakis/kai-sub004/internal/domain"
	"github.com/Basilakis/kai-sub004/internal/llm"
	"github.com/Basilakis/kai-sub004/internal/retrieval/distributed"
)

var conjunctions = []string{"and", "or", "versus", "vs", "compared to", "as well as"}

var materialTypeLexicon = []string{
	"wood", "tile", "stone", "metal", "fabric", "carpet", "concrete",
	"glass", "laminate", "vinyl", "marble", "granite", "ceramic", "brick",
}

var propertyLexicon = []string{
	"durable", "waterproof", "scratch-resistant", "eco-friendly",
	"slip-resistant", "fire-resistant", "insulating", "textured",
	"glossy", "matte", "affordable", "heavy-duty",
}

const decompositionPrompt = `Break the following materials-search query into up to %d independent sub-queries.
Respond with a JSON array only, each element shaped as {"query": string, "weight": number, "aspect": string}.
Weights need not sum to 1. Query: %s`

// Retriever is the hierarchical retriever. It wraps a base distributed
// retriever and an optional LLM collaborator for decomposition.
type Retriever struct {
	base *distributed.Retriever
	llmc llm.Client
	cfg  config.HierarchicalRetrieverConfig
}

// New builds a Retriever over base, optionally using llmClient for
// LLM-based query decomposition (nil falls back to rule-based splitting).
func New(base *distributed.Retriever, llmClient llm.Client, cfg config.HierarchicalRetrieverConfig) *Retriever {
	return &Retriever{base: base, llmc: llmClient, cfg: cfg}
}

// Retrieve decomposes query when it is judged complex, fans out to the
// base retriever, then merges and reranks. Simple queries pass straight
// through to the base retriever.
func (r *Retriever) Retrieve(ctx context.Context, query string, opts distributed.RetrieveOptions) (*domain.RetrievalResult, error) {
	if !r.isComplex(query) {
		return r.base.Retrieve(ctx, query, opts)
	}

	subQueries := r.decompose(ctx, query)
	if len(subQueries) <= 1 {
		return r.base.Retrieve(ctx, query, opts)
	}
	return r.retrieveSubQueries(ctx, query, subQueries, opts)
}

// isComplex reports whether query is worth decomposing.
func (r *Retriever) isComplex(query string) bool {
	if len(query) < r.cfg.MinQueryLength {
		return false
	}
	lower := strings.ToLower(query)

	if strings.Count(query, "?") > 1 {
		return true
	}
	for _, c := range conjunctions {
		if strings.Contains(" "+lower+" ", " "+c+" ") {
			return true
		}
	}
	if countLexiconHits(lower, materialTypeLexicon) >= 2 {
		return true
	}
	if countLexiconHits(lower, propertyLexicon) >= 2 {
		return true
	}
	return false
}

func countLexiconHits(lower string, lexicon []string) int {
	hits := 0
	for _, term := range lexicon {
		if strings.Contains(lower, term) {
			hits++
		}
	}
	return hits
}

type decomposedQuery struct {
	Query  string  `json:"query"`
	Weight float64 `json:"weight"`
	Aspect string  `json:"aspect"`
}

// decompose returns sub-queries for query, trying the LLM path first and
// falling back to rule-based splitting when the client is unavailable or
// its response doesn't parse.
func (r *Retriever) decompose(ctx context.Context, query string) []domain.SubQuery {
	if r.llmc != nil {
		if sub := r.decomposeWithLLM(ctx, query); sub != nil {
			return sub
		}
	}
	return r.decomposeByRule(query)
}

func (r *Retriever) decomposeWithLLM(ctx context.Context, query string) []domain.SubQuery {
	prompt := fmt.Sprintf(decompositionPrompt, r.cfg.MaxSubQueries, query)
	raw, err := r.llmc.ChatCompletion(ctx, r.cfg.QueryDecompositionModel, []domain.Message{
		{Role: "system", Content: "You decompose materials-search queries into JSON sub-queries."},
		{Role: "user", Content: prompt},
	}, 0.0, 512)
	if err != nil {
		return nil
	}

	var parsed []decomposedQuery
	if err := json.Unmarshal([]byte(extractJSONArray(raw)), &parsed); err != nil {
		return nil
	}
	if len(parsed) == 0 {
		return nil
	}
	parsed = lo.Filter(parsed, func(p decomposedQuery, _ int) bool { return p.Query != "" })
	if len(parsed) == 0 {
		return nil
	}
	if len(parsed) > r.cfg.MaxSubQueries {
		parsed = parsed[:r.cfg.MaxSubQueries]
	}

	total := lo.SumBy(parsed, func(p decomposedQuery) float64 { return p.Weight })
	return lo.Map(parsed, func(p decomposedQuery, _ int) domain.SubQuery {
		weight := p.Weight / total
		if total <= 0 {
			weight = 1.0 / float64(len(parsed))
		}
		return domain.SubQuery{Query: p.Query, Weight: weight, Aspect: p.Aspect}
	})
}

// decomposeByRule splits on '?' first, then on the first matching
// conjunction, assigning equal weights across the resulting fragments.
func (r *Retriever) decomposeByRule(query string) []domain.SubQuery {
	var fragments []string
	if strings.Contains(query, "?") {
		for _, part := range strings.Split(query, "?") {
			part = strings.TrimSpace(part)
			if part != "" {
				fragments = append(fragments, part+"?")
			}
		}
	} else {
		lower := strings.ToLower(query)
		for _, c := range conjunctions {
			if idx := strings.Index(lower, " "+c+" "); idx >= 0 {
				left := strings.TrimSpace(query[:idx])
				right := strings.TrimSpace(query[idx+len(c)+2:])
				if left != "" {
					fragments = append(fragments, left)
				}
				if right != "" {
					fragments = append(fragments, right)
				}
				break
			}
		}
	}
	if len(fragments) == 0 {
		fragments = []string{query}
	}
	if len(fragments) > r.cfg.MaxSubQueries {
		fragments = fragments[:r.cfg.MaxSubQueries]
	}

	weight := 1.0 / float64(len(fragments))
	subQueries := make([]domain.SubQuery, len(fragments))
	for i, f := range fragments {
		subQueries[i] = domain.SubQuery{Query: f, Weight: weight}
	}
	return subQueries
}

// retrieveSubQueries fans sub-queries out to the base retriever
// concurrently, tags each material with its originating sub-query, then
// combines and reranks.
func (r *Retriever) retrieveSubQueries(ctx context.Context, originalQuery string, subQueries []domain.SubQuery, opts distributed.RetrieveOptions) (*domain.RetrievalResult, error) {
	perQuery := make([][]domain.Material, len(subQueries))

	var g errgroup.Group
	g.SetLimit(len(subQueries))

	for i, sq := range subQueries {
		i, sq := i, sq
		g.Go(func() error {
			result, err := r.base.Retrieve(ctx, sq.Query, opts)
			if err != nil {
				return nil
			}
			tagged := make([]domain.Material, len(result.Materials))
			for j, m := range result.Materials {
				m = m.Clone()
				q := sq.Query
				m.SubQuery = &q
				tagged[j] = m
			}
			perQuery[i] = tagged
			return nil
		})
	}
	_ = g.Wait()

	combined := combine(perQuery, subQueries)
	if r.cfg.ReRankingEnabled {
		rerank(combined, originalQuery, subQueries)
	} else {
		sort.SliceStable(combined, func(i, j int) bool {
			return combined[i].Score > combined[j].Score
		})
	}

	subQueryMeta := lo.Map(subQueries, func(sq domain.SubQuery, _ int) map[string]any {
		return map[string]any{"query": sq.Query, "weight": sq.Weight, "aspect": sq.Aspect}
	})

	return &domain.RetrievalResult{
		Materials: combined,
		Metadata: map[string]any{
			"decomposed":  true,
			"sub_queries": subQueryMeta,
		},
	}, nil
}

type accumulator struct {
	material    domain.Material
	weightedSum float64
	weightTotal float64
	coverage    float64
}

// combine deduplicates materials by id across sub-query result sets. On
// collision the merged score is the weighted mean of per-sub-query scores
// and sub_query_coverage accumulates the weights of every sub-query that
// retrieved the material.
func combine(perQuery [][]domain.Material, subQueries []domain.SubQuery) []domain.Material {
	acc := make(map[string]*accumulator)
	var order []string

	for i, materials := range perQuery {
		weight := subQueries[i].Weight
		for _, m := range materials {
			a, ok := acc[m.ID]
			if !ok {
				a = &accumulator{material: m}
				acc[m.ID] = a
				order = append(order, m.ID)
			}
			a.weightedSum += m.Score * weight
			a.weightTotal += weight
			a.coverage += weight
		}
	}

	out := make([]domain.Material, 0, len(order))
	for _, id := range order {
		a := acc[id]
		merged := a.material
		if a.weightTotal > 0 {
			merged.Score = a.weightedSum / a.weightTotal
		}
		merged.Coverage = a.coverage
		out = append(out, merged)
	}
	return out
}

// rerank applies the convex combination of base score, query term overlap
// and sub-query coverage, then sorts descending with a stable tie-break on
// original (pre-rerank) order.
func rerank(materials []domain.Material, originalQuery string, subQueries []domain.SubQuery) {
	queryTerms := tokenize(originalQuery)
	for i := range materials {
		m := &materials[i]
		corpus := m.Name + " " + m.Description + " " + m.MaterialType
		m.Overlap = termOverlap(queryTerms, tokenize(corpus))
		rerankScore := 0.6*m.Score + 0.2*m.Overlap + 0.2*m.Coverage
		m.Score = rerankScore
	}
	sort.SliceStable(materials, func(i, j int) bool {
		return materials[i].Score > materials[j].Score
	})
}

func tokenize(s string) map[string]bool {
	terms := map[string]bool{}
	for _, t := range strings.Fields(strings.ToLower(s)) {
		terms[t] = true
	}
	return terms
}

func termOverlap(query, material map[string]bool) float64 {
	if len(query) == 0 {
		return 0
	}
	matches := 0
	for t := range query {
		if material[t] {
			matches++
		}
	}
	return float64(matches) / float64(len(query))
}

// extractJSONArray returns the substring spanning the first top-level '['
// to its matching ']', tolerating models that wrap the array in prose.
func extractJSONArray(s string) string {
	start := strings.Index(s, "[")
	end := strings.LastIndex(s, "]")
	if start < 0 || end < start {
		return s
	}
	return s[start : end+1]
}
