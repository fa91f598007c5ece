// Package fusion implements cross-modal attention: fusing a text query
// with visual signals extracted from an image, or synthesizing a text
// query from an image alone when none was supplied.
package fusion

import (
	"context"
	"fmt"
	"strings"

	"github.com/Basilakis/kai-sub004/internal/config"
	"github.com/Basilakis/kai-sub004/internal/domain"
	"github.com/Basilakis/kai-sub004/internal/embedding"
	"github.com/Basilakis/kai-sub004/internal/llm"
)

const defaultGeneratedQuery = "What materials are in this image?"

const enhanceSystemPrompt = "You are a materials domain expert. Fuse the user's text query with the described visual context into a single, search-ready query. Respond with the query text only."

const describeSystemPrompt = "You are a materials domain expert. Describe, as a natural-language search query, what material the described visual context suggests. Respond with the query text only."

// Options carries the per-call knobs for ProcessMultiModalQuery.
type Options struct {
	Model string
}

// Fusion processes multi-modal queries. It holds no state of its own: each
// call is a pure function of its inputs plus the vision/LLM collaborators.
type Fusion struct {
	vision embedding.VisionModel
	llmc   llm.Client
	cfg    config.CrossModalConfig
}

// New builds a Fusion over the given vision and LLM collaborators.
func New(vision embedding.VisionModel, llmClient llm.Client, cfg config.CrossModalConfig) *Fusion {
	return &Fusion{vision: vision, llmc: llmClient, cfg: cfg}
}

// ProcessMultiModalQuery extracts visual context from imageData (when
// present) and combines it with textQuery (when present) into an
// EnhancedQuery, or synthesizes a GeneratedTextQuery when textQuery is
// nil.
func (f *Fusion) ProcessMultiModalQuery(ctx context.Context, textQuery *string, imageData []byte, opts Options) (*domain.FusionResult, error) {
	result := &domain.FusionResult{}

	var visualCtx *domain.VisualContext
	if len(imageData) > 0 {
		vc, err := f.extractVisualContext(ctx, imageData)
		if err != nil {
			return nil, domain.NewDependencyError("vision", "extract visual context", err)
		}
		visualCtx = vc
		result.VisualContext = vc
	}

	switch {
	case textQuery != nil && visualCtx != nil:
		enhanced := f.enhanceQuery(ctx, *textQuery, visualCtx, opts.Model)
		result.EnhancedQuery = &enhanced
	case textQuery != nil:
		result.EnhancedQuery = textQuery
	case visualCtx != nil:
		generated := f.describeVisualContext(ctx, visualCtx, opts.Model)
		result.GeneratedTextQuery = &generated
	}

	return result, nil
}

func (f *Fusion) extractVisualContext(ctx context.Context, imageData []byte) (*domain.VisualContext, error) {
	materials, err := f.vision.DetectMaterials(ctx, imageData)
	if err != nil {
		return nil, err
	}
	colors, err := f.vision.AnalyzeColors(ctx, imageData)
	if err != nil {
		return nil, err
	}
	textures, err := f.vision.AnalyzeTextures(ctx, imageData)
	if err != nil {
		return nil, err
	}

	detected := make([]domain.DetectedMaterial, len(materials))
	for i, m := range materials {
		detected[i] = domain.DetectedMaterial{Name: m, Confidence: 1.0}
	}
	palette := make([]domain.PaletteEntry, 0, len(colors))
	for name, pct := range colors {
		palette = append(palette, domain.PaletteEntry{Name: name, Percentage: pct})
	}
	textureEntries := make([]domain.TextureEntry, 0, len(textures))
	for name, conf := range textures {
		textureEntries = append(textureEntries, domain.TextureEntry{Name: name, Confidence: conf})
	}

	return &domain.VisualContext{
		DetectedMaterials: detected,
		Palette:           palette,
		Textures:          textureEntries,
	}, nil
}

// enhanceQuery asks the LLM to fuse text and visual context; on failure it
// passes the original text query through unchanged.
func (f *Fusion) enhanceQuery(ctx context.Context, textQuery string, visualCtx *domain.VisualContext, model string) string {
	if f.llmc == nil {
		return textQuery
	}
	prompt := fmt.Sprintf("Text query: %s\nVisual context: %s", textQuery, describeContext(visualCtx))
	out, err := f.llmc.ChatCompletion(ctx, model, []domain.Message{
		{Role: "system", Content: enhanceSystemPrompt},
		{Role: "user", Content: prompt},
	}, 0.3, 256)
	if err != nil || strings.TrimSpace(out) == "" {
		return textQuery
	}
	return out
}

// describeVisualContext asks the LLM for a natural-language query
// describing the image; on failure it returns a canned default.
func (f *Fusion) describeVisualContext(ctx context.Context, visualCtx *domain.VisualContext, model string) string {
	if f.llmc == nil {
		return defaultGeneratedQuery
	}
	out, err := f.llmc.ChatCompletion(ctx, model, []domain.Message{
		{Role: "system", Content: describeSystemPrompt},
		{Role: "user", Content: describeContext(visualCtx)},
	}, 0.3, 256)
	if err != nil || strings.TrimSpace(out) == "" {
		return defaultGeneratedQuery
	}
	return out
}

func describeContext(vc *domain.VisualContext) string {
	var sb strings.Builder
	names := make([]string, len(vc.DetectedMaterials))
	for i, m := range vc.DetectedMaterials {
		names[i] = m.Name
	}
	sb.WriteString("materials: ")
	sb.WriteString(strings.Join(names, ", "))
	return sb.String()
}
