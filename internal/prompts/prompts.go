// Package prompts builds material-specific system/user prompts: a closed,
// in-code table of per-material-type templates with category fall-through,
// optionally overlaid by a database-backed TemplateStore.
package prompts

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// DetailLevel controls how much instruction detail is folded into the
// built prompt.
type DetailLevel string

const (
	DetailBrief    DetailLevel = "brief"
	DetailMedium   DetailLevel = "medium"
	DetailDetailed DetailLevel = "detailed"
)

// PromptType selects which task framing BuildMaterialSpecificPrompt uses.
type PromptType string

const (
	PromptExplanation PromptType = "explanation"
	PromptSimilarity  PromptType = "similarity"
	PromptApplication PromptType = "application"
)

var textureFocusedMaterials = map[string]bool{"fabric": true, "wood": true, "leather": true, "paper": true}
var colorFocusedMaterials = map[string]bool{"paint": true, "plastic": true, "vinyl": true, "laminate": true}
var structureFocusedMaterials = map[string]bool{"metal": true, "stone": true, "ceramic": true, "glass": true, "tile": true, "porcelain": true, "concrete": true}
var softMaterials = map[string]bool{"carpet": true, "fabric": true, "leather": true}

const baseSystemPromptTemplate = `You are a materials expert assistant specializing in %s materials.
Use only the provided context to answer questions about materials.
When information is not in the context, acknowledge the limitations.
Always cite sources for specific facts.`

var materialSystemPrompts = map[string]string{
	"wood": `You are a wood materials expert with extensive knowledge of hardwoods, softwoods, and engineered wood products.
Use only the provided context to answer questions about wood materials.
Focus on grain patterns, species characteristics, hardness ratings, and finishing options.
Highlight sustainability aspects like FSC certification when relevant.
When discussing engineered wood, distinguish between plywood, MDF, particleboard, and veneers.
For flooring applications, emphasize durability metrics like Janka hardness ratings.
Always cite sources for specific facts using the format [Source: Name].
When information is not in the context, acknowledge the limitations.`,

	"tile": `You are a tile materials expert with deep knowledge of ceramic, porcelain, and specialty tiles.
Use only the provided context to answer questions about tile materials.
Focus on technical specifications like PEI ratings, water absorption, and coefficient of friction.
Distinguish clearly between ceramic and porcelain properties when relevant.
For installation questions, emphasize substrate requirements and appropriate setting materials.
Discuss maintenance requirements based on finish type (glazed vs. unglazed, polished vs. matte).
Always cite sources for specific facts using the format [Source: Name].
When information is not in the context, acknowledge the limitations.`,

	"stone": `You are a natural stone expert with extensive knowledge of marble, granite, limestone, travertine, and other stone materials.
Use only the provided context to answer questions about stone materials.
Focus on geological composition, hardness, porosity, and appropriate sealing requirements.
Highlight the unique characteristics of each stone type, including veining patterns and color variations.
For countertop applications, discuss heat resistance, stain resistance, and etching potential.
Always cite sources for specific facts using the format [Source: Name].
When information is not in the context, acknowledge the limitations.`,

	"metal": `You are a metal materials expert with deep knowledge of architectural metals and finishes.
Use only the provided context to answer questions about metal materials.
Focus on corrosion resistance, gauge specifications, and appropriate applications.
Distinguish between different metal types (stainless steel, aluminum, copper, brass, bronze, etc.).
For exterior applications, emphasize weathering characteristics and maintenance requirements.
Always cite sources for specific facts using the format [Source: Name].
When information is not in the context, acknowledge the limitations.`,

	"vinyl": `You are a vinyl flooring expert with extensive knowledge of luxury vinyl tile (LVT), luxury vinyl plank (LVP), and sheet vinyl.
Use only the provided context to answer questions about vinyl materials.
Focus on wear layer thickness, overall thickness, installation methods, and waterproof properties.
Highlight performance metrics like indentation resistance and dimensional stability.
For commercial applications, emphasize commercial warranty periods and traffic ratings.
Always cite sources for specific facts using the format [Source: Name].
When information is not in the context, acknowledge the limitations.`,

	"laminate": `You are a laminate materials expert with deep knowledge of laminate flooring and countertop applications.
Use only the provided context to answer questions about laminate materials.
Focus on AC ratings, core board composition, and moisture resistance.
Distinguish between high-pressure laminates (HPL) and direct-pressure laminates (DPL).
For flooring applications, emphasize wear resistance and installation methods.
Always cite sources for specific facts using the format [Source: Name].
When information is not in the context, acknowledge the limitations.`,

	"carpet": `You are a carpet materials expert with extensive knowledge of residential and commercial carpet products.
Use only the provided context to answer questions about carpet materials.
Focus on fiber types, pile height, face weight, and density metrics.
Highlight performance ratings like texture retention and stain resistance.
For commercial applications, emphasize flammability ratings and static control properties.
Always cite sources for specific facts using the format [Source: Name].
When information is not in the context, acknowledge the limitations.`,

	"other": fmt.Sprintf(baseSystemPromptTemplate, "construction"),
}

var materialDetailInstructions = map[string]map[DetailLevel]string{
	"wood": {
		DetailBrief:    "Provide concise explanations focusing on wood species, hardness, and basic applications.",
		DetailMedium:   "Provide balanced explanations covering species, grain patterns, hardness, and common applications.",
		DetailDetailed: "Provide comprehensive explanations covering species, grain patterns, hardness, finishing options, sustainability, and detailed application recommendations.",
	},
	"tile": {
		DetailBrief:    "Provide concise explanations focusing on material composition, durability, and basic applications.",
		DetailMedium:   "Provide balanced explanations covering composition, technical ratings, durability, and common applications.",
		DetailDetailed: "Provide comprehensive explanations covering composition, PEI ratings, water absorption, coefficient of friction, installation requirements, and detailed application recommendations.",
	},
	"stone": {
		DetailBrief:    "Provide concise explanations focusing on stone type, hardness, and basic applications.",
		DetailMedium:   "Provide balanced explanations covering stone type, hardness, porosity, and common applications.",
		DetailDetailed: "Provide comprehensive explanations covering geological composition, hardness, porosity, sealing requirements, maintenance needs, and detailed application recommendations.",
	},
	"other": {
		DetailBrief:    "Provide concise explanations focusing only on the most relevant aspects.",
		DetailMedium:   "Provide balanced explanations with moderate detail on important aspects.",
		DetailDetailed: "Provide comprehensive explanations covering multiple aspects of each material.",
	},
}

var materialEvaluationCriteria = map[string][]string{
	"wood": {
		"Species identification accuracy",
		"Hardness rating accuracy",
		"Grain pattern description",
		"Finishing recommendations appropriateness",
		"Sustainability information accuracy",
	},
	"tile": {
		"Material classification accuracy",
		"Technical specification accuracy",
		"Installation recommendation appropriateness",
		"Maintenance guidance accuracy",
		"Application suitability assessment",
	},
	"stone": {
		"Stone type identification accuracy",
		"Geological composition accuracy",
		"Maintenance requirement accuracy",
		"Application suitability assessment",
		"Sealing recommendation appropriateness",
	},
	"other": {
		"Material property accuracy",
		"Application recommendation appropriateness",
		"Technical specification accuracy",
		"Comparative analysis quality",
		"Citation and source attribution",
	},
}

// GetMaterialSystemPrompt returns the system prompt for materialType: an
// exact match over the closed table, then a category fallback
// (texture/color/structure/soft focused), then the generic "other" prompt.
func GetMaterialSystemPrompt(materialType string) string {
	key := strings.ToLower(materialType)
	if prompt, ok := materialSystemPrompts[key]; ok {
		return prompt
	}
	switch {
	case textureFocusedMaterials[key]:
		return fmt.Sprintf(baseSystemPromptTemplate, "texture-focused")
	case colorFocusedMaterials[key]:
		return fmt.Sprintf(baseSystemPromptTemplate, "color-focused")
	case structureFocusedMaterials[key]:
		return fmt.Sprintf(baseSystemPromptTemplate, "structure-focused")
	case softMaterials[key]:
		return fmt.Sprintf(baseSystemPromptTemplate, "soft")
	}
	return materialSystemPrompts["other"]
}

// GetMaterialDetailInstructions returns the detail-level instructions for
// materialType, defaulting detailLevel to Medium when unset and falling
// back to the "other" table when materialType has no specific entry.
func GetMaterialDetailInstructions(materialType string, detailLevel DetailLevel) string {
	key := strings.ToLower(materialType)
	if detailLevel != DetailBrief && detailLevel != DetailMedium && detailLevel != DetailDetailed {
		detailLevel = DetailMedium
	}
	if table, ok := materialDetailInstructions[key]; ok {
		return table[detailLevel]
	}
	return materialDetailInstructions["other"][detailLevel]
}

// EvaluationCriteria returns the closed per-material-type evaluation
// criteria list, falling back to the "other" table.
func EvaluationCriteria(materialType string) []string {
	key := strings.ToLower(materialType)
	if criteria, ok := materialEvaluationCriteria[key]; ok {
		return criteria
	}
	return materialEvaluationCriteria["other"]
}

// BuildMaterialSpecificPrompt assembles a system/user prompt pair for
// materialType, weaving in the detail-level instructions and a task
// framing selected by promptType.
func BuildMaterialSpecificPrompt(materialType, query, contextText string, detailLevel DetailLevel, promptType PromptType) (system, user string) {
	systemPrompt := GetMaterialSystemPrompt(materialType)
	detailInstructions := GetMaterialDetailInstructions(materialType, detailLevel)

	switch promptType {
	case PromptSimilarity:
		system = fmt.Sprintf(`%s

%s

Compare the materials based on:
1. Shared properties and characteristics
2. Key differences that affect performance
3. Relative advantages and disadvantages for the specific use case

When citing facts, use the format [Source: Name] for proper attribution.
Only use information provided in the context. If information is missing, acknowledge the limitation.`, systemPrompt, detailInstructions)
		user = fmt.Sprintf(`Based on the provided information, compare and contrast the materials for: %s
Highlight the key similarities and differences that would affect their performance.

%s`, query, contextText)

	case PromptApplication:
		system = fmt.Sprintf(`%s

%s

For each material, recommend specific applications based on:
1. The material's key properties and performance characteristics
2. Industry standards and best practices
3. Installation and maintenance considerations

When citing facts, use the format [Source: Name] for proper attribution.
Only use information provided in the context. If information is missing, acknowledge the limitation.`, systemPrompt, detailInstructions)
		user = fmt.Sprintf(`Based on the provided information, recommend specific applications for each material, considering: %s

%s`, query, contextText)

	default:
		system = fmt.Sprintf(`%s

%s

For each material:
1. Explain its key properties and characteristics relevant to the query
2. Describe what makes it suitable or unsuitable for the use case
3. Highlight any important considerations for working with this material

When citing facts, use the format [Source: Name] for proper attribution.
Only use information provided in the context. If information is missing, acknowledge the limitation.`, systemPrompt, detailInstructions)
		user = fmt.Sprintf(`Based on the provided information, explain each material's suitability for: %s

%s`, query, contextText)
	}

	return system, user
}

// TemplateStore fetches named prompt templates from an external source
// (e.g. an admin-managed database), with a process-local cache.
type TemplateStore interface {
	FetchPrompt(ctx context.Context, name, promptType string) (string, error)
}

// CachedTemplateStore wraps a TemplateStore with an in-memory cache keyed
// by "promptType:name", so repeated lookups for the same template avoid a
// round trip. A lookup that errors is never cached; callers are expected
// to fall back to the in-code table on error.
type CachedTemplateStore struct {
	backend TemplateStore

	mu    sync.RWMutex
	cache map[string]string
}

// NewCachedTemplateStore wraps backend with a local cache.
func NewCachedTemplateStore(backend TemplateStore) *CachedTemplateStore {
	return &CachedTemplateStore{backend: backend, cache: make(map[string]string)}
}

// FetchPrompt returns the cached value for name/promptType if present,
// otherwise queries the backend and caches a successful result.
func (s *CachedTemplateStore) FetchPrompt(ctx context.Context, name, promptType string) (string, error) {
	key := promptType + ":" + name

	s.mu.RLock()
	cached, ok := s.cache[key]
	s.mu.RUnlock()
	if ok {
		return cached, nil
	}

	value, err := s.backend.FetchPrompt(ctx, name, promptType)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	s.cache[key] = value
	s.mu.Unlock()
	return value, nil
}

// ClearCache drops every cached template, forcing the next FetchPrompt for
// each key back to the backend.
func (s *CachedTemplateStore) ClearCache() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache = make(map[string]string)
}

// GetMaterialSystemPromptWithStore is GetMaterialSystemPrompt's DB-backed
// variant: it first asks store for the "material_system_prompt" template
// named after the lowercased materialType, falling back to the hard-coded
// table whenever store is nil, errors or returns an empty prompt, so a
// templated path always returns a fully formed prompt.
func GetMaterialSystemPromptWithStore(ctx context.Context, store TemplateStore, materialType string) string {
	if store == nil {
		return GetMaterialSystemPrompt(materialType)
	}
	prompt, err := store.FetchPrompt(ctx, strings.ToLower(materialType), "material_system_prompt")
	if err != nil || prompt == "" {
		return GetMaterialSystemPrompt(materialType)
	}
	return prompt
}

var defaultEncoding *tiktoken.Tiktoken

func init() {
	enc, err := tiktoken.GetEncoding(tiktoken.MODEL_CL100K_BASE)
	if err == nil {
		defaultEncoding = enc
	}
}

// EstimateTokens returns the CL100K_BASE token count for text, used to
// budget context assembly before handing a prompt to the LLM client. It
// returns an approximation (rune count) if the encoding failed to load.
func EstimateTokens(text string) int {
	if defaultEncoding == nil {
		return len([]rune(text))
	}
	return len(defaultEncoding.Encode(text, nil, nil))
}
