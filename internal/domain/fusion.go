package domain

// DetectedMaterial is one vision-model material detection.
type DetectedMaterial struct {
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
}

// PaletteEntry is one dominant color extracted from an image.
type PaletteEntry struct {
	Name       string  `json:"name"`
	Hex        string  `json:"hex"`
	Percentage float64 `json:"percentage"`
}

// TextureEntry is one detected surface texture.
type TextureEntry struct {
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
}

// VisualContext is the vision collaborator's raw output, carried verbatim
// with no normalization.
type VisualContext struct {
	DetectedMaterials []DetectedMaterial `json:"detected_materials"`
	Palette           []PaletteEntry     `json:"palette"`
	Textures          []TextureEntry     `json:"textures"`
}

// FusionResult is the outcome of cross-modal query processing.
type FusionResult struct {
	EnhancedQuery      *string        `json:"enhanced_query,omitempty"`
	GeneratedTextQuery *string        `json:"generated_text_query,omitempty"`
	VisualContext      *VisualContext `json:"visual_context,omitempty"`
}
