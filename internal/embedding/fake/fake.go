// Package fake provides deterministic embedding.Model, embedding.VisionModel,
// and embedding.TextModel test doubles.
package fake

import (
	"context"
	"fmt"
	"hash/fnv"

	"github.com/Basilakis/kai-sub004/internal/domain"
)

// Model is a deterministic embedding.Model double: ExtractFeatures derives
// a short vector from the text's hash so equal inputs are reproducible.
type Model struct {
	FTCalls int
}

func (m *Model) ExtractFeatures(ctx context.Context, text string) ([]float64, error) {
	return deterministicVector(text, 8), nil
}

func (m *Model) FineTune(ctx context.Context, trainData, valData []domain.TrainingExample, outputPath string, epochs, batchSize int, learningRate float64) (string, error) {
	m.FTCalls++
	return fmt.Sprintf("%s/embedding-v%d", outputPath, m.FTCalls), nil
}

// Vision is a deterministic embedding.VisionModel double.
type Vision struct{}

func (v *Vision) ExtractFeatures(ctx context.Context, data []byte) ([]float64, error) {
	return deterministicVector(string(data), 8), nil
}

func (v *Vision) DetectMaterials(ctx context.Context, data []byte) ([]string, error) {
	return []string{"wood", "tile"}, nil
}

func (v *Vision) AnalyzeColors(ctx context.Context, data []byte) (map[string]float64, error) {
	return map[string]float64{"brown": 0.6, "gray": 0.4}, nil
}

func (v *Vision) AnalyzeTextures(ctx context.Context, data []byte) (map[string]float64, error) {
	return map[string]float64{"grain": 0.7, "smooth": 0.3}, nil
}

// Text is a deterministic embedding.TextModel double.
type Text struct{}

func (t *Text) ExtractFeatures(ctx context.Context, text string) ([]float64, error) {
	return deterministicVector(text, 8), nil
}

func deterministicVector(seed string, dims int) []float64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(seed))
	sum := h.Sum64()
	out := make([]float64, dims)
	for i := range out {
		shift := uint(i * 7 % 64)
		out[i] = float64((sum>>shift)&0xFF) / 255.0
	}
	return out
}
