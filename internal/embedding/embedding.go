// Package embedding defines the embedding/vision/text feature collaborator
// contracts consumed by the continuous learning pipeline (fine-tune) and
// the cross-modal fusion component (feature extraction).
package embedding

import (
	"context"

	"github.com/Basilakis/kai-sub004/internal/domain"
)

// Model is the embedding collaborator fine-tuned by the learning pipeline
// when the target model type is "embedding".
type Model interface {
	ExtractFeatures(ctx context.Context, text string) ([]float64, error)
	FineTune(ctx context.Context, trainData, valData []domain.TrainingExample, outputPath string, epochs, batchSize int, learningRate float64) (modelPath string, err error)
}

// VisionModel extracts visual features and coarse material signals from
// image bytes, consumed by the cross-modal attention component.
type VisionModel interface {
	ExtractFeatures(ctx context.Context, data []byte) ([]float64, error)
	DetectMaterials(ctx context.Context, data []byte) ([]string, error)
	AnalyzeColors(ctx context.Context, data []byte) (map[string]float64, error)
	AnalyzeTextures(ctx context.Context, data []byte) (map[string]float64, error)
}

// TextModel extracts a text feature vector, the text-side input to the
// cross-modal joint representation.
type TextModel interface {
	ExtractFeatures(ctx context.Context, text string) ([]float64, error)
}
