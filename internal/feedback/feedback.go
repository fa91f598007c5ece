// Package feedback defines the feedback database collaborator consumed by
// the orchestrator's SubmitFeedback and the continuous learning pipeline's
// dataset materialization. The spec treats this database as an external
// collaborator; a file-backed default implementation is provided so
// cmd/ragd can run standalone without a real database wired in.
package feedback

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/Basilakis/kai-sub004/internal/domain"
)

// Store is the feedback collaborator contract.
type Store interface {
	SubmitFeedback(ctx context.Context, rec domain.FeedbackRecord) error
	GetFeedbackCount(ctx context.Context, since time.Time) (int, error)
	GetFeedbackMetrics(ctx context.Context, since time.Time) (domain.FeedbackMetrics, error)
	GetFeedbackForTraining(ctx context.Context, since time.Time) ([]domain.FeedbackRecord, error)
}

// FileStore appends FeedbackRecord values to a single JSON-lines file,
// guarded by a mutex so concurrent submissions never interleave writes.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore opens (creating if absent) a feedback log at path.
func NewFileStore(path string) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, domain.NewStorageError("create feedback dir", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, domain.NewStorageError("open feedback log", err)
	}
	_ = f.Close()
	return &FileStore{path: path}, nil
}

func (s *FileStore) SubmitFeedback(ctx context.Context, rec domain.FeedbackRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}

	line, err := json.Marshal(rec)
	if err != nil {
		return domain.NewStorageError("marshal feedback record", err)
	}
	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return domain.NewStorageError("open feedback log", err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return domain.NewStorageError("append feedback record", err)
	}
	return nil
}

func (s *FileStore) readSince(since time.Time) ([]domain.FeedbackRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, domain.NewStorageError("read feedback log", err)
	}

	var records []domain.FeedbackRecord
	dec := json.NewDecoder(bytes.NewReader(data))
	for {
		var rec domain.FeedbackRecord
		if err := dec.Decode(&rec); err != nil {
			break
		}
		if !rec.Timestamp.Before(since) {
			records = append(records, rec)
		}
	}
	return records, nil
}

func (s *FileStore) GetFeedbackCount(ctx context.Context, since time.Time) (int, error) {
	records, err := s.readSince(since)
	if err != nil {
		return 0, err
	}
	return len(records), nil
}

func (s *FileStore) GetFeedbackMetrics(ctx context.Context, since time.Time) (domain.FeedbackMetrics, error) {
	records, err := s.readSince(since)
	if err != nil {
		return domain.FeedbackMetrics{}, err
	}
	if len(records) == 0 {
		return domain.FeedbackMetrics{}, nil
	}

	sum := 0
	maxRating := 0
	for _, r := range records {
		sum += r.Feedback.Rating
		if r.Feedback.Rating > maxRating {
			maxRating = r.Feedback.Rating
		}
	}
	return domain.FeedbackMetrics{
		Count:      len(records),
		MeanRating: float64(sum) / float64(len(records)),
		MaxRating:  maxRating,
	}, nil
}

func (s *FileStore) GetFeedbackForTraining(ctx context.Context, since time.Time) ([]domain.FeedbackRecord, error) {
	return s.readSince(since)
}

var _ Store = (*FileStore)(nil)
