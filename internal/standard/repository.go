package standard

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/kazmin/rubrica/internal/storage"
)

const standardsKey = "standards"

// ErrNotFound is returned when a requested standard does not exist.
var ErrNotFound = errors.New("standard not found")

// DocStore is the slice of the storage layer the repository needs.
type DocStore interface {
	Get(key string) (string, error)
	Set(key, value string) error
}

// Repository persists the ordered list of standards as a single JSON array
// document. All mutation is read-modify-write over the in-memory list; the
// repository assumes a single logical writer.
type Repository struct {
	docs   DocStore
	logger *slog.Logger

	mu        sync.Mutex
	standards []Standard
	loaded    bool
}

// NewRepository creates a Repository over the given document store.
func NewRepository(docs DocStore) *Repository {
	return &Repository{docs: docs, logger: slog.Default()}
}

func (r *Repository) load() error {
	if r.loaded {
		return nil
	}

	raw, err := r.docs.Get(standardsKey)
	if errors.Is(err, storage.ErrNotFound) {
		r.standards = DefaultStandards()
		r.loaded = true
		return r.persist()
	}
	if err != nil {
		return fmt.Errorf("loading standards: %w", err)
	}

	var list []Standard
	if err := json.Unmarshal([]byte(raw), &list); err != nil {
		return fmt.Errorf("decoding standards document: %w", err)
	}
	r.standards = list
	r.loaded = true
	return nil
}

func (r *Repository) persist() error {
	data, err := json.Marshal(r.standards)
	if err != nil {
		return fmt.Errorf("encoding standards: %w", err)
	}
	if err := r.docs.Set(standardsKey, string(data)); err != nil {
		return fmt.Errorf("persisting standards: %w", err)
	}
	return nil
}

// List returns all standards in stored order.
func (r *Repository) List() ([]Standard, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.load(); err != nil {
		return nil, err
	}

	out := make([]Standard, len(r.standards))
	for i, s := range r.standards {
		out[i] = s.Clone()
	}
	return out, nil
}

// Get returns the standard with the given id, or ErrNotFound.
func (r *Repository) Get(id string) (Standard, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.load(); err != nil {
		return Standard{}, err
	}

	for _, s := range r.standards {
		if s.ID == id {
			return s.Clone(), nil
		}
	}
	return Standard{}, ErrNotFound
}

// Save inserts the standard, or replaces the stored standard with the same id.
// A weight-sum mismatch is logged as a warning, not rejected.
func (r *Repository) Save(s Standard) error {
	if s.ID == "" {
		return errors.New("standard id is required")
	}
	if s.Name == "" {
		return errors.New("standard name is required")
	}

	s.CheckWeights(r.logger)

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.load(); err != nil {
		return err
	}

	replaced := false
	for i, existing := range r.standards {
		if existing.ID == s.ID {
			r.standards[i] = s
			replaced = true
			break
		}
	}
	if !replaced {
		r.standards = append(r.standards, s)
	}
	return r.persist()
}

// Delete removes the standard with the given id, or returns ErrNotFound.
func (r *Repository) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.load(); err != nil {
		return err
	}

	for i, s := range r.standards {
		if s.ID == id {
			r.standards = append(r.standards[:i], r.standards[i+1:]...)
			return r.persist()
		}
	}
	return ErrNotFound
}

// DefaultStandards returns the built-in standard seeded on first use, so a
// fresh install can evaluate content without authoring a rubric first.
func DefaultStandards() []Standard {
	return []Standard{
		{
			ID:          "general-quality",
			Name:        "General article quality",
			Description: "Baseline editorial quality for long-form articles.",
			TotalWeight: 100,
			Criteria: []Criterion{
				{
					ID:         "clarity",
					Name:       "Clarity",
					Weight:     30,
					ScoreRange: [2]int{1, 5},
					Description: map[string]string{
						"1": "Confusing throughout; the reader cannot follow the argument.",
						"3": "Mostly readable with occasional ambiguous passages.",
						"5": "Every section is precise and easy to follow.",
					},
				},
				{
					ID:         "accuracy",
					Name:       "Factual accuracy",
					Weight:     40,
					ScoreRange: [2]int{1, 5},
					Description: map[string]string{
						"1": "Contains clear factual errors or unsupported claims.",
						"3": "Claims are plausible but thinly sourced.",
						"5": "All claims are verifiable and well supported.",
					},
				},
				{
					ID:         "structure",
					Name:       "Structure",
					Weight:     30,
					ScoreRange: [2]int{1, 5},
					Description: map[string]string{
						"1": "No discernible organization.",
						"3": "Logical order with some abrupt transitions.",
						"5": "Ideas build on each other with a clear through-line.",
					},
				},
			},
		},
	}
}
