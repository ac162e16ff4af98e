package server

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrRunNotFound is returned when a run id has no stored record.
var ErrRunNotFound = errors.New("run not found")

// Run sources.
const (
	SourceNormalize = "normalize"
	SourceGenerate  = "generate"
)

// RunRecord is one stored normalization.
type RunRecord struct {
	ID           string          `json:"id"`
	Source       string          `json:"source"`
	Instruction  string          `json:"instruction,omitempty"`
	Payload      json.RawMessage `json:"payload,omitempty"`
	Result       json.RawMessage `json:"result,omitempty"`
	NodeCount    int             `json:"node_count"`
	WarningCount int             `json:"warning_count"`
	ErrorCount   int             `json:"error_count"`
	CreatedAt    time.Time       `json:"created_at"`
}

// RunStore persists normalization runs.
type RunStore interface {
	Create(ctx context.Context, rec RunRecord) error
	Get(ctx context.Context, id string) (RunRecord, bool, error)
	// List returns the newest runs first. A limit of 0 means no limit.
	List(ctx context.Context, limit int) ([]RunRecord, error)
	Delete(ctx context.Context, id string) error
	// DeleteBefore removes runs created before cutoff and reports how many.
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
