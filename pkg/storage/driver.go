// Package storage persists finished transcripts: the final emission of every
// unit of one normalized stream.
package storage

import (
	"context"
)

// ListOptions narrows a List call.
type ListOptions struct {
	// Provider keeps only transcripts from one provider when set.
	Provider string

	// Limit caps the number of transcripts returned. Zero means no limit.
	Limit int
}

// Driver defines the interface for persisting and retrieving transcripts in a
// storage backend.
type Driver interface {
	// Put stores a transcript, replacing any transcript with the same ID.
	Put(ctx context.Context, t *Transcript) error

	// Get retrieves a transcript by its ID. A missing transcript is a
	// NotFoundError.
	Get(ctx context.Context, id string) (*Transcript, error)

	// List returns stored transcripts, most recently started first.
	List(ctx context.Context, opts ListOptions) ([]*Transcript, error)

	// Delete removes a transcript. Deleting a missing transcript is a
	// NotFoundError.
	Delete(ctx context.Context, id string) error

	// Close closes the store and releases any resources.
	Close() error
}
