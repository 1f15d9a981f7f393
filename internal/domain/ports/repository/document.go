package repository

import (
	"context"
)

// Document is a JSON object stored at a slash separated path such as
// "users/{id}". The collection of a document is the first path segment.
type Document map[string]any

// DocumentStore is the port over the document database.
//
// MergeUpdate and CompareAndMerge take a partial document whose keys are
// field paths: "subscription" replaces the whole field, while
// "subscription.isActive" sets one nested field and keeps its siblings.
type DocumentStore interface {
	// Get returns domain.ErrNotFound when nothing is stored at path.
	Get(ctx context.Context, path string) (Document, error)
	// Set replaces the document at path.
	Set(ctx context.Context, path string, doc Document) error
	// Create stores doc only if path is empty and reports whether it did.
	Create(ctx context.Context, path string, doc Document) (bool, error)
	// MergeUpdate applies partial to the document at path, creating it if absent.
	MergeUpdate(ctx context.Context, path string, partial Document) error
	// CompareAndMerge applies partial only if field currently equals expected.
	// The check and the write are atomic. Returns domain.ErrNotFound when the
	// document does not exist.
	CompareAndMerge(ctx context.Context, path, field string, expected any, partial Document) (bool, error)
	// Query returns documents of collection whose top level field equals value, keyed by path.
	Query(ctx context.Context, collection, field string, value any) (map[string]Document, error)
	// List returns every document of collection keyed by path.
	List(ctx context.Context, collection string) (map[string]Document, error)
	// Subscribe calls onChange with the current document and after every
	// change to it. onChange receives nil when the document does not exist.
	// The returned function stops the subscription.
	Subscribe(ctx context.Context, path string, onChange func(Document)) (func(), error)
}
