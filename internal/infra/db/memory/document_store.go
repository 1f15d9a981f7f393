// Package memory holds an in-process DocumentStore used in dev mode and tests.
package memory

import (
	"context"
	"fmt"
	"sync"

	"video-subscription-storefront/internal/domain"
	"video-subscription-storefront/internal/domain/ports/repository"
	"video-subscription-storefront/internal/infra/db/docpath"
)

var _ repository.DocumentStore = (*DocumentStore)(nil)

// DocumentStore keeps JSON-normalized documents in a map.
type DocumentStore struct {
	mu     sync.Mutex
	docs   map[string]map[string]any
	subs   map[string]map[int]func(repository.Document)
	nextID int
}

func NewDocumentStore() *DocumentStore {
	return &DocumentStore{
		docs: make(map[string]map[string]any),
		subs: make(map[string]map[int]func(repository.Document)),
	}
}

func (s *DocumentStore) Get(_ context.Context, path string) (repository.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[path]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return clone(doc), nil
}

func (s *DocumentStore) Set(_ context.Context, path string, doc repository.Document) error {
	if !docpath.Valid(path) {
		return fmt.Errorf("%w: path %q", domain.ErrInvalidArgument, path)
	}
	norm, err := docpath.Normalize(doc)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.docs[path] = norm
	s.mu.Unlock()
	s.notify(path)
	return nil
}

func (s *DocumentStore) Create(_ context.Context, path string, doc repository.Document) (bool, error) {
	if !docpath.Valid(path) {
		return false, fmt.Errorf("%w: path %q", domain.ErrInvalidArgument, path)
	}
	norm, err := docpath.Normalize(doc)
	if err != nil {
		return false, err
	}
	s.mu.Lock()
	if _, exists := s.docs[path]; exists {
		s.mu.Unlock()
		return false, nil
	}
	s.docs[path] = norm
	s.mu.Unlock()
	s.notify(path)
	return true, nil
}

func (s *DocumentStore) MergeUpdate(_ context.Context, path string, partial repository.Document) error {
	if !docpath.Valid(path) {
		return fmt.Errorf("%w: path %q", domain.ErrInvalidArgument, path)
	}
	norm, err := docpath.Normalize(partial)
	if err != nil {
		return err
	}
	s.mu.Lock()
	doc, ok := s.docs[path]
	if !ok {
		doc = map[string]any{}
		s.docs[path] = doc
	}
	docpath.Apply(doc, norm)
	s.mu.Unlock()
	s.notify(path)
	return nil
}

func (s *DocumentStore) CompareAndMerge(_ context.Context, path, field string, expected any, partial repository.Document) (bool, error) {
	norm, err := docpath.Normalize(partial)
	if err != nil {
		return false, err
	}
	s.mu.Lock()
	doc, ok := s.docs[path]
	if !ok {
		s.mu.Unlock()
		return false, domain.ErrNotFound
	}
	cur, _ := docpath.Lookup(doc, field)
	if !docpath.Equal(cur, expected) {
		s.mu.Unlock()
		return false, nil
	}
	docpath.Apply(doc, norm)
	s.mu.Unlock()
	s.notify(path)
	return true, nil
}

func (s *DocumentStore) Query(_ context.Context, collection, field string, value any) (map[string]repository.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]repository.Document)
	for path, doc := range s.docs {
		if docpath.Collection(path) != collection {
			continue
		}
		if v, ok := doc[field]; ok && docpath.Equal(v, value) {
			out[path] = clone(doc)
		}
	}
	return out, nil
}

func (s *DocumentStore) List(_ context.Context, collection string) (map[string]repository.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]repository.Document)
	for path, doc := range s.docs {
		if docpath.Collection(path) == collection {
			out[path] = clone(doc)
		}
	}
	return out, nil
}

func (s *DocumentStore) Subscribe(_ context.Context, path string, onChange func(repository.Document)) (func(), error) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	if s.subs[path] == nil {
		s.subs[path] = make(map[int]func(repository.Document))
	}
	s.subs[path][id] = onChange
	var snapshot repository.Document
	if doc, ok := s.docs[path]; ok {
		snapshot = clone(doc)
	}
	s.mu.Unlock()

	onChange(snapshot)

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs[path], id)
			if len(s.subs[path]) == 0 {
				delete(s.subs, path)
			}
			s.mu.Unlock()
		})
	}, nil
}

func (s *DocumentStore) notify(path string) {
	s.mu.Lock()
	fns := make([]func(repository.Document), 0, len(s.subs[path]))
	for _, fn := range s.subs[path] {
		fns = append(fns, fn)
	}
	doc, exists := s.docs[path]
	var snapshot repository.Document
	if exists {
		snapshot = clone(doc)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		if snapshot == nil {
			fn(nil)
			continue
		}
		fn(clone(snapshot))
	}
}

func clone(doc map[string]any) repository.Document {
	out, err := docpath.Normalize(doc)
	if err != nil {
		return repository.Document{}
	}
	return out
}
