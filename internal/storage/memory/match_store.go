package memory

import (
	"context"
	"sync"

	"github.com/JakeFAU/ncaa-match-pipeline/internal/faults"
	"github.com/JakeFAU/ncaa-match-pipeline/internal/match"
)

// MatchStore keeps match documents in a map for development and tests.
type MatchStore struct {
	mu   sync.RWMutex
	docs map[match.Key]match.Document
}

// NewMatchStore creates an empty store.
func NewMatchStore() *MatchStore {
	return &MatchStore{docs: make(map[match.Key]match.Document)}
}

// Get returns a copy of the stored document.
func (s *MatchStore) Get(_ context.Context, key match.Key) (match.Document, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[key]
	if !ok {
		return nil, false, nil
	}
	return copyDocument(doc), true, nil
}

// Put replaces the document stored under the match's key.
func (s *MatchStore) Put(_ context.Context, m match.Match) error {
	doc, err := m.Document()
	if err != nil {
		return faults.Store(err, "put match")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[m.Key()] = doc
	return nil
}

// Seed stores a raw document, which may be missing attributes.
func (s *MatchStore) Seed(key match.Key, doc match.Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[key] = copyDocument(doc)
}

// Len reports how many matches are stored.
func (s *MatchStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}

func copyDocument(doc match.Document) match.Document {
	out := make(match.Document, len(doc))
	for k, v := range doc {
		out[k] = append([]byte(nil), v...)
	}
	return out
}
