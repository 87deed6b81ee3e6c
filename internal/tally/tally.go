// Package tally counts predictions per label for one session.
package tally

import (
	"sort"
	"sync"

	"github.com/fruitlens/fruit-classifier/internal/fruit"
)

// Entry is one row of a snapshot.
type Entry struct {
	Label fruit.Label `json:"label"`
	Count int         `json:"count"`
}

// Store maps label to count and remembers the order labels were first seen.
// Entries are never removed.
type Store struct {
	mu     sync.Mutex
	order  []fruit.Label
	counts map[fruit.Label]int
}

func New() *Store {
	return &Store{counts: make(map[fruit.Label]int, fruit.Count)}
}

// Record adds one classification of label and returns its new count.
func (s *Store) Record(label fruit.Label) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.counts[label]; !ok {
		s.order = append(s.order, label)
	}
	s.counts[label]++
	return s.counts[label]
}

// Snapshot returns the entries in first-occurrence order.
func (s *Store) Snapshot() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, len(s.order))
	for i, l := range s.order {
		out[i] = Entry{Label: l, Count: s.counts[l]}
	}
	return out
}

// ByCount returns the snapshot sorted by descending count. Equal counts keep
// first-occurrence order.
func (s *Store) ByCount() []Entry {
	out := s.Snapshot()
	sort.SliceStable(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	return out
}

func (s *Store) Count(label fruit.Label) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[label]
}

// Total is the number of recorded classifications.
func (s *Store) Total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.counts {
		n += c
	}
	return n
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.order)
}
