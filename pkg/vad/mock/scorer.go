// Package mock provides test doubles for the vad package.
package mock

import "sync"

// Scorer replays a scripted sequence of speech probabilities, one per Score
// call. Once the script is exhausted it returns Default. Safe for concurrent
// use.
type Scorer struct {
	mu sync.Mutex

	// Probs is the scripted probability sequence.
	Probs []float64

	// Default is returned after Probs runs out.
	Default float64

	// Err, when non-nil, is returned by every Score call.
	Err error

	calls int
}

// Score implements vad.Scorer.
func (s *Scorer) Score(frame []float32) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return 0, s.Err
	}
	if s.calls < len(s.Probs) {
		p := s.Probs[s.calls]
		s.calls++
		return p, nil
	}
	s.calls++
	return s.Default, nil
}

// Calls returns how many times Score has been invoked.
func (s *Scorer) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}
