// Package loading tracks whether a loading indicator should be visible.
package loading

import "sync"

// Service is a reference counted loading indicator.
// Every Show must be paired with a Hide; the indicator is visible while at least one Show is pending.
type Service struct {
	mu       sync.Mutex
	count    int
	onChange func(visible bool)
}

// New ...
func New() *Service {
	return &Service{}
}

// Init sets the callback invoked whenever the visibility flips.
func (s *Service) Init(onChange func(visible bool)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = onChange
}

// Reset hides the indicator regardless of pending Show calls.
func (s *Service) Reset() {
	s.set(func(int) int { return 0 })
}

// Show ...
func (s *Service) Show() {
	s.set(func(c int) int { return c + 1 })
}

// Hide ...
func (s *Service) Hide() {
	s.set(func(c int) int {
		if c == 0 {
			return 0
		}
		return c - 1
	})
}

// Status reports whether the indicator is visible.
func (s *Service) Status() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count > 0
}

func (s *Service) set(next func(int) int) {
	s.mu.Lock()
	wasVisible := s.count > 0
	s.count = next(s.count)
	visible := s.count > 0
	onChange := s.onChange
	s.mu.Unlock()

	if onChange != nil && visible != wasVisible {
		onChange(visible)
	}
}
