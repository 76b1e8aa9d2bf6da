package audio

import (
	"sync"
)

// DefaultSpeakingEpsilon absorbs scheduling jitter at the tail of the schedule.
const DefaultSpeakingEpsilon = 0.1

// Scheduler turns decoded chunks into a gapless timeline on an Output. The
// cursor (next start time) never moves backward except on Interrupt, which
// pulls it to the current clock time.
type Scheduler struct {
	mu      sync.Mutex
	out     Output
	next    float64
	first   float64
	active  bool
	epsilon float64
	stopped bool
}

func NewScheduler(out Output) *Scheduler {
	return &Scheduler{
		out:     out,
		next:    out.Now(),
		epsilon: DefaultSpeakingEpsilon,
	}
}

// SetSpeakingEpsilon overrides the guard used by Speaking.
func (s *Scheduler) SetSpeakingEpsilon(eps float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.epsilon = eps
}

// Enqueue schedules chunk right after everything already scheduled, or now if
// the schedule has run dry. It returns the chosen start time.
func (s *Scheduler) Enqueue(chunk Chunk) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return 0, ErrOutputClosed
	}

	now := s.out.Now()
	start := max(now, s.next)
	if err := s.out.Schedule(chunk, start); err != nil {
		return 0, err
	}

	if !s.active || now >= s.next {
		s.first = start
	}
	s.active = true
	s.next = start + chunk.Seconds()

	return start, nil
}

// Interrupt truncates the schedule: chunks already playing finish, chunks not
// yet started are dropped and new ones queue from now.
func (s *Scheduler) Interrupt() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}
	s.out.DropPending()
	s.next = s.out.Now()
	s.active = false
}

// Speaking reports whether scheduled audio is audible right now.
func (s *Scheduler) Speaking() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active || s.stopped {
		return false
	}
	now := s.out.Now()
	return now >= s.first && now < s.next-s.epsilon
}

// Cursor returns the next available start time.
func (s *Scheduler) Cursor() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next
}

// Stop discards everything not yet started and refuses further chunks.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}
	s.stopped = true
	s.active = false
	s.out.DropPending()
}
