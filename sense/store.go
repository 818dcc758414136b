package sense

import "sync"

// Store receives externally visible session state.
// Methods are called from session goroutines, implementations must be safe
// for concurrent use and must not block for long.
type Store interface {
	SetConnected(bool)
	SetBasicMode(bool)
	AddReading(Reading)
}

type nopStore struct{}

func (nopStore) SetConnected(bool)  {}
func (nopStore) SetBasicMode(bool)  {}
func (nopStore) AddReading(Reading) {}

// MemStore keeps session flags and bounded reading history.
type MemStore struct {
	mu        sync.Mutex
	limit     int
	connected bool
	basicMode bool
	current   Reading
	history   []Reading
}

const DefaultHistory = 1000

func NewMemStore(limit int) *MemStore {
	if limit <= 0 {
		limit = DefaultHistory
	}
	return &MemStore{limit: limit, current: Reading{Alarm: InvalidAlarm()}}
}

func (s *MemStore) SetConnected(v bool) {
	s.mu.Lock()
	s.connected = v
	s.mu.Unlock()
}

func (s *MemStore) SetBasicMode(v bool) {
	s.mu.Lock()
	s.basicMode = v
	s.mu.Unlock()
}

func (s *MemStore) AddReading(r Reading) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = r
	if len(s.history) >= s.limit {
		n := copy(s.history, s.history[len(s.history)-s.limit+1:])
		s.history = s.history[:n]
	}
	s.history = append(s.history, r)
}

func (s *MemStore) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

func (s *MemStore) BasicMode() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.basicMode
}

func (s *MemStore) Current() Reading {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// History returns copy, oldest first.
func (s *MemStore) History() []Reading {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := make([]Reading, len(s.history))
	copy(h, s.history)
	return h
}

// MultiStore fans out to every store in order.
type MultiStore []Store

func (ms MultiStore) SetConnected(v bool) {
	for _, s := range ms {
		s.SetConnected(v)
	}
}

func (ms MultiStore) SetBasicMode(v bool) {
	for _, s := range ms {
		s.SetBasicMode(v)
	}
}

func (ms MultiStore) AddReading(r Reading) {
	for _, s := range ms {
		s.AddReading(r)
	}
}
