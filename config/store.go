package config

import (
	"log/slog"
	"sync"
)

// Store holds the current options. Consumers call Current at the moment
// they need a value, so updates apply without reloading the page.
type Store struct {
	mu     sync.Mutex
	cur    Options
	subs   map[int]chan Options
	nextID int
	logger *slog.Logger
}

// NewStore creates a store seeded with the normalized initial options.
func NewStore(initial Options, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{cur: initial.Normalize(), subs: make(map[int]chan Options), logger: logger}
}

// Current returns a copy of the current options.
func (s *Store) Current() Options {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cur.clone()
}

// Update normalizes and installs o, then notifies subscribers. A slow
// subscriber only ever sees the latest value.
func (s *Store) Update(o Options) Options {
	o = o.Normalize()
	s.mu.Lock()
	s.cur = o
	for _, ch := range s.subs {
		select {
		case <-ch:
		default:
		}
		ch <- o.clone()
	}
	s.mu.Unlock()

	s.logger.Info("config: options updated",
		"highlight_color", o.HighlightColor,
		"highlight_duration", o.HighlightDuration,
		"button_style", o.ButtonStyle,
	)
	return o.clone()
}

// Subscribe returns a channel receiving every update and a cancel func
// that closes it.
func (s *Store) Subscribe() (<-chan Options, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	ch := make(chan Options, 1)
	s.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			close(ch)
			s.mu.Unlock()
		})
	}
}
