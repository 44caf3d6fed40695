package transport

import "sync"

type subscription struct {
	service        string
	characteristic string
	fn             func(string)
}

// subscribers is a registry of notification callbacks keyed by an id.
type subscribers struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]subscription
}

func (s *subscribers) add(service, characteristic string, fn func(string)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.subs == nil {
		s.subs = make(map[int]subscription)
	}
	s.nextID++
	id := s.nextID
	s.subs[id] = subscription{
		service:        normalizeID(service),
		characteristic: normalizeID(characteristic),
		fn:             fn,
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
}

// dispatch calls every callback registered for the characteristic. Callbacks
// run without the lock held so they may write back to the transport.
func (s *subscribers) dispatch(service, characteristic, payload string) int {
	service, characteristic = normalizeID(service), normalizeID(characteristic)

	s.mu.Lock()
	targets := make([]func(string), 0, len(s.subs))
	for _, sub := range s.subs {
		if sub.service == service && sub.characteristic == characteristic {
			targets = append(targets, sub.fn)
		}
	}
	s.mu.Unlock()

	for _, fn := range targets {
		fn(payload)
	}
	return len(targets)
}

func (s *subscribers) clear() {
	s.mu.Lock()
	s.subs = nil
	s.mu.Unlock()
}
