package session

import "github.com/betareaderbr/betareader/models"

// Subscribe registers fn to receive a copy of the snapshot after every change.
// The returned function removes the subscription.
func (s *Session) Subscribe(fn func(models.UserData)) func() {
	s.subMu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

func (s *Session) publish(snap models.UserData) {
	s.subMu.Lock()
	fns := make([]func(models.UserData), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()

	for _, fn := range fns {
		fn(snap.Clone())
	}
}
