package session

// Registry owns the live sessions, keyed by session id and by player id.
// It is not safe for concurrent use; the orchestrator serializes access.
type Registry struct {
	byID     map[string]*Session
	byPlayer map[string]*Session
}

func NewRegistry() *Registry {
	return &Registry{
		byID:     make(map[string]*Session),
		byPlayer: make(map[string]*Session),
	}
}

func (r *Registry) Add(s *Session) {
	r.byID[s.ID()] = s
	for _, p := range s.Players() {
		r.byPlayer[p.ID] = s
	}
}

// Get returns nil when the session does not exist, e.g. it was already reaped.
func (r *Registry) Get(id string) *Session {
	return r.byID[id]
}

// ByPlayer returns the session participantID plays in, or nil.
func (r *Registry) ByPlayer(participantID string) *Session {
	return r.byPlayer[participantID]
}

// Remove forgets the session. Removing a missing session is a no-op.
func (r *Registry) Remove(id string) {
	s, ok := r.byID[id]
	if !ok {
		return
	}

	delete(r.byID, id)
	for _, p := range s.Players() {
		if r.byPlayer[p.ID] == s {
			delete(r.byPlayer, p.ID)
		}
	}
}

func (r *Registry) Len() int {
	return len(r.byID)
}

// All returns the live sessions in no particular order.
func (r *Registry) All() []*Session {
	all := make([]*Session, 0, len(r.byID))
	for _, s := range r.byID {
		all = append(all, s)
	}

	return all
}
