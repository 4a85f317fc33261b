package session

// Directory is the keyed collection of open sessions, the only
// process-wide mutable state. Constructed once per client process and
// passed by reference; there is no ambient global lookup.
type Directory struct {
	max      int
	sessions map[string]*Session
	aliases  map[string]string // placeholder id -> durable id
}

func NewDirectory(maxOpen int) *Directory {
	if maxOpen <= 0 {
		maxOpen = 8
	}
	return &Directory{
		max:      maxOpen,
		sessions: make(map[string]*Session),
		aliases:  make(map[string]string),
	}
}

// Get resolves a conversation id to its session, following the placeholder
// alias left behind by a promotion so events addressed to either id land on
// the same session.
func (d *Directory) Get(id string) *Session {
	if s, ok := d.sessions[id]; ok {
		return s
	}
	if durable, ok := d.aliases[id]; ok {
		return d.sessions[durable]
	}
	return nil
}

// Create registers a new session for id. When the open-session cap is hit,
// the least recently used other session is returned for the caller to tear
// down; Create never evicts the session it just made.
func (d *Directory) Create(id string) (created, evicted *Session) {
	created = New(id)
	d.sessions[id] = created
	if len(d.sessions) <= d.max {
		return created, nil
	}
	for key, s := range d.sessions {
		if key == id {
			continue
		}
		if evicted == nil || s.LastActive().Before(evicted.LastActive()) {
			evicted = s
		}
	}
	return created, evicted
}

// Rekey moves a session from a placeholder id to its durable id, preserving
// the session object identity and leaving an alias so in-flight events for
// the old id still resolve.
func (d *Directory) Rekey(oldID, newID string) *Session {
	s, ok := d.sessions[oldID]
	if !ok {
		return nil
	}
	delete(d.sessions, oldID)
	s.ID = newID
	d.sessions[newID] = s
	d.aliases[oldID] = newID
	return s
}

// Remove deletes a session and every alias pointing at it.
func (d *Directory) Remove(id string) *Session {
	s := d.Get(id)
	if s == nil {
		return nil
	}
	delete(d.sessions, s.ID)
	for alias, durable := range d.aliases {
		if durable == s.ID || alias == id {
			delete(d.aliases, alias)
		}
	}
	return s
}

// Has reports whether id (or its alias) maps to an open session.
func (d *Directory) Has(id string) bool { return d.Get(id) != nil }

// Len returns the number of open sessions.
func (d *Directory) Len() int { return len(d.sessions) }

// All returns the open sessions in unspecified order.
func (d *Directory) All() []*Session {
	out := make([]*Session, 0, len(d.sessions))
	for _, s := range d.sessions {
		out = append(out, s)
	}
	return out
}
