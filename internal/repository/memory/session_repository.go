package memory

import (
	"time"

	"medviewer-be/pkg/fetch"
	"medviewer-be/pkg/viewer/session"

	"github.com/patrickmn/go-cache"
)

// Entry is one live viewer session and the data-server client built from
// its owner's token.
type Entry struct {
	Session *session.Session
	Fetcher *fetch.Fetcher
}

func (e *Entry) close() {
	e.Session.Close()
	if e.Fetcher != nil {
		e.Fetcher.Close()
	}
}

type SessionRepository struct {
	cache *cache.Cache
	ttl   time.Duration
}

// NewSessionRepository keeps sessions for ttl after their last use. Expired
// or deleted sessions are closed.
func NewSessionRepository(ttl time.Duration) *SessionRepository {
	if ttl <= 0 {
		ttl = time.Hour
	}
	c := cache.New(ttl, 10*time.Minute)
	c.OnEvicted(func(_ string, v interface{}) {
		if e, ok := v.(*Entry); ok {
			e.close()
		}
	})
	return &SessionRepository{cache: c, ttl: ttl}
}

func (r *SessionRepository) Save(entry *Entry) {
	r.cache.Set(entry.Session.ID(), entry, cache.DefaultExpiration)
}

func (r *SessionRepository) Get(sessionID string) (*Entry, bool) {
	if x, found := r.cache.Get(sessionID); found {
		return x.(*Entry), true
	}
	return nil, false
}

// Touch extends the lifetime of sessionID.
func (r *SessionRepository) Touch(sessionID string) bool {
	x, found := r.cache.Get(sessionID)
	if !found {
		return false
	}
	// Replace does not fire OnEvicted.
	return r.cache.Replace(sessionID, x, cache.DefaultExpiration) == nil
}

func (r *SessionRepository) Delete(sessionID string) {
	r.cache.Delete(sessionID)
}

func (r *SessionRepository) Count() int {
	return r.cache.ItemCount()
}

// CloseAll closes every session, used on shutdown.
func (r *SessionRepository) CloseAll() {
	for id := range r.cache.Items() {
		r.cache.Delete(id)
	}
}
