package memory

import (
	"context"
	"testing"
	"time"

	"medviewer-be/pkg/viewer/session"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEntry(id string) *Entry {
	return &Entry{Session: session.New(session.Options{ID: id})}
}

func TestSessionRepository(t *testing.T) {
	repo := NewSessionRepository(time.Hour)
	e := newEntry("s1")
	repo.Save(e)

	got, ok := repo.Get("s1")
	require.True(t, ok)
	assert.Same(t, e, got)
	assert.True(t, repo.Touch("s1"))
	assert.False(t, repo.Touch("missing"))
	assert.Equal(t, 1, repo.Count())

	repo.Delete("s1")
	_, ok = repo.Get("s1")
	assert.False(t, ok)

	// Deleting closes the session loop.
	err := e.Session.Do(context.Background(), nil)
	assert.ErrorIs(t, err, session.ErrClosed)
}

func TestSessionRepositoryCloseAll(t *testing.T) {
	repo := NewSessionRepository(time.Hour)
	a, b := newEntry("a"), newEntry("b")
	repo.Save(a)
	repo.Save(b)

	repo.CloseAll()

	assert.Zero(t, repo.Count())
	for _, e := range []*Entry{a, b} {
		assert.ErrorIs(t, e.Session.Do(context.Background(), nil), session.ErrClosed)
	}
}
