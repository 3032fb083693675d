package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	deltas []map[string]interface{}
}

func (p *recordingPublisher) PublishState(_ string, delta map[string]interface{}) {
	p.deltas = append(p.deltas, delta)
}

func TestStateSetNotifiesOnlyOnChange(t *testing.T) {
	s := NewState("s1", nil)
	var seen []interface{}
	s.OnChange(func(_ string, v interface{}) { seen = append(seen, v) }, KeyPosition)

	assert.True(t, s.Set(KeyPosition, []float64{1, 2, 3}))
	assert.False(t, s.Set(KeyPosition, []float64{1, 2, 3}))
	assert.True(t, s.Set(KeyPosition, []float64{1, 2, 4}))
	s.Set(KeyBusy, true)

	assert.Len(t, seen, 2)
}

func TestStateFlushPublishesDelta(t *testing.T) {
	pub := &recordingPublisher{}
	s := NewState("s1", pub)

	assert.False(t, s.Flush())

	s.Set(KeyQuadView, true)
	s.Set(KeyQuadView, false)
	s.Set(KeyBusy, true)
	assert.Equal(t, []string{KeyBusy, KeyQuadView}, s.Pending())

	require.True(t, s.Flush())
	require.Len(t, pub.deltas, 1)
	assert.Equal(t, map[string]interface{}{KeyQuadView: false, KeyBusy: true}, pub.deltas[0])
	assert.Empty(t, s.Pending())
	assert.False(t, s.Flush())
}

func TestStateUnsubscribe(t *testing.T) {
	s := NewState("s1", nil)
	calls := 0
	unsubscribe := s.OnChange(func(string, interface{}) { calls++ })

	s.Set("a", 1)
	unsubscribe()
	s.Set("a", 2)

	assert.Equal(t, 1, calls)
}

func TestStateHandlerMaySetOtherKeys(t *testing.T) {
	s := NewState("s1", nil)
	s.OnChange(func(_ string, v interface{}) {
		s.Set("mirror", v)
	}, "source")

	s.Set("source", 7)

	v, ok := s.Get("mirror")
	require.True(t, ok)
	assert.Equal(t, 7, v)
}

func TestStateSnapshotIsCopy(t *testing.T) {
	s := NewState("s1", nil)
	s.Update(map[string]interface{}{"a": 1, "b": 2})

	snap := s.Snapshot()
	snap["a"] = 100

	v, _ := s.Get("a")
	assert.Equal(t, 1, v)
	assert.Len(t, snap, 2)
}
