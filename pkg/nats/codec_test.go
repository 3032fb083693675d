package nats

import (
	"context"
	"errors"
	"testing"
	"time"

	"medviewer-be/pkg/events"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubject(t *testing.T) {
	assert.Equal(t, "viewer.DATASET_LOADED", Subject(events.DatasetLoaded))
}

func TestDispatchDecodesEnvelope(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	data, err := encode(events.BaseEvent{
		Type:       events.DatasetRemoved,
		Data:       map[string]interface{}{"item_id": "a"},
		OccurredAt: at,
	})
	require.NoError(t, err)

	var got events.Event
	require.NoError(t, Dispatch(data, func(_ context.Context, e events.Event) error {
		got = e
		return nil
	}))
	assert.Equal(t, events.DatasetRemoved, got.EventType())
	assert.Equal(t, "a", got.Payload()["item_id"])
	assert.True(t, at.Equal(got.Timestamp()))
}

func TestDispatchErrors(t *testing.T) {
	boom := errors.New("boom")
	tests := []struct {
		name    string
		data    string
		handler EventHandler
		wantErr error
	}{
		{"bad json", "{", func(context.Context, events.Event) error { return nil }, nil},
		{"handler error", `{"type":"X"}`, func(context.Context, events.Event) error { return boom }, boom},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Dispatch([]byte(tt.data), tt.handler)
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}
