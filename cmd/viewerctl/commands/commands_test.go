package commands

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWsURL(t *testing.T) {
	tests := []struct {
		server string
		want   string
	}{
		{"http://localhost:3000", "ws://localhost:3000/api/viewer/sessions/s1/ws?token=abc"},
		{"https://viewer.example.org/", "wss://viewer.example.org/api/viewer/sessions/s1/ws?token=abc"},
	}
	for _, tt := range tests {
		t.Run(tt.server, func(t *testing.T) {
			c, err := newClient(context.Background(), tt.server, "abc")
			require.NoError(t, err)
			assert.Equal(t, tt.want, c.wsURL("s1", "abc"))
		})
	}
}

func TestDisplayed(t *testing.T) {
	assert.True(t, displayed([]interface{}{"a", "head"}, "head"))
	assert.False(t, displayed([]interface{}{"a"}, "head"))
	assert.False(t, displayed(nil, "head"))
}

func TestClientCall(t *testing.T) {
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		switch r.URL.Path {
		case "/api/viewer/sessions":
			w.WriteHeader(http.StatusCreated)
			json.NewEncoder(w).Encode(map[string]interface{}{"success": true, "code": 201, "data": map[string]string{"id": "s1"}})
		default:
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(map[string]interface{}{"success": false, "code": 404, "message": "viewer session not found"})
		}
	}))
	defer srv.Close()

	c, err := newClient(context.Background(), srv.URL, "secret")
	require.NoError(t, err)

	var out struct {
		ID string `json:"id"`
	}
	require.NoError(t, c.call(context.Background(), http.MethodPost, nil, &out, "sessions"))
	assert.Equal(t, "s1", out.ID)
	assert.Equal(t, "Bearer secret", auth)

	err = c.call(context.Background(), http.MethodGet, nil, nil, "sessions", "nope", "state")
	assert.EqualError(t, err, "viewer session not found (404)")
}
