package controller

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	_ "image/jpeg"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"medviewer-be/internal/dto"
	"medviewer-be/internal/pkg/serverutils"
	"medviewer-be/internal/service"
	"medviewer-be/pkg/viewer/scene"
	"medviewer-be/pkg/viewer/session"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "controller-test-secret"

// fakeViewer implements only what the tests call; the rest panics through
// the nil embedded interface.
type fakeViewer struct {
	service.IViewerService
	loads      []string
	fullscreen string
	token      string
	loadErr    error
}

func (f *fakeViewer) Create(_ context.Context, userID, token string) (*dto.CreateSessionResponse, error) {
	f.token = token
	return &dto.CreateSessionResponse{ID: "s1", State: map[string]interface{}{"quad_view": true}}, nil
}

func (f *fakeViewer) Load(_ context.Context, userID, sessionID string, req *dto.LoadDatasetRequest) (*dto.LoadDatasetResponse, error) {
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	f.loads = append(f.loads, req.ItemID)
	return &dto.LoadDatasetResponse{ItemID: req.ItemID, Status: "loading"}, nil
}

func (f *fakeViewer) SetFullscreen(_ context.Context, userID, sessionID, view string) error {
	f.fullscreen = view
	return nil
}

func (f *fakeViewer) State(_ context.Context, userID, sessionID string) (*dto.SessionStateResponse, error) {
	if userID != "u1" {
		return nil, service.ErrSessionForbidden
	}
	return &dto.SessionStateResponse{ID: sessionID, State: map[string]interface{}{}}, nil
}

func (f *fakeViewer) Render(_ context.Context, userID, sessionID, view string, w, h int) (image.Image, error) {
	if view == "oblique" {
		return nil, fmt.Errorf("%w: %s", scene.ErrUnknownView, view)
	}
	return image.NewGray(image.Rect(0, 0, w, h)), nil
}

func newTestApp(t *testing.T, svc service.IViewerService) *fiber.App {
	t.Helper()
	t.Setenv("JWT_SECRET", testSecret)
	app := fiber.New()
	app.Use(serverutils.ErrorHandlerMiddleware())
	NewViewerController(svc, nil).RegisterRoutes(app.Group("/api"))
	return app
}

func signedToken(t *testing.T, userID string) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"user_id": userID})
	s, err := tok.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return s
}

func doRequest(t *testing.T, app *fiber.App, method, path, body, token string) (*http.Response, map[string]interface{}) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)

	var env map[string]interface{}
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	}
	return resp, env
}

func TestViewerRoutes(t *testing.T) {
	svc := &fakeViewer{}
	app := newTestApp(t, svc)
	token := signedToken(t, "u1")

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		token  string
		status int
	}{
		{"missing token", http.MethodPost, "/api/viewer/sessions", "", "", fiber.StatusUnauthorized},
		{"bad token", http.MethodPost, "/api/viewer/sessions", "", "nope", fiber.StatusUnauthorized},
		{"create", http.MethodPost, "/api/viewer/sessions", "", token, fiber.StatusCreated},
		{"load", http.MethodPost, "/api/viewer/sessions/s1/datasets", `{"item_id":"head"}`, token, fiber.StatusAccepted},
		{"load without item", http.MethodPost, "/api/viewer/sessions/s1/datasets", `{}`, token, fiber.StatusBadRequest},
		{"fullscreen", http.MethodPut, "/api/viewer/sessions/s1/layout/fullscreen", `{"view":"axial"}`, token, fiber.StatusOK},
		{"fullscreen unknown view", http.MethodPut, "/api/viewer/sessions/s1/layout/fullscreen", `{"view":"oblique"}`, token, fiber.StatusBadRequest},
		{"obliques without flag", http.MethodPut, "/api/viewer/sessions/s1/layout/obliques", `{}`, token, fiber.StatusBadRequest},
		{"state of other user", http.MethodGet, "/api/viewer/sessions/s1/state", "", signedToken(t, "u2"), fiber.StatusForbidden},
		{"image too large", http.MethodGet, "/api/viewer/sessions/s1/views/axial/image?width=5000", "", token, fiber.StatusBadRequest},
		{"image of unknown view", http.MethodGet, "/api/viewer/sessions/s1/views/oblique/image", "", token, fiber.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, env := doRequest(t, app, tt.method, tt.path, tt.body, tt.token)
			assert.Equal(t, tt.status, resp.StatusCode)
			if tt.status >= 400 {
				assert.Equal(t, false, env["success"])
			}
		})
	}

	assert.Equal(t, []string{"head"}, svc.loads)
	assert.Equal(t, "axial", svc.fullscreen)
	assert.Equal(t, token, svc.token)
}

func TestLoadWhileBusy(t *testing.T) {
	app := newTestApp(t, &fakeViewer{loadErr: session.ErrBusy})

	resp, env := doRequest(t, app, http.MethodPost, "/api/viewer/sessions/s1/datasets", `{"item_id":"head"}`, signedToken(t, "u1"))
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)
	assert.Equal(t, float64(fiber.StatusConflict), env["code"])
}

func TestImageIsJPEG(t *testing.T) {
	app := newTestApp(t, &fakeViewer{})

	resp, _ := doRequest(t, app, http.MethodGet, "/api/viewer/sessions/s1/views/axial/image?width=32&height=16", "", signedToken(t, "u1"))
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/jpeg", resp.Header.Get("Content-Type"))

	img, format, err := image.Decode(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
	assert.Equal(t, image.Rect(0, 0, 32, 16), img.Bounds())
}
