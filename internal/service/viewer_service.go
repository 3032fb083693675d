package service

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"strconv"
	"strings"
	"time"

	"medviewer-be/internal/dto"
	"medviewer-be/internal/pkg/logger"
	"medviewer-be/internal/pkg/serverutils"
	"medviewer-be/internal/repository/memory"
	"medviewer-be/internal/websocket"
	"medviewer-be/pkg/events"
	"medviewer-be/pkg/fetch"
	"medviewer-be/pkg/render"
	"medviewer-be/pkg/store"
	"medviewer-be/pkg/viewer/cursor"
	"medviewer-be/pkg/viewer/scene"
	"medviewer-be/pkg/viewer/session"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

var (
	ErrSessionNotFound  = fiber.NewError(fiber.StatusNotFound, "viewer session not found")
	ErrSessionForbidden = fiber.NewError(fiber.StatusForbidden, "viewer session belongs to another user")
)

type IViewerService interface {
	Create(ctx context.Context, userID, token string) (*dto.CreateSessionResponse, error)
	Close(ctx context.Context, userID, sessionID string) error
	Authorize(userID, sessionID string) error
	State(ctx context.Context, userID, sessionID string) (*dto.SessionStateResponse, error)

	Load(ctx context.Context, userID, sessionID string, req *dto.LoadDatasetRequest) (*dto.LoadDatasetResponse, error)
	Remove(ctx context.Context, userID, sessionID, datasetID string) error
	Clear(ctx context.Context, userID, sessionID string) error
	Reset(ctx context.Context, userID, sessionID string) error

	SetObliques(ctx context.Context, userID, sessionID string, visible bool) error
	SetQuadView(ctx context.Context, userID, sessionID string, enabled bool) error
	SetFullscreen(ctx context.Context, userID, sessionID, view string) error
	SetObliqueMode(ctx context.Context, userID, sessionID string, enabled bool) error

	SetCursor(ctx context.Context, userID, sessionID string, req *dto.CursorRequest) error
	SetSlider(ctx context.Context, userID, sessionID, view string, value int) error
	Interact(ctx context.Context, userID, sessionID string, req *dto.InteractionRequest) error
	SetWindowLevel(ctx context.Context, userID, sessionID string, min, max float64) error
	SetDatasetProperties(ctx context.Context, userID, sessionID, datasetID string, req *dto.DatasetPropertiesRequest) error
	SetPreset(ctx context.Context, userID, sessionID string, req *dto.PresetRequest) error
	Presets() []string

	Render(ctx context.Context, userID, sessionID, view string, width, height int) (image.Image, error)

	// HandleMessage applies a websocket frame; the hub has already checked
	// the client owns the session.
	HandleMessage(ctx context.Context, sessionID string, msg websocket.Message) error
}

type ViewerOptions struct {
	Debounce time.Duration
	Presets  *render.PresetBook
	Fetch    fetch.Options
}

type viewerService struct {
	sessions   *memory.SessionRepository
	dispatcher session.Dispatcher
	events     session.EventPublisher
	notifier   session.Notifier
	opts       ViewerOptions
	logger     logger.ILogger
}

func NewViewerService(
	sessions *memory.SessionRepository,
	dispatcher session.Dispatcher,
	eventPublisher session.EventPublisher,
	notifier session.Notifier,
	opts ViewerOptions,
	log logger.ILogger,
) IViewerService {
	if opts.Presets == nil {
		opts.Presets = render.DefaultPresets()
	}
	return &viewerService{
		sessions:   sessions,
		dispatcher: dispatcher,
		events:     eventPublisher,
		notifier:   notifier,
		opts:       opts,
		logger:     log,
	}
}

func (s *viewerService) Create(ctx context.Context, userID, token string) (*dto.CreateSessionResponse, error) {
	id := uuid.NewString()

	fetchOpts := s.opts.Fetch
	fetchOpts.Logger = s.logger.Named("Fetch")
	fetcher, err := fetch.New(context.Background(), fetchOpts, token)
	if err != nil {
		return nil, fmt.Errorf("create data client: %w", err)
	}

	sess := session.New(session.Options{
		ID:         id,
		UserID:     userID,
		Token:      token,
		Debounce:   s.opts.Debounce,
		Presets:    s.opts.Presets,
		Notifier:   s.notifier,
		Dispatcher: s.dispatcher,
		Events:     s.events,
		Logger:     s.logger.Named("Session"),
	})
	s.sessions.Save(&memory.Entry{Session: sess, Fetcher: fetcher})

	s.logger.Info("Viewer", "Session created", map[string]interface{}{"session_id": id, "user_id": userID})
	s.publish(ctx, events.SessionOpened, id, userID, nil)

	return &dto.CreateSessionResponse{
		ID:        id,
		CreatedAt: sess.CreatedAt(),
		State:     sess.Snapshot(),
	}, nil
}

func (s *viewerService) Close(ctx context.Context, userID, sessionID string) error {
	if _, err := s.session(userID, sessionID); err != nil {
		return err
	}
	// Deleting from the repository closes the session and its data client.
	s.sessions.Delete(sessionID)
	s.logger.Info("Viewer", "Session closed", map[string]interface{}{"session_id": sessionID})
	s.publish(ctx, events.SessionClosed, sessionID, userID, nil)
	return nil
}

func (s *viewerService) Authorize(userID, sessionID string) error {
	_, err := s.session(userID, sessionID)
	return err
}

func (s *viewerService) session(userID, sessionID string) (*session.Session, error) {
	entry, ok := s.sessions.Get(sessionID)
	if !ok {
		return nil, ErrSessionNotFound
	}
	if entry.Session.UserID() != userID {
		return nil, ErrSessionForbidden
	}
	s.sessions.Touch(sessionID)
	return entry.Session, nil
}

func (s *viewerService) do(ctx context.Context, userID, sessionID string, fn func(c *scene.Collection) error) error {
	sess, err := s.session(userID, sessionID)
	if err != nil {
		return err
	}
	return sess.Do(ctx, fn)
}

func (s *viewerService) State(ctx context.Context, userID, sessionID string) (*dto.SessionStateResponse, error) {
	sess, err := s.session(userID, sessionID)
	if err != nil {
		return nil, err
	}
	return &dto.SessionStateResponse{ID: sess.ID(), Busy: sess.Busy(), State: sess.Snapshot()}, nil
}

func (s *viewerService) Load(ctx context.Context, userID, sessionID string, req *dto.LoadDatasetRequest) (*dto.LoadDatasetResponse, error) {
	sess, err := s.session(userID, sessionID)
	if err != nil {
		return nil, err
	}
	if err := sess.Load(ctx, req.ItemID); err != nil {
		return nil, err
	}
	return &dto.LoadDatasetResponse{ItemID: req.ItemID, Status: "loading"}, nil
}

func (s *viewerService) Remove(ctx context.Context, userID, sessionID, datasetID string) error {
	sess, err := s.session(userID, sessionID)
	if err != nil {
		return err
	}
	return sess.Remove(ctx, datasetID)
}

func (s *viewerService) Clear(ctx context.Context, userID, sessionID string) error {
	sess, err := s.session(userID, sessionID)
	if err != nil {
		return err
	}
	return sess.Clear(ctx)
}

func (s *viewerService) Reset(ctx context.Context, userID, sessionID string) error {
	sess, err := s.session(userID, sessionID)
	if err != nil {
		return err
	}
	return sess.Reset(ctx)
}

func (s *viewerService) SetObliques(ctx context.Context, userID, sessionID string, visible bool) error {
	sess, err := s.session(userID, sessionID)
	if err != nil {
		return err
	}
	return sess.SetObliqueVisible(ctx, visible)
}

func (s *viewerService) SetQuadView(ctx context.Context, userID, sessionID string, enabled bool) error {
	sess, err := s.session(userID, sessionID)
	if err != nil {
		return err
	}
	return sess.SetQuadView(ctx, enabled)
}

func (s *viewerService) SetFullscreen(ctx context.Context, userID, sessionID, view string) error {
	return s.do(ctx, userID, sessionID, func(c *scene.Collection) error {
		return c.SetFullscreen(view)
	})
}

func (s *viewerService) SetObliqueMode(ctx context.Context, userID, sessionID string, enabled bool) error {
	return s.do(ctx, userID, sessionID, func(c *scene.Collection) error {
		c.SetObliqueMode(enabled)
		return nil
	})
}

func (s *viewerService) SetCursor(ctx context.Context, userID, sessionID string, req *dto.CursorRequest) error {
	sess, err := s.session(userID, sessionID)
	if err != nil {
		return err
	}
	if req.Position == nil && req.Normals == nil {
		return fiber.NewError(fiber.StatusBadRequest, "position or normals is required")
	}
	if req.Position != nil {
		if err := sess.SetExternal(ctx, store.KeyPosition, req.Position); err != nil {
			return err
		}
	}
	if req.Normals != nil {
		if err := sess.SetExternal(ctx, store.KeyNormals, req.Normals); err != nil {
			return err
		}
	}
	return nil
}

func (s *viewerService) SetSlider(ctx context.Context, userID, sessionID, view string, value int) error {
	if _, ok := cursor.ParsePlane(view); !ok {
		return fmt.Errorf("%w: %s", scene.ErrUnknownView, view)
	}
	sess, err := s.session(userID, sessionID)
	if err != nil {
		return err
	}
	return sess.SetExternal(ctx, store.KeySliderValuePrefix+view, value)
}

func (s *viewerService) Interact(ctx context.Context, userID, sessionID string, req *dto.InteractionRequest) error {
	return s.do(ctx, userID, sessionID, func(c *scene.Collection) error {
		return applyInteraction(c, req)
	})
}

func applyInteraction(c *scene.Collection, req *dto.InteractionRequest) error {
	switch req.Kind {
	case "scroll":
		return c.Scroll(req.View, req.Delta)
	case "drag":
		return c.DragCursor(req.View, req.X, req.Y, req.Width, req.Height)
	case "rotate":
		return c.RotateCursor(req.View, req.Degrees)
	case "window_level":
		return c.WindowLevelDrag(req.View, req.Window, req.Level)
	case "zoom":
		return c.Zoom(req.View, req.Factor)
	case "orbit":
		c.Orbit(req.Azimuth, req.Elevate)
		return nil
	case "end":
		c.EndInteraction()
		return nil
	default:
		return fiber.NewError(fiber.StatusBadRequest, "unknown interaction kind: "+req.Kind)
	}
}

func (s *viewerService) SetWindowLevel(ctx context.Context, userID, sessionID string, min, max float64) error {
	return s.do(ctx, userID, sessionID, func(c *scene.Collection) error {
		return c.SetWindowLevel(min, max)
	})
}

func (s *viewerService) SetDatasetProperties(ctx context.Context, userID, sessionID, datasetID string, req *dto.DatasetPropertiesRequest) error {
	var col *color.RGBA
	if req.Color != "" {
		parsed, err := parseHexColor(req.Color)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		col = &parsed
	}
	if (req.Min == nil) != (req.Max == nil) {
		return fiber.NewError(fiber.StatusBadRequest, "min and max must be given together")
	}

	return s.do(ctx, userID, sessionID, func(c *scene.Collection) error {
		if req.Opacity != nil {
			if err := c.SetOpacity(datasetID, *req.Opacity); err != nil {
				return err
			}
		}
		if col != nil {
			if err := c.SetMeshColor(datasetID, *col); err != nil {
				return err
			}
		}
		if req.Min != nil {
			if err := c.SetDatasetWindowLevel(datasetID, *req.Min, *req.Max); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *viewerService) SetPreset(ctx context.Context, userID, sessionID string, req *dto.PresetRequest) error {
	return s.do(ctx, userID, sessionID, func(c *scene.Collection) error {
		return c.SetPreset(req.DatasetID, req.Name)
	})
}

func (s *viewerService) Presets() []string {
	return s.opts.Presets.Names()
}

func (s *viewerService) Render(ctx context.Context, userID, sessionID, view string, width, height int) (image.Image, error) {
	sess, err := s.session(userID, sessionID)
	if err != nil {
		return nil, err
	}
	return sess.Render(ctx, view, width, height)
}

func (s *viewerService) HandleMessage(ctx context.Context, sessionID string, msg websocket.Message) error {
	entry, ok := s.sessions.Get(sessionID)
	if !ok {
		return ErrSessionNotFound
	}
	s.sessions.Touch(sessionID)
	sess := entry.Session

	switch msg.Type {
	case "set":
		var req dto.SetStateRequest
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			return fmt.Errorf("malformed set frame: %w", err)
		}
		if err := serverutils.ValidateRequest(req); err != nil {
			return err
		}
		return s.setState(ctx, sess, req)
	case "interaction":
		var req dto.InteractionRequest
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			return fmt.Errorf("malformed interaction frame: %w", err)
		}
		if err := serverutils.ValidateRequest(req); err != nil {
			return err
		}
		return sess.Do(ctx, func(c *scene.Collection) error {
			return applyInteraction(c, &req)
		})
	default:
		return fmt.Errorf("unknown frame type %q", msg.Type)
	}
}

// setState routes a client widget write. Layout keys go through their
// operations so dependent keys stay consistent; the rest are external writes.
func (s *viewerService) setState(ctx context.Context, sess *session.Session, req dto.SetStateRequest) error {
	switch req.Key {
	case store.KeyObliquesVisibility:
		visible, ok := req.Value.(bool)
		if !ok {
			return fmt.Errorf("%w: %s must be a boolean", scene.ErrBadValue, req.Key)
		}
		return sess.SetObliqueVisible(ctx, visible)
	case store.KeyQuadView:
		quad, ok := req.Value.(bool)
		if !ok {
			return fmt.Errorf("%w: %s must be a boolean", scene.ErrBadValue, req.Key)
		}
		return sess.SetQuadView(ctx, quad)
	case store.KeyBusy, store.KeyDisplayed, store.KeySelected:
		return fmt.Errorf("%w: %s is read only", scene.ErrBadValue, req.Key)
	default:
		return sess.SetExternal(ctx, req.Key, req.Value)
	}
}

func (s *viewerService) publish(ctx context.Context, eventType, sessionID, userID string, data map[string]interface{}) {
	if s.events == nil {
		return
	}
	if data == nil {
		data = map[string]interface{}{}
	}
	data["session_id"] = sessionID
	data["user_id"] = userID
	evt := events.BaseEvent{Type: eventType, Data: data, OccurredAt: time.Now()}
	if err := s.events.Publish(ctx, evt); err != nil {
		s.logger.Warn("Viewer", "Failed to publish event", map[string]interface{}{"type": eventType, "error": err.Error()})
	}
}

func parseHexColor(s string) (color.RGBA, error) {
	hex := strings.TrimPrefix(s, "#")
	if len(hex) == 3 {
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
	}
	if len(hex) != 6 {
		return color.RGBA{}, fmt.Errorf("invalid color %q", s)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("invalid color %q", s)
	}
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 255}, nil
}
