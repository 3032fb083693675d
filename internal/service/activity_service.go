package service

import (
	"context"
	"encoding/json"
	"strings"

	"medviewer-be/internal/dto"
	"medviewer-be/internal/model"
	"medviewer-be/internal/pkg/logger"
	"medviewer-be/internal/repository"
	"medviewer-be/pkg/events"
	pktNats "medviewer-be/pkg/nats"

	"gorm.io/datatypes"
)

// EventDelivery pushes viewer events to the session's browsers. The
// websocket hub implements it.
type EventDelivery interface {
	PublishEvent(sessionID, eventType string, payload map[string]interface{})
}

// EventBus is what sessions publish their events to: live clients get them
// at once, the NATS stream keeps them for the activity log.
type EventBus struct {
	delivery  EventDelivery
	publisher events.Publisher
}

func NewEventBus(delivery EventDelivery, publisher events.Publisher) *EventBus {
	return &EventBus{delivery: delivery, publisher: publisher}
}

func (b *EventBus) Publish(ctx context.Context, event events.Event) error {
	payload := event.Payload()
	if b.delivery != nil {
		if sessionID, _ := payload["session_id"].(string); sessionID != "" {
			b.delivery.PublishEvent(sessionID, event.EventType(), payload)
		}
	}
	if b.publisher == nil {
		return nil
	}
	return b.publisher.Publish(ctx, event)
}

type IActivityService interface {
	Start() error
	List(ctx context.Context, userID string, sessionID string, limit, offset int) (*dto.ActivityListResponse, error)
}

type ActivityService struct {
	repo       repository.ActivityRepository
	subscriber *pktNats.Subscriber
	logger     logger.ILogger
}

func NewActivityService(repo repository.ActivityRepository, sub *pktNats.Subscriber, log logger.ILogger) *ActivityService {
	return &ActivityService{
		repo:       repo,
		subscriber: sub,
		logger:     log,
	}
}

// Start begins listening to the viewer stream.
func (s *ActivityService) Start() error {
	if s.subscriber == nil {
		s.logger.Warn("ActivityService", "No NATS subscriber, activity log disabled", nil)
		return nil
	}
	err := s.subscriber.Subscribe(pktNats.SubjectPrefix+">", "viewer-activity-worker", s.HandleEvent)
	if err != nil {
		s.logger.Error("ActivityService", "Failed to start activity subscriber", map[string]interface{}{"error": err.Error()})
		return err
	}
	s.logger.Info("ActivityService", "Activity service started", map[string]interface{}{"subject": pktNats.SubjectPrefix + ">"})
	return nil
}

// HandleEvent stores one viewer event. Unknown types are skipped, not retried.
func (s *ActivityService) HandleEvent(ctx context.Context, event events.Event) error {
	typeCode := strings.TrimPrefix(event.EventType(), pktNats.SubjectPrefix)
	if !events.IsViewerType(typeCode) {
		s.logger.Debug("ActivityService", "Skipping unknown event type", map[string]interface{}{"type": typeCode})
		return nil
	}

	payload := event.Payload()
	sessionID, _ := payload["session_id"].(string)
	userID, _ := payload["user_id"].(string)
	itemID, _ := payload["item_id"].(string)

	raw, err := json.Marshal(payload)
	if err != nil {
		s.logger.Warn("ActivityService", "Unencodable payload, storing without it", map[string]interface{}{"type": typeCode, "error": err.Error()})
		raw = nil
	}

	activity := &model.DatasetActivity{
		SessionID: sessionID,
		UserID:    userID,
		ItemID:    itemID,
		EventType: typeCode,
		Payload:   datatypes.JSON(raw),
	}
	if !event.Timestamp().IsZero() {
		activity.CreatedAt = event.Timestamp()
	}
	return s.repo.Create(ctx, activity)
}

func (s *ActivityService) List(ctx context.Context, userID string, sessionID string, limit, offset int) (*dto.ActivityListResponse, error) {
	rows, total, err := s.repo.List(ctx, repository.ActivityFilter{
		SessionID: sessionID,
		UserID:    userID,
		Limit:     limit,
		Offset:    offset,
	})
	if err != nil {
		return nil, err
	}

	items := make([]dto.ActivityResponse, 0, len(rows))
	for _, row := range rows {
		var payload map[string]interface{}
		if len(row.Payload) > 0 {
			_ = json.Unmarshal(row.Payload, &payload)
		}
		items = append(items, dto.ActivityResponse{
			ID:        row.ID.String(),
			SessionID: row.SessionID,
			UserID:    row.UserID,
			ItemID:    row.ItemID,
			EventType: row.EventType,
			Payload:   payload,
			CreatedAt: row.CreatedAt,
		})
	}
	return &dto.ActivityListResponse{Items: items, Total: total}, nil
}
