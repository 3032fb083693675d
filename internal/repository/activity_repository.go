package repository

import (
	"context"

	"medviewer-be/internal/model"
)

type ActivityFilter struct {
	SessionID string
	UserID    string
	EventType string
	Limit     int
	Offset    int
}

type ActivityRepository interface {
	Create(ctx context.Context, activity *model.DatasetActivity) error
	List(ctx context.Context, filter ActivityFilter) ([]model.DatasetActivity, int64, error)
}
