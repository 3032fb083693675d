package implementation

import (
	"context"

	"medviewer-be/internal/model"
	"medviewer-be/internal/repository"
	"medviewer-be/internal/repository/scope"
	"medviewer-be/internal/repository/specification"

	"gorm.io/gorm"
)

type ActivityRepositoryImpl struct {
	db *gorm.DB
}

func NewActivityRepository(db *gorm.DB) repository.ActivityRepository {
	return &ActivityRepositoryImpl{db: db}
}

func (r *ActivityRepositoryImpl) Create(ctx context.Context, activity *model.DatasetActivity) error {
	return r.db.WithContext(ctx).Create(activity).Error
}

func (r *ActivityRepositoryImpl) List(ctx context.Context, filter repository.ActivityFilter) ([]model.DatasetActivity, int64, error) {
	var activities []model.DatasetActivity
	var total int64

	filters := specification.ActivityFilters(filter.SessionID, filter.UserID, filter.EventType)
	db := specification.Apply(r.db.WithContext(ctx).Model(&model.DatasetActivity{}), filters...)

	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := specification.Apply(db, specification.Pagination{Limit: filter.Limit, Offset: filter.Offset}).
		Scopes(scope.OrderByCreatedDesc).
		Find(&activities).Error

	return activities, total, err
}
