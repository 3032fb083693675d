package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// DatasetActivity is the audit row written for every viewer event.
type DatasetActivity struct {
	ID        uuid.UUID      `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	SessionID string         `gorm:"type:varchar(64);not null;index:idx_dataset_activities_session_created,priority:1" json:"session_id"`
	UserID    string         `gorm:"type:varchar(64);not null;index" json:"user_id"`
	ItemID    string         `gorm:"type:varchar(64);index" json:"item_id,omitempty"`
	EventType string         `gorm:"type:varchar(50);not null;index" json:"event_type"`
	Payload   datatypes.JSON `gorm:"type:jsonb" json:"payload,omitempty"`
	CreatedAt time.Time      `gorm:"default:CURRENT_TIMESTAMP;index:idx_dataset_activities_session_created,priority:2" json:"created_at"`
}

func (DatasetActivity) TableName() string {
	return "dataset_activities"
}
