package specification

import (
	"gorm.io/gorm"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 200
)

// BySession filters activity rows of one viewer session.
type BySession struct {
	SessionID string
}

func (s BySession) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("session_id = ?", s.SessionID)
}

type ByUser struct {
	UserID string
}

func (s ByUser) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("user_id = ?", s.UserID)
}

type ByEventType struct {
	EventType string
}

func (s ByEventType) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("event_type = ?", s.EventType)
}

// Pagination clamps Limit to (0, MaxPageSize]; out of range falls back to
// DefaultPageSize.
type Pagination struct {
	Limit  int
	Offset int
}

func (s Pagination) Apply(db *gorm.DB) *gorm.DB {
	limit := s.Limit
	if limit <= 0 || limit > MaxPageSize {
		limit = DefaultPageSize
	}
	offset := s.Offset
	if offset < 0 {
		offset = 0
	}
	return db.Limit(limit).Offset(offset)
}

// ActivityFilters turns the optional filter fields into specs; empty
// fields do not filter.
func ActivityFilters(sessionID, userID, eventType string) []Specification {
	var specs []Specification
	if sessionID != "" {
		specs = append(specs, BySession{SessionID: sessionID})
	}
	if userID != "" {
		specs = append(specs, ByUser{UserID: userID})
	}
	if eventType != "" {
		specs = append(specs, ByEventType{EventType: eventType})
	}
	return specs
}
