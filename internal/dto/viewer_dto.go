package dto

import "time"

type CreateSessionResponse struct {
	ID        string                 `json:"id"`
	CreatedAt time.Time              `json:"created_at"`
	State     map[string]interface{} `json:"state"`
}

type SessionStateResponse struct {
	ID    string                 `json:"id"`
	Busy  bool                   `json:"busy"`
	State map[string]interface{} `json:"state"`
}

type LoadDatasetRequest struct {
	ItemID string `json:"item_id" validate:"required"`
}

type LoadDatasetResponse struct {
	ItemID string `json:"item_id"`
	Status string `json:"status"`
}

type ObliquesRequest struct {
	Visible *bool `json:"visible" validate:"required"`
}

type QuadViewRequest struct {
	Enabled *bool `json:"enabled" validate:"required"`
}

type FullscreenRequest struct {
	// Empty view returns to the quad layout.
	View string `json:"view" validate:"omitempty,oneof=sagittal coronal axial 3d"`
}

type ObliqueModeRequest struct {
	Enabled *bool `json:"enabled" validate:"required"`
}

type CursorRequest struct {
	Position []float64   `json:"position" validate:"omitempty,len=3"`
	Normals  [][]float64 `json:"normals" validate:"omitempty,len=3,dive,len=3"`
}

type SliderRequest struct {
	Value *int `json:"value" validate:"required,gte=0"`
}

// InteractionRequest is shared by the REST endpoint and the websocket
// "interaction" frame.
type InteractionRequest struct {
	View    string  `json:"view"`
	Kind    string  `json:"kind" validate:"required,oneof=scroll drag rotate window_level zoom orbit end"`
	Delta   int     `json:"delta"`
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	Width   int     `json:"width"`
	Height  int     `json:"height"`
	Degrees float64 `json:"degrees"`
	Window  float64 `json:"window"`
	Level   float64 `json:"level"`
	Factor  float64 `json:"factor"`
	Azimuth float64 `json:"azimuth"`
	Elevate float64 `json:"elevation"`
}

type WindowLevelRequest struct {
	Min *float64 `json:"min" validate:"required"`
	Max *float64 `json:"max" validate:"required"`
}

type DatasetPropertiesRequest struct {
	Opacity *float64 `json:"opacity" validate:"omitempty,gte=0,lte=1"`
	// Color is a hex string such as "#ff0000".
	Color string   `json:"color" validate:"omitempty,hexcolor"`
	Min   *float64 `json:"min"`
	Max   *float64 `json:"max"`
}

type PresetRequest struct {
	Name      string `json:"name" validate:"required"`
	DatasetID string `json:"dataset_id"`
}

// SetStateRequest is the websocket "set" frame.
type SetStateRequest struct {
	Key   string      `json:"key" validate:"required"`
	Value interface{} `json:"value"`
}

type ActivityResponse struct {
	ID        string                 `json:"id"`
	SessionID string                 `json:"session_id"`
	UserID    string                 `json:"user_id"`
	ItemID    string                 `json:"item_id,omitempty"`
	EventType string                 `json:"event_type"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}

type ActivityListResponse struct {
	Items []ActivityResponse `json:"items"`
	Total int64              `json:"total"`
}

// LoadJobMessage is the payload of the background load topic.
type LoadJobMessage struct {
	SessionID  string `json:"session_id"`
	ItemID     string `json:"item_id"`
	Generation uint64 `json:"generation"`
	Token      string `json:"token"`
}
