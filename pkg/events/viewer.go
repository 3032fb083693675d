package events

// Viewer event types, published on "viewer.<TYPE>".
const (
	SessionOpened     = "SESSION_OPENED"
	SessionClosed     = "SESSION_CLOSED"
	DatasetLoaded     = "DATASET_LOADED"
	DatasetLoadFailed = "DATASET_LOAD_FAILED"
	DatasetDiscarded  = "DATASET_DISCARDED"
	DatasetRemoved    = "DATASET_REMOVED"
	ViewerCleared     = "VIEWER_CLEARED"
	ViewerReset       = "VIEWER_RESET"
)

// ViewerTypes lists every type the activity log records.
var ViewerTypes = []string{
	SessionOpened,
	SessionClosed,
	DatasetLoaded,
	DatasetLoadFailed,
	DatasetDiscarded,
	DatasetRemoved,
	ViewerCleared,
	ViewerReset,
}

// IsViewerType reports whether t is one of ViewerTypes.
func IsViewerType(t string) bool {
	for _, known := range ViewerTypes {
		if known == t {
			return true
		}
	}
	return false
}
