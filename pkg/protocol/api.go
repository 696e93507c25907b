// Package protocol defines the API request/response types.
package protocol

// ContentResponse is returned by GET /api/files/content
type ContentResponse struct {
	Content string `json:"content"`
}

// ErrorResponse is returned on API errors.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Details string `json:"details,omitempty"`
}

// HealthResponse is returned by GET /health
type HealthResponse struct {
	Status  string `json:"status"`
	Backend string `json:"backend,omitempty"`
}

// Change event types sent on GET /api/events
const (
	EventCreate = "create"
	EventModify = "modify"
	EventDelete = "delete"
)

// Event is a file system change pushed over SSE.
type Event struct {
	Type string `json:"type"`
	Path string `json:"path"`
	Time int64  `json:"time"`
}
