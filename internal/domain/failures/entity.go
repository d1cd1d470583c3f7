package failures

import "time"

// Failure is a persisted stage failure of a pipeline session.
type Failure struct {
	ID          int64     `json:"id"`
	SessionID   string    `json:"session_id"`
	Stage       string    `json:"stage"` // select | upload | analyze | export
	Message     string    `json:"message"`
	DetailsJSON string    `json:"details_json,omitempty"` // raw JSON string
	CreatedAt   time.Time `json:"created_at"`
}
