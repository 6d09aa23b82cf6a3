package analyses

import "time"

const (
	StatusQueued     = "queued"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
	StatusCanceled   = "canceled"
)

// Feedback holds the textual parts of a comparison.
type Feedback struct {
	Basic   []string `json:"basic"`
	ChatGPT string   `json:"chatgpt"`
}

// Result is the merged answer of the three analysis calls.
type Result struct {
	Score    float64  `json:"score"`
	Feedback Feedback `json:"feedback"`
}

// Video describes one stored upload.
type Video struct {
	FileName   string `json:"fileName"`
	StorageKey string `json:"-"`
	SizeBytes  int64  `json:"sizeBytes"`
	MimeType   string `json:"mimeType"`
}

// Analysis is one comparison run of an ideal video against a user video.
type Analysis struct {
	ID           string     `json:"id"`
	Status       string     `json:"status"`
	Result       *Result    `json:"result,omitempty"`
	IdealVideo   Video      `json:"idealVideo"`
	UserVideo    Video      `json:"userVideo"`
	DispatchMode string     `json:"dispatchMode"`
	ErrorMessage *string    `json:"error,omitempty"`
	StartedAt    *time.Time `json:"startedAt,omitempty"`
	CompletedAt  *time.Time `json:"completedAt,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// Finished reports whether the analysis reached a terminal status.
func (a Analysis) Finished() bool {
	switch a.Status {
	case StatusCompleted, StatusFailed, StatusCanceled:
		return true
	default:
		return false
	}
}
