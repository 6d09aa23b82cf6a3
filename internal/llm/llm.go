package llm

import (
	"context"
	"errors"
	"fmt"
)

// Client writes coaching commentary for a finished comparison.
type Client interface {
	Commentary(ctx context.Context, input CommentaryInput) (string, error)
}

// CommentaryInput is what the model sees: the overall score and the cues
// returned by the basic feedback endpoint.
type CommentaryInput struct {
	Score         float64
	BasicFeedback []string
}

// ErrNotConfigured is returned when no provider has been wired.
var ErrNotConfigured = errors.New("commentary provider not configured")

// FallbackCommentary is the text stored in place of commentary when the
// provider fails. Provider failures do not fail the analysis.
func FallbackCommentary(err error) string {
	return fmt.Sprintf("Commentary generation failed: %v", err)
}
