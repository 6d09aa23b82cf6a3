package openai

import (
	"fmt"
	"strings"

	"ballet-compare/internal/llm"
)

const systemPrompt = "You are an encouraging ballet teacher who motivates students."

// BuildPrompt returns the system and user messages for a commentary request.
func BuildPrompt(input llm.CommentaryInput) (string, string) {
	var b strings.Builder
	b.WriteString("Based on the posture analysis below, coach the student kindly and concretely on what to improve.\n")
	fmt.Fprintf(&b, "Overall score: %.1f points\n", input.Score)
	if len(input.BasicFeedback) == 0 {
		b.WriteString("Main cues: none\n")
	} else {
		b.WriteString("Main cues:\n")
		for _, cue := range input.BasicFeedback {
			cue = strings.TrimSpace(cue)
			if cue == "" {
				continue
			}
			b.WriteString("- ")
			b.WriteString(cue)
			b.WriteString("\n")
		}
	}
	return systemPrompt, b.String()
}
