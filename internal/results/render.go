package results

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"strings"

	"ballet-compare/internal/analyses"
)

// NotFoundMessage is rendered when there is no usable result to show.
const NotFoundMessage = "No analysis result was found."

//go:embed templates/*.html
var templatesFS embed.FS

// Templates holds the parsed result page.
var Templates = template.Must(template.ParseFS(templatesFS, "templates/*.html"))

// View is the data behind the result page.
type View struct {
	Found      bool
	Score      string
	Basic      template.HTML
	Commentary string
	Message    string
}

// ViewFor builds the page view for an analysis. Anything other than a
// completed analysis carrying a result renders the not found message.
func ViewFor(a *analyses.Analysis) View {
	if a == nil || a.Status != analyses.StatusCompleted || a.Result == nil {
		return View{Message: NotFoundMessage}
	}
	return FromResult(*a.Result)
}

// FromResult formats a result for display. Feedback lines are escaped one by
// one and joined with <br>, the only markup that reaches the page.
func FromResult(r analyses.Result) View {
	lines := make([]string, 0, len(r.Feedback.Basic))
	for _, line := range r.Feedback.Basic {
		lines = append(lines, template.HTMLEscapeString(line))
	}
	return View{
		Found:      true,
		Score:      fmt.Sprintf("%.1f", r.Score),
		Basic:      template.HTML(strings.Join(lines, "<br>")),
		Commentary: r.Feedback.ChatGPT,
	}
}

// Render writes the result page for v.
func Render(w io.Writer, v View) error {
	return Templates.ExecuteTemplate(w, "result.html", v)
}
