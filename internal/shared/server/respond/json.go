package respond

import (
	"bytes"
	"html/template"
	"net/http"

	"github.com/gin-gonic/gin"

	"ballet-compare/internal/shared/telemetry"
)

// JSON writes a JSON response with the given status.
func JSON(c *gin.Context, status int, payload interface{}) {
	c.JSON(status, payload)
}

// OK writes a 200 OK JSON response.
func OK(c *gin.Context, payload interface{}) {
	JSON(c, http.StatusOK, payload)
}

// HTML executes the named template into a buffer first so a template error
// never leaves a half-written page behind.
func HTML(c *gin.Context, status int, tmpl *template.Template, name string, data any) {
	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		telemetry.Error("http.render_failed", map[string]any{
			"template":   name,
			"error":      err.Error(),
			"request_id": c.GetString("requestId"),
		})
		c.AbortWithStatus(http.StatusInternalServerError)
		return
	}
	c.Data(status, "text/html; charset=utf-8", buf.Bytes())
}
