package results

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"ballet-compare/internal/analyses"
	"ballet-compare/internal/shared/server/respond"
	"ballet-compare/internal/shared/telemetry"
)

// Handler serves the result page.
type Handler struct {
	Svc *analyses.Service
}

func NewHandler(svc *analyses.Service) *Handler {
	return &Handler{Svc: svc}
}

func (h *Handler) RegisterRoutes(r gin.IRoutes) {
	r.GET("/results/:id", h.show)
}

func (h *Handler) show(c *gin.Context) {
	analysisID := c.Param("id")
	c.Set("analysisId", analysisID)

	analysis, err := h.Svc.Get(c.Request.Context(), analysisID)
	if err != nil {
		if !errors.Is(err, analyses.ErrNotFound) {
			telemetry.Error("results.load_failed", map[string]any{
				"request_id":  c.GetString("requestId"),
				"analysis_id": analysisID,
				"error":       err.Error(),
			})
		}
		respond.HTML(c, http.StatusNotFound, Templates, "result.html", ViewFor(nil))
		return
	}
	view := ViewFor(&analysis)
	status := http.StatusOK
	if !view.Found {
		status = http.StatusNotFound
	}
	respond.HTML(c, status, Templates, "result.html", view)
}
