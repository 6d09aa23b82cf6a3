package analyses

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"ballet-compare/internal/shared/server/middleware"
	"ballet-compare/internal/shared/server/respond"
	"ballet-compare/internal/uploads"
)

// MissingVideosNotice is shown whenever a submission lacks one of the videos.
const MissingVideosNotice = "Please select two videos."

// Handler wires the JSON API to the analyses service.
type Handler struct {
	Svc            *Service
	MaxUploadBytes int64
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service, maxUploadBytes int64) *Handler {
	return &Handler{Svc: svc, MaxUploadBytes: maxUploadBytes}
}

// RegisterRoutes attaches analysis routes to the router group. submit runs
// in front of the create route only.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, submit ...gin.HandlerFunc) {
	rg.POST("/analyses", append(submit, h.createAnalysis)...)
	rg.GET("/analyses", h.listAnalyses)
	rg.GET("/analyses/:id", h.getAnalysis)
	rg.DELETE("/analyses/:id", h.cancelAnalysis)
}

type analysisResponse struct {
	Analysis
	ResultURL string `json:"resultUrl,omitempty"`
}

func toResponse(a Analysis) analysisResponse {
	resp := analysisResponse{Analysis: a}
	if a.Status == StatusCompleted {
		resp.ResultURL = "/results/" + a.ID
	}
	return resp
}

func (h *Handler) createAnalysis(c *gin.Context) {
	if h.MaxUploadBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.MaxUploadBytes)
	}
	sel, err := uploads.FromRequest(c.Request, h.MaxUploadBytes)
	if err != nil {
		if errors.Is(err, uploads.ErrTooLarge) {
			respond.Error(c, http.StatusRequestEntityTooLarge, "payload_too_large", "videos exceed the upload limit", nil)
			return
		}
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid multipart form", nil)
		return
	}
	if !sel.Complete() {
		details := make([]map[string]string, 0, 2)
		for _, z := range sel.Retry() {
			details = append(details, map[string]string{"field": z.Name, "issue": missingIssue(!z.Missing)})
		}
		respond.Error(c, http.StatusBadRequest, "validation_error", MissingVideosNotice, details)
		return
	}

	ideal, user, closeAll, err := OpenSelection(sel)
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "could not read uploaded videos", nil)
		return
	}
	defer closeAll()

	ctx := WithRequestID(c.Request.Context(), middleware.RequestIDFromContext(c))
	analysis, err := h.Svc.Submit(ctx, ideal, user)
	if err != nil {
		switch {
		case errors.Is(err, ErrMissingVideos):
			respond.Error(c, http.StatusBadRequest, "validation_error", MissingVideosNotice, nil)
		case errors.Is(err, ErrShuttingDown):
			respond.Error(c, http.StatusServiceUnavailable, "unavailable", "server is shutting down", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "storage_error", "failed to start analysis", nil)
		}
		return
	}
	c.Set("analysisId", analysis.ID)
	c.Set("statusTransition", "->"+StatusQueued)
	c.Header("Location", "/api/v1/analyses/"+analysis.ID)
	respond.JSON(c, http.StatusAccepted, gin.H{
		"analysisId": analysis.ID,
		"status":     analysis.Status,
	})
}

func (h *Handler) getAnalysis(c *gin.Context) {
	analysisID := c.Param("id")
	c.Set("analysisId", analysisID)
	analysis, err := h.Svc.Get(c.Request.Context(), analysisID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			respond.Error(c, http.StatusNotFound, "not_found", "analysis not found", nil)
			return
		}
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to load analysis", nil)
		return
	}
	respond.OK(c, toResponse(analysis))
}

func (h *Handler) listAnalyses(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			respond.Error(c, http.StatusBadRequest, "validation_error", "limit must be a non-negative integer", nil)
			return
		}
		limit = parsed
	}
	items, err := h.Svc.List(c.Request.Context(), limit)
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to list analyses", nil)
		return
	}
	out := make([]analysisResponse, 0, len(items))
	for _, a := range items {
		out = append(out, toResponse(a))
	}
	respond.OK(c, gin.H{"items": out})
}

func (h *Handler) cancelAnalysis(c *gin.Context) {
	analysisID := c.Param("id")
	c.Set("analysisId", analysisID)
	ctx := WithRequestID(c.Request.Context(), middleware.RequestIDFromContext(c))
	analysis, err := h.Svc.Cancel(ctx, analysisID)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "analysis not found", nil)
		case errors.Is(err, ErrNotCancelable):
			respond.Error(c, http.StatusConflict, "conflict", "analysis already finished", gin.H{"status": analysis.Status})
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to cancel analysis", nil)
		}
		return
	}
	c.Set("statusTransition", "->"+StatusCanceled)
	respond.OK(c, toResponse(analysis))
}

func missingIssue(present bool) string {
	if present {
		return "ok"
	}
	return "missing"
}
