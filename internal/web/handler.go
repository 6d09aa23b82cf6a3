package web

import (
	"embed"
	"errors"
	"html/template"
	"io/fs"
	"net/http"

	"github.com/gin-gonic/gin"

	"ballet-compare/internal/analyses"
	"ballet-compare/internal/shared/server/middleware"
	"ballet-compare/internal/shared/server/respond"
	"ballet-compare/internal/uploads"
)

//go:embed templates/*.html
var templatesFS embed.FS

//go:embed static
var staticFS embed.FS

// BusyStatus is shown while a submission is in flight. The page script
// clears it when the browser restores the page from its back/forward cache.
const BusyStatus = "Analyzing, please wait..."

var templates = template.Must(template.ParseFS(templatesFS, "templates/*.html"))

// IndexView is the data behind the upload page.
type IndexView struct {
	Zones         []uploads.Zone
	Notice        string
	Status        string
	MissingNotice string
	BusyStatus    string
}

// Handler serves the upload page and the form submission.
type Handler struct {
	Svc            *analyses.Service
	MaxUploadBytes int64
}

func NewHandler(svc *analyses.Service, maxUploadBytes int64) *Handler {
	return &Handler{Svc: svc, MaxUploadBytes: maxUploadBytes}
}

// RegisterRoutes attaches the page routes. submit runs in front of the form
// submission only.
func (h *Handler) RegisterRoutes(r gin.IRouter, submit ...gin.HandlerFunc) {
	static, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}
	r.StaticFS("/static", http.FS(static))
	r.GET("/", h.index)
	r.POST("/analyze", append(submit, h.analyze)...)
}

func (h *Handler) index(c *gin.Context) {
	h.renderIndex(c, http.StatusOK, IndexView{Zones: uploads.Zones()})
}

func (h *Handler) analyze(c *gin.Context) {
	if h.MaxUploadBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.MaxUploadBytes)
	}
	sel, err := uploads.FromRequest(c.Request, h.MaxUploadBytes)
	if err != nil {
		status := http.StatusBadRequest
		msg := "the upload could not be read"
		if errors.Is(err, uploads.ErrTooLarge) {
			status = http.StatusRequestEntityTooLarge
			msg = "the videos exceed the upload limit"
		}
		h.renderIndex(c, status, IndexView{Status: errorStatus(msg)})
		return
	}
	if !sel.Complete() {
		h.renderIndex(c, http.StatusBadRequest, IndexView{Zones: sel.Retry(), Notice: analyses.MissingVideosNotice})
		return
	}

	ideal, user, closeAll, err := analyses.OpenSelection(sel)
	if err != nil {
		h.renderIndex(c, http.StatusBadRequest, IndexView{Status: errorStatus(err.Error())})
		return
	}
	defer closeAll()

	ctx := analyses.WithRequestID(c.Request.Context(), middleware.RequestIDFromContext(c))
	created, err := h.Svc.Create(ctx, ideal, user)
	if err != nil {
		h.renderIndex(c, http.StatusInternalServerError, IndexView{Status: errorStatus(err.Error())})
		return
	}
	c.Set("analysisId", created.ID)

	// The run is bound to the request: a client that disconnects cancels it.
	done, err := h.Svc.Run(ctx, created.ID)
	if err != nil {
		if errors.Is(err, analyses.ErrCanceled) {
			c.Set("statusTransition", "processing->"+analyses.StatusCanceled)
			c.AbortWithStatus(499)
			return
		}
		if errors.Is(err, analyses.ErrShuttingDown) {
			h.renderIndex(c, http.StatusServiceUnavailable, IndexView{Status: errorStatus(err.Error())})
			return
		}
		c.Set("statusTransition", "processing->"+analyses.StatusFailed)
		h.renderIndex(c, http.StatusBadGateway, IndexView{Status: errorStatus(err.Error())})
		return
	}
	c.Set("statusTransition", "processing->"+done.Status)
	c.Redirect(http.StatusSeeOther, "/results/"+done.ID)
}

func (h *Handler) renderIndex(c *gin.Context, status int, view IndexView) {
	if len(view.Zones) == 0 {
		view.Zones = uploads.Zones()
	}
	view.MissingNotice = analyses.MissingVideosNotice
	view.BusyStatus = BusyStatus
	respond.HTML(c, status, templates, "index.html", view)
}

func errorStatus(msg string) string {
	return "An error occurred: " + msg
}
