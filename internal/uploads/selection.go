package uploads

import (
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
)

// ErrTooLarge is returned when the request body exceeds the configured limit.
var ErrTooLarge = errors.New("upload too large")

// Selection is what a submitted form carried for both zones.
type Selection struct {
	Ideal     Zone
	User      Zone
	IdealFile *multipart.FileHeader
	UserFile  *multipart.FileHeader
}

// Complete reports whether both videos were chosen.
func (s Selection) Complete() bool {
	return s.IdealFile != nil && s.UserFile != nil
}

// Retry returns the zones to show after a rejected submission. The browser
// drops file inputs on reload, so every selection is cleared; zones that
// carried nothing are flagged Missing.
func (s Selection) Retry() []Zone {
	zones := []Zone{s.Ideal, s.User}
	for i := range zones {
		zones[i].Missing = zones[i].Selected == ""
		zones[i].Selected = ""
	}
	return zones
}

// FromRequest reads the multipart form of r. A request that is not multipart
// yields an empty selection rather than an error so the caller can show the
// selection-required notice.
func FromRequest(r *http.Request, maxBytes int64) (Selection, error) {
	zones := Zones()
	sel := Selection{Ideal: zones[0], User: zones[1]}
	if maxBytes > 0 && r.ContentLength > maxBytes {
		return sel, ErrTooLarge
	}
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		if errors.Is(err, http.ErrNotMultipart) {
			return sel, nil
		}
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return sel, ErrTooLarge
		}
		return sel, fmt.Errorf("parse multipart form: %w", err)
	}
	if r.MultipartForm == nil {
		return sel, nil
	}
	idealFiles := r.MultipartForm.File[FieldIdeal]
	userFiles := r.MultipartForm.File[FieldUser]
	sel.Ideal.Select(idealFiles)
	sel.User.Select(userFiles)
	if len(idealFiles) > 0 {
		sel.IdealFile = idealFiles[0]
	}
	if len(userFiles) > 0 {
		sel.UserFile = userFiles[0]
	}
	return sel, nil
}
