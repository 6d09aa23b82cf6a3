package uploads

import (
	"mime/multipart"

	"ballet-compare/internal/shared/util"
)

const (
	FieldIdeal = "ideal_video"
	FieldUser  = "user_video"

	emptyLabel = "Drop a video or click to browse"
)

// Zone is one drop region on the index page. Name is the multipart field
// the region's hidden file input submits under.
type Zone struct {
	Name     string
	Title    string
	Selected string
	// Missing marks a zone left empty on a rejected submission.
	Missing bool
}

// Label is the status text shown under the zone.
func (z Zone) Label() string {
	if z.Selected == "" {
		return emptyLabel
	}
	return "Selected: " + z.Selected
}

// Select records the first of files as the zone's selection. An empty slice
// leaves the current selection as it was.
func (z *Zone) Select(files []*multipart.FileHeader) {
	if len(files) == 0 || files[0] == nil {
		return
	}
	z.Selected = util.DisplayName(files[0].Filename)
}

// Zones returns the two drop regions in page order.
func Zones() []Zone {
	return []Zone{
		{Name: FieldIdeal, Title: "Ideal performance"},
		{Name: FieldUser, Title: "Your performance"},
	}
}
