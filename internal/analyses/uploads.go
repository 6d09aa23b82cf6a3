package analyses

import (
	"fmt"
	"io"
	"mime/multipart"

	"ballet-compare/internal/uploads"
)

// OpenSelection opens the chosen files of sel. An empty zone yields an Upload
// with a nil Body. The returned func closes whatever was opened.
func OpenSelection(sel uploads.Selection) (ideal, user Upload, closeAll func(), err error) {
	var closers []io.Closer
	closeAll = func() {
		for _, c := range closers {
			c.Close()
		}
	}
	open := func(fh *multipart.FileHeader) (Upload, error) {
		if fh == nil {
			return Upload{}, nil
		}
		f, err := fh.Open()
		if err != nil {
			return Upload{}, fmt.Errorf("open %s: %w", fh.Filename, err)
		}
		closers = append(closers, f)
		return Upload{FileName: fh.Filename, Body: f}, nil
	}
	if ideal, err = open(sel.IdealFile); err != nil {
		closeAll()
		return Upload{}, Upload{}, func() {}, err
	}
	if user, err = open(sel.UserFile); err != nil {
		closeAll()
		return Upload{}, Upload{}, func() {}, err
	}
	return ideal, user, closeAll, nil
}
