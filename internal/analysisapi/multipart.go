package analysisapi

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
)

const (
	fieldIdeal = "ideal_video"
	fieldUser  = "user_video"
)

// multipartBody streams both videos as a multipart form without buffering
// them in memory. The returned reader must be closed by the caller.
func multipartBody(ctx context.Context, v Videos) (io.ReadCloser, string) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		err := writeVideo(ctx, mw, fieldIdeal, v.Ideal)
		if err == nil {
			err = writeVideo(ctx, mw, fieldUser, v.User)
		}
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
	}()
	return pr, mw.FormDataContentType()
}

func writeVideo(ctx context.Context, mw *multipart.Writer, field string, v Video) error {
	if v.Open == nil {
		return fmt.Errorf("%s: no video source", field)
	}
	rc, err := v.Open(ctx)
	if err != nil {
		return fmt.Errorf("open %s: %w", field, err)
	}
	defer rc.Close()
	name := v.FileName
	if name == "" {
		name = field
	}
	part, err := mw.CreateFormFile(field, name)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, rc); err != nil {
		return fmt.Errorf("stream %s: %w", field, err)
	}
	return nil
}
