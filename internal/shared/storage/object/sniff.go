package object

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
)

// Sniff reads up to 512 bytes to detect the content type and returns a reader
// that replays them ahead of the remaining stream.
func Sniff(r io.Reader) (io.Reader, string, error) {
	var buf [512]byte
	n, err := io.ReadFull(r, buf[:])
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return nil, "", fmt.Errorf("read sniff: %w", err)
	}
	head := append([]byte(nil), buf[:n]...)
	return io.MultiReader(bytes.NewReader(head), r), http.DetectContentType(head), nil
}

// Key joins a namespace and an object name into a slash separated key.
func Key(namespace, name string) string {
	return path.Join(strings.Trim(namespace, "/"), name)
}
