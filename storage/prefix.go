package storage

import (
	"io"
	"strings"
)

// joinPrefix maps a logical key to its provider-side key. With an empty
// prefix the key passes through unchanged; otherwise the result is
// prefix (trailing slash trimmed) + "/" + key.
func joinPrefix(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return strings.TrimSuffix(prefix, "/") + "/" + key
}

// trimETag strips the surrounding double quotes providers put on entity
// tags; the wire layer re-quotes when rendering.
func trimETag(etag string) string {
	return strings.Trim(etag, `"`)
}

// readAndClose drains a response body and closes it, keeping the first
// error encountered.
func readAndClose(rc io.ReadCloser) ([]byte, error) {
	data, err := io.ReadAll(rc)
	cerr := rc.Close()
	if err != nil {
		return nil, err
	}
	if cerr != nil {
		return nil, cerr
	}
	return data, nil
}
