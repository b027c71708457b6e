package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/vmihailenco/msgpack/v5"
)

const (
	contentTypeJSON    = "application/json"
	contentTypeMsgPack = "application/x-msgpack"
)

// writeResponse encodes v as JSON, or as MessagePack when the request asks
// for format=msgpack. MessagePack keys follow the json struct tags.
// The body is encoded before the status is written, so an unencodable value
// becomes a 500 instead of a truncated success.
func writeResponse(w http.ResponseWriter, r *http.Request, status int, v any) error {
	var buf bytes.Buffer
	contentType := contentTypeJSON
	if r.URL.Query().Get("format") == "msgpack" {
		contentType = contentTypeMsgPack
		enc := msgpack.NewEncoder(&buf)
		enc.SetCustomStructTag("json")
		if err := enc.Encode(v); err != nil {
			writeError(w, http.StatusInternalServerError, "failed to encode response")
			return fmt.Errorf("encode msgpack: %w", err)
		}
	} else if err := json.NewEncoder(&buf).Encode(v); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to encode response")
		return fmt.Errorf("encode json: %w", err)
	}

	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)
	_, err := w.Write(buf.Bytes())
	return err
}
