package httpjson

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"
)

const maxBodyBytes = 8 << 20

var ErrEmptyBody = errors.New("empty body")

func Write(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Read decodes a typed request body, rejecting unknown fields.
func Read(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// ReadObject decodes a free-form JSON object body.
func ReadObject(r *http.Request) (map[string]interface{}, error) {
	var out map[string]interface{}
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(&out); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrEmptyBody
		}
		return nil, err
	}
	return out, nil
}

// Error writes {"error": true, "message": ..., "timestamp": ...}.
func Error(w http.ResponseWriter, status int, msg string) {
	Write(w, status, map[string]interface{}{
		"error":     true,
		"message":   msg,
		"timestamp": time.Now().UnixMilli(),
	})
}
