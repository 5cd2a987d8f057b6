// Package handlers adapts HTTP requests to the market, portfolio, agent and system services.
package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// parseJSON decodes the request body into T. An empty body yields the zero value.
func parseJSON[T any](r *http.Request) (T, error) {
	var v T
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&v); err != nil {
		if err == io.EOF {
			return v, nil
		}
		return v, fmt.Errorf("invalid JSON body: %w", err)
	}
	return v, nil
}

// rawBody reads the request body for handlers that pass it through.
func rawBody(r *http.Request) (json.RawMessage, error) {
	if r.Body == nil {
		return nil, nil
	}
	b, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return nil, err
	}
	if len(b) > 0 && !json.Valid(b) {
		return nil, fmt.Errorf("invalid JSON body")
	}
	return b, nil
}
