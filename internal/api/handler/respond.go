package handler

import (
	"net"
	"net/http"
	"strings"

	"github.com/bytedance/sonic"
)

// errorResponse is the envelope for structured error bodies.
type errorResponse struct {
	Error string `json:"error"`
}

// writeJSON writes a response body with an explicit status code.
func writeJSON(w http.ResponseWriter, status int, body any) error {
	payload, err := sonic.Marshal(body)
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return nil
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, err = w.Write(payload)

	return err
}

// writeError writes a structured error body with the given status code.
func writeError(w http.ResponseWriter, status int, message string) error {
	return writeJSON(w, status, errorResponse{Error: message})
}

// clientIP extracts the caller's address, trusting the first entry of
// X-Forwarded-For when a proxy set it.
func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		if first, _, ok := strings.Cut(forwarded, ","); ok {
			return strings.TrimSpace(first)
		}

		return strings.TrimSpace(forwarded)
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}

	return host
}
