// Package httputil provides HTTP handler utilities for consistent API
// responses, request parsing and common middleware.
package httputil

import (
	"encoding/json"
	"net/http"
)

// APIResponse is the body of every JSON status response the portal returns
type APIResponse struct {
	Status        int    `json:"status"`
	StatusMessage string `json:"statusMessage"`
}

// WriteJSON writes a JSON response with the given status code
func WriteJSON(w http.ResponseWriter, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}

// WriteAPIResponse writes {"status": status, "statusMessage": message}
func WriteAPIResponse(w http.ResponseWriter, status int, message string) {
	_ = WriteJSON(w, status, APIResponse{Status: status, StatusMessage: message})
}

// WriteSuccess writes a successful response (200 OK) with JSON data
func WriteSuccess(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusOK, data)
}

// WriteOK writes a 200 status response with message
func WriteOK(w http.ResponseWriter, message string) {
	WriteAPIResponse(w, http.StatusOK, message)
}

// WriteBadRequest writes a bad request error (400)
func WriteBadRequest(w http.ResponseWriter, message string) {
	WriteAPIResponse(w, http.StatusBadRequest, message)
}

// WriteUnauthorized writes an unauthorized error (401)
func WriteUnauthorized(w http.ResponseWriter, message string) {
	WriteAPIResponse(w, http.StatusUnauthorized, message)
}

// WriteTooManyRequests writes a rate limit error (429)
func WriteTooManyRequests(w http.ResponseWriter, message string) {
	WriteAPIResponse(w, http.StatusTooManyRequests, message)
}

// WriteInternalError writes a 500 without exposing err to the client
func WriteInternalError(w http.ResponseWriter) {
	WriteAPIResponse(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
}
