package handlers

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
)

// Response is the uniform JSON envelope of every endpoint
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// WriteSuccess writes a success envelope
func WriteSuccess(w http.ResponseWriter, statusCode int, data interface{}) {
	writeJSON(w, statusCode, Response{Success: true, Data: data})
}

// WriteError writes an error envelope
func WriteError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, Response{Success: false, Error: message})
}

func writeJSON(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(v)
}

// writeLookupError maps a read failure to 404 for missing rows and 500
// otherwise
func writeLookupError(w http.ResponseWriter, err error, what string) {
	if errors.Is(err, sql.ErrNoRows) {
		WriteError(w, http.StatusNotFound, what+" not found")
		return
	}
	WriteError(w, http.StatusInternalServerError, err.Error())
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}
