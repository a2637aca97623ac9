package httpx

import (
	"encoding/json"
	"net/http"
)

// Application status codes carried in the envelope. They are independent of
// the HTTP status line, which stays 200 for application outcomes.
const (
	CodeSuccess          = 200
	CodeUnauthorized     = 401
	CodeForbidden        = 403
	CodeNotFound         = 404
	CodeMethodNotAllowed = 405
	CodeFail             = 500
)

// Envelope wraps every JSON payload exchanged with the admin backend.
type Envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// envelopeOut is the write side of Envelope; Data is encoded in place.
type envelopeOut struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data"`
}

// encodeFailure is sent when a payload cannot be marshalled.
var encodeFailure = []byte(`{"code":500,"message":"response encoding failed","data":null}` + "\n")

// WriteEnvelope writes an application outcome with HTTP 200.
func WriteEnvelope(w http.ResponseWriter, code int, message string, data any) {
	WriteEnvelopeStatus(w, http.StatusOK, code, message, data)
}

// WriteEnvelopeStatus writes an envelope with an explicit HTTP status.
func WriteEnvelopeStatus(w http.ResponseWriter, status, code int, message string, data any) {
	WriteJSON(w, status, envelopeOut{Code: code, Message: message, Data: data})
}

// WriteSuccess writes a SUCCESS envelope around data.
func WriteSuccess(w http.ResponseWriter, data any) {
	WriteEnvelope(w, CodeSuccess, "ok", data)
}

// WriteJSON marshals v before touching the response so an encoding error
// still produces a well formed FAIL envelope. Responses are never cached;
// most of them carry tokens or session data.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		status, body = http.StatusInternalServerError, encodeFailure
	} else {
		body = append(body, '\n')
	}

	NoCache(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// NoCache marks the response as not storable by clients or proxies.
func NoCache(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
}
