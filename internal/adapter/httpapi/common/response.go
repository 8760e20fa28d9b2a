// Package common holds the HTTP-layer response envelope and error
// rendering shared by every resource under internal/adapter/httpapi.
package common

import (
	"net/http"
	"time"

	"github.com/go-chi/render"
)

// Time wraps time.Time so it always marshals in RFC3339.
type Time time.Time

func (t Time) MarshalJSON() ([]byte, error) {
	return []byte(`"` + time.Time(t).Format(time.RFC3339) + `"`), nil
}

// Response is the uniform API envelope from spec.md §6:
// {success, data?, message?, error?}.
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message,omitempty"`
	Error   string      `json:"error,omitempty"`
}

func (r *Response) Render(_ http.ResponseWriter, _ *http.Request) error { return nil }

// Respond sends a successful envelope response.
func Respond(w http.ResponseWriter, r *http.Request, status int, data interface{}, message string) {
	render.Status(r, status)
	resp := &Response{Success: true, Data: data, Message: message}
	if err := render.Render(w, r, resp); err != nil {
		http.Error(w, "error rendering response", http.StatusInternalServerError)
	}
}

// RespondNoContent sends a 204.
func RespondNoContent(w http.ResponseWriter, r *http.Request) {
	render.NoContent(w, r)
}
