package common

import (
	"net/http"

	"github.com/go-chi/render"

	"github.com/devicelab/controller/internal/core/controllererr"
)

// ErrResponse is the error-shaped counterpart to Response, rendered via
// the same uniform envelope with success=false.
type ErrResponse struct {
	HTTPStatusCode int `json:"-"`

	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func (e *ErrResponse) Render(_ http.ResponseWriter, r *http.Request) error {
	render.Status(r, e.HTTPStatusCode)
	return nil
}

// ErrorFromErr maps any error onto an ErrResponse, using its
// controllererr.Kind when present and otherwise defaulting to 500.
func ErrorFromErr(err error) render.Renderer {
	kind := controllererr.KindOf(err)
	return &ErrResponse{
		HTTPStatusCode: controllererr.HTTPStatus(kind),
		Success:        false,
		Error:          err.Error(),
	}
}

// RenderError renders an error response, falling back to a plain-text
// 500 if rendering fails.
func RenderError(w http.ResponseWriter, r *http.Request, renderer render.Renderer) {
	if err := render.Render(w, r, renderer); err != nil {
		http.Error(w, "error rendering error response", http.StatusInternalServerError)
	}
}

// ErrorInvalidRequest returns a 400 envelope for malformed requests.
func ErrorInvalidRequest(err error) render.Renderer {
	return &ErrResponse{HTTPStatusCode: http.StatusBadRequest, Success: false, Error: err.Error()}
}
