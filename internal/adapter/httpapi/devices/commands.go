package devices

import (
	"archive/zip"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	validation "github.com/go-ozzo/ozzo-validation"

	"github.com/devicelab/controller/internal/adapter/httpapi/common"
	"github.com/devicelab/controller/internal/core/controllererr"
	"github.com/devicelab/controller/internal/core/domain"
)

// reserveRequest is the /devices/{id}/reserve request body (spec.md §6).
type reserveRequest struct {
	UserID   string `json:"userId"`
	Duration int    `json:"duration"` // minutes, defaults to 60
	Purpose  string `json:"purpose"`
}

func (req reserveRequest) Validate() error {
	return validation.ValidateStruct(&req,
		validation.Field(&req.UserID, validation.Required),
		validation.Field(&req.Duration, validation.Min(0)),
	)
}

func (h *Handler) reserve(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "deviceID")

	var req reserveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
		common.RenderError(w, r, common.ErrorInvalidRequest(err))
		return
	}
	if req.Duration <= 0 {
		req.Duration = 60
	}
	if err := req.Validate(); err != nil {
		common.RenderError(w, r, common.ErrorInvalidRequest(err))
		return
	}

	reservation, err := h.reservation.Reserve(r.Context(), id, req.UserID, time.Duration(req.Duration)*time.Minute, req.Purpose)
	if err != nil {
		common.RenderError(w, r, common.ErrorFromErr(err))
		return
	}
	common.Respond(w, r, http.StatusCreated, reservation, "")
}

func (h *Handler) release(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "deviceID")
	if err := h.reservation.Release(r.Context(), id); err != nil {
		common.RenderError(w, r, common.ErrorFromErr(err))
		return
	}
	common.Respond(w, r, http.StatusOK, nil, "released")
}

// commandRequest is the generic /devices/{id}/command envelope: type
// selects which typed payload the JSON body decodes into (spec.md §3's
// tagged-variant Payload).
type commandRequest struct {
	Type domain.CommandType `json:"type"`
	Tap     *domain.TapPayload     `json:"tap,omitempty"`
	Swipe   *domain.SwipePayload   `json:"swipe,omitempty"`
	Drag    *domain.DragPayload    `json:"drag,omitempty"`
	Key     *domain.KeyPayload     `json:"key,omitempty"`
	Text    *domain.TextPayload    `json:"text,omitempty"`
	Install *domain.InstallPayload `json:"install,omitempty"`
	Shell   *domain.ShellPayload   `json:"shell,omitempty"`
}

func (req commandRequest) payload() (domain.Payload, error) {
	switch req.Type {
	case domain.CommandTap:
		if req.Tap == nil {
			return nil, errMissingPayload(req.Type)
		}
		return *req.Tap, nil
	case domain.CommandSwipe:
		if req.Swipe == nil {
			return nil, errMissingPayload(req.Type)
		}
		return *req.Swipe, nil
	case domain.CommandDrag:
		if req.Drag == nil {
			return nil, errMissingPayload(req.Type)
		}
		return *req.Drag, nil
	case domain.CommandKey:
		if req.Key == nil {
			return nil, errMissingPayload(req.Type)
		}
		return *req.Key, nil
	case domain.CommandText:
		if req.Text == nil {
			return nil, errMissingPayload(req.Type)
		}
		return *req.Text, nil
	case domain.CommandInstall:
		if req.Install == nil {
			return nil, errMissingPayload(req.Type)
		}
		return *req.Install, nil
	case domain.CommandShell:
		if req.Shell == nil {
			return nil, errMissingPayload(req.Type)
		}
		return *req.Shell, nil
	default:
		return nil, controllererr.Wrap("devices.command", controllererr.KindValidation, "unknown command type %q", req.Type)
	}
}

func errMissingPayload(t domain.CommandType) error {
	return controllererr.Wrap("devices.command", controllererr.KindValidation, "missing payload for command type %q", t)
}

func (h *Handler) command(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "deviceID")

	var req commandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.RenderError(w, r, common.ErrorInvalidRequest(err))
		return
	}
	payload, err := req.payload()
	if err != nil {
		common.RenderError(w, r, common.ErrorFromErr(err))
		return
	}
	h.dispatch(w, r, id, payload)
}

func (h *Handler) dispatch(w http.ResponseWriter, r *http.Request, deviceID string, payload domain.Payload) {
	result, err := h.registry.Dispatch(r.Context(), deviceID, payload)
	if err != nil {
		common.RenderError(w, r, common.ErrorFromErr(err))
		return
	}
	common.Respond(w, r, http.StatusOK, map[string]string{"result": result}, "")
}

// ---- typed shortcuts (spec.md §6: tap/swipe/drag/key/text/shell) --------

type tapRequest struct{ X, Y int }

func (h *Handler) tap(w http.ResponseWriter, r *http.Request) {
	var req tapRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.RenderError(w, r, common.ErrorInvalidRequest(err))
		return
	}
	h.dispatch(w, r, chi.URLParam(r, "deviceID"), domain.TapPayload{X: req.X, Y: req.Y})
}

type swipeRequest struct {
	StartX, StartY, EndX, EndY, DurationMS int
}

func (h *Handler) swipe(w http.ResponseWriter, r *http.Request) {
	var req swipeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.RenderError(w, r, common.ErrorInvalidRequest(err))
		return
	}
	h.dispatch(w, r, chi.URLParam(r, "deviceID"), domain.SwipePayload{
		StartX: req.StartX, StartY: req.StartY, EndX: req.EndX, EndY: req.EndY, DurationMS: req.DurationMS,
	})
}

func (h *Handler) drag(w http.ResponseWriter, r *http.Request) {
	var req swipeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.RenderError(w, r, common.ErrorInvalidRequest(err))
		return
	}
	h.dispatch(w, r, chi.URLParam(r, "deviceID"), domain.DragPayload{
		StartX: req.StartX, StartY: req.StartY, EndX: req.EndX, EndY: req.EndY, DurationMS: req.DurationMS,
	})
}

type keyRequest struct{ KeyCode string }

func (h *Handler) key(w http.ResponseWriter, r *http.Request) {
	var req keyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.RenderError(w, r, common.ErrorInvalidRequest(err))
		return
	}
	h.dispatch(w, r, chi.URLParam(r, "deviceID"), domain.KeyPayload{KeyCode: req.KeyCode})
}

type textRequest struct{ Text string }

func (h *Handler) text(w http.ResponseWriter, r *http.Request) {
	var req textRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.RenderError(w, r, common.ErrorInvalidRequest(err))
		return
	}
	h.dispatch(w, r, chi.URLParam(r, "deviceID"), domain.TextPayload{Text: req.Text})
}

type shellRequest struct{ Command string }

func (h *Handler) shell(w http.ResponseWriter, r *http.Request) {
	var req shellRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.RenderError(w, r, common.ErrorInvalidRequest(err))
		return
	}
	h.dispatch(w, r, chi.URLParam(r, "deviceID"), domain.ShellPayload{Command: req.Command})
}

// installApp accepts a multipart upload, stages it under the configured
// upload directory, and dispatches an install command with the staged
// path (spec.md §6 "install-app").
func (h *Handler) installApp(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(64 << 20); err != nil {
		common.RenderError(w, r, common.ErrorInvalidRequest(err))
		return
	}
	file, header, err := r.FormFile("app")
	if err != nil {
		common.RenderError(w, r, common.ErrorInvalidRequest(err))
		return
	}
	defer file.Close()

	path, err := h.stageUpload(file, header)
	if err != nil {
		common.RenderError(w, r, common.ErrorFromErr(err))
		return
	}
	h.dispatch(w, r, chi.URLParam(r, "deviceID"), domain.InstallPayload{ArtifactPath: path})
}

func (h *Handler) stageUpload(file multipart.File, header *multipart.FileHeader) (string, error) {
	if err := os.MkdirAll(h.uploadDir, 0o755); err != nil {
		return "", controllererr.Wrap("devices.installApp", controllererr.KindExternalToolFailure, "creating upload dir: %v", err)
	}
	dst := filepath.Join(h.uploadDir, filepath.Base(header.Filename))
	out, err := os.Create(dst)
	if err != nil {
		return "", controllererr.Wrap("devices.installApp", controllererr.KindExternalToolFailure, "staging upload: %v", err)
	}
	if _, err := io.Copy(out, file); err != nil {
		out.Close()
		return "", controllererr.Wrap("devices.installApp", controllererr.KindExternalToolFailure, "writing upload: %v", err)
	}
	out.Close()

	if !strings.EqualFold(filepath.Ext(dst), ".zip") {
		return dst, nil
	}

	bundlePath, err := unzipAppBundle(dst)
	if err != nil {
		return "", err
	}
	return bundlePath, nil
}

// unzipAppBundle extracts an uploaded zip archive next to itself and
// returns the path to the .app bundle it contains, matching spec.md
// §4.1's requirement that the caller prepare ArtifactPath "including
// unzip for .app bundles" before installing. If no .app directory entry
// is found, the extraction root itself is returned.
func unzipAppBundle(zipPath string) (string, error) {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return "", controllererr.Wrap("devices.installApp", controllererr.KindExternalToolFailure, "opening upload archive: %v", err)
	}
	defer r.Close()

	extractDir := strings.TrimSuffix(zipPath, filepath.Ext(zipPath)) + "-extracted"
	if err := os.MkdirAll(extractDir, 0o755); err != nil {
		return "", controllererr.Wrap("devices.installApp", controllererr.KindExternalToolFailure, "creating extract dir: %v", err)
	}

	var bundlePath string
	for _, f := range r.File {
		target := filepath.Join(extractDir, f.Name)
		if !strings.HasPrefix(target, filepath.Clean(extractDir)+string(os.PathSeparator)) && target != filepath.Clean(extractDir) {
			return "", controllererr.Wrap("devices.installApp", controllererr.KindValidation, "unsafe path in upload archive: %s", f.Name)
		}

		if err := extractZipEntry(f, target); err != nil {
			return "", controllererr.Wrap("devices.installApp", controllererr.KindExternalToolFailure, "extracting %s: %v", f.Name, err)
		}

		if f.FileInfo().IsDir() && strings.EqualFold(filepath.Ext(strings.TrimSuffix(f.Name, "/")), ".app") {
			bundlePath = target
		}
	}

	if bundlePath == "" {
		bundlePath = extractDir
	}
	return bundlePath, nil
}

func extractZipEntry(f *zip.File, target string) error {
	if f.FileInfo().IsDir() {
		return os.MkdirAll(target, 0o755)
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}

	src, err := f.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, f.Mode())
	if err != nil {
		return err
	}
	defer dst.Close()

	_, err = io.Copy(dst, src)
	return err
}
