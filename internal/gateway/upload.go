package gateway

import (
	"encoding/json"
	"errors"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"golang.org/x/sync/errgroup"

	"github.com/dohr-michael/parrot/internal/events"
)

const (
	uploadConcurrency = 4

	msgURLSent        = "URL sent."
	msgURLRequired    = "URL is required."
	msgURLInvalid     = "Invalid URL."
	msgURLFailed      = "Failed to send URL."
	msgFilesOK        = "All files were uploaded successfully."
	msgFilesPartial   = "Some or all file uploads failed."
	msgFilesNone      = "No files were uploaded."
	msgFilesFailed    = "Failed to send files."
	msgFilesTooLarge  = "Upload is too large."
	msgFileNotAllowed = "file type not allowed"
)

// URLPrefix is prepended to every address forwarded to the webhook.
const URLPrefix = "New website address submitted: "

// UploadResult reports the outcome of one uploaded file.
type UploadResult struct {
	Filename string `json:"filename"`
	Success  bool   `json:"success"`
	Error    string `json:"error,omitempty"`
}

type uploadResponse struct {
	Message string         `json:"message"`
	Results []UploadResult `json:"results,omitempty"`
	Error   string         `json:"error,omitempty"`
}

type uploader struct {
	slack    Slack
	bus      *events.Bus
	maxBytes int64
	allowed  []string
}

func (u *uploader) handleSendURL(w http.ResponseWriter, r *http.Request) {
	raw, err := readURLField(r)
	if err != nil {
		http.Error(w, msgURLInvalid, http.StatusBadRequest)
		return
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		http.Error(w, msgURLRequired, http.StatusBadRequest)
		return
	}
	if !validURL(raw) {
		http.Error(w, msgURLInvalid, http.StatusBadRequest)
		return
	}

	if u.slack == nil {
		slog.Error("send url: slack not configured")
		http.Error(w, msgURLFailed, http.StatusInternalServerError)
		return
	}
	if err := u.slack.PostWebhook(r.Context(), URLPrefix+raw); err != nil {
		slog.Error("send url failed", "url", raw, "error", err)
		u.publish(events.URLSubmittedPayload{URL: raw, Error: err.Error()})
		http.Error(w, msgURLFailed, http.StatusInternalServerError)
		return
	}

	u.publish(events.URLSubmittedPayload{URL: raw})
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(msgURLSent))
}

// readURLField accepts a JSON body {"url": ...} or a form field.
func readURLField(r *http.Request) (string, error) {
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if ct == "application/json" {
		var body struct {
			URL string `json:"url"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			return "", err
		}
		return body.URL, nil
	}
	return r.FormValue("url"), nil
}

func validURL(raw string) bool {
	u, err := url.ParseRequestURI(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func (u *uploader) handleSendFiles(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, u.maxBytes)
	if err := r.ParseMultipartForm(u.maxBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, uploadResponse{Message: msgFilesTooLarge})
			return
		}
		slog.Error("send files: read form", "error", err)
		writeJSON(w, http.StatusInternalServerError, uploadResponse{Message: msgFilesFailed, Error: err.Error()})
		return
	}
	defer r.MultipartForm.RemoveAll()

	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		writeJSON(w, http.StatusBadRequest, uploadResponse{Message: msgFilesNone})
		return
	}

	results := make([]UploadResult, len(files))
	var g errgroup.Group
	g.SetLimit(uploadConcurrency)
	for i, fh := range files {
		g.Go(func() error {
			results[i] = u.uploadOne(r, fh)
			return nil
		})
	}
	_ = g.Wait()

	status, msg := http.StatusOK, msgFilesOK
	for _, res := range results {
		if !res.Success {
			status, msg = http.StatusMultiStatus, msgFilesPartial
			break
		}
	}
	writeJSON(w, status, uploadResponse{Message: msg, Results: results})
}

func (u *uploader) uploadOne(r *http.Request, fh *multipart.FileHeader) UploadResult {
	res := UploadResult{Filename: fh.Filename}

	fail := func(err error) UploadResult {
		slog.Warn("file upload failed", "filename", fh.Filename, "error", err)
		res.Error = err.Error()
		u.publish(events.FileUploadedPayload{Filename: fh.Filename, Size: fh.Size, Error: res.Error})
		return res
	}

	if !u.isAllowed(fh.Filename) {
		return fail(errors.New(msgFileNotAllowed))
	}
	if u.slack == nil {
		return fail(errors.New("slack not configured"))
	}

	f, err := fh.Open()
	if err != nil {
		return fail(err)
	}
	defer f.Close()

	if err := u.slack.UploadFile(r.Context(), fh.Filename, fh.Size, f); err != nil {
		return fail(err)
	}

	res.Success = true
	u.publish(events.FileUploadedPayload{Filename: fh.Filename, Size: fh.Size})
	return res
}

func (u *uploader) isAllowed(name string) bool {
	if len(u.allowed) == 0 {
		return true
	}
	for _, pattern := range u.allowed {
		if ok, err := doublestar.Match(pattern, name); err == nil && ok {
			return true
		}
	}
	return false
}

func (u *uploader) publish(payload events.EventPayload) {
	if u.bus != nil {
		u.bus.Publish(events.NewTypedEvent(events.SourceGateway, payload))
	}
}
