package handlers

import (
	"encoding/base64"
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"snapcode/internal/convert"
	"snapcode/internal/domain"
	"snapcode/internal/preview"
)

type submitRequest struct {
	Framework   string `json:"framework"`
	StyleSystem string `json:"style_system"`
	ImageBase64 string `json:"image_base64"`
	ImageMIME   string `json:"image_mime"`
}

type submitResponse struct {
	JobID  string           `json:"job_id"`
	Status domain.JobStatus `json:"status"`
}

// Submit accepts a screenshot as multipart/form-data (field "image") or as a
// JSON body with base64 image bytes, and enqueues a conversion.
func (a *App) Submit(w http.ResponseWriter, r *http.Request) {
	account, ok := a.accountID(w, r)
	if !ok {
		return
	}

	var (
		image     []byte
		imageMIME string
		opts      domain.Options
		err       error
	)
	contentType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if contentType == "multipart/form-data" {
		image, imageMIME, opts, err = parseMultipartSubmit(r)
	} else {
		image, imageMIME, opts, err = parseJSONSubmit(r)
	}
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	job, err := a.Service.Submit(r.Context(), account, image, imageMIME, opts)
	if err != nil {
		a.domainError(w, err)
		return
	}
	a.json(w, http.StatusAccepted, submitResponse{JobID: job.ID, Status: job.Status})
}

func parseMultipartSubmit(r *http.Request) ([]byte, string, domain.Options, error) {
	opts := domain.Options{}
	if err := r.ParseMultipartForm(convert.MaxImageBytes + 1024); err != nil {
		return nil, "", opts, err
	}
	file, header, err := r.FormFile("image")
	if err != nil {
		return nil, "", opts, err
	}
	defer file.Close()
	data, err := io.ReadAll(io.LimitReader(file, convert.MaxImageBytes+1))
	if err != nil {
		return nil, "", opts, err
	}
	opts.Framework = domain.Framework(strings.ToLower(r.FormValue("framework")))
	opts.StyleSystem = domain.StyleSystem(strings.ToLower(r.FormValue("style_system")))
	return data, header.Header.Get("Content-Type"), opts, nil
}

func parseJSONSubmit(r *http.Request) ([]byte, string, domain.Options, error) {
	var req submitRequest
	opts := domain.Options{}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, "", opts, err
	}
	data, err := base64.StdEncoding.DecodeString(req.ImageBase64)
	if err != nil {
		return nil, "", opts, err
	}
	opts.Framework = domain.Framework(strings.ToLower(req.Framework))
	opts.StyleSystem = domain.StyleSystem(strings.ToLower(req.StyleSystem))
	return data, req.ImageMIME, opts, nil
}

// Status reports the current view of a job.
func (a *App) Status(w http.ResponseWriter, r *http.Request) {
	view, err := a.Service.Status(r.Context(), chi.URLParam(r, "job_id"))
	if err != nil {
		a.domainError(w, err)
		return
	}
	a.json(w, http.StatusOK, view)
}

// Cancel aborts a queued or in-flight job and refunds its hold.
func (a *App) Cancel(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	if err := a.Service.Cancel(r.Context(), jobID); err != nil {
		a.domainError(w, err)
		return
	}
	a.json(w, http.StatusOK, map[string]string{"job_id": jobID, "status": "cancelled"})
}

// Download streams the generated project archive.
func (a *App) Download(w http.ResponseWriter, r *http.Request) {
	data, filename, err := a.Service.Package(r.Context(), chi.URLParam(r, "job_id"))
	if err != nil {
		a.domainError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	_, _ = w.Write(data)
}

// Preview serves the sandboxed preview document. The sandbox directive is
// surfaced in a header so embedding frontends apply the matching iframe
// attribute.
func (a *App) Preview(w http.ResponseWriter, r *http.Request) {
	doc, err := a.Service.Preview(r.Context(), chi.URLParam(r, "job_id"))
	if err != nil {
		a.domainError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("X-Preview-Sandbox", preview.IframeSandbox)
	_, _ = io.WriteString(w, doc)
}
