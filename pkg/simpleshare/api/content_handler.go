package api

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/tendant/simple-share/pkg/simpleshare"
)

// multipartMemory is how much of a multipart body is buffered in memory
// before parts spill to temporary files.
const multipartMemory = 32 << 20

// ContentHandler serves the share endpoints on top of a simpleshare.Service
type ContentHandler struct {
	service simpleshare.Service
	limits  simpleshare.Limits
	logger  *slog.Logger
}

// NewContentHandler creates a handler. limits bounds the accepted body size.
func NewContentHandler(service simpleshare.Service, limits simpleshare.Limits, logger *slog.Logger) *ContentHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ContentHandler{
		service: service,
		limits:  limits,
		logger:  logger,
	}
}

// CreateContentData is the data of a successful create
type CreateContentData struct {
	RandomKey string                    `json:"randomKey"`
	ExpireIn  string                    `json:"expireIn"`
	ExpiresAt time.Time                 `json:"expiresAt"`
	Items     []simpleshare.ItemOutcome `json:"items"`
}

// ContentBody holds the three kinds of a bundle
type ContentBody struct {
	Text   *string                `json:"text"`
	Images []simpleshare.BlobView `json:"images"`
	Files  []simpleshare.BlobView `json:"files"`
}

// GetContentData is the data of getContent
type GetContentData struct {
	Key     string             `json:"key"`
	Type    []simpleshare.Kind `json:"type"`
	Content ContentBody        `json:"content"`
}

// Response is the envelope of every JSON reply
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// CreateContent accepts a multipart form with text, images and files
func (h *ContentHandler) CreateContent(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes())

	req, files, err := h.parseCreateRequest(r)
	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll()
	}
	defer closeAll(files)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSONError(w, r, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		h.logger.Warn("failed to parse create request", "error", err)
		writeJSONError(w, r, http.StatusBadRequest, "invalid form data")
		return
	}

	result, err := h.service.Create(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, Response{
		Success: true,
		Data: CreateContentData{
			RandomKey: result.Key,
			ExpireIn:  result.ExpireIn,
			ExpiresAt: result.ExpiresAt,
			Items:     result.Items,
		},
	})
}

// GetContent returns a bundle by strict 1-4 digit key
func (h *ContentHandler) GetContent(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if !simpleshare.IsShortKey(key) {
		writeJSONError(w, r, http.StatusBadRequest, "invalid key format, expected 4 digits")
		return
	}

	// Only the padded form; an unpadded legacy key is readContent's job.
	padded, _ := simpleshare.NormalizeKey(key)
	bundle, err := h.service.Retrieve(r.Context(), padded)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	render.JSON(w, r, Response{
		Success: true,
		Data: GetContentData{
			Key:     bundle.Key,
			Type:    bundle.Kinds,
			Content: contentBody(bundle),
		},
	})
}

// ReadContent returns a bundle by any key form, including legacy keys
func (h *ContentHandler) ReadContent(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "randomKey")

	bundle, err := h.service.Retrieve(r.Context(), key)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	render.JSON(w, r, Response{Success: true, Data: contentBody(bundle)})
}

// DeleteContent removes a live bundle
func (h *ContentHandler) DeleteContent(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	if err := h.service.Delete(r.Context(), key); err != nil {
		h.writeError(w, r, err)
		return
	}

	render.JSON(w, r, Response{Success: true, Message: "Content deleted successfully"})
}

// Download streams blob bytes. Images are shown inline, everything else is
// offered as an attachment.
func (h *ContentHandler) Download(w http.ResponseWriter, r *http.Request) {
	handle := chi.URLParam(r, "handle")

	dl, err := h.service.Download(r.Context(), handle)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	defer dl.Body.Close()

	mimeType := dl.MimeType
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	disposition := "attachment"
	if strings.HasPrefix(strings.ToLower(mimeType), "image/") {
		disposition = "inline"
	}
	name := dl.Name
	if name == "" {
		name = handle
	}

	w.Header().Set("Content-Type", mimeType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType(disposition, map[string]string{"filename": name}))
	w.Header().Set("X-Content-Type-Options", "nosniff")
	if dl.Length > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(dl.Length, 10))
	}
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, dl.Body); err != nil {
		h.logger.Warn("download interrupted", "handle", handle, "error", err)
	}
}

// parseCreateRequest reads the form. Opened part files are returned so the
// caller can close them once the service is done reading.
func (h *ContentHandler) parseCreateRequest(r *http.Request) (simpleshare.CreateRequest, []multipart.File, error) {
	var req simpleshare.CreateRequest

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		if err := r.ParseForm(); err != nil {
			return req, nil, err
		}
		req.Text = r.PostForm.Get("text")
		return req, nil, nil
	}

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		return req, nil, err
	}
	form := r.MultipartForm
	if texts := form.Value["text"]; len(texts) > 0 {
		req.Text = texts[0]
	}

	var opened []multipart.File
	open := func(fields ...string) ([]simpleshare.Upload, error) {
		var uploads []simpleshare.Upload
		for _, field := range fields {
			for _, fh := range form.File[field] {
				f, err := fh.Open()
				if err != nil {
					return nil, fmt.Errorf("open %s: %w", fh.Filename, err)
				}
				opened = append(opened, f)
				uploads = append(uploads, simpleshare.Upload{
					Name:     fh.Filename,
					MimeType: fh.Header.Get("Content-Type"),
					Size:     fh.Size,
					Reader:   f,
				})
			}
		}
		return uploads, nil
	}

	var err error
	if req.Images, err = open("images", "images[]"); err != nil {
		return req, opened, err
	}
	if req.Files, err = open("files", "files[]"); err != nil {
		return req, opened, err
	}
	return req, opened, nil
}

// maxBodyBytes allows every item at its maximum size plus form overhead
func (h *ContentHandler) maxBodyBytes() int64 {
	items := int64(h.limits.MaxItemsPerKind) * 2
	if items <= 0 {
		items = 1
	}
	return items*h.limits.MaxItemBytes + 1<<20
}

func contentBody(b *simpleshare.Bundle) ContentBody {
	return ContentBody{Text: b.Text, Images: b.Images, Files: b.Files}
}

func closeAll(files []multipart.File) {
	for _, f := range files {
		_ = f.Close()
	}
}
