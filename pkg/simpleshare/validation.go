package simpleshare

import (
	"fmt"
	"strings"
)

// Limits bounds a single create request.
type Limits struct {
	MaxItemsPerKind int
	MaxItemBytes    int64
	// ImageTypes is the image MIME allow-list. Empty allows any type.
	ImageTypes []string
	// BlockedFileTypes is the file MIME deny-list.
	BlockedFileTypes []string
}

// DefaultLimits returns the production limits.
func DefaultLimits() Limits {
	return Limits{
		MaxItemsPerKind: 20,
		MaxItemBytes:    10 << 20,
		ImageTypes: []string{
			"image/jpeg",
			"image/jpg",
			"image/png",
			"image/gif",
			"image/webp",
			"image/svg+xml",
		},
		BlockedFileTypes: []string{
			"application/x-msdownload",
			"application/x-executable",
			"application/x-sh",
			"application/x-shellscript",
		},
	}
}

// HasText reports whether req carries non-blank text.
func (req CreateRequest) HasText() bool {
	return strings.TrimSpace(req.Text) != ""
}

// Validate checks req against l. It performs no I/O.
func (l Limits) Validate(req CreateRequest) error {
	if !req.HasText() && len(req.Images) == 0 && len(req.Files) == 0 {
		return &ValidationError{Reason: "no content provided"}
	}

	if l.MaxItemsPerKind > 0 {
		if len(req.Images) > l.MaxItemsPerKind {
			return &ValidationError{Field: "images", Reason: fmt.Sprintf("at most %d images allowed, got %d", l.MaxItemsPerKind, len(req.Images))}
		}
		if len(req.Files) > l.MaxItemsPerKind {
			return &ValidationError{Field: "files", Reason: fmt.Sprintf("at most %d files allowed, got %d", l.MaxItemsPerKind, len(req.Files))}
		}
	}

	for i, up := range req.Images {
		field := fmt.Sprintf("images[%d]", i)
		if err := l.checkUpload(field, up); err != nil {
			return err
		}
		if len(l.ImageTypes) > 0 && !containsFold(l.ImageTypes, up.MimeType) {
			return &ValidationError{Field: field, Reason: fmt.Sprintf("image type %q not allowed", up.MimeType)}
		}
	}

	for i, up := range req.Files {
		field := fmt.Sprintf("files[%d]", i)
		if err := l.checkUpload(field, up); err != nil {
			return err
		}
		if containsFold(l.BlockedFileTypes, up.MimeType) {
			return &ValidationError{Field: field, Reason: fmt.Sprintf("file type %q not allowed", up.MimeType)}
		}
	}

	return nil
}

func (l Limits) checkUpload(field string, up Upload) error {
	if up.Reader == nil {
		return &ValidationError{Field: field, Reason: "missing content"}
	}
	if l.MaxItemBytes > 0 && up.Size > l.MaxItemBytes {
		return &ValidationError{Field: field, Reason: fmt.Sprintf("%d bytes exceeds limit of %d", up.Size, l.MaxItemBytes)}
	}
	return nil
}

func containsFold(list []string, v string) bool {
	v = strings.TrimSpace(v)
	for _, s := range list {
		if strings.EqualFold(s, v) {
			return true
		}
	}
	return false
}
