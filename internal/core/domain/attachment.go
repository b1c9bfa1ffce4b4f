package domain

import (
	"io"
	"path/filepath"
	"strings"
)

const MaxAttachmentSize = 5 << 20

var allowedImageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".webp": true,
}

// Attachment is an uploaded file not yet written to the attachment store.
type Attachment struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

func (a Attachment) Extension() string {
	return strings.ToLower(filepath.Ext(a.Filename))
}

func (a Attachment) Validate() error {
	if !allowedImageExtensions[a.Extension()] {
		return NewValidationError("image must be a jpg, jpeg, png, gif or webp file")
	}
	if a.Size > MaxAttachmentSize {
		return NewValidationError("image must not exceed 5 MiB")
	}
	if a.ContentType != "" && !strings.HasPrefix(a.ContentType, "image/") && a.ContentType != "application/octet-stream" {
		return NewValidationError("image content type must be image/*")
	}
	return nil
}
