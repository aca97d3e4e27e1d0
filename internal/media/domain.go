// Package media manages the console's image and document library.
package media

import (
	"errors"
	"time"
)

var (
	// ErrNotFound indicates the asset does not exist.
	ErrNotFound = errors.New("media: asset not found")
	// ErrUnsupportedType indicates the upload's content type is not accepted.
	ErrUnsupportedType = errors.New("media: unsupported content type")
	// ErrEmpty indicates an upload without content.
	ErrEmpty = errors.New("media: empty upload")
)

// Asset is one stored object and its metadata.
type Asset struct {
	ID          int64     `json:"id"`
	ObjectKey   string    `json:"object_key"`
	FileName    string    `json:"file_name"`
	ContentType string    `json:"content_type"`
	SizeBytes   int64     `json:"size_bytes"`
	UploadedBy  int64     `json:"uploaded_by"`
	CreatedAt   time.Time `json:"created_at"`
	URL         string    `json:"url,omitempty"`
}

// ListFilter narrows an asset listing.
type ListFilter struct {
	Search string
	Limit  int
	Offset int
}

var allowedTypes = map[string]string{
	"image/jpeg":      ".jpg",
	"image/png":       ".png",
	"image/gif":       ".gif",
	"image/webp":      ".webp",
	"image/svg+xml":   ".svg",
	"application/pdf": ".pdf",
	"video/mp4":       ".mp4",
}

// Extension returns the object key suffix for contentType and whether the type
// is accepted.
func Extension(contentType string) (string, bool) {
	ext, ok := allowedTypes[contentType]
	return ext, ok
}
