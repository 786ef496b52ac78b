package storage

import (
	"errors"
	"fmt"
	"strings"
)

var ErrUnsupportedContentType = errors.New("unsupported content type")

var contentExtensions = map[string]string{
	"application/pdf":   ".pdf",
	"application/dicom": ".dcm",
	"application/json":  ".json",
	"image/png":         ".png",
	"image/jpeg":        ".jpg",
	"text/plain":        ".txt",
}

// ValidateContentType accepts the report formats the portal stores.
func ValidateContentType(contentType string) error {
	if contentType == "" {
		return errors.New("content type is required")
	}
	if _, ok := contentExtensions[normalize(contentType)]; !ok {
		return fmt.Errorf("%w: %s", ErrUnsupportedContentType, contentType)
	}
	return nil
}

func ContentKey(producerID, recordID, contentType string) string {
	return fmt.Sprintf("artifacts/%s/%s/content%s", producerID, recordID, contentExtensions[normalize(contentType)])
}

func MetadataKey(producerID, recordID string) string {
	return fmt.Sprintf("artifacts/%s/%s/metadata.json", producerID, recordID)
}

func normalize(contentType string) string {
	if i := strings.IndexByte(contentType, ';'); i >= 0 {
		contentType = contentType[:i]
	}
	return strings.ToLower(strings.TrimSpace(contentType))
}
