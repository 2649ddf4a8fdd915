package storage

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Location references an object in the store.
type Location struct {
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
}

// PutResult describes where an object landed.
type PutResult struct {
	Location Location
	URL      string
	Length   int
}

// ObjectStore is content-addressed-by-key blob storage.
type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (PutResult, error)
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

const uploadsPrefix = "uploads"

// SourceKey is where the original upload lives: uploads/{user_id}/{file_name}.
func SourceKey(userID, fileName string) string {
	return fmt.Sprintf("%s/%s/%s", uploadsPrefix, userID, fileName)
}

// ExtractedTextKey is the per-user, per-timestamp key for stored raw OCR text.
func ExtractedTextKey(userID string, at time.Time) string {
	return fmt.Sprintf("%s/%s/%s_extracted-text.txt", uploadsPrefix, userID, keyTimestamp(at))
}

// SummaryKey is the per-user, per-timestamp key for the stored summary artifact.
func SummaryKey(userID string, at time.Time) string {
	return fmt.Sprintf("%s/%s/%s_ai_summary.json", uploadsPrefix, userID, keyTimestamp(at))
}

// keyTimestamp renders an RFC3339 timestamp with characters safe for object keys.
func keyTimestamp(at time.Time) string {
	s := at.UTC().Format("2006-01-02T15:04:05.000Z")
	s = strings.ReplaceAll(s, ":", "-")
	return strings.ReplaceAll(s, ".", "-")
}

// ParseUploadKey decomposes prefix/user_id/file_name. ok is false when the
// key has a different shape or denotes a directory marker; those are expected
// non-document events, not errors.
func ParseUploadKey(key string) (userID, fileName string, ok bool) {
	if strings.HasSuffix(key, "/") {
		return "", "", false
	}
	parts := strings.Split(key, "/")
	if len(parts) != 3 || parts[1] == "" || parts[2] == "" {
		return "", "", false
	}
	return parts[1], parts[2], true
}
