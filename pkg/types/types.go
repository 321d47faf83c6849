package types

import (
	"fmt"
	"time"
)

// CreatedAtMetadataKey is the user-metadata key adapters use to carry the source
// creation time onto copies. Values are RFC 3339 with nanoseconds.
const CreatedAtMetadataKey = "tiercycle-created-at"

// ObjectRef identifies one object. It is comparable and safe to use as a map key.
type ObjectRef struct {
	Container string `json:"container"`
	Key       string `json:"key"`
}

// In returns the same key in another container.
func (r ObjectRef) In(container string) ObjectRef {
	return ObjectRef{Container: container, Key: r.Key}
}

func (r ObjectRef) String() string {
	return r.Container + "/" + r.Key
}

// ObjectMetadata is read from the store at processing time.
type ObjectMetadata struct {
	Size        int64     `json:"size"`
	CreatedAt   time.Time `json:"created_at"`
	ContentType string    `json:"content_type,omitempty"`
}

// RetentionPolicy decides how long objects stay in the backup tier.
type RetentionPolicy struct {
	WindowDays int `yaml:"window_days" json:"window_days"`
}

// Validate rejects negative windows.
func (p RetentionPolicy) Validate() error {
	if p.WindowDays < 0 {
		return fmt.Errorf("retention window must be >= 0 days, got %d", p.WindowDays)
	}
	return nil
}

// FormatCreatedAt renders t for CreatedAtMetadataKey.
func FormatCreatedAt(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// ParseCreatedAt parses a CreatedAtMetadataKey value. ok is false when the value is
// missing or malformed.
func ParseCreatedAt(v string) (t time.Time, ok bool) {
	if v == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
