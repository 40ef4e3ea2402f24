package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// OutputKind identifies one producible artifact type of a download job.
// Values include KindAudio, KindVideo, KindTranscript, and KindThumbnail.
type OutputKind string

const (
	KindAudio      OutputKind = "AUDIO"
	KindVideo      OutputKind = "VIDEO"
	KindTranscript OutputKind = "TRANSCRIPT"
	KindThumbnail  OutputKind = "THUMBNAIL"
)

// AllKinds returns every output kind in canonical production order.
// Parameters: none.
// Returns:
//   - []OutputKind: audio, video, transcript, thumbnail.
func AllKinds() []OutputKind {
	return []OutputKind{KindAudio, KindVideo, KindTranscript, KindThumbnail}
}

// ParseKind normalizes a user-supplied kind name.
// Parameters:
//   - s: case-insensitive kind name.
//
// Returns:
//   - OutputKind: the matching kind.
//   - error: non-nil when the name is not a known kind.
func ParseKind(s string) (OutputKind, error) {
	switch OutputKind(strings.ToUpper(strings.TrimSpace(s))) {
	case KindAudio:
		return KindAudio, nil
	case KindVideo:
		return KindVideo, nil
	case KindTranscript:
		return KindTranscript, nil
	case KindThumbnail:
		return KindThumbnail, nil
	}
	return "", fmt.Errorf("unknown output kind %q", s)
}

// KindSet is the set of outputs requested for a job, stored as JSON in a
// single text column.
type KindSet []OutputKind

// NewKindSet validates and deduplicates kind names into canonical order.
// Parameters:
//   - names: raw kind names from a request.
//
// Returns:
//   - KindSet: validated set in canonical order; empty set when no names given.
//   - error: non-nil if any name is not a known kind.
func NewKindSet(names []string) (KindSet, error) {
	seen := make(map[OutputKind]bool, len(names))
	for _, name := range names {
		kind, err := ParseKind(name)
		if err != nil {
			return nil, err
		}
		seen[kind] = true
	}
	set := KindSet{}
	for _, kind := range AllKinds() {
		if seen[kind] {
			set = append(set, kind)
		}
	}
	return set, nil
}

// Has reports whether the set contains the given kind.
// Parameters:
//   - kind: kind to test.
//
// Returns:
//   - bool: true when present.
func (k KindSet) Has(kind OutputKind) bool {
	for _, have := range k {
		if have == kind {
			return true
		}
	}
	return false
}

// MediaKinds returns the subset of kinds that run as weighted pipeline
// stages. The thumbnail is excluded; it is fetched during the fixed leading
// phase and carries no stage weight.
// Parameters: none.
// Returns:
//   - KindSet: audio, video, and transcript members in canonical order.
func (k KindSet) MediaKinds() KindSet {
	media := KindSet{}
	for _, kind := range k {
		if kind != KindThumbnail {
			media = append(media, kind)
		}
	}
	return media
}

// Value implements the driver.Valuer interface for database serialization.
// Parameters: none.
// Returns:
//   - driver.Value: JSON-encoded string representation of the set.
//   - error: non-nil if marshaling fails.
func (k KindSet) Value() (driver.Value, error) {
	if k == nil {
		return "[]", nil
	}
	b, err := json.Marshal(k)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements the sql.Scanner interface for database deserialization.
// Parameters:
//   - value: raw database value to decode.
//
// Returns:
//   - error: non-nil if decoding fails or the type is unexpected.
func (k *KindSet) Scan(value interface{}) error {
	if value == nil {
		*k = KindSet{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		str, ok := value.(string)
		if !ok {
			return errors.New("failed to scan KindSet")
		}
		bytes = []byte(str)
	}
	return json.Unmarshal(bytes, k)
}
