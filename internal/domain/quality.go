package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// Quality represents the requested download quality tier.
// Values include QualityBest, QualityWorst, and the fixed resolution tiers
// Quality1080p through Quality240p.
type Quality string

const (
	QualityBest  Quality = "BEST"
	QualityWorst Quality = "WORST"
	Quality1080p Quality = "1080p"
	Quality720p  Quality = "720p"
	Quality480p  Quality = "480p"
	Quality360p  Quality = "360p"
	Quality240p  Quality = "240p"
)

// ParseQuality normalizes a user-supplied quality name. An empty name maps
// to QualityBest.
// Parameters:
//   - s: case-insensitive quality name.
//
// Returns:
//   - Quality: the matching tier.
//   - error: non-nil when the name is not a known tier.
func ParseQuality(s string) (Quality, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return QualityBest, nil
	}
	switch strings.ToUpper(trimmed) {
	case "BEST":
		return QualityBest, nil
	case "WORST":
		return QualityWorst, nil
	case "1080P", "1080":
		return Quality1080p, nil
	case "720P", "720":
		return Quality720p, nil
	case "480P", "480":
		return Quality480p, nil
	case "360P", "360":
		return Quality360p, nil
	case "240P", "240":
		return Quality240p, nil
	}
	return "", fmt.Errorf("unknown quality %q", s)
}

// Height returns the pixel height of a fixed resolution tier.
// Parameters: none.
// Returns:
//   - int: tier height in pixels; zero for QualityBest and QualityWorst.
func (q Quality) Height() int {
	name := string(q)
	if !strings.HasSuffix(name, "p") {
		return 0
	}
	h, err := strconv.Atoi(strings.TrimSuffix(name, "p"))
	if err != nil {
		return 0
	}
	return h
}
