package ytdl

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/tobk/ytvault/internal/domain"
	"github.com/tobk/ytvault/internal/logger"
)

const browserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

// CaptionLine is one subtitle cue with its start offset in seconds.
type CaptionLine struct {
	Start float64
	Text  string
}

// Transcript is a fetched caption track.
type Transcript struct {
	Language string
	Lines    []CaptionLine
}

// captionTrack mirrors the track descriptors embedded in the watch page.
type captionTrack struct {
	BaseURL      string `json:"baseUrl"`
	LanguageCode string `json:"languageCode"`
	Kind         string `json:"kind"`
	Name         struct {
		SimpleText string `json:"simpleText"`
	} `json:"name"`
}

// timedText is the timedtext XML document a caption track URL serves.
type timedText struct {
	XMLName xml.Name       `xml:"transcript"`
	Lines   []timedTextCue `xml:"text"`
}

type timedTextCue struct {
	Start float64 `xml:"start,attr"`
	Dur   float64 `xml:"dur,attr"`
	Text  string  `xml:",chardata"`
}

// TranscriptFetcher pulls caption tracks from video watch pages. Videos
// without captions are reported as domain.ErrNoTranscript so callers can
// treat absence differently from network failures.
type TranscriptFetcher struct {
	client    *resty.Client
	languages []string
}

// NewTranscriptFetcher creates a fetcher preferring the given language
// codes in order, falling back to any available track.
// Parameters:
//   - timeout: per-request HTTP timeout.
//   - languages: preferred language codes, most preferred first.
// Returns:
//   - *TranscriptFetcher: initialized fetcher.
func NewTranscriptFetcher(timeout time.Duration, languages []string) *TranscriptFetcher {
	client := resty.New()
	client.SetTimeout(timeout)
	client.SetHeader("User-Agent", browserUserAgent)
	client.SetHeader("Accept-Language", "en-US,en;q=0.9")

	return &TranscriptFetcher{
		client:    client,
		languages: languages,
	}
}

// Fetch retrieves the best caption track for a video.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - videoID: 11-character video identifier.
// Returns:
//   - *Transcript: parsed cues in playback order.
//   - error: domain.ErrNoTranscript when the video has no captions,
//     another error when the pages cannot be fetched.
func (f *TranscriptFetcher) Fetch(ctx context.Context, videoID string) (*Transcript, error) {
	watchURL := "https://www.youtube.com/watch?v=" + videoID

	resp, err := f.client.R().
		SetContext(ctx).
		Get(watchURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch watch page: %w", err)
	}
	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("watch page returned status %d", resp.StatusCode())
	}

	tracks, err := parseCaptionTracks(resp.String())
	if err != nil {
		return nil, err
	}
	if len(tracks) == 0 {
		return nil, domain.ErrNoTranscript
	}

	track := f.pickTrack(tracks)
	logger.CtxDebug(ctx, "Fetching caption track %s for video %s", track.LanguageCode, videoID)

	capResp, err := f.client.R().
		SetContext(ctx).
		Get(track.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch caption track: %w", err)
	}
	if capResp.StatusCode() != 200 {
		return nil, fmt.Errorf("caption track returned status %d", capResp.StatusCode())
	}

	lines, err := parseTimedText(capResp.Body())
	if err != nil {
		return nil, fmt.Errorf("failed to parse caption track: %w", err)
	}
	if len(lines) == 0 {
		return nil, domain.ErrNoTranscript
	}

	return &Transcript{
		Language: track.LanguageCode,
		Lines:    lines,
	}, nil
}

// pickTrack applies the language preference order. Manually authored
// tracks win over auto-generated ones for the same language; a bare "en"
// preference also matches regional variants like "en-US".
func (f *TranscriptFetcher) pickTrack(tracks []captionTrack) captionTrack {
	for _, lang := range f.languages {
		for _, t := range tracks {
			if t.LanguageCode == lang && t.Kind != "asr" {
				return t
			}
		}
		for _, t := range tracks {
			if t.LanguageCode == lang {
				return t
			}
		}
	}
	for _, lang := range f.languages {
		for _, t := range tracks {
			if strings.HasPrefix(t.LanguageCode, lang+"-") || strings.HasPrefix(lang, t.LanguageCode+"-") {
				return t
			}
		}
	}
	return tracks[0]
}

// parseCaptionTracks pulls the captionTracks array out of the watch page
// HTML. The page embeds it as JSON inside a script tag.
func parseCaptionTracks(page string) ([]captionTrack, error) {
	const marker = `"captionTracks":`
	idx := strings.Index(page, marker)
	if idx < 0 {
		return nil, domain.ErrNoTranscript
	}

	raw, ok := extractJSONArray(page[idx+len(marker):])
	if !ok {
		return nil, fmt.Errorf("malformed caption track listing in watch page")
	}

	var tracks []captionTrack
	if err := json.Unmarshal([]byte(raw), &tracks); err != nil {
		return nil, fmt.Errorf("failed to decode caption track listing: %w", err)
	}
	return tracks, nil
}

// extractJSONArray returns the balanced JSON array starting at the front
// of s, tolerating brackets inside string literals.
func extractJSONArray(s string) (string, bool) {
	if len(s) == 0 || s[0] != '[' {
		return "", false
	}
	depth := 0
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '[':
			depth++
		case ']':
			depth--
			if depth == 0 {
				return s[:i+1], true
			}
		}
	}
	return "", false
}

// parseTimedText decodes a timedtext XML document into caption lines.
// Cue text arrives double-escaped, so entities are unescaped again after
// the XML pass and line breaks inside a cue collapse to spaces.
func parseTimedText(body []byte) ([]CaptionLine, error) {
	var doc timedText
	if err := xml.Unmarshal(body, &doc); err != nil {
		return nil, err
	}

	lines := make([]CaptionLine, 0, len(doc.Lines))
	for _, cue := range doc.Lines {
		text := html.UnescapeString(cue.Text)
		text = strings.Join(strings.Fields(text), " ")
		if text == "" {
			continue
		}
		lines = append(lines, CaptionLine{Start: cue.Start, Text: text})
	}
	return lines, nil
}

// FormatTimestamped renders cues as "[MM:SS] text" lines. Minutes keep
// counting past the hour, matching the plain-text transcripts the
// download jobs archive.
func FormatTimestamped(lines []CaptionLine) string {
	var b strings.Builder
	for i, line := range lines {
		if i > 0 {
			b.WriteByte('\n')
		}
		total := int(line.Start)
		fmt.Fprintf(&b, "[%02d:%02d] %s", total/60, total%60, line.Text)
	}
	return b.String()
}

// FormatPlain renders cues as one flowing text without timestamps.
func FormatPlain(lines []CaptionLine) string {
	parts := make([]string, 0, len(lines))
	for _, line := range lines {
		parts = append(parts, line.Text)
	}
	return strings.Join(parts, " ")
}
