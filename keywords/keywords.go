// Package keywords loads search keywords from CSV and XLSX sources, local or
// remote, and normalises them for ranking.
package keywords

import (
	"log/slog"
	"net/url"
	"regexp"
	"strings"

	"github.com/aluiziolira/go-wb-ranker/parser"
	lru "github.com/hashicorp/golang-lru/v2"
)

// Normalize cleans and validates raw entries, dropping invalid ones with a
// warning. With dedupe set, case-insensitive repeats are removed keeping the
// first occurrence; the set of remembered keys is bounded by maxSize.
func Normalize(raw []string, dedupe bool, maxSize int) []string {
	var seen *lru.Cache[string, struct{}]
	if dedupe {
		if maxSize <= 0 {
			maxSize = len(raw) + 1
		}
		cache, err := lru.New[string, struct{}](maxSize)
		if err != nil {
			slog.Warn("keyword dedupe disabled", slog.Any("error", err))
		} else {
			seen = cache
		}
	}

	out := make([]string, 0, len(raw))
	for i, entry := range raw {
		keyword := parser.CleanKeyword(entry)
		if keyword == "" {
			continue
		}
		if err := parser.ValidateKeyword(keyword); err != nil {
			slog.Warn("dropping invalid keyword",
				slog.Int("row", i+1),
				slog.String("keyword", entry),
				slog.Any("error", err),
			)
			continue
		}
		if seen != nil {
			key := strings.ToLower(keyword)
			if seen.Contains(key) {
				slog.Debug("dropping duplicate keyword", slog.String("keyword", keyword))
				continue
			}
			seen.Add(key, struct{}{})
		}
		out = append(out, keyword)
	}
	return out
}

var driveIDPatterns = []*regexp.Regexp{
	regexp.MustCompile(`/file/d/([a-zA-Z0-9_-]+)`),
	regexp.MustCompile(`[?&]id=([a-zA-Z0-9_-]+)`),
}

// IsDriveURL reports whether raw points at Google Drive.
func IsDriveURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return strings.Contains(strings.ToLower(u.Host), "drive.google.com")
}

// DirectDownloadURL converts a Google Drive share link into a direct download
// link. Other URLs are returned unchanged. ok is false for Drive links without
// a recognisable file id.
func DirectDownloadURL(raw string) (string, bool) {
	if !IsDriveURL(raw) {
		return raw, true
	}
	for _, pattern := range driveIDPatterns {
		if m := pattern.FindStringSubmatch(raw); m != nil {
			return "https://drive.google.com/uc?export=download&id=" + m[1], true
		}
	}
	return "", false
}
