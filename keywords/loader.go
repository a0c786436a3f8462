package keywords

import (
	"context"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aluiziolira/go-wb-ranker/config"
	"github.com/gocolly/colly/v2"
)

// Loader reads keyword lists from local files or URLs.
type Loader struct {
	maxFileSize int64
	dedupe      bool
	dedupeMax   int
	collector   *colly.Collector
}

// NewLoader builds a loader with limits from cfg.
func NewLoader(cfg *config.Config) *Loader {
	collector := colly.NewCollector(
		colly.UserAgent(cfg.UserAgent),
		colly.AllowURLRevisit(),
	)
	collector.IgnoreRobotsTxt = true
	collector.SetRequestTimeout(30 * time.Second)
	// One extra byte lets oversized bodies be told apart from exact fits.
	collector.MaxBodySize = int(cfg.MaxFileSize) + 1

	collector.OnResponse(func(r *colly.Response) {
		r.Ctx.Put("status", r.StatusCode)
		r.Ctx.Put("body", r.Body)
		if r.Headers != nil {
			r.Ctx.Put("name", attachmentName(r.Headers.Get("Content-Disposition")))
		}
	})
	collector.OnError(func(r *colly.Response, _ error) {
		if r != nil && r.Ctx != nil {
			r.Ctx.Put("status", r.StatusCode)
		}
	})

	return &Loader{
		maxFileSize: cfg.MaxFileSize,
		dedupe:      cfg.DedupeKeywords,
		dedupeMax:   cfg.DedupeMaxSize,
		collector:   collector,
	}
}

func attachmentName(disposition string) string {
	if disposition == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(disposition)
	if err != nil {
		return ""
	}
	return params["filename"]
}

// WithTransport swaps the round tripper used for downloads.
func (l *Loader) WithTransport(rt http.RoundTripper) {
	l.collector.WithTransport(rt)
}

// Load reads keywords from source, which is either an http(s) URL or a path.
func (l *Loader) Load(ctx context.Context, source string) ([]string, error) {
	lower := strings.ToLower(source)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return l.LoadURL(ctx, source)
	}
	return l.LoadFile(source)
}

// LoadFile reads keywords from a local CSV or XLSX file.
func (l *Loader) LoadFile(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat keyword file: %w", err)
	}
	if info.Size() > l.maxFileSize {
		return nil, fmt.Errorf("%w: %d bytes exceeds %d", ErrFileTooLarge, info.Size(), l.maxFileSize)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read keyword file: %w", err)
	}
	return l.fromBytes(filepath.Base(path), data)
}

// LoadURL downloads and parses a keyword file. Google Drive share links are
// converted to direct downloads first.
func (l *Loader) LoadURL(ctx context.Context, rawURL string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	target, ok := DirectDownloadURL(rawURL)
	if !ok {
		return nil, fmt.Errorf("google drive link without a file id: %s", rawURL)
	}

	reqCtx := colly.NewContext()
	err := l.collector.Request(http.MethodGet, target, nil, reqCtx, nil)
	body, _ := reqCtx.GetAny("body").([]byte)
	name, _ := reqCtx.GetAny("name").(string)
	if err != nil {
		if status, _ := reqCtx.GetAny("status").(int); status != 0 {
			return nil, fmt.Errorf("download keyword file: http status %d: %w", status, err)
		}
		return nil, fmt.Errorf("download keyword file: %w", err)
	}
	if int64(len(body)) > l.maxFileSize {
		return nil, fmt.Errorf("%w: download exceeds %d bytes", ErrFileTooLarge, l.maxFileSize)
	}

	if name == "" {
		name = target
	}
	slog.Info("keyword file downloaded",
		slog.String("url", target),
		slog.Int("bytes", len(body)),
	)
	return l.fromBytes(name, body)
}

func (l *Loader) fromBytes(name string, data []byte) ([]string, error) {
	format, err := DetectFormat(name, data)
	if err != nil {
		return nil, err
	}
	raw, err := Parse(data, format)
	if err != nil {
		return nil, err
	}
	keywords := Normalize(raw, l.dedupe, l.dedupeMax)
	if len(keywords) == 0 {
		return nil, ErrEmpty
	}
	slog.Info("keywords loaded",
		slog.String("source", name),
		slog.String("format", string(format)),
		slog.Int("raw", len(raw)),
		slog.Int("valid", len(keywords)),
	)
	return keywords, nil
}
