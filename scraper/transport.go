package scraper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/aluiziolira/go-wb-ranker/config"
	"github.com/aluiziolira/go-wb-ranker/models"
	"github.com/aluiziolira/go-wb-ranker/parser"
	"github.com/gocolly/colly/v2"
	"golang.org/x/time/rate"
)

// Transport performs exactly one search request for a (keyword, page) pair.
type Transport interface {
	SearchPage(ctx context.Context, keyword string, page int) ([]models.Product, error)
}

const (
	ctxKeyStart   = "start"
	ctxKeyBody    = "body"
	ctxKeyStatus  = "status"
	ctxKeyHeaders = "headers"
)

// HTTPTransport queries the marketplace search API through a colly collector.
type HTTPTransport struct {
	cfg       *config.Config
	collector *colly.Collector
	limiter   *rate.Limiter
	metrics   *Metrics
}

// NewHTTPTransport builds a transport configured from cfg. metrics may be nil.
func NewHTTPTransport(cfg *config.Config, metrics *Metrics) (*HTTPTransport, error) {
	parsed, err := url.Parse(cfg.SearchURL)
	if err != nil {
		return nil, fmt.Errorf("parse search url: %w", err)
	}
	if parsed.Hostname() == "" {
		return nil, fmt.Errorf("search url must include a host")
	}

	collector := colly.NewCollector(
		colly.AllowedDomains(parsed.Hostname()),
		colly.UserAgent(cfg.UserAgent),
		colly.AllowURLRevisit(),
	)
	collector.IgnoreRobotsTxt = true
	collector.SetRequestTimeout(cfg.Timeout)
	collector.WithTransport(&http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: cfg.Concurrency * 2,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	})

	t := &HTTPTransport{
		cfg:       cfg,
		collector: collector,
		metrics:   metrics,
	}
	if cfg.RequestsPerSecond > 0 {
		burst := int(cfg.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		t.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	t.registerHandlers()
	return t, nil
}

// WithTransport swaps the underlying round tripper.
func (t *HTTPTransport) WithTransport(rt http.RoundTripper) {
	t.collector.WithTransport(rt)
}

func (t *HTTPTransport) registerHandlers() {
	t.collector.OnRequest(func(r *colly.Request) {
		r.Ctx.Put(ctxKeyStart, time.Now())
	})

	t.collector.OnResponse(func(r *colly.Response) {
		t.observe(r)
		r.Ctx.Put(ctxKeyStatus, r.StatusCode)
		r.Ctx.Put(ctxKeyBody, r.Body)
	})

	t.collector.OnError(func(r *colly.Response, err error) {
		if r == nil || r.Ctx == nil {
			return
		}
		t.observe(r)
		r.Ctx.Put(ctxKeyStatus, r.StatusCode)
		if r.Headers != nil {
			r.Ctx.Put(ctxKeyHeaders, *r.Headers)
		}
	})
}

func (t *HTTPTransport) observe(r *colly.Response) {
	t.metrics.IncRequest(r.StatusCode)
	if start, ok := r.Ctx.GetAny(ctxKeyStart).(time.Time); ok {
		t.metrics.ObserveDuration(time.Since(start))
	}
}

// BuildURL renders the search request URL for keyword and page.
func (t *HTTPTransport) BuildURL(keyword string, page int) string {
	params := url.Values{}
	params.Set("query", keyword)
	params.Set("page", strconv.Itoa(page))
	params.Set("sort", t.cfg.Sort)
	params.Set("locale", t.cfg.Locale)
	params.Set("lang", t.cfg.Locale)
	params.Set("curr", t.cfg.Currency)
	params.Set("dest", t.cfg.Destination)
	params.Set("appType", "1")
	params.Set("resultset", "catalog")
	return t.cfg.SearchURL + "?" + params.Encode()
}

func (t *HTTPTransport) headers() http.Header {
	hdr := http.Header{}
	hdr.Set("User-Agent", t.cfg.UserAgent)
	hdr.Set("Accept", "application/json, text/plain, */*")
	hdr.Set("Accept-Language", "ru-RU,ru;q=0.9,en;q=0.8")
	hdr.Set("Referer", "https://www.wildberries.ru/")
	return hdr
}

// SearchPage fetches one result page. Non-JSON bodies and payloads without a
// product list yield zero products and a nil error.
func (t *HTTPTransport) SearchPage(ctx context.Context, keyword string, page int) ([]models.Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if t.limiter != nil {
		if err := t.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	target := t.BuildURL(keyword, page)
	reqCtx := colly.NewContext()
	err := t.collector.Request(http.MethodGet, target, nil, reqCtx, t.headers())

	status, _ := reqCtx.GetAny(ctxKeyStatus).(int)
	if err != nil {
		header, _ := reqCtx.GetAny(ctxKeyHeaders).(http.Header)
		return nil, classifyError(err, status, header, t.cfg.RateLimitWait)
	}
	if status != 0 && status != http.StatusOK {
		return nil, classifyError(nil, status, nil, t.cfg.RateLimitWait)
	}

	body, _ := reqCtx.GetAny(ctxKeyBody).([]byte)
	result, err := parser.ParseSearchPayload(body)
	if err != nil {
		if errors.Is(err, parser.ErrUnexpectedPayload) {
			slog.Warn("unexpected search payload, treating page as empty",
				slog.String("keyword", keyword),
				slog.Int("page", page),
				slog.String("title", interstitialTitle(body)),
				slog.Any("error", err),
			)
			t.metrics.IncError("payload_anomaly")
			return nil, nil
		}
		return nil, err
	}

	for _, skipped := range result.Skipped {
		slog.Debug("skipped product entry",
			slog.String("keyword", keyword),
			slog.Int("page", page),
			slog.Any("error", skipped),
		)
	}
	t.metrics.IncPages()
	return result.Products, nil
}

// interstitialTitle extracts the <title> of an HTML body, if any.
func interstitialTitle(body []byte) string {
	if len(body) == 0 || !bytes.Contains(bytes.ToLower(body), []byte("<html")) {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(doc.Find("title").First().Text())
}
