// Package collyfetcher implements analysis.Fetcher by downloading the page
// directly with gocolly instead of going through the scraping API.
package collyfetcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/website-growth-analyzer/internal/analysis"
	"github.com/JakeFAU/website-growth-analyzer/internal/fetcher"
	"github.com/JakeFAU/website-growth-analyzer/internal/metrics"
)

// boilerplate is removed before the main content is converted.
const boilerplate = "script,style,noscript,iframe,svg,nav,footer,form"

// Config controls collector behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
	// AllowPrivateNetworks permits non-public targets and honors proxy
	// environment variables. Off, only public addresses are dialed.
	AllowPrivateNetworks bool
}

// Fetcher implements analysis.Fetcher using the Colly collector.
type Fetcher struct {
	cfg           Config
	transport     http.RoundTripper
	baseCollector *colly.Collector
	converter     *converter.Converter
	logger        *zap.Logger
}

type collectorHooks interface {
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

type page struct {
	url        string
	statusCode int
	body       []byte
}

// New builds a Fetcher.
func New(cfg Config, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := colly.NewCollector(colly.Async(false), colly.AllowURLRevisit())
	transport := newHTTPTransport(cfg.AllowPrivateNetworks)
	c.WithTransport(transport)

	return &Fetcher{
		cfg:           cfg,
		transport:     transport,
		baseCollector: c,
		converter: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
			),
		),
		logger: logger,
	}
}

// Fetch downloads target, extracts its main content as markdown and cleans it.
func (f *Fetcher) Fetch(ctx context.Context, target string) (analysis.CrawledContent, error) {
	var (
		result   page
		fetchErr error
	)
	start := time.Now()
	collector := f.buildCollector()
	f.configureCollectorHooks(collector, &result, &fetchErr)

	if err := f.runCollector(ctx, collector, target, &result, &fetchErr); err != nil {
		return analysis.CrawledContent{}, err
	}
	metrics.ObserveUpstreamCall("direct", result.statusCode)

	content, err := f.extract(target, result)
	if err != nil {
		return analysis.CrawledContent{}, err
	}
	content.CrawlTime = time.Since(start)
	return fetcher.Finalize(content)
}

func (f *Fetcher) buildCollector() *colly.Collector {
	collector := f.baseCollector.Clone()
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	timeout := f.cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	collector.SetRequestTimeout(timeout)
	collector.WithTransport(f.transport)
	return collector
}

func (f *Fetcher) configureCollectorHooks(hooks collectorHooks, result *page, fetchErr *error) {
	hooks.OnResponse(func(r *colly.Response) {
		*result = page{
			url:        r.Request.URL.String(),
			statusCode: r.StatusCode,
			body:       append([]byte(nil), r.Body...),
		}
	})

	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode != 0 {
			result.statusCode = r.StatusCode
		}
		*fetchErr = err
	})
}

func (f *Fetcher) runCollector(
	ctx context.Context,
	collector *colly.Collector,
	url string,
	result *page,
	fetchErr *error,
) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return &analysis.FetchError{
			Kind:    analysis.FetchNetworkUnreachable,
			Message: "direct fetch canceled",
			Err:     ctx.Err(),
		}
	case err := <-done:
		if err == nil {
			err = *fetchErr
		}
		if err == nil {
			return nil
		}
		return classify(result.statusCode, err)
	}
}

func (f *Fetcher) extract(target string, result page) (analysis.CrawledContent, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(result.body))
	if err != nil {
		return analysis.CrawledContent{}, &analysis.FetchError{
			Kind:    analysis.FetchUpstreamError,
			Message: "parse html",
			Err:     err,
		}
	}
	title := strings.TrimSpace(doc.Find("title").First().Text())
	description, _ := doc.Find(`meta[name="description"]`).First().Attr("content")
	if description == "" {
		description, _ = doc.Find(`meta[property="og:description"]`).First().Attr("content")
	}

	doc.Find(boilerplate).Remove()
	root := doc.Find("main").First()
	if root.Length() == 0 {
		root = doc.Find("body").First()
	}
	markup, err := root.Html()
	if err != nil {
		return analysis.CrawledContent{}, &analysis.FetchError{
			Kind:    analysis.FetchUpstreamError,
			Message: "render main content",
			Err:     err,
		}
	}

	markdown, err := f.converter.ConvertString(markup, converter.WithDomain(target))
	if err != nil {
		f.logger.Debug("markdown conversion failed; falling back to text", zap.Error(err))
		markdown = ""
	}

	return analysis.CrawledContent{
		URL:         target,
		Content:     fetcher.PickContent(markdown, root.Text(), markup),
		Title:       title,
		Description: strings.TrimSpace(description),
		StatusCode:  result.statusCode,
	}, nil
}

func classify(status int, err error) error {
	fetchErr := &analysis.FetchError{StatusCode: status, Err: err}
	var netErr net.Error
	switch {
	case errors.Is(err, errNonPublicAddress):
		fetchErr.Kind = analysis.FetchBadRequest
		fetchErr.Message = "url does not resolve to a public address"
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		fetchErr.Kind = analysis.FetchAuthFailure
		fetchErr.Message = "site denied access"
	case status == http.StatusTooManyRequests:
		fetchErr.Kind = analysis.FetchRateLimited
		fetchErr.Message = "site rate limit exceeded"
	case status == http.StatusBadRequest || status == http.StatusNotFound || status == http.StatusGone:
		fetchErr.Kind = analysis.FetchBadRequest
		fetchErr.Message = "site rejected the url"
	case status >= 500:
		fetchErr.Kind = analysis.FetchUpstreamError
		fetchErr.Message = "site error"
	case errors.As(err, &netErr) || status == 0:
		fetchErr.Kind = analysis.FetchNetworkUnreachable
		fetchErr.Message = "site unreachable"
	default:
		fetchErr.Kind = analysis.FetchUpstreamError
		fetchErr.Message = fmt.Sprintf("unexpected response %d", status)
	}
	return fetchErr
}

func newHTTPTransport(allowPrivate bool) *http.Transport {
	dialer := &net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
	if allowPrivate {
		transport.Proxy = http.ProxyFromEnvironment
		return transport
	}
	// A proxy would dial the target on our behalf and bypass the check.
	dialer.Control = publicOnly
	return transport
}
