// Package catalog retrieves procurement notices from the BOAMP Opendatasoft
// records API, page by page.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/jmarchand/boamp-extractor/internal/extract"
)

// DefaultBaseURL is the public BOAMP records endpoint.
const DefaultBaseURL = "https://boamp-datadila.opendatasoft.com/api/explore/v2.1/catalog/datasets/boamp/records"

// Config controls the catalog client.
type Config struct {
	BaseURL    string
	MarketType string
	PageSize   int
	UserAgent  string
	Timeout    time.Duration
}

// Client issues single page queries against the catalog endpoint using a
// Colly collector, requesting results sorted by publication date descending.
type Client struct {
	cfg           Config
	baseCollector *colly.Collector
}

type recordsPage struct {
	TotalCount int              `json:"total_count"`
	Results    []extract.Record `json:"results"`
}

// NewClient builds a Client.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 100
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	c := colly.NewCollector(colly.Async(false), colly.IgnoreRobotsTxt())
	c.WithTransport(newHTTPTransport())
	return &Client{cfg: cfg, baseCollector: c}
}

// FetchPage requests the page at the given offset. A transport failure or a
// non-success HTTP status returns an error; the caller decides how much of
// the accumulated window to keep.
func (c *Client) FetchPage(ctx context.Context, offset int) ([]extract.Record, error) {
	pageURL, err := c.pageURL(offset)
	if err != nil {
		return nil, err
	}

	collector := c.baseCollector.Clone()
	if c.cfg.UserAgent != "" {
		collector.UserAgent = c.cfg.UserAgent
	}
	collector.SetRequestTimeout(c.cfg.Timeout)

	var (
		page      recordsPage
		fetchErr  error
		decodeErr error
	)
	collector.OnResponse(func(r *colly.Response) {
		decodeErr = json.Unmarshal(r.Body, &page)
	})
	collector.OnError(func(_ *colly.Response, err error) {
		fetchErr = err
	})

	if err := c.visit(ctx, collector, pageURL, &fetchErr); err != nil {
		return nil, err
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("decode catalog page: %w", decodeErr)
	}
	return page.Results, nil
}

func (c *Client) pageURL(offset int) (string, error) {
	u, err := url.Parse(c.cfg.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parse catalog base url: %w", err)
	}
	q := u.Query()
	q.Set("order_by", extract.FieldPublicationDate+" DESC")
	if c.cfg.MarketType != "" {
		q.Set("type_marche", c.cfg.MarketType)
	}
	q.Set("limit", strconv.Itoa(c.cfg.PageSize))
	q.Set("offset", strconv.Itoa(offset))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (c *Client) visit(ctx context.Context, collector *colly.Collector, pageURL string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(pageURL)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("catalog fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("catalog visit failed: %w", err)
		}
		if *fetchErr != nil {
			return fmt.Errorf("catalog response failed: %w", *fetchErr)
		}
		return nil
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
