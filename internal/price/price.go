package price

import (
	"bond-alert-bot/internal/types"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"
)

var (
	// ErrInstrumentNotFound is returned when the endpoint answers with an error
	// envelope instead of a quote: the ISIN is unknown upstream.
	ErrInstrumentNotFound = errors.New("instrument not found")
	// ErrNoPriceData is returned for a quote envelope without trade points.
	ErrNoPriceData = errors.New("no price data")
)

// IsUnresolved reports whether err means the endpoint was reachable but had
// no tradable price for the instrument.
func IsUnresolved(err error) bool {
	return errors.Is(err, ErrInstrumentNotFound) || errors.Is(err, ErrNoPriceData)
}

// HTTPError is returned for non-2xx answers of the price endpoint
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("price endpoint returned status %d: %s", e.StatusCode, e.Body)
}

type ClientConfig struct {
	BaseURL string
	Suffix  string
	Token   string
	Timeout time.Duration
	// MaxConnsPerHost caps open sockets to the endpoint, 0 means unlimited
	MaxConnsPerHost int
	// RequestsPerSecond caps the request rate, 0 disables the limiter
	RequestsPerSecond float64
}

// Client fetches bond quotes from the market data endpoint
type Client struct {
	config  ClientConfig
	http    *http.Client
	limiter *rate.Limiter
}

func NewClient(c ClientConfig) *Client {
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Second
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxIdleConns = 100
	transport.MaxIdleConnsPerHost = 40
	transport.MaxConnsPerHost = c.MaxConnsPerHost
	transport.IdleConnTimeout = 90 * time.Second

	client := &Client{
		config: c,
		http: &http.Client{
			Timeout:   c.Timeout,
			Transport: transport,
		},
	}

	if c.RequestsPerSecond > 0 {
		burst := int(c.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		client.limiter = rate.NewLimiter(rate.Limit(c.RequestsPerSecond), burst)
	}

	return client
}

// FetchPrice retrieves the latest quote for isin. Transport and HTTP failures
// are returned as wrapped errors, a reachable endpoint without a usable price
// yields ErrInstrumentNotFound or ErrNoPriceData.
func (c *Client) FetchPrice(ctx context.Context, isin string) (*types.PriceQuote, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, errors.Wrapf(err, "rate limiter for %s", isin)
		}
	}

	url := c.config.BaseURL + isin + c.config.Suffix
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "could not build request for %s", isin)
	}
	req.Header.Set("Accept", "application/json")
	if c.config.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.Token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "could not fetch price for %s", isin)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrapf(err, "could not read price response for %s", isin)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, errors.WithStack(&HTTPError{StatusCode: resp.StatusCode, Body: truncate(string(body), 200)})
	}

	return parseQuote(isin, body)
}

func parseQuote(isin string, body []byte) (*types.PriceQuote, error) {
	if !gjson.ValidBytes(body) {
		return nil, errors.Errorf("invalid JSON in price response for %s", isin)
	}

	payload := gjson.ParseBytes(body)
	points := payload.Get("intradayPoint")
	if !points.IsArray() {
		log.Debugf("unrecognized price payload for %s: %s", isin, spew.Sdump(payload.Value()))
		return nil, errors.Wrap(ErrInstrumentNotFound, isin)
	}

	quote := &types.PriceQuote{
		ISIN:     isin,
		Label:    payload.Get("label").String(),
		Currency: payload.Get("currency").String(),
	}

	for _, p := range points.Array() {
		px := p.Get("endPx")
		if px.Type != gjson.Number {
			continue
		}
		quote.Points = append(quote.Points, types.PricePoint{
			Time:  parsePointTime(p),
			Price: px.Float(),
		})
	}

	all := points.Array()
	if len(all) == 0 {
		return nil, errors.Wrap(ErrNoPriceData, isin)
	}
	last := all[len(all)-1].Get("endPx")
	if last.Type != gjson.Number {
		return nil, errors.Wrap(ErrNoPriceData, isin)
	}
	quote.Price = last.Float()

	return quote, nil
}

var pointTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"20060102150405",
}

func parsePointTime(p gjson.Result) time.Time {
	for _, field := range []string{"time", "endTime"} {
		raw := strings.TrimSpace(p.Get(field).String())
		if raw == "" {
			continue
		}
		for _, layout := range pointTimeLayouts {
			if t, err := time.Parse(layout, raw); err == nil {
				return t
			}
		}
	}
	return time.Time{}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
