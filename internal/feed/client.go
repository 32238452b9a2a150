// Package feed uploads meter readings to a remote telemetry feed.
package feed

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/DaveBerkeley/elster-meter/internal/errors"
	"github.com/DaveBerkeley/elster-meter/internal/logger"
	"github.com/bytedance/sonic"
	"gopkg.in/resty.v1"
)

const (
	contentType    = "application/x-www-form-urlencoded"
	defaultTimeout = 30 * time.Second
)

type Config struct {
	Host    string
	FeedID  string
	APIKey  string
	Agent   string
	HTTPS   bool
	Timeout time.Duration
	// Test prints payloads instead of sending them.
	Test bool
}

// Response holds the status line returned by the feed.
type Response struct {
	StatusCode int
	Reason     string
}

type Client struct {
	cfg  Config
	http *resty.Client
	out  io.Writer
}

type Option func(*Client)

// WithOutput sets where test mode payloads are printed. Defaults to stdout.
func WithOutput(w io.Writer) Option {
	return func(c *Client) {
		c.out = w
	}
}

func New(cfg Config, opts ...Option) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	scheme := "http"
	if cfg.HTTPS {
		scheme = "https"
	}

	rc := resty.New().
		SetHostURL(scheme+"://"+cfg.Host).
		SetTimeout(cfg.Timeout).
		SetHeader("Content-Type", contentType).
		SetHeader("X-ApiKey", cfg.APIKey).
		SetHeader("User-Agent", cfg.Agent)

	c := &Client{
		cfg:  cfg,
		http: rc,
		out:  os.Stdout,
	}
	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Path returns the request path for the configured feed.
func (c *Client) Path() string {
	return "/v2/feeds/" + c.cfg.FeedID
}

// Encode returns the JSON body sent for p.
func Encode(p Payload) ([]byte, error) {
	body, err := sonic.Marshal(p)
	if err != nil {
		return nil, errors.New().Wrap(errors.ErrEncode, err)
	}

	return body, nil
}

// Put sends p to the feed. In test mode the encoded payload is written to
// the client's output instead and a zero Response is returned.
// A status outside 2xx is returned together with an ErrFeedStatus error.
func (c *Client) Put(ctx context.Context, p Payload) (Response, error) {
	errFactory := errors.New()

	body, err := Encode(p)
	if err != nil {
		return Response{}, err
	}

	if c.cfg.Test {
		if _, err := fmt.Fprintf(c.out, "%s\n", body); err != nil {
			return Response{}, errFactory.Wrap(errors.ErrInternal, err)
		}
		return Response{}, nil
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		Put(c.Path())
	if err != nil {
		return Response{}, errFactory.Wrap(errors.ErrTransport, err)
	}

	r := Response{
		StatusCode: resp.StatusCode(),
		Reason:     reason(resp.StatusCode(), resp.Status()),
	}

	logger.Debug().
		Int("status", r.StatusCode).
		Str("reason", r.Reason).
		Msg("Feed updated")

	if r.StatusCode < 200 || r.StatusCode >= 300 {
		return r, errFactory.WithData(errors.ErrFeedStatus, fmt.Sprintf("%d %s", r.StatusCode, r.Reason))
	}

	return r, nil
}

// reason strips the numeric code from a status line such as "200 OK".
func reason(code int, status string) string {
	r := strings.TrimSpace(strings.TrimPrefix(status, strconv.Itoa(code)))
	if r == "" {
		return http.StatusText(code)
	}

	return r
}
