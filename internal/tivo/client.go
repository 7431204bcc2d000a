package tivo

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"strconv"
	"strings"
	"time"

	"github.com/icholy/digest"

	"archivist/internal/config"
	"archivist/internal/logging"
	"archivist/internal/services"
)

// EstimatedLengthHeader carries the device's size estimate for a download.
const EstimatedLengthHeader = "TiVo-Estimated-Length"

// DefaultUsername is the fixed account name the device expects alongside the
// media access key.
const DefaultUsername = "tivo"

// StatusError reports a download request the device refused.
type StatusError struct {
	Code   int
	Status string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("device answered %s", e.Status)
}

// Response is an open download. The caller must close Body.
type Response struct {
	Body io.ReadCloser
	// EstimatedLength is the declared size in bytes, or -1 when absent.
	EstimatedLength int64
}

// Client issues authenticated requests to the device. Requests made through
// one Client share a cookie jar, so the session cookie set by OpenSession is
// sent with the download.
type Client struct {
	http   *http.Client
	agent  string
	logger *slog.Logger
}

// NewClient builds a client from the device configuration. The request
// timeout bounds connection setup and response headers only; the body of a
// download may take hours.
func NewClient(cfg config.Device, logger *slog.Logger) (*Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("cookie jar: %w", err)
	}
	timeout := time.Duration(cfg.RequestTimeout) * time.Second
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = timeout
	if cfg.InsecureTLS {
		// The device serves downloads with a self-signed certificate.
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
	}
	username := strings.TrimSpace(cfg.Username)
	if username == "" {
		username = DefaultUsername
	}
	return &Client{
		// The device answers with digest challenges; the transport caches the
		// last one so later requests authenticate up front.
		http: &http.Client{
			Transport: &digest.Transport{Username: username, Password: cfg.MediaAccessKey, Transport: transport},
			Jar:       jar,
		},
		agent:  "archivist",
		logger: logging.NewComponentLogger(logger, "tivo"),
	}, nil
}

// OpenSession makes the initial request that makes the device set its
// session cookie. The response body is discarded.
func (c *Client) OpenSession(ctx context.Context, downloadURL string) error {
	resp, err := c.do(ctx, downloadURL)
	if err != nil {
		return err
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
	c.logger.Debug("session opened", logging.Int("status", resp.StatusCode))
	return nil
}

// Fetch starts the download. A non-200 answer is returned as a *StatusError
// wrapped in services.ErrTransfer so the caller can retry it.
func (c *Client) Fetch(ctx context.Context, downloadURL string) (*Response, error) {
	resp, err := c.do(ctx, downloadURL)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		_ = resp.Body.Close()
		return nil, services.Wrap(services.ErrTransfer, "connecting", "download request",
			"The device refused the download",
			&StatusError{Code: resp.StatusCode, Status: resp.Status})
	}
	return &Response{Body: resp.Body, EstimatedLength: estimatedLength(resp.Header)}, nil
}

func (c *Client) do(ctx context.Context, downloadURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, downloadURL, nil)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "connecting", "build request", "The recording's download address is not valid", err)
	}
	req.Header.Set("User-Agent", c.agent)
	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			return nil, ctxErr
		}
		return nil, services.Wrap(services.ErrTransfer, "connecting", "contact device", "Could not reach the device", err)
	}
	return resp, nil
}

func estimatedLength(h http.Header) int64 {
	raw := strings.TrimSpace(h.Get(EstimatedLengthHeader))
	if raw == "" {
		return -1
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n < 0 {
		return -1
	}
	return n
}
