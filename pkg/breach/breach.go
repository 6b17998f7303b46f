// Package breach checks secrets against a database of known breached
// passwords and classifies the outcome for display.
package breach

import (
	"bufio"
	"context"
	"crypto/sha1" //nolint:gosec // the range API is keyed by SHA-1
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultEndpoint is the range API base; the five-character hash prefix
	// is appended to it.
	DefaultEndpoint = "https://api.pwnedpasswords.com/range/"
	// DefaultTimeout bounds one range request.
	DefaultTimeout = 10 * time.Second

	prefixLen = 5
	userAgent = "sitepass"
)

// Checker reports how many times a value appears in known breaches.
type Checker interface {
	Check(ctx context.Context, value string) (int, error)
}

// UpstreamError is returned when the breach service answered with a
// non-success status.
type UpstreamError struct {
	StatusCode int
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("breach: upstream responded %d %s", e.StatusCode, http.StatusText(e.StatusCode))
}

// paddingTransport asks for padded responses so the response size does not
// reveal the prefix bucket.
type paddingTransport struct {
	base http.RoundTripper
}

func (t *paddingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("Add-Padding", "true")
	req.Header.Set("User-Agent", userAgent)
	return t.base.RoundTrip(req)
}

func (t *paddingTransport) CloseIdleConnections() {
	if c, ok := t.base.(interface{ CloseIdleConnections() }); ok {
		c.CloseIdleConnections()
	}
}

// PwnedClient queries a k-anonymity range API: only the first five hex
// characters of the SHA-1 digest leave the process.
type PwnedClient struct {
	endpoint string
	client   *http.Client
	logger   *zap.Logger
}

// Option configures a PwnedClient.
type Option func(*PwnedClient)

// WithEndpoint overrides DefaultEndpoint.
func WithEndpoint(endpoint string) Option {
	return func(c *PwnedClient) { c.endpoint = endpoint }
}

// WithHTTPClient replaces the HTTP client. Its transport is used as is.
func WithHTTPClient(client *http.Client) Option {
	return func(c *PwnedClient) { c.client = client }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *PwnedClient) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewPwnedClient creates a client with DefaultEndpoint and timeout.
func NewPwnedClient(timeout time.Duration, opts ...Option) *PwnedClient {
	c := &PwnedClient{
		endpoint: DefaultEndpoint,
		client: &http.Client{
			Timeout:   timeout,
			Transport: &paddingTransport{base: http.DefaultTransport},
		},
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if !strings.HasSuffix(c.endpoint, "/") {
		c.endpoint += "/"
	}
	return c
}

// Check returns the breach count for value; 0 means it was not found.
func (c *PwnedClient) Check(ctx context.Context, value string) (int, error) {
	sum := sha1.Sum([]byte(value)) //nolint:gosec
	digest := strings.ToUpper(hex.EncodeToString(sum[:]))
	prefix, suffix := digest[:prefixLen], digest[prefixLen:]

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+prefix, nil)
	if err != nil {
		return 0, fmt.Errorf("breach: failed to build request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("breach: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return 0, &UpstreamError{StatusCode: resp.StatusCode}
	}

	count, err := findSuffix(resp.Body, suffix)
	if err != nil {
		return 0, fmt.Errorf("breach: failed to read response: %w", err)
	}
	c.logger.Debug("range lookup", zap.String("prefix", prefix), zap.Int("count", count))
	return count, nil
}

// findSuffix scans SUFFIX:COUNT lines. Padding entries carry a count of 0.
func findSuffix(r io.Reader, suffix string) (int, error) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		got, countText, ok := strings.Cut(line, ":")
		if !ok || !strings.EqualFold(got, suffix) {
			continue
		}
		count, err := strconv.Atoi(strings.TrimSpace(countText))
		if err != nil {
			return 0, fmt.Errorf("bad count %q: %w", countText, err)
		}
		return count, nil
	}
	return 0, scanner.Err()
}

// Status is the displayed outcome of a check.
type Status int

const (
	// StatusUnchecked means no check has completed.
	StatusUnchecked Status = iota
	// StatusClean means the value was checked and not found.
	StatusClean
	// StatusCompromised means the value appears in known breaches.
	StatusCompromised
	// StatusError means the service answered with a failure.
	StatusError
	// StatusNetwork means the check could not complete.
	StatusNetwork
)

func (s Status) String() string {
	switch s {
	case StatusUnchecked:
		return "unchecked"
	case StatusClean:
		return "clean"
	case StatusCompromised:
		return "compromised"
	case StatusError:
		return "error"
	case StatusNetwork:
		return "network"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Result is a classified check.
type Result struct {
	Status  Status
	Count   int
	Message string
	Err     error
}

// Classify maps a Checker outcome to a Result. An UpstreamError is an
// error; any other failure means the check did not complete.
func Classify(count int, err error) Result {
	if err != nil {
		var upstream *UpstreamError
		if errors.As(err, &upstream) {
			return Result{Status: StatusError, Message: "Breach check failed", Err: err}
		}
		return Result{Status: StatusNetwork, Message: "Breach check unavailable", Err: err}
	}
	if count > 0 {
		return Result{Status: StatusCompromised, Count: count, Message: fmt.Sprintf("Password compromised %d times", count)}
	}
	return Result{Status: StatusClean}
}

// Run checks value and classifies the outcome, logging failures the way
// the status distinguishes them.
func Run(ctx context.Context, checker Checker, value string, logger *zap.Logger) Result {
	if logger == nil {
		logger = zap.NewNop()
	}
	res := Classify(checker.Check(ctx, value))
	switch res.Status {
	case StatusError:
		logger.Error("breach check rejected", zap.Error(res.Err))
	case StatusNetwork:
		logger.Info("breach check did not complete", zap.Error(res.Err))
	}
	return res
}

// Disabled is a Checker that always fails as if offline.
type Disabled struct{}

// ErrDisabled is returned by Disabled.
var ErrDisabled = errors.New("breach: checking disabled")

func (Disabled) Check(context.Context, string) (int, error) {
	return 0, ErrDisabled
}
