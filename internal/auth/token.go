// Package auth exchanges an app identity for a short-lived Graph API bearer
// token.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	tokenPath        = "/oauth/access_token"
	tokenTimeout     = 30 * time.Second
	tokenMaxBodySize = 64 << 10
)

// ErrorKind classifies a failed token exchange.
type ErrorKind int

const (
	BadStatus ErrorKind = iota + 1
	MalformedResponse
)

func (k ErrorKind) String() string {
	switch k {
	case BadStatus:
		return "bad status"
	case MalformedResponse:
		return "malformed response"
	default:
		return "unknown"
	}
}

// Error is returned by Provider.Token. Status is set for BadStatus.
type Error struct {
	Kind   ErrorKind
	Status int
	Err    error
}

func (e *Error) Error() string {
	switch {
	case e.Kind == BadStatus:
		return fmt.Sprintf("auth: token exchange: HTTP %d", e.Status)
	case e.Err != nil:
		return fmt.Sprintf("auth: token exchange: %s: %v", e.Kind, e.Err)
	default:
		return fmt.Sprintf("auth: token exchange: %s", e.Kind)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// IsKind reports whether err is an *Error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var ae *Error
	return errors.As(err, &ae) && ae.Kind == kind
}

// Credential is an app access token. It is valid for one digest build and
// is never refreshed or persisted.
type Credential struct {
	Token     string
	IssuedFor string
}

// Provider performs the client-credentials exchange.
type Provider struct {
	baseURL string
	client  *http.Client
	log     logrus.FieldLogger
}

// Option configures a Provider.
type Option func(*Provider)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.client = c }
}

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(p *Provider) { p.log = l }
}

// NewProvider creates a token provider against baseURL (e.g.
// https://graph.facebook.com).
func NewProvider(baseURL string, opts ...Option) (*Provider, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, errors.New("auth: base URL is required")
	}
	p := &Provider{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: tokenTimeout},
		log:     logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Token exchanges appID/appSecret for an access token. There is no retry.
func (p *Provider) Token(ctx context.Context, appID, appSecret string) (Credential, error) {
	if appID == "" || appSecret == "" {
		return Credential{}, errors.New("auth: app id and secret are required")
	}

	q := url.Values{}
	q.Set("client_id", appID)
	q.Set("client_secret", appSecret)
	q.Set("grant_type", "client_credentials")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+tokenPath+"?"+q.Encode(), nil)
	if err != nil {
		return Credential{}, fmt.Errorf("auth: create request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return Credential{}, fmt.Errorf("auth: token exchange: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return Credential{}, &Error{Kind: BadStatus, Status: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, tokenMaxBodySize))
	if err != nil {
		return Credential{}, &Error{Kind: MalformedResponse, Err: err}
	}

	token, err := parseToken(body)
	if err != nil {
		return Credential{}, &Error{Kind: MalformedResponse, Err: err}
	}

	p.log.WithField("app_id", appID).Debug("acquired app access token")
	return Credential{Token: token, IssuedFor: appID}, nil
}

// parseToken accepts the query-string form "access_token=...&..." and the
// JSON form {"access_token": "..."}.
func parseToken(body []byte) (string, error) {
	s := strings.TrimSpace(string(body))

	if strings.HasPrefix(s, "access_token=") {
		values, err := url.ParseQuery(s)
		if err != nil {
			return "", err
		}
		if token := values.Get("access_token"); token != "" {
			return token, nil
		}
		return "", errors.New("empty access_token")
	}

	if strings.HasPrefix(s, "{") {
		var payload struct {
			AccessToken string `json:"access_token"`
		}
		if err := json.Unmarshal(body, &payload); err != nil {
			return "", err
		}
		if payload.AccessToken != "" {
			return payload.AccessToken, nil
		}
		return "", errors.New("missing access_token")
	}

	return "", errors.New("unexpected token payload")
}
