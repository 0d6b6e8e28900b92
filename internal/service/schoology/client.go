// Package schoology is a client of the Schoology REST API.
// Every request is signed with OAuth 1.0a and is never retried.
package schoology

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/nkiryanov/schoolauth/internal/logger"
	"github.com/nkiryanov/schoolauth/internal/models"
	"github.com/nkiryanov/schoolauth/internal/oauth1"
)

const (
	DefaultBaseURL = "https://api.schoology.com/v1/"
	DefaultTimeout = 10 * time.Second

	maxBodySize = 1 << 20
)

type Config struct {
	// API base url. If not set than default is used
	BaseURL string

	// Application credentials. Required
	ConsumerKey    string
	ConsumerSecret string

	// Timeout of every call. If not set than default is used
	Timeout time.Duration
}

// Request token issued to begin OAuth flow
type RequestToken struct {
	Tokens models.TokenPair
	TTL    time.Duration
}

// Schoology user profile
type User struct {
	ID           json.Number `json:"id"`
	SchoolID     json.Number `json:"school_id"`
	NameFirst    string      `json:"name_first"`
	NameLast     string      `json:"name_last"`
	PrimaryEmail string      `json:"primary_email"`
	PictureURL   string      `json:"picture_url"`
}

type Client struct {
	baseURL *url.URL
	timeout time.Duration

	signer *oauth1.Signer
	client *http.Client
	logger logger.Logger
}

func NewClient(cfg Config, l logger.Logger, opts ...oauth1.Option) (*Client, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if l == nil {
		l = logger.NewNoOpLogger()
	}

	// Relative endpoints are resolved against the base, so it has to end with slash
	if !strings.HasSuffix(cfg.BaseURL, "/") {
		cfg.BaseURL += "/"
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid schoology base url: %w", err)
	}

	signer, err := oauth1.NewSigner(cfg.ConsumerKey, cfg.ConsumerSecret, opts...)
	if err != nil {
		return nil, err
	}

	return &Client{
		baseURL: base,
		timeout: cfg.Timeout,
		signer:  signer,
		client: &http.Client{
			// Following redirect re-sends signed request with the same nonce and Schoology rejects it as replay
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		logger: l,
	}, nil
}

// Get new request token. No user token is used
func (c *Client) RequestToken(ctx context.Context) (RequestToken, error) {
	var token RequestToken

	values, err := c.getForm(ctx, "oauth/request_token", oauth1.Token{})
	if err != nil {
		return token, err
	}

	token.Tokens, err = tokenPairFromForm(values)
	if err != nil {
		return token, err
	}

	ttl, err := strconv.Atoi(values.Get("xoauth_token_ttl"))
	if err != nil || ttl < 0 {
		return token, NewError(CodeMalformed, http.StatusOK, fmt.Errorf("invalid xoauth_token_ttl %q", values.Get("xoauth_token_ttl")))
	}
	token.TTL = time.Duration(ttl) * time.Second

	return token, nil
}

// Exchange authorized request token to permanent access token
func (c *Client) AccessToken(ctx context.Context, request models.TokenPair) (models.TokenPair, error) {
	values, err := c.getForm(ctx, "oauth/access_token", oauthToken(request))
	if err != nil {
		return models.TokenPair{}, err
	}

	return tokenPairFromForm(values)
}

// Get Schoology id of the user the access token belongs to
// 'users/me' answers with redirect to 'users/{id}', the id is taken from Location without following it
func (c *Client) ResolveIdentity(ctx context.Context, access models.TokenPair) (string, error) {
	resp, cancel, err := c.do(ctx, "users/me", oauthToken(access))
	if err != nil {
		return "", err
	}
	defer cancel()
	defer resp.Body.Close() // nolint:errcheck

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return "", NewError(CodeUnauthorized, resp.StatusCode, errors.New("access token rejected"))
	case resp.StatusCode < 300 || resp.StatusCode > 399:
		c.logger.Warn("Identity was not redirected", "status_code", resp.StatusCode)
		return "", NewError(CodeOther, resp.StatusCode, fmt.Errorf("expected redirect, got status %d", resp.StatusCode))
	}

	location, err := resp.Location()
	if err != nil {
		return "", NewError(CodeOther, resp.StatusCode, fmt.Errorf("redirect without location: %w", err))
	}

	id := location.Path[strings.LastIndex(location.Path, "/")+1:]
	if _, err := strconv.ParseUint(id, 10, 64); err != nil {
		return "", NewError(CodeOther, resp.StatusCode, fmt.Errorf("no user id in location %q", location))
	}

	c.logger.Debug("Identity resolved", "schoology_id", id)
	return id, nil
}

// Get Schoology user profile
func (c *Client) GetUser(ctx context.Context, access models.TokenPair, id string) (User, error) {
	var user User

	body, err := c.get(ctx, "users/"+url.PathEscape(id), oauthToken(access))
	if err != nil {
		return user, err
	}

	err = json.Unmarshal(body, &user)
	if err != nil {
		c.logger.Warn("Failed to decode user", "error", err)
		return user, NewError(CodeMalformed, http.StatusOK, fmt.Errorf("failed to decode user: %w", err))
	}

	return user, nil
}

func (c *Client) getForm(ctx context.Context, endpoint string, t oauth1.Token) (url.Values, error) {
	body, err := c.get(ctx, endpoint, t)
	if err != nil {
		return nil, err
	}

	values, err := url.ParseQuery(string(body))
	if err != nil {
		c.logger.Warn("Failed to decode form", "endpoint", endpoint, "error", err)
		return nil, NewError(CodeMalformed, http.StatusOK, fmt.Errorf("failed to decode response: %w", err))
	}

	return values, nil
}

// Send signed request and return body of 200 response
func (c *Client) get(ctx context.Context, endpoint string, t oauth1.Token) ([]byte, error) {
	resp, cancel, err := c.do(ctx, endpoint, t)
	if err != nil {
		return nil, err
	}
	defer cancel()
	defer resp.Body.Close() // nolint:errcheck

	switch resp.StatusCode {
	case http.StatusOK:
		body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
		if err != nil {
			return nil, NewError(CodeTransport, resp.StatusCode, fmt.Errorf("failed to read response: %w", err))
		}
		return body, nil
	case http.StatusUnauthorized:
		return nil, NewError(CodeUnauthorized, resp.StatusCode, fmt.Errorf("%s rejected", endpoint))
	default:
		c.logger.Warn("Unexpected schoology response", "endpoint", endpoint, "status_code", resp.StatusCode)
		return nil, NewError(CodeOther, resp.StatusCode, fmt.Errorf("unknown status code %d for %s", resp.StatusCode, endpoint))
	}
}

// Send signed GET request bounded by client timeout
// Caller must close response body and call cancel when done with response
func (c *Client) do(ctx context.Context, endpoint string, t oauth1.Token) (*http.Response, context.CancelFunc, error) {
	u := c.baseURL.ResolveReference(&url.URL{Path: endpoint})

	header, err := c.signer.Header(http.MethodGet, u, nil, t)
	if err != nil {
		return nil, nil, NewError(CodeOther, 0, fmt.Errorf("failed to sign request: %w", err))
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		cancel()
		return nil, nil, NewError(CodeOther, 0, fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", header)

	c.logger.Debug("Schoology request", "endpoint", endpoint)
	resp, err := c.client.Do(req)
	if err != nil {
		cancel()
		return nil, nil, NewError(CodeTransport, 0, fmt.Errorf("failed to send request: %w", err))
	}

	return resp, cancel, nil
}

func tokenPairFromForm(values url.Values) (models.TokenPair, error) {
	pair := models.TokenPair{
		AccessToken: values.Get("oauth_token"),
		TokenSecret: values.Get("oauth_token_secret"),
	}
	if pair.AccessToken == "" || pair.TokenSecret == "" {
		return models.TokenPair{}, NewError(CodeMalformed, http.StatusOK, errors.New("oauth_token or oauth_token_secret missing"))
	}
	return pair, nil
}

func oauthToken(pair models.TokenPair) oauth1.Token {
	return oauth1.Token{Token: pair.AccessToken, Secret: pair.TokenSecret}
}
