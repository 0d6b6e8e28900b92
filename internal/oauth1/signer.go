// Package oauth1 signs outgoing requests with OAuth 1.0a HMAC-SHA256 signatures.
//
// The package is pure: no network or storage access. Signer is immutable and
// safe for concurrent use.
package oauth1

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	SignatureMethod = "HMAC-SHA256"
	Version         = "1.0"

	// Nonce is 128 bit random value
	nonceBytesLen = 16
)

// Signer produces 'Authorization' header values for the consumer (application) credentials
type Signer struct {
	consumerKey    string
	consumerSecret string

	now   func() time.Time
	nonce func() (string, error)
}

type Option func(*Signer)

// WithClock sets the clock used for oauth_timestamp
func WithClock(now func() time.Time) Option {
	return func(s *Signer) { s.now = now }
}

// WithNonce sets the nonce source
// Production code must not use it: nonce has to be fresh for every request
func WithNonce(nonce func() (string, error)) Option {
	return func(s *Signer) { s.nonce = nonce }
}

func NewSigner(consumerKey string, consumerSecret string, opts ...Option) (*Signer, error) {
	if consumerKey == "" || consumerSecret == "" {
		return nil, errors.New("consumer key and secret must not be empty")
	}

	s := &Signer{
		consumerKey:    consumerKey,
		consumerSecret: consumerSecret,
		now:            time.Now,
		nonce:          randomNonce,
	}
	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// Token is user token and secret to sign requests on behalf of user
// Zero value means no user token
type Token struct {
	Token  string
	Secret string
}

// Header returns 'Authorization' header value for the request
// bodyParams are form-encoded body params (may be nil)
// URL query params are always taken into account
func (s *Signer) Header(method string, u *url.URL, bodyParams []Param, token Token) (string, error) {
	nonce, err := s.nonce()
	if err != nil {
		return "", fmt.Errorf("error while generating nonce. Err: %w", err)
	}

	protocol := s.protocolParams(nonce, s.now(), token)

	params := make([]Param, 0, len(protocol)+len(bodyParams))
	params = append(params, protocol...)
	params = append(params, bodyParams...)
	params = append(params, Params(u.Query())...)

	signature := Signature(method, u, params, s.consumerSecret, token.Secret)

	header := append(protocol, Param{Key: "oauth_signature", Value: signature})
	sortParams(header)

	pairs := make([]string, 0, len(header))
	for _, p := range header {
		pairs = append(pairs, Encode(p.Key)+`="`+Encode(p.Value)+`"`)
	}

	return "OAuth " + strings.Join(pairs, ","), nil
}

func (s *Signer) protocolParams(nonce string, now time.Time, token Token) []Param {
	params := []Param{
		{Key: "oauth_consumer_key", Value: s.consumerKey},
		{Key: "oauth_signature_method", Value: SignatureMethod},
		{Key: "oauth_timestamp", Value: strconv.FormatInt(now.Unix(), 10)},
		{Key: "oauth_nonce", Value: nonce},
		{Key: "oauth_version", Value: Version},
	}

	if token.Token != "" {
		params = append(params, Param{Key: "oauth_token", Value: token.Token})
	}

	return params
}

// BaseString returns signature base string: METHOD&ENCODED_URL&ENCODED_PARAMS
// params must already contain protocol, body and url query params
func BaseString(method string, u *url.URL, params []Param) string {
	return strings.ToUpper(method) + "&" + Encode(baseURL(u)) + "&" + Encode(NormalizeParams(params))
}

// SigningKey returns HMAC key: encoded consumer secret and encoded token secret joined with '&'
func SigningKey(consumerSecret string, tokenSecret string) string {
	return Encode(consumerSecret) + "&" + Encode(tokenSecret)
}

// Signature returns base64 (no padding) HMAC-SHA256 of the base string
func Signature(method string, u *url.URL, params []Param, consumerSecret string, tokenSecret string) string {
	mac := hmac.New(sha256.New, []byte(SigningKey(consumerSecret, tokenSecret)))
	mac.Write([]byte(BaseString(method, u, params))) // nolint:errcheck

	return base64.RawStdEncoding.EncodeToString(mac.Sum(nil))
}

func randomNonce() (string, error) {
	b := make([]byte, nonceBytesLen)
	_, err := rand.Read(b)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
