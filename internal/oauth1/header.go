package oauth1

import (
	"crypto/hmac"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var ErrMalformedHeader = errors.New("malformed oauth header")

// ParseHeader parses 'Authorization: OAuth ...' header value into decoded params
// Params keep header order
func ParseHeader(header string) ([]Param, error) {
	rest, ok := strings.CutPrefix(header, "OAuth ")
	if !ok {
		return nil, fmt.Errorf("%w: no 'OAuth ' prefix", ErrMalformedHeader)
	}

	var params []Param
	for _, pair := range strings.Split(rest, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}

		key, quoted, ok := strings.Cut(pair, "=")
		if !ok || len(quoted) < 2 || quoted[0] != '"' || quoted[len(quoted)-1] != '"' {
			return nil, fmt.Errorf("%w: bad pair %q", ErrMalformedHeader, pair)
		}

		k, err := url.PathUnescape(key)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformedHeader, err)
		}
		v, err := url.PathUnescape(quoted[1 : len(quoted)-1])
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformedHeader, err)
		}

		params = append(params, Param{Key: k, Value: v})
	}

	return params, nil
}

// Verify checks the request signature the same way the remote side does
// Used by test doubles of the remote API
func Verify(method string, u *url.URL, header string, bodyParams []Param, consumerSecret string, tokenSecret string) error {
	headerParams, err := ParseHeader(header)
	if err != nil {
		return err
	}

	var signature string
	params := make([]Param, 0, len(headerParams)+len(bodyParams))
	for _, p := range headerParams {
		if p.Key == "oauth_signature" {
			signature = p.Value
			continue
		}
		params = append(params, p)
	}
	if signature == "" {
		return fmt.Errorf("%w: no oauth_signature", ErrMalformedHeader)
	}

	params = append(params, bodyParams...)
	params = append(params, Params(u.Query())...)

	expected := Signature(method, u, params, consumerSecret, tokenSecret)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return errors.New("oauth signature mismatch")
	}

	return nil
}
