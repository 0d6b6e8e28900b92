package oauth1

import (
	"net/url"
	"sort"
	"strings"
)

const upperhex = "0123456789ABCDEF"

// Encode percent-encodes s as RFC 3986 (section 2.1) requires it for OAuth 1.0a
// Only unreserved characters are left as is: ALPHA, DIGIT, '-', '.', '_', '~'
// Note that it differs from url.QueryEscape: space is "%20", '~' is kept and '*' is encoded
func Encode(s string) string {
	n := 0
	for i := 0; i < len(s); i++ {
		if !unreserved(s[i]) {
			n++
		}
	}
	if n == 0 {
		return s
	}

	var b strings.Builder
	b.Grow(len(s) + 2*n)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if unreserved(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(upperhex[c>>4])
		b.WriteByte(upperhex[c&15])
	}

	return b.String()
}

func unreserved(c byte) bool {
	switch {
	case 'A' <= c && c <= 'Z', 'a' <= c && c <= 'z', '0' <= c && c <= '9':
		return true
	case c == '-', c == '.', c == '_', c == '~':
		return true
	default:
		return false
	}
}

// Param is a single key value pair taking part in a signature
// Keys may repeat, so params are kept as a slice rather than a map
type Param struct {
	Key   string
	Value string
}

// Params flattens url.Values into a list of params
func Params(values url.Values) []Param {
	params := make([]Param, 0, len(values))
	for k, vs := range values {
		for _, v := range vs {
			params = append(params, Param{Key: k, Value: v})
		}
	}
	return params
}

// sortParams sorts by key and then by value for equal keys
// Sorts in place
func sortParams(params []Param) {
	sort.SliceStable(params, func(i, j int) bool {
		if params[i].Key == params[j].Key {
			return params[i].Value < params[j].Value
		}
		return params[i].Key < params[j].Key
	})
}

// NormalizeParams returns normalized parameter string: params sorted, encoded and joined with '&'
// Input slice is not modified
func NormalizeParams(params []Param) string {
	sorted := make([]Param, len(params))
	copy(sorted, params)
	sortParams(sorted)

	pairs := make([]string, 0, len(sorted))
	for _, p := range sorted {
		pairs = append(pairs, Encode(p.Key)+"="+Encode(p.Value))
	}

	return strings.Join(pairs, "&")
}

// baseURL returns url without query and fragment as it should be used in the signature base string
func baseURL(u *url.URL) string {
	b := url.URL{
		Scheme: strings.ToLower(u.Scheme),
		User:   u.User,
		Host:   strings.ToLower(u.Host),
		Path:   u.Path,
	}
	if u.RawPath != "" {
		b.RawPath = u.RawPath
	}

	// Default ports are not part of the base string url
	switch {
	case b.Scheme == "http" && strings.HasSuffix(b.Host, ":80"):
		b.Host = strings.TrimSuffix(b.Host, ":80")
	case b.Scheme == "https" && strings.HasSuffix(b.Host, ":443"):
		b.Host = strings.TrimSuffix(b.Host, ":443")
	}

	if b.Path == "" {
		b.Path = "/"
	}

	return b.String()
}
