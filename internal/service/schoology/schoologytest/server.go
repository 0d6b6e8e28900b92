// Package schoologytest provides in-memory Schoology API for tests.
// It checks OAuth 1.0a signatures of every request and runs the three-legged flow.
package schoologytest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"

	"github.com/nkiryanov/schoolauth/internal/oauth1"
)

const (
	ConsumerKey    = "test-consumer-key"
	ConsumerSecret = "test-consumer-secret"

	DefaultTTL = 3600
)

type User struct {
	ID           int    `json:"id"`
	SchoolID     int    `json:"school_id"`
	NameFirst    string `json:"name_first"`
	NameLast     string `json:"name_last"`
	PrimaryEmail string `json:"primary_email"`
	PictureURL   string `json:"picture_url"`
}

type Server struct {
	*httptest.Server

	// TTL of issued request tokens in seconds
	TTL int

	mu       sync.Mutex
	seq      int
	secrets  map[string]string // any issued token -> its secret
	approved map[string]int    // authorized request token -> user id
	owners   map[string]int    // access token -> user id
	users    map[int]User
}

func NewServer() *Server {
	s := &Server{
		TTL:      DefaultTTL,
		secrets:  make(map[string]string),
		approved: make(map[string]int),
		owners:   make(map[string]int),
		users:    make(map[int]User),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/oauth/request_token", s.requestToken)
	mux.HandleFunc("GET /v1/oauth/access_token", s.accessToken)
	mux.HandleFunc("GET /v1/users/me", s.me)
	mux.HandleFunc("GET /v1/users/{id}", s.user)

	s.Server = httptest.NewServer(mux)
	return s
}

// Base url to configure client with
func (s *Server) BaseURL() string {
	return s.URL + "/v1/"
}

// Register user profile
func (s *Server) AddUser(u User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
}

// Authorize request token as the user would do on Schoology site
func (s *Server) Authorize(requestToken string, userID int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.approved[requestToken] = userID
}

// Revoke access token so further calls with it are unauthorized
func (s *Server) Revoke(accessToken string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.owners, accessToken)
	delete(s.secrets, accessToken)
}

func (s *Server) requestToken(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.verify(r); !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	token, secret := s.issue("request")
	writeForm(w, url.Values{
		"oauth_token":        {token},
		"oauth_token_secret": {secret},
		"xoauth_token_ttl":   {strconv.Itoa(s.TTL)},
	})
}

func (s *Server) accessToken(w http.ResponseWriter, r *http.Request) {
	token, ok := s.verify(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	s.mu.Lock()
	userID, approved := s.approved[token]
	delete(s.approved, token)
	s.mu.Unlock()
	if !approved {
		http.Error(w, "token not authorized", http.StatusUnauthorized)
		return
	}

	access, secret := s.issue("access")
	s.mu.Lock()
	delete(s.secrets, token)
	s.owners[access] = userID
	s.mu.Unlock()

	writeForm(w, url.Values{
		"oauth_token":        {access},
		"oauth_token_secret": {secret},
	})
}

func (s *Server) me(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.owner(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	w.Header().Set("Location", fmt.Sprintf("%s/v1/users/%d", s.URL, userID))
	w.WriteHeader(http.StatusSeeOther)
}

func (s *Server) user(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.owner(r); !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		http.NotFound(w, r)
		return
	}

	s.mu.Lock()
	u, ok := s.users[id]
	s.mu.Unlock()
	if !ok {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(u)
}

// Return user id owning access token the request is signed with
func (s *Server) owner(r *http.Request) (int, bool) {
	token, ok := s.verify(r)
	if !ok {
		return 0, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	userID, ok := s.owners[token]
	return userID, ok
}

// Verify request signature and return oauth_token it is signed with (may be empty)
func (s *Server) verify(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	params, err := oauth1.ParseHeader(header)
	if err != nil {
		return "", false
	}

	var token, consumer string
	for _, p := range params {
		switch p.Key {
		case "oauth_token":
			token = p.Value
		case "oauth_consumer_key":
			consumer = p.Value
		}
	}
	if consumer != ConsumerKey {
		return "", false
	}

	var secret string
	if token != "" {
		s.mu.Lock()
		known, ok := s.secrets[token]
		s.mu.Unlock()
		if !ok {
			return "", false
		}
		secret = known
	}

	u := &url.URL{Scheme: "http", Host: r.Host, Path: r.URL.Path, RawQuery: r.URL.RawQuery}
	if err := oauth1.Verify(r.Method, u, header, nil, ConsumerSecret, secret); err != nil {
		return "", false
	}

	return token, true
}

func (s *Server) issue(kind string) (string, string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	token := fmt.Sprintf("%s-token-%d", kind, s.seq)
	secret := fmt.Sprintf("%s-secret-%d", kind, s.seq)
	s.secrets[token] = secret
	return token, secret
}

func writeForm(w http.ResponseWriter, values url.Values) {
	w.Header().Set("Content-Type", "application/x-www-form-urlencoded")
	_, _ = w.Write([]byte(values.Encode()))
}
