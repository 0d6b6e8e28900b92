// Package auth runs Schoology login flow and authenticates requests by session bearer.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/schoolauth/internal/apperrors"
	"github.com/nkiryanov/schoolauth/internal/logger"
	"github.com/nkiryanov/schoolauth/internal/models"
	"github.com/nkiryanov/schoolauth/internal/repository"
	"github.com/nkiryanov/schoolauth/internal/service/requesttoken"
	"github.com/nkiryanov/schoolauth/internal/service/schoology"
)

const (
	defaultAuthHeaderName = "Authorization"
	defaultAuthScheme     = "Bearer"
)

type schoologyClient interface {
	RequestToken(ctx context.Context) (schoology.RequestToken, error)
	AccessToken(ctx context.Context, request models.TokenPair) (models.TokenPair, error)
	ResolveIdentity(ctx context.Context, access models.TokenPair) (string, error)
	GetUser(ctx context.Context, access models.TokenPair, id string) (schoology.User, error)
}

type flowStore interface {
	Create(ctx context.Context, accessToken string, tokenSecret string, ttl time.Duration) (models.RequestToken, error)
	Verify(ctx context.Context, id uuid.UUID, signature string) (models.RequestToken, error)
	Delete(ctx context.Context, id uuid.UUID)
}

type sessionManager interface {
	Create(ctx context.Context, userID uuid.UUID, ip string) (models.IssuedSession, error)
	Verify(ctx context.Context, bearer string) (models.Session, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type Config struct {
	// Header and scheme the bearer is sent with
	// If not set than defaults are used
	AuthHeaderName string
	AuthScheme     string
}

type Service struct {
	authHeaderName string
	authScheme     string

	storage   repository.Storage
	schoology schoologyClient
	flows     flowStore
	sessions  sessionManager
	logger    logger.Logger
}

func NewService(
	cfg Config,
	storage repository.Storage,
	client schoologyClient,
	flows flowStore,
	sessions sessionManager,
	l logger.Logger,
) (*Service, error) {
	if storage == nil || client == nil || flows == nil || sessions == nil {
		return nil, errors.New("storage, schoology client, flows and sessions must not be nil")
	}
	if cfg.AuthHeaderName == "" {
		cfg.AuthHeaderName = defaultAuthHeaderName
	}
	if cfg.AuthScheme == "" {
		cfg.AuthScheme = defaultAuthScheme
	}
	if l == nil {
		l = logger.NewNoOpLogger()
	}

	return &Service{
		authHeaderName: cfg.AuthHeaderName,
		authScheme:     cfg.AuthScheme,
		storage:        storage,
		schoology:      client,
		flows:          flows,
		sessions:       sessions,
		logger:         l,
	}, nil
}

// Begin OAuth flow: get request token from Schoology and keep it till the user authorizes it
func (s *Service) BeginFlow(ctx context.Context) (models.Flow, error) {
	var flow models.Flow

	request, err := s.schoology.RequestToken(ctx)
	if err != nil {
		return flow, fmt.Errorf("failed to get request token: %w", err)
	}

	token, err := s.flows.Create(ctx, request.Tokens.AccessToken, request.Tokens.TokenSecret, request.TTL)
	if err != nil {
		return flow, err
	}

	return models.Flow{
		ID:         token.ID,
		Signature:  requesttoken.Sign(token.ID, token.TokenSecret),
		OAuthToken: token.AccessToken,
		ExpiresAt:  token.ExpiresAt,
	}, nil
}

// Complete OAuth flow the user authorized on Schoology
// Schoology account is linked to local user (created if necessary).
// If login is true new session is issued, otherwise only the link is refreshed and nil session returned.
func (s *Service) CompleteFlow(ctx context.Context, id uuid.UUID, signature string, login bool, ip string) (*models.IssuedSession, error) {
	request, err := s.flows.Verify(ctx, id, signature)
	if err != nil {
		if errors.Is(err, apperrors.ErrFlowExpired) {
			s.flows.Delete(ctx, id)
		}
		return nil, err
	}

	pair := models.TokenPair{AccessToken: request.AccessToken, TokenSecret: request.TokenSecret}
	access, err := s.schoology.AccessToken(ctx, pair)
	if err != nil {
		return nil, fmt.Errorf("failed to get access token: %w", err)
	}

	remoteID, err := s.schoology.ResolveIdentity(ctx, access)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve identity: %w", err)
	}

	profile, err := s.schoology.GetUser(ctx, access, remoteID)
	if err != nil {
		return nil, fmt.Errorf("failed to get schoology user: %w", err)
	}

	link, err := s.linkAccount(ctx, models.Link{
		RemoteID:   remoteID,
		FirstName:  profile.NameFirst,
		LastName:   profile.NameLast,
		Email:      profile.PrimaryEmail,
		PictureURL: profile.PictureURL,
		Tokens:     access,
	})
	if err != nil {
		return nil, err
	}

	if !login {
		s.logger.Debug("Schoology account relinked", "user_id", link.UserID, "schoology_id", remoteID)
		return nil, nil
	}

	issued, err := s.sessions.Create(ctx, link.UserID, ip)
	if err != nil {
		return nil, err
	}

	s.logger.Info("User logged in", "user_id", link.UserID, "session_id", issued.Session.ID)
	return &issued, nil
}

// Update link of the Schoology account or create user with a new link
// Concurrent first logins of one account end up with single user
func (s *Service) linkAccount(ctx context.Context, link models.Link) (models.Link, error) {
	err := s.storage.InTx(ctx, func(tx repository.Storage) error {
		updated, err := tx.Link().Update(ctx, link)
		switch {
		case err == nil:
			link = updated
			return nil
		case !errors.Is(err, apperrors.ErrLinkNotFound):
			return err
		}

		// Nested transaction: unique violation must not abort the outer one
		err = tx.InTx(ctx, func(tx repository.Storage) error {
			user, err := tx.User().CreateUser(ctx)
			if err != nil {
				return err
			}

			link.UserID = user.ID
			created, err := tx.Link().Create(ctx, link)
			if err != nil {
				return err
			}

			link = created
			return nil
		})
		if !errors.Is(err, apperrors.ErrLinkAlreadyExists) {
			return err
		}

		s.logger.Debug("Link created concurrently, updating", "schoology_id", link.RemoteID)
		link, err = tx.Link().Update(ctx, link)
		return err
	})
	if err != nil {
		return link, fmt.Errorf("failed to link schoology account: %w", err)
	}

	return link, nil
}

// Authenticate request by bearer session credential
// Has to return apperrors.ErrSessionNotFound if request carries no valid credential
func (s *Service) Authenticate(ctx context.Context, r *http.Request) (models.Session, error) {
	header := r.Header.Get(s.authHeaderName)
	bearer, ok := strings.CutPrefix(header, s.authScheme+" ")
	if !ok || bearer == "" {
		return models.Session{}, apperrors.ErrSessionNotFound
	}

	return s.sessions.Verify(ctx, strings.TrimSpace(bearer))
}

// Logout: delete session
func (s *Service) Logout(ctx context.Context, sessionID uuid.UUID) error {
	return s.sessions.Delete(ctx, sessionID)
}

// Fetch fresh Schoology profile of the user with stored access token
func (s *Service) Profile(ctx context.Context, userID uuid.UUID) (schoology.User, error) {
	link, err := s.storage.Link().GetByUserID(ctx, userID)
	if err != nil {
		return schoology.User{}, err
	}

	profile, err := s.schoology.GetUser(ctx, link.Tokens, link.RemoteID)
	if err != nil {
		return profile, fmt.Errorf("failed to get schoology user: %w", err)
	}

	return profile, nil
}
