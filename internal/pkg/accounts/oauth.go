package accounts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/ManuelReschke/saaskit/app/models"
)

// OAuthIdentity is what a provider tells us about the signed in user.
type OAuthIdentity struct {
	Provider       string
	ProviderUserID string
	Email          string
	Name           string
	NickName       string
	AvatarURL      string
	AccessToken    string
	RefreshToken   string
	ExpiresAt      time.Time
}

// LinkOAuth resolves the identity to a local user. A known identity refreshes
// its tokens, an unknown one is matched by email or gets a fresh active user.
func (s *Service) LinkOAuth(ctx context.Context, id OAuthIdentity) (*models.User, error) {
	if id.Provider == "" || id.ProviderUserID == "" {
		return nil, errors.New("oauth identity without provider user id")
	}

	var exp *time.Time
	if !id.ExpiresAt.IsZero() {
		t := id.ExpiresAt
		exp = &t
	}
	email := strings.ToLower(strings.TrimSpace(id.Email))

	pa, err := s.repos.ProviderAccount.GetByProviderUserID(id.Provider, id.ProviderUserID)
	switch {
	case err == nil:
		user, err := s.repos.User.GetByID(pa.UserID)
		if err != nil {
			return nil, fmt.Errorf("linked user not found: %w", err)
		}
		refreshed := &models.ProviderAccount{
			UserID:         pa.UserID,
			Provider:       pa.Provider,
			ProviderUserID: pa.ProviderUserID,
			Email:          email,
			AccessToken:    id.AccessToken,
			RefreshToken:   id.RefreshToken,
			ExpiresAt:      exp,
		}
		if err := s.repos.ProviderAccount.Upsert(refreshed); err != nil {
			return nil, fmt.Errorf("update tokens: %w", err)
		}
		return user, nil
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, err
	}

	var user *models.User
	if email != "" {
		user, err = s.repos.User.GetByEmail(email)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}
	created := false
	if user == nil {
		user, err = s.createOAuthUser(id, email)
		if err != nil {
			return nil, err
		}
		created = true
	}

	pa = &models.ProviderAccount{
		UserID:         user.ID,
		Provider:       id.Provider,
		ProviderUserID: id.ProviderUserID,
		Email:          email,
		AccessToken:    id.AccessToken,
		RefreshToken:   id.RefreshToken,
		ExpiresAt:      exp,
	}
	if err := s.repos.ProviderAccount.Upsert(pa); err != nil {
		return nil, fmt.Errorf("link provider: %w", err)
	}
	log.Infof("[Accounts] linked %s identity to user %d", id.Provider, user.ID)

	if created {
		s.afterRegister(ctx, user.ID)
	}
	return user, nil
}

func (s *Service) createOAuthUser(id OAuthIdentity, email string) (*models.User, error) {
	// the password is never shown to anyone, the account logs in via the provider
	hash, err := models.HashPassword("oauth_" + uuid.NewString())
	if err != nil {
		return nil, err
	}
	if email == "" {
		email = fmt.Sprintf("%s_%s@%s.oauth.local", id.Provider, id.ProviderUserID, id.Provider)
	}
	user := &models.User{
		Name:      firstNonEmpty(id.Name, id.NickName, email, "User"),
		Email:     email,
		Password:  hash,
		AvatarURL: id.AvatarURL,
		Role:      models.ROLE_USER,
		Status:    models.STATUS_ACTIVE,
	}
	if err := s.repos.User.Create(user); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	if _, err := models.GetOrCreateUserSettings(s.db, user.ID); err != nil {
		return nil, err
	}
	return user, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
