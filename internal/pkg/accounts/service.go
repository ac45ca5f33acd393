// Package accounts implements registration, login, password and second factor
// management, profile edits and OAuth linking on top of the user repository.
package accounts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/saaskit/app/models"
	"github.com/ManuelReschke/saaskit/app/repository"
	"github.com/ManuelReschke/saaskit/internal/pkg/avatar"
	"github.com/ManuelReschke/saaskit/internal/pkg/env"
	"github.com/ManuelReschke/saaskit/internal/pkg/mail"
	"github.com/ManuelReschke/saaskit/internal/pkg/otp"
	"github.com/ManuelReschke/saaskit/internal/pkg/views"
)

var (
	ErrPasswordMismatch   = errors.New("passwords do not match")
	ErrEmailTaken         = errors.New("email is already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInactive           = errors.New("please check your email to activate your account")
	ErrDisabled           = errors.New("account is disabled")
	ErrInvalidToken       = errors.New("invalid or expired token")
	ErrOTPExpired         = errors.New("one-time password step expired, please log in again")
	ErrOTPNotEnrolled     = errors.New("no authenticator is being set up")
)

var validate = validator.New()

type Config struct {
	LogoutOnPasswordChange bool
}

func LoadConfig() *Config {
	return &Config{
		LogoutOnPasswordChange: env.GetEnvBool("LOGOUT_ON_PASSWORD_CHANGE", true),
	}
}

// RegistrationHook runs after a user row exists, e.g. to set up billing.
type RegistrationHook func(ctx context.Context, userID uint) error

type Service struct {
	repos      *repository.Repositories
	db         *gorm.DB
	cfg        *Config
	otp        *otp.Config
	mail       mail.Dispatcher
	avatars    avatar.Uploader
	onRegister RegistrationHook
	now        func() time.Time
}

func NewService(db *gorm.DB, repos *repository.Repositories, cfg *Config, otpCfg *otp.Config, avatars avatar.Uploader) *Service {
	return &Service{
		repos:   repos,
		db:      db,
		cfg:     cfg,
		otp:     otpCfg,
		avatars: avatars,
		now:     time.Now,
	}
}

func (s *Service) SetMailDispatcher(d mail.Dispatcher) {
	s.mail = d
}

func (s *Service) OnRegister(h RegistrationHook) {
	s.onRegister = h
}

func (s *Service) Config() *Config {
	return s.cfg
}

func (s *Service) OTP() *otp.Config {
	return s.otp
}

type RegisterForm struct {
	Name      string `form:"name" validate:"required,min=3,max=150"`
	Email     string `form:"email" validate:"required,email,max=200"`
	Password1 string `form:"password1" validate:"required,min=6"`
	Password2 string `form:"password2" validate:"required"`
}

func (f *RegisterForm) Validate() error {
	f.Name = strings.TrimSpace(f.Name)
	f.Email = strings.ToLower(strings.TrimSpace(f.Email))
	if err := validate.Struct(f); err != nil {
		return err
	}
	if f.Password1 != f.Password2 {
		return ErrPasswordMismatch
	}
	return nil
}

// Register creates an inactive user, mails the activation link and fires the
// registration hook.
func (s *Service) Register(ctx context.Context, form RegisterForm) (*models.User, error) {
	if err := form.Validate(); err != nil {
		return nil, err
	}
	if _, err := s.repos.User.GetByEmail(form.Email); err == nil {
		return nil, ErrEmailTaken
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	user, err := models.CreateUser(form.Name, form.Email, form.Password1)
	if err != nil {
		return nil, err
	}
	if err := user.GenerateActivationToken(); err != nil {
		return nil, err
	}
	if err := s.repos.User.Create(user); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	if _, err := models.GetOrCreateUserSettings(s.db, user.ID); err != nil {
		return nil, err
	}

	s.sendMail(ctx, user, mail.TemplateAccountConfirmation, user.ActivationToken)
	s.afterRegister(ctx, user.ID)
	return user, nil
}

func (s *Service) afterRegister(ctx context.Context, userID uint) {
	if s.onRegister == nil {
		return
	}
	if err := s.onRegister(ctx, userID); err != nil {
		log.Errorf("[Accounts] registration hook for user %d: %v", userID, err)
	}
}

// Activate burns a valid activation token and activates the user.
func (s *Service) Activate(ctx context.Context, token string) (*models.User, error) {
	user, err := s.repos.User.GetByActivationToken(token)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}
	if !user.IsActivationTokenValid(token, s.now()) {
		return nil, ErrInvalidToken
	}
	user.Activate()
	if err := s.repos.User.Update(user); err != nil {
		return nil, err
	}
	return user, nil
}

// Authenticate checks email and password. Unknown email and wrong password
// return the same error.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	user, err := s.repos.User.GetByEmail(email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !user.CheckPassword(password) {
		return nil, ErrInvalidCredentials
	}
	switch user.Status {
	case models.STATUS_INACTIVE:
		return nil, ErrInactive
	case models.STATUS_DISABLED:
		return nil, ErrDisabled
	}
	return user, nil
}

// CompleteOTPLogin finishes a login whose password step happened at pendingAt.
func (s *Service) CompleteOTPLogin(ctx context.Context, userID uint, pendingAt time.Time, token string) (*models.User, error) {
	if userID == 0 || !s.otp.PendingValid(pendingAt, s.now()) {
		return nil, ErrOTPExpired
	}
	user, err := s.repos.User.GetByID(userID)
	if err != nil {
		return nil, err
	}
	if err := otp.Validate(token, user.OTPBase32); err != nil {
		return nil, err
	}
	return user, nil
}

// RecordLogin stamps last_login_at.
func (s *Service) RecordLogin(user *models.User) {
	now := s.now()
	if err := s.db.Model(user).UpdateColumn("last_login_at", now).Error; err != nil {
		log.Warnf("[Accounts] last login update for user %d: %v", user.ID, err)
	}
}

// Plan returns the user's effective plan.
func (s *Service) Plan(userID uint) string {
	us, err := models.GetOrCreateUserSettings(s.db, userID)
	if err != nil {
		return models.PlanFree
	}
	return us.EffectivePlan()
}

// RequestPasswordReset mails a reset link. Unknown emails succeed silently.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	user, err := s.repos.User.GetByEmail(email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return err
	}
	if err := user.GeneratePasswordResetToken(); err != nil {
		return err
	}
	if err := s.repos.User.Update(user); err != nil {
		return err
	}
	s.sendMail(ctx, user, mail.TemplatePasswordReset, user.PasswordResetToken)
	return nil
}

type PasswordForm struct {
	Password1 string `form:"password1" validate:"required,min=6"`
	Password2 string `form:"password2" validate:"required"`
}

func (f *PasswordForm) Validate() error {
	if err := validate.Struct(f); err != nil {
		return err
	}
	if f.Password1 != f.Password2 {
		return ErrPasswordMismatch
	}
	return nil
}

// ResetPassword sets a new password for a valid reset token and burns it.
func (s *Service) ResetPassword(ctx context.Context, token string, form PasswordForm) error {
	if err := form.Validate(); err != nil {
		return err
	}
	user, err := s.repos.User.GetByPasswordResetToken(token)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrInvalidToken
		}
		return err
	}
	if !user.IsPasswordResetTokenValid(token, s.now()) {
		return ErrInvalidToken
	}
	if err := user.SetPassword(form.Password1); err != nil {
		return err
	}
	user.ClearPasswordResetToken()
	return s.repos.User.Update(user)
}

// ChangePassword requires the current password.
func (s *Service) ChangePassword(ctx context.Context, userID uint, oldPassword string, form PasswordForm) error {
	if err := form.Validate(); err != nil {
		return err
	}
	user, err := s.repos.User.GetByID(userID)
	if err != nil {
		return err
	}
	if !user.CheckPassword(oldPassword) {
		return ErrInvalidCredentials
	}
	if err := user.SetPassword(form.Password1); err != nil {
		return err
	}
	return s.repos.User.Update(user)
}

type ProfileForm struct {
	FirstName string `form:"first_name" validate:"max=150"`
	LastName  string `form:"last_name" validate:"max=150"`
}

func (s *Service) UpdateProfile(ctx context.Context, userID uint, form ProfileForm) (*models.User, error) {
	form.FirstName = strings.TrimSpace(form.FirstName)
	form.LastName = strings.TrimSpace(form.LastName)
	if err := validate.Struct(form); err != nil {
		return nil, err
	}
	user, err := s.repos.User.GetByID(userID)
	if err != nil {
		return nil, err
	}
	user.FirstName = form.FirstName
	user.LastName = form.LastName
	if err := s.repos.User.Update(user); err != nil {
		return nil, err
	}
	return user, nil
}

// UpdateAvatar thumbnails data, uploads both variants and stores their URLs.
func (s *Service) UpdateAvatar(ctx context.Context, userID uint, data []byte) (*models.User, error) {
	if s.avatars == nil {
		return nil, errors.New("avatar storage is not configured")
	}
	user, err := s.repos.User.GetByID(userID)
	if err != nil {
		return nil, err
	}
	res, err := avatar.Upload(ctx, s.avatars, userID, data)
	if err != nil {
		return nil, err
	}
	user.AvatarURL = res.PNGURL
	user.AvatarWebPURL = res.WebPURL
	if err := s.repos.User.Update(user); err != nil {
		return nil, err
	}
	return user, nil
}

// GenerateOTP stores a fresh unverified secret and returns the enrollment data.
func (s *Service) GenerateOTP(ctx context.Context, userID uint) (*otp.Enrollment, error) {
	user, err := s.repos.User.GetByID(userID)
	if err != nil {
		return nil, err
	}
	enr, err := s.otp.Generate(user.Email)
	if err != nil {
		return nil, err
	}
	user.OTPBase32 = enr.Secret
	user.OTPAuthURL = enr.AuthURL
	user.OTPEnabled = false
	user.OTPVerified = false
	if err := s.repos.User.Update(user); err != nil {
		return nil, err
	}
	return enr, nil
}

// VerifyOTP enables the second factor once the user proves the authenticator works.
func (s *Service) VerifyOTP(ctx context.Context, userID uint, token string) (*models.User, error) {
	user, err := s.repos.User.GetByID(userID)
	if err != nil {
		return nil, err
	}
	if user.OTPBase32 == "" {
		return nil, ErrOTPNotEnrolled
	}
	if err := otp.Validate(token, user.OTPBase32); err != nil {
		return nil, err
	}
	user.OTPEnabled = true
	user.OTPVerified = true
	if err := s.repos.User.Update(user); err != nil {
		return nil, err
	}
	return user, nil
}

func (s *Service) DisableOTP(ctx context.Context, userID uint) error {
	user, err := s.repos.User.GetByID(userID)
	if err != nil {
		return err
	}
	user.DisableOTP()
	return s.repos.User.Update(user)
}

// IssueAPIKey rotates the user's API key and returns the raw key once.
func (s *Service) IssueAPIKey(ctx context.Context, userID uint) (string, *models.UserSettings, error) {
	us, err := models.GetOrCreateUserSettings(s.db, userID)
	if err != nil {
		return "", nil, err
	}
	raw, err := us.IssueAPIKey()
	if err != nil {
		return "", nil, err
	}
	if err := s.db.Save(us).Error; err != nil {
		return "", nil, err
	}
	return raw, us, nil
}

func (s *Service) RevokeAPIKey(ctx context.Context, userID uint) error {
	us, err := models.GetOrCreateUserSettings(s.db, userID)
	if err != nil {
		return err
	}
	us.RevokeAPIKey()
	return s.db.Save(us).Error
}

func (s *Service) sendMail(ctx context.Context, user *models.User, template, token string) {
	if s.mail == nil {
		log.Warnf("[Mail] no dispatcher, dropping %s for user %d", template, user.ID)
		return
	}
	err := s.mail.Dispatch(ctx, mail.Envelope{
		To:       user.Email,
		Template: template,
		Data: views.EmailData{
			SiteName: env.SiteName(),
			Domain:   env.PublicBaseURL(),
			UserID:   user.ID,
			Name:     user.DisplayName(),
			Token:    token,
		},
	})
	if err != nil {
		log.Errorf("[Mail] queue %s for user %d: %v", template, user.ID, err)
	}
}
