package models

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const (
	ROLE_USER       = "user"
	ROLE_ADMIN      = "admin"
	STATUS_ACTIVE   = "active"
	STATUS_INACTIVE = "inactive"
	STATUS_DISABLED = "disabled"
)

const (
	ActivationTokenTTL    = 72 * time.Hour
	PasswordResetTokenTTL = 24 * time.Hour
)

type User struct {
	ID                  uint           `gorm:"primaryKey" json:"id"`
	Name                string         `gorm:"type:varchar(150)" json:"name" validate:"required,min=3,max=150"`
	FirstName           string         `gorm:"type:varchar(150);default:''" json:"first_name" validate:"max=150"`
	LastName            string         `gorm:"type:varchar(150);default:''" json:"last_name" validate:"max=150"`
	Email               string         `gorm:"uniqueIndex;type:varchar(200)" json:"email" validate:"required,email,min=5,max=200"`
	Password            string         `gorm:"type:text" json:"-" validate:"required,min=6"`
	Role                string         `gorm:"type:varchar(50);default:'user'" json:"role" validate:"oneof=user admin"`
	Status              string         `gorm:"type:varchar(50);default:'active'" json:"status" validate:"oneof=active inactive disabled"`
	AvatarURL           string         `gorm:"type:varchar(255);default:null" json:"avatar_url" validate:"max=255"`
	AvatarWebPURL       string         `gorm:"column:avatar_webp_url;type:varchar(255);default:null" json:"avatar_webp_url" validate:"max=255"`
	ActivationToken     string         `gorm:"type:varchar(100);index" json:"-"`
	ActivationSentAt    *time.Time     `gorm:"type:timestamp;default:null" json:"-"`
	PasswordResetToken  string         `gorm:"type:varchar(100);index" json:"-"`
	PasswordResetSentAt *time.Time     `gorm:"type:timestamp;default:null" json:"-"`
	OTPEnabled          bool           `gorm:"column:otp_enabled;default:false" json:"otp_enabled"`
	OTPVerified         bool           `gorm:"column:otp_verified;default:false" json:"otp_verified"`
	OTPBase32           string         `gorm:"column:otp_base32;type:varchar(255);default:''" json:"-"`
	OTPAuthURL          string         `gorm:"column:otp_auth_url;type:varchar(255);default:''" json:"-"`
	PaidUntil           *time.Time     `gorm:"type:timestamp;default:null" json:"paid_until,omitempty"`
	LastLoginAt         *time.Time     `gorm:"type:timestamp;default:null" json:"last_login_at"`
	CreatedAt           time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt           gorm.DeletedAt `gorm:"index" json:"-"`
}

func (u *User) Validate() error {
	v := validator.New()

	return v.Struct(u)
}

func CreateUser(username string, email string, password string) (*User, error) {
	pw, err := HashPassword(password)
	if err != nil {
		return nil, err
	}

	u := &User{
		Name:     username,
		Email:    strings.ToLower(strings.TrimSpace(email)),
		Password: pw,
		Role:     ROLE_USER,
		Status:   STATUS_INACTIVE,
	}

	err = u.Validate()
	if err != nil {
		return nil, err
	}

	return u, nil
}

func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)

	return string(bytes), err
}

// CheckPasswordHash compares the given password with the stored hash.
func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))

	return err == nil
}

func randomToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// GenerateActivationToken creates a random token and sets ActivationSentAt
func (u *User) GenerateActivationToken() error {
	token, err := randomToken()
	if err != nil {
		return err
	}
	u.ActivationToken = token
	now := time.Now()
	u.ActivationSentAt = &now
	return nil
}

// IsActivationTokenValid checks token equality and the 72h window.
func (u *User) IsActivationTokenValid(token string, now time.Time) bool {
	if u.ActivationToken == "" || u.ActivationSentAt == nil || u.ActivationToken != token {
		return false
	}
	return now.Sub(*u.ActivationSentAt) < ActivationTokenTTL
}

// Activate marks the account active and burns the activation token.
func (u *User) Activate() {
	u.Status = STATUS_ACTIVE
	u.ActivationToken = ""
	u.ActivationSentAt = nil
}

// GeneratePasswordResetToken issues a single-use reset token.
func (u *User) GeneratePasswordResetToken() error {
	token, err := randomToken()
	if err != nil {
		return err
	}
	u.PasswordResetToken = token
	now := time.Now()
	u.PasswordResetSentAt = &now
	return nil
}

func (u *User) IsPasswordResetTokenValid(token string, now time.Time) bool {
	if u.PasswordResetToken == "" || u.PasswordResetSentAt == nil || u.PasswordResetToken != token {
		return false
	}
	return now.Sub(*u.PasswordResetSentAt) < PasswordResetTokenTTL
}

func (u *User) ClearPasswordResetToken() {
	u.PasswordResetToken = ""
	u.PasswordResetSentAt = nil
}

// IsActive reports whether the user status is active
func (u *User) IsActive() bool {
	return u.Status == STATUS_ACTIVE
}

// RequiresOTP is true once a verified authenticator is linked.
func (u *User) RequiresOTP() bool {
	return u.OTPEnabled && u.OTPVerified
}

// DisableOTP unlinks the authenticator entirely.
func (u *User) DisableOTP() {
	u.OTPEnabled = false
	u.OTPVerified = false
	u.OTPBase32 = ""
	u.OTPAuthURL = ""
}

// CheckPassword verifies if the provided password matches the user's stored password
func (u *User) CheckPassword(password string) bool {
	return CheckPasswordHash(password, u.Password)
}

// SetPassword hashes and sets a new password for the user
func (u *User) SetPassword(password string) error {
	hashedPassword, err := HashPassword(password)
	if err != nil {
		return err
	}
	u.Password = hashedPassword
	return nil
}

// SetPaidUntil only ever moves the paid window forward.
func (u *User) SetPaidUntil(t time.Time) bool {
	if u.PaidUntil != nil && !t.After(*u.PaidUntil) {
		return false
	}
	u.PaidUntil = &t
	return true
}

// DisplayName prefers the full name when both parts are set.
func (u *User) DisplayName() string {
	if u.FirstName != "" && u.LastName != "" {
		return u.FirstName + " " + u.LastName
	}
	return u.Name
}
