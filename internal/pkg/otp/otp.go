// Package otp wraps TOTP enrollment and validation for second-factor login.
package otp

import (
	"bytes"
	"encoding/base64"
	"errors"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/pquerna/otp/totp"

	"github.com/ManuelReschke/saaskit/internal/pkg/env"
)

const qrSize = 200

var ErrInvalidToken = errors.New("invalid one-time password")

type Config struct {
	Issuer string
	// PendingLifetime bounds the gap between password and OTP step at login.
	PendingLifetime time.Duration
}

func LoadConfig() *Config {
	return &Config{
		Issuer:          env.SiteName(),
		PendingLifetime: env.GetEnvDuration("OTP_AUTH_TOKEN_LIFETIME", 5*time.Minute),
	}
}

// Enrollment is what the setup page shows. QRCode is a base64 PNG.
type Enrollment struct {
	Secret  string `json:"base32"`
	AuthURL string `json:"otpauth_url"`
	QRCode  string `json:"qr_code"`
}

// Generate creates a new secret for account under the configured issuer.
func (c *Config) Generate(account string) (*Enrollment, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      c.Issuer,
		AccountName: account,
	})
	if err != nil {
		return nil, err
	}
	img, err := key.Image(qrSize, qrSize)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, err
	}
	return &Enrollment{
		Secret:  key.Secret(),
		AuthURL: key.URL(),
		QRCode:  base64.StdEncoding.EncodeToString(buf.Bytes()),
	}, nil
}

// Validate checks token against the base32 secret.
func Validate(token, secret string) error {
	token = strings.TrimSpace(token)
	if token == "" || secret == "" || !totp.Validate(token, secret) {
		return ErrInvalidToken
	}
	return nil
}

// PendingValid reports whether a login that passed the password step at pendingAt
// may still complete the OTP step.
func (c *Config) PendingValid(pendingAt, now time.Time) bool {
	if pendingAt.IsZero() || now.Before(pendingAt) {
		return false
	}
	return now.Sub(pendingAt) < c.PendingLifetime
}
