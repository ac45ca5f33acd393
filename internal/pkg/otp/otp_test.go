package otp

import (
	"bytes"
	"encoding/base64"
	"image/png"
	"net/url"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndValidate(t *testing.T) {
	cfg := &Config{Issuer: "Saas Boilerplate", PendingLifetime: 5 * time.Minute}
	e, err := cfg.Generate("alice@example.com")
	require.NoError(t, err)
	require.NotEmpty(t, e.Secret)

	u, err := url.Parse(e.AuthURL)
	require.NoError(t, err)
	assert.Equal(t, "otpauth", u.Scheme)
	assert.Equal(t, "Saas Boilerplate", u.Query().Get("issuer"))

	raw, err := base64.StdEncoding.DecodeString(e.QRCode)
	require.NoError(t, err)
	img, err := png.Decode(bytes.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, qrSize, img.Bounds().Dx())

	code, err := totp.GenerateCode(e.Secret, time.Now())
	require.NoError(t, err)
	assert.NoError(t, Validate(code, e.Secret))
	assert.ErrorIs(t, Validate("000000x", e.Secret), ErrInvalidToken)
	assert.ErrorIs(t, Validate("", e.Secret), ErrInvalidToken)
	assert.ErrorIs(t, Validate(code, ""), ErrInvalidToken)
}

func TestPendingValid(t *testing.T) {
	cfg := &Config{PendingLifetime: 5 * time.Minute}
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		at   time.Time
		want bool
	}{
		{name: "fresh", at: now.Add(-time.Minute), want: true},
		{name: "expired", at: now.Add(-5 * time.Minute)},
		{name: "zero", at: time.Time{}},
		{name: "future", at: now.Add(time.Minute)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, cfg.PendingValid(tt.at, now))
		})
	}
}
