package accounts

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"sync"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/ManuelReschke/saaskit/app/models"
	"github.com/ManuelReschke/saaskit/app/repository"
	"github.com/ManuelReschke/saaskit/internal/pkg/mail"
	"github.com/ManuelReschke/saaskit/internal/pkg/otp"
	"github.com/ManuelReschke/saaskit/internal/pkg/testutil"
)

type recordingDispatcher struct {
	mu   sync.Mutex
	sent []mail.Envelope
}

func (d *recordingDispatcher) Dispatch(ctx context.Context, e mail.Envelope) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sent = append(d.sent, e)
	return nil
}

func (d *recordingDispatcher) last() mail.Envelope {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sent[len(d.sent)-1]
}

type memUploader struct {
	keys []string
}

func (u *memUploader) Put(ctx context.Context, key string, body []byte, contentType string) (string, error) {
	u.keys = append(u.keys, key)
	return "https://cdn.example.com/" + key, nil
}

func newTestService(t *testing.T) (*Service, *gorm.DB, *recordingDispatcher) {
	t.Helper()
	db := testutil.NewDB(t)
	svc := NewService(db, repository.NewRepositories(db), &Config{LogoutOnPasswordChange: true},
		&otp.Config{Issuer: "SaaSKit", PendingLifetime: 5 * time.Minute}, &memUploader{})
	d := &recordingDispatcher{}
	svc.SetMailDispatcher(d)
	return svc, db, d
}

func registerActive(t *testing.T, svc *Service, email string) *models.User {
	t.Helper()
	u, err := svc.Register(context.Background(), RegisterForm{
		Name: "tester", Email: email, Password1: "secret123", Password2: "secret123",
	})
	require.NoError(t, err)
	_, err = svc.Activate(context.Background(), u.ActivationToken)
	require.NoError(t, err)
	return u
}

func TestRegister(t *testing.T) {
	svc, db, d := newTestService(t)
	var hooked uint
	svc.OnRegister(func(ctx context.Context, userID uint) error {
		hooked = userID
		return nil
	})

	u, err := svc.Register(context.Background(), RegisterForm{
		Name: " tester ", Email: " Tester@Example.com", Password1: "secret123", Password2: "secret123",
	})
	require.NoError(t, err)

	assert.Equal(t, "tester@example.com", u.Email)
	assert.Equal(t, models.STATUS_INACTIVE, u.Status)
	assert.NotEmpty(t, u.ActivationToken)
	assert.Equal(t, u.ID, hooked)

	env := d.last()
	assert.Equal(t, mail.TemplateAccountConfirmation, env.Template)
	assert.Equal(t, "tester@example.com", env.To)
	assert.Equal(t, u.ActivationToken, env.Data.Token)

	var us models.UserSettings
	require.NoError(t, db.Where("user_id = ?", u.ID).First(&us).Error)
	assert.Equal(t, models.PlanFree, us.Plan)
}

func TestRegister_Rejects(t *testing.T) {
	svc, _, _ := newTestService(t)
	registerActive(t, svc, "taken@example.com")

	tests := []struct {
		name string
		form RegisterForm
		want error
	}{
		{"password mismatch", RegisterForm{Name: "tester", Email: "a@example.com", Password1: "secret123", Password2: "secret124"}, ErrPasswordMismatch},
		{"email taken", RegisterForm{Name: "tester", Email: "TAKEN@example.com", Password1: "secret123", Password2: "secret123"}, ErrEmailTaken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Register(context.Background(), tt.form)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	_, err := svc.Register(context.Background(), RegisterForm{Name: "ab", Email: "bad", Password1: "x", Password2: "x"})
	assert.Error(t, err)
}

func TestActivate(t *testing.T) {
	svc, _, _ := newTestService(t)
	u, err := svc.Register(context.Background(), RegisterForm{
		Name: "tester", Email: "act@example.com", Password1: "secret123", Password2: "secret123",
	})
	require.NoError(t, err)

	_, err = svc.Activate(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrInvalidToken)

	activated, err := svc.Activate(context.Background(), u.ActivationToken)
	require.NoError(t, err)
	assert.True(t, activated.IsActive())

	// token is single use
	_, err = svc.Activate(context.Background(), u.ActivationToken)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestActivate_Expired(t *testing.T) {
	svc, _, _ := newTestService(t)
	u, err := svc.Register(context.Background(), RegisterForm{
		Name: "tester", Email: "late@example.com", Password1: "secret123", Password2: "secret123",
	})
	require.NoError(t, err)

	svc.now = func() time.Time { return time.Now().Add(models.ActivationTokenTTL + time.Hour) }
	_, err = svc.Activate(context.Background(), u.ActivationToken)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestAuthenticate(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.Register(context.Background(), RegisterForm{
		Name: "tester", Email: "pending@example.com", Password1: "secret123", Password2: "secret123",
	})
	require.NoError(t, err)
	registerActive(t, svc, "login@example.com")

	_, err = svc.Authenticate(context.Background(), "pending@example.com", "secret123")
	assert.ErrorIs(t, err, ErrInactive)

	_, err = svc.Authenticate(context.Background(), "login@example.com", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Authenticate(context.Background(), "ghost@example.com", "secret123")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	u, err := svc.Authenticate(context.Background(), "login@example.com", "secret123")
	require.NoError(t, err)
	assert.False(t, u.RequiresOTP())
}

func TestOTPFlow(t *testing.T) {
	svc, _, _ := newTestService(t)
	u := registerActive(t, svc, "otp@example.com")

	_, err := svc.VerifyOTP(context.Background(), u.ID, "123456")
	assert.ErrorIs(t, err, ErrOTPNotEnrolled)

	enr, err := svc.GenerateOTP(context.Background(), u.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, enr.Secret)
	assert.NotEmpty(t, enr.QRCode)

	_, err = svc.VerifyOTP(context.Background(), u.ID, "000000x")
	assert.ErrorIs(t, err, otp.ErrInvalidToken)

	code, err := totp.GenerateCode(enr.Secret, time.Now())
	require.NoError(t, err)
	verified, err := svc.VerifyOTP(context.Background(), u.ID, code)
	require.NoError(t, err)
	assert.True(t, verified.RequiresOTP())

	pendingAt := time.Now()
	_, err = svc.CompleteOTPLogin(context.Background(), u.ID, pendingAt.Add(-10*time.Minute), code)
	assert.ErrorIs(t, err, ErrOTPExpired)

	done, err := svc.CompleteOTPLogin(context.Background(), u.ID, pendingAt, code)
	require.NoError(t, err)
	assert.Equal(t, u.ID, done.ID)

	require.NoError(t, svc.DisableOTP(context.Background(), u.ID))
	again, err := svc.Authenticate(context.Background(), "otp@example.com", "secret123")
	require.NoError(t, err)
	assert.False(t, again.RequiresOTP())
}

func TestPasswordReset(t *testing.T) {
	svc, _, d := newTestService(t)
	u := registerActive(t, svc, "reset@example.com")
	sentBefore := len(d.sent)

	require.NoError(t, svc.RequestPasswordReset(context.Background(), "unknown@example.com"))
	assert.Len(t, d.sent, sentBefore)

	require.NoError(t, svc.RequestPasswordReset(context.Background(), "reset@example.com"))
	env := d.last()
	assert.Equal(t, mail.TemplatePasswordReset, env.Template)
	assert.Equal(t, u.ID, env.Data.UserID)
	token := env.Data.Token

	err := svc.ResetPassword(context.Background(), token, PasswordForm{Password1: "newpass1", Password2: "other"})
	assert.ErrorIs(t, err, ErrPasswordMismatch)

	require.NoError(t, svc.ResetPassword(context.Background(), token, PasswordForm{Password1: "newpass1", Password2: "newpass1"}))
	_, err = svc.Authenticate(context.Background(), "reset@example.com", "newpass1")
	assert.NoError(t, err)

	err = svc.ResetPassword(context.Background(), token, PasswordForm{Password1: "newpass2", Password2: "newpass2"})
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestChangePassword(t *testing.T) {
	svc, _, _ := newTestService(t)
	u := registerActive(t, svc, "change@example.com")

	err := svc.ChangePassword(context.Background(), u.ID, "wrong", PasswordForm{Password1: "newpass1", Password2: "newpass1"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	require.NoError(t, svc.ChangePassword(context.Background(), u.ID, "secret123", PasswordForm{Password1: "newpass1", Password2: "newpass1"}))
	_, err = svc.Authenticate(context.Background(), "change@example.com", "newpass1")
	assert.NoError(t, err)
}

func TestUpdateProfile(t *testing.T) {
	svc, _, _ := newTestService(t)
	u := registerActive(t, svc, "profile@example.com")

	updated, err := svc.UpdateProfile(context.Background(), u.ID, ProfileForm{FirstName: " Ada ", LastName: "Lovelace"})
	require.NoError(t, err)
	assert.Equal(t, "Ada Lovelace", updated.DisplayName())
}

func TestUpdateAvatar(t *testing.T) {
	svc, _, _ := newTestService(t)
	u := registerActive(t, svc, "avatar@example.com")

	img := image.NewRGBA(image.Rect(0, 0, 300, 200))
	for x := 0; x < 300; x++ {
		img.Set(x, x%200, color.RGBA{R: 200, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))

	updated, err := svc.UpdateAvatar(context.Background(), u.ID, buf.Bytes())
	require.NoError(t, err)
	assert.Contains(t, updated.AvatarURL, "https://cdn.example.com/")
	assert.Contains(t, updated.AvatarWebPURL, "https://cdn.example.com/")
}

func TestAPIKeyLifecycle(t *testing.T) {
	svc, db, _ := newTestService(t)
	u := registerActive(t, svc, "api@example.com")

	raw, us, err := svc.IssueAPIKey(context.Background(), u.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, raw)
	assert.True(t, us.HasActiveAPIKey())

	found, _, err := repository.NewUserRepository(db).GetByAPIKeyHash(models.HashAPIKey(raw))
	require.NoError(t, err)
	assert.Equal(t, u.ID, found.ID)

	require.NoError(t, svc.RevokeAPIKey(context.Background(), u.ID))
	_, _, err = repository.NewUserRepository(db).GetByAPIKeyHash(models.HashAPIKey(raw))
	assert.Error(t, err)
}

func TestLinkOAuth(t *testing.T) {
	svc, db, _ := newTestService(t)
	existing := registerActive(t, svc, "match@example.com")
	var hooks int
	svc.OnRegister(func(ctx context.Context, userID uint) error {
		hooks++
		return nil
	})

	t.Run("matches by email", func(t *testing.T) {
		u, err := svc.LinkOAuth(context.Background(), OAuthIdentity{
			Provider: "github", ProviderUserID: "gh-1", Email: "Match@example.com", AccessToken: "a1",
		})
		require.NoError(t, err)
		assert.Equal(t, existing.ID, u.ID)
		assert.Zero(t, hooks)
	})

	t.Run("refreshes tokens", func(t *testing.T) {
		u, err := svc.LinkOAuth(context.Background(), OAuthIdentity{
			Provider: "github", ProviderUserID: "gh-1", AccessToken: "a2",
		})
		require.NoError(t, err)
		assert.Equal(t, existing.ID, u.ID)

		var pa models.ProviderAccount
		require.NoError(t, db.Where("provider = ? AND provider_user_id = ?", "github", "gh-1").First(&pa).Error)
		assert.Equal(t, "a2", pa.AccessToken)

		var count int64
		db.Model(&models.ProviderAccount{}).Count(&count)
		assert.EqualValues(t, 1, count)
	})

	t.Run("creates active user", func(t *testing.T) {
		u, err := svc.LinkOAuth(context.Background(), OAuthIdentity{
			Provider: "google", ProviderUserID: "g-7", NickName: "nick",
		})
		require.NoError(t, err)
		assert.NotEqual(t, existing.ID, u.ID)
		assert.True(t, u.IsActive())
		assert.Equal(t, "nick", u.Name)
		assert.Equal(t, "google_g-7@google.oauth.local", u.Email)
		assert.Equal(t, 1, hooks)
	})

	_, err := svc.LinkOAuth(context.Background(), OAuthIdentity{Provider: "google"})
	assert.Error(t, err)
}
