package hcaptcha

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerify(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "s3cret", r.PostForm.Get("secret"))
		w.Header().Set("Content-Type", "application/json")
		if r.PostForm.Get("response") == "good" {
			_, _ = w.Write([]byte(`{"success":true}`))
			return
		}
		_, _ = w.Write([]byte(`{"success":false,"error-codes":["invalid-input-response"]}`))
	}))
	defer srv.Close()

	v := &Verifier{Secret: "s3cret", VerifyURL: srv.URL, Client: srv.Client()}

	assert.NoError(t, v.Verify(context.Background(), "good"))
	assert.ErrorIs(t, v.Verify(context.Background(), ""), ErrEmptyToken)

	err := v.Verify(context.Background(), "bad")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid-input-response")
}

func TestVerify_Disabled(t *testing.T) {
	v := &Verifier{}
	assert.False(t, v.Enabled())
	assert.NoError(t, v.Verify(context.Background(), ""))
}
