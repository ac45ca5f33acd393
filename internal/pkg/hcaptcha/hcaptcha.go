package hcaptcha

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ManuelReschke/saaskit/internal/pkg/env"
)

const DefaultVerifyURL = "https://hcaptcha.com/siteverify"

var ErrEmptyToken = errors.New("hCaptcha token is empty")

type Response struct {
	Success     bool     `json:"success"`
	ChallengeTS string   `json:"challenge_ts"`
	Hostname    string   `json:"hostname"`
	ErrorCodes  []string `json:"error-codes"`
}

// Verifier checks widget tokens. A verifier without secret accepts everything.
type Verifier struct {
	Secret    string
	VerifyURL string
	Client    *http.Client
}

func New() *Verifier {
	return &Verifier{
		Secret:    env.GetEnv("HCAPTCHA_SECRET", ""),
		VerifyURL: DefaultVerifyURL,
		Client:    &http.Client{Timeout: 10 * time.Second},
	}
}

func (v *Verifier) Enabled() bool {
	return v != nil && v.Secret != ""
}

func (v *Verifier) Verify(ctx context.Context, token string) error {
	if !v.Enabled() {
		return nil
	}
	if token == "" {
		return ErrEmptyToken
	}

	formData := url.Values{
		"secret":   {v.Secret},
		"response": {token},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.VerifyURL, strings.NewReader(formData.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := v.Client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request to hCaptcha API: %w", err)
	}
	defer resp.Body.Close()

	var response Response
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return fmt.Errorf("failed to decode hCaptcha API response: %w", err)
	}

	if !response.Success {
		msg := "hCaptcha validation failed"
		if len(response.ErrorCodes) > 0 {
			msg = msg + ": " + strings.Join(response.ErrorCodes, ", ")
		}
		return errors.New(msg)
	}
	return nil
}
