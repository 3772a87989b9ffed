package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Rrens/event-chat/internal/config"
)

var errUnauthorized = errors.New("mail API rejected credentials")

// HTTPMailer sends mail through a JSON mail API authenticated with OAuth2
// client credentials. The access token lives in a CredentialCache.
type HTTPMailer struct {
	baseURL      string
	tokenURL     string
	clientID     string
	clientSecret string
	from         string
	client       *http.Client
	credentials  *CredentialCache
}

// NewHTTPMailer creates a mailer for the configured provider
func NewHTTPMailer(cfg config.MailConfig) *HTTPMailer {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	m := &HTTPMailer{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		tokenURL:     cfg.TokenURL,
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		from:         cfg.From,
		client:       &http.Client{Timeout: timeout},
	}
	m.credentials = NewCredentialCache(m.fetchToken)
	return m
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

func (m *HTTPMailer) fetchToken(ctx context.Context) (string, time.Duration, error) {
	form := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {m.clientID},
		"client_secret": {m.clientSecret},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", 0, fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := m.client.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", 0, fmt.Errorf("token endpoint returned status %d", resp.StatusCode)
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", 0, fmt.Errorf("failed to decode token response: %w", err)
	}

	return tr.AccessToken, time.Duration(tr.ExpiresIn) * time.Second, nil
}

type sendRequest struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	Text    string `json:"text"`
	HTML    string `json:"html"`
}

// SendPasswordReset emails the reset link
func (m *HTTPMailer) SendPasswordReset(ctx context.Context, to, name, link string) error {
	msg := sendRequest{
		From:    m.from,
		To:      to,
		Subject: "Reset your chat password",
		Text:    resetText(name, link),
		HTML:    resetHTML(name, link),
	}

	err := m.send(ctx, msg)
	if errors.Is(err, errUnauthorized) {
		// Token revoked or rotated early; fetch a new one and try once more.
		m.credentials.Invalidate()
		err = m.send(ctx, msg)
	}
	return err
}

func (m *HTTPMailer) send(ctx context.Context, msg sendRequest) error {
	token, err := m.credentials.Get(ctx)
	if err != nil {
		return err
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal mail: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("mail request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return errUnauthorized
	case resp.StatusCode >= 300:
		return fmt.Errorf("mail API returned status %d", resp.StatusCode)
	}
	return nil
}

func resetText(name, link string) string {
	return fmt.Sprintf("Hi %s,\n\nSomeone asked to reset your chat password. Open the link below within the next hour to choose a new one:\n\n%s\n\nIf this wasn't you, you can ignore this email.\n", name, link)
}

func resetHTML(name, link string) string {
	return fmt.Sprintf(`<p>Hi %s,</p><p>Someone asked to reset your chat password. The link below is valid for one hour.</p><p><a href="%s">Choose a new password</a></p><p>If this wasn't you, you can ignore this email.</p>`,
		html.EscapeString(name), html.EscapeString(link))
}
