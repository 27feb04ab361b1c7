package utils

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap/zapcore"

	"github.com/phillip/volunteer-events-go/config"
	"github.com/phillip/volunteer-events-go/logger"
)

// email request payload for ZeptoMail API
type emailRequest struct {
	From     emailAddress  `json:"from"`
	To       []toRecipient `json:"to"`
	Subject  string        `json:"subject"`
	TextBody string        `json:"textbody"`
}

type emailAddress struct {
	Address string `json:"address"`
}

type toRecipient struct {
	Email emailWithName `json:"email_address"`
}

type emailWithName struct {
	Address string `json:"address"`
	Name    string `json:"name"`
}

// ZeptoMailer sends plain-text notification mail through the ZeptoMail HTTP
// API.
type ZeptoMailer struct {
	apiURL string
	apiKey string
	from   string
	client *http.Client
}

func NewZeptoMailer(cfg *config.Config) (*ZeptoMailer, error) {
	if cfg.ZeptoAPIURL == "" || cfg.ZeptoAPIKey == "" || cfg.EmailFrom == "" {
		return nil, fmt.Errorf("missing ZEPTO_API_URL, ZEPTO_API_KEY, or EMAIL_FROM")
	}
	return &ZeptoMailer{
		apiURL: cfg.ZeptoAPIURL,
		apiKey: cfg.ZeptoAPIKey,
		from:   cfg.EmailFrom,
		client: &http.Client{Timeout: 15 * time.Second},
	}, nil
}

func (m *ZeptoMailer) Send(ctx context.Context, to, name, subject, body string) error {
	if name == "" {
		name = to
	}
	payload := emailRequest{
		From:     emailAddress{Address: m.from},
		To:       []toRecipient{{Email: emailWithName{Address: to, Name: name}}},
		Subject:  subject,
		TextBody: body,
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal email payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.apiURL, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", m.apiKey)

	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted && resp.StatusCode != http.StatusOK {
		return fmt.Errorf("zeptomail API error: %s", resp.Status)
	}

	logger.Log(zapcore.DebugLevel, "email sent to "+to, "ZeptoMailer", "send")
	return nil
}
