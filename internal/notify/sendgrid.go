// Package notify delivers best-effort notifications: email through the
// SendGrid v3 API, the log, and fan-out to several sinks at once.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/douremember/go-descriptions-backend/internal/domain"
)

// SendGridConfig configures the email notifier.
type SendGridConfig struct {
	APIKey    string
	BaseURL   string
	FromEmail string
	FromName  string
	Timeout   time.Duration
}

// SendGrid emails notifications through POST /v3/mail/send.
type SendGrid struct {
	cfg        SendGridConfig
	httpClient *http.Client
}

// NewSendGrid validates cfg and fills defaults.
func NewSendGrid(cfg SendGridConfig) (*SendGrid, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("sendgrid: missing api key")
	}
	if strings.TrimSpace(cfg.FromEmail) == "" {
		return nil, errors.New("sendgrid: missing from email")
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = "https://api.sendgrid.com"
	}
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.FromName == "" {
		cfg.FromName = "DoURemember"
	}
	return &SendGrid{cfg: cfg, httpClient: &http.Client{Timeout: cfg.Timeout}}, nil
}

type emailAddress struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type mailSendRequest struct {
	Personalizations []personalization `json:"personalizations"`
	From             emailAddress      `json:"from"`
	Subject          string            `json:"subject"`
	Content          []mailContent     `json:"content"`
	Categories       []string          `json:"categories,omitempty"`
	CustomArgs       map[string]string `json:"custom_args,omitempty"`
}

type personalization struct {
	To []emailAddress `json:"to"`
}

type mailContent struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// HTTPError is a non-2xx answer from SendGrid.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("sendgrid: status %d: %s", e.StatusCode, e.Body)
}

// ErrNoRecipient is returned when a notification has no email address.
var ErrNoRecipient = errors.New("sendgrid: recipient has no email")

// Notify sends n as a plain-text email.
func (s *SendGrid) Notify(ctx context.Context, n domain.Notification) error {
	to := strings.TrimSpace(n.ToEmail)
	if to == "" {
		return ErrNoRecipient
	}
	body := mailSendRequest{
		Personalizations: []personalization{{To: []emailAddress{{Email: to, Name: n.ToName}}}},
		From:             emailAddress{Email: s.cfg.FromEmail, Name: s.cfg.FromName},
		Subject:          n.Subject,
		Content:          []mailContent{{Type: "text/plain", Value: RenderText(n)}},
		Categories:       []string{n.Event},
		CustomArgs:       map[string]string{"recipient_id": n.RecipientID},
	}
	b, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("sendgrid: marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.BaseURL+"/v3/mail/send", bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sendgrid: send: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &HTTPError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// RenderText formats a notification body in Spanish.
func RenderText(n domain.Notification) string {
	var sb strings.Builder
	if n.ToName != "" {
		fmt.Fprintf(&sb, "Hola %s,\n\n", n.ToName)
	}
	switch n.Event {
	case domain.EventLowScore:
		fmt.Fprintf(&sb, "%v obtuvo una puntuación de %s en la sesión %v (umbral %s).\n",
			n.Payload["patientName"], pct(n.Payload["score"]), n.Payload["sessionOrdinal"], pct(n.Payload["threshold"]))
		sb.WriteString("Le recomendamos revisar la descripción en el panel clínico.\n")
	case domain.EventBaselineRecorded:
		fmt.Fprintf(&sb, "%v completó su primera sesión. Puntuación total de referencia: %s.\n",
			n.Payload["patientName"], pct(n.Payload["total"]))
	case domain.EventActivationChanged:
		if active, _ := n.Payload["activation"].(bool); active {
			fmt.Fprintf(&sb, "Tu sesión %v ya está disponible.\n", n.Payload["sessionOrdinal"])
		} else {
			fmt.Fprintf(&sb, "Tu sesión %v se ha desactivado.\n", n.Payload["sessionOrdinal"])
		}
	default:
		keys := make([]string, 0, len(n.Payload))
		for k := range n.Payload {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&sb, "%s: %v\n", k, n.Payload[k])
		}
	}
	return sb.String()
}

func pct(v any) string {
	f, ok := v.(float64)
	if !ok {
		return fmt.Sprint(v)
	}
	return fmt.Sprintf("%.0f%%", f*100)
}
