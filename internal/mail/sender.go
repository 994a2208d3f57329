// Package mail delivers rendered invoices to clients. Delivery goes through
// the Resend HTTP API when an API key is configured; otherwise messages are
// logged and dropped, which keeps local development working without
// credentials.
package mail

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/invoicerhq/invoicer/internal/config"
)

// Attachment is one file to attach to an outgoing message.
type Attachment struct {
	Filename string
	Content  []byte
}

// Message is one outgoing email.
type Message struct {
	To          string
	Subject     string
	HTML        string
	Attachments []Attachment
}

// Sender delivers messages. Implementations must not mutate the message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// ResendSender delivers via the Resend REST API.
type ResendSender struct {
	apiURL string
	apiKey string
	from   string
	client *http.Client
}

func NewResendSender(cfg config.MailConfig) *ResendSender {
	return &ResendSender{
		apiURL: cfg.APIURL,
		apiKey: cfg.APIKey,
		from:   cfg.From,
		client: &http.Client{Timeout: 15 * time.Second},
	}
}

type resendAttachment struct {
	Filename string `json:"filename"`
	Content  string `json:"content"`
}

type resendRequest struct {
	From        string             `json:"from"`
	To          []string           `json:"to"`
	Subject     string             `json:"subject"`
	HTML        string             `json:"html"`
	Attachments []resendAttachment `json:"attachments,omitempty"`
}

func (s *ResendSender) Send(ctx context.Context, msg Message) error {
	payload := resendRequest{
		From:    s.from,
		To:      []string{msg.To},
		Subject: msg.Subject,
		HTML:    msg.HTML,
	}
	for _, a := range msg.Attachments {
		payload.Attachments = append(payload.Attachments, resendAttachment{
			Filename: a.Filename,
			Content:  base64.StdEncoding.EncodeToString(a.Content),
		})
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode mail request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.apiURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build mail request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("send mail: %s: %s", resp.Status, bytes.TrimSpace(detail))
	}
	return nil
}

// LogSender records outgoing mail without delivering it.
type LogSender struct {
	log *zap.Logger
}

func NewLogSender(log *zap.Logger) *LogSender {
	return &LogSender{log: log}
}

func (s *LogSender) Send(_ context.Context, msg Message) error {
	s.log.Info("mail delivery disabled, dropping message",
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.Int("attachments", len(msg.Attachments)))
	return nil
}

// NewSenderFromConfig picks the real sender when an API key is present and
// the logging fallback otherwise.
func NewSenderFromConfig(cfg config.MailConfig, log *zap.Logger) Sender {
	if cfg.APIKey == "" {
		log.Warn("RESEND_API_KEY not set, outgoing mail will be logged only")
		return NewLogSender(log)
	}
	return NewResendSender(cfg)
}
