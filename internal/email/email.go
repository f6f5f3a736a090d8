package email

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
)

const defaultBaseURL = "https://api.resend.com"

// Template names with server-side bodies.
const (
	TemplatePasswordReset     = "password_reset"
	TemplateEmailVerification = "email_verification"
)

// Config holds email sender settings
type Config struct {
	APIKey  string
	From    string
	BaseURL string
}

// Sender delivers email through Resend, falling back to console logging when
// no API key is configured so development flows keep working.
type Sender struct {
	apiKey     string
	from       string
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// New creates an email sender
func New(cfg Config, logger *slog.Logger) *Sender {
	if logger == nil {
		logger = slog.Default()
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	from := cfg.From
	if from == "" {
		from = "Luma <noreply@lumahub.dev>"
	}
	return &Sender{
		apiKey:     cfg.APIKey,
		from:       from,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		logger:     logger,
	}
}

// Request is one outbound email. Template, when set, overrides HTML and
// Text with a server-rendered body.
type Request struct {
	To        string `json:"to"`
	Subject   string `json:"subject"`
	HTML      string `json:"html"`
	Text      string `json:"text"`
	Template  string `json:"template"`
	ResetURL  string `json:"resetUrl"`
	VerifyURL string `json:"verifyUrl"`
	UserName  string `json:"userName"`
}

// Result reports which provider handled the delivery.
type Result struct {
	Success   bool   `json:"success"`
	MessageID string `json:"messageId"`
	Provider  string `json:"provider"`
	Note      string `json:"note,omitempty"`
}

// Validate checks the request for required fields.
func (r *Request) Validate() error {
	if r.To == "" {
		return fmt.Errorf("to is required")
	}
	if r.Subject == "" {
		return fmt.Errorf("subject is required")
	}
	if r.HTML == "" && r.Text == "" && r.Template == "" {
		return fmt.Errorf("html or text is required")
	}
	return nil
}

// Send delivers the email. A Resend failure or missing API key degrades to
// logging the message, which still counts as success for the caller.
func (s *Sender) Send(ctx context.Context, req Request) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	s.applyTemplate(&req)

	if s.apiKey != "" {
		if res, err := s.sendResend(ctx, req); err == nil {
			return res, nil
		} else {
			s.logger.Warn("resend delivery failed, logging instead", "to", req.To, "error", err)
		}
	}

	preview := req.Text
	if preview == "" {
		preview = req.HTML
	}
	if len(preview) > 200 {
		preview = preview[:200]
	}
	s.logger.Info("email logged instead of sent", "to", req.To, "subject", req.Subject, "preview", preview)

	return &Result{
		Success:   true,
		MessageID: "dev-" + uuid.NewString(),
		Provider:  "console",
		Note:      "email logged to console (no API key configured)",
	}, nil
}

func (s *Sender) sendResend(ctx context.Context, req Request) (*Result, error) {
	body, err := json.Marshal(map[string]interface{}{
		"from":    s.from,
		"to":      []string{req.To},
		"subject": req.Subject,
		"html":    req.HTML,
		"text":    req.Text,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/emails", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("resend returned status %d", resp.StatusCode)
	}

	var sendResp struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&sendResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return &Result{Success: true, MessageID: sendResp.ID, Provider: "resend"}, nil
}

func (s *Sender) applyTemplate(req *Request) {
	userName := req.UserName
	if userName == "" {
		userName = "User"
	}

	switch req.Template {
	case TemplatePasswordReset:
		req.HTML = renderActionEmail("Reset Your Password", userName,
			"We received a request to reset your password. Click the button below to create a new password.",
			req.ResetURL, "Reset Password", "This link will expire in 60 minutes.")
		req.Text = fmt.Sprintf("Hi %s,\n\nReset your password by visiting: %s\n\nThis link expires in 60 minutes.\n\nIf you didn't request this, ignore this email.", userName, req.ResetURL)
	case TemplateEmailVerification:
		req.HTML = renderActionEmail("Verify Your Email", userName,
			"Thanks for signing up! Please verify your email address by clicking the button below.",
			req.VerifyURL, "Verify Email", "This link will expire in 24 hours.")
		req.Text = fmt.Sprintf("Hi %s,\n\nVerify your email by visiting: %s\n\nThis link expires in 24 hours.", userName, req.VerifyURL)
	}
}

func renderActionEmail(heading, userName, intro, actionURL, actionLabel, expiry string) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<body style="font-family: -apple-system, 'Segoe UI', Roboto, sans-serif; color: #333;">
  <div style="max-width: 600px; margin: 0 auto; padding: 20px;">
    <div style="background: #d9a07a; padding: 30px; text-align: center; border-radius: 10px 10px 0 0;">
      <h1 style="color: white; margin: 0;">Luma</h1>
    </div>
    <div style="background: #f9f9f9; padding: 30px; border-radius: 0 0 10px 10px;">
      <h2>%s</h2>
      <p>Hi %s,</p>
      <p>%s</p>
      <p style="text-align: center;">
        <a href="%s" style="display: inline-block; background: #d9a07a; color: white; padding: 14px 28px; text-decoration: none; border-radius: 8px;">%s</a>
      </p>
      <p>%s</p>
      <p>If you didn't request this, you can safely ignore this email.</p>
    </div>
  </div>
</body>
</html>`, heading, userName, intro, actionURL, actionLabel, expiry)
}
