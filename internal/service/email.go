package service

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"log/slog"
	"strings"
	"text/template"

	"github.com/resend/resend-go/v2"

	"github.com/healthtrack/healthtrack/internal/markdown"
	"github.com/healthtrack/healthtrack/internal/model"
	"github.com/healthtrack/healthtrack/internal/validation"
)

//go:embed emails/*.md
var emailTemplatesFS embed.FS

var emailTemplates = template.Must(template.ParseFS(emailTemplatesFS, "emails/*.md"))

// emailSender is the subset of the resend client used here.
type emailSender interface {
	SendWithContext(ctx context.Context, params *resend.SendEmailRequest) (*resend.SendEmailResponse, error)
}

type EmailService struct {
	sender    emailSender
	parser    *markdown.Parser
	fromEmail string
	isDev     bool
	appURL    string
	appName   string
}

func NewEmailService(apiKey, fromEmail, appURL, appName string, isDev bool) *EmailService {
	var sender emailSender
	if apiKey != "" && !isDev {
		sender = resend.NewClient(apiKey).Emails
	}

	return &EmailService{
		sender:    sender,
		parser:    markdown.NewParser(),
		fromEmail: fromEmail,
		isDev:     isDev,
		appURL:    appURL,
		appName:   appName,
	}
}

type milestoneEmailData struct {
	Reward        string
	Days          int
	Activity      string
	CurrentStreak int
	More          []model.Milestone
	AppURL        string
	AppName       string
}

// MilestonesUnlocked emails the user about rewards unlocked by a check-in.
// Callers without a usable email address are skipped.
func (s *EmailService) MilestonesUnlocked(ctx context.Context, identity model.Identity, streak *model.Streak, unlocked []model.Milestone) error {
	if identity.Email == "" || len(unlocked) == 0 {
		return nil
	}
	to := strings.TrimSpace(identity.Email)
	if err := validation.ValidateEmail(to); err != nil {
		slog.Info("skipping milestone email", "user_id", identity.UserID, "reason", err)
		return nil
	}

	// Headline the largest reward.
	top := unlocked[len(unlocked)-1]
	data := milestoneEmailData{
		Reward:        top.Reward,
		Days:          top.Days,
		Activity:      streak.Type.DisplayName(),
		CurrentStreak: streak.CurrentStreak,
		More:          unlocked[:len(unlocked)-1],
		AppURL:        s.appURL,
		AppName:       s.appName,
	}

	doc, err := s.render("milestone_unlocked.md", data)
	if err != nil {
		return err
	}
	subject := doc.String("subject")

	if s.isDev {
		slog.Info("email sent (dev mode)", "type", "milestone_unlocked", "to", to, "subject", subject)
		return nil
	}

	if s.sender == nil {
		return fmt.Errorf("email service not configured (missing RESEND_API_KEY)")
	}

	params := &resend.SendEmailRequest{
		From:    s.fromEmail,
		To:      []string{to},
		Subject: subject,
		Html:    doc.HTML,
		Text:    doc.Text,
	}

	_, err = s.sender.SendWithContext(ctx, params)
	if err == nil {
		slog.Info("email sent", "type", "milestone_unlocked", "to", to)
	}
	return err
}

func (s *EmailService) render(name string, data any) (*markdown.Document, error) {
	var buf bytes.Buffer
	if err := emailTemplates.ExecuteTemplate(&buf, name, data); err != nil {
		return nil, fmt.Errorf("failed to execute email template %s: %w", name, err)
	}
	doc, err := s.parser.Parse(buf.Bytes())
	if err != nil {
		return nil, fmt.Errorf("failed to render email template %s: %w", name, err)
	}
	return doc, nil
}
