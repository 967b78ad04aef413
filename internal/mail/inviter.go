// Package mail delivers calendar share invitations over SMTP.
package mail

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"strings"

	"gopkg.in/gomail.v2"

	"github.com/example/shared-calendar/internal/application"
	"github.com/example/shared-calendar/internal/logging"
)

// ErrMissingSender is returned when no From address is configured.
var ErrMissingSender = errors.New("mail: sender address is required")

// Config holds SMTP settings.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	// BaseURL prefixes the calendar link in the message body.
	BaseURL string
}

// Sender is the part of gomail.Dialer the inviter uses.
type Sender interface {
	DialAndSend(messages ...*gomail.Message) error
}

// Inviter implements application.Inviter with gomail.
type Inviter struct {
	sender  Sender
	from    string
	baseURL string
	logger  *slog.Logger
}

// NewInviter dials cfg.Host for every invitation.
func NewInviter(cfg Config, logger *slog.Logger) (*Inviter, error) {
	return NewInviterWithSender(gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password), cfg, logger)
}

// NewInviterWithSender uses sender instead of an SMTP dialer.
func NewInviterWithSender(sender Sender, cfg Config, logger *slog.Logger) (*Inviter, error) {
	from := strings.TrimSpace(cfg.From)
	if from == "" {
		from = strings.TrimSpace(cfg.Username)
	}
	if from == "" {
		return nil, ErrMissingSender
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Inviter{
		sender:  sender,
		from:    from,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		logger:  logger,
	}, nil
}

var invitationBody = template.Must(template.New("invitation").Parse(`<div style="font-family: Arial, sans-serif; max-width: 600px; margin: auto; padding: 20px;">
	<h2>{{.Sharer}} shared a calendar with you</h2>
	<p>You now have access to <strong>{{.Calendar}}</strong>.</p>
	{{- if .Link}}
	<p><a href="{{.Link}}">Open the calendar</a></p>
	{{- end}}
	<p>If you do not have an account yet, sign up with this address to see it.</p>
</div>`))

// Message builds the e-mail for invitation.
func (i *Inviter) Message(invitation application.ShareInvitation) (*gomail.Message, error) {
	sharer := invitation.SharerName
	if sharer == "" {
		sharer = invitation.SharerEmail
	}
	link := ""
	if i.baseURL != "" {
		link = i.baseURL + "/calendars/" + invitation.CalendarID
	}

	var body bytes.Buffer
	if err := invitationBody.Execute(&body, map[string]string{
		"Sharer":   sharer,
		"Calendar": invitation.CalendarName,
		"Link":     link,
	}); err != nil {
		return nil, fmt.Errorf("mail: render invitation: %w", err)
	}

	message := gomail.NewMessage()
	message.SetHeader("From", i.from)
	message.SetHeader("To", invitation.RecipientEmail)
	if invitation.SharerEmail != "" {
		message.SetHeader("Reply-To", invitation.SharerEmail)
	}
	message.SetHeader("Subject", fmt.Sprintf("%s shared \"%s\" with you", sharer, invitation.CalendarName))
	message.SetBody("text/html", body.String())
	return message, nil
}

// SendShareInvitation renders and sends one invitation.
func (i *Inviter) SendShareInvitation(ctx context.Context, invitation application.ShareInvitation) error {
	if strings.TrimSpace(invitation.RecipientEmail) == "" {
		return errors.New("mail: recipient address is required")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	message, err := i.Message(invitation)
	if err != nil {
		return err
	}

	logger := i.logger
	if scoped := logging.FromContext(ctx); scoped != nil {
		logger = scoped
	}
	logger = logger.With("component", "mail", "calendar_id", invitation.CalendarID, "recipient", invitation.RecipientEmail)
	if err := i.sender.DialAndSend(message); err != nil {
		logger.ErrorContext(ctx, "failed to send share invitation", "error", err)
		return fmt.Errorf("mail: send invitation: %w", err)
	}
	logger.InfoContext(ctx, "share invitation sent")
	return nil
}
