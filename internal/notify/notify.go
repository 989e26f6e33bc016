// Package notify tells the operator when polling stops on its own, the session cookie has to
// be renewed by hand.
package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
	"time"

	"github.com/jordan-wright/email"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("showroom-approver/internal/notify")

type SmtpConfig struct {
	Server       string `json:"server"`
	Port         int    `json:"port"`
	EmailAddress string `json:"email_address"`
	Password     string `json:"password"`
}

type Config struct {
	Smtp SmtpConfig `json:"smtp"`
	To   []string   `json:"to"`
}

func (c Config) Enabled() bool {
	return c.Smtp.Server != "" && len(c.To) > 0
}

// Notifier is told when polling stops because the session died.
//
// note: fault injection point
type Notifier interface {
	SessionDied(ctx context.Context, at time.Time, cause error) error
}

type sendFunc func(addr string, auth smtp.Auth, mail *email.Email) error

func sendMail(addr string, auth smtp.Auth, mail *email.Email) error {
	return mail.Send(addr, auth)
}

type EmailNotifier struct {
	config Config
	send   sendFunc
}

func NewEmailNotifier(config Config) EmailNotifier {
	return EmailNotifier{config: config, send: sendMail}
}

func (n EmailNotifier) sessionDiedMail(at time.Time, cause error) *email.Email {
	mail := email.NewEmail()
	mail.From = fmt.Sprintf("SHOWROOM Approver <%s>", n.config.Smtp.EmailAddress)
	mail.To = n.config.To
	mail.Subject = "Polling stopped: the session needs to be renewed"
	mail.Text = []byte(fmt.Sprintf(`Automatic approval stopped at %s.

%s

Log in to the organizer console again, update auth_cookie (or SHOWROOM_AUTH_COOKIE) and restart polling.`,
		at.Format("2006-01-02 15:04:05 MST"),
		cause.Error(),
	))
	return mail
}

func (n EmailNotifier) SessionDied(ctx context.Context, at time.Time, cause error) error {
	_, span := tracer.Start(ctx, "notify:SessionDied")
	defer span.End()

	mail := n.sessionDiedMail(at, cause)
	addr := fmt.Sprintf("%s:%d", n.config.Smtp.Server, n.config.Smtp.Port)

	// an empty password means the relay takes mail without AUTH
	var auth smtp.Auth
	if n.config.Smtp.Password != "" {
		auth = smtp.PlainAuth("", n.config.Smtp.EmailAddress, n.config.Smtp.Password, n.config.Smtp.Server)
	}
	err := n.send(addr, auth, mail)
	if err != nil && auth != nil && strings.Contains(err.Error(), "server doesn't support AUTH") {
		err = n.send(addr, nil, mail)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to send email")
		return err
	}
	return nil
}
