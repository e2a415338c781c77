package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/leoncowle/mastodon-misc/internal/assert"
	"github.com/leoncowle/mastodon-misc/internal/components/telemetry"
	"github.com/leoncowle/mastodon-misc/internal/reconcile"

	"github.com/jordan-wright/email"
)

const report_notify_email = "notify.email"

type SmtpConfig struct {
	Server       string   `json:"server"`
	Port         int      `json:"port"`
	EmailAddress string   `json:"email_address"`
	Password     string   `json:"password"`
	To           []string `json:"to"`
}

// EmailNotifier sends an email for every removal.
type EmailNotifier struct {
	smtp     SmtpConfig
	instance string
	tel      telemetry.API
}

func NewEmailNotifier(cfg SmtpConfig, instance string, tel telemetry.API) EmailNotifier {
	assert.NotEmptyStr(cfg.Server, "smtp server")
	assert.NotEmptyStr(cfg.EmailAddress, "smtp email address")
	assert.NotNil(tel, "telemetry")
	if len(cfg.To) == 0 {
		cfg.To = []string{cfg.EmailAddress}
	}
	return EmailNotifier{smtp: cfg, instance: instance, tel: tel}
}

func (n EmailNotifier) NotifyRemoval(ctx context.Context, removal reconcile.Removal) error {
	mail := email.NewEmail()
	mail.From = fmt.Sprintf("listdrift <%s>", n.smtp.EmailAddress)
	mail.To = n.smtp.To
	mail.Subject = fmt.Sprintf("An account dropped out of \"%s\"", removal.ListTitle)
	mail.Text = []byte(FormatRemoval(removal, n.instance))

	addr := fmt.Sprintf("%s:%d", n.smtp.Server, n.smtp.Port)
	err := mail.Send(addr, smtp.PlainAuth("", n.smtp.EmailAddress, n.smtp.Password, n.smtp.Server))
	if err != nil && strings.Contains(err.Error(), "server doesn't support AUTH") {
		err = mail.Send(addr, nil)
	}
	if err != nil {
		n.tel.ReportBroken(
			report_notify_email,
			err,
			telemetry.KV{Key: "list", Value: removal.ListID},
			telemetry.KV{Key: "account", Value: removal.Account},
		)
		return err
	}
	return nil
}
