// Package mailer delivers billing notifications to customers.
package mailer

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"go.uber.org/fx"
	"go.uber.org/zap"

	cfgpkg "github.com/britonmearsty/secureuploadhub-sub006/pkg/config"
	"github.com/britonmearsty/secureuploadhub-sub006/pkg/logctx"
)

type Kind string

const (
	KindPaymentSucceeded Kind = "payment_succeeded"
	KindPaymentFailed    Kind = "payment_failed"
	KindSubscriptionEnd  Kind = "subscription_cancelled"
	KindRefundIssued     Kind = "refund_issued"
)

type Message struct {
	Kind    Kind
	To      string
	Subject string
	Body    string
}

// Notifier sends one message. Callers treat failures as non-fatal.
type Notifier interface {
	Notify(ctx context.Context, msg *Message) error
}

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

type SMTPNotifier struct {
	cfg  cfgpkg.SMTPConfig
	send sendFunc
}

func NewSMTPNotifier(cfg cfgpkg.SMTPConfig) *SMTPNotifier {
	return &SMTPNotifier{cfg: cfg, send: smtp.SendMail}
}

func (n *SMTPNotifier) Notify(_ context.Context, msg *Message) error {
	if msg == nil || msg.To == "" {
		return fmt.Errorf("mailer: missing recipient")
	}
	var auth smtp.Auth
	if n.cfg.Username != "" {
		auth = smtp.PlainAuth("", n.cfg.Username, n.cfg.Password, n.cfg.Host)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", n.cfg.From)
	fmt.Fprintf(&b, "To: %s\r\n", msg.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", msg.Subject)
	b.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=\"utf-8\"\r\n\r\n")
	b.WriteString(msg.Body)

	addr := fmt.Sprintf("%s:%d", n.cfg.Host, n.cfg.Port)
	if err := n.send(addr, auth, n.cfg.From, []string{msg.To}, []byte(b.String())); err != nil {
		return fmt.Errorf("mailer: send %s to %s: %w", msg.Kind, msg.To, err)
	}
	return nil
}

// LogNotifier writes messages to the log instead of delivering them.
type LogNotifier struct {
	log *zap.SugaredLogger
}

func NewLogNotifier(log *zap.SugaredLogger) *LogNotifier { return &LogNotifier{log: log} }

func (n *LogNotifier) Notify(ctx context.Context, msg *Message) error {
	logctx.FromCtx(ctx, n.log).Infow("notification_suppressed", "kind", msg.Kind, "to", msg.To, "subject", msg.Subject)
	return nil
}

func newNotifier(cfg *cfgpkg.Config, log *zap.SugaredLogger) Notifier {
	if !cfg.SMTP.Enabled() {
		return NewLogNotifier(log)
	}
	return NewSMTPNotifier(cfg.SMTP)
}

var Module = fx.Options(
	fx.Provide(newNotifier),
)
