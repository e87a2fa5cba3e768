package notify

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/wneessen/go-mail"

	"github.com/campusattend/attendance/internal/attendance"
	"github.com/campusattend/attendance/internal/config"
	"github.com/campusattend/attendance/internal/metrics"
)

const subject = "Monthly Attendance Warning"

// Notifier delivers one defaulter notice.
type Notifier interface {
	Notify(ctx context.Context, d attendance.Defaulter) error
}

// Body renders the notice text.
func Body(d attendance.Defaulter) string {
	return fmt.Sprintf("Dear %s, your monthly attendance is %.2f%%. Please improve.", d.Name, d.Percentage)
}

// Mailer sends notices over SMTP.
type Mailer struct {
	client *mail.Client
	from   string
}

// NewMailer builds an SMTP mailer from configuration. STARTTLS is required unless the
// port is 25, where it is opportunistic.
func NewMailer(cfg config.SMTP) (*Mailer, error) {
	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithTimeout(15 * time.Second),
		mail.WithTLSPolicy(mail.TLSMandatory),
	}
	if cfg.Port == 25 {
		opts[2] = mail.WithTLSPolicy(mail.TLSOpportunistic)
	}
	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}
	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("smtp client: %w", err)
	}
	return &Mailer{client: client, from: cfg.From}, nil
}

// Notify sends one email.
func (m *Mailer) Notify(ctx context.Context, d attendance.Defaulter) error {
	msg := mail.NewMsg()
	if err := msg.From(m.from); err != nil {
		return fmt.Errorf("from address: %w", err)
	}
	if err := msg.To(d.Email); err != nil {
		return fmt.Errorf("to address %q: %w", d.Email, err)
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextPlain, Body(d))

	if err := m.client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("send to %s: %w", d.Email, err)
	}
	return nil
}

// LogNotifier writes notices to the log instead of sending them.
type LogNotifier struct{}

// Notify logs the notice.
func (LogNotifier) Notify(ctx context.Context, d attendance.Defaulter) error {
	log.Printf("notice for %s <%s>: %s", d.StudentID, d.Email, Body(d))
	return nil
}

// New returns a Mailer when SMTP is configured, LogNotifier otherwise.
func New(cfg config.SMTP) (Notifier, error) {
	if !cfg.Enabled() {
		log.Println("SMTP not configured (SMTP_HOST / SMTP_FROM not set), notices will be logged")
		return LogNotifier{}, nil
	}
	return NewMailer(cfg)
}

// Summary counts one dispatch run.
type Summary struct {
	Sent   int
	Failed int
}

// Dispatch sends one notice per defaulter. Failures are logged and counted; they never
// stop the remaining sends. after, when set, is called once per defaulter.
func Dispatch(ctx context.Context, n Notifier, defaulters []attendance.Defaulter, after func(attendance.Defaulter, error)) Summary {
	var sum Summary
	for _, d := range defaulters {
		if ctx.Err() != nil {
			break
		}
		err := Send(ctx, n, d)
		if err != nil {
			sum.Failed++
		} else {
			sum.Sent++
		}
		if after != nil {
			after(d, err)
		}
	}
	return sum
}

// Send delivers one notice and records the outcome.
func Send(ctx context.Context, n Notifier, d attendance.Defaulter) error {
	err := n.Notify(ctx, d)
	if err != nil {
		metrics.Notifications.WithLabelValues("failed").Inc()
		log.Printf("notify %s failed: %v", d.StudentID, err)
		return err
	}
	metrics.Notifications.WithLabelValues("sent").Inc()
	return nil
}
