// Package email delivers aurora notifications over SMTP.
package email

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"strconv"
	"strings"
	"text/template"
	"time"

	"github.com/wneessen/go-mail"

	"github.com/rewired-gh/aurorawatch/internal/logger"
	"github.com/rewired-gh/aurorawatch/internal/models"
)

//go:embed templates/*.txt
var templateFS embed.FS

// Config holds the SMTP settings.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       []string
	Timeout  time.Duration
}

// Client composes and sends notification emails.
type Client struct {
	config    Config
	templates map[models.MessageKind]*template.Template
	dial      func(ctx context.Context, msg *mail.Msg) error
}

type templateData struct {
	models.Report
	HasMap bool
}

var funcs = template.FuncMap{
	"kp":        func(v float64) string { return strconv.FormatFloat(v, 'f', 1, 64) },
	"threshold": func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) },
	"duration":  humanDuration,
	"zone":      func(t time.Time) string { return t.Format("MST") },
}

// NewClient parses the message templates and validates the addresses.
func NewClient(config Config) (*Client, error) {
	if config.Host == "" {
		return nil, fmt.Errorf("%w: SMTP host is required", models.ErrInvalidInput)
	}
	if config.From == "" || len(config.To) == 0 {
		return nil, fmt.Errorf("%w: sender and at least one recipient are required", models.ErrInvalidInput)
	}

	c := &Client{
		config:    config,
		templates: make(map[models.MessageKind]*template.Template),
	}
	for _, kind := range []models.MessageKind{models.MessageAlert, models.MessageDailyReport, models.MessageStartupNotice} {
		name := string(kind) + ".txt"
		raw, err := templateFS.ReadFile("templates/" + name)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", name, err)
		}
		tmpl, err := template.New(name).Funcs(funcs).Parse(string(raw))
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", name, err)
		}
		c.templates[kind] = tmpl
	}
	c.dial = c.dialAndSend
	return c, nil
}

func (c *Client) Name() string {
	return "email"
}

// Subject returns the subject line for a report.
func Subject(report models.Report) string {
	switch report.Kind {
	case models.MessageAlert:
		return fmt.Sprintf("Aurora Alert! Kp=%.1f - Visible from your location!", report.Reading.Value)
	case models.MessageDailyReport:
		return fmt.Sprintf("Daily Aurora Report - Kp=%.1f", report.Reading.Value)
	default:
		return "Aurora Monitoring System Started"
	}
}

// Compose renders the plain-text body for a report.
func (c *Client) Compose(report models.Report, hasMap bool) (string, error) {
	tmpl, ok := c.templates[report.Kind]
	if !ok {
		return "", fmt.Errorf("%w: unknown message kind %q", models.ErrInvalidInput, report.Kind)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, templateData{Report: report, HasMap: hasMap}); err != nil {
		return "", fmt.Errorf("failed to render %s email: %w", report.Kind, err)
	}
	return buf.String(), nil
}

// NewMessage builds the message for a report, attaching the map when
// artifactPath is set.
func (c *Client) NewMessage(report models.Report, artifactPath string) (*mail.Msg, error) {
	body, err := c.Compose(report, artifactPath != "")
	if err != nil {
		return nil, err
	}

	msg := mail.NewMsg()
	if err := msg.From(c.config.From); err != nil {
		return nil, fmt.Errorf("invalid sender address: %w", err)
	}
	if err := msg.To(c.config.To...); err != nil {
		return nil, fmt.Errorf("invalid recipient address: %w", err)
	}
	msg.Subject(Subject(report))
	msg.SetDateWithValue(report.GeneratedAt)
	msg.SetBodyString(mail.TypeTextPlain, body)
	if artifactPath != "" {
		msg.AttachFile(artifactPath)
	}
	return msg, nil
}

// Send composes and delivers one message.
func (c *Client) Send(ctx context.Context, report models.Report, artifactPath string) error {
	msg, err := c.NewMessage(report, artifactPath)
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrNotifierFailure, err)
	}
	if err := c.dial(ctx, msg); err != nil {
		return fmt.Errorf("%w: SMTP delivery failed: %v", models.ErrNotifierFailure, err)
	}
	logger.Info("Email %q sent to %s", Subject(report), strings.Join(c.config.To, ", "))
	return nil
}

// implicitTLSPort is the SMTPS port, where TLS starts before any SMTP traffic.
const implicitTLSPort = 465

func (c *Client) dialAndSend(ctx context.Context, msg *mail.Msg) error {
	client, err := c.smtpClient(c.config.Port == implicitTLSPort)
	if err != nil {
		return err
	}
	return client.DialAndSendWithContext(ctx, msg)
}

// smtpClient uses implicit TLS when asked to and mandatory STARTTLS otherwise.
func (c *Client) smtpClient(implicitTLS bool) (*mail.Client, error) {
	opts := []mail.Option{mail.WithPort(c.config.Port)}
	if implicitTLS {
		opts = append(opts, mail.WithSSLPort(false))
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
	}
	if c.config.Timeout > 0 {
		opts = append(opts, mail.WithTimeout(c.config.Timeout))
	}
	if c.config.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(c.config.Username),
			mail.WithPassword(c.config.Password),
		)
	}
	client, err := mail.NewClient(c.config.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create SMTP client: %w", err)
	}
	return client, nil
}

// humanDuration renders whole hours or minutes the way the messages read:
// "1 hour", "30 minutes", "90 seconds".
func humanDuration(d time.Duration) string {
	switch {
	case d >= time.Hour && d%time.Hour == 0:
		return plural(int(d/time.Hour), "hour")
	case d >= time.Minute && d%time.Minute == 0:
		return plural(int(d/time.Minute), "minute")
	default:
		return plural(int(d/time.Second), "second")
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
