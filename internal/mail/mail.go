package mail

import (
	"bytes"
	"context"
	"fmt"
	htmltemplate "html/template"
	"text/template"
	"time"

	"ecoquote/internal/config"

	gomail "github.com/wneessen/go-mail"
	"go.uber.org/zap"
)

// QuotationEmail carries everything the response email shows
type QuotationEmail struct {
	To          string
	Name        string
	CompanyName string
	QuotationID string
	ServiceType string
	Permits     []string
	Amount      *float64
	ApproveURL  string
	RejectURL   string
	ExpiresAt   time.Time
}

// Mailer delivers quotation emails
type Mailer interface {
	SendQuotation(ctx context.Context, email QuotationEmail) error
}

func deref(f *float64) float64 { return *f }

var textTemplate = template.Must(template.New("quotation.txt").Funcs(template.FuncMap{
	"deref": deref,
}).Parse(`Hello {{.Name}},

{{.CompanyName}} has prepared your quotation for {{.ServiceType}}.
{{if .Permits}}
Permits:
{{range .Permits}}  - {{.}}
{{end}}{{end}}{{if .Amount}}
Estimated amount: ${{printf "%.2f" (deref .Amount)}}
{{end}}
Approve: {{.ApproveURL}}
Reject:  {{.RejectURL}}

These links expire on {{.ExpiresAt.Format "January 2, 2006 15:04 MST"}}.
`))

var htmlTemplate = htmltemplate.Must(htmltemplate.New("quotation.html").Funcs(htmltemplate.FuncMap{
	"deref": deref,
}).Parse(`<p>Hello {{.Name}},</p>
<p>{{.CompanyName}} has prepared your quotation for <strong>{{.ServiceType}}</strong>.</p>
{{if .Permits}}<ul>{{range .Permits}}<li>{{.}}</li>{{end}}</ul>{{end}}
{{if .Amount}}<p>Estimated amount: <strong>${{printf "%.2f" (deref .Amount)}}</strong></p>{{end}}
<p><a href="{{.ApproveURL}}">Approve quotation</a> &middot; <a href="{{.RejectURL}}">Reject quotation</a></p>
<p><small>These links expire on {{.ExpiresAt.Format "January 2, 2006 15:04 MST"}}.</small></p>
`))

// Subject is the subject line used for quotation emails
func Subject(email QuotationEmail) string {
	return fmt.Sprintf("Your %s quotation from %s", email.ServiceType, email.CompanyName)
}

// RenderText renders the plain-text body
func RenderText(email QuotationEmail) (string, error) {
	var buf bytes.Buffer
	if err := textTemplate.Execute(&buf, email); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// RenderHTML renders the HTML alternative
func RenderHTML(email QuotationEmail) (string, error) {
	var buf bytes.Buffer
	if err := htmlTemplate.Execute(&buf, email); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// SMTPMailer sends mail through an SMTP relay
type SMTPMailer struct {
	cfg config.SMTPConfig
	log *zap.Logger
}

func NewSMTPMailer(cfg config.SMTPConfig, log *zap.Logger) *SMTPMailer {
	return &SMTPMailer{cfg: cfg, log: log}
}

func (m *SMTPMailer) SendQuotation(ctx context.Context, email QuotationEmail) error {
	text, err := RenderText(email)
	if err != nil {
		return fmt.Errorf("render text: %w", err)
	}
	html, err := RenderHTML(email)
	if err != nil {
		return fmt.Errorf("render html: %w", err)
	}

	msg := gomail.NewMsg()
	if err := msg.From(m.cfg.From); err != nil {
		return fmt.Errorf("from address: %w", err)
	}
	if err := msg.To(email.To); err != nil {
		return fmt.Errorf("to address: %w", err)
	}
	msg.Subject(Subject(email))
	msg.SetBodyString(gomail.TypeTextPlain, text)
	msg.AddAlternativeString(gomail.TypeTextHTML, html)

	opts := []gomail.Option{
		gomail.WithPort(m.cfg.Port),
		gomail.WithTLSPolicy(gomail.TLSOpportunistic),
	}
	if m.cfg.Username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(m.cfg.Username),
			gomail.WithPassword(m.cfg.Password),
		)
	}
	client, err := gomail.NewClient(m.cfg.Host, opts...)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}
	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("send: %w", err)
	}

	m.log.Info("Quotation email sent",
		zap.String("quotation_id", email.QuotationID),
		zap.String("to", email.To),
	)
	return nil
}

// LogMailer writes emails to the log instead of sending them. Used when SMTP is not configured.
type LogMailer struct {
	log *zap.Logger
}

func NewLogMailer(log *zap.Logger) *LogMailer {
	return &LogMailer{log: log}
}

func (m *LogMailer) SendQuotation(ctx context.Context, email QuotationEmail) error {
	text, err := RenderText(email)
	if err != nil {
		return err
	}
	m.log.Info("Quotation email (SMTP disabled)",
		zap.String("quotation_id", email.QuotationID),
		zap.String("to", email.To),
		zap.String("subject", Subject(email)),
		zap.String("body", text),
	)
	return nil
}

// New picks the SMTP mailer when configured and the log mailer otherwise
func New(cfg config.SMTPConfig, log *zap.Logger) Mailer {
	if cfg.Enabled() {
		return NewSMTPMailer(cfg, log)
	}
	return NewLogMailer(log)
}
