package notify

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"mime"
	"mime/multipart"
	"net"
	"net/smtp"
	"net/textproto"
	"strings"
	"time"

	"github.com/yuin/goldmark"

	"github.com/duetto/duetto/internal/alert"
)

// smtpDialTimeout bounds connection setup, mirroring the donor's
// internal/email/smtp.go dial budget.
const smtpDialTimeout = 30 * time.Second

// EmailNotifier delivers alerts as a multipart/alternative HTML+text
// email. SMTP dispatch runs on a worker goroutine per Send call so it
// never blocks the pipeline; Send itself still returns only once that
// worker completes or ctx is done, since Notifier.Send has no async
// contract of its own — NotifierFanout is what provides the pipeline's
// non-blocking fan-out.
type EmailNotifier struct {
	host     string
	port     int
	username string
	password string
	startTLS bool
	from     string
	to       []string
	logger   *slog.Logger
}

// EmailOption configures an EmailNotifier built by NewEmailNotifier.
type EmailOption func(*EmailNotifier)

// WithEmailStartTLS selects STARTTLS (port 587 convention) instead of
// implicit TLS (port 465 convention).
func WithEmailStartTLS() EmailOption {
	return func(e *EmailNotifier) { e.startTLS = true }
}

// WithEmailLogger attaches a logger.
func WithEmailLogger(l *slog.Logger) EmailOption {
	return func(e *EmailNotifier) { e.logger = l }
}

// NewEmailNotifier builds a notifier sending through host:port as user,
// from "from" to every address in "to". Returns nil if host, from, or
// the recipient list is empty, per the donor's "disable at startup"
// policy for missing credentials.
func NewEmailNotifier(host string, port int, username, password, from string, to []string, opts ...EmailOption) *EmailNotifier {
	if host == "" || from == "" || len(to) == 0 {
		return nil
	}
	e := &EmailNotifier{
		host:     host,
		port:     port,
		username: username,
		password: password,
		from:     from,
		to:       to,
		logger:   slog.Default(),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

func (e *EmailNotifier) Name() string { return "email" }

func (e *EmailNotifier) Send(ctx context.Context, a alert.Alert, aiSuggestion string) error {
	msg, err := composeMessage(e.from, e.to, a, aiSuggestion)
	if err != nil {
		return fmt.Errorf("compose email: %w", err)
	}

	result := make(chan error, 1)
	go func() { result <- e.sendMail(ctx, msg) }()

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// sendMail dials the SMTP server, authenticates if credentials were
// given, and delivers msg. Each call opens and closes its own
// connection, following the donor's internal/email/smtp.go shape:
// implicit TLS on non-STARTTLS configuration, STARTTLS otherwise.
func (e *EmailNotifier) sendMail(ctx context.Context, msg []byte) error {
	addr := net.JoinHostPort(e.host, fmt.Sprintf("%d", e.port))

	dialTimeout := smtpDialTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < dialTimeout {
			dialTimeout = remaining
		}
	}
	dialer := &net.Dialer{Timeout: dialTimeout}

	var client *smtp.Client
	if !e.startTLS {
		conn, err := tls.DialWithDialer(dialer, "tcp", addr, &tls.Config{ServerName: e.host})
		if err != nil {
			return fmt.Errorf("dial SMTPS %s: %w", addr, err)
		}
		client, err = smtp.NewClient(conn, e.host)
		if err != nil {
			conn.Close()
			return fmt.Errorf("create SMTP client on %s: %w", addr, err)
		}
	} else {
		conn, err := dialer.DialContext(ctx, "tcp", addr)
		if err != nil {
			return fmt.Errorf("dial SMTP %s: %w", addr, err)
		}
		client, err = smtp.NewClient(conn, e.host)
		if err != nil {
			conn.Close()
			return fmt.Errorf("create SMTP client on %s: %w", addr, err)
		}
	}
	defer client.Close()

	if err := client.Hello("localhost"); err != nil {
		return fmt.Errorf("EHLO: %w", err)
	}

	if e.startTLS {
		if err := client.StartTLS(&tls.Config{ServerName: e.host}); err != nil {
			return fmt.Errorf("STARTTLS: %w", err)
		}
	}

	if e.username != "" && e.password != "" {
		if err := client.Auth(smtp.PlainAuth("", e.username, e.password, e.host)); err != nil {
			return fmt.Errorf("AUTH: %w", err)
		}
	}

	if err := client.Mail(e.from); err != nil {
		return fmt.Errorf("MAIL FROM: %w", err)
	}
	for _, rcpt := range e.to {
		if err := client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("RCPT TO %s: %w", rcpt, err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("DATA: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close DATA: %w", err)
	}

	return client.Quit()
}

// composeMessage builds a complete RFC 5322 multipart/alternative
// message with a plain-text fallback and an HTML body rendered from
// the alert's markdown template via goldmark, the same conversion the
// donor's internal/email/compose.go performs for outbound mail. The HTML
// body is framed by a border in the alert's priority color.
func composeMessage(from string, to []string, a alert.Alert, aiSuggestion string) ([]byte, error) {
	body, color := RenderEmailMarkdown(a, aiSuggestion)

	var htmlBuf bytes.Buffer
	if err := goldmark.Convert([]byte(body), &htmlBuf); err != nil {
		return nil, fmt.Errorf("render markdown to HTML: %w", err)
	}
	htmlBody := fmt.Sprintf(`<!DOCTYPE html><html><head><meta charset="utf-8"></head>`+
		`<body style="font-family: sans-serif; font-size: 14px; line-height: 1.5;">`+
		`<div style="border-left: 4px solid %s; padding-left: 12px;">%s</div></body></html>`,
		color, htmlBuf.String())

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "From: %s\r\n", from)
	fmt.Fprintf(&buf, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&buf, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", emailSubject(a)))
	fmt.Fprintf(&buf, "Date: %s\r\n", time.Now().UTC().Format(time.RFC1123Z))
	buf.WriteString("MIME-Version: 1.0\r\n")

	mw := multipart.NewWriter(&buf)
	fmt.Fprintf(&buf, "Content-Type: multipart/alternative; boundary=%q\r\n\r\n", mw.Boundary())

	plain, err := mw.CreatePart(textproto.MIMEHeader{"Content-Type": {"text/plain; charset=utf-8"}})
	if err != nil {
		return nil, err
	}
	if _, err := plain.Write([]byte(body)); err != nil {
		return nil, err
	}

	html, err := mw.CreatePart(textproto.MIMEHeader{"Content-Type": {"text/html; charset=utf-8"}})
	if err != nil {
		return nil, err
	}
	if _, err := html.Write([]byte(htmlBody)); err != nil {
		return nil, err
	}

	if err := mw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func emailSubject(a alert.Alert) string {
	prefix := fmt.Sprintf("[%s]", strings.ToUpper(a.Priority.String()))
	if a.Ticker != "" {
		return fmt.Sprintf("%s %s: %s", prefix, a.Ticker, a.Title)
	}
	return fmt.Sprintf("%s %s", prefix, a.Title)
}
