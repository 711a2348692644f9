package magiclink

import (
	"bytes"
	"context"
	"crypto/tls"
	"io"
	"mime/multipart"
	"net"
	"net/smtp"
	"net/textproto"
	"time"
)

// Email is a helper for creating multipart (text and html) emails.
type Email struct {
	To      string
	Subject string
	Date    time.Time
	parts   []emailPart
}

type emailPart struct {
	contentType string
	body        string
}

// AddBody adds a content section to the email. The contentType should be a
// known type, such as "text/html" or "text/plain". If no contentType is
// provided, "text/plain" is used. Sections are written in the order added.
func (e *Email) AddBody(contentType, body string) {
	if contentType == "" {
		contentType = "text/plain"
	}
	e.parts = append(e.parts, emailPart{contentType: contentType, body: body})
}

// Write emits the Email to the specified writer.
func (e *Email) Write(w io.Writer) (int64, error) {
	return e.Buffer().WriteTo(w)
}

// Bytes returns the contents of the email as a series of bytes.
func (e *Email) Bytes() []byte {
	return e.Buffer().Bytes()
}

func (e *Email) Buffer() *bytes.Buffer {
	crlf := "\r\n"
	b := bytes.NewBuffer(nil)

	date := e.Date
	if date.IsZero() {
		date = time.Now().UTC()
	}
	b.WriteString("Date: " + date.Format(time.RFC822) + crlf)
	if e.To != "" {
		b.WriteString("To: " + e.To + crlf)
	}
	if e.Subject != "" {
		b.WriteString("Subject: " + e.Subject + crlf)
	}
	b.WriteString("MIME-Version: 1.0" + crlf)

	switch len(e.parts) {
	case 0:
		b.WriteString(crlf)
	case 1:
		b.WriteString("Content-Type: " + partContentType(e.parts[0].contentType) + crlf + crlf)
		b.WriteString(e.parts[0].body + crlf)
	default:
		mw := multipart.NewWriter(b)
		b.WriteString("Content-Type: multipart/alternative; boundary=" + mw.Boundary() + crlf + crlf)
		for _, p := range e.parts {
			pw, _ := mw.CreatePart(textproto.MIMEHeader{
				"Content-Type": {partContentType(p.contentType)},
			})
			io.WriteString(pw, p.body)
		}
		mw.Close()
	}

	return b
}

func partContentType(ct string) string {
	return ct + `; charset="UTF-8"`
}

// SMTPTransport delivers sign-in messages via e-mail.
type SMTPTransport struct {
	// UseSSL connects with an implicit TLS handshake (port 465) instead
	// of upgrading with STARTTLS.
	UseSSL bool
	TTL    time.Duration
	auth   smtp.Auth
	from   string
	addr   string
}

// NewSMTPTransport returns a new transport capable of sending emails via
// SMTP. addr should be in the form "host:port" of the email server.
func NewSMTPTransport(addr, from string, auth smtp.Auth) *SMTPTransport {
	return &SMTPTransport{
		addr: addr,
		auth: auth,
		from: from,
		TTL:  DefaultCodeTTL,
	}
}

// Compose builds the email for a recipient.
func (t *SMTPTransport) Compose(recipient, linkURL, code string) *Email {
	msg := ComposeMessage(linkURL, code, t.TTL)
	e := &Email{To: recipient, Subject: msg.Subject}
	e.AddBody("text/plain", msg.Text)
	e.AddBody("text/html", msg.HTML)
	return e
}

// Send sends an email to the address in recipient.
func (t *SMTPTransport) Send(ctx context.Context, recipient, linkURL, code string) error {
	host, _, err := net.SplitHostPort(t.addr)
	if err != nil {
		return err
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", t.addr)
	if err != nil {
		return err
	}
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}
	if t.UseSSL {
		conn = tls.Client(conn, &tls.Config{ServerName: host})
	}

	c, err := smtp.NewClient(conn, host)
	if err != nil {
		conn.Close()
		return err
	}
	defer c.Close()

	// Use STARTTLS if available
	if !t.UseSSL {
		if ok, _ := c.Extension("STARTTLS"); ok {
			if err := c.StartTLS(&tls.Config{ServerName: host}); err != nil {
				return err
			}
		}
	}

	// Use auth credentials if supported and provided
	if ok, _ := c.Extension("AUTH"); ok && t.auth != nil {
		if err := c.Auth(t.auth); err != nil {
			return err
		}
	}

	if err := c.Mail(t.from); err != nil {
		return err
	}
	if err := c.Rcpt(recipient); err != nil {
		return err
	}

	w, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := t.Compose(recipient, linkURL, code).Write(w); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}

	// Succeeded; quit nicely
	return c.Quit()
}
