package mail

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"strconv"
)

// SMTPSender delivers documents through a plain SMTP relay (Mailpit in
// development).
type SMTPSender struct {
	addr string
	from string
}

// NewSMTPSender constructs a sender for host:port, unauthenticated.
func NewSMTPSender(host string, port int, from string) *SMTPSender {
	return &SMTPSender{addr: net.JoinHostPort(host, strconv.Itoa(port)), from: from}
}

func (s *SMTPSender) Send(_ context.Context, doc OutboundDocument) error {
	msg, err := buildMessage(s.from, doc)
	if err != nil {
		return fmt.Errorf("build message: %w", err)
	}
	if err := smtp.SendMail(s.addr, nil, s.from, []string{doc.Recipient}, msg); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

const mimeBoundary = "gestio-doc"

// buildMessage assembles the RFC 5322 message. The subject is Q-encoded
// because French subjects carry accents and the euro sign.
func buildMessage(from string, doc OutboundDocument) ([]byte, error) {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "From: %s\r\n", from)
	fmt.Fprintf(&buf, "To: %s\r\n", doc.Recipient)
	fmt.Fprintf(&buf, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", doc.Subject))
	buf.WriteString("MIME-Version: 1.0\r\n")

	if len(doc.PDF) == 0 {
		buf.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
		buf.WriteString(doc.Body)
		return buf.Bytes(), nil
	}

	fmt.Fprintf(&buf, "Content-Type: multipart/mixed; boundary=%s\r\n\r\n", mimeBoundary)
	fmt.Fprintf(&buf, "--%s\r\n", mimeBoundary)
	buf.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
	buf.WriteString(doc.Body)
	buf.WriteString("\r\n")

	fmt.Fprintf(&buf, "--%s\r\n", mimeBoundary)
	buf.WriteString("Content-Type: application/pdf\r\n")
	fmt.Fprintf(&buf, "Content-Disposition: attachment; filename=%q\r\n", doc.Numero+".pdf")
	buf.WriteString("Content-Transfer-Encoding: base64\r\n\r\n")

	encoded := base64.StdEncoding.EncodeToString(doc.PDF)
	for len(encoded) > 76 {
		buf.WriteString(encoded[:76])
		buf.WriteString("\r\n")
		encoded = encoded[76:]
	}
	buf.WriteString(encoded)
	buf.WriteString("\r\n")
	fmt.Fprintf(&buf, "--%s--\r\n", mimeBoundary)
	return buf.Bytes(), nil
}
