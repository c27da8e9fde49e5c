package smtpmail

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"mime"
	"mime/multipart"
	"net/textproto"

	"github.com/dmitrymomot/notifykit/pkg/notification"
)

// buildMessage assembles the RFC 5322 message: multipart/alternative for
// text+html bodies, wrapped in multipart/mixed when attachments are
// present. Pure function, unit-testable without a relay.
func buildMessage(messageID, from, to string, content *notification.EmailContent) []byte {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "Message-ID: <%s>\r\n", messageID)
	fmt.Fprintf(&buf, "From: %s\r\n", from)
	fmt.Fprintf(&buf, "To: %s\r\n", to)
	fmt.Fprintf(&buf, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", content.Subject))
	buf.WriteString("MIME-Version: 1.0\r\n")

	if len(content.Attachments) == 0 {
		writeBody(&buf, content)
		return buf.Bytes()
	}

	mixed := multipart.NewWriter(&buf)
	fmt.Fprintf(&buf, "Content-Type: multipart/mixed; boundary=%q\r\n\r\n", mixed.Boundary())

	bodyPart, _ := mixed.CreatePart(textproto.MIMEHeader{})
	var bodyBuf bytes.Buffer
	writeBody(&bodyBuf, content)
	_, _ = bodyPart.Write(bodyBuf.Bytes())

	for _, att := range content.Attachments {
		header := textproto.MIMEHeader{}
		contentType := att.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		header.Set("Content-Type", contentType)
		header.Set("Content-Transfer-Encoding", "base64")
		header.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", att.Name))

		part, _ := mixed.CreatePart(header)
		_, _ = part.Write([]byte(base64.StdEncoding.EncodeToString(att.Content)))
	}
	_ = mixed.Close()

	return buf.Bytes()
}

// writeBody emits the body section: a single part when only one body kind
// is set, multipart/alternative when both text and html are present.
func writeBody(buf *bytes.Buffer, content *notification.EmailContent) {
	switch {
	case content.HTMLBody != "" && content.TextBody != "":
		alt := multipart.NewWriter(buf)
		fmt.Fprintf(buf, "Content-Type: multipart/alternative; boundary=%q\r\n\r\n", alt.Boundary())

		textPart, _ := alt.CreatePart(textproto.MIMEHeader{
			"Content-Type": {"text/plain; charset=utf-8"},
		})
		_, _ = textPart.Write([]byte(content.TextBody))

		htmlPart, _ := alt.CreatePart(textproto.MIMEHeader{
			"Content-Type": {"text/html; charset=utf-8"},
		})
		_, _ = htmlPart.Write([]byte(content.HTMLBody))
		_ = alt.Close()
	case content.HTMLBody != "":
		buf.WriteString("Content-Type: text/html; charset=utf-8\r\n\r\n")
		buf.WriteString(content.HTMLBody)
	default:
		buf.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
		buf.WriteString(content.TextBody)
	}
}
