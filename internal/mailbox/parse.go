package mailbox

import (
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"strings"

	"github.com/cuongbtq/invoice-verifier/internal/domain"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
)

const pdfContentType = "application/pdf"

// ParseMessage reads a raw RFC 5322 message and keeps its PDF attachments
func ParseMessage(r io.Reader) (domain.Email, error) {
	mr, err := mail.CreateReader(r)
	if err != nil {
		return domain.Email{}, fmt.Errorf("read message: %w", err)
	}
	defer mr.Close()

	var email domain.Email
	email.MessageID, _ = mr.Header.MessageID()
	email.Subject, _ = mr.Header.Subject()
	email.ReceivedAt, _ = mr.Header.Date()
	if from, err := mr.Header.AddressList("From"); err == nil && len(from) > 0 {
		email.Sender = formatAddress(from[0])
	} else {
		email.Sender = mr.Header.Get("From")
	}
	if !email.ReceivedAt.IsZero() {
		email.ReceivedAt = email.ReceivedAt.UTC()
	}

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return email, fmt.Errorf("read message part: %w", err)
		}

		filename, ok := pdfFilename(part.Header)
		if !ok {
			continue
		}
		data, err := io.ReadAll(part.Body)
		if err != nil {
			return email, fmt.Errorf("read attachment %s: %w", filename, err)
		}
		email.Attachments = append(email.Attachments, domain.EmailAttachment{
			Filename: filename,
			Data:     data,
		})
	}

	return email, nil
}

// pdfFilename reports whether a part is a PDF, by name suffix or content
// type, and the name it should be stored under
func pdfFilename(h mail.PartHeader) (string, bool) {
	var filename string
	if ah, ok := h.(*mail.AttachmentHeader); ok {
		filename, _ = ah.Filename()
	}

	mediaType, params, err := mime.ParseMediaType(h.Get("Content-Type"))
	if err != nil {
		mediaType = ""
	}
	if filename == "" {
		filename = params["name"]
	}
	filename = filepath.Base(strings.TrimSpace(filename))
	if filename == "." || filename == "/" {
		filename = ""
	}

	isPDF := strings.EqualFold(filepath.Ext(filename), ".pdf") || strings.EqualFold(mediaType, pdfContentType)
	if !isPDF {
		return "", false
	}
	if !strings.EqualFold(filepath.Ext(filename), ".pdf") {
		filename = strings.TrimSuffix(filename, filepath.Ext(filename))
		if filename == "" {
			filename = "attachment"
		}
		filename += ".pdf"
	}
	return filename, true
}

func formatAddress(a *mail.Address) string {
	if a.Name == "" {
		return a.Address
	}
	return fmt.Sprintf("%s <%s>", a.Name, a.Address)
}
