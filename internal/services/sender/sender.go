// Package sender turns queued email messages into SMTP deliveries. It
// runs inside the sender worker binary, consuming from the email queue.
package sender

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/ousashop/shop-backend/internal/lib/sl"
	"github.com/ousashop/shop-backend/internal/lib/smtp"
	"github.com/ousashop/shop-backend/internal/models"
)

// Service delivers one email per queued message.
type Service struct {
	log       *slog.Logger
	transport smtp.TransportInterface
}

// New creates the sender service.
func New(log *slog.Logger, transport smtp.TransportInterface) *Service {
	return &Service{log: log, transport: transport}
}

// HandleEmailMessage decodes a queued message and sends it. A decode
// failure is terminal (the message will never improve); a transport
// failure is returned so the delivery gets requeued.
func (s *Service) HandleEmailMessage(body []byte) error {
	const op = "sender.HandleEmailMessage"

	var msg models.EmailMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		s.log.Error("dropping undecodable email message", sl.Err(err))
		return nil
	}

	subject, text, err := renderEmail(msg)
	if err != nil {
		s.log.Error("dropping unrenderable email message", sl.Err(err),
			slog.String("kind", msg.Kind))
		return nil
	}

	if err := s.send(msg.Email, subject, text); err != nil {
		s.log.Error("failed to send email", sl.Err(err),
			slog.String("kind", msg.Kind))
		return fmt.Errorf("%s: %w", op, err)
	}

	s.log.Info("email sent", slog.String("kind", msg.Kind))
	return nil
}

func renderEmail(msg models.EmailMessage) (subject, text string, err error) {
	greeting := "Hello"
	if msg.FirstName != "" {
		greeting = "Hello " + msg.FirstName
	}

	switch msg.Kind {
	case models.EmailKindVerification:
		subject = "Confirm your email"
		text = fmt.Sprintf("%s,\n\nYour verification code is: %s\n\nIt expires in 10 minutes.\n",
			greeting, msg.Code)
	case models.EmailKindPasswordReset:
		subject = "Reset your password"
		text = fmt.Sprintf("%s,\n\nYour password reset code is: %s\n\nIt expires in 10 minutes.\nIf you did not request this, ignore this message.\n",
			greeting, msg.Code)
	default:
		return "", "", fmt.Errorf("unknown email kind %q", msg.Kind)
	}
	return subject, text, nil
}

func (s *Service) send(to, subject, text string) error {
	client, err := s.transport.Connect()
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	from := s.transport.GetSMTPUser()
	if err := client.Mail(from); err != nil {
		return err
	}
	if err := client.Rcpt(to); err != nil {
		return err
	}

	w, err := client.Data()
	if err != nil {
		return err
	}
	payload := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/plain; charset=\"utf-8\"\r\n\r\n%s",
		from, to, subject, text)
	if _, err := w.Write([]byte(payload)); err != nil {
		_ = w.Close()
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return client.Quit()
}
