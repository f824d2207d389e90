package services

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/studyblocks/backend/internal/config"
	"github.com/studyblocks/backend/internal/models"
	"github.com/studyblocks/backend/pkg/logger"
)

// Notifier is the engine's view of the email collaborator: send one
// reminder, report success or failure. The scanner treats every failure
// identically (retry while the block stays inside the window).
type Notifier interface {
	Send(ctx context.Context, contact *Contact, block *models.StudyBlock) error
}

// EmailNotifier delivers reminders over SMTP.
type EmailNotifier struct {
	cfg *config.SMTPConfig
}

func NewEmailNotifier(cfg *config.SMTPConfig) *EmailNotifier {
	return &EmailNotifier{cfg: cfg}
}

func (n *EmailNotifier) Send(ctx context.Context, contact *Contact, block *models.StudyBlock) error {
	if !n.cfg.Enabled || n.cfg.Host == "" {
		return fmt.Errorf("smtp transport not configured")
	}

	subject := fmt.Sprintf("Reminder: %s starts at %s", block.Title, block.StartTime.Format("15:04"))
	body := n.buildBody(contact, block)
	message := n.buildMessage(contact.Email, subject, body)

	if err := n.send(ctx, contact.Email, message); err != nil {
		logger.Warn().Err(err).Str("block_id", block.ID).Msg("reminder email failed")
		return err
	}

	logger.Info().Str("block_id", block.ID).Str("recipient", contact.Email).Msg("reminder email sent")
	return nil
}

func (n *EmailNotifier) buildBody(contact *Contact, block *models.StudyBlock) string {
	var sb strings.Builder

	name := contact.Name
	if name == "" {
		name = "there"
	}

	sb.WriteString(fmt.Sprintf("Hi %s,\r\n\r\n", name))
	sb.WriteString(fmt.Sprintf("Your study block \"%s\" starts soon.\r\n\r\n", block.Title))
	sb.WriteString(fmt.Sprintf("Start: %s\r\n", block.StartTime.Format(time.RFC1123)))
	sb.WriteString(fmt.Sprintf("End:   %s\r\n", block.EndTime.Format(time.RFC1123)))
	sb.WriteString("\r\nGood luck!\r\n")

	return sb.String()
}

func (n *EmailNotifier) buildMessage(to, subject, body string) string {
	from := n.cfg.From
	if from == "" {
		from = n.cfg.Username
	}

	var message strings.Builder
	message.WriteString(fmt.Sprintf("From: %s\r\n", from))
	message.WriteString(fmt.Sprintf("To: %s\r\n", to))
	message.WriteString(fmt.Sprintf("Subject: %s\r\n", subject))
	message.WriteString("MIME-Version: 1.0\r\n")
	message.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	message.WriteString("\r\n")
	message.WriteString(body)

	return message.String()
}

// send dials with a timeout derived from the context deadline so a stalled
// mail server cannot hang a scanner tick.
func (n *EmailNotifier) send(ctx context.Context, to, message string) error {
	addr := fmt.Sprintf("%s:%d", n.cfg.Host, n.cfg.Port)

	timeout := 10 * time.Second
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}

	var auth smtp.Auth
	if n.cfg.Username != "" && n.cfg.Password != "" {
		auth = smtp.PlainAuth("", n.cfg.Username, n.cfg.Password, n.cfg.Host)
	}

	var conn net.Conn
	var err error
	if n.cfg.UseTLS {
		dialer := &tls.Dialer{
			NetDialer: &net.Dialer{Timeout: timeout},
			Config:    &tls.Config{ServerName: n.cfg.Host},
		}
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	} else {
		dialer := &net.Dialer{Timeout: timeout}
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return err
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, n.cfg.Host)
	if err != nil {
		return err
	}
	defer client.Close()

	if auth != nil {
		if err := client.Auth(auth); err != nil {
			return err
		}
	}

	from := n.cfg.From
	if from == "" {
		from = n.cfg.Username
	}
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
	if _, err := w.Write([]byte(message)); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}

	return client.Quit()
}
