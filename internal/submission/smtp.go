package submission

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"time"

	"github.com/zeegates/minig/internal/credential"
	"github.com/zeegates/minig/internal/model"
	"github.com/zeegates/minig/internal/wire"
)

const dialTimeout = 30 * time.Second

// SMTPSubmission submits messages over SMTP, authenticating as the
// configured account.
type SMTPSubmission struct {
	host          string
	port          string
	username      string
	password      string
	tls           bool
	senderAddress string
}

// NewSMTPSubmission creates an SMTP submitter. senderAddress is the
// authenticated user's address enforced on every outbound message.
func NewSMTPSubmission(host, port, username, password string, useTLS bool, senderAddress string) *SMTPSubmission {
	return &SMTPSubmission{
		host:          host,
		port:          port,
		username:      username,
		password:      password,
		tls:           useTLS,
		senderAddress: senderAddress,
	}
}

// NewSMTPSubmissionFromConfig builds the submitter from the application
// configuration, reading the account password from the system keyring.
func NewSMTPSubmissionFromConfig(cfg *model.AppConfig) (*SMTPSubmission, error) {
	password, err := credential.Get(credential.KeyAccountPassword)
	if err != nil {
		return nil, fmt.Errorf("loading account password: %w", err)
	}
	return NewSMTPSubmission(
		cfg.SMTP.Host, cfg.SMTP.Port,
		cfg.Account.Username, password,
		cfg.SMTP.TLS, cfg.Account.Email,
	), nil
}

// Submit sends the message.
func (s *SMTPSubmission) Submit(ctx context.Context, msg *wire.Message) error {
	return s.send(ctx, msg, false)
}

// SubmitWithDSN sends the message requesting SUCCESS, FAILURE, and
// DELAY delivery status notifications addressed back to the
// authenticated account.
func (s *SMTPSubmission) SubmitWithDSN(ctx context.Context, msg *wire.Message) error {
	return s.send(ctx, msg, true)
}

func (s *SMTPSubmission) send(_ context.Context, msg *wire.Message, dsn bool) error {
	raw, rcpts, err := prepare(msg, s.senderAddress)
	if err != nil {
		return err
	}

	client, err := s.dial()
	if err != nil {
		return err
	}
	defer client.Close()

	auth := smtp.PlainAuth("", s.username, s.password, s.host)
	if err := client.Auth(auth); err != nil {
		return fmt.Errorf("SMTP auth: %w", err)
	}

	if err := s.envelope(client, rcpts, dsn); err != nil {
		return err
	}

	writer, err := client.Data()
	if err != nil {
		return fmt.Errorf("SMTP DATA: %w", err)
	}
	if _, err := writer.Write(raw); err != nil {
		return fmt.Errorf("writing message body: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("closing message body: %w", err)
	}

	return client.Quit()
}

// dial connects with implicit TLS or STARTTLS depending on
// configuration.
func (s *SMTPSubmission) dial() (*smtp.Client, error) {
	addr := s.host + ":" + s.port
	tlsConfig := &tls.Config{ServerName: s.host}

	if s.tls {
		conn, err := tls.Dial("tcp", addr, tlsConfig)
		if err != nil {
			return nil, fmt.Errorf("TLS dial to %s: %w", addr, err)
		}
		client, err := smtp.NewClient(conn, s.host)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("creating SMTP client: %w", err)
		}
		return client, nil
	}

	conn, err := net.DialTimeout("tcp", addr, dialTimeout)
	if err != nil {
		return nil, fmt.Errorf("dial to %s: %w", addr, err)
	}
	client, err := smtp.NewClient(conn, s.host)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("creating SMTP client: %w", err)
	}
	if err := client.StartTLS(tlsConfig); err != nil {
		client.Close()
		return nil, fmt.Errorf("SMTP STARTTLS: %w", err)
	}
	return client, nil
}

// envelope issues MAIL FROM and RCPT TO, with DSN extension parameters
// when requested. net/smtp has no hook for ESMTP parameters, so the DSN
// path talks to the text protocol directly.
func (s *SMTPSubmission) envelope(client *smtp.Client, rcpts []string, dsn bool) error {
	if !dsn {
		if err := client.Mail(s.senderAddress); err != nil {
			return fmt.Errorf("SMTP MAIL FROM: %w", err)
		}
		for _, rcpt := range rcpts {
			if err := client.Rcpt(rcpt); err != nil {
				return fmt.Errorf("SMTP RCPT TO %s: %w", rcpt, err)
			}
		}
		return nil
	}

	if err := s.cmd(client, "MAIL FROM:<%s> RET=FULL", s.senderAddress); err != nil {
		return fmt.Errorf("SMTP MAIL FROM with DSN: %w", err)
	}
	for _, rcpt := range rcpts {
		err := s.cmd(client,
			"RCPT TO:<%s> NOTIFY=SUCCESS,FAILURE,DELAY ORCPT=rfc822;%s",
			rcpt, s.senderAddress,
		)
		if err != nil {
			return fmt.Errorf("SMTP RCPT TO %s with DSN: %w", rcpt, err)
		}
	}
	return nil
}

func (s *SMTPSubmission) cmd(client *smtp.Client, format string, args ...any) error {
	id, err := client.Text.Cmd(format, args...)
	if err != nil {
		return err
	}
	client.Text.StartResponse(id)
	defer client.Text.EndResponse(id)
	_, _, err = client.Text.ReadResponse(250)
	return err
}
