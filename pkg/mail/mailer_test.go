package mail

import (
	"bytes"
	"context"
	"crypto/tls"
	"io"
	"net"
	"net/smtp"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeSMTPClient struct {
	from   string
	rcpts  []string
	data   bytes.Buffer
	closed bool
	quit   bool
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

func (f *fakeSMTPClient) Mail(from string) error { f.from = from; return nil }
func (f *fakeSMTPClient) Rcpt(rcpt string) error { f.rcpts = append(f.rcpts, rcpt); return nil }
func (f *fakeSMTPClient) Data() (io.WriteCloser, error) {
	return nopWriteCloser{&f.data}, nil
}
func (f *fakeSMTPClient) Quit() error                     { f.quit = true; return nil }
func (f *fakeSMTPClient) Close() error                    { f.closed = true; return nil }
func (f *fakeSMTPClient) StartTLS(*tls.Config) error      { return nil }
func (f *fakeSMTPClient) Auth(smtp.Auth) error            { return nil }
func (f *fakeSMTPClient) Extension(string) (bool, string) { return false, "" }

func newFakeMailer(client *fakeSMTPClient) *smtpMailer {
	return &smtpMailer{
		cfg: SMTPSettings{Enabled: true, Host: "smtp.example.com", Port: 587, From: "noreply@example.com"},
		dialFn: func(ctx context.Context, cfg SMTPSettings) (net.Conn, smtpClient, error) {
			server, clientConn := net.Pipe()
			_ = server.Close()
			return clientConn, client, nil
		},
		authFn: func(smtpClient, SMTPSettings) error { return nil },
	}
}

func TestSendDisabledReturnsSentinel(t *testing.T) {
	mailer, err := NewSMTPMailer(SMTPSettings{Enabled: false})
	require.NoError(t, err)

	err = mailer.Send(context.Background(), Message{To: []string{"a@b.com"}})
	require.ErrorIs(t, err, ErrSMTPDisabled)
}

func TestNewSMTPMailerValidatesConfig(t *testing.T) {
	_, err := NewSMTPMailer(SMTPSettings{Enabled: true, Port: 587})
	require.Error(t, err)

	_, err = NewSMTPMailer(SMTPSettings{Enabled: true, Host: "smtp.example.com"})
	require.Error(t, err)
}

func TestSendDeduplicatesRecipients(t *testing.T) {
	client := &fakeSMTPClient{}
	mailer := newFakeMailer(client)

	err := mailer.Send(context.Background(), Message{
		To:      []string{"one@example.com", " one@example.com ", "two@example.com", ""},
		Subject: "Invitation",
		Text:    "Bonjour",
	})
	require.NoError(t, err)
	require.Equal(t, []string{"one@example.com", "two@example.com"}, client.rcpts)
	require.True(t, client.quit)
}

func TestSendRejectsInvalidAddresses(t *testing.T) {
	client := &fakeSMTPClient{}
	mailer := newFakeMailer(client)

	err := mailer.Send(context.Background(), Message{To: []string{"not-an-address"}, Text: "x"})
	require.Error(t, err)
}

func TestFormatMessagePlainText(t *testing.T) {
	raw := formatMessage("noreply@example.com", []string{"m@example.com"}, Message{
		Subject: "Sujet\r\navec retour",
		Text:    "corps",
	})
	require.Contains(t, raw, "Subject: Sujet avec retour")
	require.Contains(t, raw, "Content-Type: text/plain; charset=UTF-8")
	require.Contains(t, raw, "corps")
	require.NotContains(t, raw, "multipart/alternative")
}

func TestFormatMessageMultipart(t *testing.T) {
	raw := formatMessage("noreply@example.com", []string{"m@example.com"}, Message{
		Subject: "Invitation",
		Text:    "lien: https://example.com",
		HTML:    "<p>lien</p>",
	})
	require.Contains(t, raw, "multipart/alternative")
	require.Contains(t, raw, "text/html")
	require.Contains(t, raw, "<p>lien</p>")
	require.Contains(t, raw, "lien: https://example.com")
}
