package email

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wneessen/go-mail"

	"github.com/rewired-gh/aurorawatch/internal/models"
)

func testConfig() Config {
	return Config{
		Host:     "smtp.example.com",
		Port:     587,
		Username: "watcher@example.com",
		Password: "secret",
		From:     "watcher@example.com",
		To:       []string{"observer@example.com"},
		Timeout:  5 * time.Second,
	}
}

func testReport(kind models.MessageKind, kp float64, visible bool) models.Report {
	cst := time.FixedZone("CST", -6*3600)
	return models.Report{
		Kind:     kind,
		Observer: models.ObserverLocation{Name: "East Peoria, Illinois", Latitude: 40.6664, Longitude: -89.5890},
		Reading: models.IndexReading{
			Value:         kp,
			RawObservedAt: "2024-01-15 12:00:00",
		},
		Verdict: models.VisibilityVerdict{
			IsVisible:        visible,
			BoundaryLatitude: 65,
			Description:      "Kp=3.7, Visible south to 65°N",
		},
		KpThreshold:     4,
		Cooldown:        time.Hour,
		CheckInterval:   30 * time.Minute,
		DailyReportTime: "12:00",
		GeneratedAt:     time.Date(2024, 1, 15, 18, 0, 0, 0, cst),
	}
}

func TestSubject(t *testing.T) {
	tests := []struct {
		kind models.MessageKind
		kp   float64
		want string
	}{
		{models.MessageAlert, 6, "Aurora Alert! Kp=6.0 - Visible from your location!"},
		{models.MessageDailyReport, 3.67, "Daily Aurora Report - Kp=3.7"},
		{models.MessageStartupNotice, 0, "Aurora Monitoring System Started"},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			assert.Equal(t, tt.want, Subject(testReport(tt.kind, tt.kp, false)))
		})
	}
}

func TestCompose_DailyReport(t *testing.T) {
	c, err := NewClient(testConfig())
	require.NoError(t, err)

	body, err := c.Compose(testReport(models.MessageDailyReport, 3.67, false), true)
	require.NoError(t, err)

	assert.Contains(t, body, "update for East Peoria, Illinois")
	assert.Contains(t, body, "Current Conditions (as of 2024-01-15 06:00 PM CST)")
	assert.Contains(t, body, "- Kp Index: 3.7")
	assert.Contains(t, body, "- Kp=3.7, Visible south to 65°N")
	assert.Contains(t, body, "- Your Location: 40.67°N, 89.59°W")
	assert.Contains(t, body, "- Data From: 2024-01-15 12:00 PM UTC")
	assert.Contains(t, body, "NOT VISIBLE")
	assert.Contains(t, body, "Kp >= 4.")
	assert.Contains(t, body, "Keep watching the skies!")
	assert.Contains(t, body, "Next report: Tomorrow at 12:00 CST")
	assert.Contains(t, body, "The attached map")
}

func TestCompose_DailyReportUnavailable(t *testing.T) {
	c, err := NewClient(testConfig())
	require.NoError(t, err)
	report := testReport(models.MessageDailyReport, 0, false)
	report.Reading = models.UnavailableReading()

	body, err := c.Compose(report, false)
	require.NoError(t, err)
	assert.Contains(t, body, "- Kp Index: 0.0")
	assert.Contains(t, body, "- Data From: Unknown")
	assert.NotContains(t, body, "The attached map")
}

func TestCompose_Alert(t *testing.T) {
	c, err := NewClient(testConfig())
	require.NoError(t, err)

	body, err := c.Compose(testReport(models.MessageAlert, 6, true), false)
	require.NoError(t, err)
	assert.Contains(t, body, "AURORA ALERT!")
	assert.Contains(t, body, "- Kp Index: 6.0")
	assert.Contains(t, body, "Alert Time: 2024-01-15 06:00 PM CST")
	assert.Contains(t, body, "could not be generated")
}

func TestCompose_StartupNotice(t *testing.T) {
	c, err := NewClient(testConfig())
	require.NoError(t, err)

	body, err := c.Compose(testReport(models.MessageStartupNotice, 0, false), false)
	require.NoError(t, err)
	assert.Contains(t, body, "- Monitoring Location: East Peoria, Illinois")
	assert.Contains(t, body, "- Alert Threshold: Kp >= 4")
	assert.Contains(t, body, "every 30 minutes.")
	assert.Contains(t, body, "Daily reports sent at 12:00 CST.")
	assert.Contains(t, body, "Cooldown period: 1 hour between alerts.")
	assert.Contains(t, body, "(40.7°)")
}

func TestCompose_UnknownKind(t *testing.T) {
	c, err := NewClient(testConfig())
	require.NoError(t, err)

	_, err = c.Compose(testReport("weekly", 0, false), false)
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}

func TestNewMessage_HeadersAndAttachment(t *testing.T) {
	c, err := NewClient(testConfig())
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "aurora_forecast_abc.html")
	require.NoError(t, os.WriteFile(path, []byte("<html></html>"), 0o644))

	msg, err := c.NewMessage(testReport(models.MessageAlert, 6, true), path)
	require.NoError(t, err)

	assert.Equal(t, []string{"Aurora Alert! Kp=6.0 - Visible from your location!"}, msg.GetGenHeader(mail.HeaderSubject))
	rcpts, err := msg.GetRecipients()
	require.NoError(t, err)
	assert.Equal(t, []string{"observer@example.com"}, rcpts)

	attachments := msg.GetAttachments()
	require.Len(t, attachments, 1)
	assert.Equal(t, "aurora_forecast_abc.html", attachments[0].Name)
}

func TestNewMessage_NoAttachmentWithoutMap(t *testing.T) {
	c, err := NewClient(testConfig())
	require.NoError(t, err)

	msg, err := c.NewMessage(testReport(models.MessageStartupNotice, 0, false), "")
	require.NoError(t, err)
	assert.Empty(t, msg.GetAttachments())
}

func TestSend_WrapsTransportFailure(t *testing.T) {
	c, err := NewClient(testConfig())
	require.NoError(t, err)

	var sent *mail.Msg
	c.dial = func(_ context.Context, msg *mail.Msg) error {
		sent = msg
		return errors.New("connection refused")
	}

	err = c.Send(context.Background(), testReport(models.MessageStartupNotice, 0, false), "")
	assert.ErrorIs(t, err, models.ErrNotifierFailure)
	assert.NotNil(t, sent)
}

func TestSend_Success(t *testing.T) {
	c, err := NewClient(testConfig())
	require.NoError(t, err)

	calls := 0
	c.dial = func(_ context.Context, _ *mail.Msg) error {
		calls++
		return nil
	}
	require.NoError(t, c.Send(context.Background(), testReport(models.MessageDailyReport, 2, false), ""))
	assert.Equal(t, 1, calls)
}

func TestSMTPClient_ImplicitTLSStartsWithHandshake(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	first := make(chan byte, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
		buf := make([]byte, 1)
		if _, err := conn.Read(buf); err == nil {
			first <- buf[0]
		}
	}()

	cfg := testConfig()
	cfg.Host = "127.0.0.1"
	cfg.Port = ln.Addr().(*net.TCPAddr).Port
	c, err := NewClient(cfg)
	require.NoError(t, err)
	client, err := c.smtpClient(true)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	go func() { _ = client.DialWithContext(ctx) }()

	select {
	case b := <-first:
		// 0x16 is a TLS handshake record; a STARTTLS client would wait for the greeting.
		assert.Equal(t, byte(0x16), b)
	case <-time.After(4 * time.Second):
		t.Fatal("client sent nothing before the server greeting")
	}
}

func TestSMTPClient_KeepsConfiguredPort(t *testing.T) {
	for _, port := range []int{465, 587} {
		cfg := testConfig()
		cfg.Port = port
		c, err := NewClient(cfg)
		require.NoError(t, err)
		client, err := c.smtpClient(port == implicitTLSPort)
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("smtp.example.com:%d", port), client.ServerAddr())
	}
}

func TestNewClient_Validation(t *testing.T) {
	cfg := testConfig()
	cfg.Host = ""
	_, err := NewClient(cfg)
	assert.ErrorIs(t, err, models.ErrInvalidInput)

	cfg = testConfig()
	cfg.To = nil
	_, err = NewClient(cfg)
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}

func TestNewMessage_InvalidRecipient(t *testing.T) {
	cfg := testConfig()
	cfg.To = []string{"not an address"}
	c, err := NewClient(cfg)
	require.NoError(t, err)

	_, err = c.NewMessage(testReport(models.MessageStartupNotice, 0, false), "")
	assert.Error(t, err)
}

func TestHumanDuration(t *testing.T) {
	assert.Equal(t, "1 hour", humanDuration(time.Hour))
	assert.Equal(t, "2 hours", humanDuration(2*time.Hour))
	assert.Equal(t, "30 minutes", humanDuration(30*time.Minute))
	assert.Equal(t, "90 minutes", humanDuration(90*time.Minute))
	assert.Equal(t, "45 seconds", humanDuration(45*time.Second))
}
