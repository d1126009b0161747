package notification

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/smtp"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestService_Channels(t *testing.T) {
	s := NewService(Config{SlackWebhookURL: "http://x", WebhookURLs: []string{"http://y"}}, discardLogger())
	assert.True(t, s.HasChannel(ChannelSlack))
	assert.True(t, s.HasChannel(ChannelWebhook))
	assert.False(t, s.HasChannel(ChannelEmail))

	assert.NoError(t, NewService(Config{}, discardLogger()).Send(context.Background(), Message{Title: "noop"}))
}

func TestSendWebhookAndSlack(t *testing.T) {
	var (
		mu     sync.Mutex
		events []string
		bodies []map[string]any
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		mu.Lock()
		events = append(events, r.Header.Get("X-ContractLens-Event"))
		bodies = append(bodies, body)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := NewService(Config{SlackWebhookURL: srv.URL, WebhookURLs: []string{srv.URL}}, discardLogger())
	err := s.SendSyncFailed(context.Background(), "prod", "marketplace_products", "AccessDenied")
	require.NoError(t, err)

	require.Len(t, bodies, 2)
	assert.Contains(t, bodies[0], "attachments")
	assert.Equal(t, string(EventSyncFailed), events[1])
	assert.Equal(t, string(EventSyncFailed), bodies[1]["event_type"])
}

func TestSendWebhook_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	s := NewService(Config{WebhookURLs: []string{srv.URL}}, discardLogger())
	err := s.Send(context.Background(), Message{EventType: EventRenewalDue, Title: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
}

func TestSendEmail_UsesMessageRecipients(t *testing.T) {
	s := NewService(Config{EmailSMTPHost: "smtp.example.com", EmailSMTPPort: 25, EmailFrom: "noreply@example.com"}, discardLogger())

	var gotTo []string
	var gotBody string
	s.sendMail = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		assert.Equal(t, "smtp.example.com:25", addr)
		gotTo = to
		gotBody = string(msg)
		return nil
	}

	msg := ReminderMessage(RenewalReminder{
		ContractName: "Datadog",
		Client:       "Datadog Inc",
		EndDate:      time.Date(2025, 1, 25, 0, 0, 0, 0, time.UTC),
		DaysLeft:     1,
		Value:        decimal.NewFromInt(1200),
		Recipients:   []string{"owner@example.com"},
	})
	require.NoError(t, s.Send(context.Background(), msg))

	assert.Equal(t, []string{"owner@example.com"}, gotTo)
	assert.Contains(t, gotBody, "Subject: [ContractLens] Contract renewal due: Datadog")
	assert.Contains(t, gotBody, "expires tomorrow")
	assert.Contains(t, gotBody, "$1200.00")
}

func TestReminderMessage_Severity(t *testing.T) {
	assert.Equal(t, "high", ReminderMessage(RenewalReminder{DaysLeft: 30}).Severity)
	assert.Equal(t, "medium", ReminderMessage(RenewalReminder{DaysLeft: 45}).Severity)
	assert.Contains(t, ReminderMessage(RenewalReminder{DaysLeft: 0}).Body, "expires today")
}
