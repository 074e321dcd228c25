package notification

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"firebase.google.com/go/v4/messaging"
	"github.com/rs/zerolog"
)

// PushSender delivers a titled message to one user's devices.
type PushSender interface {
	SendPush(ctx context.Context, userID, title, body string, data map[string]string) error
}

// TopicForUser is the FCM topic a user's devices subscribe to.
func TopicForUser(userID string) string {
	return "user-" + userID
}

type fcmClient interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

// FCMSender publishes to the user's topic through Firebase Cloud Messaging.
type FCMSender struct {
	client fcmClient
	logger zerolog.Logger
}

func NewFCMSender(client *messaging.Client, logger zerolog.Logger) *FCMSender {
	return &FCMSender{client: client, logger: logger}
}

func (s *FCMSender) SendPush(ctx context.Context, userID, title, body string, data map[string]string) error {
	msg := &messaging.Message{
		Topic: TopicForUser(userID),
		Notification: &messaging.Notification{
			Title: title,
			Body:  body,
		},
		Data: data,
	}
	id, err := s.client.Send(ctx, msg)
	if err != nil {
		return fmt.Errorf("fcm send to %s: %w", msg.Topic, err)
	}
	s.logger.Debug().Str("message_id", id).Str("topic", msg.Topic).Msg("push sent")
	return nil
}

// LogSender writes notifications to the log. It is used when push delivery
// is disabled.
type LogSender struct {
	Logger zerolog.Logger
}

func (s LogSender) SendPush(_ context.Context, userID, title, body string, _ map[string]string) error {
	s.Logger.Info().
		Str("user_id", userID).
		Str("title", title).
		Str("body", body).
		Msg("notification")
	return nil
}

// PushCall records a single SendPush call.
type PushCall struct {
	UserID string
	Title  string
	Body   string
	Data   map[string]string
}

// MockPushSender is a test double for PushSender.
type MockPushSender struct {
	mu         sync.Mutex
	calls      []PushCall
	ShouldFail bool
	FailError  string
}

func (m *MockPushSender) SendPush(_ context.Context, userID, title, body string, data map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, PushCall{UserID: userID, Title: title, Body: body, Data: data})
	if m.ShouldFail {
		return errors.New(m.FailError)
	}
	return nil
}

func (m *MockPushSender) Calls() []PushCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]PushCall, len(m.calls))
	copy(out, m.calls)
	return out
}

func (m *MockPushSender) SetFail(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ShouldFail = fail
}
