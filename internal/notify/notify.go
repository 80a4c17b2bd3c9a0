// Package notify delivers messages to vehicle owners over push (MQTT), SMS
// (Twilio) and email (SMTP), and stores reminders for later delivery.
//
// Every send returns a Result; delivery problems are reported there and never
// as an error or a panic.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/ukydev/carbuddy/internal/models"
	"github.com/ukydev/carbuddy/internal/telemetry"
)

// Channels.
const (
	ChannelPush  = "push"
	ChannelSMS   = "sms"
	ChannelEmail = "email"
)

// Result statuses.
const (
	StatusSent      = "sent"
	StatusFailed    = "failed"
	StatusScheduled = "scheduled"
)

const pushTitle = "CarBuddy Alert"

// Result is the outcome of one delivery attempt.
type Result struct {
	Channel string    `json:"channel"`
	Status  string    `json:"status"`
	ID      string    `json:"id,omitempty"`
	Error   string    `json:"error,omitempty"`
	At      time.Time `json:"at"`
}

// OK reports whether the message was sent or scheduled.
func (r Result) OK() bool {
	return r.Status == StatusSent || r.Status == StatusScheduled
}

// Publisher sends a payload to a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

// SMSSender sends a text message and returns the provider's message ID.
type SMSSender interface {
	SendSMS(ctx context.Context, to, body string) (string, error)
}

// Mailer sends a plain-text email.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// Store persists notifications.
type Store interface {
	InsertNotification(ctx context.Context, n models.Notification) (primitive.ObjectID, error)
}

// PushPayload is the JSON document published for a push notification.
type PushPayload struct {
	ID        string            `json:"id"`
	UserID    string            `json:"user_id"`
	Title     string            `json:"title"`
	Body      string            `json:"body"`
	Data      map[string]string `json:"data"`
	Timestamp time.Time         `json:"timestamp"`
}

// PushTopic is the MQTT topic a user's devices subscribe to.
func PushTopic(userID string) string {
	return fmt.Sprintf("carbuddy/users/%s/notifications", userID)
}

// Dispatcher routes messages to the configured channels. Any channel may be
// nil; sends on it fail with a reason.
type Dispatcher struct {
	publisher Publisher
	sms       SMSSender
	mailer    Mailer
	store     Store
	metrics   *telemetry.Metrics
	now       func() time.Time
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(publisher Publisher, sms SMSSender, mailer Mailer, store Store, metrics *telemetry.Metrics) *Dispatcher {
	return &Dispatcher{
		publisher: publisher,
		sms:       sms,
		mailer:    mailer,
		store:     store,
		metrics:   metrics,
		now:       time.Now,
	}
}

// SendPush publishes message to the user's devices.
func (d *Dispatcher) SendPush(ctx context.Context, userID, message string) Result {
	return d.SendPushData(ctx, userID, message, nil)
}

// SendPushData publishes message with extra key/value data.
func (d *Dispatcher) SendPushData(ctx context.Context, userID, message string, data map[string]string) Result {
	if d.publisher == nil {
		return d.finish(ctx, ChannelPush, "", errors.New("push channel not configured"), log.Fields{"user_id": userID})
	}
	if data == nil {
		data = map[string]string{}
	}
	payload := PushPayload{
		ID:        uuid.NewString(),
		UserID:    userID,
		Title:     pushTitle,
		Body:      message,
		Data:      data,
		Timestamp: d.now().UTC(),
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return d.finish(ctx, ChannelPush, "", err, log.Fields{"user_id": userID})
	}
	err = d.publisher.Publish(ctx, PushTopic(userID), b)
	return d.finish(ctx, ChannelPush, payload.ID, err, log.Fields{"user_id": userID})
}

// SendSMS texts message to phone.
func (d *Dispatcher) SendSMS(ctx context.Context, phone, message string) Result {
	fields := log.Fields{"phone": maskPhone(phone)}
	if d.sms == nil {
		return d.finish(ctx, ChannelSMS, "", errors.New("sms channel not configured"), fields)
	}
	if strings.TrimSpace(phone) == "" {
		return d.finish(ctx, ChannelSMS, "", errors.New("no phone number"), fields)
	}
	id, err := d.sms.SendSMS(ctx, phone, message)
	return d.finish(ctx, ChannelSMS, id, err, fields)
}

// SendEmail emails body to address.
func (d *Dispatcher) SendEmail(ctx context.Context, address, subject, body string) Result {
	fields := log.Fields{"email": address}
	if d.mailer == nil {
		return d.finish(ctx, ChannelEmail, "", errors.New("email channel not configured"), fields)
	}
	if !strings.Contains(address, "@") {
		return d.finish(ctx, ChannelEmail, "", fmt.Errorf("invalid email address %q", address), fields)
	}
	err := d.mailer.Send(ctx, address, subject, body)
	id := ""
	if err == nil {
		id = uuid.NewString()
	}
	return d.finish(ctx, ChannelEmail, id, err, fields)
}

// ScheduleNotification stores a push reminder to be delivered at sendTime.
func (d *Dispatcher) ScheduleNotification(ctx context.Context, userID, message string, sendTime time.Time) Result {
	return d.Schedule(ctx, models.Notification{
		UserID:  userID,
		Message: message,
		Type:    "maintenance_reminder",
		SendAt:  sendTime,
	})
}

// Schedule stores n as a pending push reminder.
func (d *Dispatcher) Schedule(ctx context.Context, n models.Notification) Result {
	fields := log.Fields{"user_id": n.UserID, "send_at": n.SendAt}
	if d.store == nil {
		return d.finishScheduled(ctx, "", errors.New("notification store not configured"), fields)
	}
	n.Channel = ChannelPush
	n.Status = models.NotificationPending
	id, err := d.store.InsertNotification(ctx, n)
	if err != nil {
		return d.finishScheduled(ctx, "", err, fields)
	}
	return d.finishScheduled(ctx, id.Hex(), nil, fields)
}

func (d *Dispatcher) finishScheduled(ctx context.Context, id string, err error, fields log.Fields) Result {
	return d.result(ctx, ChannelPush, id, err, StatusScheduled, fields)
}

func (d *Dispatcher) finish(ctx context.Context, channel, id string, err error, fields log.Fields) Result {
	return d.result(ctx, channel, id, err, StatusSent, fields)
}

func (d *Dispatcher) result(ctx context.Context, channel, id string, err error, okStatus string, fields log.Fields) Result {
	res := Result{Channel: channel, ID: id, At: d.now()}
	logger := log.WithFields(fields).WithField("channel", channel)
	if err != nil {
		res.Status = StatusFailed
		res.Error = err.Error()
		logger.WithError(err).Warn("Notification failed")
	} else {
		res.Status = okStatus
		logger.WithFields(log.Fields{"id": id, "status": okStatus}).Debug("Notification accepted")
	}
	d.metrics.Notification(ctx, channel, res.Status)
	return res
}

func maskPhone(phone string) string {
	if len(phone) <= 4 {
		return phone
	}
	return strings.Repeat("*", len(phone)-4) + phone[len(phone)-4:]
}
