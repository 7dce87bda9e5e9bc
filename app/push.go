package app

import (
	"context"
	"errors"

	"firebase.google.com/go/v4/messaging"

	"github.com/jaleski01/DESVICIAR-VERCEL/logger"
)

// ErrTokenUnregistered means the device token is gone and should be dropped.
var ErrTokenUnregistered = errors.New("push token unregistered")

// ErrPushSkipped means no message left the process.
var ErrPushSkipped = errors.New("push skipped: no messaging client")

type PushMessage struct {
	Token string
	Title string
	Body  string
	Data  map[string]string
}

type Pusher interface {
	Push(ctx context.Context, msg PushMessage) error
}

type FCMPusher struct {
	client *messaging.Client
}

func NewFCMPusher(client *messaging.Client) *FCMPusher {
	return &FCMPusher{client: client}
}

func (p *FCMPusher) Push(ctx context.Context, msg PushMessage) error {
	_, err := p.client.Send(ctx, &messaging.Message{
		Token: msg.Token,
		Notification: &messaging.Notification{
			Title: msg.Title,
			Body:  msg.Body,
		},
		Data: msg.Data,
	})
	if messaging.IsUnregistered(err) {
		return ErrTokenUnregistered
	}
	return err
}

// LogPusher stands in for FCM when Firebase is not configured.
type LogPusher struct {
	Log *logger.Logger
}

func (p LogPusher) Push(_ context.Context, msg PushMessage) error {
	if p.Log != nil {
		p.Log.Info("push skipped: no messaging client", "title", msg.Title)
	}
	return ErrPushSkipped
}
