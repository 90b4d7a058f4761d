package notify

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"task-manager/pkg/logger"
)

const (
	defaultQueueSize  = 64
	defaultMaxRetries = 3
	sendTimeout       = 10 * time.Second
)

// Dispatcher queues events and delivers them from a single goroutine.
type Dispatcher struct {
	mailer     Mailer
	queue      chan Event
	maxRetries uint64
	newBackOff func() backoff.BackOff
}

func NewDispatcher(mailer Mailer) *Dispatcher {
	return &Dispatcher{
		mailer:     mailer,
		queue:      make(chan Event, defaultQueueSize),
		maxRetries: defaultMaxRetries,
		newBackOff: func() backoff.BackOff { return backoff.NewExponentialBackOff() },
	}
}

// Publish enqueues e. When the queue is full the event is dropped.
func (d *Dispatcher) Publish(e Event) {
	select {
	case d.queue <- e:
	default:
		logger.ErrorLogger.Error("Notification queue full, dropping event",
			zap.String("kind", string(e.Kind)), zap.String("email", e.Email))
	}
}

// Run delivers queued events until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-d.queue:
			d.deliver(ctx, e)
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, e Event) {
	msg, err := Render(e)
	if err != nil {
		logger.ErrorLogger.Error("Error rendering notification", zap.Error(err))
		return
	}

	b := backoff.WithContext(backoff.WithMaxRetries(d.newBackOff(), d.maxRetries), ctx)
	err = backoff.Retry(func() error {
		sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
		defer cancel()
		return d.mailer.Send(sendCtx, msg)
	}, b)
	if err != nil {
		logger.ErrorLogger.Error("Error sending notification",
			zap.String("kind", string(e.Kind)), zap.String("email", e.Email), zap.Error(err))
		return
	}
	logger.AuditLogger.Info("Notification sent", zap.String("kind", string(e.Kind)), zap.String("email", e.Email))
}
