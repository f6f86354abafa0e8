package notify

import (
	"context"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Notifier delivers a local, user-visible notification.
type Notifier interface {
	Send(ctx context.Context, title, text string) error
}

type Multi []Notifier

// Send delivers to every sink and reports all failures together.
func (m Multi) Send(ctx context.Context, title, text string) error {
	var err error
	for _, n := range m {
		if n == nil {
			continue
		}
		err = multierr.Append(err, n.Send(ctx, title, text))
	}
	return err
}

// Log writes notifications to the application log.
type Log struct {
	Logger *zap.Logger
}

func (l Log) Send(_ context.Context, title, text string) error {
	if l.Logger == nil {
		return nil
	}
	l.Logger.Warn("notification", zap.String("title", title), zap.String("text", text))
	return nil
}

// Func adapts a function to Notifier.
type Func func(ctx context.Context, title, text string) error

func (f Func) Send(ctx context.Context, title, text string) error { return f(ctx, title, text) }
