// Package notify defines the notification interface and its sinks.
package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
)

// Options are the push-service extras; sinks that cannot honour them ignore them.
type Options struct {
	Group     string
	Level     string // active, timeSensitive, passive
	Sound     string
	URL       string
	Icon      string
	Copy      string
	IsArchive bool
}

type Message struct {
	Title    string
	Subtitle string
	Body     string
	Options  Options
}

// Notifier delivers a message to the user.
type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}

// LogNotifier is the local ("native") sink: it writes the message to out and the log.
type LogNotifier struct {
	Out io.Writer
	Log *zap.Logger
}

func NewLogNotifier(log *zap.Logger) *LogNotifier {
	return &LogNotifier{Out: os.Stdout, Log: log}
}

func (n *LogNotifier) Notify(_ context.Context, msg Message) error {
	if n.Log != nil {
		n.Log.Info("notification", zap.String("title", msg.Title), zap.String("subtitle", msg.Subtitle))
	}
	if n.Out == nil {
		return nil
	}
	_, err := fmt.Fprintf(n.Out, "\n[%s]\n%s\n%s\n", msg.Title, msg.Subtitle, msg.Body)
	return err
}

// Multi fans a message out to every sink and joins their errors.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, msg Message) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
