package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/douremember/go-descriptions-backend/internal/domain"
)

// Notifier is satisfied by every sink in this package.
type Notifier interface {
	Notify(ctx context.Context, n domain.Notification) error
}

// Log writes notifications to a zerolog logger. Used when no email or bus
// is configured.
type Log struct {
	Logger *zerolog.Logger
}

// Notify logs n at info level.
func (l Log) Notify(_ context.Context, n domain.Notification) error {
	lg := l.Logger
	if lg == nil {
		lg = &log.Logger
	}
	lg.Info().
		Str("event", n.Event).
		Str("recipient_id", n.RecipientID).
		Str("subject", n.Subject).
		Interface("payload", n.Payload).
		Msg("notification")
	return nil
}

// Multi delivers to every sink and joins their errors.
type Multi []Notifier

// Notify calls each sink in order. One failure does not stop the rest.
func (m Multi) Notify(ctx context.Context, n domain.Notification) error {
	var errs []error
	for i, s := range m {
		if s == nil {
			continue
		}
		if err := s.Notify(ctx, n); err != nil {
			errs = append(errs, fmt.Errorf("notifier %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}
