package worker

import (
	"context"

	"go.uber.org/zap"

	"github.com/inkbook/session-core/internal/events"
)

// StartAuditWorker subscribes an audit logger to every session lifecycle event.
func StartAuditWorker(dispatcher events.Dispatcher, logger *zap.Logger) {
	if dispatcher == nil {
		return
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	audit := logger.Named("audit")

	dispatcher.Subscribe(events.EventSessionEstablished, func(_ context.Context, ev events.Event) error {
		audit.Info("SessionEstablished", baseFields(ev)...)
		return nil
	})
	dispatcher.Subscribe(events.EventSessionEnded, func(_ context.Context, ev events.Event) error {
		fields := baseFields(ev)
		if p, ok := ev.Payload.(events.SessionEndedPayload); ok {
			fields = append(fields, zap.String("reason", p.Reason), zap.Bool("forced", p.Forced))
			if p.Forced {
				audit.Warn("SessionEnded", fields...)
				return nil
			}
		}
		audit.Info("SessionEnded", fields...)
		return nil
	})
	dispatcher.Subscribe(events.EventTokenReplaced, func(_ context.Context, ev events.Event) error {
		fields := baseFields(ev)
		if p, ok := ev.Payload.(events.TokenReplacedPayload); ok {
			fields = append(fields, zap.String("how", p.How))
		}
		audit.Info("TokenReplaced", fields...)
		return nil
	})
}

func baseFields(ev events.Event) []zap.Field {
	return []zap.Field{
		zap.String("event_id", ev.ID),
		zap.String("user_id", ev.UserID),
		zap.String("role", ev.Role.String()),
		zap.String("token_fp", ev.TokenFP),
		zap.Time("at", ev.Timestamp),
	}
}
