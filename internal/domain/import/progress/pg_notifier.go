package progress

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/jackc/pgx/v5/pgconn"
)

const notifyQuery = `SELECT pg_notify($1, $2)`

// Execer is the subset of pgxpool.Pool used by PgNotifier.
type Execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

var _ Notifier = (*PgNotifier)(nil)

// PgNotifier publishes events on a PostgreSQL NOTIFY channel so any process
// LISTENing on it can forward them to the client connection.
type PgNotifier struct {
	db      Execer
	channel string
	logger  *slog.Logger
}

// notification is the JSON payload sent through pg_notify.
type notification struct {
	ConnectionID string `json:"connectionId"`
	Event
}

// NewPgNotifier creates a notifier publishing on channel.
func NewPgNotifier(db Execer, channel string, logger *slog.Logger) *PgNotifier {
	return &PgNotifier{db: db, channel: channel, logger: logger}
}

// Notify implements Notifier. Failures are logged and otherwise ignored.
func (n *PgNotifier) Notify(ctx context.Context, connectionID string, event Event) {
	payload, err := json.Marshal(notification{ConnectionID: connectionID, Event: event})
	if err != nil {
		n.logger.WarnContext(ctx, "failed to encode progress event", slog.Any("error", err))
		return
	}
	if _, err := n.db.Exec(ctx, notifyQuery, n.channel, string(payload)); err != nil {
		n.logger.WarnContext(ctx, "failed to publish progress event",
			slog.String("connectionID", connectionID),
			slog.Any("error", err))
	}
}
