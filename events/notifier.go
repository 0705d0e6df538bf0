package events

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// Publisher is the notifier interface the storage layer mutates through.
type Publisher interface {
	Publish(event Event)
}

// Notifier publishes change events over core NATS. Publish failures are
// logged and dropped, never surfaced to the mutation that triggered them:
// the client polling backstop is the recovery path for missed events.
type Notifier struct {
	conn   *nats.Conn
	logger *slog.Logger
}

// NewNotifier creates a notifier over the given NATS connection.
func NewNotifier(conn *nats.Conn, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{conn: conn, logger: logger}
}

// Publish sends the event to its subject. The timestamp is stamped here if
// the caller left it zero.
func (n *Notifier) Publish(event Event) {
	subject := event.Subject()
	if subject == "" {
		n.logger.Warn("Dropping event with unknown type", "type", event.Type)
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	data, err := json.Marshal(event)
	if err != nil {
		n.logger.Error("Failed to marshal event", "type", event.Type, "error", err)
		return
	}

	if err := n.conn.Publish(subject, data); err != nil {
		n.logger.Warn("Failed to publish event",
			"subject", subject,
			"type", event.Type,
			"error", err)
	}
}

// NopPublisher discards every event. Used where mutations should not notify,
// such as cascade deletes and tests.
type NopPublisher struct{}

// Publish implements Publisher.
func (NopPublisher) Publish(Event) {}
