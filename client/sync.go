package client

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/c360studio/shopfloor/events"
)

const (
	// DefaultPollInterval is the backstop refresh period. Events arrive at
	// most once; a missed one is picked up by the next poll.
	DefaultPollInterval = 5 * time.Second

	reconnectDelay = 2 * time.Second
)

// Synchronizer keeps a JobView current. It listens for change events over
// the server's websocket feed and refreshes the view when one touches the
// viewed job, with a periodic full refresh covering dropped events and
// dropped connections.
type Synchronizer struct {
	client *Client
	view   *JobView
	logger *slog.Logger

	pollInterval time.Duration

	// OnChange, when set, runs after every view refresh. Terminals hang
	// their redraw here.
	OnChange func()
}

// NewSynchronizer creates a synchronizer for the given view. A zero
// pollInterval uses DefaultPollInterval.
func NewSynchronizer(c *Client, view *JobView, pollInterval time.Duration, logger *slog.Logger) *Synchronizer {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Synchronizer{
		client:       c,
		view:         view,
		logger:       logger,
		pollInterval: pollInterval,
	}
}

// wsURL derives the websocket endpoint from the client's base URL.
func (s *Synchronizer) wsURL() string {
	base := s.client.baseURL
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	u, err := url.Parse(base)
	if err != nil {
		return base + "/ws"
	}
	u.Path = "/ws"
	return u.String()
}

// Run blocks, keeping the view fresh until the context is canceled. The
// websocket is reconnected with a fixed delay; polling continues either way.
func (s *Synchronizer) Run(ctx context.Context) error {
	evCh := make(chan events.Event, 16)
	go s.consumeWS(ctx, evCh)

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev := <-evCh:
			if ev.JobID != s.view.JobID() {
				continue
			}
			s.refresh(ctx)

		case <-ticker.C:
			s.refresh(ctx)
		}
	}
}

// refresh replaces the view with current server state.
func (s *Synchronizer) refresh(ctx context.Context) {
	jobID := s.view.JobID()
	if jobID == "" {
		return
	}
	detail, err := s.client.GetJobDetail(ctx, jobID)
	if err != nil {
		s.logger.Warn("View refresh failed", "job_id", jobID, "error", err)
		return
	}
	s.view.Replace(detail)
	if s.OnChange != nil {
		s.OnChange()
	}
}

// consumeWS maintains the websocket connection and forwards decoded events.
func (s *Synchronizer) consumeWS(ctx context.Context, evCh chan<- events.Event) {
	for ctx.Err() == nil {
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.wsURL(), nil)
		if err != nil {
			s.logger.Warn("Websocket connect failed", "url", s.wsURL(), "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(reconnectDelay):
			}
			continue
		}

		s.readEvents(ctx, conn, evCh)
		conn.Close()
	}
}

func (s *Synchronizer) readEvents(ctx context.Context, conn *websocket.Conn, evCh chan<- events.Event) {
	// Close the connection when the context ends so ReadMessage unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				s.logger.Warn("Websocket read failed", "error", err)
			}
			return
		}

		var ev events.Event
		if err := json.Unmarshal(data, &ev); err != nil {
			s.logger.Warn("Dropping malformed event", "error", err)
			continue
		}

		select {
		case evCh <- ev:
		default:
			// Queue full; the poll backstop covers what we drop.
		}
	}
}
