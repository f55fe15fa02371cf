package remote

import (
	"context"
	"encoding/json"
	"log"
	"net/url"
	"os"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// EventType identifies a change-feed message from the backend.
type EventType string

const (
	// EventDataUpdated indicates another device pushed changes for the owner.
	EventDataUpdated EventType = "data_updated"
	// EventSyncComplete indicates the backend finished processing a batch.
	EventSyncComplete EventType = "sync_complete"
)

// Event is a single change-feed message.
type Event struct {
	Type      EventType       `json:"type"`
	OwnerID   string          `json:"owner_id,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// Feed subscribes to the backend's WebSocket change feed and invokes a
// callback whenever another device updates the owner's data. It is
// best-effort: the periodic sync unit remains the source of truth, the
// feed only shortens the window between a remote write and the next pull.
type Feed struct {
	endpoint string
	ownerID  string
	onChange func()
	logger   *log.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewFeed creates a change-feed subscriber for the owner. onChange is
// invoked from the feed's own goroutine; callers must make it safe for
// concurrent use.
func NewFeed(endpoint, ownerID string, onChange func(), logger *log.Logger) *Feed {
	if logger == nil {
		logger = log.New(os.Stderr, "[feed] ", log.LstdFlags)
	}
	return &Feed{
		endpoint: endpoint,
		ownerID:  ownerID,
		onChange: onChange,
		logger:   logger,
	}
}

// Start begins the subscribe/reconnect loop. Calling Start on a running
// feed is a no-op.
func (f *Feed) Start(ctx context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.running {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	f.cancel = cancel
	f.done = make(chan struct{})
	f.running = true

	go f.run(ctx)
}

// Stop tears down the subscription and waits for the loop to exit.
func (f *Feed) Stop() {
	f.mu.Lock()
	if !f.running {
		f.mu.Unlock()
		return
	}
	f.running = false
	cancel, done := f.cancel, f.done
	f.mu.Unlock()

	cancel()
	<-done
}

func (f *Feed) run(ctx context.Context) {
	defer close(f.done)

	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		if ctx.Err() != nil {
			return
		}

		if err := f.listen(ctx); err != nil && ctx.Err() == nil {
			f.logger.Printf("Feed disconnected: %v (reconnecting in %v)", err, backoff)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

// listen dials the feed endpoint and processes messages until the
// connection drops or ctx is cancelled.
func (f *Feed) listen(ctx context.Context) error {
	u, err := url.Parse(f.endpoint)
	if err != nil {
		return err
	}
	q := u.Query()
	q.Set("owner", f.ownerID)
	u.RawQuery = q.Encode()

	conn, _, err := websocket.Dial(ctx, u.String(), nil)
	if err != nil {
		return err
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	f.logger.Printf("Feed connected: %s", f.endpoint)

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}

		var ev Event
		if err := json.Unmarshal(data, &ev); err != nil {
			f.logger.Printf("WARNING: malformed feed message: %v", err)
			continue
		}

		switch ev.Type {
		case EventDataUpdated:
			if ev.OwnerID == "" || ev.OwnerID == f.ownerID {
				f.onChange()
			}
		case EventSyncComplete:
			// informational only
		default:
			f.logger.Printf("Ignoring unknown feed event %q", ev.Type)
		}
	}
}
