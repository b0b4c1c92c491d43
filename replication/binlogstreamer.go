package replication

import (
	"context"

	"github.com/pingcap/errors"

	"github.com/relaycore/mysql-binlog/mysql"
)

// eventBufferSize and errorBufferSize are the bounded channel capacities the pump loop
// delivers through, per spec §4.10: a slow consumer throttles the pump instead of letting
// buffered events grow without limit.
const (
	eventBufferSize = 10240
	errorBufferSize = 4
)

// BinlogStreamer is the consumer-facing half of a replica session: a BinlogSyncer feeds
// it decoded events from its pump goroutine, and callers drain it with GetEvent.
type BinlogStreamer struct {
	ch  chan *BinlogEvent
	ech chan error

	closed   chan struct{}
	closeErr error
}

func newBinlogStreamer() *BinlogStreamer {
	return &BinlogStreamer{
		ch:     make(chan *BinlogEvent, eventBufferSize),
		ech:    make(chan error, errorBufferSize),
		closed: make(chan struct{}),
	}
}

// GetEvent blocks until the next event arrives, ctx is cancelled, or the streamer is
// closed (by the syncer shutting down or a terminal pump error).
func (s *BinlogStreamer) GetEvent(ctx context.Context) (*BinlogEvent, error) {
	select {
	case ev := <-s.ch:
		return ev, nil
	case err := <-s.ech:
		return nil, errors.Trace(err)
	case <-s.closed:
		return s.drainOrClosedErr()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// GetEventWithStartTime is like GetEvent but discards any event whose header timestamp
// precedes minTimestamp before returning it, useful when resuming from a known point in
// time rather than an exact position.
func (s *BinlogStreamer) GetEventWithStartTime(ctx context.Context, minTimestamp uint32) (*BinlogEvent, error) {
	for {
		ev, err := s.GetEvent(ctx)
		if err != nil {
			return nil, err
		}
		if ev.Header.Timestamp >= minTimestamp {
			return ev, nil
		}
	}
}

// DumpEvents drains every event currently buffered without blocking, for callers that
// want a snapshot rather than a live stream.
func (s *BinlogStreamer) DumpEvents() []*BinlogEvent {
	events := make([]*BinlogEvent, 0, len(s.ch))
	for {
		select {
		case ev := <-s.ch:
			events = append(events, ev)
		default:
			return events
		}
	}
}

func (s *BinlogStreamer) drainOrClosedErr() (*BinlogEvent, error) {
	select {
	case ev := <-s.ch:
		return ev, nil
	default:
	}
	if s.closeErr != nil {
		return nil, s.closeErr
	}
	return nil, mysql.ErrSyncClosed
}

// feed delivers ev to the consumer, blocking (providing the backpressure the bounded
// channel is for) until it's accepted or the streamer is closed.
func (s *BinlogStreamer) feed(ev *BinlogEvent) bool {
	select {
	case s.ch <- ev:
		return true
	case <-s.closed:
		return false
	}
}

// closeWithError marks the streamer permanently closed, recording err (nil for a clean
// shutdown) as what GetEvent returns once the buffered events are drained.
func (s *BinlogStreamer) closeWithError(err error) {
	select {
	case <-s.closed:
		return
	default:
	}
	s.closeErr = err
	close(s.closed)
}
