// Package watch streams spool directory changes to a WebSocket client.
//
// Change detection is polling-based: each session owns a per-folder
// snapshot of filenames and re-lists the folders on a fixed interval,
// emitting new_file/removed_file events for the set difference. Snapshots
// are never shared between sessions, so no locking is needed on them.
package watch

import (
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/sonpython/sms-api/internal/logging"
	"github.com/sonpython/sms-api/internal/metrics"
	"github.com/sonpython/sms-api/internal/protocol"
	"github.com/sonpython/sms-api/internal/spool"
)

// CloseInvalidToken is the close code sent when the connection token is
// missing, malformed, or expired.
const CloseInvalidToken = 4001

// DefaultPollInterval is the snapshot poll period.
const DefaultPollInterval = 2 * time.Second

var activeSessions int64

// Session streams spool changes over one WebSocket connection. It owns
// the connection for its lifetime.
type Session struct {
	reader   *spool.Reader
	conn     *websocket.Conn
	interval time.Duration
	known    map[spool.Folder]map[string]struct{}
}

// NewSession creates a session over an accepted connection. A zero
// interval means DefaultPollInterval.
func NewSession(reader *spool.Reader, conn *websocket.Conn, interval time.Duration) *Session {
	if interval == 0 {
		interval = DefaultPollInterval
	}
	return &Session{
		reader:   reader,
		conn:     conn,
		interval: interval,
		known:    make(map[spool.Folder]map[string]struct{}),
	}
}

// Run drives the session until the client disconnects or a write fails,
// then closes the connection. It always returns cleanly; transport errors
// end the stream, they do not propagate.
func (s *Session) Run() {
	defer s.conn.Close()

	metrics.SetWatchSessionsActive(atomic.AddInt64(&activeSessions, 1))
	defer func() {
		metrics.SetWatchSessionsActive(atomic.AddInt64(&activeSessions, -1))
	}()

	// Read pump: the client sends nothing meaningful, but reading is what
	// surfaces close frames and dead connections.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := s.conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	// Baseline snapshot before any event, so files that already exist
	// never show up as new. A missing folder directory starts empty.
	for _, folder := range spool.Folders {
		names, err := s.reader.Filenames(folder)
		if err != nil {
			names = make(map[string]struct{})
		}
		s.known[folder] = names
	}

	logging.Info("watch session started", zap.String("remote_addr", s.conn.RemoteAddr().String()))

	for {
		if err := s.send(protocol.WatchEvent{Event: protocol.EventHeartbeat}); err != nil {
			return
		}

		timer := time.NewTimer(s.interval)
		select {
		case <-done:
			timer.Stop()
			logging.Info("watch session closed by client",
				zap.String("remote_addr", s.conn.RemoteAddr().String()))
			return
		case <-timer.C:
		}

		for _, folder := range spool.Folders {
			if err := s.pollFolder(folder); err != nil {
				return
			}
		}
	}
}

// pollFolder diffs one folder against its snapshot and emits events.
// New files are announced before removals.
func (s *Session) pollFolder(folder spool.Folder) error {
	current, err := s.reader.Filenames(folder)
	if err != nil {
		// The directory itself is gone or unreadable. Keep the previous
		// snapshot and report nothing until it comes back.
		return nil
	}
	previous := s.known[folder]

	for name := range current {
		if _, ok := previous[name]; ok {
			continue
		}
		// Re-check existence at emission time: a file created and deleted
		// within one interval is skipped, not reported.
		rec, err := s.reader.Record(folder, name)
		if err != nil {
			continue
		}
		event := protocol.WatchEvent{
			Event:  protocol.EventNewFile,
			Folder: string(folder),
			File:   rec,
		}
		if err := s.send(event); err != nil {
			return err
		}
	}

	for name := range previous {
		if _, ok := current[name]; ok {
			continue
		}
		event := protocol.WatchEvent{
			Event:    protocol.EventRemovedFile,
			Folder:   string(folder),
			Filename: name,
		}
		if err := s.send(event); err != nil {
			return err
		}
	}

	s.known[folder] = current
	return nil
}

func (s *Session) send(event protocol.WatchEvent) error {
	if err := s.conn.WriteJSON(event); err != nil {
		return err
	}
	metrics.RecordWatchEvent(event.Event)
	return nil
}
