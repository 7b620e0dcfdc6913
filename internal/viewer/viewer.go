// Package viewer implements the line-delimited JSON viewer protocol (§6.3)
// over a websocket connection, following the JSON-over-websocket message
// pattern the mesh transport uses for its signaling channel.
package viewer

import (
	"errors"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/eng-cc/agent-world-sub009/simkernel/action"
	"github.com/eng-cc/agent-world-sub009/simkernel/log"
	"github.com/eng-cc/agent-world-sub009/simkernel/persistence"
)

// RequestKind names one client->server viewer message (§6.3).
type RequestKind string

const (
	RequestHello     RequestKind = "hello"
	RequestSubscribe RequestKind = "subscribe"
	RequestSnapshot  RequestKind = "request_snapshot"
	RequestControl   RequestKind = "control"
)

// ControlMode names the playback mode of a Control request.
type ControlMode string

const (
	ControlPause ControlMode = "pause"
	ControlPlay  ControlMode = "play"
	ControlStep  ControlMode = "step"
	ControlSeek  ControlMode = "seek"
)

// Request is the client->server viewer envelope; exactly the fields for
// Kind are meaningful.
type Request struct {
	Kind       RequestKind `json:"kind"`
	Streams    []string    `json:"streams,omitempty"`
	EventKinds []string    `json:"event_kinds,omitempty"`
	Mode       ControlMode `json:"mode,omitempty"`
	StepCount  int         `json:"step_count,omitempty"`
	SeekTick   int64       `json:"seek_tick,omitempty"`
}

// ResponseKind names one server->client viewer message (§6.3).
type ResponseKind string

const (
	ResponseHelloAck ResponseKind = "hello_ack"
	ResponseSnapshot ResponseKind = "snapshot"
	ResponseEvent    ResponseKind = "event"
	ResponseMetrics  ResponseKind = "metrics"
)

// Response is the server->client viewer envelope.
type Response struct {
	Kind     ResponseKind        `json:"kind"`
	Server   string              `json:"server,omitempty"`
	Version  string              `json:"version,omitempty"`
	WorldID  string              `json:"world_id,omitempty"`
	Snapshot *persistence.Snapshot `json:"snapshot,omitempty"`
	Event    *action.WorldEvent  `json:"event,omitempty"`
	Time     action.WorldTime    `json:"time,omitempty"`
	Metrics  map[string]float64  `json:"metrics,omitempty"`
}

const protocolVersion = "agent-world-viewer-v1"

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Control is the playback state a connected client has requested; Server
// exposes it read-only to whatever loop drives Step/Snapshot/Control.Mode.
type Control struct {
	mu        sync.Mutex
	Mode      ControlMode
	StepCount int
	SeekTick  int64
}

func (c *Control) set(req Request) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Mode = req.Mode
	c.StepCount = req.StepCount
	c.SeekTick = req.SeekTick
}

// Snapshot returns a copy of the current control state.
func (c *Control) Snapshot() (ControlMode, int, int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Mode, c.StepCount, c.SeekTick
}

// Session is one connected viewer: its socket, subscribed streams/kinds, and
// shared playback control.
type Session struct {
	conn       *websocket.Conn
	mu         sync.Mutex
	worldID    string
	streams    map[string]bool
	eventKinds map[string]bool
	control    *Control
	log        *log.Logger
}

// Server accepts viewer websocket connections and fans snapshots/events out
// to every subscribed session.
type Server struct {
	worldID  string
	mu       sync.Mutex
	sessions map[*Session]bool
	control  *Control
	log      *log.Logger
}

// NewServer returns a viewer server for worldID with a fresh shared Control.
func NewServer(worldID string) *Server {
	return &Server{worldID: worldID, sessions: map[*Session]bool{}, control: &Control{Mode: ControlPlay}, log: log.Default("viewer")}
}

// Control exposes the server's shared playback control so the driving loop
// can read the latest client-requested mode.
func (s *Server) Control() *Control { return s.control }

// HandleWebsocket upgrades an HTTP request to a websocket viewer session and
// serves it until the connection closes.
func (s *Server) HandleWebsocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("viewer upgrade failed", log.Err(err))
		return
	}
	sess := &Session{conn: conn, worldID: s.worldID, streams: map[string]bool{}, eventKinds: map[string]bool{}, control: s.control, log: s.log}

	s.mu.Lock()
	s.sessions[sess] = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.sessions, sess)
		s.mu.Unlock()
		_ = conn.Close()
	}()

	sess.serve()
}

func (s *Session) serve() {
	for {
		var req Request
		if err := s.conn.ReadJSON(&req); err != nil {
			return
		}
		if err := s.handle(req); err != nil {
			s.log.Warn("viewer request failed", log.String("kind", string(req.Kind)), log.Err(err))
			return
		}
	}
}

func (s *Session) handle(req Request) error {
	switch req.Kind {
	case RequestHello:
		return s.send(Response{Kind: ResponseHelloAck, Server: "agent-world", Version: protocolVersion, WorldID: s.worldID})
	case RequestSubscribe:
		s.mu.Lock()
		for _, st := range req.Streams {
			s.streams[st] = true
		}
		for _, k := range req.EventKinds {
			s.eventKinds[k] = true
		}
		s.mu.Unlock()
		return nil
	case RequestControl:
		s.control.set(req)
		return nil
	case RequestSnapshot:
		// RequestSnapshot records nothing and sends no reply; sessions
		// receive snapshots only when the driving loop calls
		// Server.BroadcastSnapshot.
		return nil
	default:
		return errors.New("viewer: unknown request kind " + string(req.Kind))
	}
}

func (s *Session) send(resp Response) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(resp)
}

// interested reports whether sess's event-kind filter admits ev (an empty
// filter admits every kind); subscribed streams are not consulted.
func (s *Session) interested(ev action.WorldEvent) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.eventKinds) == 0 {
		return true
	}
	return s.eventKinds[string(ev.Kind)]
}

// BroadcastEvent fans ev out to every subscribed session whose event-kind
// filter matches.
func (s *Server) BroadcastEvent(ev action.WorldEvent) {
	s.mu.Lock()
	sessions := make([]*Session, 0, len(s.sessions))
	for sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.Unlock()

	for _, sess := range sessions {
		if !sess.interested(ev) {
			continue
		}
		if err := sess.send(Response{Kind: ResponseEvent, WorldID: s.worldID, Event: &ev}); err != nil {
			s.log.Warn("viewer broadcast failed", log.Err(err))
		}
	}
}

// BroadcastSnapshot fans a snapshot out to every connected session.
func (s *Server) BroadcastSnapshot(snap persistence.Snapshot) {
	s.mu.Lock()
	sessions := make([]*Session, 0, len(s.sessions))
	for sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.Unlock()

	for _, sess := range sessions {
		if err := sess.send(Response{Kind: ResponseSnapshot, WorldID: s.worldID, Snapshot: &snap}); err != nil {
			s.log.Warn("viewer broadcast failed", log.Err(err))
		}
	}
}

// BroadcastMetrics fans a metrics sample out to every connected session.
func (s *Server) BroadcastMetrics(t action.WorldTime, values map[string]float64) {
	s.mu.Lock()
	sessions := make([]*Session, 0, len(s.sessions))
	for sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.Unlock()

	for _, sess := range sessions {
		if err := sess.send(Response{Kind: ResponseMetrics, WorldID: s.worldID, Time: t, Metrics: values}); err != nil {
			s.log.Warn("viewer broadcast failed", log.Err(err))
		}
	}
}
