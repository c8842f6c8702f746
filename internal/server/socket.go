package server

import (
	"sync"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/zishang520/socket.io/v2/socket"

	"github.com/biswa/coduel-signal/internal/events"
)

func (s *Server) setupSocketIO() {
	s.socketIO.On("connection", func(clients ...any) {
		client := clients[0].(*socket.Socket)
		conn := string(client.Id())
		s.emitter.add(client)
		s.logger.Debug().Str("conn", conn).Msg("client connected")

		for _, name := range events.InboundNames {
			client.On(string(name), func(args ...any) {
				s.dispatch(conn, name, parseData(args))
			})
		}

		client.On("disconnect", func(args ...any) {
			s.handler.Dispatch(conn, events.Disconnect{})
			s.emitter.remove(conn)
			s.logger.Debug().Str("conn", conn).Interface("reason", args).Msg("client disconnected")
		})
	})
}

func (s *Server) dispatch(conn string, name events.Name, data map[string]any) {
	msg, err := events.Decode(name, data)
	if err != nil {
		s.logger.Debug().Str("conn", conn).Str("event", string(name)).Err(err).Msg("rejected payload")
		s.emitter.ToConn(conn, events.Error{Message: err.Error()})
		return
	}
	s.handler.Dispatch(conn, msg)
}

// parseData normalises the first event argument to a map. Clients may send an object,
// a JSON string or nothing at all.
func parseData(args []any) map[string]any {
	if len(args) == 0 {
		return map[string]any{}
	}
	switch v := args[0].(type) {
	case map[string]any:
		return v
	case string:
		var m map[string]any
		if err := json.Unmarshal([]byte(v), &m); err == nil && m != nil {
			return m
		}
		return map[string]any{}
	case nil:
		return map[string]any{}
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return map[string]any{}
		}
		var m map[string]any
		if err := json.Unmarshal(b, &m); err != nil || m == nil {
			return map[string]any{}
		}
		return m
	}
}

// socketEmitter delivers outbound messages through Socket.IO rooms. Every socket is
// also a member of a room named after its own ID, which is used for unicast.
type socketEmitter struct {
	io     *socket.Server
	logger zerolog.Logger

	mu      sync.RWMutex
	sockets map[string]*socket.Socket
}

var _ events.Emitter = &socketEmitter{}

func newSocketEmitter(io *socket.Server, logger zerolog.Logger) *socketEmitter {
	return &socketEmitter{
		io:      io,
		logger:  logger,
		sockets: make(map[string]*socket.Socket),
	}
}

func (e *socketEmitter) add(client *socket.Socket) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sockets[string(client.Id())] = client
}

func (e *socketEmitter) remove(conn string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.sockets, conn)
}

func (e *socketEmitter) lookup(conn string) (*socket.Socket, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	client, ok := e.sockets[conn]
	return client, ok
}

func (e *socketEmitter) Join(conn, room string) {
	if client, ok := e.lookup(conn); ok {
		client.Join(socket.Room(room))
	}
}

func (e *socketEmitter) Leave(conn, room string) {
	if client, ok := e.lookup(conn); ok {
		client.Leave(socket.Room(room))
	}
}

func (e *socketEmitter) ToRoom(room string, msg events.Outbound) {
	e.logger.Trace().Str("room", room).Str("event", string(msg.Event())).Msg("emit")
	e.io.To(socket.Room(room)).Emit(string(msg.Event()), msg)
}

func (e *socketEmitter) ToOthers(room, conn string, msg events.Outbound) {
	client, ok := e.lookup(conn)
	if !ok {
		e.ToRoom(room, msg)
		return
	}
	e.logger.Trace().Str("room", room).Str("except", conn).Str("event", string(msg.Event())).Msg("emit")
	client.To(socket.Room(room)).Emit(string(msg.Event()), msg)
}

func (e *socketEmitter) ToConn(conn string, msg events.Outbound) {
	e.logger.Trace().Str("conn", conn).Str("event", string(msg.Event())).Msg("emit")
	e.io.To(socket.Room(conn)).Emit(string(msg.Event()), msg)
}
