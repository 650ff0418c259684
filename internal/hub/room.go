package hub

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/nfrund/huddle/internal/connstate"
	"github.com/nfrund/huddle/internal/domain"
	"github.com/nfrund/huddle/internal/presence"
	"github.com/nfrund/huddle/internal/protocol"
	"github.com/nfrund/huddle/internal/pubsub"
)

type opKind int

const (
	opJoin opKind = iota
	opLeave
	opFrame
	opPublish
	opSnapshot
	opRefresh
	opShutdown
)

// op is one unit of work for a Room's actor.
type op struct {
	kind   opKind
	sock   Socket
	connID string
	reason LeaveReason
	data   []byte
	frame  protocol.Frame
	reply  chan []domain.User
	done   chan struct{}
}

// Room owns the connections of one room key. Every mutation of the
// connection set and every frame is handled by a single actor goroutine, so
// handlers never run concurrently for the same room.
//
// The actor stops after being idle for the registry's hibernation period and
// is started again by the next operation. Connection state lives in the
// connstate.Store, so a restarted actor needs nothing restored.
type Room struct {
	key      Key
	registry *Registry
	logger   *slog.Logger
	ops      chan op

	mu      sync.Mutex
	pending int  // ops reserved but not yet received by the actor
	running bool // actor goroutine alive
	closed  bool

	// Owned by the actor. order keeps join order so presence is stable.
	conns map[string]Socket
	order []string
}

func newRoom(key Key, registry *Registry) *Room {
	return &Room{
		key:      key,
		registry: registry,
		logger:   registry.logger.With("room", key.String()),
		ops:      make(chan op, registry.queueSize),
		conns:    make(map[string]Socket),
	}
}

// Key returns the room's key.
func (r *Room) Key() Key {
	return r.key
}

// Running reports whether the actor goroutine is currently alive.
func (r *Room) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// reserve claims a slot for one op and starts the actor if it is hibernating.
// Callers that reserve must follow up with submit.
func (r *Room) reserve() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return domain.ErrRoomClosed
	}
	r.pending++
	if !r.running {
		r.running = true
		go r.run()
	}
	return nil
}

// submit hands a reserved op to the actor.
func (r *Room) submit(ctx context.Context, o op) error {
	select {
	case r.ops <- o:
		return nil
	case <-ctx.Done():
		r.mu.Lock()
		r.pending--
		r.mu.Unlock()
		return ctx.Err()
	}
}

// do reserves and submits in one step. It is only safe for rooms that cannot
// be evicted concurrently, i.e. rooms with the caller's connection attached.
func (r *Room) do(ctx context.Context, o op) error {
	if err := r.reserve(); err != nil {
		return err
	}
	return r.submit(ctx, o)
}

func (r *Room) run() {
	idle := r.registry.hibernateAfter

	var timer *time.Timer
	var timeout <-chan time.Time
	if idle > 0 {
		timer = time.NewTimer(idle)
		defer timer.Stop()
		timeout = timer.C
	}

	for {
		select {
		case o := <-r.ops:
			r.mu.Lock()
			r.pending--
			r.mu.Unlock()

			if r.handle(o) {
				return
			}
			if timer != nil {
				timer.Reset(idle)
			}

		case <-timeout:
			if r.registry.hibernate(r) {
				return
			}
			timer.Reset(idle)
		}
	}
}

// handle executes one op and reports whether the actor must stop.
func (r *Room) handle(o op) bool {
	ctx := r.registry.ctx

	switch o.kind {
	case opJoin:
		r.join(ctx, o.sock)
	case opLeave:
		r.leave(ctx, o.connID, o.reason)
	case opFrame:
		r.receive(ctx, o.connID, o.data)
	case opPublish:
		r.relay(o.frame, "")
	case opSnapshot:
		o.reply <- r.presence(ctx)
	case opRefresh:
		r.refresh(ctx)
	case opShutdown:
		r.shutdown(ctx)
		close(o.done)
		return true
	}
	return false
}

func (r *Room) join(ctx context.Context, sock Socket) {
	id := sock.ID()
	if _, exists := r.conns[id]; exists {
		r.logger.Warn("Connection joined twice", "conn_id", id)
		return
	}

	r.conns[id] = sock
	r.order = append(r.order, id)
	r.registry.metrics.ConnectionJoined()
	r.logger.Info("Connection joined", "conn_id", id, "connections", len(r.conns))

	publishEvent(ctx, r, EventConnectionOpened, ConnectionEvent{Room: r.key.String(), ConnID: id})

	// The snapshot goes to the new connection only.
	r.send(sock, protocol.NewPresence(r.presence(ctx)))
}

func (r *Room) leave(ctx context.Context, id string, reason LeaveReason) {
	if _, ok := r.conns[id]; !ok {
		return
	}

	delete(r.conns, id)
	for i, cid := range r.order {
		if cid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	if err := r.registry.store.Clear(ctx, id); err != nil {
		r.logger.Warn("Failed to clear connection state", "conn_id", id, "error", err)
	}

	r.registry.metrics.ConnectionLeft()
	r.logger.Info("Connection left", "conn_id", id, "reason", reason, "connections", len(r.conns))

	publishEvent(ctx, r, EventConnectionClosed, ConnectionEvent{Room: r.key.String(), ConnID: id, Reason: reason})
	r.broadcastPresence(ctx)
}

func (r *Room) receive(ctx context.Context, id string, data []byte) {
	if _, ok := r.conns[id]; !ok {
		return
	}

	frame, err := protocol.Decode(data)
	if err != nil {
		r.registry.metrics.FrameReceived("malformed")
		r.logger.Debug("Dropping malformed frame", "conn_id", id, "error", err)
		return
	}
	r.registry.metrics.FrameReceived(frame.Kind().String())

	switch f := frame.(type) {
	case *protocol.AddUser:
		if err := r.registry.store.Attach(ctx, id, f.Payload); err != nil {
			r.logger.Warn("Failed to attach user", "conn_id", id, "user_id", f.Payload.ID, "error", err)
			return
		}
		r.logger.Debug("User attached", "conn_id", id, "user_id", f.Payload.ID)
		r.broadcastPresence(ctx)

	case *protocol.RemoveUser:
		// The payload id is informational; a connection can only detach itself.
		if err := r.registry.store.Clear(ctx, id); err != nil {
			r.logger.Warn("Failed to clear connection state", "conn_id", id, "error", err)
		}
		r.logger.Debug("User detached", "conn_id", id, "user_id", f.Payload.ID)
		r.broadcastPresence(ctx)

	case *protocol.Presence:
		// Snapshots only flow server to client.

	case *protocol.ChannelEvent, *protocol.ThreadEvent:
		r.relay(frame, id)
	}
}

// presence recomputes the room's users from stored connection state.
func (r *Room) presence(ctx context.Context) []domain.User {
	states := make([]connstate.State, 0, len(r.order))
	for _, id := range r.order {
		states = append(states, r.registry.store.Read(ctx, id))
	}
	return presence.Aggregate(states)
}

// refresh keeps the stored state of every connection from expiring.
func (r *Room) refresh(ctx context.Context) {
	for _, id := range r.order {
		if err := r.registry.store.Touch(ctx, id); err != nil {
			r.logger.Warn("Failed to refresh connection state", "conn_id", id, "error", err)
		}
	}
}

func (r *Room) broadcastPresence(ctx context.Context) {
	users := r.presence(ctx)
	r.broadcast(protocol.NewPresence(users), "")
	publishEvent(ctx, r, EventPresenceChanged, PresenceChangedEvent{Room: r.key.String(), Users: users})
}

// relay re-serializes a domain event and sends it to every connection except
// the sender. An empty sender reaches everyone.
func (r *Room) relay(frame protocol.Frame, sender string) {
	r.logger.Debug("Relaying event", "type", frame.FrameType(), "sender", sender)
	r.broadcast(frame, sender)
}

func (r *Room) broadcast(frame protocol.Frame, exclude string) {
	data, err := protocol.Encode(frame)
	if err != nil {
		r.logger.Error("Failed to encode frame", "type", frame.FrameType(), "error", err)
		return
	}
	for _, id := range r.order {
		if id == exclude {
			continue
		}
		r.deliver(r.conns[id], data)
	}
}

func (r *Room) send(sock Socket, frame protocol.Frame) {
	data, err := protocol.Encode(frame)
	if err != nil {
		r.logger.Error("Failed to encode frame", "type", frame.FrameType(), "error", err)
		return
	}
	r.deliver(sock, data)
}

func (r *Room) deliver(sock Socket, data []byte) {
	if !sock.Send(data) {
		r.registry.metrics.SendDropped()
		r.logger.Debug("Send queue full, dropping frame", "conn_id", sock.ID())
	}
}

func (r *Room) shutdown(ctx context.Context) {
	for _, id := range r.order {
		if err := r.registry.store.Clear(ctx, id); err != nil {
			r.logger.Warn("Failed to clear connection state", "conn_id", id, "error", err)
		}
		r.conns[id].Close("server shutting down")
		r.registry.metrics.ConnectionLeft()
		publishEvent(ctx, r, EventConnectionClosed, ConnectionEvent{Room: r.key.String(), ConnID: id, Reason: LeaveShutdown})
	}
	r.logger.Info("Room closed", "connections", len(r.order))
	r.conns = make(map[string]Socket)
	r.order = nil

	r.mu.Lock()
	r.running = false
	r.closed = true
	r.mu.Unlock()
}

// publishEvent announces a lifecycle event on the bus, if one is configured.
func publishEvent[T any](ctx context.Context, r *Room, event pubsub.Event[T], payload T) {
	p := r.registry.publisher
	if p == nil {
		return
	}
	metadata := map[string]string{pubsub.MetaKeyRoom: r.key.String()}
	if err := pubsub.Publish(ctx, p, event, payload, metadata); err != nil {
		r.logger.Warn("Failed to publish lifecycle event", "topic", event.Name(), "error", err)
	}
}
