package hub

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nfrund/huddle/internal/connstate"
	"github.com/nfrund/huddle/internal/domain"
	"github.com/nfrund/huddle/internal/metrics"
	"github.com/nfrund/huddle/internal/protocol"
	"github.com/nfrund/huddle/internal/pubsub"
)

const (
	// DefaultHibernateAfter is how long a room actor waits for work before stopping.
	DefaultHibernateAfter = 30 * time.Second

	defaultQueueSize = 256
)

// Registry maps room keys to live Rooms. At most one Room exists per key at
// any time; it is created by the first Join and removed once it is idle with
// no connections.
type Registry struct {
	store     *connstate.Store
	publisher pubsub.Publisher
	metrics   *metrics.Metrics
	logger    *slog.Logger

	hibernateAfter time.Duration
	refreshEvery   time.Duration
	queueSize      int

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	rooms  map[Key]*Room
	closed bool
}

// Option configures a Registry.
type Option func(*Registry)

// WithPublisher announces connection and presence lifecycle events on p.
func WithPublisher(p pubsub.Publisher) Option {
	return func(r *Registry) {
		r.publisher = p
	}
}

// WithMetrics records room and connection metrics on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Registry) {
		r.metrics = m
	}
}

// WithHibernateAfter sets the idle period after which a room actor stops.
// Zero keeps actors running for as long as their room exists.
func WithHibernateAfter(d time.Duration) Option {
	return func(r *Registry) {
		r.hibernateAfter = d
	}
}

// WithStateRefresh touches the stored state of every live connection once per
// interval, for stores whose records expire. Zero disables refreshing.
func WithStateRefresh(d time.Duration) Option {
	return func(r *Registry) {
		r.refreshEvery = d
	}
}

// WithQueueSize sets the per-room operation buffer.
func WithQueueSize(n int) Option {
	return func(r *Registry) {
		if n > 0 {
			r.queueSize = n
		}
	}
}

// WithLogger overrides the registry's logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = l
	}
}

// NewRegistry creates an empty Registry whose rooms keep connection state in store.
func NewRegistry(store *connstate.Store, opts ...Option) *Registry {
	ctx, cancel := context.WithCancel(context.Background())
	r := &Registry{
		store:          store,
		logger:         slog.Default().With("component", "hub"),
		hibernateAfter: DefaultHibernateAfter,
		queueSize:      defaultQueueSize,
		ctx:            ctx,
		cancel:         cancel,
		rooms:          make(map[Key]*Room),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.refreshEvery > 0 {
		go r.refreshLoop()
	}
	return r
}

// Session is a connection's membership in a Room.
type Session struct {
	room   *Room
	connID string
}

// Room returns the room the session belongs to.
func (s *Session) Room() *Room {
	return s.room
}

// Receive hands an inbound frame to the room. Frames from one session are
// handled in the order they are received.
func (s *Session) Receive(ctx context.Context, data []byte) error {
	return s.room.do(ctx, op{kind: opFrame, connID: s.connID, data: data})
}

// Leave detaches the connection from its room, clears its state and
// rebroadcasts presence.
func (s *Session) Leave(ctx context.Context, reason LeaveReason) error {
	return s.room.do(ctx, op{kind: opLeave, connID: s.connID, reason: reason})
}

// lookup returns the live room for key with one op reserved on it. When
// create is set an absent room is created; otherwise a nil room is returned.
func (r *Registry) lookup(key Key, create bool) (*Room, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, domain.ErrRoomClosed
	}

	room, ok := r.rooms[key]
	if !ok {
		if !create {
			return nil, nil
		}
		room = newRoom(key, r)
		r.rooms[key] = room
		r.metrics.RoomOpened()
		r.logger.Debug("Room created", "room", key.String())
	}

	// Reserving under r.mu keeps the room from being evicted in between.
	if err := room.reserve(); err != nil {
		return nil, err
	}
	return room, nil
}

// Join attaches sock to the room for key, creating the room if needed. The
// connection immediately receives the room's presence snapshot.
func (r *Registry) Join(ctx context.Context, key Key, sock Socket) (*Session, error) {
	room, err := r.lookup(key, true)
	if err != nil {
		return nil, err
	}
	if err := room.submit(ctx, op{kind: opJoin, sock: sock}); err != nil {
		return nil, err
	}
	return &Session{room: room, connID: sock.ID()}, nil
}

// Publish relays a domain event to every connection of the room for key. It
// is the entry point for collaborators that changed something durably and
// want live clients told. Publishing into a room that is not live is a no-op.
func (r *Registry) Publish(ctx context.Context, key Key, frame protocol.Frame) error {
	switch frame.Kind() {
	case protocol.KindChannel, protocol.KindThread:
	default:
		return fmt.Errorf("%w: %q is not a domain event", domain.ErrMalformedFrame, frame.FrameType())
	}

	room, err := r.lookup(key, false)
	if err != nil || room == nil {
		return err
	}
	return room.submit(ctx, op{kind: opPublish, frame: frame})
}

// Presence returns the current presence set of the room for key. A room that
// is not live has nobody present.
func (r *Registry) Presence(ctx context.Context, key Key) ([]domain.User, error) {
	room, err := r.lookup(key, false)
	if err != nil {
		return nil, err
	}
	if room == nil {
		return []domain.User{}, nil
	}

	reply := make(chan []domain.User, 1)
	if err := room.submit(ctx, op{kind: opSnapshot, reply: reply}); err != nil {
		return nil, err
	}

	select {
	case users := <-reply:
		return users, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Len returns the number of live rooms.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms)
}

// Lookup returns the live room for key, if any.
func (r *Registry) Lookup(key Key) (*Room, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[key]
	return room, ok
}

// hibernate is called by an idle actor. It stops the actor unless work was
// reserved in the meantime, and evicts the room when it has no connections.
func (r *Registry) hibernate(room *Room) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	room.mu.Lock()
	defer room.mu.Unlock()

	if room.pending > 0 {
		return false
	}
	room.running = false
	r.metrics.RoomHibernated()
	room.logger.Debug("Room hibernated", "connections", len(room.conns))

	if len(room.conns) == 0 && r.rooms[room.key] == room {
		delete(r.rooms, room.key)
		r.metrics.RoomEvicted()
		r.logger.Debug("Room evicted", "room", room.key.String())
	}
	return true
}

func (r *Registry) refreshLoop() {
	ticker := time.NewTicker(r.refreshEvery)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.refreshState()
		}
	}
}

// refreshState asks every live room to touch its connections' state.
// Hibernating rooms are woken for it.
func (r *Registry) refreshState() {
	r.mu.Lock()
	keys := make([]Key, 0, len(r.rooms))
	for key := range r.rooms {
		keys = append(keys, key)
	}
	r.mu.Unlock()

	for _, key := range keys {
		room, err := r.lookup(key, false)
		if err != nil {
			return
		}
		if room == nil {
			continue
		}
		if err := room.submit(r.ctx, op{kind: opRefresh}); err != nil {
			return
		}
	}
}

// Close disconnects every connection, clears their state and stops all
// room actors. Further Joins fail with domain.ErrRoomClosed.
func (r *Registry) Close(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	rooms := make([]*Room, 0, len(r.rooms))
	for _, room := range r.rooms {
		rooms = append(rooms, room)
		if err := room.reserve(); err != nil {
			rooms = rooms[:len(rooms)-1]
		}
	}
	r.rooms = make(map[Key]*Room)
	r.mu.Unlock()

	defer r.cancel()

	for _, room := range rooms {
		done := make(chan struct{})
		if err := room.submit(ctx, op{kind: opShutdown, done: done}); err != nil {
			return err
		}
		select {
		case <-done:
			r.metrics.RoomEvicted()
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	r.logger.Info("Room registry closed", "rooms", len(rooms))
	return nil
}
