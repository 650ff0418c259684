package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nfrund/huddle/internal/connstate"
	"github.com/nfrund/huddle/internal/domain"
	"github.com/nfrund/huddle/internal/metrics"
	"github.com/nfrund/huddle/internal/protocol"
	"github.com/nfrund/huddle/internal/pubsub"
)

// fakeSocket records every frame the room sends it.
type fakeSocket struct {
	id string

	mu     sync.Mutex
	frames [][]byte
	closed string
	full   bool
}

func newFakeSocket(id string) *fakeSocket {
	return &fakeSocket{id: id}
}

func (s *fakeSocket) ID() string { return s.id }

func (s *fakeSocket) Send(data []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.full {
		return false
	}
	s.frames = append(s.frames, data)
	return true
}

func (s *fakeSocket) Close(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = reason
}

func (s *fakeSocket) Frames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.frames))
	for _, f := range s.frames {
		out = append(out, string(f))
	}
	return out
}

func (s *fakeSocket) ClosedReason() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

type wireFrame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// presenceIDs returns the user ids of every presence frame s received, in order.
func (s *fakeSocket) presenceIDs(t *testing.T) [][]string {
	t.Helper()
	var out [][]string
	for _, raw := range s.Frames() {
		var f wireFrame
		require.NoError(t, json.Unmarshal([]byte(raw), &f))
		if f.Type != "presence" {
			continue
		}
		var p protocol.PresencePayload
		require.NoError(t, json.Unmarshal(f.Payload, &p))
		ids := make([]string, 0, len(p.Users))
		for _, u := range p.Users {
			ids = append(ids, u.ID)
		}
		out = append(out, ids)
	}
	return out
}

func (s *fakeSocket) lastPresence(t *testing.T) []string {
	t.Helper()
	all := s.presenceIDs(t)
	require.NotEmpty(t, all, "socket %s received no presence frame", s.id)
	return all[len(all)-1]
}

// nonPresence returns every frame that is not a presence snapshot.
func (s *fakeSocket) nonPresence(t *testing.T) []string {
	t.Helper()
	var out []string
	for _, raw := range s.Frames() {
		var f wireFrame
		require.NoError(t, json.Unmarshal([]byte(raw), &f))
		if f.Type != "presence" {
			out = append(out, raw)
		}
	}
	return out
}

type harness struct {
	t        *testing.T
	registry *Registry
	backend  *connstate.MemoryBackend
	metrics  *metrics.Metrics
	router   *Router
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	backend := connstate.NewMemoryBackend()
	m := metrics.New()
	opts = append([]Option{WithMetrics(m)}, opts...)
	reg := NewRegistry(connstate.NewStore(backend), opts...)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = reg.Close(ctx)
	})
	return &harness{t: t, registry: reg, backend: backend, metrics: m, router: NewRouter("chat")}
}

func (h *harness) key(room string) Key {
	h.t.Helper()
	k, err := h.router.Resolve("chat", room)
	require.NoError(h.t, err)
	return k
}

func (h *harness) join(room, id string) (*fakeSocket, *Session) {
	h.t.Helper()
	sock := newFakeSocket(id)
	sess, err := h.registry.Join(context.Background(), h.key(room), sock)
	require.NoError(h.t, err)
	return sock, sess
}

func (h *harness) send(sess *Session, frame string) {
	h.t.Helper()
	require.NoError(h.t, sess.Receive(context.Background(), []byte(frame)))
}

// settle waits until every op already queued on room has been handled.
func (h *harness) settle(room string) []string {
	h.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	users, err := h.registry.Presence(ctx, h.key(room))
	require.NoError(h.t, err)
	ids := make([]string, 0, len(users))
	for _, u := range users {
		ids = append(ids, u.ID)
	}
	return ids
}

func addUser(id string) string {
	return `{"type":"add-user","payload":{"id":"` + id + `","full_name":"` + id + `","email":null,"picture":null}}`
}

func removeUser(id string) string {
	return `{"type":"remove-user","payload":{"id":"` + id + `"}}`
}

const repliesIncrement = `{"type":"message:replies:increment","payload":{"messageId":"m1","delta":1}}`

func TestRoom_JoinSnapshot(t *testing.T) {
	h := newHarness(t)

	_, a := h.join("channel-1", "conn-a")
	h.send(a, addUser("alice"))
	_, b := h.join("channel-1", "conn-b")
	h.send(b, addUser("bob"))
	h.settle("channel-1")

	late, _ := h.join("channel-1", "conn-c")
	h.settle("channel-1")

	frames := late.presenceIDs(t)
	require.Len(t, frames, 1, "the late joiner gets exactly one targeted snapshot")
	assert.ElementsMatch(t, []string{"alice", "bob"}, frames[0])
}

func TestRoom_EmptyRoomSnapshot(t *testing.T) {
	h := newHarness(t)

	sock, _ := h.join("workspace-9", "conn-a")
	h.settle("workspace-9")

	require.Len(t, sock.Frames(), 1)
	assert.JSONEq(t, `{"type":"presence","payload":{"users":[]}}`, sock.Frames()[0])
}

func TestRoom_PresenceConsistency(t *testing.T) {
	h := newHarness(t)

	watcher, _ := h.join("channel-1", "watcher")
	_, c1 := h.join("channel-1", "c1")
	_, c2 := h.join("channel-1", "c2")
	_, c3 := h.join("channel-1", "c3")

	h.send(c1, addUser("alice"))
	h.send(c2, addUser("bob"))
	h.send(c3, addUser("carol"))
	h.send(c2, removeUser("bob"))
	h.send(c3, addUser("dave")) // re-identify replaces carol
	require.NoError(t, c1.Leave(context.Background(), LeaveClosed))
	h.send(c2, addUser("erin"))

	assert.ElementsMatch(t, []string{"dave", "erin"}, h.settle("channel-1"))
	assert.ElementsMatch(t, []string{"dave", "erin"}, watcher.lastPresence(t))
}

func TestRoom_PresenceChangeReachesEveryone(t *testing.T) {
	h := newHarness(t)

	a, sa := h.join("channel-1", "conn-a")
	b, _ := h.join("channel-1", "conn-b")
	h.send(sa, addUser("alice"))
	h.settle("channel-1")

	// The connection that changed state is told too.
	assert.Equal(t, []string{"alice"}, a.lastPresence(t))
	assert.Equal(t, []string{"alice"}, b.lastPresence(t))
}

func TestRoom_IdempotentIdentification(t *testing.T) {
	h := newHarness(t)

	sock, sess := h.join("channel-1", "conn-a")
	h.send(sess, addUser("alice"))
	h.send(sess, addUser("alice"))

	assert.Equal(t, []string{"alice"}, h.settle("channel-1"))
	assert.Equal(t, []string{"alice"}, sock.lastPresence(t))
}

func TestRoom_SameUserOnTwoConnections(t *testing.T) {
	h := newHarness(t)

	watcher, _ := h.join("channel-1", "watcher")
	_, tab1 := h.join("channel-1", "tab-1")
	_, tab2 := h.join("channel-1", "tab-2")
	h.send(tab1, addUser("alice"))
	h.send(tab2, addUser("alice"))
	assert.Equal(t, []string{"alice"}, h.settle("channel-1"))

	require.NoError(t, tab1.Leave(context.Background(), LeaveClosed))
	assert.Equal(t, []string{"alice"}, h.settle("channel-1"), "alice is still on her second tab")
	assert.Equal(t, []string{"alice"}, watcher.lastPresence(t))
}

func TestRoom_SelfExclusion(t *testing.T) {
	h := newHarness(t)

	x, sx := h.join("channel-1", "x")
	y, _ := h.join("channel-1", "y")
	z, _ := h.join("channel-1", "z")

	h.send(sx, `{"type":"reaction:updated","payload":{"messageId":"m1","reactions":[{"emoji":"🎉","count":1,"reactedByMe":true}]}}`)
	h.settle("channel-1")

	want := `{"type":"reaction:updated","payload":{"messageId":"m1","reactions":[{"emoji":"🎉","count":1,"reactedByMe":true}]}}`
	assert.Empty(t, x.nonPresence(t))
	require.Len(t, y.nonPresence(t), 1)
	assert.JSONEq(t, want, y.nonPresence(t)[0])
	require.Len(t, z.nonPresence(t), 1)
	assert.JSONEq(t, want, z.nonPresence(t)[0])
}

func TestRoom_ThreadEventsShareTheChannelRoom(t *testing.T) {
	h := newHarness(t)

	_, sx := h.join("channel-1", "x")
	y, _ := h.join("channel-1", "y")

	h.send(sx, `{"type":"thread:reaction:updated","payload":{"messageId":"r1","reactions":[],"threadId":"m1"}}`)
	h.settle("channel-1")

	require.Len(t, y.nonPresence(t), 1)
	assert.JSONEq(t, `{"type":"thread:reaction:updated","payload":{"messageId":"r1","reactions":[],"threadId":"m1"}}`, y.nonPresence(t)[0])
}

func TestRoom_ReplyCountRelayIsolatedByRoom(t *testing.T) {
	h := newHarness(t)

	_, sx := h.join("channel-42", "x")
	y, _ := h.join("channel-42", "y")
	z, _ := h.join("channel-7", "z")

	h.send(sx, repliesIncrement)
	h.settle("channel-42")
	h.settle("channel-7")

	require.Len(t, y.nonPresence(t), 1)
	assert.JSONEq(t, repliesIncrement, y.nonPresence(t)[0])

	// z only ever saw its own join snapshot.
	assert.Empty(t, z.nonPresence(t))
	assert.Len(t, z.Frames(), 1)
}

func TestRoom_DisconnectCleanup(t *testing.T) {
	h := newHarness(t)

	_, x := h.join("channel-42", "x")
	y, sy := h.join("channel-42", "y")
	h.send(x, addUser("alice"))
	h.send(sy, addUser("bob"))
	assert.ElementsMatch(t, []string{"alice", "bob"}, h.settle("channel-42"))

	require.NoError(t, x.Leave(context.Background(), LeaveError))
	h.settle("channel-42")

	assert.Equal(t, []string{"bob"}, y.lastPresence(t))

	_, err := h.backend.Get(context.Background(), "x")
	assert.ErrorIs(t, err, domain.ErrStateNotFound, "state is cleared on disconnect")
}

func TestRoom_DropsMalformedFrames(t *testing.T) {
	h := newHarness(t)

	x, sx := h.join("channel-1", "x")
	y, _ := h.join("channel-1", "y")
	h.settle("channel-1")
	before := len(y.Frames())

	h.send(sx, `{"type":"unknown"}`)
	h.send(sx, `hello`)
	h.send(sx, `{"type":"message:replies:increment","payload":{"messageId":"m1"}}`)
	h.settle("channel-1")

	assert.Len(t, y.Frames(), before, "nothing is broadcast")
	assert.Empty(t, x.nonPresence(t), "nothing is sent back")
	assert.Empty(t, x.ClosedReason(), "the connection stays open")

	// The connection keeps working.
	h.send(sx, repliesIncrement)
	h.settle("channel-1")
	assert.Len(t, y.nonPresence(t), 1)
}

func TestRoom_ClientPresenceFrameIsIgnored(t *testing.T) {
	h := newHarness(t)

	_, sx := h.join("channel-1", "x")
	y, _ := h.join("channel-1", "y")
	h.settle("channel-1")
	before := len(y.Frames())

	h.send(sx, `{"type":"presence","payload":{"users":[{"id":"mallory","full_name":null,"email":null,"picture":null}]}}`)
	assert.Empty(t, h.settle("channel-1"))
	assert.Len(t, y.Frames(), before)
}

func TestRoom_RemoveUserKeepsConnectionOpen(t *testing.T) {
	h := newHarness(t)

	x, sx := h.join("channel-1", "x")
	h.send(sx, addUser("alice"))
	h.send(sx, removeUser("someone-else"))
	assert.Empty(t, h.settle("channel-1"), "remove-user detaches the sender whatever id it names")
	assert.Empty(t, x.lastPresence(t))
	assert.Empty(t, x.ClosedReason())

	h.send(sx, addUser("alice"))
	assert.Equal(t, []string{"alice"}, h.settle("channel-1"))
}

func TestRoom_CorruptStateReadsAsAnonymous(t *testing.T) {
	h := newHarness(t)

	_, sx := h.join("channel-1", "x")
	h.send(sx, addUser("alice"))
	h.settle("channel-1")

	require.NoError(t, h.backend.Put(context.Background(), "x", []byte(`{"user":{"full_name":"no id"}}`)))
	late, _ := h.join("channel-1", "late")
	h.settle("channel-1")

	assert.Empty(t, late.lastPresence(t))
}

func TestRoom_SlowConsumerDoesNotBlockRoom(t *testing.T) {
	h := newHarness(t)

	_, sx := h.join("channel-1", "x")
	slow, _ := h.join("channel-1", "slow")
	y, _ := h.join("channel-1", "y")
	h.settle("channel-1")

	slow.mu.Lock()
	slow.full = true
	slow.mu.Unlock()

	h.send(sx, repliesIncrement)
	h.settle("channel-1")

	assert.Len(t, y.nonPresence(t), 1)
	assert.Empty(t, slow.nonPresence(t))
	assert.Empty(t, slow.ClosedReason())
}

func TestRegistry_SameKeySameRoom(t *testing.T) {
	h := newHarness(t)

	_, a := h.join("channel-1", "a")
	_, b := h.join("channel-1", "b")
	_, c := h.join("channel-2", "c")

	assert.Same(t, a.Room(), b.Room())
	assert.NotSame(t, a.Room(), c.Room())
	assert.Equal(t, 2, h.registry.Len())
}

func TestRegistry_ConcurrentJoinsShareOneRoom(t *testing.T) {
	h := newHarness(t)

	const n = 32
	rooms := make([]*Room, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sess, err := h.registry.Join(context.Background(), h.key("channel-1"), newFakeSocket(fmt.Sprintf("conn-%d", i)))
			if assert.NoError(t, err) {
				rooms[i] = sess.Room()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, h.registry.Len())
	for _, r := range rooms {
		assert.Same(t, rooms[0], r)
	}
}

func TestRoom_HibernatesAndRespawns(t *testing.T) {
	h := newHarness(t, WithHibernateAfter(20*time.Millisecond))

	_, sx := h.join("channel-1", "x")
	h.send(sx, addUser("alice"))
	h.settle("channel-1")

	room, ok := h.registry.Lookup(h.key("channel-1"))
	require.True(t, ok)
	require.Eventually(t, func() bool { return !room.Running() }, 2*time.Second, 5*time.Millisecond)

	// A room with connections stays registered while hibernating.
	assert.Equal(t, 1, h.registry.Len())

	// The next joiner sees alice, recovered from stored connection state.
	late, sl := h.join("channel-1", "late")
	assert.Same(t, room, sl.Room())
	h.settle("channel-1")
	assert.Equal(t, []string{"alice"}, late.presenceIDs(t)[0])

	// The hibernated connection still relays.
	h.send(sx, repliesIncrement)
	h.settle("channel-1")
	assert.Len(t, late.nonPresence(t), 1)
}

func TestRoom_HibernationRacesWithJoins(t *testing.T) {
	h := newHarness(t, WithHibernateAfter(time.Microsecond))

	for i := 0; i < 500; i++ {
		_, sess := h.join("channel-1", fmt.Sprintf("conn-%d", i))
		if i%50 == 0 {
			time.Sleep(time.Millisecond)
		}
		require.NoError(t, sess.Leave(context.Background(), LeaveClosed))
	}

	require.Eventually(t, func() bool { return h.registry.Len() == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestRegistry_RefreshesExpiringState(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	const ttl = 24 * time.Hour

	reg := NewRegistry(
		connstate.NewStore(connstate.NewRedisBackend(client, "huddle:conn:", ttl)),
		WithStateRefresh(10*time.Millisecond),
	)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = reg.Close(ctx)
		client.Close()
	})
	h := &harness{t: t, registry: reg, router: NewRouter("chat")}

	_, sx := h.join("channel-1", "x")
	h.send(sx, addUser("alice"))
	h.settle("channel-1")

	// A connection that stays open outlives the TTL several times over.
	for i := 0; i < 3; i++ {
		mr.FastForward(20 * time.Hour)
		require.Eventually(t, func() bool { return mr.TTL("huddle:conn:x") == ttl }, 2*time.Second, 5*time.Millisecond)
	}

	late, _ := h.join("channel-1", "late")
	h.settle("channel-1")
	assert.Equal(t, []string{"alice"}, late.presenceIDs(t)[0])
}

func TestRegistry_EvictsIdleEmptyRooms(t *testing.T) {
	h := newHarness(t, WithHibernateAfter(20*time.Millisecond))

	_, sx := h.join("channel-1", "x")
	first := sx.Room()
	require.NoError(t, sx.Leave(context.Background(), LeaveClosed))

	require.Eventually(t, func() bool { return h.registry.Len() == 0 }, 2*time.Second, 5*time.Millisecond)

	_, again := h.join("channel-1", "y")
	assert.NotSame(t, first, again.Room(), "a fresh room is created after eviction")
}

func TestRegistry_Publish(t *testing.T) {
	h := newHarness(t)

	x, _ := h.join("channel-1", "x")
	y, _ := h.join("channel-1", "y")
	h.settle("channel-1")

	frame, err := protocol.DecodeDomainEvent([]byte(repliesIncrement))
	require.NoError(t, err)

	require.NoError(t, h.registry.Publish(context.Background(), h.key("channel-1"), frame))
	h.settle("channel-1")

	// Collaborator events have no sender to exclude.
	assert.Len(t, x.nonPresence(t), 1)
	assert.Len(t, y.nonPresence(t), 1)

	t.Run("room not live is a no-op", func(t *testing.T) {
		require.NoError(t, h.registry.Publish(context.Background(), h.key("channel-99"), frame))
		_, ok := h.registry.Lookup(h.key("channel-99"))
		assert.False(t, ok)
	})

	t.Run("presence frames are rejected", func(t *testing.T) {
		err := h.registry.Publish(context.Background(), h.key("channel-1"), protocol.NewPresence(nil))
		assert.ErrorIs(t, err, domain.ErrMalformedFrame)
	})
}

func TestRegistry_PresenceOfUnknownRoom(t *testing.T) {
	h := newHarness(t)

	users, err := h.registry.Presence(context.Background(), h.key("channel-404"))
	require.NoError(t, err)
	assert.NotNil(t, users)
	assert.Empty(t, users)
	assert.Zero(t, h.registry.Len())
}

func TestRegistry_Close(t *testing.T) {
	h := newHarness(t)

	x, sx := h.join("channel-1", "x")
	h.send(sx, addUser("alice"))
	y, _ := h.join("workspace-1", "y")
	h.settle("channel-1")
	h.settle("workspace-1")

	require.NoError(t, h.registry.Close(context.Background()))

	assert.Equal(t, "server shutting down", x.ClosedReason())
	assert.Equal(t, "server shutting down", y.ClosedReason())
	assert.Zero(t, h.backend.Len())
	assert.Zero(t, h.registry.Len())

	_, err := h.registry.Join(context.Background(), h.key("channel-1"), newFakeSocket("z"))
	assert.ErrorIs(t, err, domain.ErrRoomClosed)

	// Late leaves from closing sockets are harmless.
	assert.ErrorIs(t, sx.Leave(context.Background(), LeaveClosed), domain.ErrRoomClosed)

	// Closing twice is fine.
	require.NoError(t, h.registry.Close(context.Background()))
}

func TestRegistry_CloseAnnouncesShutdown(t *testing.T) {
	ctx := context.Background()
	bus := pubsub.NewWatermillBridge()
	defer bus.Close()

	closed := make(chan ConnectionEvent, 4)
	require.NoError(t, pubsub.Subscribe(ctx, bus, EventConnectionClosed, func(ctx context.Context, e ConnectionEvent, msg pubsub.Message) error {
		closed <- e
		return nil
	}))

	h := newHarness(t, WithPublisher(bus))
	h.join("channel-1", "x")
	h.settle("channel-1")
	require.NoError(t, h.registry.Close(ctx))

	select {
	case e := <-closed:
		assert.Equal(t, ConnectionEvent{Room: "chat/channel-1", ConnID: "x", Reason: LeaveShutdown}, e)
	case <-time.After(2 * time.Second):
		t.Fatal("no connection closed event")
	}
}

func TestRegistry_PublishesLifecycleEvents(t *testing.T) {
	ctx := context.Background()
	bus := pubsub.NewWatermillBridge()
	defer bus.Close()

	changes := make(chan PresenceChangedEvent, 16)
	require.NoError(t, pubsub.Subscribe(ctx, bus, EventPresenceChanged, func(ctx context.Context, e PresenceChangedEvent, msg pubsub.Message) error {
		changes <- e
		return nil
	}))
	opened := make(chan ConnectionEvent, 16)
	require.NoError(t, pubsub.Subscribe(ctx, bus, EventConnectionOpened, func(ctx context.Context, e ConnectionEvent, msg pubsub.Message) error {
		assert.Equal(t, "chat/channel-1", msg.Metadata[pubsub.MetaKeyRoom])
		opened <- e
		return nil
	}))

	h := newHarness(t, WithPublisher(bus))
	_, sx := h.join("channel-1", "x")
	h.send(sx, addUser("alice"))

	select {
	case e := <-opened:
		assert.Equal(t, ConnectionEvent{Room: "chat/channel-1", ConnID: "x"}, e)
	case <-time.After(2 * time.Second):
		t.Fatal("no connection opened event")
	}

	select {
	case e := <-changes:
		assert.Equal(t, "chat/channel-1", e.Room)
		require.Len(t, e.Users, 1)
		assert.Equal(t, "alice", e.Users[0].ID)
	case <-time.After(2 * time.Second):
		t.Fatal("no presence changed event")
	}
}

func TestRegistry_SubscribeBroadcasts(t *testing.T) {
	ctx := context.Background()
	bus := pubsub.NewWatermillBridge()
	defer bus.Close()

	h := newHarness(t)
	require.NoError(t, h.registry.SubscribeBroadcasts(ctx, bus, h.router))

	x, _ := h.join("channel-42", "x")
	h.settle("channel-42")

	require.NoError(t, pubsub.Publish(ctx, bus, EventBroadcastRequested,
		json.RawMessage(repliesIncrement),
		map[string]string{pubsub.MetaKeyRoom: "channel-42"}))

	require.Eventually(t, func() bool { return len(x.nonPresence(t)) == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.JSONEq(t, repliesIncrement, x.nonPresence(t)[0])
}
