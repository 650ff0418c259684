package hub

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/nfrund/huddle/internal/domain"
)

// roomPattern matches the room names clients may join: one per channel and
// one per workspace.
var roomPattern = regexp.MustCompile(`^(channel|workspace)-[A-Za-z0-9_-]+$`)

// Key identifies a room. Two requests resolving to equal keys always reach
// the same Room.
type Key struct {
	Party string
	Room  string
}

// String renders the key as "party/room".
func (k Key) String() string {
	return k.Party + "/" + k.Room
}

// Router derives room keys from request paths for a single party.
type Router struct {
	party string
}

// NewRouter creates a Router that only accepts the given party name.
func NewRouter(party string) *Router {
	return &Router{party: party}
}

// Party returns the accepted party name.
func (rt *Router) Party() string {
	return rt.party
}

// Resolve validates a party and room name pair. Any mismatch is reported as
// domain.ErrRoomNotFound.
func (rt *Router) Resolve(party, room string) (Key, error) {
	if party != rt.party {
		return Key{}, fmt.Errorf("%w: unknown party %q", domain.ErrRoomNotFound, party)
	}
	if !roomPattern.MatchString(room) {
		return Key{}, fmt.Errorf("%w: invalid room %q", domain.ErrRoomNotFound, room)
	}
	return Key{Party: party, Room: room}, nil
}

// ResolveString accepts either "party/room" or a bare room name, which is
// taken to belong to the router's party.
func (rt *Router) ResolveString(s string) (Key, error) {
	party, room, found := strings.Cut(s, "/")
	if !found {
		return rt.Resolve(rt.party, s)
	}
	return rt.Resolve(party, room)
}
