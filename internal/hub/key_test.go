package hub

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nfrund/huddle/internal/domain"
)

func TestRouter_Resolve(t *testing.T) {
	rt := NewRouter("chat")

	key, err := rt.Resolve("chat", "channel-42")
	require.NoError(t, err)
	assert.Equal(t, Key{Party: "chat", Room: "channel-42"}, key)
	assert.Equal(t, "chat/channel-42", key.String())

	key, err = rt.Resolve("chat", "workspace-abc_DEF-1")
	require.NoError(t, err)
	assert.Equal(t, "workspace-abc_DEF-1", key.Room)

	invalid := []struct{ party, room string }{
		{"other", "channel-1"},
		{"chat", "channel-"},
		{"chat", "thread-1"},
		{"chat", "channel-1/extra"},
		{"chat", "channel-1 "},
		{"chat", ""},
	}
	for _, tc := range invalid {
		_, err := rt.Resolve(tc.party, tc.room)
		assert.ErrorIs(t, err, domain.ErrRoomNotFound, "%s/%s", tc.party, tc.room)
	}
}

func TestRouter_ResolveString(t *testing.T) {
	rt := NewRouter("chat")

	key, err := rt.ResolveString("channel-7")
	require.NoError(t, err)
	assert.Equal(t, "chat/channel-7", key.String())

	key, err = rt.ResolveString("chat/workspace-3")
	require.NoError(t, err)
	assert.Equal(t, "chat/workspace-3", key.String())

	_, err = rt.ResolveString("elsewhere/channel-7")
	assert.ErrorIs(t, err, domain.ErrRoomNotFound)
}
