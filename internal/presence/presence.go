// Package presence derives the set of users present in a room from the
// state attached to its connections.
package presence

import (
	"github.com/nfrund/huddle/internal/connstate"
	"github.com/nfrund/huddle/internal/domain"
)

// Aggregate returns the distinct users attached to any connection in states.
//
// Connections without a user are skipped. A user attached to several
// connections appears once, at the position of its first appearance, with the
// record from the most recent attachment. The result is never nil.
func Aggregate(states []connstate.State) []domain.User {
	users := make([]domain.User, 0, len(states))
	index := make(map[string]int, len(states))
	attached := make([]connstate.State, 0, len(states))

	for _, st := range states {
		if !st.Identified() {
			continue
		}

		i, seen := index[st.User.ID]
		if !seen {
			index[st.User.ID] = len(users)
			users = append(users, *st.User)
			attached = append(attached, st)
			continue
		}

		// Ties keep the later connection.
		if !st.AttachedAt.Before(attached[i].AttachedAt) {
			users[i] = *st.User
			attached[i] = st
		}
	}

	return users
}
