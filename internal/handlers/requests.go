package handlers

// RoomParams identifies a room from the request path.
type RoomParams struct {
	Party string `param:"party" validate:"required"`
	Room  string `param:"room" validate:"required"`
}

// maxEventBytes bounds the body accepted by the broadcast endpoint.
const maxEventBytes = 1 << 20
