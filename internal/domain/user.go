package domain

// User is an identified participant as announced by a client over the wire.
// The hub treats it as opaque apart from ID, which is its identity key.
type User struct {
	ID       string  `json:"id" validate:"required"`
	FullName *string `json:"full_name"`
	Email    *string `json:"email"`
	Picture  *string `json:"picture"`
}

// UserRef carries only a user's identity, as sent with remove-user.
type UserRef struct {
	ID string `json:"id" validate:"required"`
}
