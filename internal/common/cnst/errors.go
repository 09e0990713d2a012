package cnst

import "errors"

var (
	// ErrInvalidUserID is returned when a user id is missing or not a canonical UUID
	ErrInvalidUserID = errors.New("invalid user_id")
	// ErrInvalidSessionID is returned when a session id is missing or not a canonical UUID
	ErrInvalidSessionID = errors.New("invalid session id")
	// ErrEventRequired is returned when a direct submission carries no event name
	ErrEventRequired = errors.New("event required")
	// ErrConnectionLimit is returned when admission control refuses a connection
	ErrConnectionLimit = errors.New("connection limit exceeded")

	ErrUnsupportedStorage  = errors.New("unsupported storage type")
	ErrUnsupportedDatabase = errors.New("unsupported database type")
	ErrSchemaNotFound      = errors.New("schema message not found")
	ErrBusClosed           = errors.New("bus closed")
)
