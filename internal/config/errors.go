package config

import "errors"

var (
	// ErrInvalidConcurrency is returned when concurrency is not greater than 0
	ErrInvalidConcurrency = errors.New("concurrency must be greater than 0")
	// ErrInvalidTimeout is returned when request timeout is not greater than 0
	ErrInvalidTimeout = errors.New("steam.request_timeout must be greater than 0")
	// ErrInvalidDelay is returned when request delay is negative
	ErrInvalidDelay = errors.New("request_delay cannot be negative")
	// ErrInvalidLimit is returned when limit is negative
	ErrInvalidLimit = errors.New("limit cannot be negative")
	// ErrInvalidEndpoint is returned when a required endpoint is not an absolute URL
	ErrInvalidEndpoint = errors.New("steam endpoints must be absolute URLs")
	// ErrEmptyDatabasePath is returned when database path is empty
	ErrEmptyDatabasePath = errors.New("storage.database_path cannot be empty")
	// ErrEmptyDSN is returned when the postgres driver has no DSN
	ErrEmptyDSN = errors.New("storage.dsn cannot be empty for the postgres driver")
	// ErrUnknownDriver is returned for a storage driver other than sqlite or postgres
	ErrUnknownDriver = errors.New("storage.driver must be sqlite or postgres")
)
