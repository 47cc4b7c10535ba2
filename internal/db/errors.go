package db

import "errors"

// Sentinel errors shared by every backend.
var (
	ErrKeyNotFound   = errors.New("db: key not found")
	ErrIndexNotFound = errors.New("db: index not found")
	ErrIndexExists   = errors.New("db: index already exists")
	ErrConflict      = errors.New("db: concurrent modification")
	ErrUnsupported   = errors.New("db: operation not supported by backend")
)

// Op constants map to Redis command names for error context.
const (
	OpCreateIndex = "FT.CREATE"
	OpDropIndex   = "FT.DROPINDEX"
	OpIndexInfo   = "FT.INFO"
	OpSearch      = "FT.SEARCH"
	OpDel         = "DEL"
	OpHGetAll     = "HGETALL"
	OpHUpdate     = "EXEC"
	OpExists      = "EXISTS"
	OpScan        = "SCAN"
	OpGet         = "GET"
	OpSet         = "SET"
	OpExpire      = "EXPIRE"
	OpTTL         = "PTTL"
)

// Error wraps a backend failure with the command and the key or index it
// touched. Match the cause with errors.Is.
type Error struct {
	Op  string
	Key string // hash key, or index name for FT.* commands; may be empty
	Err error
}

func (e *Error) Error() string {
	if e.Key == "" {
		return e.Op + ": " + e.Err.Error()
	}
	return e.Op + " " + e.Key + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// IsUnsupported reports whether err means the backend lacks the operation,
// such as key expiry on the bolt store.
func IsUnsupported(err error) bool {
	return errors.Is(err, ErrUnsupported)
}
