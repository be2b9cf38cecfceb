package database

import "errors"

// ErrNotReady is returned by Ping when the pool cannot reach the server.
var ErrNotReady = errors.New("database not ready")
