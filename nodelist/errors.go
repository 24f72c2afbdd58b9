package nodelist

import "errors"

// Sentinel errors for the NodeList operations, one flat errors.go per
// package.
var (
	ErrNodeExists   = errors.New("nodelist: node already exists")
	ErrNodeNotFound = errors.New("nodelist: node not found")
	ErrAlreadyBanned = errors.New("nodelist: node already banned")
	ErrNotBanned    = errors.New("nodelist: node not banned")
	ErrUnknownAlias = errors.New("nodelist: unknown alias")
)
