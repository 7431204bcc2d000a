// Package notifications delivers archive events via ntfy.
//
// NewService returns a no-op Service when no topic is configured, and
// suppresses event families the notifications section turns off, so callers
// publish unconditionally.
package notifications
