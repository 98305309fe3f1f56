// Package protocol owns the wire contract shared by the socket wrapper.
//
// Ownership boundary:
// - error taxonomy (this package)
// - frame primitives (frame)
// - (tag, inline) envelope codec (envelope)
// - closed protocol value model (value)
package protocol
