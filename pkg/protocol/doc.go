// Package protocol implements the JSON wire protocol spoken between
// collabcode clients and the relay.
//
// Every WebSocket text frame carries exactly one JSON object with a
// "type" discriminator. The set of frame types is closed: each one is a
// Go struct implementing Message, and the unexported marker method keeps
// other packages from adding variants.
//
// # Client frames
//
// These are sent by a client and, except for the handshake, relayed by the
// server to every other connection after the server stamps senderId and
// username:
//
//   - userInfo: identity handshake, sent once after connect, never relayed
//   - cursor:   caret position (line, character)
//   - edit:     replacement over a half-open range
//   - chat:     chat message
//   - reaction: reaction to a chat message
//
// # Server frames
//
// These are synthesized by the relay and are rejected when a client sends
// them:
//
//   - welcome:    tells a new connection its assigned identifier
//   - userJoined: a connection joined (sent to everyone else)
//   - userLeft:   a connection left or was evicted (sent to everyone else)
//   - userCount:  number of live connections (sent to everyone)
//   - roster:     identifier to display name map (sent to everyone)
//   - error:      malformed input, sent to the offending connection only
//
// # Positions
//
// Positions are zero-based line and character offsets, where character
// counts UTF-16 code units within the line. A Range is half-open:
// [Start, End).
package protocol
