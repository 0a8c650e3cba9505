// Package msgs provides the CoAP message model and its codec.
package msgs

// Messages are exchanged over reliable transports (TCP, TLS, WebSockets)
// using the framing of RFC 8323: a variable length header carrying the
// length of options and payload, followed by code, token, options and
// an optional payload.
//
// Producer: CoAP server
// Consumer: CoAP client (package comm)
