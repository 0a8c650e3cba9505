// Package comm implements a CoAP client over reliable byte streams.
//
// A Conn owns one transport, reassembles frames from it and correlates
// responses with outstanding exchanges. All conns registered with a Registry
// are serviced by a single worker which reads ready transports, dispatches
// complete frames and sweeps exchanges for timeouts.
package comm
