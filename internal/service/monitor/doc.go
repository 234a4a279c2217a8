// Package monitor runs the poller together with its consumer surfaces.
//
// Store is the in-process consumer of poller events: it keeps the latest
// snapshot of every system and forwards operator commands, with an audit
// entry, to the command sink announced by the poller. Run wires the store,
// the gRPC API, metrics, the websocket feed, the pub/sub publisher and the
// topology file watcher around one poller.
package monitor
