// Package websocket is the WebSocket dispatch module of the wisp host.
//
// Handler modules implement PathHandler and declare PathHandlerCapability.
// The Server collects them at link time, keyed by normalized path, and routes
// every upgrade request to the handler owning the request path. Unknown paths
// get a 404 before any upgrade.
//
// Each connection gets a Session. Frames are read and dispatched on a
// per-session goroutine in wire order; writes are queued and flushed in issue
// order by a per-session writer goroutine, each returning a *Result.
package websocket
