// Package realtime carries change events from the store to subscribers.
//
// The Hub fans committed events out to in-process streams with bounded
// buffers. A subscriber that falls behind is disconnected rather than
// allowed to stall publishers; its synchronizer resyncs on reconnect.
//
// Handler exposes the hub over WebSocket as JSON change frames, and Client
// is the remote counterpart: a listsync.Source backed by the HTTP API and
// the WebSocket endpoint.
package realtime
