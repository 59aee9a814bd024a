// Package stream owns the authenticated Capital.com streaming session:
// connect, subscribe, heartbeat, session-token renewal, and automatic
// reconnect with resubscribe. Ticks and state changes are emitted as
// discrete events on a consumer channel.
package stream
