// Package relay pushes topic events to browser subscribers over WebSocket.
//
// Data flow:
//
//	Kafka topic → Bridge → Hub → peer → WebSocket client
//
// Clients speak a small JSON frame protocol modeled on STOMP: CONNECT,
// SUBSCRIBE, UNSUBSCRIBE and DISCONNECT from the client; CONNECTED,
// RECEIPT, MESSAGE and ERROR from the server. New subscribers first get
// the recent history of their destination, newest first, then live
// events. Peers that cannot keep up are disconnected.
package relay
