// Package streaming is the websocket transport for wire messages.
//
// A Server accepts sessions on a single service path (ws://host:4649/Image by
// default) and registers them with a Hub. The Hub broadcasts binary messages
// to every session and implements sink.Broadcaster. Binary messages sent by
// peers are handed to ServerOptions.OnMessage.
//
// A Client dials a service, hands every binary message to its handler and
// reconnects until its context is cancelled.
package streaming
