// Package nats provides the embedded NATS broker and the frame and control
// channels built on it.
//
// # Architecture
//
//   - Server: embedded NATS server running in the main process
//   - FramePublisher: publishes wire messages, an alternative sink.Broadcaster
//     to the websocket hub
//   - FrameSubscriber: receives wire messages for the ingest relay
//   - ControlBridge: applies control commands to the running pipeline
//   - ControlPublisher: sends control commands (framestream control)
//
// # Subject Hierarchy
//
//	framestream.frames.{channel}       # wire messages, binary (publisher → subscribers)
//	framestream.control.streaming      # ControlMessage, request/reply (client → instance)
//	framestream.state                  # StateMessage after every control command
//
// Frame payloads are wire messages (name || payload || int32 LE name length).
// The package uses fire-and-forget core NATS, no JetStream. Publishers
// degrade to dropping frames while NATS is unavailable.
//
// # Debugging with nats CLI
//
// Watch frame traffic (binary payloads, so count only):
//
//	nats sub "framestream.frames.>" --count=10 --raw > /dev/null
//
// Disable streaming on a running instance:
//
//	nats req "framestream.control.streaming" '{"action":"disable","reason":"manual"}'
//
// Watch state changes:
//
//	nats sub "framestream.state" | jq .
//
// # Message Formats
//
// ControlMessage (framestream.control.streaming):
//
//	{
//	  "action": "delay",
//	  "delay": 5,
//	  "timestamp": "2025-01-27T10:30:00Z",
//	  "reason": "manual"
//	}
//
// StateMessage (framestream.state and control replies):
//
//	{
//	  "enabled": true,
//	  "delay": 5,
//	  "timestamp": "2025-01-27T10:30:00Z",
//	  "reason": "manual"
//	}
package nats
