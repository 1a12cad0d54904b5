// Package logging provides structured logging with per-module levels.
//
// Loggers are slog loggers tagged with a module attribute. Output goes to
// stdout when it is connected to a terminal, pipe or file, to the systemd
// journal when journald is running, and always to a small in-memory history
// served by the HTTP API.
//
// Initialize once at startup, then ask for module loggers:
//
//	logging.Initialize(logging.Config{
//		Level:  "info",
//		Format: "text",
//		Modules: map[string]string{
//			"pipeline": "debug",
//			"nats":     "warn",
//		},
//	})
//
//	logger := logging.GetLogger("pipeline")
//	logger.Info("Frame produced", "source", "cam1")
//
// Loggers obtained before Initialize keep working; their levels follow the
// configuration once it is applied.
//
// # Viewing Logs
//
//	journalctl -t framestream -f
//	journalctl -t framestream MODULE=pipeline
//	journalctl -t framestream SOURCE=cam1 -p warning
//
// # Configuration
//
//	[logging]
//	level = "info"
//	format = "text"
//	pipeline = "debug"   # every other key is a module level
//	streaming = "warn"
package logging
