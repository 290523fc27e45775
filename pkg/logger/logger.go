package logger

import (
	"os"
	"strings"

	waLog "go.mau.fi/whatsmeow/util/log"
)

// Logger bundles the root logger with the sub-loggers handed to each layer.
type Logger struct {
	App   waLog.Logger
	HTTP  waLog.Logger
	Store waLog.Logger
	Relay waLog.Logger
}

// New builds the loggers for the given level (DEBUG, INFO, WARN, ERROR).
// Colors follow the NO_COLOR convention.
func New(level string) *Logger {
	level = strings.ToUpper(strings.TrimSpace(level))
	if level == "" {
		level = "INFO"
	}
	app := waLog.Stdout("App", level, os.Getenv("NO_COLOR") == "")
	return &Logger{
		App:   app,
		HTTP:  app.Sub("HTTP"),
		Store: app.Sub("Store"),
		Relay: app.Sub("Relay"),
	}
}

// Component returns a sub-logger for one service.
func (l *Logger) Component(name string) waLog.Logger {
	return l.App.Sub(name)
}

// InitForTests only prints warnings and errors so test output stays readable.
func InitForTests() *Logger {
	app := waLog.Stdout("Test", "WARN", false)
	return &Logger{App: app, HTTP: waLog.Noop, Store: waLog.Noop, Relay: app.Sub("Relay")}
}
