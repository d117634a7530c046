// Package logger provides structured, component-scoped logging for hubd.
package logger

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Log is the global logger instance.
var Log zerolog.Logger

// Initialize sets up the global logger with the given level and format.
func Initialize(level string, pretty bool) {
	logLevel, err := zerolog.ParseLevel(level)
	if err != nil {
		logLevel = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(logLevel)

	if pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		})
	} else {
		zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	}

	Log = log.With().
		Str("service", "hubd").
		Logger()

	Log.Info().
		Str("level", logLevel.String()).
		Bool("pretty", pretty).
		Msg("logger initialized")
}

// GetLogger returns the global logger instance.
func GetLogger() *zerolog.Logger {
	return &Log
}

// Registry creates a logger scoped to the connection registry (component B).
func Registry() *zerolog.Logger {
	l := Log.With().Str("component", "registry").Logger()
	return &l
}

// Transport creates a logger scoped to the frame transport adapter (component C).
func Transport() *zerolog.Logger {
	l := Log.With().Str("component", "transport").Logger()
	return &l
}

// Correlator creates a logger scoped to the request correlator (component E).
func Correlator() *zerolog.Logger {
	l := Log.With().Str("component", "correlator").Logger()
	return &l
}

// Blob creates a logger scoped to the blob side-channel (component A).
func Blob() *zerolog.Logger {
	l := Log.With().Str("component", "blob").Logger()
	return &l
}

// Admission creates a logger scoped to admission control (component H).
func Admission() *zerolog.Logger {
	l := Log.With().Str("component", "admission").Logger()
	return &l
}

// HTTP creates a logger scoped to HTTP request handling.
func HTTP() *zerolog.Logger {
	l := Log.With().Str("component", "http").Logger()
	return &l
}

// Events creates a logger scoped to connection-event fan-out (component P).
func Events() *zerolog.Logger {
	l := Log.With().Str("component", "events").Logger()
	return &l
}

// Executor creates a logger scoped to the client executor contract (component I).
func Executor() *zerolog.Logger {
	l := Log.With().Str("component", "executor").Logger()
	return &l
}
