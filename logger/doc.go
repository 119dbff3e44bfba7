// Package logger provides structured logging for medallion using zerolog.
//
// It supports JSON and console output, level configuration, and
// component-scoped loggers with structured fields.
//
// # Configuration
//
//	logging:
//	  level: "info"
//	  format: "console"
//
// # Usage
//
//	log := logger.WithComponent("cascade")
//	log.Info("unit finished", logger.Fields(logger.FieldUnit, "eia", logger.FieldOutcome, "succeeded"))
package logger
