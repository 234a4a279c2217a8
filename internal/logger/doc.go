// Package logger wraps zap for the monitor binaries.
//
// It keeps one global sugared logger with a console encoder, lets callers
// scope it through a context (ToContext, FromContext, WithName, WithKV) and
// exposes ctx-first helpers (Infof, WarnKV, ErrorKV, ...) so every component
// logs with the name and fields of the operation it serves.
package logger
