// Package logging provides structured, file-based logging with rotation
// for the cache and retrieval engine. Logs are written to
// ~/.arborcache/logs/engine.log by default, with an optional stderr mirror.
package logging
