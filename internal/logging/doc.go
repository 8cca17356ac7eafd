// Package logging provides structured, rotating file-based logging for
// prism nodes. Each node writes JSON logs to ~/.prism/logs/ by default,
// optionally teed to stderr for foreground runs.
package logging
