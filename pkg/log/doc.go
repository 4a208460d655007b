/*
Package log provides structured logging for the indexer using zerolog.

Init configures the global Logger once at startup from config.LogSettings
(level, JSON vs console output). Every long-running component then derives
a scoped child logger via WithComponent, WithEntity, WithTable, or
WithHeight rather than touching the global Logger directly, so a single
log line carries enough context (entity name, table name, height) to
correlate a failure with the table writer, syncer session, or batch that
produced it without grepping through unstructured text.
*/
package log
