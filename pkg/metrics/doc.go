/*
Package metrics defines and registers the indexer's Prometheus metrics:
reorder buffer depth and drop/duplicate counters, batcher emission counts,
table writer queue depth and flush latency, dictionary cache hit/miss
counts, and sync progress (height, lag, duration, errors, fork rollbacks).

All metrics are registered against the default Prometheus registry at
package init and exposed by internal/httpapi's /metrics route via
Handler(). Timer is a small helper for observing elapsed time against a
histogram without repeating time.Since bookkeeping at every call site.
*/
package metrics
