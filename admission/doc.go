// Package admission bounds how work enters the ingestion pipeline.
//
// Three independent controls are applied by the consumer loop, in order:
//
//   - DedupTracker skips broker positions already admitted in this process
//   - RateLimiter bounds how many tasks may start per second
//   - ConcurrencyGate bounds how many tasks may run at once
//
// The rate limiter and the gate are shared by every task and are safe for
// concurrent use. The dedup tracker is guarded too, although only the
// consumer loop mutates it.
package admission
