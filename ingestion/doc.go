// Package ingestion consumes record events from the broker and drives each
// record through resolution, extraction and indexing.
//
// The Consumer polls the broker and admits messages through a dedup check,
// a rate limiter and a concurrency gate before spawning one task per
// message. Each task decodes the event with the Handler and routes it with
// the Dispatcher, which owns the record status state machine:
//
//	NOT_STARTED -> IN_PROGRESS -> COMPLETED | FAILED
//	NOT_STARTED -> FILE_TYPE_NOT_SUPPORTED
//
// DeferringHandler postpones update events through a scheduler so that
// bursts of edits to one record are indexed once.
//
// Task failures are logged and never stop the consumer. Offsets are
// committed automatically, so delivery is at-least-once; a record already
// COMPLETED for the same virtual record id is not processed again.
package ingestion
