// Package dispatch orchestrates notification delivery: request validation,
// idempotency, template rendering, lifecycle tracking and handoff to the
// provider layer.
//
// Send is the single entry point for one notification. With a queue wired
// in, the record is created as QUEUED and a delivery job is scheduled;
// without one, delivery runs inline. Execute performs the actual delivery
// attempt and is also the handler behind queue workers and the retry
// sweeper.
//
// Every lifecycle transition appends an audit log entry, so the full
// history of a notification is reconstructable from its log trail.
package dispatch
