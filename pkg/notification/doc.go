// Package notification defines the domain model for the dispatch engine:
// the Notification lifecycle record, its append-only audit log, push token
// registrations, and the Store interface that persists them.
//
// A Notification moves through a fixed state machine:
//
//	PENDING ──► PROCESSING ──► SENT
//	   │             │
//	   │             └───────► FAILED ──► PROCESSING (retry, while retries remain)
//	   │
//	QUEUED ──► PROCESSING
//	   │
//	PENDING/QUEUED ──► CANCELLED
//
// SENT and CANCELLED are terminal. FAILED becomes terminal once RetryCount
// reaches MaxRetries. Every store mutation goes through Transition, which
// rejects edges not present in the table above with ErrInvalidTransition.
//
// Two storage implementations ship with the package: MemoryStore for tests
// and local development, and PostgresStore backed by a pgx connection pool.
// Both enforce idempotency-key uniqueness at the storage layer and report
// duplicates via ErrDuplicateIdempotencyKey, so callers can treat a racing
// duplicate insert as "already exists" rather than a generic failure.
package notification
