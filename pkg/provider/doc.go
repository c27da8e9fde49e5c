// Package provider defines the uniform contract every delivery vendor
// adapter implements, the registry holding one shared adapter instance per
// vendor, and the failover selector that picks the active provider per
// channel.
//
// Adapters never panic or leak vendor exception types across the boundary:
// Send returns either a Result carrying the vendor-assigned message id or a
// *SendError tagged with an ErrorCode the caller can pattern-match on
// (transient, rejected, token_gone, ...).
//
// Failover is one level deep and per-attempt: SendWithFailover invokes the
// channel's primary adapter, and on any failure attempts exactly one
// fallback. If both fail the call returns ErrServiceUnavailable naming the
// channel. Selection is failover-on-error, not health-gated; health probes
// feed operational reporting only (see the health package).
package provider
