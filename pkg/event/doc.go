// Package event turns domain events into notifications. Producers publish
// versioned envelopes; the consumer validates them and fans each one out
// to its registered handlers. Handler failures are contained per handler:
// one misbehaving subscriber never blocks the others.
package event
