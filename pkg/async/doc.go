// Package async provides a minimal Future abstraction for running
// functions concurrently and collecting their results. The health
// aggregator and the bulk-send fan-out are its consumers: both launch one
// future per probe or recipient and wait for all of them.
package async
