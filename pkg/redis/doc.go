// Package redis provides Redis connection management with retry logic and
// health checks.
//
// The package wraps the go-redis client with production-ready connection
// handling: bounded connection retries, a connect timeout, and a
// health-check function suitable for readiness probes. Configuration is
// populated from environment variables via github.com/caarlos0/env.
//
// # Usage
//
//	var cfg redis.Config
//	if err := config.Load(&cfg); err != nil {
//		log.Fatal(err)
//	}
//
//	client, err := redis.Connect(ctx, cfg)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer client.Close()
//
// The delivery queue's Redis storage is the main consumer of this package.
//
// The package defines several sentinel errors (e.g. ErrRedisNotReady) that
// wrap the underlying go-redis errors using errors.Join, so callers can
// compare and unwrap them.
package redis
