package app

import (
	"context"
	"fmt"
)

// Pinger is the minimal interface shared by the database pool and the
// Redis analysis store for readiness probing.
type Pinger interface{ Ping(ctx context.Context) error }

// BuildReadinessChecks returns the db and redis readiness checks. The
// redis check is nil when the analysis cache runs in process memory.
func BuildReadinessChecks(pool, redis Pinger) (
	func(ctx context.Context) error,
	func(ctx context.Context) error,
) {
	dbCheck := func(ctx context.Context) error {
		if pool == nil {
			return fmt.Errorf("db not configured")
		}
		return pool.Ping(ctx)
	}
	var redisCheck func(ctx context.Context) error
	if redis != nil {
		redisCheck = func(ctx context.Context) error {
			return redis.Ping(ctx)
		}
	}
	return dbCheck, redisCheck
}
