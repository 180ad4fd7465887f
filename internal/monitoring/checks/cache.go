package checks

import (
	"context"
	"time"

	"github.com/charlesng35/studiofolio/internal/monitoring"
)

// Pinger is satisfied by cache.Store and the object stores.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Cache returns an optional probe for the cache backend (redis or database).
// A cache outage slows the site down but does not stop it.
func Cache(store Pinger, backend string) monitoring.Check {
	return ping("cache", store, backend).AsOptional()
}

// Storage returns a probe for the object store. Without it no upload can
// succeed, so the probe is critical.
func Storage(store Pinger, driver string) monitoring.Check {
	return ping("storage", store, driver)
}

func ping(component string, target Pinger, backend string) monitoring.Check {
	return monitoring.NewCheck(component, func(ctx context.Context) monitoring.ProbeResult {
		start := time.Now()
		if target == nil {
			return monitoring.ProbeResult{Status: monitoring.StatusDown, Details: component + " not configured"}
		}
		if err := target.Ping(ctx); err != nil {
			result := monitoring.ResultFromError(component, err, time.Since(start))
			result.Details = backend + ": " + result.Details
			return result
		}
		return monitoring.ProbeResult{Status: monitoring.StatusUp, Details: backend, Duration: time.Since(start)}
	})
}
