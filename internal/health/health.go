// Package health reports readiness of the database, the Rego overlay and Redis over HTTP and gRPC.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Pinger checks a dependency (e.g. *pgxpool.Pool). Ping returns nil when it is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// PolicyChecker checks that the policy engine can evaluate (e.g. *engine.RegoEnforcer).
type PolicyChecker interface {
	HealthCheck(ctx context.Context) error
}

// Report is the health response body.
type Report struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Healthy reports whether every check passed.
func (r Report) Healthy() bool { return r.Status == "ok" }

// Checker runs the configured checks. Nil dependencies are skipped.
type Checker struct {
	db      Pinger
	policy  PolicyChecker
	redis   Pinger
	timeout time.Duration
	log     *zap.Logger
}

// NewChecker returns a Checker. Any dependency may be nil.
func NewChecker(db Pinger, policy PolicyChecker, redis Pinger, log *zap.Logger) *Checker {
	if log == nil {
		log = zap.NewNop()
	}
	return &Checker{db: db, policy: policy, redis: redis, timeout: 2 * time.Second, log: log}
}

// Check runs every configured check.
func (c *Checker) Check(ctx context.Context) Report {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	checks := map[string]string{}
	healthy := true
	record := func(name string, err error) {
		if err != nil {
			healthy = false
			checks[name] = err.Error()
			c.log.Warn("health check failed", zap.String("check", name), zap.Error(err))
			return
		}
		checks[name] = "ok"
	}
	if c.db != nil {
		record("database", c.db.Ping(ctx))
	}
	if c.policy != nil {
		record("policy", c.policy.HealthCheck(ctx))
	}
	if c.redis != nil {
		record("redis", c.redis.Ping(ctx))
	}

	r := Report{Status: "ok", Checks: checks}
	if !healthy {
		r.Status = "unavailable"
	}
	return r
}

// ServeHTTP writes 200 with the report when healthy and 503 otherwise.
func (c *Checker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rep := c.Check(r.Context())
	status := http.StatusOK
	if !rep.Healthy() {
		status = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(rep)
}

// ServingStatus maps the database check to a gRPC serving status.
func (c *Checker) ServingStatus(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	if c.db == nil {
		return healthpb.HealthCheckResponse_SERVING
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	if err := c.db.Ping(ctx); err != nil {
		return healthpb.HealthCheckResponse_NOT_SERVING
	}
	return healthpb.HealthCheckResponse_SERVING
}

// Sync mirrors the database status into hs every interval until ctx is done.
func (c *Checker) Sync(ctx context.Context, hs *grpchealth.Server, interval time.Duration) {
	set := func() { hs.SetServingStatus("", c.ServingStatus(ctx)) }
	set()
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			hs.Shutdown()
			return
		case <-t.C:
			set()
		}
	}
}
