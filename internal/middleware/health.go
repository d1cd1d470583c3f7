package middleware

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"sort"
	"time"
)

// HealthChecker reports whether one dependency can be used right now.
type HealthChecker interface {
	Check(ctx context.Context) error
}

// CheckFunc adapts a function to HealthChecker.
type CheckFunc func(ctx context.Context) error

func (f CheckFunc) Check(ctx context.Context) error { return f(ctx) }

// DatabaseHealthChecker pings the history database.
type DatabaseHealthChecker struct {
	DB *sql.DB
}

func (d *DatabaseHealthChecker) Check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return d.DB.PingContext(ctx)
}

// DirWritable fails unless a file can be created in dir.
func DirWritable(dir string) HealthChecker {
	return CheckFunc(func(context.Context) error {
		f, err := os.CreateTemp(dir, ".ready-*")
		if err != nil {
			return fmt.Errorf("%s not writable: %w", dir, err)
		}
		name := f.Name()
		f.Close()
		return os.Remove(name)
	})
}

// HealthStatus is the body of /health and /ready.
type HealthStatus struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckStatus `json:"checks"`
}

type CheckStatus struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// runChecks evaluates checkers in name order. ok is false when any failed.
func runChecks(ctx context.Context, checkers map[string]HealthChecker) (map[string]CheckStatus, bool) {
	names := make([]string, 0, len(checkers))
	for name := range checkers {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make(map[string]CheckStatus, len(names))
	ok := true
	for _, name := range names {
		if err := checkers[name].Check(ctx); err != nil {
			ok = false
			out[name] = CheckStatus{Status: "failing", Message: err.Error()}
			continue
		}
		out[name] = CheckStatus{Status: "ok"}
	}
	return out, ok
}

func checksHandler(checkers map[string]HealthChecker, pass, fail string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		checks, ok := runChecks(ctx, checkers)
		body := HealthStatus{Status: pass, Timestamp: time.Now().UTC(), Checks: checks}
		code := http.StatusOK
		if !ok {
			body.Status = fail
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, body)
	}
}

// HealthHandler runs every dependency check and answers 503 when any fails.
func HealthHandler(checkers map[string]HealthChecker) http.HandlerFunc {
	return checksHandler(checkers, "healthy", "unhealthy")
}

// ReadinessHandler answers 503 until the checks a new session depends on
// pass, typically the staging directory and the upload backend.
func ReadinessHandler(checkers map[string]HealthChecker) http.HandlerFunc {
	return checksHandler(checkers, "ready", "not_ready")
}

// Liveness is the body of /live.
type Liveness struct {
	Status   string `json:"status"`
	Sessions int    `json:"sessions"`
	Uptime   string `json:"uptime"`
}

// LivenessHandler never fails while the process serves requests. sessions
// reports how many analysis sessions are held in memory and may be nil.
func LivenessHandler(sessions func() int) http.HandlerFunc {
	started := time.Now()
	return func(w http.ResponseWriter, r *http.Request) {
		body := Liveness{Status: "alive", Uptime: time.Since(started).Round(time.Second).String()}
		if sessions != nil {
			body.Sessions = sessions()
		}
		writeJSON(w, http.StatusOK, body)
	}
}
