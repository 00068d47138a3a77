// internal/monitoring/health.go
package monitoring

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"
)

// HealthStatus represents the health status of a component
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// Probe is one named check. A failing critical probe makes the report
// unhealthy; any other failure only degrades it.
type Probe struct {
	Name     string
	Critical bool
	// Timeout bounds Check; zero uses the manager default.
	Timeout time.Duration
	Check   func(ctx context.Context) error
}

// ProbeResult is the outcome of one probe.
type ProbeResult struct {
	Name     string        `json:"name"`
	Status   HealthStatus  `json:"status"`
	Critical bool          `json:"critical,omitempty"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// HealthReport aggregates every probe.
type HealthReport struct {
	Status    HealthStatus  `json:"status"`
	Timestamp time.Time     `json:"timestamp"`
	Uptime    time.Duration `json:"uptime"`
	Probes    []ProbeResult `json:"probes"`
}

// Failed returns the probes that did not pass.
func (r HealthReport) Failed() []ProbeResult {
	var failed []ProbeResult
	for _, p := range r.Probes {
		if p.Status != HealthStatusHealthy {
			failed = append(failed, p)
		}
	}
	return failed
}

// HealthManager runs a set of probes on demand.
type HealthManager struct {
	mu      sync.Mutex
	probes  map[string]Probe
	timeout time.Duration
	started time.Time
}

// NewHealthManager creates a health manager. defaultTimeout bounds probes
// that do not set their own.
func NewHealthManager(defaultTimeout time.Duration) *HealthManager {
	if defaultTimeout <= 0 {
		defaultTimeout = 10 * time.Second
	}
	return &HealthManager{
		probes:  make(map[string]Probe),
		timeout: defaultTimeout,
		started: time.Now(),
	}
}

// Register adds or replaces a probe by name.
func (hm *HealthManager) Register(probe Probe) {
	if probe.Timeout <= 0 {
		probe.Timeout = hm.timeout
	}
	hm.mu.Lock()
	defer hm.mu.Unlock()
	hm.probes[probe.Name] = probe
}

// Check runs every probe concurrently. Results are sorted by name.
func (hm *HealthManager) Check(ctx context.Context) HealthReport {
	hm.mu.Lock()
	probes := make([]Probe, 0, len(hm.probes))
	for _, p := range hm.probes {
		probes = append(probes, p)
	}
	hm.mu.Unlock()

	results := make([]ProbeResult, len(probes))
	var wg sync.WaitGroup
	for i, p := range probes {
		wg.Add(1)
		go func(i int, p Probe) {
			defer wg.Done()
			results[i] = run(ctx, p)
		}(i, p)
	}
	wg.Wait()
	sort.Slice(results, func(i, j int) bool { return results[i].Name < results[j].Name })

	report := HealthReport{
		Status:    HealthStatusHealthy,
		Timestamp: time.Now(),
		Uptime:    time.Since(hm.started),
		Probes:    results,
	}
	for _, r := range results {
		switch {
		case r.Status == HealthStatusHealthy:
		case r.Critical:
			report.Status = HealthStatusUnhealthy
		case report.Status == HealthStatusHealthy:
			report.Status = HealthStatusDegraded
		}
	}
	return report
}

func run(ctx context.Context, p Probe) ProbeResult {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	result := ProbeResult{Name: p.Name, Status: HealthStatusHealthy, Critical: p.Critical}
	var err error
	if p.Check == nil {
		err = fmt.Errorf("no check function defined")
	} else {
		err = p.Check(ctx)
	}
	if err != nil {
		result.Status = HealthStatusUnhealthy
		result.Error = err.Error()
	}
	result.Duration = time.Since(start)
	return result
}

// Handler serves the report as JSON; unhealthy is a 503.
func (hm *HealthManager) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report := hm.Check(r.Context())

		w.Header().Set("Content-Type", "application/json")
		if report.Status == HealthStatusUnhealthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}
		json.NewEncoder(w).Encode(report)
	}
}

// HTTPProbe expects a 2xx answer to a GET of url.
func HTTPProbe(name, url string, critical bool) Probe {
	return Probe{
		Name:     name,
		Critical: critical,
		Check: func(ctx context.Context) error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
			if err != nil {
				return err
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				return err
			}
			resp.Body.Close()
			if resp.StatusCode < 200 || resp.StatusCode >= 300 {
				return fmt.Errorf("GET %s returned %d", url, resp.StatusCode)
			}
			return nil
		},
	}
}

// StaticProbe passes while fn returns nil.
func StaticProbe(name string, critical bool, fn func() error) Probe {
	return Probe{
		Name:     name,
		Critical: critical,
		Check:    func(context.Context) error { return fn() },
	}
}
