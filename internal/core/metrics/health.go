package metrics

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
)

// Health status values
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// HealthStatus represents the health status of a component
type HealthStatus struct {
	Status    string                 `json:"status"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Duration  time.Duration          `json:"duration"`
}

// HealthReport represents the overall health report
type HealthReport struct {
	Status     string                  `json:"status"`
	Message    string                  `json:"message"`
	Timestamp  time.Time               `json:"timestamp"`
	Duration   time.Duration           `json:"duration"`
	Components map[string]HealthStatus `json:"components"`
	Uptime     string                  `json:"uptime"`
}

// HealthCheck checks one component
type HealthCheck func(ctx context.Context) HealthStatus

// HealthChecker runs registered component checks with a per-check timeout
type HealthChecker struct {
	timeout time.Duration
	started time.Time

	mu     sync.RWMutex
	checks map[string]HealthCheck
}

// NewHealthChecker creates a new health checker
func NewHealthChecker(timeout time.Duration) *HealthChecker {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HealthChecker{
		timeout: timeout,
		started: time.Now(),
		checks:  make(map[string]HealthCheck),
	}
}

// Register adds or replaces a named check
func (h *HealthChecker) Register(name string, check HealthCheck) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[name] = check
}

// Check runs every registered check
func (h *HealthChecker) Check(ctx context.Context) HealthReport {
	start := time.Now()

	h.mu.RLock()
	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	h.mu.RUnlock()
	sort.Strings(names)

	components := make(map[string]HealthStatus, len(names))
	for _, name := range names {
		h.mu.RLock()
		check := h.checks[name]
		h.mu.RUnlock()
		components[name] = HealthCheckWithTimeout(ctx, h.timeout, check)
	}

	status, message := overallStatus(components)
	return HealthReport{
		Status:     status,
		Message:    message,
		Timestamp:  time.Now().UTC(),
		Duration:   time.Since(start),
		Components: components,
		Uptime:     time.Since(h.started).Round(time.Second).String(),
	}
}

func overallStatus(components map[string]HealthStatus) (string, string) {
	var degraded, unhealthy int
	for _, status := range components {
		switch status.Status {
		case StatusHealthy:
		case StatusDegraded:
			degraded++
		default:
			unhealthy++
		}
	}

	total := len(components)
	switch {
	case unhealthy > 0:
		return StatusUnhealthy, fmt.Sprintf("%d/%d components unhealthy", unhealthy, total)
	case degraded > 0:
		return StatusDegraded, fmt.Sprintf("%d/%d components degraded", degraded, total)
	default:
		return StatusHealthy, fmt.Sprintf("All %d components healthy", total)
	}
}

// NewHealthStatus creates a new health status
func NewHealthStatus(status, message string) HealthStatus {
	return HealthStatus{
		Status:    status,
		Message:   message,
		Timestamp: time.Now().UTC(),
	}
}

// WithDetail adds a single detail to a health status
func (h HealthStatus) WithDetail(key string, value interface{}) HealthStatus {
	details := make(map[string]interface{}, len(h.Details)+1)
	for k, v := range h.Details {
		details[k] = v
	}
	details[key] = value
	h.Details = details
	return h
}

// IsHealthy returns true if the status is healthy
func (h HealthStatus) IsHealthy() bool {
	return h.Status == StatusHealthy
}

// HealthCheckWithTimeout performs a health check with timeout
func HealthCheckWithTimeout(ctx context.Context, timeout time.Duration, check HealthCheck) HealthStatus {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	resultChan := make(chan HealthStatus, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				resultChan <- NewHealthStatus(StatusUnhealthy, fmt.Sprintf("health check panicked: %v", r))
			}
		}()
		resultChan <- check(ctx)
	}()

	select {
	case result := <-resultChan:
		result.Duration = time.Since(start)
		return result
	case <-ctx.Done():
		return NewHealthStatus(StatusUnhealthy, "Health check timed out").
			WithDetail("timeout", timeout.String())
	}
}

// PingCheck reports a dependency healthy when ping succeeds
func PingCheck(ping func(ctx context.Context) error) HealthCheck {
	return func(ctx context.Context) HealthStatus {
		if err := ping(ctx); err != nil {
			return NewHealthStatus(StatusUnhealthy, err.Error())
		}
		return NewHealthStatus(StatusHealthy, "reachable")
	}
}

// ResourceLimits are the usage percentages above which the host is degraded
type ResourceLimits struct {
	MemoryPercent float64
	DiskPercent   float64
	// DiskPath is the filesystem holding the alert store
	DiskPath string
}

// SystemResourceCheck reports host memory and disk usage
func SystemResourceCheck(limits ResourceLimits) HealthCheck {
	if limits.DiskPath == "" {
		limits.DiskPath = "/"
	}
	return func(ctx context.Context) HealthStatus {
		vm, err := mem.VirtualMemoryWithContext(ctx)
		if err != nil {
			return NewHealthStatus(StatusDegraded, fmt.Sprintf("memory stats unavailable: %v", err))
		}
		usage, err := disk.UsageWithContext(ctx, limits.DiskPath)
		if err != nil {
			return NewHealthStatus(StatusDegraded, fmt.Sprintf("disk stats unavailable: %v", err))
		}

		status := NewHealthStatus(StatusHealthy, "resources within limits").
			WithDetail("memory_used_percent", vm.UsedPercent).
			WithDetail("disk_used_percent", usage.UsedPercent).
			WithDetail("disk_path", limits.DiskPath)

		switch {
		case limits.MemoryPercent > 0 && vm.UsedPercent > limits.MemoryPercent:
			status.Status = StatusDegraded
			status.Message = fmt.Sprintf("memory usage %.1f%% above %.0f%%", vm.UsedPercent, limits.MemoryPercent)
		case limits.DiskPercent > 0 && usage.UsedPercent > limits.DiskPercent:
			status.Status = StatusDegraded
			status.Message = fmt.Sprintf("disk usage %.1f%% above %.0f%%", usage.UsedPercent, limits.DiskPercent)
		}
		return status
	}
}
