// Package serverdetect learns the local port (and, by extension, the
// public URL) of an app that was just started, using the two strategies
// spec.md orders by preference: a readiness regex matched against the
// started process's stdout/stderr lines, falling back to a bounded
// port-range scan. Grounded on the teacher's internal/detector package's
// Detector interface shape (Alive() (bool, error); Describe() string),
// generalized here to "found a port" rather than "process alive".
package serverdetect

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/loykin/orchestrator/internal/orcherr"
	"github.com/loykin/orchestrator/internal/shell"
)

// Result is what a successful detection yields.
type Result struct {
	Port   int
	Method string // "event" or "scan"
}

// ScanRange configures the scan-fallback strategy's bounded port range
// and a small allow-list of commonly used ports to try first.
type ScanRange struct {
	Low, High int
	AllowList []int
	Interval  time.Duration
}

func DefaultScanRange() ScanRange {
	return ScanRange{Low: 3000, High: 9000, AllowList: []int{7860, 8501, 8080, 5000}, Interval: 200 * time.Millisecond}
}

// Detect runs the event-driven strategy against lines (if readinessRegex is
// non-empty) concurrently with the scan fallback against host, returning
// whichever strategy succeeds first. It gives up with a readiness-timeout
// error after timeout elapses.
func Detect(ctx context.Context, lines <-chan shell.Line, readinessRegex, host string, scan ScanRange, timeout time.Duration) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resultCh := make(chan Result, 2)

	if readinessRegex != "" {
		go watchLines(ctx, lines, readinessRegex, resultCh)
	}
	go scanPorts(ctx, host, scan, resultCh)

	select {
	case r := <-resultCh:
		return r, nil
	case <-ctx.Done():
		return Result{}, orcherr.New(orcherr.KindReadinessTimeout, "no readiness signal within timeout")
	}
}

func watchLines(ctx context.Context, lines <-chan shell.Line, pattern string, out chan<- Result) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			m := re.FindStringSubmatch(line.Text)
			if m == nil {
				continue
			}
			port := 0
			for _, g := range m[1:] {
				if p, perr := strconv.Atoi(g); perr == nil {
					port = p
					break
				}
			}
			if port == 0 {
				continue
			}
			select {
			case out <- Result{Port: port, Method: "event"}:
			case <-ctx.Done():
			}
			return
		}
	}
}

func scanPorts(ctx context.Context, host string, scan ScanRange, out chan<- Result) {
	client := &http.Client{Timeout: 2 * time.Second}
	candidates := make([]int, 0, len(scan.AllowList)+(scan.High-scan.Low))
	candidates = append(candidates, scan.AllowList...)
	for p := scan.Low; p <= scan.High; p++ {
		candidates = append(candidates, p)
	}

	ticker := time.NewTicker(scan.Interval)
	defer ticker.Stop()

	idx := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if idx >= len(candidates) {
				idx = 0
			}
			port := candidates[idx]
			idx++
			if probe(ctx, client, host, port) {
				select {
				case out <- Result{Port: port, Method: "scan"}:
				case <-ctx.Done():
				}
				return
			}
		}
	}
}

func probe(ctx context.Context, client *http.Client, host string, port int) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("http://%s:%d/", host, port), nil)
	if err != nil {
		return false
	}
	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode >= 200 && resp.StatusCode <= 499
}
