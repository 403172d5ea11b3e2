package mirror

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"
)

const (
	probeTimeout    = 5 * time.Second
	probeMaxWorkers = 10
)

// ProbeResult holds the outcome of a mirror reachability probe.
type ProbeResult struct {
	BaseURL   string `json:"base_url"`
	Mode      Mode   `json:"mode"`
	LatencyMs int    `json:"latency_ms"`
	Error     string `json:"error,omitempty"`
}

// Probe measures response latency for every configured mirror base with
// concurrent HEAD requests, returning results sorted by latency ascending with
// errored mirrors last.
func (r *Registry) Probe(ctx context.Context, client *http.Client) []ProbeResult {
	if client == nil {
		client = &http.Client{Timeout: probeTimeout}
	}

	results := make([]ProbeResult, len(r.entries))
	sem := make(chan struct{}, probeMaxWorkers)
	var wg sync.WaitGroup

	for i, e := range r.entries {
		wg.Add(1)
		go func(idx int, entry Entry) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			reqCtx, cancel := context.WithTimeout(ctx, probeTimeout)
			defer cancel()

			req, err := http.NewRequestWithContext(reqCtx, http.MethodHead, entry.BaseURL, nil)
			if err != nil {
				results[idx] = ProbeResult{BaseURL: entry.BaseURL, Mode: entry.Mode, Error: err.Error()}
				return
			}
			req.Header.Set("User-Agent", "ghfetch/1.0")

			start := time.Now()
			resp, err := client.Do(req)
			elapsed := time.Since(start)

			if err != nil {
				results[idx] = ProbeResult{
					BaseURL:   entry.BaseURL,
					Mode:      entry.Mode,
					LatencyMs: int(elapsed.Milliseconds()),
					Error:     err.Error(),
				}
				return
			}
			resp.Body.Close()

			results[idx] = ProbeResult{
				BaseURL:   entry.BaseURL,
				Mode:      entry.Mode,
				LatencyMs: int(elapsed.Milliseconds()),
			}
		}(i, e)
	}

	wg.Wait()

	sort.Slice(results, func(i, j int) bool {
		if results[i].Error != "" && results[j].Error == "" {
			return false
		}
		if results[i].Error == "" && results[j].Error != "" {
			return true
		}
		return results[i].LatencyMs < results[j].LatencyMs
	})

	return results
}
