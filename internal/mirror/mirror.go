package mirror

import (
	"fmt"
	"math/rand"
	"net/url"
	"strings"
	"time"
)

// NoIndex indicates that no mirror entry was (or should be) selected.
const NoIndex = -1

// Mode selects how a mirror entry combines its base URL with the original URL.
type Mode string

const (
	// ModePrefix prepends the base URL to the full original URL, scheme included.
	ModePrefix Mode = "prefix"
	// ModeReplace prepends the base URL to the original URL's path, discarding
	// the scheme and host.
	ModeReplace Mode = "replace"
)

// Entry is a single configured mirror endpoint.
type Entry struct {
	Mode    Mode
	BaseURL string
}

// Result is the outcome of a rewrite decision for one attempt.
type Result struct {
	EffectiveURL string
	Index        int // NoIndex when the attempt is direct
	Description  string
	Mirrored     bool
}

// Registry is an ordered, immutable set of mirror entries plus the host
// allowlist that gates rewriting. A registry with no entries is valid: all
// traffic goes direct.
type Registry struct {
	entries    []Entry
	allowHosts map[string]struct{}
	rng        *rand.Rand
}

// New validates the given entries and builds a registry. Base URLs must be
// well-formed absolute URLs; mode must be prefix or replace.
func New(entries []Entry, allowHosts []string) (*Registry, error) {
	for i, e := range entries {
		if e.Mode != ModePrefix && e.Mode != ModeReplace {
			return nil, fmt.Errorf("mirror %d: unknown mode %q", i, e.Mode)
		}
		u, err := url.Parse(e.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("mirror %d: invalid base url %q: %w", i, e.BaseURL, err)
		}
		if u.Scheme == "" || u.Host == "" {
			return nil, fmt.Errorf("mirror %d: base url %q must be absolute", i, e.BaseURL)
		}
	}

	hosts := make(map[string]struct{}, len(allowHosts))
	for _, h := range allowHosts {
		h = strings.ToLower(strings.TrimSpace(h))
		if h == "" {
			continue
		}
		hosts[h] = struct{}{}
	}

	return &Registry{
		entries:    entries,
		allowHosts: hosts,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}, nil
}

// Len returns the number of configured mirror entries.
func (r *Registry) Len() int { return len(r.entries) }

// Entries returns a copy of the configured entries in order.
func (r *Registry) Entries() []Entry {
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Rewrite decides the effective URL for one attempt. URLs whose host is not on
// the allowlist pass through unchanged and are reported as direct, regardless
// of registry contents. For allowlisted hosts a mirror entry is picked
// uniformly at random, rerolling to avoid exclude when more than one entry
// exists. Pure apart from the randomness source.
func (r *Registry) Rewrite(rawURL string, exclude int) Result {
	direct := Result{EffectiveURL: rawURL, Index: NoIndex, Description: "direct"}

	host, pathAfterHost, ok := splitHost(rawURL)
	if !ok {
		return direct
	}
	if _, allowed := r.allowHosts[strings.ToLower(host)]; !allowed {
		return direct
	}

	if len(r.entries) == 0 {
		direct.Description = "direct (no mirrors configured)"
		return direct
	}

	idx := r.rng.Intn(len(r.entries))
	if len(r.entries) > 1 && exclude >= 0 && exclude < len(r.entries) {
		for idx == exclude {
			idx = r.rng.Intn(len(r.entries))
		}
	}

	entry := r.entries[idx]
	var effective string
	switch entry.Mode {
	case ModeReplace:
		effective = entry.BaseURL + pathAfterHost
	default:
		effective = entry.BaseURL + rawURL
	}

	return Result{
		EffectiveURL: effective,
		Index:        idx,
		Description:  entry.BaseURL,
		Mirrored:     true,
	}
}

// splitHost extracts the host (third slash-delimited segment) and everything
// after it from a URL. The returned tail preserves the original bytes
// exactly, query string included.
func splitHost(rawURL string) (host, tail string, ok bool) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", "", false
	}

	parts := strings.SplitN(rawURL, "/", 4)
	if len(parts) < 3 || parts[2] == "" {
		return "", "", false
	}
	if len(parts) == 4 {
		tail = parts[3]
	}
	return u.Hostname(), tail, true
}
