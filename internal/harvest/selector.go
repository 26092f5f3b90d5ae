package harvest

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

// navGuard holds the expected search-context signature. A location that does
// not carry both the host and the results route counts as drift.
type navGuard struct {
	host  string
	route string
}

func newNavGuard(baseURL, resultsRoute string) (navGuard, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return navGuard{}, fmt.Errorf("parse base url %q: %w", baseURL, err)
	}
	if u.Host == "" {
		return navGuard{}, fmt.Errorf("base url %q has no host", baseURL)
	}
	return navGuard{host: u.Host, route: resultsRoute}, nil
}

// onResults reports whether location is still the expected results listing.
func (g navGuard) onResults(location string) bool {
	u, err := url.Parse(location)
	if err != nil {
		return false
	}
	if !strings.EqualFold(u.Host, g.host) {
		return false
	}
	return strings.Contains(u.Path, g.route)
}

// nextUnvisited scans candidates in rendered order and returns the first one
// not yet in the visited set. Scan order is deterministic so repeated scans
// eventually cover every candidate the listing reveals.
func nextUnvisited(ctx context.Context, visited VisitedSet, cands []Candidate) (Candidate, bool, error) {
	for _, cand := range cands {
		if cand.ID == "" {
			continue
		}
		seen, err := visited.Seen(ctx, cand.ID)
		if err != nil {
			return Candidate{}, false, fmt.Errorf("visited lookup for %s: %w", cand.ID, err)
		}
		if !seen {
			return cand, true, nil
		}
	}
	return Candidate{}, false, nil
}
