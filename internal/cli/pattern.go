// Package cli provides shared utilities for CLI commands.
package cli

import (
	"errors"
	"fmt"
	"path"
	"strings"
)

// ErrNoMatch is returned when a pattern selects no site.
var ErrNoMatch = errors.New("no matching site")

// ExpandPattern selects the sites matching pattern, keeping the order of
// sites. Patterns with glob characters (*?[) match case-insensitively; any
// other pattern must name a site exactly.
func ExpandPattern(pattern string, sites []string) ([]string, error) {
	pattern = strings.TrimSpace(pattern)
	if _, err := path.Match(pattern, ""); err != nil {
		return nil, fmt.Errorf("invalid pattern '%s': %w", pattern, err)
	}

	if !strings.ContainsAny(pattern, "*?[") {
		for _, site := range sites {
			if site == pattern {
				return []string{site}, nil
			}
		}
		return nil, fmt.Errorf("site '%s': %w", pattern, ErrNoMatch)
	}

	lower := strings.ToLower(pattern)
	var matches []string
	for _, site := range sites {
		// The pattern was validated above.
		if ok, _ := path.Match(lower, strings.ToLower(site)); ok {
			matches = append(matches, site)
		}
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("pattern '%s': %w", pattern, ErrNoMatch)
	}
	return matches, nil
}

// ExpandPatterns expands every pattern and returns the union without
// duplicates, in order of first match.
func ExpandPatterns(patterns []string, sites []string) ([]string, error) {
	seen := make(map[string]bool)
	var result []string

	for _, pattern := range patterns {
		matches, err := ExpandPattern(pattern, sites)
		if err != nil {
			return nil, err
		}
		for _, site := range matches {
			if !seen[site] {
				seen[site] = true
				result = append(result, site)
			}
		}
	}
	return result, nil
}
