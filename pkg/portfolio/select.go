package portfolio

import (
	"path/filepath"
	"sort"
	"strings"

	"github.com/odvcencio/northstar/pkg/experiment"
)

// SelectPortfolio picks the highest-value set of non-conflicting candidates,
// capped at maxConcurrent.
//
// This is a greedy independent-set approximation: candidates are taken in
// descending score order and skipped when their affected files intersect an
// already-accepted candidate's. Greedy favors high-score early wins over a
// theoretically larger non-conflicting batch; candidate counts are small and
// determinism matters more than optimality here.
func SelectPortfolio(candidates []ScoredCandidate, maxConcurrent int) []ScoredCandidate {
	if maxConcurrent <= 0 || len(candidates) == 0 {
		return nil
	}

	ranked := make([]ScoredCandidate, len(candidates))
	copy(ranked, candidates)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})

	selected := make([]ScoredCandidate, 0, maxConcurrent)
	claimed := make(map[string]struct{})

	for _, sc := range ranked {
		if len(selected) >= maxConcurrent {
			break
		}
		files := normalizedFiles(sc.Candidate)
		if intersects(claimed, files) {
			continue
		}
		for _, f := range files {
			claimed[f] = struct{}{}
		}
		selected = append(selected, sc)
	}

	return selected
}

// FilesConflict reports whether two file sets share a path. Empty or
// undefined file sets never conflict.
func FilesConflict(a, b []string) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	set := make(map[string]struct{}, len(a))
	for _, f := range a {
		f = normalizePath(f)
		if f == "" {
			continue
		}
		set[f] = struct{}{}
	}
	for _, f := range b {
		f = normalizePath(f)
		if f == "" {
			continue
		}
		if _, ok := set[f]; ok {
			return true
		}
	}
	return false
}

func normalizedFiles(c *experiment.Candidate) []string {
	if c == nil || len(c.AffectedFiles) == 0 {
		return nil
	}
	out := make([]string, 0, len(c.AffectedFiles))
	for _, f := range c.AffectedFiles {
		f = normalizePath(f)
		if f == "" {
			continue
		}
		out = append(out, f)
	}
	return out
}

func intersects(claimed map[string]struct{}, files []string) bool {
	for _, f := range files {
		if _, ok := claimed[f]; ok {
			return true
		}
	}
	return false
}

func normalizePath(path string) string {
	path = strings.TrimSpace(path)
	if path == "" {
		return ""
	}
	return filepath.Clean(path)
}
