package conflict

import (
	"context"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/odvcencio/northstar/pkg/errors"
	"github.com/odvcencio/northstar/pkg/logging"
)

// Store persists conflict records. The sqlite implementation lives in
// pkg/storage.
type Store interface {
	SaveConflict(ctx context.Context, c *Conflict) error
	GetConflict(ctx context.Context, id string) (*Conflict, error)
	UpdateConflict(ctx context.Context, c *Conflict) error
}

// openChange is one agent's live file claim under an experiment.
type openChange struct {
	experimentID string
	agentID      string
	paths        []string
}

// Detector tracks which paths each agent currently has open and checks new
// work against them. Detection is stateless per invocation: resolving a
// recorded conflict never suppresses re-detection on the same inputs.
type Detector struct {
	mu      sync.RWMutex
	changes map[string]map[string]openChange // experiment id -> agent id

	store  Store
	logger *logging.Logger
	now    func() time.Time
}

// NewDetector wires a detector. store may be nil for purely advisory use.
func NewDetector(store Store, logger *logging.Logger) *Detector {
	return &Detector{
		changes: make(map[string]map[string]openChange),
		store:   store,
		logger:  logger,
		now:     time.Now,
	}
}

// RegisterChange records the paths an agent currently has open for an
// experiment, replacing any previous registration by the same agent.
func (d *Detector) RegisterChange(experimentID, agentID string, paths []string) {
	normalized := make([]string, 0, len(paths))
	for _, p := range paths {
		if p = normalizePath(p); p != "" {
			normalized = append(normalized, p)
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	byAgent, ok := d.changes[experimentID]
	if !ok {
		byAgent = make(map[string]openChange)
		d.changes[experimentID] = byAgent
	}
	byAgent[agentID] = openChange{experimentID: experimentID, agentID: agentID, paths: normalized}
}

// ClearChange drops an agent's registration, e.g. when its work lands or
// its experiment concludes.
func (d *Detector) ClearChange(experimentID, agentID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if byAgent, ok := d.changes[experimentID]; ok {
		delete(byAgent, agentID)
		if len(byAgent) == 0 {
			delete(d.changes, experimentID)
		}
	}
}

// ClearExperiment drops every registration under an experiment.
func (d *Detector) ClearExperiment(experimentID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.changes, experimentID)
}

// Check compares the paths an agent is about to touch for an experiment
// against all open changes from other experiments. Open changes under the
// same experiment id are ignored. It returns nil when nothing collides;
// otherwise a single deduplicated Conflict covering every collision, which
// is also persisted when a store is configured.
func (d *Detector) Check(ctx context.Context, experimentID, agentID string, paths []string) (*Conflict, error) {
	d.mu.RLock()
	var others []openChange
	for expID, byAgent := range d.changes {
		if expID == experimentID {
			continue
		}
		for _, ch := range byAgent {
			others = append(others, ch)
		}
	}
	d.mu.RUnlock()

	severity := Severity("")
	expSet := map[string]struct{}{}
	agentSet := map[string]struct{}{}
	pathSet := map[string]struct{}{}

	for _, raw := range paths {
		p := normalizePath(raw)
		if p == "" {
			continue
		}
		hit, hitSeverity := firstMatch(p, others)
		if hit == nil {
			continue
		}
		expSet[hit.experimentID] = struct{}{}
		agentSet[hit.agentID] = struct{}{}
		pathSet[p] = struct{}{}
		if hitSeverity == SeverityCritical || severity == "" {
			severity = hitSeverity
		}
	}
	if len(pathSet) == 0 {
		return nil, nil
	}

	expSet[experimentID] = struct{}{}
	agentSet[agentID] = struct{}{}
	c := &Conflict{
		ID:            ulid.Make().String(),
		Type:          TypeFileOverlap,
		Severity:      severity,
		ExperimentIDs: sortedKeys(expSet),
		AgentIDs:      sortedKeys(agentSet),
		Paths:         sortedKeys(pathSet),
		DetectedAt:    d.now().UTC(),
	}

	if d.store != nil {
		if err := d.store.SaveConflict(ctx, c); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeStorageWrite, "failed to record conflict")
		}
	}
	if d.logger != nil {
		d.logger.Log(logging.Event{
			Level:        logging.LevelWarn,
			Category:     logging.CategoryConflict,
			EventType:    "conflict_detected",
			ExperimentID: experimentID,
			Details: map[string]any{
				"conflict_id": c.ID,
				"severity":    string(c.Severity),
				"experiments": c.ExperimentIDs,
				"paths":       c.Paths,
			},
		})
	}
	return c, nil
}

// Resolve marks a recorded conflict resolved. Resolving twice fails.
func (d *Detector) Resolve(ctx context.Context, conflictID, resolvedBy string) (*Conflict, error) {
	if d.store == nil {
		return nil, errors.New(errors.ErrCodeInternal, "no conflict store configured")
	}
	c, err := d.store.GetConflict(ctx, conflictID)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, errors.New(errors.ErrCodeNotFound, "conflict not found").
			WithContext("conflict_id", conflictID)
	}
	if c.Resolved {
		return nil, errors.New(errors.ErrCodeAlreadyResolved, "conflict already resolved").
			WithContext("conflict_id", conflictID)
	}

	resolvedAt := d.now().UTC()
	c.Resolved = true
	c.ResolvedBy = resolvedBy
	c.ResolvedAt = &resolvedAt
	if err := d.store.UpdateConflict(ctx, c); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeStorageWrite, "failed to update conflict")
	}

	if d.logger != nil {
		d.logger.Info(logging.CategoryConflict, "conflict_resolved", "",
			map[string]any{"conflict_id": c.ID, "resolved_by": resolvedBy})
	}
	return c, nil
}

// firstMatch scans open changes for the first collision with p. Exact path
// equality wins over a directory-prefix relationship, and scanning for a
// path stops at its first hit.
func firstMatch(p string, others []openChange) (*openChange, Severity) {
	for i := range others {
		for _, open := range others[i].paths {
			if p == open {
				return &others[i], SeverityCritical
			}
		}
	}
	for i := range others {
		for _, open := range others[i].paths {
			if isPathPrefix(p, open) || isPathPrefix(open, p) {
				return &others[i], SeverityWarning
			}
		}
	}
	return nil, ""
}

// isPathPrefix reports whether parent is a case-sensitive directory prefix
// of child.
func isPathPrefix(parent, child string) bool {
	return strings.HasPrefix(child, parent+"/")
}

func normalizePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return ""
	}
	return filepath.Clean(p)
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
