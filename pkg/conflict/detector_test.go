package conflict

import (
	"context"
	"sync"
	"testing"

	"github.com/odvcencio/northstar/pkg/errors"
)

type memStore struct {
	mu        sync.Mutex
	conflicts map[string]*Conflict
}

func newMemStore() *memStore {
	return &memStore{conflicts: make(map[string]*Conflict)}
}

func (s *memStore) SaveConflict(_ context.Context, c *Conflict) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *c
	s.conflicts[c.ID] = &cp
	return nil
}

func (s *memStore) GetConflict(_ context.Context, id string) (*Conflict, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conflicts[id]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (s *memStore) UpdateConflict(ctx context.Context, c *Conflict) error {
	return s.SaveConflict(ctx, c)
}

func TestCheckExactMatchIsCritical(t *testing.T) {
	d := NewDetector(newMemStore(), nil)
	d.RegisterChange("exp-1", "agent-1", []string{"src/auth/login.go"})

	c, err := d.Check(context.Background(), "exp-2", "agent-2", []string{"src/auth/login.go"})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if c == nil {
		t.Fatal("expected a conflict")
	}
	if c.Severity != SeverityCritical {
		t.Errorf("severity = %q, want critical", c.Severity)
	}
	if c.Type != TypeFileOverlap {
		t.Errorf("type = %q, want file_overlap", c.Type)
	}
	wantExps := []string{"exp-1", "exp-2"}
	if len(c.ExperimentIDs) != 2 || c.ExperimentIDs[0] != wantExps[0] || c.ExperimentIDs[1] != wantExps[1] {
		t.Errorf("experiment ids = %v, want %v", c.ExperimentIDs, wantExps)
	}
}

func TestCheckDirectoryPrefixIsWarning(t *testing.T) {
	d := NewDetector(newMemStore(), nil)
	d.RegisterChange("exp-1", "agent-1", []string{"src/auth"})

	tests := []struct {
		name  string
		paths []string
	}{
		{"child of open dir", []string{"src/auth/login.go"}},
		{"parent of open path", []string{"src"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := d.Check(context.Background(), "exp-2", "agent-2", tt.paths)
			if err != nil {
				t.Fatalf("Check: %v", err)
			}
			if c == nil {
				t.Fatal("expected a conflict")
			}
			if c.Severity != SeverityWarning {
				t.Errorf("severity = %q, want warning", c.Severity)
			}
		})
	}
}

func TestCheckPrefixIsCaseSensitive(t *testing.T) {
	d := NewDetector(newMemStore(), nil)
	d.RegisterChange("exp-1", "agent-1", []string{"src/Auth"})

	c, err := d.Check(context.Background(), "exp-2", "agent-2", []string{"src/auth/login.go"})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if c != nil {
		t.Errorf("case-mismatched prefix must not collide, got %+v", c)
	}
}

func TestCheckSameExperimentIgnored(t *testing.T) {
	d := NewDetector(newMemStore(), nil)
	d.RegisterChange("exp-1", "agent-1", []string{"src/auth/login.go"})

	c, err := d.Check(context.Background(), "exp-1", "agent-2", []string{"src/auth/login.go"})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if c != nil {
		t.Errorf("same-experiment overlap must not conflict, got %+v", c)
	}
}

func TestCheckNoOverlap(t *testing.T) {
	d := NewDetector(newMemStore(), nil)
	d.RegisterChange("exp-1", "agent-1", []string{"src/auth/login.go"})

	c, err := d.Check(context.Background(), "exp-2", "agent-2", []string{"src/billing/invoice.go"})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if c != nil {
		t.Errorf("unrelated paths must not conflict, got %+v", c)
	}
}

func TestCheckExactBeatsPrefix(t *testing.T) {
	d := NewDetector(newMemStore(), nil)
	d.RegisterChange("exp-1", "agent-1", []string{"src/auth"})
	d.RegisterChange("exp-3", "agent-3", []string{"src/auth/login.go"})

	c, err := d.Check(context.Background(), "exp-2", "agent-2", []string{"src/auth/login.go"})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if c == nil {
		t.Fatal("expected a conflict")
	}
	if c.Severity != SeverityCritical {
		t.Errorf("severity = %q, want critical when an exact match exists", c.Severity)
	}
}

func TestCheckDeduplicatesIntoSingleConflict(t *testing.T) {
	d := NewDetector(newMemStore(), nil)
	d.RegisterChange("exp-1", "agent-1", []string{"src/auth/login.go", "src/auth/session.go"})
	d.RegisterChange("exp-3", "agent-3", []string{"src/auth/login.go"})

	c, err := d.Check(context.Background(), "exp-2", "agent-2",
		[]string{"src/auth/login.go", "src/auth/session.go", "src/auth/login.go"})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if c == nil {
		t.Fatal("expected a conflict")
	}
	if len(c.ExperimentIDs) != 3 {
		t.Errorf("experiment ids = %v, want exp-1, exp-2, exp-3 deduplicated", c.ExperimentIDs)
	}
	if len(c.Paths) != 2 {
		t.Errorf("paths = %v, want 2 deduplicated paths", c.Paths)
	}
}

func TestResolve(t *testing.T) {
	store := newMemStore()
	d := NewDetector(store, nil)
	d.RegisterChange("exp-1", "agent-1", []string{"src/auth/login.go"})

	c, _ := d.Check(context.Background(), "exp-2", "agent-2", []string{"src/auth/login.go"})
	if c == nil {
		t.Fatal("expected a conflict")
	}

	resolved, err := d.Resolve(context.Background(), c.ID, "operator-1")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !resolved.Resolved || resolved.ResolvedBy != "operator-1" || resolved.ResolvedAt == nil {
		t.Errorf("resolution not recorded: %+v", resolved)
	}

	if _, err := d.Resolve(context.Background(), c.ID, "operator-2"); !errors.IsCode(err, errors.ErrCodeAlreadyResolved) {
		t.Errorf("double resolve: got %v, want ALREADY_RESOLVED", err)
	}
	if _, err := d.Resolve(context.Background(), "missing", "operator-1"); !errors.IsCode(err, errors.ErrCodeNotFound) {
		t.Errorf("unknown conflict: got %v, want NOT_FOUND", err)
	}
}

func TestResolutionDoesNotSuppressRedetection(t *testing.T) {
	store := newMemStore()
	d := NewDetector(store, nil)
	d.RegisterChange("exp-1", "agent-1", []string{"src/auth/login.go"})

	first, _ := d.Check(context.Background(), "exp-2", "agent-2", []string{"src/auth/login.go"})
	if _, err := d.Resolve(context.Background(), first.ID, "operator-1"); err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	second, err := d.Check(context.Background(), "exp-2", "agent-2", []string{"src/auth/login.go"})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if second == nil {
		t.Fatal("re-running detection on the same inputs must produce a fresh conflict")
	}
	if second.ID == first.ID {
		t.Error("fresh conflict must have its own id")
	}
	if second.Resolved {
		t.Error("fresh conflict starts unresolved")
	}
}

func TestClearChange(t *testing.T) {
	d := NewDetector(newMemStore(), nil)
	d.RegisterChange("exp-1", "agent-1", []string{"src/auth/login.go"})
	d.ClearChange("exp-1", "agent-1")

	c, err := d.Check(context.Background(), "exp-2", "agent-2", []string{"src/auth/login.go"})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if c != nil {
		t.Errorf("cleared changes must not conflict, got %+v", c)
	}
}
