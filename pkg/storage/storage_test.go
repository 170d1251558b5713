package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/odvcencio/northstar/pkg/conflict"
	"github.com/odvcencio/northstar/pkg/experiment"
	"github.com/odvcencio/northstar/pkg/gate"
	"github.com/odvcencio/northstar/pkg/outcome"
	"github.com/odvcencio/northstar/pkg/stats"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(filepath.Join(t.TempDir(), "northstar.db"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSchemaVersion(t *testing.T) {
	store := testStore(t)
	version, err := store.GetSchemaVersion()
	if err != nil {
		t.Fatalf("GetSchemaVersion: %v", err)
	}
	if version < 1 {
		t.Errorf("schema version = %d, want >= 1", version)
	}
}

func TestOutcomeRoundTrip(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	o := &outcome.Outcome{
		ID:    "out-1",
		Name:  "Improve activation",
		Owner: "growth-team",
		Signal: outcome.Signal{
			Source: "warehouse",
			Metric: "activation_rate",
			Method: "sql",
		},
		Target: outcome.Target{
			Direction:          outcome.DirectionIncrease,
			Threshold:          0.05,
			ConfidenceRequired: 0.95,
		},
		MaxConcurrentExperiments: 3,
		Status:                   outcome.StatusDraft,
		CreatedAt:                time.Now().UTC().Truncate(time.Second),
	}
	if err := store.SaveOutcome(ctx, o); err != nil {
		t.Fatalf("SaveOutcome: %v", err)
	}

	got, err := store.GetOutcome(ctx, "out-1")
	if err != nil {
		t.Fatalf("GetOutcome: %v", err)
	}
	if got == nil {
		t.Fatal("outcome not found")
	}
	if got.Signal.Metric != "activation_rate" || got.Target.Direction != outcome.DirectionIncrease {
		t.Errorf("round trip lost fields: %+v", got)
	}

	activated := time.Now().UTC().Truncate(time.Second)
	o.Status = outcome.StatusActive
	o.ActivatedAt = &activated
	if err := store.UpdateOutcome(ctx, o); err != nil {
		t.Fatalf("UpdateOutcome: %v", err)
	}

	got, _ = store.GetOutcome(ctx, "out-1")
	if got.Status != outcome.StatusActive || got.ActivatedAt == nil {
		t.Errorf("update lost fields: %+v", got)
	}

	active, err := store.ListOutcomes(ctx, outcome.StatusActive)
	if err != nil {
		t.Fatalf("ListOutcomes: %v", err)
	}
	if len(active) != 1 {
		t.Errorf("active outcomes = %d, want 1", len(active))
	}

	missing, err := store.GetOutcome(ctx, "nope")
	if err != nil || missing != nil {
		t.Errorf("missing outcome: got %v, %v; want nil, nil", missing, err)
	}
}

func TestExperimentRoundTrip(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	o := &outcome.Outcome{
		ID: "out-1", Name: "n", Owner: "o",
		Signal:    outcome.Signal{Metric: "m"},
		Status:    outcome.StatusActive,
		CreatedAt: time.Now().UTC(),
	}
	if err := store.SaveOutcome(ctx, o); err != nil {
		t.Fatalf("SaveOutcome: %v", err)
	}

	e := &experiment.Experiment{
		ID:        "exp-1",
		OutcomeID: "out-1",
		Candidate: experiment.Candidate{
			Title:      "Shorter signup",
			Hypothesis: "Fewer fields raise completion",
			Prediction: experiment.Prediction{Signal: "activation_rate", ExpectedDelta: 0.1, Confidence: 0.8},
			MeasurementPlan: experiment.MeasurementPlan{
				MinSampleSize:      100,
				ConfidenceRequired: 0.95,
				SuccessThreshold:   0.05,
				KillThreshold:      -0.05,
			},
			EffortHours:   5,
			Risk:          experiment.RiskLow,
			Reversible:    true,
			AffectedFiles: []string{"src/signup/form.go"},
		},
		State:     experiment.StateHypothesis,
		CreatedAt: time.Now().UTC().Truncate(time.Second),
	}
	if err := store.SaveExperiment(ctx, e); err != nil {
		t.Fatalf("SaveExperiment: %v", err)
	}

	got, err := store.GetExperiment(ctx, "exp-1")
	if err != nil {
		t.Fatalf("GetExperiment: %v", err)
	}
	if got == nil {
		t.Fatal("experiment not found")
	}
	if got.Candidate.Title != "Shorter signup" || got.Candidate.MeasurementPlan.MinSampleSize != 100 {
		t.Errorf("candidate round trip lost fields: %+v", got.Candidate)
	}

	launched := time.Now().UTC().Truncate(time.Second)
	e.State = experiment.StateRunning
	e.LaunchedAt = &launched
	if err := store.UpdateExperiment(ctx, e); err != nil {
		t.Fatalf("UpdateExperiment: %v", err)
	}

	running, err := store.ListExperimentsByState(ctx, experiment.StateRunning)
	if err != nil {
		t.Fatalf("ListExperimentsByState: %v", err)
	}
	if len(running) != 1 || running[0].LaunchedAt == nil {
		t.Errorf("running experiments = %+v", running)
	}

	byOutcome, err := store.ListExperimentsByOutcome(ctx, "out-1")
	if err != nil {
		t.Fatalf("ListExperimentsByOutcome: %v", err)
	}
	if len(byOutcome) != 1 {
		t.Errorf("experiments under outcome = %d, want 1", len(byOutcome))
	}
}

func TestGateStoreContract(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	g := &gate.Gate{
		ID:              "g1",
		ExperimentID:    "exp-1",
		OutcomeID:       "out-1",
		Type:            gate.TypeAnalysis,
		Question:        "Ship it?",
		Context:         map[string]any{"candidate_title": "faster checkout", "measurement_count": float64(42)},
		Assignee:        "u1",
		EscalationChain: []string{"u2", "u3"},
		SLAHours:        24,
		Status:          gate.StatusPending,
		CreatedAt:       time.Now().UTC().Truncate(time.Second),
	}
	if err := store.SaveGate(ctx, g); err != nil {
		t.Fatalf("SaveGate: %v", err)
	}

	got, err := store.GetGate(ctx, "g1")
	if err != nil {
		t.Fatalf("GetGate: %v", err)
	}
	if got == nil {
		t.Fatal("gate not found")
	}
	if len(got.EscalationChain) != 2 || got.EscalationChain[0] != "u2" {
		t.Errorf("escalation chain = %v", got.EscalationChain)
	}
	if got.Context["candidate_title"] != "faster checkout" || got.Context["measurement_count"] != float64(42) {
		t.Errorf("context round trip lost fields: %#v", got.Context)
	}

	open, err := store.ListOpenGates(ctx)
	if err != nil {
		t.Fatalf("ListOpenGates: %v", err)
	}
	if len(open) != 1 {
		t.Errorf("open gates = %d, want 1", len(open))
	}

	mine, err := store.FindPendingByAssignee(ctx, "u1")
	if err != nil {
		t.Fatalf("FindPendingByAssignee: %v", err)
	}
	if len(mine) != 1 {
		t.Errorf("gates for u1 = %d, want 1", len(mine))
	}

	respondedAt := time.Now().UTC().Truncate(time.Second)
	g.Status = gate.StatusApproved
	g.RespondedAt = &respondedAt
	g.Response = &gate.Response{By: "u1", Status: gate.StatusApproved, Decision: experiment.DecisionShip}
	if err := store.UpdateGate(ctx, g); err != nil {
		t.Fatalf("UpdateGate: %v", err)
	}

	got, _ = store.GetGate(ctx, "g1")
	if got.Response == nil || got.Response.Decision != experiment.DecisionShip {
		t.Errorf("response round trip lost fields: %+v", got.Response)
	}

	open, _ = store.ListOpenGates(ctx)
	if len(open) != 0 {
		t.Errorf("open gates after approval = %d, want 0", len(open))
	}

	missing, err := store.GetGate(ctx, "nope")
	if err != nil || missing != nil {
		t.Errorf("missing gate: got %v, %v; want nil, nil", missing, err)
	}
}

func TestConflictStoreContract(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	c := &conflict.Conflict{
		ID:            "c1",
		Type:          conflict.TypeFileOverlap,
		Severity:      conflict.SeverityCritical,
		ExperimentIDs: []string{"exp-1", "exp-2"},
		AgentIDs:      []string{"agent-1", "agent-2"},
		Paths:         []string{"src/auth/login.go"},
		DetectedAt:    time.Now().UTC().Truncate(time.Second),
	}
	if err := store.SaveConflict(ctx, c); err != nil {
		t.Fatalf("SaveConflict: %v", err)
	}

	open, err := store.ListConflicts(ctx, true)
	if err != nil {
		t.Fatalf("ListConflicts: %v", err)
	}
	if len(open) != 1 {
		t.Fatalf("unresolved conflicts = %d, want 1", len(open))
	}
	if open[0].Severity != conflict.SeverityCritical || len(open[0].ExperimentIDs) != 2 {
		t.Errorf("conflict round trip lost fields: %+v", open[0])
	}

	resolvedAt := time.Now().UTC().Truncate(time.Second)
	c.Resolved = true
	c.ResolvedBy = "operator-1"
	c.ResolvedAt = &resolvedAt
	if err := store.UpdateConflict(ctx, c); err != nil {
		t.Fatalf("UpdateConflict: %v", err)
	}

	open, _ = store.ListConflicts(ctx, true)
	if len(open) != 0 {
		t.Errorf("unresolved conflicts after resolve = %d, want 0", len(open))
	}

	all, _ := store.ListConflicts(ctx, false)
	if len(all) != 1 || !all[0].Resolved || all[0].ResolvedBy != "operator-1" {
		t.Errorf("resolved conflict = %+v", all)
	}
}

func TestMeasurementStream(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Second)
	samples := []stats.Measurement{
		{Value: 1.0, Variant: stats.VariantControl, Timestamp: base},
		{Value: 1.2, Variant: stats.VariantTreatment, Timestamp: base.Add(time.Minute)},
		{Value: 0.9, Variant: stats.VariantControl, Timestamp: base.Add(2 * time.Minute)},
	}
	for _, m := range samples {
		if err := store.AppendMeasurement(ctx, "exp-1", m); err != nil {
			t.Fatalf("AppendMeasurement: %v", err)
		}
	}

	got, err := store.Measurements(ctx, "exp-1")
	if err != nil {
		t.Fatalf("Measurements: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("measurements = %d, want 3", len(got))
	}
	if got[0].Value != 1.0 || got[1].Variant != stats.VariantTreatment {
		t.Errorf("stream order lost: %+v", got)
	}

	empty, err := store.Measurements(ctx, "other")
	if err != nil {
		t.Fatalf("Measurements: %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("expected empty stream, got %d", len(empty))
	}
}
