package scheduler

import (
	"errors"
	"strings"
	"testing"
)

func link(id string) Link { return Link{TaskID: id} }

// TestDAGValidate tests DAG validation with various graph structures.
func TestDAGValidate(t *testing.T) {
	tests := []struct {
		name        string
		setup       func() *DAG
		wantErr     bool
		errContains string
	}{
		{
			name: "valid linear chain",
			setup: func() *DAG {
				dag := NewDAG()
				dag.AddTask(&Task{ID: "A"})
				dag.AddTask(&Task{ID: "B", Predecessors: []Link{link("A")}})
				dag.AddTask(&Task{ID: "C", Predecessors: []Link{link("B")}})
				return dag
			},
		},
		{
			name: "valid fan-in",
			setup: func() *DAG {
				dag := NewDAG()
				dag.AddTask(&Task{ID: "A"})
				dag.AddTask(&Task{ID: "B"})
				dag.AddTask(&Task{ID: "C", Predecessors: []Link{link("A"), link("B")}})
				return dag
			},
		},
		{
			name: "direct cycle",
			setup: func() *DAG {
				dag := NewDAG()
				dag.AddTask(&Task{ID: "A", Predecessors: []Link{link("B")}})
				dag.AddTask(&Task{ID: "B", Predecessors: []Link{link("A")}})
				return dag
			},
			wantErr:     true,
			errContains: "cycle",
		},
		{
			name: "missing predecessor",
			setup: func() *DAG {
				dag := NewDAG()
				dag.AddTask(&Task{ID: "A", Predecessors: []Link{link("ghost")}})
				return dag
			},
			wantErr:     true,
			errContains: "non-existent",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			order, err := tt.setup().Validate()
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				if !strings.Contains(err.Error(), tt.errContains) {
					t.Errorf("error %q does not contain %q", err, tt.errContains)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			pos := make(map[string]int)
			for i, id := range order {
				pos[id] = i
			}
			for _, task := range tt.setup().Tasks() {
				for _, l := range task.Predecessors {
					if pos[l.TaskID] > pos[task.ID] {
						t.Errorf("%s ordered after its dependent %s", l.TaskID, task.ID)
					}
				}
			}
		})
	}
}

func TestDAGAddTaskDuplicate(t *testing.T) {
	dag := NewDAG()
	if err := dag.AddTask(&Task{ID: "A"}); err != nil {
		t.Fatalf("first AddTask failed: %v", err)
	}
	if err := dag.AddTask(&Task{ID: "A"}); err == nil {
		t.Error("expected duplicate ID error")
	}
}

func TestDAGAddEdge(t *testing.T) {
	dag := NewDAG()
	dag.AddTask(&Task{ID: "A"})
	dag.AddTask(&Task{ID: "B"})

	for i := 0; i < 2; i++ {
		if err := dag.AddEdge("B", Link{TaskID: "A", Delay: -2}); err != nil {
			t.Fatalf("AddEdge failed: %v", err)
		}
	}

	b, _ := dag.Get("B")
	if len(b.Predecessors) != 1 {
		t.Fatalf("expected 1 predecessor after repeated AddEdge, got %d", len(b.Predecessors))
	}
	if b.Predecessors[0].Delay != -2 {
		t.Errorf("delay = %d, want -2", b.Predecessors[0].Delay)
	}
	if deps := dag.Dependents("A"); len(deps) != 1 || deps[0] != "B" {
		t.Errorf("Dependents(A) = %v, want [B]", deps)
	}

	if err := dag.AddEdge("B", link("ghost")); !errors.Is(err, ErrTaskNotFound) {
		t.Errorf("expected ErrTaskNotFound, got %v", err)
	}
}

func TestDAGReady(t *testing.T) {
	dag := NewDAG()
	dag.AddTask(&Task{ID: "A", State: StateAnchored})
	dag.AddTask(&Task{ID: "B", Predecessors: []Link{link("A")}})
	dag.AddTask(&Task{ID: "C", Predecessors: []Link{link("B")}})
	dag.AddTask(&Task{ID: "D"})

	ready := dag.Ready()
	var ids []string
	for _, r := range ready {
		ids = append(ids, r.ID)
	}
	if strings.Join(ids, ",") != "B,D" {
		t.Errorf("Ready() = %v, want [B D]", ids)
	}

	// Returned tasks are copies.
	ready[0].State = StateScheduled
	if b, _ := dag.Get("B"); b.State != StateUnscheduled {
		t.Error("mutating a Ready() result changed the DAG")
	}
}

func TestDAGRemoveStripsLiveLinksOnly(t *testing.T) {
	dag := NewDAG()
	dag.AddTask(&Task{ID: "A"})
	dag.AddTask(&Task{
		ID:                   "B",
		Predecessors:         []Link{link("A")},
		OriginalPredecessors: []Link{link("A")},
	})

	if err := dag.Remove("A"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}

	b, _ := dag.Get("B")
	if len(b.Predecessors) != 0 {
		t.Errorf("live link to removed task survived: %v", b.Predecessors)
	}
	if len(b.OriginalPredecessors) != 1 {
		t.Errorf("original predecessors should keep the dangling ID, got %v", b.OriginalPredecessors)
	}
	if got := dag.FilterLinks(b.OriginalPredecessors); len(got) != 0 {
		t.Errorf("FilterLinks kept missing target: %v", got)
	}
	if err := dag.Remove("A"); !errors.Is(err, ErrTaskNotFound) {
		t.Errorf("second Remove error = %v, want ErrTaskNotFound", err)
	}
}

func TestDAGCloneIsDeep(t *testing.T) {
	dag := NewDAG()
	dag.AddTask(&Task{ID: "A", Resources: []string{"Editor A"}})
	dag.AddTask(&Task{ID: "B", Predecessors: []Link{link("A")}})

	cp := dag.Clone()
	cp.Update("A", func(task *Task) error {
		task.Resources[0] = "Editor B"
		return nil
	})
	cp.AddTask(&Task{ID: "C"})

	a, _ := dag.Get("A")
	if a.Resources[0] != "Editor A" {
		t.Errorf("clone shares resource slice with original")
	}
	if dag.Len() != 2 {
		t.Errorf("original grew to %d tasks", dag.Len())
	}
}

func TestDAGFind(t *testing.T) {
	dag := NewDAG()
	dag.AddTask(&Task{ID: "ep1-pl", Episode: 1, Stage: Stage{Name: "Picture Lock"}})
	dag.AddTask(&Task{ID: "ep2-pl", Episode: 2, Stage: Stage{Name: "Picture Lock"}})

	got, ok := dag.Find(2, "Picture Lock")
	if !ok || got.ID != "ep2-pl" {
		t.Errorf("Find(2, Picture Lock) = %v, %v", got, ok)
	}
	if _, ok := dag.Find(3, "Picture Lock"); ok {
		t.Error("Find returned a task for a missing episode")
	}
}
