package persistence

import (
	"bytes"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aristath/postsched/internal/calendar"
	"github.com/aristath/postsched/internal/scheduler"
	"github.com/google/go-cmp/cmp"
)

func TestDocumentGraph(t *testing.T) {
	doc := testDocument(t, "season-1", 1)

	g, err := doc.Graph()
	if err != nil {
		t.Fatalf("Graph failed: %v", err)
	}
	if g.Len() != 3 {
		t.Fatalf("expected 3 tasks, got %d", g.Len())
	}

	dc, _ := g.Get("ep1-directors-cut")
	if dc.State != scheduler.StateAnchored || !dc.Start.Equal(calendar.Date(2025, 2, 10)) {
		t.Errorf("anchor not restored: %s %v", dc.State, dc.Start)
	}
	// Original links keep missing targets; release filters them later.
	if len(dc.OriginalPredecessors) != 2 {
		t.Errorf("original predecessors = %v", dc.OriginalPredecessors)
	}

	adhoc, _ := g.Get("adhoc-1")
	if adhoc.Kind != scheduler.KindAdHoc || !adhoc.Floor.Equal(calendar.Date(2025, 3, 3)) {
		t.Errorf("ad hoc task not restored: kind=%d floor=%v", adhoc.Kind, adhoc.Floor)
	}
	if deps := g.Dependents("ep1-directors-cut"); len(deps) != 1 || deps[0] != "adhoc-1" {
		t.Errorf("Dependents = %v, want [adhoc-1]", deps)
	}

	// A second capture of the rebuilt graph is identical.
	again := NewDocument(doc.Name, doc.Version, doc.Config, g)
	if diff := cmp.Diff(doc.Tasks, again.Tasks); diff != "" {
		t.Errorf("graph round trip changed tasks (-want +got):\n%s", diff)
	}
}

func TestDocumentGraphDropsMissingLinks(t *testing.T) {
	doc := testDocument(t, "season-1", 1)
	doc.Tasks = doc.Tasks[1:] // drop the editor's cut

	g, err := doc.Graph()
	if err != nil {
		t.Fatalf("Graph failed: %v", err)
	}
	if _, err := g.Validate(); err != nil {
		t.Errorf("rebuilt graph invalid: %v", err)
	}
}

func TestDocumentGraphRejectsBadRecords(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*TaskRecord)
		want   string
	}{
		{"bad kind", func(r *TaskRecord) { r.Kind = "chore" }, "kind"},
		{"bad state", func(r *TaskRecord) { r.State = "done" }, "state"},
		{"bad date", func(r *TaskRecord) { r.Start = "2025-13-01" }, "start"},
		{"placed without dates", func(r *TaskRecord) { r.End = "" }, "without dates"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := testDocument(t, "season-1", 1)
			tt.mutate(&doc.Tasks[0])
			_, err := doc.Graph()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %v, want it to mention %q", err, tt.want)
			}
		})
	}
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr error
	}{
		{"newer format", `{"format": 99, "config": {}}`, ErrUnsupportedFormat},
		{"missing config", `{"format": 1}`, nil},
		{"not json", `schedule`, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(strings.NewReader(tt.input))
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestExportImport(t *testing.T) {
	doc := testDocument(t, "season-1", 4)
	path := filepath.Join(t.TempDir(), "out", "season-1.json")

	if err := Export(doc, path); err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	got, err := Import(path)
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if diff := cmp.Diff(doc.Tasks, got.Tasks); diff != "" {
		t.Errorf("tasks mismatch (-want +got):\n%s", diff)
	}
	if got.Config.StartOfPhotography != "2025-01-06" {
		t.Errorf("config not restored: %q", got.Config.StartOfPhotography)
	}

	var buf bytes.Buffer
	if err := got.Encode(&buf); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if !strings.Contains(buf.String(), `"original_predecessors"`) {
		t.Error("encoded document lacks original predecessors")
	}
}
