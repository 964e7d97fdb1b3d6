package scope

import "testing"

import "taskforge/internal/taskmodel"

func buildBacklog() *taskmodel.Backlog {
	sub1 := &taskmodel.Item{Kind: taskmodel.KindSubtask, ID: "P1.M1.T1.S1", Title: "s1", Status: taskmodel.StatusPlanned}
	sub2 := &taskmodel.Item{Kind: taskmodel.KindSubtask, ID: "P1.M1.T1.S2", Title: "s2", Status: taskmodel.StatusPlanned}
	task := &taskmodel.Item{Kind: taskmodel.KindTask, ID: "P1.M1.T1", Title: "t1", Status: taskmodel.StatusPlanned, Children: []*taskmodel.Item{sub1, sub2}}
	milestone := &taskmodel.Item{Kind: taskmodel.KindMilestone, ID: "P1.M1", Title: "m1", Status: taskmodel.StatusPlanned, Children: []*taskmodel.Item{task}}
	phase := &taskmodel.Item{Kind: taskmodel.KindPhase, ID: "P1", Title: "p1", Status: taskmodel.StatusPlanned, Children: []*taskmodel.Item{milestone}}
	return &taskmodel.Backlog{Backlog: []*taskmodel.Item{phase}}
}

func TestParse(t *testing.T) {
	if s, err := Parse("all"); err != nil || s.Kind != KindAll {
		t.Fatalf("Parse(all) = %+v, %v", s, err)
	}
	if s, err := Parse("P1.M1.T1.S1"); err != nil || s.Kind != KindSubtask {
		t.Fatalf("Parse(subtask) = %+v, %v", s, err)
	}
	if _, err := Parse("garbage"); err == nil {
		t.Fatal("expected ScopeParseError for garbage input")
	}
}

func TestResolveAll(t *testing.T) {
	b := buildBacklog()
	s, _ := Parse("all")
	items := Resolve(b, s)
	if len(items) != 2 {
		t.Fatalf("expected 2 subtasks, got %d", len(items))
	}
}

func TestResolveSubtree(t *testing.T) {
	b := buildBacklog()
	s, _ := Parse("P1.M1.T1")
	items := Resolve(b, s)
	want := []string{"P1.M1.T1", "P1.M1.T1.S1", "P1.M1.T1.S2"}
	if len(items) != len(want) {
		t.Fatalf("got %d items, want %d", len(items), len(want))
	}
	for i, w := range want {
		if items[i].ID != w {
			t.Fatalf("item %d = %s, want %s", i, items[i].ID, w)
		}
	}
}

func TestResolveUnknownIDIsEmpty(t *testing.T) {
	b := buildBacklog()
	s, _ := Parse("P9.M9.T9.S9")
	if items := Resolve(b, s); len(items) != 0 {
		t.Fatalf("expected empty sequence for unknown id, got %d", len(items))
	}
}
