package script

import "testing"

func TestParseAssignsStepIndex(t *testing.T) {
	raw := []byte(`{"run": [
		{"id": "first", "method": "shell.run", "params": {"message": "echo 1"}},
		{"id": "second", "method": "shell.run", "params": {"message": "echo 2"}}
	]}`)
	doc, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(doc.Run) != 2 {
		t.Fatalf("Parse() = %d steps, want 2", len(doc.Run))
	}
	if doc.Run[0].Index != 0 || doc.Run[1].Index != 1 {
		t.Fatalf("Parse() indices = %d, %d, want 0, 1", doc.Run[0].Index, doc.Run[1].Index)
	}
}

func TestParseRejectsSchemaViolation(t *testing.T) {
	_, err := Parse([]byte(`{"run": [{"params": {}}]}`))
	if err == nil {
		t.Fatal("Parse() should reject a step without a method")
	}
}

func TestIndexByID(t *testing.T) {
	doc, err := Parse([]byte(`{"run": [{"id": "a", "method": "shell.run"}, {"id": "b", "method": "shell.run"}]}`))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if got := doc.indexByID("b"); got != 1 {
		t.Fatalf("indexByID(b) = %d, want 1", got)
	}
	if got := doc.indexByID("missing"); got != -1 {
		t.Fatalf("indexByID(missing) = %d, want -1", got)
	}
}
