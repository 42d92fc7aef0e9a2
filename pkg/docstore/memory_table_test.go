package docstore

import "testing"

func TestMemoryTableBasicOperations(t *testing.T) {
	table := NewMemoryTable()
	if err := table.Insert(Document{"id": "m1", "n": "one"}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := table.Insert(Document{"id": "m2", "n": "two"}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	doc, ok, err := table.Get("id", "m1")
	if err != nil || !ok || doc["n"] != "one" {
		t.Fatalf("get: doc=%v ok=%v err=%v", doc, ok, err)
	}

	count, err := table.Update(Document{"n": "uno"}, "id", "m1")
	if err != nil || count != 1 {
		t.Fatalf("update: count=%d err=%v", count, err)
	}
	doc, _, _ = table.Get("id", "m1")
	if doc["n"] != "uno" {
		t.Fatalf("update not applied: %v", doc)
	}

	removed, err := table.Remove("id", "m2")
	if err != nil || len(removed) != 1 {
		t.Fatalf("remove: removed=%v err=%v", removed, err)
	}
	docs, _ := table.All()
	if len(docs) != 1 {
		t.Fatalf("expected 1 doc left, got %d", len(docs))
	}
}

func TestMemoryTableReturnsCopies(t *testing.T) {
	table := NewMemoryTable()
	if err := table.Insert(Document{"id": "m1", "list": []any{"a"}}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	doc, _, _ := table.Get("id", "m1")
	doc["id"] = "mutated"

	again, ok, _ := table.Get("id", "m1")
	if !ok || again["id"] != "m1" {
		t.Fatalf("stored document was mutated through a returned copy: %v", again)
	}
}

func TestDecodeRejectsUnknownFields(t *testing.T) {
	type narrow struct {
		ID string `json:"id"`
	}
	var v narrow
	err := Decode(Document{"id": "x", "surprise": true}, &v)
	if err == nil {
		t.Fatalf("expected decode failure for unknown field")
	}
}
