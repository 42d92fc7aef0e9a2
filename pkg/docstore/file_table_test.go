package docstore

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestFileTableInsertGetRemove(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db_test_v1.json")
	table, err := OpenFileTable(path)
	if err != nil {
		t.Fatalf("open table: %v", err)
	}

	if err := table.Insert(Document{"id": "a1", "title": "first"}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := table.Insert(Document{"id": "a2", "title": "second"}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	doc, ok, err := table.Get("id", "a2")
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if doc["title"] != "second" {
		t.Fatalf("unexpected title: %v", doc["title"])
	}

	if _, ok, _ := table.Get("id", "missing"); ok {
		t.Fatalf("expected miss for unknown id")
	}

	removed, err := table.Remove("id", "a1")
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if len(removed) != 1 || removed[0]["id"] != "a1" {
		t.Fatalf("unexpected removed docs: %v", removed)
	}
	if removed, _ := table.Remove("id", "a1"); removed != nil {
		t.Fatalf("second remove should match nothing, got %v", removed)
	}
}

func TestFileTableReloadsFromDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db_test_v1.json")
	table, err := OpenFileTable(path)
	if err != nil {
		t.Fatalf("open table: %v", err)
	}
	if err := table.Insert(Document{"id": "b1", "title": "测试图书", "chapters": []any{
		map[string]any{"title": "第一章", "sections": []any{}},
	}}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	reopened, err := OpenFileTable(path)
	if err != nil {
		t.Fatalf("reopen table: %v", err)
	}
	doc, ok, err := reopened.Get("id", "b1")
	if err != nil || !ok {
		t.Fatalf("get after reload: ok=%v err=%v", ok, err)
	}
	if doc["title"] != "测试图书" {
		t.Fatalf("multi-byte title did not survive reload: %v", doc["title"])
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	if !strings.Contains(string(raw), `"_default"`) {
		t.Fatalf("file missing default table wrapper:\n%s", raw)
	}
	if !strings.Contains(string(raw), "测试图书") {
		t.Fatalf("file should keep UTF-8 text unescaped:\n%s", raw)
	}
	if !strings.Contains(string(raw), "    ") {
		t.Fatalf("file should be indented:\n%s", raw)
	}
}

func TestFileTableUpdateMergesFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db_test_v1.json")
	table, err := OpenFileTable(path)
	if err != nil {
		t.Fatalf("open table: %v", err)
	}
	if err := table.Insert(Document{"id": "c1", "title": "old", "extra": "keep"}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	count, err := table.Update(Document{"title": "new"}, "id", "c1")
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 update, got %d", count)
	}
	doc, _, _ := table.Get("id", "c1")
	if doc["title"] != "new" || doc["extra"] != "keep" {
		t.Fatalf("merge result wrong: %v", doc)
	}

	count, err = table.Update(Document{"title": "x"}, "id", "nope")
	if err != nil || count != 0 {
		t.Fatalf("update of missing doc: count=%d err=%v", count, err)
	}
}

func TestFileTableTruncate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db_test_v1.json")
	table, err := OpenFileTable(path)
	if err != nil {
		t.Fatalf("open table: %v", err)
	}
	for _, id := range []string{"d1", "d2", "d3"} {
		if err := table.Insert(Document{"id": id}); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}
	if err := table.Truncate(); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	docs, err := table.All()
	if err != nil {
		t.Fatalf("all: %v", err)
	}
	if len(docs) != 0 {
		t.Fatalf("expected empty table, got %d docs", len(docs))
	}
}
