package docstore

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"

	"github.com/natefinch/atomic"
)

const defaultTableName = "_default"

// FileTable persists one collection to a single human-readable JSON file.
// The on-disk layout is {"_default": {"1": {...}, "2": {...}}} with 4-space
// indentation and UTF-8 text left unescaped. Documents are cached in memory
// and the whole file is rewritten atomically on every mutation.
type FileTable struct {
	mu     sync.Mutex
	path   string
	docs   map[int]Document
	nextID int
}

// OpenFileTable loads (or creates) the JSON file backing a collection.
func OpenFileTable(path string) (*FileTable, error) {
	t := &FileTable{
		path:   path,
		docs:   make(map[int]Document),
		nextID: 1,
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		if err := t.flush(); err != nil {
			return nil, err
		}
		return t, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read table file: %w", err)
	}
	var raw map[string]map[string]Document
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse table file %s: %w", path, err)
	}
	for key, doc := range raw[defaultTableName] {
		id, err := strconv.Atoi(key)
		if err != nil {
			return nil, fmt.Errorf("parse table file %s: bad document key %q", path, key)
		}
		t.docs[id] = doc
		if id >= t.nextID {
			t.nextID = id + 1
		}
	}
	return t, nil
}

// Path returns the backing file path.
func (t *FileTable) Path() string {
	return t.path
}

func (t *FileTable) Get(field string, value any) (Document, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, id := range t.sortedIDs() {
		if matches(t.docs[id], field, value) {
			return clone(t.docs[id]), true, nil
		}
	}
	return nil, false, nil
}

func (t *FileTable) Search(field string, value any) ([]Document, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []Document
	for _, id := range t.sortedIDs() {
		if matches(t.docs[id], field, value) {
			out = append(out, clone(t.docs[id]))
		}
	}
	return out, nil
}

func (t *FileTable) All() ([]Document, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Document, 0, len(t.docs))
	for _, id := range t.sortedIDs() {
		out = append(out, clone(t.docs[id]))
	}
	return out, nil
}

func (t *FileTable) Insert(doc Document) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := t.nextID
	t.nextID++
	t.docs[id] = clone(doc)
	return t.flush()
}

func (t *FileTable) Update(fields Document, field string, value any) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	count := 0
	for id, doc := range t.docs {
		if !matches(doc, field, value) {
			continue
		}
		merged := clone(doc)
		for k, v := range clone(fields) {
			merged[k] = v
		}
		t.docs[id] = merged
		count++
	}
	if count == 0 {
		return 0, nil
	}
	return count, t.flush()
}

func (t *FileTable) Remove(field string, value any) ([]Document, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	var removed []Document
	for _, id := range t.sortedIDs() {
		if matches(t.docs[id], field, value) {
			removed = append(removed, clone(t.docs[id]))
			delete(t.docs, id)
		}
	}
	if len(removed) == 0 {
		return nil, nil
	}
	return removed, t.flush()
}

func (t *FileTable) Truncate() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.docs = make(map[int]Document)
	t.nextID = 1
	return t.flush()
}

func (t *FileTable) sortedIDs() []int {
	ids := make([]int, 0, len(t.docs))
	for id := range t.docs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// flush rewrites the backing file. Callers must hold t.mu.
func (t *FileTable) flush() error {
	payload := map[string]map[string]Document{
		defaultTableName: make(map[string]Document, len(t.docs)),
	}
	for id, doc := range t.docs {
		payload[defaultTableName][strconv.Itoa(id)] = doc
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "    ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(payload); err != nil {
		return fmt.Errorf("encode table file: %w", err)
	}
	if err := atomic.WriteFile(t.path, &buf); err != nil {
		return fmt.Errorf("write table file: %w", err)
	}
	return nil
}
