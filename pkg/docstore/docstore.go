// Package docstore provides per-collection document tables with equality
// predicates, backed by flat JSON files, process memory, or Postgres.
package docstore

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Document is one schema-less record in a table.
type Document map[string]any

// Table is a single collection of documents. Predicates are an equality
// match on a named top-level field.
type Table interface {
	// Get returns the first document whose field equals value.
	Get(field string, value any) (Document, bool, error)
	// Search returns every document whose field equals value.
	Search(field string, value any) ([]Document, error)
	// All returns every document in the table.
	All() ([]Document, error)
	// Insert appends a new document.
	Insert(doc Document) error
	// Update merges fields into every document whose field equals value and
	// returns how many documents were touched.
	Update(fields Document, field string, value any) (int, error)
	// Remove deletes every document whose field equals value and returns the
	// removed documents.
	Remove(field string, value any) ([]Document, error)
	// Truncate drops every document.
	Truncate() error
}

// Encode converts a struct into a Document via its JSON form.
func Encode(v any) (Document, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	return doc, nil
}

// Decode converts a Document into a typed value. Unknown fields are
// rejected so records with the wrong shape fail closed.
func Decode(doc Document, v any) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("decode document: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode document: %w", err)
	}
	return nil
}

func matches(doc Document, field string, value any) bool {
	got, ok := doc[field]
	if !ok {
		return false
	}
	return got == value
}

func clone(doc Document) Document {
	out := make(Document, len(doc))
	data, err := json.Marshal(doc)
	if err != nil {
		return out
	}
	_ = json.Unmarshal(data, &out)
	return out
}
