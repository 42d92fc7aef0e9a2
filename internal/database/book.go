package database

import (
	"fmt"
	"strings"

	"refbook/pkg/docstore"
	"refbook/pkg/domain"
)

// NewBook persists a book with its embedded chapter tree and returns the
// generated ID. Any ID already set on the value is replaced.
func (d *Database) NewBook(book domain.Book) (string, error) {
	if strings.TrimSpace(book.Title) == "" {
		return "", validation("Book title must not be empty")
	}

	d.booksMu.Lock()
	defer d.booksMu.Unlock()

	book.ID = NewID("book", 0)
	doc, err := docstore.Encode(book)
	if err != nil {
		return "", fmt.Errorf("encode book: %w", err)
	}
	if err := d.books.Insert(doc); err != nil {
		return "", fmt.Errorf("insert book: %w", err)
	}
	return book.ID, nil
}

// GetBook looks a book up by primary key.
func (d *Database) GetBook(bookID string) (domain.Book, error) {
	if strings.TrimSpace(bookID) == "" {
		return domain.Book{}, notFound("Book not found")
	}

	d.booksMu.RLock()
	defer d.booksMu.RUnlock()

	doc, ok, err := d.books.Get("id", bookID)
	if err != nil {
		return domain.Book{}, fmt.Errorf("get book: %w", err)
	}
	if !ok {
		return domain.Book{}, notFound("Book not found")
	}
	var book domain.Book
	if err := docstore.Decode(doc, &book); err != nil {
		return domain.Book{}, invalidData("Book record is not valid: " + err.Error())
	}
	if err := book.Validate(); err != nil {
		return domain.Book{}, invalidData("Book record is not valid: " + err.Error())
	}
	return book, nil
}

// AllBooks returns every book record, used by the orphan scanner.
func (d *Database) AllBooks() ([]domain.Book, error) {
	d.booksMu.RLock()
	defer d.booksMu.RUnlock()

	docs, err := d.books.All()
	if err != nil {
		return nil, fmt.Errorf("list books: %w", err)
	}
	books := make([]domain.Book, 0, len(docs))
	for _, doc := range docs {
		var book domain.Book
		if err := docstore.Decode(doc, &book); err != nil {
			return nil, invalidData("Book record is not valid: " + err.Error())
		}
		books = append(books, book)
	}
	return books, nil
}

// DeleteBook removes a single book row. A missing book is a not-found error
// and removes nothing.
func (d *Database) DeleteBook(bookID string) error {
	if strings.TrimSpace(bookID) == "" {
		return notFound("Book not found")
	}

	d.booksMu.Lock()
	defer d.booksMu.Unlock()

	_, ok, err := d.books.Get("id", bookID)
	if err != nil {
		return fmt.Errorf("get book: %w", err)
	}
	if !ok {
		return notFound("Book not found")
	}
	if _, err := d.books.Remove("id", bookID); err != nil {
		return fmt.Errorf("remove book: %w", err)
	}
	return nil
}
