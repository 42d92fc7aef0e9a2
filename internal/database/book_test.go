package database

import (
	"reflect"
	"testing"

	"refbook/pkg/domain"
)

func TestBookNestedRoundTrip(t *testing.T) {
	db := newTestDB(t)

	book := domain.Book{
		Title: "微积分入门",
		Chapters: []domain.Chapter{
			{
				Title:        "第一章：极限",
				Introduction: "极限的直观理解",
				Sections: []domain.Section{
					{
						Title:        "数列极限",
						Introduction: "从数列出发",
						Concepts: []domain.Concept{
							{
								Introduction: "ε-N 定义",
								Explanation:  "对任意 ε>0 存在 N",
								Conclusion:   "收敛数列有唯一极限",
							},
						},
					},
				},
			},
			{
				Title:        "第二章：导数",
				Introduction: "变化率",
				Sections:     []domain.Section{},
			},
		},
	}

	bookID, err := db.NewBook(book)
	if err != nil {
		t.Fatalf("new book: %v", err)
	}
	if bookID == "" {
		t.Fatalf("expected generated book id")
	}

	got, err := db.GetBook(bookID)
	if err != nil {
		t.Fatalf("get book: %v", err)
	}
	book.ID = bookID
	if !reflect.DeepEqual(got, book) {
		t.Fatalf("round trip mismatch:\n got: %+v\nwant: %+v", got, book)
	}
}

func TestNewBookRequiresTitle(t *testing.T) {
	db := newTestDB(t)
	if _, err := db.NewBook(domain.Book{}); KindOf(err) != KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestNewBookIgnoresCallerID(t *testing.T) {
	db := newTestDB(t)
	bookID, err := db.NewBook(domain.Book{ID: "caller-chosen", Title: "t"})
	if err != nil {
		t.Fatalf("new book: %v", err)
	}
	if bookID == "caller-chosen" {
		t.Fatalf("book id must be generated, not caller supplied")
	}
	if _, err := db.GetBook("caller-chosen"); !IsNotFound(err) {
		t.Fatalf("caller id should not be stored, got %v", err)
	}
}

func TestGetBookMisses(t *testing.T) {
	db := newTestDB(t)
	if _, err := db.GetBook("never-issued"); !IsNotFound(err) {
		t.Fatalf("expected not-found, got %v", err)
	}
	if _, err := db.GetBook(" "); !IsNotFound(err) {
		t.Fatalf("expected not-found for blank id, got %v", err)
	}
}

func TestDeleteBookTwice(t *testing.T) {
	db := newTestDB(t)
	bookID := mustNewBook(t, db, "short lived")

	if err := db.DeleteBook(bookID); err != nil {
		t.Fatalf("first delete: %v", err)
	}
	if err := db.DeleteBook(bookID); !IsNotFound(err) {
		t.Fatalf("expected not-found on second delete, got %v", err)
	}
}
