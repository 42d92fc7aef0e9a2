// Package database implements the entity repositories and the cascade rules
// that keep the user -> user-detail -> {chat histories, books} ownership
// graph consistent.
package database

import (
	"log/slog"
	"path/filepath"
	"sync"

	"gorm.io/gorm"

	"refbook/pkg/docstore"
)

// Collection file names, kept compatible with the v1 on-disk layout.
const (
	UserFile        = "db_user_v1.json"
	UserDetailFile  = "db_user_detail_v1.json"
	BookFile        = "db_book_v1.json"
	ChatHistoryFile = "db_chat_history_v1.json"
)

// CollectionFiles returns the on-disk names of all collection files.
func CollectionFiles() []string {
	return []string{UserFile, UserDetailFile, BookFile, ChatHistoryFile}
}

// Tables groups the four collection tables the repositories operate on.
type Tables struct {
	Users         docstore.Table
	UserDetails   docstore.Table
	Books         docstore.Table
	ChatHistories docstore.Table
}

// OpenFileTables opens the four file-backed collections under dir.
func OpenFileTables(dir string) (Tables, error) {
	var tables Tables
	var err error
	if tables.Users, err = docstore.OpenFileTable(filepath.Join(dir, UserFile)); err != nil {
		return Tables{}, err
	}
	if tables.UserDetails, err = docstore.OpenFileTable(filepath.Join(dir, UserDetailFile)); err != nil {
		return Tables{}, err
	}
	if tables.Books, err = docstore.OpenFileTable(filepath.Join(dir, BookFile)); err != nil {
		return Tables{}, err
	}
	if tables.ChatHistories, err = docstore.OpenFileTable(filepath.Join(dir, ChatHistoryFile)); err != nil {
		return Tables{}, err
	}
	return tables, nil
}

// GormTables builds a table set over a shared postgres connection, one
// collection per logical table.
func GormTables(db *gorm.DB) Tables {
	return Tables{
		Users:         docstore.NewGormTable(db, "user"),
		UserDetails:   docstore.NewGormTable(db, "user_detail"),
		Books:         docstore.NewGormTable(db, "book"),
		ChatHistories: docstore.NewGormTable(db, "chat_history"),
	}
}

// MemoryTables builds an in-memory table set, used by tests.
func MemoryTables() Tables {
	return Tables{
		Users:         docstore.NewMemoryTable(),
		UserDetails:   docstore.NewMemoryTable(),
		Books:         docstore.NewMemoryTable(),
		ChatHistories: docstore.NewMemoryTable(),
	}
}

// Database bundles the repositories for all four entity kinds. Each
// collection is guarded by its own reader/writer lock; a cascade touching
// several collections never holds one lock across the whole operation, so
// cross-collection consistency is best-effort.
type Database struct {
	users   docstore.Table
	details docstore.Table
	books   docstore.Table
	chats   docstore.Table

	usersMu   sync.RWMutex
	detailsMu sync.RWMutex
	booksMu   sync.RWMutex
	chatsMu   sync.RWMutex

	logger *slog.Logger
}

// New wires the repositories onto the given tables.
func New(tables Tables, logger *slog.Logger) *Database {
	if logger == nil {
		logger = slog.Default()
	}
	return &Database{
		users:   tables.Users,
		details: tables.UserDetails,
		books:   tables.Books,
		chats:   tables.ChatHistories,
		logger:  logger,
	}
}

// Truncate drops every document from all four collections.
func (d *Database) Truncate() error {
	d.usersMu.Lock()
	defer d.usersMu.Unlock()
	d.detailsMu.Lock()
	defer d.detailsMu.Unlock()
	d.booksMu.Lock()
	defer d.booksMu.Unlock()
	d.chatsMu.Lock()
	defer d.chatsMu.Unlock()
	for _, table := range []docstore.Table{d.users, d.details, d.books, d.chats} {
		if err := table.Truncate(); err != nil {
			return err
		}
	}
	return nil
}
