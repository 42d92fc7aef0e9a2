// Command cleanup scans the database for orphaned chat histories and books,
// records that no user detail references anymore, and optionally removes
// them. Without -apply it only reports what it would delete.
package main

import (
	"flag"
	"log"
	"log/slog"

	"refbook/internal/config"
	"refbook/internal/database"
	"refbook/internal/util"
	"refbook/pkg/docstore"
)

func main() {
	configPath := flag.String("config", config.ConfigPath, "path to config file")
	apply := flag.Bool("apply", false, "delete orphaned records instead of reporting them")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger := util.InitLogger(cfg.LogLevel)

	tables, err := openTables(cfg)
	if err != nil {
		util.Fatal("failed to open storage", "driver", cfg.StorageDriver, "error", err)
	}
	db := database.New(tables, logger)

	details, err := db.AllUserDetails()
	if err != nil {
		util.Fatal("failed to list user details", "error", err)
	}
	referencedChats := map[string]bool{}
	referencedBooks := map[string]bool{}
	for _, detail := range details {
		referencedChats[detail.ConversationChatHistoryID] = true
		referencedChats[detail.BookChatHistoryID] = true
		for _, bookID := range detail.BookIDs {
			referencedBooks[bookID] = true
		}
	}

	histories, err := db.AllChatHistories()
	if err != nil {
		util.Fatal("failed to list chat histories", "error", err)
	}
	books, err := db.AllBooks()
	if err != nil {
		util.Fatal("failed to list books", "error", err)
	}

	var orphanedChats, orphanedBooks []string
	emptyChats := 0
	for _, history := range histories {
		if len(history.Messages) == 0 {
			emptyChats++
		}
		if !referencedChats[history.ID] {
			orphanedChats = append(orphanedChats, history.ID)
		}
	}
	for _, book := range books {
		if !referencedBooks[book.ID] {
			orphanedBooks = append(orphanedBooks, book.ID)
		}
	}

	logger.Info("database status",
		"user_details", len(details),
		"chat_histories", len(histories),
		"empty_chat_histories", emptyChats,
		"books", len(books),
		"orphaned_chat_histories", len(orphanedChats),
		"orphaned_books", len(orphanedBooks),
	)

	if !*apply {
		for _, id := range orphanedChats {
			logger.Info("would delete orphaned chat history", "id", id)
		}
		for _, id := range orphanedBooks {
			logger.Info("would delete orphaned book", "id", id)
		}
		if len(orphanedChats)+len(orphanedBooks) > 0 {
			logger.Info("dry run, re-run with -apply to delete")
		}
		return
	}

	for _, id := range orphanedChats {
		if err := db.DeleteChatHistory(id); err != nil {
			logger.Warn("failed to delete orphaned chat history", "id", id, "error", err)
			continue
		}
		slog.Info("deleted orphaned chat history", "id", id)
	}
	for _, id := range orphanedBooks {
		if err := db.DeleteBook(id); err != nil {
			logger.Warn("failed to delete orphaned book", "id", id, "error", err)
			continue
		}
		slog.Info("deleted orphaned book", "id", id)
	}
}

func openTables(cfg config.FileConfig) (database.Tables, error) {
	if cfg.StorageDriver == "postgres" {
		db, err := docstore.OpenGormDB(cfg.DatabaseURL)
		if err != nil {
			return database.Tables{}, err
		}
		return database.GormTables(db), nil
	}
	return database.OpenFileTables(cfg.DataDir)
}
