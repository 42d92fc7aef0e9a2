package database

import (
	"fmt"
	"slices"
	"strings"

	"refbook/pkg/docstore"
	"refbook/pkg/domain"
)

// NewUserDetail creates a user detail together with its two chat histories.
// Both histories must exist before the detail row is written.
func (d *Database) NewUserDetail() (string, error) {
	d.detailsMu.Lock()
	defer d.detailsMu.Unlock()

	conversationID, err := d.NewChatHistory()
	if err != nil {
		return "", dependency("Failed to create conversation chat history: " + err.Error())
	}
	bookChatID, err := d.NewChatHistory()
	if err != nil {
		return "", dependency("Failed to create book chat history: " + err.Error())
	}

	detail := domain.UserDetail{
		ID:                        NewID("user_detail", 0),
		ConversationChatHistoryID: conversationID,
		BookChatHistoryID:         bookChatID,
		BookIDs:                   []string{},
	}
	doc, err := docstore.Encode(detail)
	if err != nil {
		return "", fmt.Errorf("encode user detail: %w", err)
	}
	if err := d.details.Insert(doc); err != nil {
		return "", fmt.Errorf("insert user detail: %w", err)
	}
	return detail.ID, nil
}

// GetUserDetail looks a user detail up by primary key.
func (d *Database) GetUserDetail(detailID string) (domain.UserDetail, error) {
	if strings.TrimSpace(detailID) == "" {
		return domain.UserDetail{}, notFound("User detail not found")
	}

	d.detailsMu.RLock()
	defer d.detailsMu.RUnlock()
	return d.getUserDetail(detailID)
}

// AllUserDetails returns every detail record, used by the orphan scanner.
func (d *Database) AllUserDetails() ([]domain.UserDetail, error) {
	d.detailsMu.RLock()
	defer d.detailsMu.RUnlock()

	docs, err := d.details.All()
	if err != nil {
		return nil, fmt.Errorf("list user details: %w", err)
	}
	details := make([]domain.UserDetail, 0, len(docs))
	for _, doc := range docs {
		var detail domain.UserDetail
		if err := docstore.Decode(doc, &detail); err != nil {
			return nil, invalidData("User detail record is not valid: " + err.Error())
		}
		details = append(details, detail)
	}
	return details, nil
}

// AddBookToUserDetail records book ownership on the detail. The book list
// never holds duplicates.
func (d *Database) AddBookToUserDetail(detailID, bookID string) error {
	if strings.TrimSpace(detailID) == "" {
		return notFound("User detail not found")
	}
	if strings.TrimSpace(bookID) == "" {
		return validation("Book ID must not be empty")
	}

	d.detailsMu.Lock()
	defer d.detailsMu.Unlock()

	detail, err := d.getUserDetail(detailID)
	if err != nil {
		return err
	}
	if slices.Contains(detail.BookIDs, bookID) {
		return duplicate("Book already exists in user detail")
	}
	detail.BookIDs = append(detail.BookIDs, bookID)
	return d.updateBookIDs(detail)
}

// DeleteBookFromUserDetail drops the ownership reference and then physically
// deletes the book. The reference is removed first so it is gone even when
// the physical delete fails.
func (d *Database) DeleteBookFromUserDetail(detailID, bookID string) error {
	if strings.TrimSpace(detailID) == "" {
		return notFound("User detail not found")
	}

	d.detailsMu.Lock()
	defer d.detailsMu.Unlock()

	detail, err := d.getUserDetail(detailID)
	if err != nil {
		return err
	}
	idx := slices.Index(detail.BookIDs, bookID)
	if idx < 0 {
		return notFound("Book not found in user detail")
	}
	detail.BookIDs = slices.Delete(detail.BookIDs, idx, idx+1)
	if err := d.updateBookIDs(detail); err != nil {
		return err
	}

	if err := d.DeleteBook(bookID); err != nil {
		d.logger.Warn("failed to delete book after removing reference",
			"user_detail_id", detailID, "book_id", bookID, "err", err)
	}
	return nil
}

// DeleteUserDetailByID removes the detail and cascades into everything it
// owns: its two chat histories and every referenced book. Failures on the
// dependents are logged and skipped; the detail row is removed regardless so
// the parent never becomes un-deletable.
func (d *Database) DeleteUserDetailByID(detailID string) error {
	if strings.TrimSpace(detailID) == "" {
		return notFound("User detail not found")
	}

	d.detailsMu.Lock()
	defer d.detailsMu.Unlock()

	detail, err := d.getUserDetail(detailID)
	if err != nil {
		return err
	}

	if err := d.DeleteChatHistory(detail.ConversationChatHistoryID); err != nil {
		d.logger.Warn("failed to delete conversation chat history during cascade",
			"user_detail_id", detailID, "chat_history_id", detail.ConversationChatHistoryID, "err", err)
	}
	if err := d.DeleteChatHistory(detail.BookChatHistoryID); err != nil {
		d.logger.Warn("failed to delete book chat history during cascade",
			"user_detail_id", detailID, "chat_history_id", detail.BookChatHistoryID, "err", err)
	}
	for _, bookID := range detail.BookIDs {
		if err := d.DeleteBook(bookID); err != nil {
			d.logger.Warn("failed to delete book during cascade",
				"user_detail_id", detailID, "book_id", bookID, "err", err)
		}
	}

	if _, err := d.details.Remove("id", detailID); err != nil {
		return fmt.Errorf("remove user detail: %w", err)
	}
	return nil
}

// getUserDetail fetches and strictly decodes one detail. Callers hold
// detailsMu.
func (d *Database) getUserDetail(detailID string) (domain.UserDetail, error) {
	doc, ok, err := d.details.Get("id", detailID)
	if err != nil {
		return domain.UserDetail{}, fmt.Errorf("get user detail: %w", err)
	}
	if !ok {
		return domain.UserDetail{}, notFound("User detail not found")
	}
	var detail domain.UserDetail
	if err := docstore.Decode(doc, &detail); err != nil {
		return domain.UserDetail{}, invalidData("User detail record is not valid: " + err.Error())
	}
	if err := detail.Validate(); err != nil {
		return domain.UserDetail{}, invalidData("User detail record is not valid: " + err.Error())
	}
	return detail, nil
}

func (d *Database) updateBookIDs(detail domain.UserDetail) error {
	ids := make([]any, 0, len(detail.BookIDs))
	for _, id := range detail.BookIDs {
		ids = append(ids, id)
	}
	if _, err := d.details.Update(docstore.Document{"book_ids": ids}, "id", detail.ID); err != nil {
		return fmt.Errorf("update user detail: %w", err)
	}
	return nil
}
