package domain

import "strings"

// Role identifies which side of a conversation a message belongs to.
type Role string

const (
	RoleHuman Role = "human"
	RoleBot   Role = "bot"
)

// Valid reports whether the role is one of the two accepted values.
func (r Role) Valid() bool {
	return r == RoleHuman || r == RoleBot
}

type User struct {
	ID           string `json:"id"`
	Username     string `json:"username"`
	PasswordHash string `json:"password_hash"`
	UserDetailID string `json:"user_detail_id"`
}

// UserDetail carries the per-user ownership record: the two chat histories
// created alongside the user, and the list of owned book IDs.
type UserDetail struct {
	ID                        string   `json:"id"`
	ConversationChatHistoryID string   `json:"conversation_chat_history_id"`
	BookChatHistoryID         string   `json:"book_chat_history_id"`
	BookIDs                   []string `json:"book_ids"`
}

type Concept struct {
	Introduction string `json:"introduction"`
	Explanation  string `json:"explanation"`
	Conclusion   string `json:"conclusion"`
}

type Section struct {
	Title        string    `json:"title"`
	Introduction string    `json:"introduction"`
	Concepts     []Concept `json:"concepts"`
}

type Chapter struct {
	Title        string    `json:"title"`
	Introduction string    `json:"introduction"`
	Sections     []Section `json:"sections"`
}

// Book is a fully embedded document tree; chapters, sections, and concepts
// have no identity of their own and never reference back to the book.
type Book struct {
	ID       string    `json:"id"`
	Title    string    `json:"title"`
	Chapters []Chapter `json:"chapters"`
}

type ChatMessage struct {
	ID      string `json:"id"`
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

type ChatHistory struct {
	ID       string        `json:"id"`
	Messages []ChatMessage `json:"messages"`
}

// Validate checks the stored shape of a user record.
func (u User) Validate() error {
	if strings.TrimSpace(u.ID) == "" {
		return errMissing("user", "id")
	}
	if strings.TrimSpace(u.Username) == "" {
		return errMissing("user", "username")
	}
	if u.PasswordHash == "" {
		return errMissing("user", "password_hash")
	}
	if strings.TrimSpace(u.UserDetailID) == "" {
		return errMissing("user", "user_detail_id")
	}
	return nil
}

// Validate checks the stored shape of a user detail record.
func (d UserDetail) Validate() error {
	if strings.TrimSpace(d.ID) == "" {
		return errMissing("user detail", "id")
	}
	if strings.TrimSpace(d.ConversationChatHistoryID) == "" {
		return errMissing("user detail", "conversation_chat_history_id")
	}
	if strings.TrimSpace(d.BookChatHistoryID) == "" {
		return errMissing("user detail", "book_chat_history_id")
	}
	seen := make(map[string]struct{}, len(d.BookIDs))
	for _, id := range d.BookIDs {
		if _, dup := seen[id]; dup {
			return &FieldError{Entity: "user detail", Field: "book_ids", Reason: "duplicate book id " + id}
		}
		seen[id] = struct{}{}
	}
	return nil
}

// Validate checks the stored shape of a book record.
func (b Book) Validate() error {
	if strings.TrimSpace(b.ID) == "" {
		return errMissing("book", "id")
	}
	if strings.TrimSpace(b.Title) == "" {
		return errMissing("book", "title")
	}
	return nil
}

// Validate checks the stored shape of a chat history record, including the
// role enum on every message.
func (h ChatHistory) Validate() error {
	if strings.TrimSpace(h.ID) == "" {
		return errMissing("chat history", "id")
	}
	for _, msg := range h.Messages {
		if strings.TrimSpace(msg.ID) == "" {
			return errMissing("chat message", "id")
		}
		if !msg.Role.Valid() {
			return &FieldError{Entity: "chat message", Field: "role", Reason: "unknown role " + string(msg.Role)}
		}
	}
	return nil
}

// FieldError describes a record field that does not conform to the schema.
type FieldError struct {
	Entity string
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return e.Entity + ": " + e.Field + ": " + e.Reason
}

func errMissing(entity, field string) error {
	return &FieldError{Entity: entity, Field: field, Reason: "missing or empty"}
}
