// Package app wires the repositories, password hashing and token handling
// into the operations the HTTP layer exposes.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"refbook/internal/auth"
	"refbook/internal/backup"
	"refbook/internal/database"
	"refbook/pkg/domain"
)

// Config holds the dependencies for the core application.
type Config struct {
	Database *database.Database
	Tokens   *auth.TokenIssuer
	Backup   *backup.Runner
	Debug    bool
}

// App is the core application service.
type App struct {
	db     *database.Database
	tokens *auth.TokenIssuer
	backup *backup.Runner
	debug  bool
}

// New constructs the application.
func New(cfg Config) (*App, error) {
	if cfg.Database == nil {
		return nil, errors.New("app: database is required")
	}
	if cfg.Tokens == nil {
		return nil, errors.New("app: token issuer is required")
	}
	return &App{
		db:     cfg.Database,
		tokens: cfg.Tokens,
		backup: cfg.Backup,
		debug:  cfg.Debug,
	}, nil
}

// CreateUser registers a new user together with its detail record and the
// two chat histories the detail owns.
func (a *App) CreateUser(username, password string) (domain.User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return domain.User{}, ErrUsernameAndPasswordRequired
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return domain.User{}, fmt.Errorf("hash password: %w", err)
	}
	userID, err := a.db.NewUser(username, hash)
	if err != nil {
		return domain.User{}, err
	}
	return a.db.GetUserByID(userID)
}

// Login validates credentials and issues an access token.
func (a *App) Login(username, password string) (domain.User, string, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return domain.User{}, "", ErrUsernameAndPasswordRequired
	}
	user, err := a.db.GetUserByUsername(username)
	if err != nil {
		if database.IsNotFound(err) {
			return domain.User{}, "", ErrInvalidCredentials
		}
		return domain.User{}, "", err
	}
	if !auth.CheckPassword(password, user.PasswordHash) {
		return domain.User{}, "", ErrInvalidCredentials
	}
	token, err := a.tokens.NewToken(user.ID)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("issue token: %w", err)
	}
	return user, token, nil
}

// Logout revokes the given access token.
func (a *App) Logout(token string) error {
	return a.tokens.RevokeToken(token)
}

// UserFromToken resolves the authenticated user from an access token.
func (a *App) UserFromToken(token string) (domain.User, bool) {
	userID, err := a.tokens.VerifyToken(token)
	if err != nil {
		return domain.User{}, false
	}
	user, err := a.db.GetUserByID(userID)
	if err != nil {
		return domain.User{}, false
	}
	return user, true
}

// UserDetail returns the detail record owned by the user.
func (a *App) UserDetail(user domain.User) (domain.UserDetail, error) {
	return a.db.GetUserDetail(user.UserDetailID)
}

// DeleteUser cascade-deletes the user together with its detail, chat
// histories and books.
func (a *App) DeleteUser(user domain.User) error {
	return a.db.DeleteUserByID(user.ID)
}

// CreateBook stores a book, including its nested chapter tree.
func (a *App) CreateBook(book domain.Book) (domain.Book, error) {
	bookID, err := a.db.NewBook(book)
	if err != nil {
		return domain.Book{}, err
	}
	return a.db.GetBook(bookID)
}

// Book fetches a book by id.
func (a *App) Book(id string) (domain.Book, error) {
	return a.db.GetBook(id)
}

// DeleteBook removes a book by id without touching user details. Detached
// references are left to the cleanup tool.
func (a *App) DeleteBook(id string) error {
	return a.db.DeleteBook(id)
}

// AttachBook registers an existing book on the user's detail record.
func (a *App) AttachBook(user domain.User, bookID string) error {
	if _, err := a.db.GetBook(bookID); err != nil {
		return err
	}
	return a.db.AddBookToUserDetail(user.UserDetailID, bookID)
}

// DetachBook removes the book reference from the user's detail record and
// then deletes the book itself.
func (a *App) DetachBook(user domain.User, bookID string) error {
	return a.db.DeleteBookFromUserDetail(user.UserDetailID, bookID)
}

// ChatHistory returns one of the user's chat histories.
func (a *App) ChatHistory(user domain.User, historyID string) (domain.ChatHistory, error) {
	if err := a.checkHistoryOwnership(user, historyID); err != nil {
		return domain.ChatHistory{}, err
	}
	return a.db.GetChatHistory(historyID)
}

// AddChatMessage appends a message to one of the user's chat histories.
func (a *App) AddChatMessage(user domain.User, historyID string, role domain.Role, content string) (domain.ChatMessage, error) {
	if err := a.checkHistoryOwnership(user, historyID); err != nil {
		return domain.ChatMessage{}, err
	}
	messageID, err := a.db.NewChatMessage(historyID, role, content)
	if err != nil {
		return domain.ChatMessage{}, err
	}
	return a.db.GetChatMessageByID(historyID, messageID)
}

// ChatMessageByID fetches a single message by its id.
func (a *App) ChatMessageByID(user domain.User, historyID, messageID string) (domain.ChatMessage, error) {
	if err := a.checkHistoryOwnership(user, historyID); err != nil {
		return domain.ChatMessage{}, err
	}
	return a.db.GetChatMessageByID(historyID, messageID)
}

// ChatMessageByIndex fetches a single message by its position.
func (a *App) ChatMessageByIndex(user domain.User, historyID string, index int) (domain.ChatMessage, error) {
	if err := a.checkHistoryOwnership(user, historyID); err != nil {
		return domain.ChatMessage{}, err
	}
	return a.db.GetChatMessageByIndex(historyID, index)
}

// DeleteChatMessage removes a message from one of the user's histories.
func (a *App) DeleteChatMessage(user domain.User, historyID, messageID string) error {
	if err := a.checkHistoryOwnership(user, historyID); err != nil {
		return err
	}
	return a.db.DeleteChatMessage(historyID, messageID)
}

func (a *App) checkHistoryOwnership(user domain.User, historyID string) error {
	detail, err := a.db.GetUserDetail(user.UserDetailID)
	if err != nil {
		return err
	}
	if historyID != detail.ConversationChatHistoryID && historyID != detail.BookChatHistoryID {
		return ErrHistoryNotOwned
	}
	return nil
}

// CleanDatabase truncates every collection. Available in debug mode only.
func (a *App) CleanDatabase() error {
	if !a.debug {
		return ErrDebugOnly
	}
	return a.db.Truncate()
}

// Backup uploads the collection files to object storage and returns the key
// prefix of the new snapshot.
func (a *App) Backup(ctx context.Context) (string, error) {
	if a.backup == nil {
		return "", ErrBackupNotConfigured
	}
	return a.backup.Run(ctx)
}

// Debug reports whether the application runs in debug mode.
func (a *App) Debug() bool {
	return a.debug
}
