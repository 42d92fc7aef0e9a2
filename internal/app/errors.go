package app

import "errors"

var (
	// ErrInvalidCredentials is returned when the supplied credentials do not
	// match. The message is safe to show to end users and does not reveal
	// whether the account exists.
	ErrInvalidCredentials = errors.New("Incorrect username or password")

	ErrUsernameAndPasswordRequired = errors.New("username and password required")

	// ErrHistoryNotOwned is returned when a chat history id does not belong
	// to the authenticated user.
	ErrHistoryNotOwned = errors.New("Chat history does not belong to the current user")

	ErrDebugOnly           = errors.New("clean_db is only available in debug mode")
	ErrBackupNotConfigured = errors.New("backup storage is not configured")
)
