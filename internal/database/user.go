package database

import (
	"fmt"
	"strings"

	"refbook/pkg/docstore"
	"refbook/pkg/domain"
)

// NewUser creates a user together with its user detail (and the detail's two
// chat histories). The detail is created first; when that fails the user is
// not persisted at all.
func (d *Database) NewUser(username, passwordHash string) (string, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return "", validation("Username must not be empty")
	}
	if passwordHash == "" {
		return "", validation("Password hash must not be empty")
	}

	d.usersMu.Lock()
	defer d.usersMu.Unlock()

	_, exists, err := d.users.Get("username", username)
	if err != nil {
		return "", fmt.Errorf("check username: %w", err)
	}
	if exists {
		return "", duplicate("User already exists")
	}

	detailID, err := d.NewUserDetail()
	if err != nil {
		return "", dependency("Failed to create user detail: " + err.Error())
	}

	user := domain.User{
		ID:           NewID("user", 1),
		Username:     username,
		PasswordHash: passwordHash,
		UserDetailID: detailID,
	}
	doc, err := docstore.Encode(user)
	if err != nil {
		return "", fmt.Errorf("encode user: %w", err)
	}
	if err := d.users.Insert(doc); err != nil {
		return "", fmt.Errorf("insert user: %w", err)
	}
	return user.ID, nil
}

// GetUserByID looks a user up by primary key.
func (d *Database) GetUserByID(userID string) (domain.User, error) {
	if strings.TrimSpace(userID) == "" {
		return domain.User{}, notFound("User not found")
	}

	d.usersMu.RLock()
	defer d.usersMu.RUnlock()
	return d.getUserBy("id", userID)
}

// GetUserByUsername looks a user up by its unique username.
func (d *Database) GetUserByUsername(username string) (domain.User, error) {
	if strings.TrimSpace(username) == "" {
		return domain.User{}, notFound("User not found")
	}

	d.usersMu.RLock()
	defer d.usersMu.RUnlock()
	return d.getUserBy("username", username)
}

// AllUsers returns every user record, used by admin tooling.
func (d *Database) AllUsers() ([]domain.User, error) {
	d.usersMu.RLock()
	defer d.usersMu.RUnlock()

	docs, err := d.users.All()
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	users := make([]domain.User, 0, len(docs))
	for _, doc := range docs {
		var user domain.User
		if err := docstore.Decode(doc, &user); err != nil {
			return nil, invalidData("User record is not valid: " + err.Error())
		}
		users = append(users, user)
	}
	return users, nil
}

// DeleteUserByID deletes a user after cascading into its user detail. A hard
// failure deleting the detail aborts the whole operation and leaves the user
// row in place.
func (d *Database) DeleteUserByID(userID string) error {
	if strings.TrimSpace(userID) == "" {
		return notFound("User not found")
	}

	d.usersMu.Lock()
	defer d.usersMu.Unlock()

	user, err := d.getUserBy("id", userID)
	if err != nil {
		return err
	}

	if err := d.DeleteUserDetailByID(user.UserDetailID); err != nil {
		return dependency("Failed to delete user detail: " + err.Error())
	}

	if _, err := d.users.Remove("id", userID); err != nil {
		return fmt.Errorf("remove user: %w", err)
	}
	return nil
}

// getUserBy fetches and strictly decodes one user. Callers hold usersMu.
func (d *Database) getUserBy(field, value string) (domain.User, error) {
	doc, ok, err := d.users.Get(field, value)
	if err != nil {
		return domain.User{}, fmt.Errorf("get user: %w", err)
	}
	if !ok {
		return domain.User{}, notFound("User not found")
	}
	var user domain.User
	if err := docstore.Decode(doc, &user); err != nil {
		return domain.User{}, invalidData("User record is not valid: " + err.Error())
	}
	if err := user.Validate(); err != nil {
		return domain.User{}, invalidData("User record is not valid: " + err.Error())
	}
	return user, nil
}
