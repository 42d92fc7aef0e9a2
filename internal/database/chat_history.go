package database

import (
	"fmt"
	"strings"

	"refbook/pkg/docstore"
	"refbook/pkg/domain"
)

// NewChatHistory creates an empty chat history and returns its ID.
func (d *Database) NewChatHistory() (string, error) {
	d.chatsMu.Lock()
	defer d.chatsMu.Unlock()

	history := domain.ChatHistory{
		ID:       NewID("chat_history", 0),
		Messages: []domain.ChatMessage{},
	}
	doc, err := docstore.Encode(history)
	if err != nil {
		return "", fmt.Errorf("encode chat history: %w", err)
	}
	if err := d.chats.Insert(doc); err != nil {
		return "", fmt.Errorf("insert chat history: %w", err)
	}
	return history.ID, nil
}

// GetChatHistory looks a chat history up by primary key.
func (d *Database) GetChatHistory(historyID string) (domain.ChatHistory, error) {
	if strings.TrimSpace(historyID) == "" {
		return domain.ChatHistory{}, notFound("Chat history not found")
	}

	d.chatsMu.RLock()
	defer d.chatsMu.RUnlock()
	return d.getChatHistory(historyID)
}

// AllChatHistories returns every history record, used by the orphan scanner.
func (d *Database) AllChatHistories() ([]domain.ChatHistory, error) {
	d.chatsMu.RLock()
	defer d.chatsMu.RUnlock()

	docs, err := d.chats.All()
	if err != nil {
		return nil, fmt.Errorf("list chat histories: %w", err)
	}
	histories := make([]domain.ChatHistory, 0, len(docs))
	for _, doc := range docs {
		var history domain.ChatHistory
		if err := docstore.Decode(doc, &history); err != nil {
			return nil, invalidData("Chat history record is not valid: " + err.Error())
		}
		histories = append(histories, history)
	}
	return histories, nil
}

// NewChatMessage appends a message to a history. The role must be exactly
// human or bot; anything else is rejected before the store is touched.
func (d *Database) NewChatMessage(historyID string, role domain.Role, content string) (string, error) {
	if strings.TrimSpace(historyID) == "" {
		return "", notFound("Chat history not found")
	}
	if !role.Valid() {
		return "", validation("Invalid message role: " + string(role))
	}

	d.chatsMu.Lock()
	defer d.chatsMu.Unlock()

	history, err := d.getChatHistory(historyID)
	if err != nil {
		return "", err
	}

	message := domain.ChatMessage{
		ID:      NewID("chat_message", 1),
		Role:    role,
		Content: content,
	}
	history.Messages = append(history.Messages, message)
	if err := d.updateMessages(history); err != nil {
		return "", err
	}
	return message.ID, nil
}

// GetChatMessageByID scans the ordered message list for a message ID.
func (d *Database) GetChatMessageByID(historyID, messageID string) (domain.ChatMessage, error) {
	if strings.TrimSpace(historyID) == "" {
		return domain.ChatMessage{}, notFound("Chat history not found")
	}

	d.chatsMu.RLock()
	defer d.chatsMu.RUnlock()

	history, err := d.getChatHistory(historyID)
	if err != nil {
		return domain.ChatMessage{}, err
	}
	for _, message := range history.Messages {
		if message.ID == messageID {
			return message, nil
		}
	}
	return domain.ChatMessage{}, notFound("Message not found")
}

// GetChatMessageByIndex returns the message at a position in the ordered
// sequence.
func (d *Database) GetChatMessageByIndex(historyID string, index int) (domain.ChatMessage, error) {
	if strings.TrimSpace(historyID) == "" {
		return domain.ChatMessage{}, notFound("Chat history not found")
	}

	d.chatsMu.RLock()
	defer d.chatsMu.RUnlock()

	history, err := d.getChatHistory(historyID)
	if err != nil {
		return domain.ChatMessage{}, err
	}
	if index < 0 || index >= len(history.Messages) {
		return domain.ChatMessage{}, validation("Index out of range")
	}
	return history.Messages[index], nil
}

// DeleteChatMessage removes one message from a history in place. Message IDs
// are never recycled.
func (d *Database) DeleteChatMessage(historyID, messageID string) error {
	if strings.TrimSpace(historyID) == "" {
		return notFound("Chat history not found")
	}

	d.chatsMu.Lock()
	defer d.chatsMu.Unlock()

	history, err := d.getChatHistory(historyID)
	if err != nil {
		return err
	}
	for i, message := range history.Messages {
		if message.ID == messageID {
			history.Messages = append(history.Messages[:i], history.Messages[i+1:]...)
			return d.updateMessages(history)
		}
	}
	return notFound("Message not found")
}

// DeleteChatHistory removes a whole history row.
func (d *Database) DeleteChatHistory(historyID string) error {
	if strings.TrimSpace(historyID) == "" {
		return notFound("Chat history not found")
	}

	d.chatsMu.Lock()
	defer d.chatsMu.Unlock()

	_, ok, err := d.chats.Get("id", historyID)
	if err != nil {
		return fmt.Errorf("get chat history: %w", err)
	}
	if !ok {
		return notFound("Chat history not found")
	}
	if _, err := d.chats.Remove("id", historyID); err != nil {
		return fmt.Errorf("remove chat history: %w", err)
	}
	return nil
}

// getChatHistory fetches and strictly decodes one history. Callers hold
// chatsMu. Multiple rows under one ID mean the collection itself is corrupt.
func (d *Database) getChatHistory(historyID string) (domain.ChatHistory, error) {
	docs, err := d.chats.Search("id", historyID)
	if err != nil {
		return domain.ChatHistory{}, fmt.Errorf("search chat history: %w", err)
	}
	if len(docs) == 0 {
		return domain.ChatHistory{}, notFound("Chat history not found")
	}
	if len(docs) > 1 {
		return domain.ChatHistory{}, invalidData("Multiple chat histories found, please check the database")
	}
	var history domain.ChatHistory
	if err := docstore.Decode(docs[0], &history); err != nil {
		return domain.ChatHistory{}, invalidData("Chat history is not valid: " + err.Error())
	}
	if err := history.Validate(); err != nil {
		return domain.ChatHistory{}, invalidData("Chat history is not valid: " + err.Error())
	}
	return history, nil
}

func (d *Database) updateMessages(history domain.ChatHistory) error {
	doc, err := docstore.Encode(history)
	if err != nil {
		return fmt.Errorf("encode chat history: %w", err)
	}
	if _, err := d.chats.Update(docstore.Document{"messages": doc["messages"]}, "id", history.ID); err != nil {
		return fmt.Errorf("update chat history: %w", err)
	}
	return nil
}
