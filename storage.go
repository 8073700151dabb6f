package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// EnsureDataDir ensures the data directory exists.
// Creates the directory with 0755 permissions if it doesn't exist.
func EnsureDataDir() error {
	return os.MkdirAll(DataDir, 0755)
}

// GetConversationPath returns the file path for a conversation.
// Joins the data directory with the conversation ID and .json extension.
func GetConversationPath(conversationID string) string {
	return filepath.Join(DataDir, conversationID+".json")
}

// CreateConversation creates a new conversation with the given ID.
// Initializes an empty conversation with default title and saves it to disk.
// Returns the created conversation or an error if creation fails.
func CreateConversation(conversationID string) (*Conversation, error) {
	if err := EnsureDataDir(); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	conversation := &Conversation{
		ID:        conversationID,
		CreatedAt: time.Now().UTC(),
		Title:     "New Conversation",
		Messages:  []Message{},
	}

	if err := SaveConversation(conversation); err != nil {
		return nil, err
	}

	return conversation, nil
}

// GetConversation loads a conversation from storage by ID.
// Returns nil without error if the conversation doesn't exist.
// Returns an error only if file reading or JSON parsing fails.
func GetConversation(conversationID string) (*Conversation, error) {
	path := GetConversationPath(conversationID)

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, nil // Not found, return nil without error
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read conversation file: %w", err)
	}

	var conversation Conversation
	if err := json.Unmarshal(data, &conversation); err != nil {
		return nil, fmt.Errorf("failed to parse conversation JSON: %w", err)
	}

	return &conversation, nil
}

// SaveConversation saves a conversation to storage.
// Writes the conversation as formatted JSON to disk.
// Returns an error if directory creation, marshaling, or writing fails.
func SaveConversation(conversation *Conversation) error {
	if err := EnsureDataDir(); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	data, err := json.MarshalIndent(conversation, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal conversation: %w", err)
	}

	path := GetConversationPath(conversation.ID)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write conversation file: %w", err)
	}

	return nil
}

// ListConversations lists all conversations with metadata only.
// Returns a slice of conversation metadata sorted by creation time (newest first).
// Silently skips invalid or unreadable files. Returns empty slice if no conversations exist.
func ListConversations() ([]ConversationMetadata, error) {
	if err := EnsureDataDir(); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	entries, err := os.ReadDir(DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read data directory: %w", err)
	}

	// Initialize with empty slice to avoid null in JSON
	conversations := make([]ConversationMetadata, 0)
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}

		path := filepath.Join(DataDir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			continue // Skip files we can't read
		}

		var conv Conversation
		if err := json.Unmarshal(data, &conv); err != nil {
			continue // Skip invalid JSON
		}

		conversations = append(conversations, ConversationMetadata{
			ID:           conv.ID,
			CreatedAt:    conv.CreatedAt,
			Title:        conv.Title,
			MessageCount: len(conv.Messages),
		})
	}

	sort.Slice(conversations, func(i, j int) bool {
		return conversations[i].CreatedAt.After(conversations[j].CreatedAt)
	})

	return conversations, nil
}

// AddUserMessage adds a user message to a conversation.
// Appends the message to the conversation's message history and saves to disk.
// Returns an error if the conversation doesn't exist or saving fails.
func AddUserMessage(conversationID string, content string) error {
	conversation, err := GetConversation(conversationID)
	if err != nil {
		return err
	}
	if conversation == nil {
		return fmt.Errorf("conversation %s not found", conversationID)
	}

	conversation.Messages = append(conversation.Messages, Message{
		Role:    "user",
		Content: content,
	})

	return SaveConversation(conversation)
}

// AddAssistantMessage stores a deliberation's outcome as a single assistant
// message. Stage 2 and Stage 3 are omitted for shorter execution modes. The
// anonymization map and aggregate rankings are deliberately not persisted;
// they are reconstructible only within a live deliberation.
func AddAssistantMessage(conversationID string, result *DeliberationResult) error {
	conversation, err := GetConversation(conversationID)
	if err != nil {
		return err
	}
	if conversation == nil {
		return fmt.Errorf("conversation %s not found", conversationID)
	}

	conversation.Messages = append(conversation.Messages, Message{
		Role:   "assistant",
		Stage1: result.Stage1,
		Stage2: result.Stage2,
		Stage3: result.Stage3,
	})

	return SaveConversation(conversation)
}

// UpdateConversationTitle updates the title of a conversation.
// Loads the conversation, updates its title field, and saves back to disk.
// Returns an error if the conversation doesn't exist or saving fails.
func UpdateConversationTitle(conversationID string, title string) error {
	conversation, err := GetConversation(conversationID)
	if err != nil {
		return err
	}
	if conversation == nil {
		return fmt.Errorf("conversation %s not found", conversationID)
	}

	conversation.Title = title

	return SaveConversation(conversation)
}
