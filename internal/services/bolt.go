package services

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/MegaGrindStone/webchat/internal/models"
	bolt "go.etcd.io/bbolt"
)

// BoltDB keeps a local index of the chats this client knows about, most recently used first. The
// backend has no endpoint to list chats as JSON, so the index is how the terminal client remembers
// which chats exist between runs. Message histories are never stored here.
type BoltDB struct {
	db *bolt.DB

	now func() time.Time
}

type indexedChat struct {
	ID       string    `json:"id"`
	Title    string    `json:"title"`
	LastUsed time.Time `json:"lastUsed"`
}

var chatsBucket = []byte("chats")

// NewBoltDB creates a new BoltDB instance with the specified file path. It initializes the database
// with the required bucket and returns an error if the database cannot be opened or initialized. The
// database file is created with 0600 permissions if it doesn't exist.
func NewBoltDB(path string) (BoltDB, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return BoltDB{}, fmt.Errorf("failed to open bolt db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(chatsBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return BoltDB{}, fmt.Errorf("failed to create bucket: %w", err)
	}

	return BoltDB{db: db, now: time.Now}, nil
}

// Chats retrieves all indexed chats, most recently used first.
func (b BoltDB) Chats(context.Context) ([]models.Chat, error) {
	var chats []indexedChat
	err := b.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(chatsBucket).ForEach(func(_, v []byte) error {
			var chat indexedChat
			if err := json.Unmarshal(v, &chat); err != nil {
				return fmt.Errorf("failed to unmarshal chat: %w", err)
			}
			chats = append(chats, chat)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	slices.SortStableFunc(chats, func(a, b indexedChat) int {
		return b.LastUsed.Compare(a.LastUsed)
	})

	res := make([]models.Chat, len(chats))
	for i, c := range chats {
		res[i] = models.Chat{ID: c.ID, Title: c.Title}
	}
	return res, nil
}

// TouchChat stores the chat and marks it as the most recently used one.
func (b BoltDB) TouchChat(_ context.Context, chat models.Chat) error {
	return b.put(indexedChat{
		ID:       chat.ID,
		Title:    chat.Title,
		LastUsed: b.now(),
	})
}

// UpdateChat changes the title of an indexed chat without touching its position. If the chat isn't
// indexed, the operation is silently ignored.
func (b BoltDB) UpdateChat(_ context.Context, chat models.Chat) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(chatsBucket)

		v := bucket.Get([]byte(chat.ID))
		if v == nil {
			return nil
		}

		var stored indexedChat
		if err := json.Unmarshal(v, &stored); err != nil {
			return fmt.Errorf("failed to unmarshal chat: %w", err)
		}
		stored.Title = chat.Title

		v, err := json.Marshal(stored)
		if err != nil {
			return fmt.Errorf("failed to marshal chat: %w", err)
		}
		return bucket.Put([]byte(chat.ID), v)
	})
}

// DeleteChat removes the chat from the index. Deleting a chat that isn't indexed is not an error.
func (b BoltDB) DeleteChat(_ context.Context, chatID string) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(chatsBucket).Delete([]byte(chatID))
	})
}

// Close releases the database file.
func (b BoltDB) Close() error {
	return b.db.Close()
}

func (b BoltDB) put(chat indexedChat) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		v, err := json.Marshal(chat)
		if err != nil {
			return fmt.Errorf("failed to marshal chat: %w", err)
		}
		return tx.Bucket(chatsBucket).Put([]byte(chat.ID), v)
	})
}
