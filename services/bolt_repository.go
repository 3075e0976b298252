package services

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	bolt "go.etcd.io/bbolt"

	"goalchat/models"
)

var (
	bucketConversations = []byte("conversations")
	bucketMessages      = []byte("messages")
	bucketGoals         = []byte("goals")
)

// BoltRepository keeps conversations and goals in a single BoltDB file.
// Conversation headers and goals are JSON values; each conversation's
// messages live in a nested bucket keyed by insertion sequence.
type BoltRepository struct {
	db    *bolt.DB
	clock Clock
	newID IDFunc
}

func OpenBoltRepository(path string, clock Clock, newID IDFunc) (*BoltRepository, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt store %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketConversations, bucketMessages, bucketGoals} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &BoltRepository{db: db, clock: clock, newID: newID}, nil
}

func (r *BoltRepository) Close() error {
	return r.db.Close()
}

var _ Repository = (*BoltRepository)(nil)

func (r *BoltRepository) GetHistory(_ context.Context, userID string) ([]models.Conversation, error) {
	out := make([]models.Conversation, 0)
	err := r.db.View(func(tx *bolt.Tx) error {
		msgs := tx.Bucket(bucketMessages)
		return tx.Bucket(bucketConversations).ForEach(func(k, v []byte) error {
			var c models.Conversation
			if err := json.Unmarshal(v, &c); err != nil {
				return fmt.Errorf("decode conversation %s: %w", k, err)
			}
			if c.UserID != userID {
				return nil
			}
			c.Messages = make([]models.Message, 0)
			if b := msgs.Bucket(k); b != nil {
				if err := b.ForEach(func(_, mv []byte) error {
					var m models.Message
					if err := json.Unmarshal(mv, &m); err != nil {
						return err
					}
					c.Messages = append(c.Messages, m)
					return nil
				}); err != nil {
					return fmt.Errorf("decode messages of %s: %w", k, err)
				}
			}
			sortMessages(c.Messages)
			out = append(out, c)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *BoltRepository) GetContext(_ context.Context, userID string) (*models.Goal, error) {
	var goal *models.Goal
	err := r.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketGoals).Get([]byte(userID))
		if v == nil {
			return nil
		}
		var g models.Goal
		if err := json.Unmarshal(v, &g); err != nil {
			return fmt.Errorf("decode goal of %s: %w", userID, err)
		}
		goal = &g
		return nil
	})
	return goal, err
}

func (r *BoltRepository) CreateConversation(_ context.Context, userID, initialMessage string) (models.Conversation, error) {
	c := newConversation(r.newID(), userID, initialMessage, r.clock)
	err := r.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketConversations)
		if b.Get([]byte(c.ID)) != nil {
			return fmt.Errorf("conversation %s already exists", c.ID)
		}
		return putJSON(b, c.ID, conversationHeader(c))
	})
	if err != nil {
		return models.Conversation{}, err
	}
	return c, nil
}

func (r *BoltRepository) UpdateConversationTitle(_ context.Context, conversationID, title string) error {
	return r.updateConversation(conversationID, func(c *models.Conversation) {
		c.Title = title
		c.UpdatedAt = laterOf(c.UpdatedAt, r.clock.Now())
	}, nil)
}

func (r *BoltRepository) SaveMessage(_ context.Context, msg models.Message) error {
	return r.updateConversation(msg.ConversationID, func(c *models.Conversation) {
		c.UpdatedAt = laterOf(c.UpdatedAt, msg.Timestamp)
	}, func(tx *bolt.Tx) error {
		b, err := tx.Bucket(bucketMessages).CreateBucketIfNotExists([]byte(msg.ConversationID))
		if err != nil {
			return err
		}
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		key := make([]byte, 8)
		binary.BigEndian.PutUint64(key, seq)
		v, err := json.Marshal(msg)
		if err != nil {
			return err
		}
		return b.Put(key, v)
	})
}

func (r *BoltRepository) UpdateGoal(_ context.Context, goal models.Goal) (models.Goal, error) {
	stored := stampGoal(goal, r.clock)
	err := r.db.Update(func(tx *bolt.Tx) error {
		return putJSON(tx.Bucket(bucketGoals), stored.UserID, stored)
	})
	if err != nil {
		return models.Goal{}, err
	}
	return stored, nil
}

func (r *BoltRepository) updateConversation(id string, mutate func(c *models.Conversation), extra func(tx *bolt.Tx) error) error {
	return r.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketConversations)
		v := b.Get([]byte(id))
		if v == nil {
			return fmt.Errorf("conversation %s: %w", id, ErrNotFound)
		}
		var c models.Conversation
		if err := json.Unmarshal(v, &c); err != nil {
			return err
		}
		mutate(&c)
		if err := putJSON(b, id, c); err != nil {
			return err
		}
		if extra != nil {
			return extra(tx)
		}
		return nil
	})
}

// conversationHeader strips messages; they are stored in their own bucket.
func conversationHeader(c models.Conversation) models.Conversation {
	c.Messages = nil
	return c
}

func putJSON(b *bolt.Bucket, key string, v any) error {
	enc, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return b.Put([]byte(key), enc)
}
