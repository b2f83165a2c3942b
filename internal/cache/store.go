// Package cache keeps the client's conversations and messages in a local
// bbolt file so a screen can render before the network answers. Every
// operation fails soft: faults are logged and reads come back empty.
package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"
	"go.uber.org/zap"
)

// Version namespaces the cache layout. Bump it when the stored JSON changes
// shape; buckets of other versions are dropped on open.
const Version = 1

const (
	bucketPrefix     = "chatcache/"
	conversationsKey = "conversations"
	messagesPrefix   = "messages/"
	tokenKey         = "token"
)

var sessionBucket = []byte("session")

type Store struct {
	db     *bolt.DB
	bucket []byte
	logger *zap.Logger
}

func Open(path string, logger *zap.Logger) (*Store, error) {
	return open(path, Version, logger)
}

func open(path string, version int, logger *zap.Logger) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open cache %s: %w", path, err)
	}

	s := &Store{
		db:     db,
		bucket: []byte(fmt.Sprintf("%sv%d", bucketPrefix, version)),
		logger: logger.Named("cache"),
	}
	if err := s.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// init drops stale-version buckets and creates the current ones.
func (s *Store) init() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		var stale [][]byte
		err := tx.ForEach(func(name []byte, _ *bolt.Bucket) error {
			if strings.HasPrefix(string(name), bucketPrefix) && string(name) != string(s.bucket) {
				stale = append(stale, append([]byte(nil), name...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, name := range stale {
			s.logger.Info("dropping stale cache version", zap.ByteString("bucket", name))
			if err := tx.DeleteBucket(name); err != nil {
				return err
			}
		}
		if _, err := tx.CreateBucketIfNotExists(s.bucket); err != nil {
			return err
		}
		_, err = tx.CreateBucketIfNotExists(sessionBucket)
		return err
	})
}

func (s *Store) Close() error {
	return s.db.Close()
}

func messagesKey(conversationID uint) []byte {
	return []byte(messagesPrefix + strconv.FormatUint(uint64(conversationID), 10))
}

// get decodes key into v. It reports false on a miss or a decode fault.
func (s *Store) get(key []byte, v any) bool {
	var raw []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(s.bucket)
		if b == nil {
			return nil
		}
		if data := b.Get(key); data != nil {
			raw = append([]byte(nil), data...)
		}
		return nil
	})
	if err != nil {
		s.logger.Warn("cache read failed", zap.ByteString("key", key), zap.Error(err))
		return false
	}
	if raw == nil {
		return false
	}
	if err := json.Unmarshal(raw, v); err != nil {
		s.logger.Warn("cache entry corrupt", zap.ByteString("key", key), zap.Error(err))
		return false
	}
	return true
}

func (s *Store) put(tx *bolt.Tx, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return tx.Bucket(s.bucket).Put(key, data)
}

// ---------------------------------------------
// Messages
// ---------------------------------------------

func (s *Store) CachedMessages(conversationID uint) []Message {
	var msgs []Message
	if !s.get(messagesKey(conversationID), &msgs) {
		return []Message{}
	}
	for i := range msgs {
		msgs[i].Sender = NormalizeSender(msgs[i].Sender)
	}
	return msgs
}

// SaveMessages merges newMessages into the cached list of the conversation.
func (s *Store) SaveMessages(conversationID uint, newMessages []Message) {
	merged := MergeMessages(s.CachedMessages(conversationID), newMessages)
	err := s.db.Update(func(tx *bolt.Tx) error {
		return s.put(tx, messagesKey(conversationID), merged)
	})
	if err != nil {
		s.logger.Warn("cache write failed", zap.Uint("conversation_id", conversationID), zap.Error(err))
	}
}

// ---------------------------------------------
// Conversations
// ---------------------------------------------

func (s *Store) CachedConversations() []Conversation {
	var convs []Conversation
	if !s.get([]byte(conversationsKey), &convs) {
		return []Conversation{}
	}
	return convs
}

func (s *Store) SaveConversations(newConversations []Conversation) {
	merged := MergeConversations(s.CachedConversations(), newConversations)
	err := s.db.Update(func(tx *bolt.Tx) error {
		return s.put(tx, []byte(conversationsKey), merged)
	})
	if err != nil {
		s.logger.Warn("cache write failed", zap.String("key", conversationsKey), zap.Error(err))
	}
}

// DeleteConversation drops the messages and the drawer entry of one conversation.
func (s *Store) DeleteConversation(conversationID uint) {
	convs := s.CachedConversations()
	kept := convs[:0]
	for _, c := range convs {
		if c.ID != conversationID {
			kept = append(kept, c)
		}
	}

	err := s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(s.bucket).Delete(messagesKey(conversationID)); err != nil {
			return err
		}
		return s.put(tx, []byte(conversationsKey), kept)
	})
	if err != nil {
		s.logger.Warn("cache delete failed", zap.Uint("conversation_id", conversationID), zap.Error(err))
	}
}

// ClearAll drops every cached conversation and message. The session is kept.
func (s *Store) ClearAll() {
	err := s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(s.bucket); err != nil && !errors.Is(err, bolt.ErrBucketNotFound) {
			return err
		}
		_, err := tx.CreateBucket(s.bucket)
		return err
	})
	if err != nil {
		s.logger.Warn("cache clear failed", zap.Error(err))
	}
}

// ---------------------------------------------
// Session
// ---------------------------------------------

func (s *Store) SaveSession(token string) {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(sessionBucket).Put([]byte(tokenKey), []byte(token))
	})
	if err != nil {
		s.logger.Warn("session write failed", zap.Error(err))
	}
}

func (s *Store) Session() string {
	var token string
	err := s.db.View(func(tx *bolt.Tx) error {
		if b := tx.Bucket(sessionBucket); b != nil {
			token = string(b.Get([]byte(tokenKey)))
		}
		return nil
	})
	if err != nil {
		s.logger.Warn("session read failed", zap.Error(err))
		return ""
	}
	return token
}

func (s *Store) ClearSession() {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(sessionBucket).Delete([]byte(tokenKey))
	})
	if err != nil {
		s.logger.Warn("session clear failed", zap.Error(err))
	}
}
