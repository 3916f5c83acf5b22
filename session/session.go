// Package session persists the auth token and the current user's identity
// between runs. The reconciler reads it to filter self-originated events;
// nothing in the merge path ever writes it.
package session

import (
	"encoding/json"

	"github.com/golang/glog"
	"go.etcd.io/bbolt"
)

var (
	bucketName = []byte("session")
	currentKey = []byte("current")
)

// Session is the persisted login state.
type Session struct {
	Token    string `json:"token,omitempty"`
	UserID   int32  `json:"user_id,omitempty"`
	UserName string `json:"user_name,omitempty"`
	Email    string `json:"email,omitempty"`
}

// Store is a bbolt-backed session store with a single bucket.
type Store struct {
	db *bbolt.DB
}

// Open opens (creating if needed) the session database at path.
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, err
	}
	if err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	}); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Save persists the session.
func (s *Store) Save(sess *Session) error {
	value, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketName).Put(currentKey, value)
	})
}

// Load returns the stored session, or nil when none exists.
func (s *Store) Load() (*Session, error) {
	var sess *Session
	err := s.db.View(func(tx *bbolt.Tx) error {
		value := tx.Bucket(bucketName).Get(currentKey)
		if value == nil {
			return nil
		}
		sess = &Session{}
		return json.Unmarshal(value, sess)
	})
	if err != nil {
		return nil, err
	}
	return sess, nil
}

// Clear drops the stored session. Called on forced logout.
func (s *Store) Clear() error {
	glog.Infof("Clear(): dropping stored session")
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketName).Delete(currentKey)
	})
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
