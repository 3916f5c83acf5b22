package session

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSessionRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.db")

	s, err := Open(path)
	assert.NoError(t, err)
	defer s.Close()

	// Fresh store holds nothing.
	got, err := s.Load()
	assert.NoError(t, err)
	assert.Nil(t, got)

	sess := &Session{Token: "tok", UserID: 1, UserName: "alice", Email: "a@example.com"}
	assert.NoError(t, s.Save(sess))

	got, err = s.Load()
	assert.NoError(t, err)
	assert.EqualValues(t, sess, got)

	assert.NoError(t, s.Clear())
	got, err = s.Load()
	assert.NoError(t, err)
	assert.Nil(t, got)
}

func TestSessionSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.db")

	s, err := Open(path)
	assert.NoError(t, err)
	assert.NoError(t, s.Save(&Session{Token: "tok", UserID: 1}))
	assert.NoError(t, s.Close())

	s, err = Open(path)
	assert.NoError(t, err)
	defer s.Close()

	got, err := s.Load()
	assert.NoError(t, err)
	assert.Equal(t, "tok", got.Token)
	assert.EqualValues(t, 1, got.UserID)
}
