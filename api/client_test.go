package api

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClientGetConversations(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/conversations", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		fmt.Fprint(w, `[{"id":7,"peer":{"id":9,"name":"bob"},"online":true,"last_message":{"content":"hi","sent_at":100,"sender_id":9},"unread_count":2}]`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok")
	list, err := c.GetConversations(context.Background())
	assert.NoError(t, err)
	assert.Len(t, list, 1)
	assert.EqualValues(t, 7, list[0].ID)
	assert.EqualValues(t, 9, list[0].Peer.ID)
	assert.True(t, list[0].Online)
	assert.EqualValues(t, 2, list[0].UnreadCount)
	assert.Equal(t, "hi", list[0].LastMessage.Content)
}

func TestClientGetMessages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/conversations/7/messages", r.URL.Path)
		fmt.Fprint(w, `[{"id":101,"conversation_id":7,"sender_id":9,"content":"yo","created_at":200,"delivered":true}]`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok")
	list, err := c.GetMessages(context.Background(), 7)
	assert.NoError(t, err)
	assert.Len(t, list, 1)
	assert.EqualValues(t, 101, list[0].ID)
	assert.True(t, list[0].Delivered)
	assert.False(t, list[0].Read)
}

// 401 and 403 both map to ErrUnauthorized, the session-fatal error.
func TestClientUnauthorized(t *testing.T) {
	for _, code := range []int{http.StatusUnauthorized, http.StatusForbidden} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(code)
		}))

		c := NewClient(srv.URL, "expired")
		_, err := c.GetConversations(context.Background())
		assert.ErrorIs(t, err, ErrUnauthorized, "status %d", code)

		srv.Close()
	}
}

// Any other failure is transient: an error, but not ErrUnauthorized.
func TestClientServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok")
	_, err := c.GetConversations(context.Background())
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnauthorized)
}

func TestLogin(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/auth/login", r.URL.Path)
		fmt.Fprint(w, `{"token":"tok","user":{"id":1,"name":"alice","email":"a@example.com"}}`)
	}))
	defer srv.Close()

	resp, err := Login(context.Background(), srv.URL, "a@example.com", "secret")
	assert.NoError(t, err)
	assert.Equal(t, "tok", resp.Token)
	assert.EqualValues(t, 1, resp.User.ID)
}

func TestLoginRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := Login(context.Background(), srv.URL, "a@example.com", "wrong")
	assert.ErrorIs(t, err, ErrUnauthorized)
}
