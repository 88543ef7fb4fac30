package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/loom/message"
)

func TestMemoryThreadStoreSaveGet(t *testing.T) {
	s := NewMemoryThreadStore()
	thread := message.NewThread()
	thread.Platform = map[string]string{"slack_channel": "C123"}
	require.NoError(t, thread.Add(message.Message{Role: message.RoleUser, Content: "hi"}))

	require.NoError(t, s.Save(thread))

	got, err := s.Get(thread.ID)
	require.NoError(t, err)
	assert.Equal(t, thread.ID, got.ID)
	assert.Equal(t, "hi", got.Messages()[0].Content)
}

func TestMemoryThreadStoreGetMissing(t *testing.T) {
	s := NewMemoryThreadStore()
	_, err := s.Get("does-not-exist")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryThreadStoreFindByPlatform(t *testing.T) {
	s := NewMemoryThreadStore()
	a := message.NewThread()
	a.Platform = map[string]string{"slack_channel": "C123"}
	require.NoError(t, s.Save(a))

	b := message.NewThread()
	b.Platform = map[string]string{"slack_channel": "C999"}
	require.NoError(t, s.Save(b))

	found, err := s.FindByPlatform("slack_channel", "C123")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, a.ID, found[0].ID)
}

func TestMemoryThreadStoreGetByMessageID(t *testing.T) {
	s := NewMemoryThreadStore()
	thread := message.NewThread()
	require.NoError(t, thread.Add(message.Message{Role: message.RoleUser, Content: "hi"}))
	require.NoError(t, s.Save(thread))

	msgID := thread.Messages()[0].ID
	got, err := s.GetByMessageID(msgID)
	require.NoError(t, err)
	assert.Equal(t, thread.ID, got.ID)
}

func TestMemoryFileStoreRoundTrip(t *testing.T) {
	fs := NewMemoryFileStore()
	locator, err := fs.Save("doc.pdf", []byte("hello"))
	require.NoError(t, err)

	data, err := fs.Get(locator)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), data)

	require.NoError(t, fs.Delete(locator))
	_, err = fs.Get(locator)
	assert.Error(t, err)
}
