package sync

import (
	"context"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// rawClient returns fixed payloads regardless of the requested uris.
type rawClient struct {
	payloads [][]byte
	uris     []string
	err      error
}

func (c *rawClient) ListThreads(context.Context, int64) ([]RemoteThread, error) {
	return nil, nil
}

func (c *rawClient) BulkFetch(_ context.Context, uris []string) ([][]byte, error) {
	c.uris = uris
	return c.payloads, c.err
}

func TestListMessageIDsOrder(t *testing.T) {
	client := &rawClient{payloads: [][]byte{
		[]byte(`{"id":"T1","messages":[{"id":"M3"},{"id":"M1"},{"id":"M2"}]}`),
		[]byte(`{"id":"T2","messages":[]}`),
	}}
	lister := NewLister(client)

	ids, err := lister.ListMessageIDs(context.Background(), []string{"T1", "T2"})
	require.NoError(t, err)

	assert.Equal(t, []string{"M3", "M1", "M2"}, ids["T1"], "provider order is preserved")
	assert.Empty(t, ids["T2"])

	require.Len(t, client.uris, 2)
	assert.Equal(t, "/gmail/v1/users/me/threads/T1?format=minimal", client.uris[0])
}

func TestListMessageIDsEmptyInput(t *testing.T) {
	lister := NewLister(&rawClient{})

	ids, err := lister.ListMessageIDs(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestListMessageIDsMalformedPayload(t *testing.T) {
	client := &rawClient{payloads: [][]byte{[]byte(`<html>backend error</html>`)}}
	lister := NewLister(client)

	_, err := lister.ListMessageIDs(context.Background(), []string{"T1"})
	assert.ErrorIs(t, err, ErrUpstreamUnavailable)
}

func TestFetchMessagesNormalization(t *testing.T) {
	body := base64.RawURLEncoding.EncodeToString([]byte("hello there"))
	client := &rawClient{payloads: [][]byte{[]byte(`{
		"id": "M1",
		"threadId": "T1",
		"internalDate": "1700000000000",
		"payload": {
			"mimeType": "text/plain",
			"headers": [
				{"name": "From", "value": "Alice Example <a@x.com>"},
				{"name": "Subject", "value": "hi"},
				{"name": "Message-Id", "value": "<abc@mail.example.com>"}
			],
			"body": {"data": "` + body + `"}
		}
	}`)}}
	lister := NewLister(client)

	msgs, err := lister.FetchMessages(context.Background(), []string{"M1"})
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	m := msgs[0]
	assert.Equal(t, "M1", m.ExternalID)
	assert.Equal(t, "T1", m.ThreadExternalID)
	assert.Equal(t, "<abc@mail.example.com>", m.HeaderMessageID, "header match is case-insensitive")
	assert.Equal(t, "hi", m.Subject)
	assert.Equal(t, "a@x.com", m.FromHandle)
	assert.Equal(t, "Alice Example", m.FromDisplayName)
	assert.Equal(t, "1700000000000", m.InternalDate)
	assert.Equal(t, "hello there", m.Body)

	assert.Equal(t, "/gmail/v1/users/me/messages/M1?format=full", client.uris[0])
}

func TestFetchMessagesNestedMultipartBody(t *testing.T) {
	text := base64.RawURLEncoding.EncodeToString([]byte("plain text wins"))
	html := base64.RawURLEncoding.EncodeToString([]byte("<b>html</b>"))
	client := &rawClient{payloads: [][]byte{[]byte(`{
		"id": "M1",
		"threadId": "T1",
		"internalDate": "1700000000000",
		"payload": {
			"mimeType": "multipart/alternative",
			"headers": [{"name": "From", "value": "a@x.com"}],
			"parts": [
				{"mimeType": "text/html", "body": {"data": "` + html + `"}},
				{"mimeType": "multipart/mixed", "parts": [
					{"mimeType": "text/plain; charset=UTF-8", "body": {"data": "` + text + `"}}
				]}
			]
		}
	}`)}}
	lister := NewLister(client)

	msgs, err := lister.FetchMessages(context.Background(), []string{"M1"})
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "plain text wins", msgs[0].Body)
}

func TestFetchMessagesRawFromFallback(t *testing.T) {
	client := &rawClient{payloads: [][]byte{[]byte(`{
		"id": "M1",
		"threadId": "T1",
		"internalDate": "1700000000000",
		"payload": {"headers": [{"name": "From", "value": "not really an address"}]}
	}`)}}
	lister := NewLister(client)

	msgs, err := lister.FetchMessages(context.Background(), []string{"M1"})
	require.NoError(t, err)
	assert.Equal(t, "not really an address", msgs[0].FromHandle)
	assert.Empty(t, msgs[0].FromDisplayName)
}

func TestFetchMessagesEmptyInput(t *testing.T) {
	lister := NewLister(&rawClient{})

	msgs, err := lister.FetchMessages(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}
