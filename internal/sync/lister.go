package sync

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/mail"
	"strings"
)

// Lister wraps a RemoteClient with the two-phase fetch the engine relies
// on: message ids first (minimal payloads), full bodies second. Dedup
// filtering happens between the phases so bodies are only fetched for
// messages the store does not know yet.
type Lister struct {
	client RemoteClient
}

func NewLister(client RemoteClient) *Lister {
	return &Lister{client: client}
}

// ListThreads returns the account's remote threads, newest first as the
// provider orders them, bounded by limit.
func (l *Lister) ListThreads(ctx context.Context, limit int64) ([]RemoteThread, error) {
	return l.client.ListThreads(ctx, limit)
}

// ListMessageIDs issues one bulk request covering every thread, asking for
// the minimal representation (ids only) to bound payload size. The result
// maps thread external id to its message external ids in provider order.
func (l *Lister) ListMessageIDs(ctx context.Context, threadIDs []string) (map[string][]string, error) {
	if len(threadIDs) == 0 {
		return map[string][]string{}, nil
	}

	uris := make([]string, len(threadIDs))
	for i, id := range threadIDs {
		uris[i] = fmt.Sprintf("/gmail/v1/users/me/threads/%s?format=minimal", id)
	}

	payloads, err := l.client.BulkFetch(ctx, uris)
	if err != nil {
		return nil, err
	}

	out := make(map[string][]string, len(threadIDs))
	for i, raw := range payloads {
		var t threadPayload
		if err := json.Unmarshal(raw, &t); err != nil {
			return nil, fmt.Errorf("decode thread %s: %v: %w", threadIDs[i], err, ErrUpstreamUnavailable)
		}
		ids := make([]string, 0, len(t.Messages))
		for _, m := range t.Messages {
			ids = append(ids, m.ID)
		}
		out[threadIDs[i]] = ids
	}
	return out, nil
}

// FetchMessages bulk-fetches full message bodies. The whole batch succeeds
// or the call fails; partial results are never returned.
func (l *Lister) FetchMessages(ctx context.Context, messageIDs []string) ([]FullMessage, error) {
	if len(messageIDs) == 0 {
		return nil, nil
	}

	uris := make([]string, len(messageIDs))
	for i, id := range messageIDs {
		uris[i] = fmt.Sprintf("/gmail/v1/users/me/messages/%s?format=full", id)
	}

	payloads, err := l.client.BulkFetch(ctx, uris)
	if err != nil {
		return nil, err
	}

	msgs := make([]FullMessage, 0, len(payloads))
	for i, raw := range payloads {
		var p messagePayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("decode message %s: %v: %w", messageIDs[i], err, ErrUpstreamUnavailable)
		}
		msgs = append(msgs, normalizeMessage(p))
	}
	return msgs, nil
}

type threadPayload struct {
	ID       string `json:"id"`
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

type messagePart struct {
	MimeType string `json:"mimeType"`
	Body     struct {
		Data string `json:"data"`
	} `json:"body"`
	Parts []messagePart `json:"parts"`
}

type messagePayload struct {
	ID           string `json:"id"`
	ThreadID     string `json:"threadId"`
	InternalDate string `json:"internalDate"`
	Payload      struct {
		messagePart
		Headers []struct {
			Name  string `json:"name"`
			Value string `json:"value"`
		} `json:"headers"`
	} `json:"payload"`
}

func normalizeMessage(p messagePayload) FullMessage {
	headers := make(map[string]string, len(p.Payload.Headers))
	for _, h := range p.Payload.Headers {
		headers[strings.ToLower(h.Name)] = h.Value
	}

	fromHandle, fromName := splitAddress(headers["from"])

	return FullMessage{
		ExternalID:       p.ID,
		ThreadExternalID: p.ThreadID,
		HeaderMessageID:  headers["message-id"],
		Subject:          headers["subject"],
		FromHandle:       fromHandle,
		FromDisplayName:  fromName,
		InternalDate:     p.InternalDate,
		Body:             decodeBody(p.Payload.messagePart),
	}
}

// splitAddress parses an RFC 5322 From header into address and display
// name, falling back to the raw value when it does not parse.
func splitAddress(from string) (handle, name string) {
	if from == "" {
		return "", ""
	}
	addr, err := mail.ParseAddress(from)
	if err != nil {
		return strings.TrimSpace(from), ""
	}
	return addr.Address, addr.Name
}

// decodeBody walks the MIME tree depth-first for the first text/plain part
// and decodes its web-safe base64 data.
func decodeBody(part messagePart) string {
	if strings.HasPrefix(part.MimeType, "text/plain") && part.Body.Data != "" {
		if b, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(part.Body.Data, "=")); err == nil {
			return string(b)
		}
		return ""
	}
	for _, child := range part.Parts {
		if body := decodeBody(child); body != "" {
			return body
		}
	}
	return ""
}
