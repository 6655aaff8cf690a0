package gmail

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"
	"strings"

	gmailapi "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/loftcrm/mailsync/internal/auth"
	"github.com/loftcrm/mailsync/internal/sync"
)

const (
	defaultBatchURL = "https://gmail.googleapis.com/batch/gmail/v1"

	// Gmail caps batch requests at 100 inner calls.
	batchChunkSize = 100
)

// Client implements sync.RemoteClient over the Gmail API: paged thread
// listing via the generated service, bulk resource fetch via the
// multipart batch endpoint (one round trip for up to 100 resources).
type Client struct {
	svc      *gmailapi.Service
	http     *http.Client
	batchURL string
}

// NewClient builds an authenticated client for one connected account.
func NewClient(ctx context.Context, app auth.GoogleApp, tok auth.Token) (*Client, error) {
	httpClient := app.HTTPClient(ctx, tok)

	svc, err := gmailapi.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("create gmail service: %w", err)
	}

	return &Client{svc: svc, http: httpClient, batchURL: defaultBatchURL}, nil
}

// Factory adapts NewClient to the engine's client factory signature.
func Factory(app auth.GoogleApp) sync.ClientFactory {
	return func(ctx context.Context, acct sync.Account) (sync.RemoteClient, error) {
		return NewClient(ctx, app, auth.Token{
			AccessToken:  acct.AccessToken,
			RefreshToken: acct.RefreshToken,
		})
	}
}

var errEnoughThreads = errors.New("thread cap reached")

// ListThreads lists the account's threads up to maxResults.
func (c *Client) ListThreads(ctx context.Context, maxResults int64) ([]sync.RemoteThread, error) {
	pageSize := maxResults
	if pageSize > 100 {
		pageSize = 100
	}

	var threads []sync.RemoteThread
	call := c.svc.Users.Threads.List("me").MaxResults(pageSize)

	err := call.Pages(ctx, func(page *gmailapi.ListThreadsResponse) error {
		for _, t := range page.Threads {
			threads = append(threads, sync.RemoteThread{
				ExternalID: t.Id,
				Snippet:    t.Snippet,
			})
			if int64(len(threads)) >= maxResults {
				return errEnoughThreads
			}
		}
		return nil
	})
	if err != nil && !errors.Is(err, errEnoughThreads) {
		return nil, fmt.Errorf("list threads: %v: %w", err, sync.ErrUpstreamUnavailable)
	}

	return threads, nil
}

// BulkFetch retrieves many resources through the batch endpoint, chunked
// to the provider's per-batch cap. Payloads come back in request order.
// Any inner failure fails the whole call; partial results are never
// returned.
func (c *Client) BulkFetch(ctx context.Context, uris []string) ([][]byte, error) {
	payloads := make([][]byte, 0, len(uris))

	for start := 0; start < len(uris); start += batchChunkSize {
		end := start + batchChunkSize
		if end > len(uris) {
			end = len(uris)
		}

		chunk, err := c.fetchBatch(ctx, uris[start:end])
		if err != nil {
			return nil, err
		}
		payloads = append(payloads, chunk...)
	}

	return payloads, nil
}

func (c *Client) fetchBatch(ctx context.Context, uris []string) ([][]byte, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	for i, uri := range uris {
		header := textproto.MIMEHeader{}
		header.Set("Content-Type", "application/http")
		header.Set("Content-ID", fmt.Sprintf("<item-%d>", i))

		part, err := mw.CreatePart(header)
		if err != nil {
			return nil, fmt.Errorf("build batch part: %w", err)
		}
		fmt.Fprintf(part, "GET %s\r\n\r\n", uri)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("finalize batch body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.batchURL, &body)
	if err != nil {
		return nil, fmt.Errorf("build batch request: %w", err)
	}
	req.Header.Set("Content-Type", "multipart/mixed; boundary="+mw.Boundary())

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("batch request: %v: %w", err, sync.ErrUpstreamUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("batch status %d: %s: %w", resp.StatusCode, raw, sync.ErrUpstreamUnavailable)
	}

	return parseBatchResponse(resp, len(uris))
}

// parseBatchResponse splits the multipart/mixed reply and reassembles the
// inner payloads in request order using each part's Content-ID.
func parseBatchResponse(resp *http.Response, count int) ([][]byte, error) {
	mediaType, params, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil || !strings.HasPrefix(mediaType, "multipart/") {
		return nil, fmt.Errorf("unexpected batch content type %q: %w", resp.Header.Get("Content-Type"), sync.ErrUpstreamUnavailable)
	}

	payloads := make([][]byte, count)
	reader := multipart.NewReader(resp.Body, params["boundary"])
	next := 0

	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read batch part: %v: %w", err, sync.ErrUpstreamUnavailable)
		}

		idx := partIndex(part.Header.Get("Content-ID"), next)
		next = idx + 1

		inner, err := http.ReadResponse(bufio.NewReader(part), nil)
		if err != nil {
			return nil, fmt.Errorf("read inner response: %v: %w", err, sync.ErrUpstreamUnavailable)
		}

		payload, err := io.ReadAll(inner.Body)
		inner.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("read inner body: %v: %w", err, sync.ErrUpstreamUnavailable)
		}

		if inner.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("inner status %d: %s: %w", inner.StatusCode, payload, sync.ErrUpstreamUnavailable)
		}
		if idx < 0 || idx >= count {
			return nil, fmt.Errorf("batch part index %d out of range: %w", idx, sync.ErrUpstreamUnavailable)
		}
		payloads[idx] = payload
	}

	for i, p := range payloads {
		if p == nil {
			return nil, fmt.Errorf("missing batch response for item %d: %w", i, sync.ErrUpstreamUnavailable)
		}
	}
	return payloads, nil
}

// partIndex extracts N from "<response-item-N>", falling back to the
// sequential position when the header is absent or malformed.
func partIndex(contentID string, fallback int) int {
	trimmed := strings.Trim(contentID, "<>")
	if i := strings.LastIndex(trimmed, "-"); i >= 0 {
		if n, err := strconv.Atoi(trimmed[i+1:]); err == nil {
			return n
		}
	}
	return fallback
}
