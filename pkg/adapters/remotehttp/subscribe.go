package remotehttp

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/lingopad/lexsync/pkg/core"
)

type wireChange struct {
	Type     string       `json:"type"`
	Document wireDocument `json:"document"`
}

// Subscribe opens the server's watch stream for a collection path. The
// server replays the current snapshot as "added" changes, then streams
// incremental changes in commit order. The stream reconnects with
// exponential backoff; onError sees each disconnect so the engine can
// reflect a degraded state. Cancelling stops the stream and releases the
// connection.
func (c *Client) Subscribe(ctx context.Context, path string, onChange func(core.DocChange), onError func(error)) (core.CancelFunc, error) {
	if onChange == nil {
		onChange = func(core.DocChange) {}
	}
	if onError == nil {
		onError = func(error) {}
	}

	subCtx, cancel := context.WithCancel(ctx)

	go c.streamLoop(subCtx, path, onChange, onError)

	return func() { cancel() }, nil
}

func (c *Client) streamLoop(ctx context.Context, path string, onChange func(core.DocChange), onError func(error)) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 500 * time.Millisecond
	policy.MaxInterval = 30 * time.Second
	policy.MaxElapsedTime = 0 // Reconnect for as long as the subscription lives.

	for {
		if ctx.Err() != nil {
			return
		}
		err := c.streamOnce(ctx, path, onChange)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			onError(err)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(policy.NextBackOff()):
		}
	}
}

func (c *Client) streamOnce(ctx context.Context, path string, onChange func(core.DocChange)) error {
	wsURL := c.watchURL(path)
	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPClient: c.httpClient,
		HTTPHeader: http.Header{"Authorization": []string{"Bearer " + c.token}},
	})
	if err != nil {
		return core.Transient(err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")

	if c.logger != nil {
		c.logger.Debug("watch stream open", "path", path)
	}

	for {
		var msg wireChange
		if err := wsjson.Read(ctx, conn, &msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return core.Transient(err)
		}
		change := core.DocChange{
			Type:     mapChangeType(msg.Type),
			Document: core.Document{Path: msg.Document.Path, Fields: msg.Document.Fields},
		}
		onChange(change)
	}
}

func (c *Client) watchURL(path string) string {
	ws := c.baseURL
	switch {
	case strings.HasPrefix(ws, "https://"):
		ws = "wss://" + strings.TrimPrefix(ws, "https://")
	case strings.HasPrefix(ws, "http://"):
		ws = "ws://" + strings.TrimPrefix(ws, "http://")
	}
	return ws + "/v1/watch?path=" + url.QueryEscape(path)
}

func mapChangeType(t string) core.ChangeType {
	switch t {
	case "modified":
		return core.ChangeModified
	case "removed":
		return core.ChangeRemoved
	default:
		return core.ChangeAdded
	}
}
