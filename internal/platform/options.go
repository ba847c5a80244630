package platform

import (
	"log/slog"
	"net/http"

	"github.com/lingopad/lexsync/pkg/core"
	"github.com/lingopad/lexsync/pkg/engine"
)

// options holds the internal configuration for the sync service.
type options struct {
	local    core.LocalStore
	remote   core.RemoteStore
	identity core.Identity
	logger   *slog.Logger
	adapter  string
	config   map[string]interface{}
	policy   engine.Policy
}

// Option defines a functional option for configuring the service.
type Option func(*options)

// defaultOptions returns the default configuration.
func defaultOptions() *options {
	return &options{
		adapter: "fs",
		config:  make(map[string]interface{}),
	}
}

// WithLogger sets the logger for the service.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithLocalStore injects a custom local store adapter (e.g. mock, sqlite).
// If provided, the adapter selection is skipped.
func WithLocalStore(store core.LocalStore) Option {
	return func(o *options) {
		o.local = store
	}
}

// WithAdapter selects the local storage adapter by name ("fs" or "sqlite").
// Defaults to "fs".
func WithAdapter(name string) Option {
	return func(o *options) {
		o.adapter = name
	}
}

// WithRemoteStore injects a custom remote store adapter.
func WithRemoteStore(store core.RemoteStore) Option {
	return func(o *options) {
		o.remote = store
	}
}

// WithRemote configures the built-in HTTP remote adapter. An empty baseURL
// leaves the service local-only.
func WithRemote(baseURL, token string) Option {
	return func(o *options) {
		o.config["remote_url"] = baseURL
		o.config["remote_token"] = token
	}
}

// WithHTTPClient overrides the HTTP client used by the remote adapter.
func WithHTTPClient(client *http.Client) Option {
	return func(o *options) {
		o.config["http_client"] = client
	}
}

// WithIdentity injects the identity provider supplying the acting user and
// session refresh.
func WithIdentity(identity core.Identity) Option {
	return func(o *options) {
		o.identity = identity
	}
}

// WithUser configures a static identity: a fixed user id with an always
// valid session. Useful for tooling and tests.
func WithUser(userID string) Option {
	return func(o *options) {
		o.config["user_id"] = userID
	}
}

// WithEventBuffer sets the size of the broadcast buffer per subscriber.
// Zero means default (100).
func WithEventBuffer(size int) Option {
	return func(o *options) {
		o.config["event_buffer"] = size
	}
}

// WithSpoolDir enables cross-process change propagation through a shared
// spool directory. Every process pointed at the same directory sees the
// others' record events.
func WithSpoolDir(dir string) Option {
	return func(o *options) {
		o.config["spool_dir"] = dir
	}
}

// WithPolicy overrides the sync policy (batch size, retry backoff, tick
// interval). Zero fields keep their defaults.
func WithPolicy(policy engine.Policy) Option {
	return func(o *options) {
		o.policy = policy
	}
}
