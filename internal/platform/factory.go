package platform

import (
	"context"
	"fmt"
	"net/http"

	"github.com/lingopad/lexsync/pkg/adapters/localfs"
	"github.com/lingopad/lexsync/pkg/adapters/remotehttp"
	"github.com/lingopad/lexsync/pkg/adapters/sqlite"
	"github.com/lingopad/lexsync/pkg/broadcast"
	"github.com/lingopad/lexsync/pkg/core"
	"github.com/lingopad/lexsync/pkg/engine"
)

// New assembles a sync engine from the configured adapters. The uri is
// adapter-specific: a directory for "fs", a database file for "sqlite".
func New(ctx context.Context, uri string, opts ...Option) (*engine.Engine, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	local, err := initLocal(uri, o)
	if err != nil {
		return nil, err
	}

	remote, err := initRemote(o)
	if err != nil {
		return nil, err
	}

	identity := o.identity
	if identity == nil {
		if userID, _ := o.config["user_id"].(string); userID != "" {
			identity = staticIdentity(userID)
		}
	}

	buffer, _ := o.config["event_buffer"].(int)
	broker := broadcast.NewBroker(buffer, o.logger)

	var spool *broadcast.Spool
	if dir, _ := o.config["spool_dir"].(string); dir != "" {
		spool, err = broadcast.NewSpool(broadcast.SpoolConfig{
			Dir:    dir,
			Broker: broker,
			Logger: o.logger,
		})
		if err != nil {
			return nil, fmt.Errorf("init spool: %w", err)
		}
	}

	return engine.New(ctx, engine.Config{
		Local:    local,
		Remote:   remote,
		Identity: identity,
		Broker:   broker,
		Spool:    spool,
		Logger:   o.logger,
		Policy:   o.policy,
	})
}

func initLocal(uri string, o *options) (core.LocalStore, error) {
	if o.local != nil {
		return o.local, nil
	}
	switch o.adapter {
	case "fs":
		return localfs.New(localfs.Config{Root: uri, Logger: o.logger})
	case "sqlite":
		return sqlite.Open(uri)
	default:
		return nil, fmt.Errorf("unknown adapter: %s", o.adapter)
	}
}

func initRemote(o *options) (core.RemoteStore, error) {
	if o.remote != nil {
		return o.remote, nil
	}
	baseURL, _ := o.config["remote_url"].(string)
	if baseURL == "" {
		return nil, nil
	}
	token, _ := o.config["remote_token"].(string)
	client, _ := o.config["http_client"].(*http.Client)
	return remotehttp.New(remotehttp.Options{
		BaseURL:    baseURL,
		Token:      token,
		HTTPClient: client,
		Logger:     o.logger,
	})
}

// staticIdentity is a fixed user with a permanently valid session.
type staticIdentity string

func (s staticIdentity) CurrentUserID() string { return string(s) }

func (s staticIdentity) EnsureValidSession(ctx context.Context) (bool, error) {
	return true, nil
}

var _ core.Identity = staticIdentity("")
