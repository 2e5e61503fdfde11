package storage

import (
	"fmt"

	"github.com/kilianp07/smartshift/core/factory"
	core "github.com/kilianp07/smartshift/core/storage"
)

// DefaultSQLitePath is used when the sqlite backend has no path.
const DefaultSQLitePath = "smartshift.db"

// init registers the persistent backends.
func init() {
	_ = core.RegisterStore("sqlite", func(conf map[string]any) (core.Store, error) {
		var c struct {
			Path string `json:"path"`
		}
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		if c.Path == "" {
			c.Path = DefaultSQLitePath
		}
		return NewSQLiteStore(c.Path)
	})

	_ = core.RegisterStore("redis", func(conf map[string]any) (core.Store, error) {
		var c RedisConfig
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		client, err := NewRedisClient(c)
		if err != nil {
			return nil, fmt.Errorf("connect %s: %w", c.Addr, err)
		}
		return NewRedisStore(client, c.Prefix, c.TTL), nil
	})
}
