// Package factory provides a small generic registry used to instantiate
// modules from configuration. A module is named by a type string and carries
// a map of raw settings that its factory decodes into a typed struct.
//
// Example usage:
//
//	reg := factory.NewRegistry[storage.Store]()
//	reg.Register("sqlite", func(conf map[string]any) (storage.Store, error) {
//	    var c struct{ Path string `json:"path"` }
//	    if err := factory.Decode(conf, &c); err != nil {
//	        return nil, err
//	    }
//	    return NewSQLiteStore(c.Path)
//	})
//	s, err := reg.Create(factory.ModuleConfig{Type: "sqlite", Conf: map[string]any{"path": "state.db"}})
package factory
