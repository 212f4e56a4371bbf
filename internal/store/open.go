package store

import (
	"fmt"

	"github.com/zulandar/quickvocab/internal/config"
	"github.com/zulandar/quickvocab/internal/db"
)

// Open builds the Store described by cfg.
func Open(cfg config.StoreConfig) (*Store, error) {
	backend, err := OpenBackend(cfg)
	if err != nil {
		return nil, err
	}
	s, err := New(Opts{
		Backend:     backend,
		Primary:     Collection{DatabaseID: cfg.DatabaseID, CollectionID: cfg.CollectionID},
		History:     Collection{DatabaseID: cfg.HistoryDatabase, CollectionID: cfg.HistoryCollection},
		Mode:        cfg.Mode,
		OnDuplicate: cfg.OnDuplicate,
		ListLimit:   cfg.ListLimit,
	})
	if err != nil {
		backend.Close()
		return nil, err
	}
	return s, nil
}

// OpenBackend opens the Backend for cfg.Driver.
func OpenBackend(cfg config.StoreConfig) (Backend, error) {
	switch cfg.Driver {
	case config.DriverSQLite, config.DriverMySQL:
		gormDB, err := db.Connect(cfg)
		if err != nil {
			return nil, err
		}
		b, err := NewSQLBackend(gormDB)
		if err != nil {
			db.Close(gormDB)
			return nil, err
		}
		return b, nil
	case config.DriverBolt:
		return OpenBolt(cfg.Path)
	case config.DriverAppwrite:
		return NewAppwrite(AppwriteOpts{
			Endpoint:  cfg.Endpoint,
			ProjectID: cfg.ProjectID,
			APIKey:    cfg.APIKey,
		})
	case config.DriverMemory:
		return NewMemoryBackend(), nil
	default:
		return nil, fmt.Errorf("store: unknown driver %q", cfg.Driver)
	}
}
