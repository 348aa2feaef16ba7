// Package state persists local client settings in a bbolt database.
package state

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

const (
	// stateDirPerm is the permission mode for the state directory (~/.netchat/).
	stateDirPerm = fs.FileMode(0o700)

	// stateFilePerm is the permission mode for the state database file.
	stateFilePerm = fs.FileMode(0o600)

	// stateOpenTimeout is the maximum time to wait for the bolt database lock.
	stateOpenTimeout = 5 * time.Second
)

var (
	appBucket    = []byte("app")
	nightModeKey = []byte("night_mode")
)

// Settings wraps a bbolt database holding client settings. It is read
// once at startup and written on toggle.
type Settings struct {
	db *bolt.DB
}

// LoadAt opens a settings database at the given path, creating it if it
// does not exist. The app bucket is created on open.
func LoadAt(path string) (*Settings, error) {
	if err := os.MkdirAll(filepath.Dir(path), stateDirPerm); err != nil {
		return nil, fmt.Errorf("creating state directory: %w", err)
	}

	db, err := bolt.Open(path, stateFilePerm, &bolt.Options{Timeout: stateOpenTimeout})
	if err != nil {
		return nil, fmt.Errorf("opening state db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(appBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing state db: %w", err)
	}

	return &Settings{db: db}, nil
}

// Close closes the database.
func (s *Settings) Close() error {
	return s.db.Close()
}

// NightMode reports whether the dark theme is selected. Unset means off.
func (s *Settings) NightMode() (bool, error) {
	var on bool

	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(appBucket).Get(nightModeKey)
		if v == nil {
			return nil
		}

		if len(v) != 1 || (v[0] != '0' && v[0] != '1') {
			return fmt.Errorf("corrupt night_mode value %q", v)
		}

		on = v[0] == '1'

		return nil
	})
	if err != nil {
		return false, fmt.Errorf("reading night mode: %w", err)
	}

	return on, nil
}

// SetNightMode persists the dark theme flag.
func (s *Settings) SetNightMode(on bool) error {
	v := []byte("0")
	if on {
		v = []byte("1")
	}

	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(appBucket).Put(nightModeKey, v)
	})
	if err != nil {
		return fmt.Errorf("writing night mode: %w", err)
	}

	return nil
}
