package boltsecurestore

import (
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"

	"github.com/paygate-network/paygate-daemon/pkg/securestore"
)

var secretsBucket = []byte("secrets")

type boltSecretStore struct {
	db *bbolt.DB
}

// NewSecretStore opens (or creates if not exists) the bolt db backing the
// local secret store and makes sure the secrets bucket exists
func NewSecretStore(datadir, filename string) (securestore.SecretStore, error) {
	if _, err := os.Stat(datadir); os.IsNotExist(err) {
		if err := os.MkdirAll(datadir, 0700); err != nil {
			return nil, err
		}
	}

	db, err := bbolt.Open(
		filepath.Join(datadir, filename), 0600,
		&bbolt.Options{Timeout: 5 * time.Second},
	)
	if err != nil {
		return nil, err
	}

	if err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(secretsBucket)
		return err
	}); err != nil {
		db.Close()
		return nil, err
	}

	return &boltSecretStore{db: db}, nil
}

func (s *boltSecretStore) GetSecret(name string) ([]byte, error) {
	if len(name) <= 0 {
		return nil, securestore.ErrNullSecretName
	}

	var value []byte
	if err := s.db.View(func(tx *bbolt.Tx) error {
		raw := tx.Bucket(secretsBucket).Get([]byte(name))
		if raw == nil {
			return securestore.ErrSecretNotFound
		}
		value = make([]byte, len(raw))
		copy(value, raw)
		return nil
	}); err != nil {
		return nil, err
	}
	return value, nil
}

func (s *boltSecretStore) PutSecret(name string, value []byte) error {
	if len(name) <= 0 {
		return securestore.ErrNullSecretName
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(secretsBucket).Put([]byte(name), value)
	})
}

func (s *boltSecretStore) Close() error {
	return s.db.Close()
}
