package dbbadger

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/dgraph-io/badger/v3"
	"github.com/timshannon/badgerhold/v4"

	"github.com/paygate-network/paygate-daemon/internal/core/domain"
	"github.com/paygate-network/paygate-daemon/internal/core/ports"
)

// DbManager holds all the badgerhold stores in a single data structure
type DbManager struct {
	Store *badgerhold.Store

	addressRepository     domain.AddressRepository
	transactionRepository domain.TransactionRepository
}

// NewDbManager opens (or creates if not exists) the badger store on disk
// and wires every repository on top of it
func NewDbManager(baseDbDir string, logger badger.Logger) (*DbManager, error) {
	store, err := createDb(filepath.Join(baseDbDir, "main"), logger)
	if err != nil {
		return nil, fmt.Errorf("opening main db: %w", err)
	}

	db := &DbManager{Store: store}
	db.addressRepository = newAddressRepositoryImpl(db)
	db.transactionRepository = newTransactionRepositoryImpl(db)
	return db, nil
}

// AddressRepository implements the ports.RepoManager interface
func (d *DbManager) AddressRepository() domain.AddressRepository {
	return d.addressRepository
}

// TransactionRepository implements the ports.RepoManager interface
func (d *DbManager) TransactionRepository() domain.TransactionRepository {
	return d.transactionRepository
}

// Close implements the ports.RepoManager interface
func (d *DbManager) Close() {
	d.Store.Close()
}

var _ ports.RepoManager = (*DbManager)(nil)

// JSONEncode is a custom JSON based encoder for badger
func JSONEncode(value interface{}) ([]byte, error) {
	var buff bytes.Buffer
	if err := json.NewEncoder(&buff).Encode(value); err != nil {
		return nil, err
	}
	return buff.Bytes(), nil
}

// JSONDecode is a custom JSON based decoder for badger
func JSONDecode(data []byte, value interface{}) error {
	return json.NewDecoder(bytes.NewBuffer(data)).Decode(value)
}

func createDb(dbDir string, logger badger.Logger) (*badgerhold.Store, error) {
	opts := badger.DefaultOptions(dbDir)
	opts.Logger = logger

	return badgerhold.Open(badgerhold.Options{
		Encoder:          JSONEncode,
		Decoder:          JSONDecode,
		SequenceBandwith: 100,
		Options:          opts,
	})
}
