package ports

import (
	"github.com/paygate-network/paygate-daemon/internal/core/domain"
)

// RepoManager gives access to the document repositories of the daemon and
// manages the lifecycle of the underlying store. The vault repository is
// not part of it: seed material lives in the secret store, not in the
// document db.
type RepoManager interface {
	AddressRepository() domain.AddressRepository
	TransactionRepository() domain.TransactionRepository
	Close()
}
