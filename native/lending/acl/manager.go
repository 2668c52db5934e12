// Package acl stores role assignments consulted by the lending pool.
package acl

import (
	"bytes"
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"lendcore/storage"
)

var (
	ErrEmptyRole   = errors.New("acl: role must not be empty")
	ErrZeroAddress = errors.New("acl: zero address cannot hold a role")
)

func roleKey(role string) []byte {
	return crypto.Keccak256([]byte("lending/acl/role/" + role))
}

func normalizeRole(role string) string {
	return strings.ToUpper(strings.TrimSpace(role))
}

// Manager keeps role members in memory and mirrors every change into db.
type Manager struct {
	mu      sync.RWMutex
	db      storage.Database
	members map[string][]common.Address
}

// NewManager returns a manager backed by db. A nil db keeps roles in memory
// only.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db, members: make(map[string][]common.Address)}
}

func (m *Manager) load(role string) ([]common.Address, error) {
	if members, ok := m.members[role]; ok {
		return members, nil
	}
	if m.db == nil {
		return nil, nil
	}
	data, err := m.db.Get(roleKey(role))
	if errors.Is(err, storage.ErrNotFound) || len(data) == 0 {
		m.members[role] = nil
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var members []common.Address
	if err := rlp.DecodeBytes(data, &members); err != nil {
		return nil, err
	}
	m.members[role] = members
	return members, nil
}

func (m *Manager) store(role string, members []common.Address) error {
	if m.db != nil {
		if len(members) == 0 {
			if err := m.db.Delete(roleKey(role)); err != nil {
				return err
			}
		} else {
			encoded, err := rlp.EncodeToBytes(members)
			if err != nil {
				return err
			}
			if err := m.db.Put(roleKey(role), encoded); err != nil {
				return err
			}
		}
	}
	m.members[role] = members
	return nil
}

// Grant adds account to role. Granting an existing member is a no-op.
func (m *Manager) Grant(role string, account common.Address) error {
	role = normalizeRole(role)
	if role == "" {
		return ErrEmptyRole
	}
	if account == (common.Address{}) {
		return ErrZeroAddress
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	members, err := m.load(role)
	if err != nil {
		return err
	}
	for _, member := range members {
		if member == account {
			return nil
		}
	}
	next := append(append([]common.Address(nil), members...), account)
	sort.Slice(next, func(i, j int) bool { return bytes.Compare(next[i][:], next[j][:]) < 0 })
	return m.store(role, next)
}

// Revoke removes account from role.
func (m *Manager) Revoke(role string, account common.Address) error {
	role = normalizeRole(role)
	if role == "" {
		return ErrEmptyRole
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	members, err := m.load(role)
	if err != nil {
		return err
	}
	next := make([]common.Address, 0, len(members))
	for _, member := range members {
		if member != account {
			next = append(next, member)
		}
	}
	if len(next) == len(members) {
		return nil
	}
	return m.store(role, next)
}

// HasRole reports whether account holds role. Storage errors read as false.
func (m *Manager) HasRole(role string, account common.Address) bool {
	role = normalizeRole(role)
	if role == "" || account == (common.Address{}) {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	members, err := m.load(role)
	if err != nil {
		return false
	}
	for _, member := range members {
		if member == account {
			return true
		}
	}
	return false
}

// Members returns the holders of role in address order.
func (m *Manager) Members(role string) ([]common.Address, error) {
	role = normalizeRole(role)
	if role == "" {
		return nil, ErrEmptyRole
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	members, err := m.load(role)
	if err != nil {
		return nil, err
	}
	return append([]common.Address(nil), members...), nil
}
