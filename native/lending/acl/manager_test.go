package acl

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"lendcore/native/lending"
	"lendcore/storage"
)

var _ lending.AccessControl = (*Manager)(nil)

func TestGrantRevoke(t *testing.T) {
	m := NewManager(nil)
	alice := common.HexToAddress("0xa11ce")
	bob := common.HexToAddress("0xb0b")

	require.False(t, m.HasRole(lending.RolePoolAdmin, alice))
	require.NoError(t, m.Grant(lending.RolePoolAdmin, alice))
	require.NoError(t, m.Grant(" pool_admin ", alice))
	require.NoError(t, m.Grant(lending.RolePoolAdmin, bob))
	require.True(t, m.HasRole(lending.RolePoolAdmin, alice))
	require.False(t, m.HasRole(lending.RoleRiskAdmin, alice))

	members, err := m.Members(lending.RolePoolAdmin)
	require.NoError(t, err)
	require.Len(t, members, 2)

	require.NoError(t, m.Revoke(lending.RolePoolAdmin, alice))
	require.False(t, m.HasRole(lending.RolePoolAdmin, alice))
	require.True(t, m.HasRole(lending.RolePoolAdmin, bob))
}

func TestGrantValidation(t *testing.T) {
	m := NewManager(nil)
	require.ErrorIs(t, m.Grant("", common.HexToAddress("0x1")), ErrEmptyRole)
	require.ErrorIs(t, m.Grant(lending.RoleRiskAdmin, common.Address{}), ErrZeroAddress)
	_, err := m.Members(" ")
	require.ErrorIs(t, err, ErrEmptyRole)
}

func TestRolesPersist(t *testing.T) {
	db := storage.NewMemDB()
	admin := common.HexToAddress("0xad")
	require.NoError(t, NewManager(db).Grant(lending.RoleEmergencyAdmin, admin))

	reopened := NewManager(db)
	require.True(t, reopened.HasRole(lending.RoleEmergencyAdmin, admin))
	require.NoError(t, reopened.Revoke(lending.RoleEmergencyAdmin, admin))
	require.Zero(t, db.Len())
	require.False(t, NewManager(db).HasRole(lending.RoleEmergencyAdmin, admin))
}
