package journal

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"lendcore/native/lending"
)

var (
	asset = common.HexToAddress("0x000000000000000000000000000000000000d5dc")
	alice = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	bob   = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
)

func newJournal(t *testing.T) *Journal {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := Open("sqlite", dsn)
	require.NoError(t, err)
	j, err := New(db, nil)
	require.NoError(t, err)

	now := time.Unix(1_700_000_000, 0)
	j.SetClock(func() time.Time {
		now = now.Add(time.Second)
		return now
	})
	return j
}

func TestRecordExtractsColumns(t *testing.T) {
	j := newJournal(t)
	record, err := j.Record(context.Background(), lending.Supply{
		Asset:      asset,
		User:       alice,
		OnBehalfOf: alice,
		Amount:     uint256.NewInt(1_500),
	})
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, record.ID)
	require.Equal(t, lending.TypeSupply, record.Type)
	require.Equal(t, asset.Hex(), record.Asset)
	require.Equal(t, alice.Hex(), record.User)
	require.Equal(t, "1500", record.Amount)

	attrs, err := record.Attributes()
	require.NoError(t, err)
	require.Equal(t, alice.Hex(), attrs["on_behalf_of"])
}

func TestRecordLiquidationUsesDebtColumns(t *testing.T) {
	j := newJournal(t)
	record, err := j.Record(context.Background(), lending.LiquidationCall{
		CollateralAsset:  common.HexToAddress("0xe770"),
		DebtAsset:        asset,
		User:             alice,
		Liquidator:       bob,
		DebtToCover:      uint256.NewInt(42),
		CollateralAmount: uint256.NewInt(7),
	})
	require.NoError(t, err)
	require.Equal(t, asset.Hex(), record.Asset)
	require.Equal(t, "42", record.Amount)
}

func TestRecentFiltersAndOrders(t *testing.T) {
	j := newJournal(t)
	ctx := context.Background()
	events := []lending.Event{
		lending.Supply{Asset: asset, User: alice, OnBehalfOf: alice, Amount: uint256.NewInt(1)},
		lending.Borrow{Asset: asset, User: alice, OnBehalfOf: alice, Amount: uint256.NewInt(2)},
		lending.Supply{Asset: asset, User: bob, OnBehalfOf: bob, Amount: uint256.NewInt(3)},
	}
	for _, ev := range events {
		j.Emit(ev)
	}

	all, err := j.Recent(ctx, 10, Filter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, "3", all[0].Amount)
	require.Equal(t, "1", all[2].Amount)

	supplies, err := j.Recent(ctx, 10, Filter{Type: lending.TypeSupply})
	require.NoError(t, err)
	require.Len(t, supplies, 2)

	mine, err := j.Recent(ctx, 10, Filter{User: alice.Hex()})
	require.NoError(t, err)
	require.Len(t, mine, 2)

	limited, err := j.Recent(ctx, 1, Filter{})
	require.NoError(t, err)
	require.Len(t, limited, 1)
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open("mysql", "root@/lend")
	require.Error(t, err)
	_, err = New(nil, nil)
	require.Error(t, err)
}
