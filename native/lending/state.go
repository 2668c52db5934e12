package lending

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"

	"lendcore/native/lending/configuration"
	"lendcore/storage"
)

var (
	reservePrefix   = []byte("lending/reserve")
	listPrefix      = []byte("lending/list")
	countKey        = crypto.Keccak256([]byte("lending/count"))
	paramsKey       = crypto.Keccak256([]byte("lending/params"))
	userPrefix      = []byte("lending/user")
	userEModePrefix = []byte("lending/user-emode")
	eModePrefix     = []byte("lending/emode")
	scaledPrefix    = []byte("lending/scaled")
	totalPrefix     = []byte("lending/total")
	ledgerPrefix    = []byte("lending/ledger")
	managerPrefix   = []byte("lending/position-manager")
	allowancePrefix = []byte("lending/borrow-allowance")
)

// shareKind separates deposit shares from variable debt shares.
type shareKind byte

const (
	supplyShares shareKind = 'a'
	debtShares   shareKind = 'd'
)

func reserveKey(asset common.Address) []byte {
	return crypto.Keccak256(reservePrefix, asset.Bytes())
}

func listKey(id uint16) []byte {
	var buf [2]byte
	binary.BigEndian.PutUint16(buf[:], id)
	return crypto.Keccak256(listPrefix, buf[:])
}

func userKey(user common.Address) []byte {
	return crypto.Keccak256(userPrefix, user.Bytes())
}

func userEModeKey(user common.Address) []byte {
	return crypto.Keccak256(userEModePrefix, user.Bytes())
}

func eModeKey(id uint8) []byte {
	return crypto.Keccak256(eModePrefix, []byte{id})
}

func scaledKey(kind shareKind, asset, holder common.Address) []byte {
	return crypto.Keccak256(scaledPrefix, []byte{byte(kind)}, asset.Bytes(), holder.Bytes())
}

func totalKey(kind shareKind, asset common.Address) []byte {
	return crypto.Keccak256(totalPrefix, []byte{byte(kind)}, asset.Bytes())
}

func ledgerKey(token, holder common.Address) []byte {
	return crypto.Keccak256(ledgerPrefix, token.Bytes(), holder.Bytes())
}

func managerKey(user, manager common.Address) []byte {
	return crypto.Keccak256(managerPrefix, user.Bytes(), manager.Bytes())
}

func allowanceKey(delegator, delegatee, asset common.Address) []byte {
	return crypto.Keccak256(allowancePrefix, delegator.Bytes(), delegatee.Bytes(), asset.Bytes())
}

// reserveRecord is the persisted form of ReserveData.
type reserveRecord struct {
	ID                          uint16
	Configuration               *uint256.Int
	LiquidityIndex              *uint256.Int
	VariableBorrowIndex         *uint256.Int
	CurrentLiquidityRate        *uint256.Int
	CurrentVariableBorrowRate   *uint256.Int
	LastUpdateTimestamp         uint64
	ATokenAddress               common.Address
	VariableDebtTokenAddress    common.Address
	AccruedToTreasury           *uint256.Int
	VirtualUnderlyingBalance    *uint256.Int
	IsolationModeTotalDebt      uint64
	Deficit                     *uint256.Int
	LiquidationGracePeriodUntil uint64
}

func (r *ReserveData) record() *reserveRecord {
	return &reserveRecord{
		ID:                          r.ID,
		Configuration:               r.Configuration.Word(),
		LiquidityIndex:              cloneInt(r.LiquidityIndex),
		VariableBorrowIndex:         cloneInt(r.VariableBorrowIndex),
		CurrentLiquidityRate:        cloneInt(r.CurrentLiquidityRate),
		CurrentVariableBorrowRate:   cloneInt(r.CurrentVariableBorrowRate),
		LastUpdateTimestamp:         r.LastUpdateTimestamp,
		ATokenAddress:               r.ATokenAddress,
		VariableDebtTokenAddress:    r.VariableDebtTokenAddress,
		AccruedToTreasury:           cloneInt(r.AccruedToTreasury),
		VirtualUnderlyingBalance:    cloneInt(r.VirtualUnderlyingBalance),
		IsolationModeTotalDebt:      r.IsolationModeTotalDebt,
		Deficit:                     cloneInt(r.Deficit),
		LiquidationGracePeriodUntil: r.LiquidationGracePeriodUntil,
	}
}

func (rec *reserveRecord) reserve() *ReserveData {
	return &ReserveData{
		ID:                          rec.ID,
		Configuration:               configuration.ReserveMapFromWord(rec.Configuration),
		LiquidityIndex:              cloneInt(rec.LiquidityIndex),
		VariableBorrowIndex:         cloneInt(rec.VariableBorrowIndex),
		CurrentLiquidityRate:        cloneInt(rec.CurrentLiquidityRate),
		CurrentVariableBorrowRate:   cloneInt(rec.CurrentVariableBorrowRate),
		LastUpdateTimestamp:         rec.LastUpdateTimestamp,
		ATokenAddress:               rec.ATokenAddress,
		VariableDebtTokenAddress:    rec.VariableDebtTokenAddress,
		AccruedToTreasury:           cloneInt(rec.AccruedToTreasury),
		VirtualUnderlyingBalance:    cloneInt(rec.VirtualUnderlyingBalance),
		IsolationModeTotalDebt:      rec.IsolationModeTotalDebt,
		Deficit:                     cloneInt(rec.Deficit),
		LiquidationGracePeriodUntil: rec.LiquidationGracePeriodUntil,
	}
}

type eModeRecord struct {
	LTV                  uint64
	LiquidationThreshold uint64
	LiquidationBonus     uint64
	Label                string
	Collateral           *uint256.Int
	Borrowable           *uint256.Int
}

// txn is the unit of work of one action. Records are decoded once, mutated in
// place and written back in a single batch by commit. Discarding a txn
// discards every change made through it.
type txn struct {
	db         storage.Database
	reserves   map[common.Address]*ReserveData
	dropped    map[common.Address]struct{}
	assets     map[uint16]common.Address
	count      *uint16
	params     *PoolParams
	users      map[common.Address]*configuration.UserMap
	eModes     map[common.Address]uint8
	categories map[uint8]*EModeCategory
	words      map[string]*uint256.Int
	flags      map[string]bool
	events     []Event
}

func newTxn(db storage.Database) *txn {
	return &txn{
		db:         db,
		reserves:   make(map[common.Address]*ReserveData),
		dropped:    make(map[common.Address]struct{}),
		assets:     make(map[uint16]common.Address),
		users:      make(map[common.Address]*configuration.UserMap),
		eModes:     make(map[common.Address]uint8),
		categories: make(map[uint8]*EModeCategory),
		words:      make(map[string]*uint256.Int),
		flags:      make(map[string]bool),
	}
}

func (tx *txn) get(key []byte) ([]byte, bool, error) {
	raw, err := tx.db.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("lending state: read: %w", err)
	}
	return raw, true, nil
}

// reserve returns the cached reserve for asset or nil when it is not listed.
func (tx *txn) reserve(asset common.Address) (*ReserveData, error) {
	if r, ok := tx.reserves[asset]; ok {
		return r, nil
	}
	if _, ok := tx.dropped[asset]; ok {
		return nil, nil
	}
	raw, ok, err := tx.get(reserveKey(asset))
	if err != nil || !ok {
		return nil, err
	}
	var rec reserveRecord
	if err := rlp.DecodeBytes(raw, &rec); err != nil {
		return nil, fmt.Errorf("lending state: decode reserve %s: %w", asset.Hex(), err)
	}
	r := rec.reserve()
	tx.reserves[asset] = r
	return r, nil
}

// listedReserve is reserve but fails with ErrAssetNotListed when absent.
func (tx *txn) listedReserve(asset common.Address) (*ReserveData, error) {
	r, err := tx.reserve(asset)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, fmt.Errorf("%w: %s", ErrAssetNotListed, asset.Hex())
	}
	return r, nil
}

func (tx *txn) putReserve(asset common.Address, r *ReserveData) {
	delete(tx.dropped, asset)
	tx.reserves[asset] = r
}

func (tx *txn) dropReserve(asset common.Address) {
	delete(tx.reserves, asset)
	tx.dropped[asset] = struct{}{}
}

func (tx *txn) reserveAsset(id uint16) (common.Address, error) {
	if asset, ok := tx.assets[id]; ok {
		return asset, nil
	}
	raw, ok, err := tx.get(listKey(id))
	if err != nil {
		return common.Address{}, err
	}
	var asset common.Address
	if ok {
		asset = common.BytesToAddress(raw)
	}
	tx.assets[id] = asset
	return asset, nil
}

func (tx *txn) setReserveAsset(id uint16, asset common.Address) {
	tx.assets[id] = asset
}

func (tx *txn) reservesCount() (uint16, error) {
	if tx.count != nil {
		return *tx.count, nil
	}
	raw, ok, err := tx.get(countKey)
	if err != nil {
		return 0, err
	}
	var count uint16
	if ok && len(raw) == 2 {
		count = binary.BigEndian.Uint16(raw)
	}
	tx.count = &count
	return count, nil
}

func (tx *txn) setReservesCount(count uint16) {
	tx.count = &count
}

func (tx *txn) poolParams() (*PoolParams, error) {
	if tx.params != nil {
		return tx.params, nil
	}
	raw, ok, err := tx.get(paramsKey)
	if err != nil {
		return nil, err
	}
	params := &PoolParams{
		FlashLoanPremiumTotal:      DefaultFlashLoanPremiumTotal,
		FlashLoanPremiumToProtocol: DefaultFlashLoanPremiumToProtocol,
	}
	if ok {
		if err := rlp.DecodeBytes(raw, params); err != nil {
			return nil, fmt.Errorf("lending state: decode params: %w", err)
		}
	}
	tx.params = params
	return params, nil
}

// userConfig returns the cached, mutable position word of user.
func (tx *txn) userConfig(user common.Address) (*configuration.UserMap, error) {
	if cfg, ok := tx.users[user]; ok {
		return cfg, nil
	}
	raw, ok, err := tx.get(userKey(user))
	if err != nil {
		return nil, err
	}
	var cfg configuration.UserMap
	if ok {
		cfg = configuration.UserMapFromWord(new(uint256.Int).SetBytes(raw))
	}
	tx.users[user] = &cfg
	return &cfg, nil
}

func (tx *txn) userEMode(user common.Address) (uint8, error) {
	if id, ok := tx.eModes[user]; ok {
		return id, nil
	}
	raw, ok, err := tx.get(userEModeKey(user))
	if err != nil {
		return 0, err
	}
	var id uint8
	if ok && len(raw) == 1 {
		id = raw[0]
	}
	tx.eModes[user] = id
	return id, nil
}

func (tx *txn) setUserEMode(user common.Address, id uint8) {
	tx.eModes[user] = id
}

// eModeCategory returns the cached category; unconfigured ids yield a zero
// category.
func (tx *txn) eModeCategory(id uint8) (*EModeCategory, error) {
	if c, ok := tx.categories[id]; ok {
		return c, nil
	}
	raw, ok, err := tx.get(eModeKey(id))
	if err != nil {
		return nil, err
	}
	category := &EModeCategory{}
	if ok {
		var rec eModeRecord
		if err := rlp.DecodeBytes(raw, &rec); err != nil {
			return nil, fmt.Errorf("lending state: decode e-mode %d: %w", id, err)
		}
		category = &EModeCategory{
			LTV:                  rec.LTV,
			LiquidationThreshold: rec.LiquidationThreshold,
			LiquidationBonus:     rec.LiquidationBonus,
			Label:                rec.Label,
			Collateral:           configuration.ReserveSetFromWord(rec.Collateral),
			Borrowable:           configuration.ReserveSetFromWord(rec.Borrowable),
		}
	}
	tx.categories[id] = category
	return category, nil
}

func (tx *txn) word(key []byte) (*uint256.Int, error) {
	if v, ok := tx.words[string(key)]; ok {
		return new(uint256.Int).Set(v), nil
	}
	raw, ok, err := tx.get(key)
	if err != nil {
		return nil, err
	}
	v := new(uint256.Int)
	if ok {
		v.SetBytes(raw)
	}
	tx.words[string(key)] = v
	return new(uint256.Int).Set(v), nil
}

func (tx *txn) setWord(key []byte, v *uint256.Int) {
	tx.words[string(key)] = new(uint256.Int).Set(v)
}

func (tx *txn) flag(key []byte) (bool, error) {
	if v, ok := tx.flags[string(key)]; ok {
		return v, nil
	}
	raw, ok, err := tx.get(key)
	if err != nil {
		return false, err
	}
	v := ok && len(raw) == 1 && raw[0] == 1
	tx.flags[string(key)] = v
	return v, nil
}

func (tx *txn) setFlag(key []byte, v bool) {
	tx.flags[string(key)] = v
}

func (tx *txn) scaledBalance(kind shareKind, asset, holder common.Address) (*uint256.Int, error) {
	return tx.word(scaledKey(kind, asset, holder))
}

func (tx *txn) setScaledBalance(kind shareKind, asset, holder common.Address, v *uint256.Int) {
	tx.setWord(scaledKey(kind, asset, holder), v)
}

func (tx *txn) scaledTotal(kind shareKind, asset common.Address) (*uint256.Int, error) {
	return tx.word(totalKey(kind, asset))
}

func (tx *txn) setScaledTotal(kind shareKind, asset common.Address, v *uint256.Int) {
	tx.setWord(totalKey(kind, asset), v)
}

func (tx *txn) ledgerBalance(token, holder common.Address) (*uint256.Int, error) {
	return tx.word(ledgerKey(token, holder))
}

func (tx *txn) setLedgerBalance(token, holder common.Address, v *uint256.Int) {
	tx.setWord(ledgerKey(token, holder), v)
}

func (tx *txn) emit(ev Event) {
	tx.events = append(tx.events, ev)
}

// commit writes every record loaded or created through the txn.
func (tx *txn) commit() error {
	batch := tx.db.NewBatch()
	for asset, r := range tx.reserves {
		raw, err := rlp.EncodeToBytes(r.record())
		if err != nil {
			return fmt.Errorf("lending state: encode reserve %s: %w", asset.Hex(), err)
		}
		batch.Put(reserveKey(asset), raw)
	}
	for asset := range tx.dropped {
		batch.Delete(reserveKey(asset))
	}
	for id, asset := range tx.assets {
		batch.Put(listKey(id), asset.Bytes())
	}
	if tx.count != nil {
		var buf [2]byte
		binary.BigEndian.PutUint16(buf[:], *tx.count)
		batch.Put(countKey, buf[:])
	}
	if tx.params != nil {
		raw, err := rlp.EncodeToBytes(tx.params)
		if err != nil {
			return fmt.Errorf("lending state: encode params: %w", err)
		}
		batch.Put(paramsKey, raw)
	}
	for user, cfg := range tx.users {
		word := cfg.Word().Bytes32()
		batch.Put(userKey(user), word[:])
	}
	for user, id := range tx.eModes {
		batch.Put(userEModeKey(user), []byte{id})
	}
	for id, c := range tx.categories {
		raw, err := rlp.EncodeToBytes(&eModeRecord{
			LTV:                  c.LTV,
			LiquidationThreshold: c.LiquidationThreshold,
			LiquidationBonus:     c.LiquidationBonus,
			Label:                c.Label,
			Collateral:           c.Collateral.Word(),
			Borrowable:           c.Borrowable.Word(),
		})
		if err != nil {
			return fmt.Errorf("lending state: encode e-mode %d: %w", id, err)
		}
		batch.Put(eModeKey(id), raw)
	}
	for key, v := range tx.words {
		word := v.Bytes32()
		batch.Put([]byte(key), word[:])
	}
	for key, v := range tx.flags {
		var b byte
		if v {
			b = 1
		}
		batch.Put([]byte(key), []byte{b})
	}
	return batch.Write()
}
