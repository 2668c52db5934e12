// Package markets loads the TOML market listing the lending daemon boots
// from and applies it to a pool.
package markets

import (
	"errors"
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"lendcore/native/lending"
	"lendcore/native/lending/oracle"
	"lendcore/native/lending/ratestrategy"
)

// File is the decoded market listing.
type File struct {
	BaseCurrencyUnit string     `toml:"base_currency_unit"`
	Treasury         string     `toml:"treasury"`
	Admins           []string   `toml:"admins"`
	FlashLoan        FlashLoan  `toml:"flashloan"`
	EMode            []EMode    `toml:"emode"`
	Markets          []Market   `toml:"market"`
	Roles            []RoleSpec `toml:"role"`
}

// FlashLoan sets the pool-wide premiums in basis points.
type FlashLoan struct {
	PremiumTotal      uint64 `toml:"premium_total"`
	PremiumToProtocol uint64 `toml:"premium_to_protocol"`
}

// EMode describes one efficiency-mode category. Assets are market symbols.
type EMode struct {
	ID                   uint8    `toml:"id"`
	Label                string   `toml:"label"`
	LTV                  uint64   `toml:"ltv"`
	LiquidationThreshold uint64   `toml:"liquidation_threshold"`
	LiquidationBonus     uint64   `toml:"liquidation_bonus"`
	Collateral           []string `toml:"collateral"`
	Borrowable           []string `toml:"borrowable"`
}

// RoleSpec grants a pool role to a list of accounts.
type RoleSpec struct {
	Name     string   `toml:"name"`
	Accounts []string `toml:"accounts"`
}

// Market lists one reserve. Prices are integers in base currency units.
type Market struct {
	Symbol                 string               `toml:"symbol"`
	Asset                  string               `toml:"asset"`
	Decimals               uint64               `toml:"decimals"`
	Price                  string               `toml:"price"`
	LTV                    uint64               `toml:"ltv"`
	LiquidationThreshold   uint64               `toml:"liquidation_threshold"`
	LiquidationBonus       uint64               `toml:"liquidation_bonus"`
	ReserveFactor          uint64               `toml:"reserve_factor"`
	LiquidationProtocolFee uint64               `toml:"liquidation_protocol_fee"`
	Borrowing              bool                 `toml:"borrowing"`
	DisableFlashLoans      bool                 `toml:"disable_flash_loans"`
	SupplyCap              uint64               `toml:"supply_cap"`
	BorrowCap              uint64               `toml:"borrow_cap"`
	DebtCeiling            uint64               `toml:"debt_ceiling"`
	BorrowableInIsolation  bool                 `toml:"borrowable_in_isolation"`
	Siloed                 bool                 `toml:"siloed"`
	Rates                  *ratestrategy.Params `toml:"rates"`
}

// Load decodes and validates the listing at path. Unknown keys are rejected.
func Load(path string) (*File, error) {
	var file File
	meta, err := toml.DecodeFile(path, &file)
	if err != nil {
		return nil, fmt.Errorf("decode markets: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, key := range undecoded {
			keys = append(keys, key.String())
		}
		return nil, fmt.Errorf("markets: unknown keys %s", strings.Join(keys, ", "))
	}
	if err := file.Validate(); err != nil {
		return nil, err
	}
	return &file, nil
}

// Validate checks addresses, prices and symbol references.
func (f *File) Validate() error {
	if f == nil {
		return errors.New("markets: listing is nil")
	}
	if len(f.Markets) == 0 {
		return errors.New("markets: at least one market is required")
	}
	if _, err := f.BaseUnit(); err != nil {
		return err
	}
	if f.Treasury != "" && !common.IsHexAddress(f.Treasury) {
		return fmt.Errorf("markets: invalid treasury address %q", f.Treasury)
	}
	for _, admin := range f.Admins {
		if !common.IsHexAddress(admin) {
			return fmt.Errorf("markets: invalid admin address %q", admin)
		}
	}
	for _, role := range f.Roles {
		if strings.TrimSpace(role.Name) == "" {
			return errors.New("markets: role name required")
		}
		for _, account := range role.Accounts {
			if !common.IsHexAddress(account) {
				return fmt.Errorf("markets: role %s: invalid address %q", role.Name, account)
			}
		}
	}
	symbols := make(map[string]struct{}, len(f.Markets))
	assets := make(map[common.Address]struct{}, len(f.Markets))
	for i := range f.Markets {
		m := &f.Markets[i]
		m.Symbol = strings.ToUpper(strings.TrimSpace(m.Symbol))
		if m.Symbol == "" {
			return fmt.Errorf("markets: market %d: symbol required", i)
		}
		if _, dup := symbols[m.Symbol]; dup {
			return fmt.Errorf("markets: duplicate symbol %s", m.Symbol)
		}
		symbols[m.Symbol] = struct{}{}
		if !common.IsHexAddress(m.Asset) {
			return fmt.Errorf("markets: %s: invalid asset address %q", m.Symbol, m.Asset)
		}
		asset := common.HexToAddress(m.Asset)
		if _, dup := assets[asset]; dup {
			return fmt.Errorf("markets: %s: asset listed twice", m.Symbol)
		}
		assets[asset] = struct{}{}
		if _, err := m.PriceValue(); err != nil {
			return fmt.Errorf("markets: %s: %w", m.Symbol, err)
		}
		if m.Rates != nil {
			if err := m.Rates.Validate(); err != nil {
				return fmt.Errorf("markets: %s: %w", m.Symbol, err)
			}
		}
	}
	for _, category := range f.EMode {
		if category.ID == 0 {
			return errors.New("markets: e-mode category 0 is reserved")
		}
		for _, symbol := range append(append([]string{}, category.Collateral...), category.Borrowable...) {
			if _, ok := symbols[strings.ToUpper(strings.TrimSpace(symbol))]; !ok {
				return fmt.Errorf("markets: e-mode %d references unknown market %s", category.ID, symbol)
			}
		}
	}
	return nil
}

// BaseUnit returns the oracle's base currency unit, defaulting to 1e8.
func (f *File) BaseUnit() (*uint256.Int, error) {
	if strings.TrimSpace(f.BaseCurrencyUnit) == "" {
		return new(uint256.Int).Set(oracle.DefaultBaseCurrencyUnit), nil
	}
	unit, err := uint256.FromDecimal(strings.TrimSpace(f.BaseCurrencyUnit))
	if err != nil || unit.IsZero() {
		return nil, fmt.Errorf("markets: invalid base currency unit %q", f.BaseCurrencyUnit)
	}
	return unit, nil
}

// TreasuryAddress returns the configured treasury, or the zero address.
func (f *File) TreasuryAddress() common.Address {
	if f.Treasury == "" {
		return common.Address{}
	}
	return common.HexToAddress(f.Treasury)
}

// Lookup resolves a symbol or hex address to a listed asset.
func (f *File) Lookup(ref string) (common.Address, bool) {
	ref = strings.TrimSpace(ref)
	if common.IsHexAddress(ref) {
		addr := common.HexToAddress(ref)
		for _, m := range f.Markets {
			if common.HexToAddress(m.Asset) == addr {
				return addr, true
			}
		}
		return common.Address{}, false
	}
	symbol := strings.ToUpper(ref)
	for _, m := range f.Markets {
		if m.Symbol == symbol {
			return common.HexToAddress(m.Asset), true
		}
	}
	return common.Address{}, false
}

// AssetAddress returns the parsed asset address.
func (m Market) AssetAddress() common.Address {
	return common.HexToAddress(m.Asset)
}

// PriceValue parses the quoted price. A missing price is an error.
func (m Market) PriceValue() (*uint256.Int, error) {
	price, err := uint256.FromDecimal(strings.TrimSpace(m.Price))
	if err != nil {
		return nil, fmt.Errorf("invalid price %q", m.Price)
	}
	if price.IsZero() {
		return nil, errors.New("price must be positive")
	}
	return price, nil
}

// Grants lists the role grants implied by the listing. Admins receive every
// administrative role.
func (f *File) Grants() map[string][]common.Address {
	out := make(map[string][]common.Address)
	for _, admin := range f.Admins {
		addr := common.HexToAddress(admin)
		for _, role := range []string{lending.RolePoolAdmin, lending.RoleRiskAdmin, lending.RoleEmergencyAdmin} {
			out[role] = append(out[role], addr)
		}
	}
	for _, role := range f.Roles {
		name := strings.ToUpper(strings.TrimSpace(role.Name))
		for _, account := range role.Accounts {
			out[name] = append(out[name], common.HexToAddress(account))
		}
	}
	return out
}
