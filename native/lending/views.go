package lending

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"lendcore/native/lending/configuration"
	"lendcore/native/lending/wadray"
)

// ReserveSnapshot is a read-only view of one reserve projected to now.
type ReserveSnapshot struct {
	Asset               common.Address
	Reserve             *ReserveData
	LiquidityIndex      *uint256.Int
	VariableBorrowIndex *uint256.Int
	TotalSupply         *uint256.Int
	TotalDebt           *uint256.Int
	// Utilisation is total debt over debt plus virtual balance, as a ray.
	Utilisation *uint256.Int
}

// GetReserveData returns a copy of the stored reserve state.
func (p *Pool) GetReserveData(ctx context.Context, asset common.Address) (*ReserveData, error) {
	var out *ReserveData
	err := p.view(ctx, func(s *session) error {
		reserve, err := s.tx.listedReserve(asset)
		if err != nil {
			return err
		}
		out = reserve.Clone()
		return nil
	})
	return out, err
}

// GetReservesList returns listed assets ordered by reserve id.
func (p *Pool) GetReservesList(ctx context.Context) ([]common.Address, error) {
	var out []common.Address
	err := p.view(ctx, func(s *session) error {
		var err error
		out, err = s.reservesList()
		return err
	})
	return out, err
}

func (s *session) reservesList() ([]common.Address, error) {
	count, err := s.tx.reservesCount()
	if err != nil {
		return nil, err
	}
	assets := make([]common.Address, 0, count)
	for id := uint16(0); id < count; id++ {
		asset, err := s.tx.reserveAsset(id)
		if err != nil {
			return nil, err
		}
		if asset != (common.Address{}) {
			assets = append(assets, asset)
		}
	}
	return assets, nil
}

// GetUserAccountData aggregates user's positions at the current instant.
func (p *Pool) GetUserAccountData(ctx context.Context, user common.Address) (*UserAccountData, error) {
	var out *UserAccountData
	err := p.view(ctx, func(s *session) error {
		var err error
		out, err = s.userAccountData(user)
		return err
	})
	return out, err
}

func (p *Pool) GetUserConfiguration(ctx context.Context, user common.Address) (configuration.UserMap, error) {
	var out configuration.UserMap
	err := p.view(ctx, func(s *session) error {
		cfg, err := s.tx.userConfig(user)
		if err != nil {
			return err
		}
		out = *cfg
		return nil
	})
	return out, err
}

func (p *Pool) GetUserEMode(ctx context.Context, user common.Address) (uint8, error) {
	var out uint8
	err := p.view(ctx, func(s *session) error {
		var err error
		out, err = s.tx.userEMode(user)
		return err
	})
	return out, err
}

// GetEModeCategory returns the category; unconfigured ids have a zero
// liquidation threshold.
func (p *Pool) GetEModeCategory(ctx context.Context, id uint8) (EModeCategory, error) {
	var out EModeCategory
	err := p.view(ctx, func(s *session) error {
		category, err := s.tx.eModeCategory(id)
		if err != nil {
			return err
		}
		out = *category
		return nil
	})
	return out, err
}

func (p *Pool) GetFlashLoanPremiums(ctx context.Context) (PoolParams, error) {
	var out PoolParams
	err := p.view(ctx, func(s *session) error {
		params, err := s.tx.poolParams()
		if err != nil {
			return err
		}
		out = *params
		return nil
	})
	return out, err
}

// GetReserveNormalizedIncome is the liquidity index projected to now.
func (p *Pool) GetReserveNormalizedIncome(ctx context.Context, asset common.Address) (*uint256.Int, error) {
	var out *uint256.Int
	err := p.view(ctx, func(s *session) error {
		reserve, err := s.tx.listedReserve(asset)
		if err != nil {
			return err
		}
		out, err = reserve.NormalizedIncome(s.now)
		return err
	})
	return out, err
}

// GetReserveNormalizedVariableDebt is the borrow index projected to now.
func (p *Pool) GetReserveNormalizedVariableDebt(ctx context.Context, asset common.Address) (*uint256.Int, error) {
	var out *uint256.Int
	err := p.view(ctx, func(s *session) error {
		reserve, err := s.tx.listedReserve(asset)
		if err != nil {
			return err
		}
		out, err = reserve.NormalizedDebt(s.now)
		return err
	})
	return out, err
}

// SupplyBalance is holder's deposit balance including interest to now.
func (p *Pool) SupplyBalance(ctx context.Context, asset, holder common.Address) (*uint256.Int, error) {
	var out *uint256.Int
	err := p.view(ctx, func(s *session) error {
		reserve, err := s.tx.listedReserve(asset)
		if err != nil {
			return err
		}
		index, err := reserve.NormalizedIncome(s.now)
		if err != nil {
			return err
		}
		out, err = s.supplyBalance(asset, holder, index)
		return err
	})
	return out, err
}

// DebtBalance is holder's variable debt including interest to now.
func (p *Pool) DebtBalance(ctx context.Context, asset, holder common.Address) (*uint256.Int, error) {
	var out *uint256.Int
	err := p.view(ctx, func(s *session) error {
		reserve, err := s.tx.listedReserve(asset)
		if err != nil {
			return err
		}
		index, err := reserve.NormalizedDebt(s.now)
		if err != nil {
			return err
		}
		out, err = s.debtBalance(asset, holder, index)
		return err
	})
	return out, err
}

// ScaledBalances returns holder's raw deposit and debt shares.
func (p *Pool) ScaledBalances(ctx context.Context, asset, holder common.Address) (supply, debt *uint256.Int, err error) {
	err = p.view(ctx, func(s *session) error {
		var err error
		if supply, err = s.tx.scaledBalance(supplyShares, asset, holder); err != nil {
			return err
		}
		debt, err = s.tx.scaledBalance(debtShares, asset, holder)
		return err
	})
	return supply, debt, err
}

// Snapshot projects every listed reserve to now.
func (p *Pool) Snapshot(ctx context.Context) ([]ReserveSnapshot, error) {
	var out []ReserveSnapshot
	err := p.view(ctx, func(s *session) error {
		assets, err := s.reservesList()
		if err != nil {
			return err
		}
		out = make([]ReserveSnapshot, 0, len(assets))
		for _, asset := range assets {
			snap, err := s.snapshot(asset)
			if err != nil {
				return err
			}
			out = append(out, *snap)
		}
		return nil
	})
	return out, err
}

// GetReserveSnapshot projects one reserve to now.
func (p *Pool) GetReserveSnapshot(ctx context.Context, asset common.Address) (*ReserveSnapshot, error) {
	var out *ReserveSnapshot
	err := p.view(ctx, func(s *session) error {
		var err error
		out, err = s.snapshot(asset)
		return err
	})
	return out, err
}

func (s *session) snapshot(asset common.Address) (*ReserveSnapshot, error) {
	reserve, err := s.tx.listedReserve(asset)
	if err != nil {
		return nil, err
	}
	income, err := reserve.NormalizedIncome(s.now)
	if err != nil {
		return nil, err
	}
	debtIndex, err := reserve.NormalizedDebt(s.now)
	if err != nil {
		return nil, err
	}
	supply, err := s.totalSupply(asset, income)
	if err != nil {
		return nil, err
	}
	scaledDebt, err := s.tx.scaledTotal(debtShares, asset)
	if err != nil {
		return nil, err
	}
	debt, err := wadray.RayMul(scaledDebt, debtIndex)
	if err != nil {
		return nil, err
	}
	utilisation := new(uint256.Int)
	if !debt.IsZero() {
		liquidity, err := wadray.Add(debt, reserve.VirtualUnderlyingBalance)
		if err != nil {
			return nil, err
		}
		if utilisation, err = wadray.MulDiv(debt, &wadray.Ray, liquidity); err != nil {
			return nil, err
		}
	}
	return &ReserveSnapshot{
		Asset:               asset,
		Reserve:             reserve.Clone(),
		LiquidityIndex:      income,
		VariableBorrowIndex: debtIndex,
		TotalSupply:         supply,
		TotalDebt:           debt,
		Utilisation:         utilisation,
	}, nil
}
