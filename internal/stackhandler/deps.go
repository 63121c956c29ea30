package stackhandler

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"futuresexec/internal/broker"
	"futuresexec/internal/models"
	"futuresexec/internal/positions"
	"futuresexec/internal/prices"
	"futuresexec/internal/rollstate"
)

// PositionDiag is the read side of position bookkeeping.
type PositionDiag interface {
	PositionForContract(ctx context.Context, instrument, contract string) (int64, error)
	RollState(ctx context.Context, instrument string) (rollstate.State, error)
	InstrumentsWithPositions(ctx context.Context) ([]string, error)
	StrategyWithLargestAbsPosition(ctx context.Context, instrument string) (string, int64, error)
}

// PositionBook applies fills to positions and runs the position checks.
type PositionBook interface {
	PositionDiag
	UpdateContractPosition(ctx context.Context, instrument, contract string, delta int64) error
	UpdateStrategyPosition(ctx context.Context, strategy, instrument string, delta int64) error
	CheckAndAutoUpdateRollState(ctx context.Context, instrument string) (bool, error)
	ListBreaksBetweenContractAndStrategyPositions(ctx context.Context) ([]positions.Break, error)
	ExternalBreaks(ctx context.Context, live []broker.Position) ([]positions.ExternalBreak, error)
	ListRollStateViews(ctx context.Context) ([]positions.RollStateView, error)
}

type PriceDiag interface {
	LastMatchedDateAndPrices(ctx context.Context, instrument string, contracts []string) (time.Time, []decimal.Decimal, error)
	CurrentPrice(ctx context.Context, instrument, contract string) (decimal.Decimal, error)
}

type PriceRecorder interface {
	Record(ctx context.Context, instrument string, at time.Time, source string, samples []prices.Sample) error
}

type ContractDiag interface {
	PricedContractID(ctx context.Context, instrument string) (string, error)
	ForwardContractID(ctx context.Context, instrument string) (string, error)
}

type FillRecorder interface {
	InsertFill(ctx context.Context, item *models.FillRecord) error
}
