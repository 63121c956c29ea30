// Package prices serves the matched price samples used to value rolls.
package prices

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"futuresexec/internal/models"
	"futuresexec/internal/repository"
)

var (
	ErrNoMatchedPrices = errors.New("no matched prices")
	ErrNoPrice         = errors.New("no price")
)

type Service struct {
	repo repository.PriceRepository
}

func New(repo repository.PriceRepository) *Service {
	return &Service{repo: repo}
}

// LastMatchedDateAndPrices returns the latest sample time at which every
// contract was priced, with one price per contract in input order.
func (s *Service) LastMatchedDateAndPrices(ctx context.Context, instrument string, contracts []string) (time.Time, []decimal.Decimal, error) {
	at, byContract, found, err := s.repo.LastMatchedPrices(ctx, instrument, contracts)
	if err != nil {
		return time.Time{}, nil, err
	}
	if !found {
		return time.Time{}, nil, fmt.Errorf("%w for %s %v", ErrNoMatchedPrices, instrument, contracts)
	}
	out := make([]decimal.Decimal, len(contracts))
	for i, c := range contracts {
		out[i] = byContract[c]
	}
	return at, out, nil
}

func (s *Service) CurrentPrice(ctx context.Context, instrument, contract string) (decimal.Decimal, error) {
	item, err := s.repo.LatestContractPrice(ctx, instrument, contract)
	if err != nil {
		return decimal.Zero, err
	}
	if item == nil {
		return decimal.Zero, fmt.Errorf("%w for %s %s", ErrNoPrice, instrument, contract)
	}
	return item.Price, nil
}

// Sample is one price observation.
type Sample struct {
	Contract string
	Price    decimal.Decimal
}

// Record stores samples for one instrument under a single timestamp so
// they match each other.
func (s *Service) Record(ctx context.Context, instrument string, at time.Time, source string, samples []Sample) error {
	if len(samples) == 0 {
		return nil
	}
	at = at.UTC()
	items := make([]models.ContractPrice, 0, len(samples))
	for _, sm := range samples {
		items = append(items, models.ContractPrice{
			InstrumentCode: instrument,
			ContractID:     sm.Contract,
			Price:          sm.Price,
			SampledAt:      at,
			Source:         source,
		})
	}
	return s.repo.InsertContractPrices(ctx, items)
}
