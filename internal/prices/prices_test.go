package prices

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"futuresexec/internal/models"
)

type priceRepoStub struct {
	rows []models.ContractPrice
}

func (s *priceRepoStub) InsertContractPrices(_ context.Context, items []models.ContractPrice) error {
	s.rows = append(s.rows, items...)
	return nil
}

func (s *priceRepoStub) LatestContractPrice(_ context.Context, instrument, contract string) (*models.ContractPrice, error) {
	var out *models.ContractPrice
	for i := range s.rows {
		r := s.rows[i]
		if r.InstrumentCode != instrument || r.ContractID != contract {
			continue
		}
		if out == nil || r.SampledAt.After(out.SampledAt) {
			out = &r
		}
	}
	return out, nil
}

func (s *priceRepoStub) LastMatchedPrices(_ context.Context, instrument string, contracts []string) (time.Time, map[string]decimal.Decimal, bool, error) {
	byTime := map[time.Time]map[string]decimal.Decimal{}
	for _, r := range s.rows {
		if r.InstrumentCode != instrument {
			continue
		}
		if byTime[r.SampledAt] == nil {
			byTime[r.SampledAt] = map[string]decimal.Decimal{}
		}
		byTime[r.SampledAt][r.ContractID] = r.Price
	}
	var best time.Time
	var found bool
	for at, m := range byTime {
		complete := true
		for _, c := range contracts {
			if _, ok := m[c]; !ok {
				complete = false
			}
		}
		if complete && (!found || at.After(best)) {
			best, found = at, true
		}
	}
	if !found {
		return time.Time{}, nil, false, nil
	}
	return best, byTime[best], true, nil
}

func TestRecordThenMatch(t *testing.T) {
	repo := &priceRepoStub{}
	svc := New(repo)
	ctx := context.Background()
	at := time.Date(2026, 3, 2, 15, 0, 0, 0, time.FixedZone("EST", -5*3600))
	err := svc.Record(ctx, "CRUDE_W", at, "venue_quote", []Sample{
		{Contract: "202409", Price: decimal.RequireFromString("72.5")},
		{Contract: "202412", Price: decimal.RequireFromString("71.8")},
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if repo.rows[0].SampledAt.Location() != time.UTC || repo.rows[0].Source != "venue_quote" {
		t.Fatalf("row=%+v want UTC venue_quote", repo.rows[0])
	}

	got, refs, err := svc.LastMatchedDateAndPrices(ctx, "CRUDE_W", []string{"202412", "202409"})
	if err != nil {
		t.Fatalf("matched: %v", err)
	}
	if !got.Equal(at) {
		t.Fatalf("at=%v want=%v", got, at)
	}
	if !refs[0].Equal(decimal.RequireFromString("71.8")) || !refs[1].Equal(decimal.RequireFromString("72.5")) {
		t.Fatalf("refs=%v want input order [71.8 72.5]", refs)
	}
}

func TestRecord_EmptyIsNoop(t *testing.T) {
	repo := &priceRepoStub{}
	if err := New(repo).Record(context.Background(), "CRUDE_W", time.Now(), "x", nil); err != nil {
		t.Fatalf("err=%v", err)
	}
	if len(repo.rows) != 0 {
		t.Fatalf("rows=%d want=0", len(repo.rows))
	}
}

func TestMissingPrices(t *testing.T) {
	svc := New(&priceRepoStub{})
	ctx := context.Background()
	if _, err := svc.CurrentPrice(ctx, "CRUDE_W", "202409"); !errors.Is(err, ErrNoPrice) {
		t.Fatalf("err=%v want ErrNoPrice", err)
	}
	if _, _, err := svc.LastMatchedDateAndPrices(ctx, "CRUDE_W", []string{"202409"}); !errors.Is(err, ErrNoMatchedPrices) {
		t.Fatalf("err=%v want ErrNoMatchedPrices", err)
	}
}
