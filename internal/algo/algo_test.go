package algo

import (
	"context"
	"testing"

	"futuresexec/internal/order"
)

func TestStatic_AllocatesByShape(t *testing.T) {
	a := NewStatic("", "")
	in := []*order.Order{
		{ContractIDs: []string{"202409"}, Trade: order.NewTrade(3), OrderType: order.TypeMarket},
		{ContractIDs: []string{"202409", "202412"}, Trade: order.NewTrade(-3, 3), OrderType: order.TypeMarket},
		{ContractIDs: []string{"202409"}, Trade: order.NewTrade(1), OrderType: order.TypeLimit},
		{ContractIDs: []string{"202409"}, Trade: order.NewTrade(1), Algo: "iceberg"},
	}
	out, err := a.AllocateAlgoToOrders(context.Background(), in, nil)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	want := []string{Market, SpreadLimit, Limit, "iceberg"}
	for i := range want {
		if out[i].Algo != want[i] {
			t.Fatalf("order %d algo=%s want=%s", i, out[i].Algo, want[i])
		}
	}
	if in[0].Algo != "" {
		t.Fatalf("input mutated")
	}
}
