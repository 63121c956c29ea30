package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"futuresexec/internal/db/dbtest"
	"futuresexec/internal/models"
	"futuresexec/internal/order"
	"futuresexec/internal/positions"
	gormrepository "futuresexec/internal/repository/gorm"
	"futuresexec/internal/service"
	"futuresexec/internal/stack"
	"futuresexec/internal/stackhandler"
)

type runnerStub struct {
	ran []string
	err error
}

func (r *runnerStub) RunOperation(_ context.Context, name string) error {
	if name == "nope" {
		return fmt.Errorf("%w: %q", stackhandler.ErrUnknownOperation, name)
	}
	r.ran = append(r.ran, name)
	return r.err
}

type testServer struct {
	engine *gin.Engine
	store  *gormrepository.Store
	stacks stack.Set
	runner *runnerStub
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	store := gormrepository.New(dbtest.Open(t))
	if err := store.UpsertInstrumentContracts(context.Background(), &models.InstrumentContracts{
		InstrumentCode: "CRUDE_W", PricedContractID: "202409", ForwardContractID: "202412",
	}); err != nil {
		t.Fatalf("seed contracts: %v", err)
	}
	broker := stack.NewMemory(stack.NameBroker, nil)
	contract := stack.NewMemory(stack.NameContract, broker)
	set := stack.Set{
		Instrument: stack.NewMemory(stack.NameInstrument, contract),
		Contract:   contract,
		Broker:     broker,
	}
	pos := positions.New(store, nil, nil)
	runner := &runnerStub{}

	r := gin.New()
	(&StacksHandler{Stacks: set}).Register(r)
	(&RollStatesHandler{Book: pos}).Register(r)
	(&PositionsHandler{Repo: store, Breaks: pos}).Register(r)
	(&AlertsHandler{Repo: store}).Register(r)
	(&OpsHandler{Runner: runner}).Register(r)
	(&SystemSettingsHandler{Settings: &service.SystemSettingsService{Repo: store}}).Register(r)
	return &testServer{engine: r, store: store, stacks: set, runner: runner}
}

func (s *testServer) do(t *testing.T, method, path string, body any) (int, apiResponse) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	var resp apiResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode %s %s: %v body=%s", method, path, err, w.Body.String())
	}
	return w.Code, resp
}

func TestStacks_ListAndGet(t *testing.T) {
	s := newTestServer(t)
	id, err := s.stacks.Instrument.PutOrder(context.Background(), &order.Order{
		Grain:          order.GrainInstrument,
		StrategyName:   "carry",
		InstrumentCode: "CRUDE_W",
		Trade:          order.NewTrade(5),
		OrderType:      order.TypeBest,
	}, stack.PutOptions{})
	if err != nil {
		t.Fatalf("put: %v", err)
	}

	code, resp := s.do(t, http.MethodGet, "/api/stacks/instrument/orders?instrument=CRUDE_W", nil)
	if code != http.StatusOK {
		t.Fatalf("status=%d want=200", code)
	}
	items, _ := resp.Data.([]any)
	if len(items) != 1 {
		t.Fatalf("items=%v want one order", resp.Data)
	}
	if resp.Meta["total"] != float64(1) {
		t.Fatalf("meta=%v want total=1", resp.Meta)
	}

	code, resp = s.do(t, http.MethodGet, fmt.Sprintf("/api/stacks/instrument/orders/%d", id), nil)
	if code != http.StatusOK {
		t.Fatalf("status=%d want=200", code)
	}
	got, _ := resp.Data.(map[string]any)
	if got["strategy_name"] != "carry" {
		t.Fatalf("order=%v want carry", got)
	}

	if code, _ := s.do(t, http.MethodGet, "/api/stacks/instrument/orders/999", nil); code != http.StatusNotFound {
		t.Fatalf("missing order status=%d want=404", code)
	}
	if code, _ := s.do(t, http.MethodGet, "/api/stacks/nope/orders", nil); code != http.StatusNotFound {
		t.Fatalf("unknown stack status=%d want=404", code)
	}
}

func TestRollStates_Put(t *testing.T) {
	s := newTestServer(t)
	cases := []struct {
		name  string
		state string
		want  int
	}{
		{"unknown state", "Sideways", http.StatusBadRequest},
		{"forbidden without position", "Force", http.StatusConflict},
		{"allowed", "Passive", http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			code, resp := s.do(t, http.MethodPut, "/api/roll-states/CRUDE_W", map[string]string{"state": tc.state})
			if code != tc.want {
				t.Fatalf("status=%d want=%d message=%s", code, tc.want, resp.Message)
			}
		})
	}
	code, resp := s.do(t, http.MethodGet, "/api/roll-states/CRUDE_W", nil)
	view, _ := resp.Data.(map[string]any)
	if code != http.StatusOK || view["state"] != "Passive" {
		t.Fatalf("status=%d view=%v want Passive", code, view)
	}
}

func TestRollStates_AdjustedComplete(t *testing.T) {
	s := newTestServer(t)
	if code, _ := s.do(t, http.MethodPost, "/api/roll-states/CRUDE_W/adjusted-complete", nil); code != http.StatusConflict {
		t.Fatalf("status=%d want=409 before Roll_Adjusted", code)
	}
	if code, _ := s.do(t, http.MethodPut, "/api/roll-states/CRUDE_W", map[string]string{"state": "Roll_Adjusted"}); code != http.StatusOK {
		t.Fatalf("set Roll_Adjusted status=%d", code)
	}
	code, resp := s.do(t, http.MethodPost, "/api/roll-states/CRUDE_W/adjusted-complete", nil)
	view, _ := resp.Data.(map[string]any)
	if code != http.StatusOK || view["state"] != "No_Roll" {
		t.Fatalf("status=%d view=%v want No_Roll", code, view)
	}
}

func TestOps_Run(t *testing.T) {
	s := newTestServer(t)
	if code, _ := s.do(t, http.MethodPost, "/api/ops/process_fills", nil); code != http.StatusOK {
		t.Fatalf("status=%d want=200", code)
	}
	if code, _ := s.do(t, http.MethodPost, "/api/ops/nope", nil); code != http.StatusNotFound {
		t.Fatalf("unknown op status=%d want=404", code)
	}
	s.runner.err = fmt.Errorf("venue down")
	if code, _ := s.do(t, http.MethodPost, "/api/ops/process_fills", nil); code != http.StatusBadGateway {
		t.Fatalf("failing op status=%d want=502", code)
	}
	if len(s.runner.ran) != 2 {
		t.Fatalf("ran=%v want two runs", s.runner.ran)
	}
}

func TestSwitches(t *testing.T) {
	s := newTestServer(t)
	if code, _ := s.do(t, http.MethodPut, "/api/system-settings/switches/made.up", map[string]bool{"enabled": true}); code != http.StatusNotFound {
		t.Fatalf("unknown switch status=%d want=404", code)
	}
	if code, _ := s.do(t, http.MethodPut, "/api/system-settings/switches/stack.process_fills", map[string]string{}); code != http.StatusBadRequest {
		t.Fatalf("missing enabled status=%d want=400", code)
	}
	if code, _ := s.do(t, http.MethodPut, "/api/system-settings/switches/stack.process_fills", map[string]bool{"enabled": false}); code != http.StatusOK {
		t.Fatalf("put status=%d want=200", code)
	}
	_, resp := s.do(t, http.MethodGet, "/api/system-settings/switches/stack.process_fills", nil)
	got, _ := resp.Data.(map[string]any)
	if got["enabled"] != false {
		t.Fatalf("switch=%v want disabled", got)
	}
}

func TestAlerts_Ack(t *testing.T) {
	s := newTestServer(t)
	alert := &models.OperatorAlert{Level: "critical", Source: "stack_handler", Message: "stuck lock"}
	if err := s.store.InsertAlert(context.Background(), alert); err != nil {
		t.Fatalf("insert: %v", err)
	}
	code, resp := s.do(t, http.MethodGet, "/api/alerts?unacknowledged=true", nil)
	if code != http.StatusOK || resp.Meta["total"] != float64(1) {
		t.Fatalf("status=%d meta=%v want one alert", code, resp.Meta)
	}
	path := fmt.Sprintf("/api/alerts/%d/ack", alert.ID)
	if code, _ := s.do(t, http.MethodPost, path, nil); code != http.StatusOK {
		t.Fatalf("ack status=%d want=200", code)
	}
	if code, _ := s.do(t, http.MethodPost, path, nil); code != http.StatusNotFound {
		t.Fatalf("second ack status=%d want=404", code)
	}
}

func TestPositions_Breaks(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	_ = s.store.AddContractPosition(ctx, "CRUDE_W", "202409", 5)
	_ = s.store.AddStrategyPosition(ctx, "carry", "CRUDE_W", 3)
	code, resp := s.do(t, http.MethodGet, "/api/positions/breaks", nil)
	if code != http.StatusOK || resp.Meta["total"] != float64(1) {
		t.Fatalf("status=%d meta=%v want one break", code, resp.Meta)
	}
	if code, _ := s.do(t, http.MethodGet, "/api/positions/breaks/external", nil); code != http.StatusInternalServerError {
		t.Fatalf("external without broker status=%d want=500", code)
	}
}
