package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"proppilot/internal/executor"
	"proppilot/internal/store/decisionlog"
	"proppilot/internal/types"

	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*Server, *decisionlog.Store, *executor.Paper) {
	t.Helper()
	logs, err := decisionlog.NewStore(filepath.Join(t.TempDir(), "decisions.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = logs.Close() })

	exec := executor.NewPaper(100000, nil)
	srv, err := NewServer(ServerConfig{Logs: logs, Exec: exec})
	require.NoError(t, err)
	return srv, logs, exec
}

func doRequest(t *testing.T, srv *Server, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)
	return w
}

func TestHealthz(t *testing.T) {
	srv, _, _ := newTestServer(t)
	w := doRequest(t, srv, http.MethodGet, "/healthz")
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestListDecisionsFiltersBySymbol(t *testing.T) {
	srv, logs, _ := newTestServer(t)
	ctx := context.Background()
	for _, sym := range []string{"XAUUSD", "EURUSD", "XAUUSD"} {
		rec := &decisionlog.Record{
			Symbol:   sym,
			Decision: types.Decision{Symbol: sym, Action: types.ActionHold, Rule: "default_hold"},
		}
		require.NoError(t, logs.Append(ctx, rec))
	}

	w := doRequest(t, srv, http.MethodGet, "/api/decisions?symbol=XAUUSD")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Decisions []decisionlog.Record `json:"decisions"`
		Count     int                  `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, 2, body.Count)
	for _, rec := range body.Decisions {
		require.Equal(t, "XAUUSD", rec.Symbol)
	}
}

func TestListDecisionsRejectsBadLimit(t *testing.T) {
	srv, _, _ := newTestServer(t)
	w := doRequest(t, srv, http.MethodGet, "/api/decisions?limit=zero")
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetDecisionByTraceID(t *testing.T) {
	srv, logs, _ := newTestServer(t)
	rec := &decisionlog.Record{
		Symbol:   "XAUUSD",
		Decision: types.Decision{Symbol: "XAUUSD", Action: types.ActionClose, Rule: "ev_exit"},
	}
	require.NoError(t, logs.Append(context.Background(), rec))

	w := doRequest(t, srv, http.MethodGet, "/api/decisions/"+rec.TraceID)
	require.Equal(t, http.StatusOK, w.Code)

	var got decisionlog.Record
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	require.Equal(t, rec.TraceID, got.TraceID)
	require.Equal(t, "ev_exit", got.Decision.Rule)

	w = doRequest(t, srv, http.MethodGet, "/api/decisions/no-such-trace")
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestPositionsAndAccount(t *testing.T) {
	srv, _, exec := newTestServer(t)
	spec := types.BrokerSpec{
		Symbol: "XAUUSD", AssetClass: types.AssetCommodity,
		MinLot: 0.01, MaxLot: 50, LotStep: 0.01, PointValue: 100,
	}
	dec := types.Decision{
		Symbol: "XAUUSD", Action: types.ActionOpen, Side: types.SideLong, Lots: 0.5,
	}
	fill := executor.Fill{Price: 2400, Spec: spec, RiskBudgetUSD: 2000, Now: time.Now()}
	require.NoError(t, exec.Apply(context.Background(), dec, fill))

	w := doRequest(t, srv, http.MethodGet, "/api/positions")
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Positions []types.PositionSnapshot `json:"positions"`
		Count     int                      `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, 1, body.Count)
	require.Equal(t, "XAUUSD", body.Positions[0].Symbol)
	require.InDelta(t, 0.5, body.Positions[0].Lots, 1e-9)

	w = doRequest(t, srv, http.MethodGet, "/api/account")
	require.Equal(t, http.StatusOK, w.Code)
	var acc types.AccountSnapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &acc))
	require.InDelta(t, 100000, acc.Balance, 1e-9)
	require.Equal(t, 1, acc.OpenPositions)
}
