package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"

	"github.com/MRAlirad/ccip-rebase-token/core/events"
	"github.com/MRAlirad/ccip-rebase-token/crypto"
	"github.com/MRAlirad/ccip-rebase-token/native/rebase"
	"github.com/MRAlirad/ccip-rebase-token/services/rebased/api"
	"github.com/MRAlirad/ccip-rebase-token/services/rebased/journal"
	"github.com/MRAlirad/ccip-rebase-token/services/rebased/ledger"
	rbmw "github.com/MRAlirad/ccip-rebase-token/services/rebased/middleware"
	"github.com/MRAlirad/ccip-rebase-token/services/rebased/stream"
	"github.com/MRAlirad/ccip-rebase-token/storage"
)

const testSecret = "test-secret"

func addr(b byte) crypto.Address {
	return crypto.MustNewAddress(crypto.HolderPrefix, bytes.Repeat([]byte{b}, crypto.AddressLength))
}

func tokens(n int64) string {
	return new(big.Int).Mul(big.NewInt(n), rebase.Precision).String()
}

type harness struct {
	t      *testing.T
	server *httptest.Server
	clock  *atomic.Int64
	owner  crypto.Address
	minter crypto.Address
	hub    *stream.Hub
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{t: t, clock: &atomic.Int64{}, owner: addr(0xA0), minter: addr(0xB0)}
	h.clock.Store(1_700_000_000)

	db, err := journal.Open("sqlite", fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()))
	require.NoError(t, err)
	j, err := journal.New(db, nil)
	require.NoError(t, err)
	h.hub = stream.NewHub(16, nil)

	l, err := ledger.New(storage.NewMemDB(),
		ledger.WithSink(events.NewFanout(j, h.hub)),
		ledger.WithClock(func() int64 { return h.clock.Load() }),
	)
	require.NoError(t, err)
	require.NoError(t, l.Genesis(context.Background(), rebase.Genesis{
		Owner:       h.owner,
		GlobalRate:  rebase.DefaultGlobalRate,
		MintBurners: []crypto.Address{h.minter},
	}))

	srv := New(Config{
		Ledger:   l,
		Events:   j,
		Stream:   h.hub,
		Auth:     rbmw.NewAuthenticator(rbmw.AuthConfig{HMACSecret: testSecret, Issuer: "rebased"}, nil),
		Registry: prometheus.NewRegistry(),
	})
	h.server = httptest.NewServer(srv.Handler())
	t.Cleanup(h.server.Close)
	return h
}

func (h *harness) token(who crypto.Address) string {
	h.t.Helper()
	token, err := rbmw.IssueToken(testSecret, who, "rebased", "", time.Hour)
	require.NoError(h.t, err)
	return token
}

func (h *harness) do(method, path string, as *crypto.Address, body interface{}, headers map[string]string) (int, []byte) {
	h.t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(h.t, err)
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequest(method, h.server.URL+path, reader)
	require.NoError(h.t, err)
	req.Header.Set("Content-Type", "application/json")
	if as != nil {
		req.Header.Set("Authorization", "Bearer "+h.token(*as))
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(h.t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(h.t, err)
	return resp.StatusCode, data
}

func errorCode(t *testing.T, data []byte) string {
	t.Helper()
	var body api.ErrorBody
	require.NoError(t, json.Unmarshal(data, &body))
	return body.Error.Code
}

func TestMintAccrueAndTransfer(t *testing.T) {
	h := newHarness(t)
	alice, bob := addr(0x01), addr(0x02)

	status, data := h.do(http.MethodPost, "/v1/mint", &h.minter, api.MintRequest{To: alice.String(), Amount: tokens(1_000_000)}, nil)
	require.Equal(t, http.StatusOK, status, string(data))

	h.clock.Add(1000)
	status, data = h.do(http.MethodGet, "/v1/accounts/"+alice.String()+"/balance", nil, nil, nil)
	require.Equal(t, http.StatusOK, status)
	var balance api.Value
	require.NoError(t, json.Unmarshal(data, &balance))
	require.Equal(t, tokens(1_000_050), balance.Value)

	status, data = h.do(http.MethodPost, "/v1/transfer", &alice, api.TransferRequest{To: bob.String(), Amount: tokens(100)}, nil)
	require.Equal(t, http.StatusOK, status, string(data))
	var receipt api.Receipt
	require.NoError(t, json.Unmarshal(data, &receipt))
	require.Equal(t, tokens(100), receipt.Amount)
	require.Len(t, receipt.Accruals, 1)
	require.Equal(t, alice.String(), receipt.Accruals[0].Account)
	require.Equal(t, tokens(50), receipt.Accruals[0].Interest)

	status, data = h.do(http.MethodGet, "/v1/accounts/"+bob.String(), nil, nil, nil)
	require.Equal(t, http.StatusOK, status)
	var account api.Account
	require.NoError(t, json.Unmarshal(data, &account))
	require.Equal(t, tokens(100), account.Principal)
	require.Equal(t, rebase.DefaultGlobalRate.String(), account.Rate)

	status, data = h.do(http.MethodGet, "/v1/protocol", nil, nil, nil)
	require.Equal(t, http.StatusOK, status)
	var protocol api.Protocol
	require.NoError(t, json.Unmarshal(data, &protocol))
	require.Equal(t, tokens(1_000_050), protocol.PrincipalSupply)
	require.Equal(t, "decrease", protocol.Direction)
}

func TestErrorMapping(t *testing.T) {
	h := newHarness(t)
	alice := addr(0x01)

	status, data := h.do(http.MethodPost, "/v1/mint", nil, api.MintRequest{To: alice.String(), Amount: "1"}, nil)
	require.Equal(t, http.StatusUnauthorized, status)
	require.Equal(t, "unauthenticated", errorCode(t, data))

	status, data = h.do(http.MethodPost, "/v1/mint", &alice, api.MintRequest{To: alice.String(), Amount: "1"}, nil)
	require.Equal(t, http.StatusForbidden, status)
	require.Equal(t, codeUnauthorized, errorCode(t, data))

	status, data = h.do(http.MethodPost, "/v1/mint", &h.minter, api.MintRequest{To: alice.String(), Amount: "-5"}, nil)
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, codeInvalidAmount, errorCode(t, data))

	status, data = h.do(http.MethodPost, "/v1/mint", &h.minter, api.MintRequest{To: "nope", Amount: "5"}, nil)
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, codeInvalidAddress, errorCode(t, data))

	status, data = h.do(http.MethodPost, "/v1/transfer", &alice, api.TransferRequest{To: h.owner.String(), Amount: "5"}, nil)
	require.Equal(t, http.StatusUnprocessableEntity, status)
	require.Equal(t, codeInsufficientBalance, errorCode(t, data))

	higher := new(big.Int).Add(rebase.DefaultGlobalRate, big.NewInt(1)).String()
	status, data = h.do(http.MethodPost, "/v1/rate", &h.owner, api.RateRequest{Rate: higher}, nil)
	require.Equal(t, http.StatusConflict, status)
	require.Equal(t, codeRateDirection, errorCode(t, data))

	status, data = h.do(http.MethodPost, "/v1/pause", &h.owner, api.PauseRequest{Paused: true}, nil)
	require.Equal(t, http.StatusOK, status, string(data))
	status, data = h.do(http.MethodPost, "/v1/mint", &h.minter, api.MintRequest{To: alice.String(), Amount: "5"}, nil)
	require.Equal(t, http.StatusServiceUnavailable, status)
	require.Equal(t, codePaused, errorCode(t, data))
}

func TestIdempotencyKeyReplays(t *testing.T) {
	h := newHarness(t)
	alice := addr(0x01)
	headers := map[string]string{api.IdempotencyHeader: "mint-1"}

	status, _ := h.do(http.MethodPost, "/v1/mint", &h.minter, api.MintRequest{To: alice.String(), Amount: tokens(10)}, headers)
	require.Equal(t, http.StatusOK, status)
	status, data := h.do(http.MethodPost, "/v1/mint", &h.minter, api.MintRequest{To: alice.String(), Amount: tokens(10)}, headers)
	require.Equal(t, http.StatusOK, status)
	var receipt api.Receipt
	require.NoError(t, json.Unmarshal(data, &receipt))
	require.True(t, receipt.Replayed)

	status, data = h.do(http.MethodGet, "/v1/accounts/"+alice.String()+"/principal", nil, nil, nil)
	require.Equal(t, http.StatusOK, status)
	var principal api.Value
	require.NoError(t, json.Unmarshal(data, &principal))
	require.Equal(t, tokens(10), principal.Value)

	status, data = h.do(http.MethodPost, "/v1/mint", &h.minter, api.MintRequest{To: alice.String(), Amount: tokens(11)}, headers)
	require.Equal(t, http.StatusConflict, status)
	require.Equal(t, codeConflict, errorCode(t, data))
}

func TestRealizeAcceptsEmptyChunkedBody(t *testing.T) {
	l, err := ledger.New(storage.NewMemDB(), ledger.WithClock(func() int64 { return 1_700_000_000 }))
	require.NoError(t, err)
	owner := addr(0xA0)
	require.NoError(t, l.Genesis(context.Background(), rebase.Genesis{Owner: owner}))
	srv := New(Config{Ledger: l, Registry: prometheus.NewRegistry()})

	for name, body := range map[string]string{"empty": "", "account omitted": "{}"} {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/v1/realize", strings.NewReader(body))
			req.ContentLength = -1
			req = req.WithContext(rbmw.WithCaller(req.Context(), owner))
			rec := httptest.NewRecorder()
			srv.Realize(rec, req)
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		})
	}

	req := httptest.NewRequest(http.MethodPost, "/v1/realize", strings.NewReader("{"))
	req = req.WithContext(rbmw.WithCaller(req.Context(), owner))
	rec := httptest.NewRecorder()
	srv.Realize(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAllowanceAndCapabilities(t *testing.T) {
	h := newHarness(t)
	alice, spender, carol := addr(0x01), addr(0x03), addr(0x04)

	status, _ := h.do(http.MethodPost, "/v1/mint", &h.minter, api.MintRequest{To: alice.String(), Amount: tokens(10)}, nil)
	require.Equal(t, http.StatusOK, status)
	status, _ = h.do(http.MethodPost, "/v1/approve", &alice, api.ApproveRequest{Spender: spender.String(), Amount: tokens(4)}, nil)
	require.Equal(t, http.StatusOK, status)

	status, data := h.do(http.MethodPost, "/v1/transfer-from", &spender, api.TransferFromRequest{From: alice.String(), To: carol.String(), Amount: tokens(5)}, nil)
	require.Equal(t, http.StatusUnprocessableEntity, status)
	require.Equal(t, codeInsufficientAllow, errorCode(t, data))

	status, _ = h.do(http.MethodPost, "/v1/transfer-from", &spender, api.TransferFromRequest{From: alice.String(), To: carol.String(), Amount: tokens(3)}, nil)
	require.Equal(t, http.StatusOK, status)
	status, data = h.do(http.MethodGet, "/v1/allowances/"+alice.String()+"/"+spender.String(), nil, nil, nil)
	require.Equal(t, http.StatusOK, status)
	var allowance api.Allowance
	require.NoError(t, json.Unmarshal(data, &allowance))
	require.Equal(t, tokens(1), allowance.Amount)

	status, data = h.do(http.MethodPost, "/v1/capabilities/grant", &h.owner, api.CapabilityRequest{Account: carol.String(), Capability: "rate_admin"}, nil)
	require.Equal(t, http.StatusOK, status, string(data))
	var caps api.Capabilities
	require.NoError(t, json.Unmarshal(data, &caps))
	require.Equal(t, []string{"rate_admin"}, caps.Capabilities)

	status, data = h.do(http.MethodPost, "/v1/capabilities/grant", &h.owner, api.CapabilityRequest{Account: carol.String(), Capability: "root"}, nil)
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, codeBadRequest, errorCode(t, data))

	status, _ = h.do(http.MethodPost, "/v1/rate", &carol, api.RateRequest{Rate: "1"}, nil)
	require.Equal(t, http.StatusOK, status)
}

func TestListEventsFiltersByAccount(t *testing.T) {
	h := newHarness(t)
	alice, bob := addr(0x01), addr(0x02)
	for _, who := range []crypto.Address{alice, bob} {
		status, _ := h.do(http.MethodPost, "/v1/mint", &h.minter, api.MintRequest{To: who.String(), Amount: tokens(1)}, nil)
		require.Equal(t, http.StatusOK, status)
	}

	status, data := h.do(http.MethodGet, "/v1/events?account="+bob.Hex()+"&type="+events.TypeMint, nil, nil, nil)
	require.Equal(t, http.StatusOK, status, string(data))
	var page api.Events
	require.NoError(t, json.Unmarshal(data, &page))
	require.Len(t, page.Events, 1)
	require.Equal(t, bob.String(), page.Events[0].Attributes["to"])
	require.Equal(t, page.Events[0].Seq, page.Next)

	status, _ = h.do(http.MethodGet, "/v1/events?limit=abc", nil, nil, nil)
	require.Equal(t, http.StatusBadRequest, status)
}

func TestEventStreamDeliversCommittedEvents(t *testing.T) {
	h := newHarness(t)
	alice := addr(0x01)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(h.server.URL, "http") + "/v1/events/ws?account=" + alice.String()
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")
	require.Eventually(t, func() bool { return h.hub.Subscribers() == 1 }, time.Second, 10*time.Millisecond)

	status, _ := h.do(http.MethodPost, "/v1/mint", &h.minter, api.MintRequest{To: alice.String(), Amount: tokens(2)}, nil)
	require.Equal(t, http.StatusOK, status)

	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	var ev api.Event
	require.NoError(t, json.Unmarshal(data, &ev))
	require.Equal(t, events.TypeMint, ev.Type)
	require.Equal(t, tokens(2), ev.Attributes["amount"])
}

func TestHealthAndMetrics(t *testing.T) {
	h := newHarness(t)
	status, data := h.do(http.MethodGet, "/healthz", nil, nil, nil)
	require.Equal(t, http.StatusOK, status)
	require.Contains(t, string(data), "ok")

	status, _ = h.do(http.MethodGet, "/metrics", nil, nil, nil)
	require.Equal(t, http.StatusOK, status)
}
