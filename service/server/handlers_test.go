package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/brojonat/mintdash/service/history"
	"github.com/brojonat/mintdash/service/lifecycle"
	natspkg "github.com/brojonat/mintdash/service/nats"
	"github.com/brojonat/mintdash/service/notify"
	"github.com/brojonat/mintdash/service/session"
	mintsolana "github.com/brojonat/mintdash/service/solana"
	"github.com/brojonat/mintdash/service/wallet"
	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSessions struct {
	session      session.Session
	connectErr   error
	disconnected bool
}

func (f *fakeSessions) Connect(ctx context.Context) (session.Session, error) {
	if f.connectErr != nil {
		return session.Session{}, f.connectErr
	}
	f.session.Connected = true
	return f.session, nil
}

func (f *fakeSessions) Disconnect(ctx context.Context) {
	f.disconnected = true
	f.session = session.Session{}
}

func (f *fakeSessions) Snapshot() session.Session {
	return f.session
}

func (f *fakeSessions) Address() (solana.PublicKey, error) {
	if !f.session.Connected {
		return solana.PublicKey{}, session.ErrNotConnected
	}
	return f.session.Address, nil
}

type fakeOperations struct {
	result   lifecycle.Result
	err      error
	balances []lifecycle.TokenBalanceEntry
	listErr  error
	mint     *mintsolana.MintInfo
	mintErr  error

	gotCreate lifecycle.CreateRequest
	gotMint   lifecycle.MintRequest
	gotSend   lifecycle.SendRequest
}

func (f *fakeOperations) Create(ctx context.Context, req lifecycle.CreateRequest) (lifecycle.Result, error) {
	f.gotCreate = req
	return f.result, f.err
}

func (f *fakeOperations) Mint(ctx context.Context, req lifecycle.MintRequest) (lifecycle.Result, error) {
	f.gotMint = req
	return f.result, f.err
}

func (f *fakeOperations) Send(ctx context.Context, req lifecycle.SendRequest) (lifecycle.Result, error) {
	f.gotSend = req
	return f.result, f.err
}

func (f *fakeOperations) ListTokenBalances(ctx context.Context) ([]lifecycle.TokenBalanceEntry, error) {
	return f.balances, f.listErr
}

func (f *fakeOperations) MintInfo(ctx context.Context, address string) (*mintsolana.MintInfo, error) {
	return f.mint, f.mintErr
}

type fakeHistory struct {
	records []history.TransactionRecord
}

func (f *fakeHistory) List(ctx context.Context, address solana.PublicKey) []history.TransactionRecord {
	return f.records
}

type fakeRecent struct {
	mints []string
	err   error
}

func (f *fakeRecent) Entries(ctx context.Context) ([]string, error) {
	return f.mints, f.err
}

type testServer struct {
	handler  http.Handler
	sessions *fakeSessions
	ops      *fakeOperations
	history  *fakeHistory
	recent   *fakeRecent
	sink     *notify.Sink
	sub      *natspkg.MockSubscriber
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	ts := &testServer{
		sessions: &fakeSessions{},
		ops:      &fakeOperations{},
		history:  &fakeHistory{},
		recent:   &fakeRecent{},
		sink:     notify.NewSink(time.Minute, nil, logger),
		sub:      natspkg.NewMockSubscriber(),
	}
	srv := New(":0", Dependencies{
		Sessions:      ts.sessions,
		Operations:    ts.ops,
		History:       ts.history,
		Recent:        ts.recent,
		Notifications: ts.sink,
		Subscriber:    ts.sub,
	}, nil, logger)
	ts.handler = srv.Handler()
	return ts
}

func (ts *testServer) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestSession_ConnectAndGet(t *testing.T) {
	ts := newTestServer(t)
	addr := solana.NewWallet().PublicKey()
	ts.sessions.session = session.Session{Address: addr, NativeBalance: decimal.RequireFromString("1.5")}

	rec := ts.do(t, http.MethodPost, "/api/v1/session", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeJSON(t, rec)
	assert.Equal(t, addr.String(), body["address"])
	assert.Equal(t, "1.5", body["native_balance"])
	assert.Equal(t, true, body["connected"])

	rec = ts.do(t, http.MethodGet, "/api/v1/session", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, addr.String(), decodeJSON(t, rec)["address"])
}

func TestSession_ConnectFailures(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"unavailable", fmt.Errorf("%w: hint", session.ErrWalletUnavailable), http.StatusServiceUnavailable, "wallet_unavailable"},
		{"rejected", wallet.ErrConnectionRejected, http.StatusForbidden, "connection_rejected"},
		{"other", errors.New("keyring locked"), http.StatusInternalServerError, "operation_failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t)
			ts.sessions.connectErr = tt.err

			rec := ts.do(t, http.MethodPost, "/api/v1/session", "")

			assert.Equal(t, tt.status, rec.Code)
			body := decodeJSON(t, rec)
			assert.Equal(t, tt.code, body["code"])
			assert.NotContains(t, body["error"], "keyring locked")

			n, ok := ts.sink.Current()
			require.True(t, ok)
			assert.Equal(t, notify.KindError, n.Kind)
		})
	}
}

func TestSession_Disconnect(t *testing.T) {
	ts := newTestServer(t)
	ts.sessions.session = session.Session{Address: solana.NewWallet().PublicKey(), Connected: true}

	rec := ts.do(t, http.MethodDelete, "/api/v1/session", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.True(t, ts.sessions.disconnected)

	rec = ts.do(t, http.MethodGet, "/api/v1/session", "")
	body := decodeJSON(t, rec)
	assert.Equal(t, false, body["connected"])
	assert.NotContains(t, body, "address")
}

func TestCreateMint(t *testing.T) {
	ts := newTestServer(t)
	mint := solana.NewWallet().PublicKey()
	ts.ops.result = lifecycle.Result{
		Operation: lifecycle.OpCreate,
		Mint:      mint,
		Signature: solana.Signature{1},
		Status:    "confirmed",
		Message:   "Created token DMO (Demo) with mint " + mint.String(),
	}

	rec := ts.do(t, http.MethodPost, "/api/v1/mints", `{"name":"Demo","symbol":"DMO","decimals":9}`)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, lifecycle.CreateRequest{Name: "Demo", Symbol: "DMO", Decimals: "9"}, ts.ops.gotCreate)
	body := decodeJSON(t, rec)
	assert.Equal(t, mint.String(), body["mint"])
	assert.Equal(t, "create", body["operation"])
	assert.NotContains(t, body, "amount")
}

func TestCreateMint_DecimalsAsString(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodPost, "/api/v1/mints", `{"name":"Demo","symbol":"DMO","decimals":"6"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "6", ts.ops.gotCreate.Decimals)
}

func TestMintSupply(t *testing.T) {
	ts := newTestServer(t)
	mint := solana.NewWallet().PublicKey()
	ts.ops.result = lifecycle.Result{
		Operation: lifecycle.OpMint,
		Mint:      mint,
		Amount:    decimal.RequireFromString("2.5"),
		BaseUnits: 2_500_000,
	}

	rec := ts.do(t, http.MethodPost, "/api/v1/mints/"+mint.String()+"/supply", `{"amount":"2.5"}`)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, lifecycle.MintRequest{Mint: mint.String(), Amount: "2.5"}, ts.ops.gotMint)
	body := decodeJSON(t, rec)
	assert.Equal(t, "2.5", body["amount"])
	assert.Equal(t, float64(2_500_000), body["base_units"])
}

func TestMintSupply_BadPathReachesOperation(t *testing.T) {
	ts := newTestServer(t)
	ts.ops.err = &lifecycle.OperationError{Op: lifecycle.OpMint, Code: lifecycle.CodeInvalidInput, Detail: "mint is not a valid address"}

	rec := ts.do(t, http.MethodPost, "/api/v1/mints/0OIl/supply", `{"amount":"1"}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_input", decodeJSON(t, rec)["code"])
	assert.Equal(t, "0OIl", ts.ops.gotMint.Mint)
}

func TestSend(t *testing.T) {
	ts := newTestServer(t)
	mint := solana.NewWallet().PublicKey().String()
	recipient := solana.NewWallet().PublicKey().String()

	rec := ts.do(t, http.MethodPost, "/api/v1/transfers",
		fmt.Sprintf(`{"mint":%q,"recipient":%q,"amount":3.25}`, mint, recipient))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, lifecycle.SendRequest{Mint: mint, Recipient: recipient, Amount: "3.25"}, ts.ops.gotSend)
}

func TestOperationErrorStatuses(t *testing.T) {
	tests := []struct {
		code   lifecycle.Code
		status int
	}{
		{lifecycle.CodeInvalidInput, http.StatusBadRequest},
		{lifecycle.CodeNotConnected, http.StatusConflict},
		{lifecycle.CodeOperationInFlight, http.StatusConflict},
		{lifecycle.CodeSigningRejected, http.StatusForbidden},
		{lifecycle.CodeSubmissionFailed, http.StatusBadGateway},
		{lifecycle.CodeConfirmationTimeout, http.StatusGatewayTimeout},
		{lifecycle.CodeOperationFailed, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			ts := newTestServer(t)
			ts.ops.err = &lifecycle.OperationError{
				Op:   lifecycle.OpSend,
				Code: tt.code,
				Err:  errors.New("rpc: node is behind"),
			}

			rec := ts.do(t, http.MethodPost, "/api/v1/transfers", `{"mint":"a","recipient":"b","amount":"1"}`)

			assert.Equal(t, tt.status, rec.Code)
			body := decodeJSON(t, rec)
			assert.Equal(t, string(tt.code), body["code"])
			assert.NotContains(t, body["error"], "node is behind")
		})
	}
}

func TestMalformedBody_NotifiesOnce(t *testing.T) {
	tests := []struct {
		name        string
		path        string
		body        string
		wantOp      string
		wantMessage string
	}{
		{
			name:        "invalid json",
			path:        "/api/v1/mints",
			body:        `{"name":"Demo",`,
			wantOp:      "create",
			wantMessage: "request body must be valid JSON",
		},
		{
			name:        "too large",
			path:        "/api/v1/transfers",
			body:        `{"amount":"` + strings.Repeat("9", 2<<20) + `"}`,
			wantOp:      "send",
			wantMessage: "request body too large",
		},
		{
			name:        "mint supply",
			path:        "/api/v1/mints/" + solana.NewWallet().PublicKey().String() + "/supply",
			body:        `[`,
			wantOp:      "mint",
			wantMessage: "request body must be valid JSON",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t)

			rec := ts.do(t, http.MethodPost, tt.path, tt.body)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			body := decodeJSON(t, rec)
			assert.Equal(t, "invalid_input", body["code"])
			assert.Contains(t, body["error"], tt.wantMessage)

			n, ok := ts.sink.Current()
			require.True(t, ok)
			assert.Equal(t, notify.KindError, n.Kind)
			assert.Equal(t, tt.wantOp, n.Operation)
			assert.Contains(t, n.Message, tt.wantMessage)
		})
	}
}

func TestAmountTextReachesOperation(t *testing.T) {
	tests := []struct {
		body string
		want string
	}{
		{`{"amount":"lots"}`, "lots"},
		{`{"amount":-1}`, "-1"},
		{`{"amount":true}`, "true"},
		{`{"amount":null}`, ""},
		{`{}`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.body, func(t *testing.T) {
			ts := newTestServer(t)
			ts.ops.err = &lifecycle.OperationError{Op: lifecycle.OpSend, Code: lifecycle.CodeInvalidInput}

			rec := ts.do(t, http.MethodPost, "/api/v1/transfers", tt.body)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tt.want, ts.ops.gotSend.Amount)
		})
	}
}

func TestDismissNotification(t *testing.T) {
	ts := newTestServer(t)
	ts.sink.Notify(context.Background(), notify.KindSuccess, "mint", "Minted 1 tokens")

	rec := ts.do(t, http.MethodDelete, "/api/v1/notification", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	_, ok := ts.sink.Current()
	assert.False(t, ok)
	assert.Equal(t, http.StatusNoContent, ts.do(t, http.MethodGet, "/api/v1/notification", "").Code)
}

func TestGetMint(t *testing.T) {
	ts := newTestServer(t)
	mint := solana.NewWallet().PublicKey()
	authority := solana.NewWallet().PublicKey()
	ts.ops.mint = &mintsolana.MintInfo{Address: mint, Decimals: 2, Supply: 1050, MintAuthority: &authority}

	rec := ts.do(t, http.MethodGet, "/api/v1/mints/"+mint.String(), "")

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeJSON(t, rec)
	assert.Equal(t, "10.5", body["supply"])
	assert.Equal(t, authority.String(), body["mint_authority"])
	assert.NotContains(t, body, "freeze_authority")
}

func TestGetMint_Errors(t *testing.T) {
	mint := solana.NewWallet().PublicKey().String()
	tests := []struct {
		err    error
		status int
	}{
		{fmt.Errorf("get mint: %w", mintsolana.ErrAccountNotFound), http.StatusNotFound},
		{fmt.Errorf("decode: %w", mintsolana.ErrInvalidAccountData), http.StatusUnprocessableEntity},
		{errors.New("timeout"), http.StatusBadGateway},
	}
	for _, tt := range tests {
		ts := newTestServer(t)
		ts.ops.mintErr = tt.err
		rec := ts.do(t, http.MethodGet, "/api/v1/mints/"+mint, "")
		assert.Equal(t, tt.status, rec.Code, tt.err.Error())
	}
}

func TestListTokenAccounts(t *testing.T) {
	ts := newTestServer(t)
	ts.ops.balances = []lifecycle.TokenBalanceEntry{{Mint: "M", Account: "A", Decimals: 2, UIBalance: decimal.RequireFromString("10")}}

	rec := ts.do(t, http.MethodGet, "/api/v1/token-accounts", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), decodeJSON(t, rec)["count"])

	ts.ops.listErr = fmt.Errorf("list: %w", lifecycle.ErrNotConnected)
	rec = ts.do(t, http.MethodGet, "/api/v1/token-accounts", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestListTransactions(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/v1/transactions", "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	ts.sessions.session = session.Session{Address: solana.NewWallet().PublicKey(), Connected: true}
	rec = ts.do(t, http.MethodGet, "/api/v1/transactions", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeJSON(t, rec)
	assert.Equal(t, float64(0), body["count"])
	assert.Equal(t, []interface{}{}, body["transactions"])

	ts.history.records = []history.TransactionRecord{{Signature: "sig", Kind: history.KindToken, Outcome: history.OutcomeConfirmed}}
	rec = ts.do(t, http.MethodGet, "/api/v1/transactions", "")
	body = decodeJSON(t, rec)
	assert.Equal(t, float64(1), body["count"])
}

func TestListRecentMints(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/v1/recent-mints", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []interface{}{}, decodeJSON(t, rec)["mints"])

	ts.recent.mints = []string{"b", "a"}
	rec = ts.do(t, http.MethodGet, "/api/v1/recent-mints", "")
	assert.Equal(t, []interface{}{"b", "a"}, decodeJSON(t, rec)["mints"])

	ts.recent.err = errors.New("disk")
	rec = ts.do(t, http.MethodGet, "/api/v1/recent-mints", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestGetNotification(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/v1/notification", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	ts.sink.Notify(context.Background(), notify.KindSuccess, "mint", "Minted 1 tokens of M")
	rec = ts.do(t, http.MethodGet, "/api/v1/notification", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeJSON(t, rec)
	assert.Equal(t, "success", body["kind"])
	assert.Equal(t, "Minted 1 tokens of M", body["message"])
}

func TestCORSPreflight(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodOptions, "/api/v1/transfers", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestValidateAddress(t *testing.T) {
	assert.NoError(t, validateAddress(solana.NewWallet().PublicKey().String()))
	assert.Error(t, validateAddress(""))
	assert.Error(t, validateAddress(strings.Repeat("A", 101)))
	assert.Error(t, validateAddress("abc\x00def"))
	assert.Error(t, validateAddress("abc; DROP TABLE"))
	assert.Error(t, validateAddress("0OIl"))
}

func TestStreamNotifications(t *testing.T) {
	ts := newTestServer(t)
	server := httptest.NewServer(ts.handler)
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	address := solana.NewWallet().PublicKey().String()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL+"/api/v1/stream/notifications?address="+address, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "event: connected\n", line)

	require.Eventually(t, func() bool { return ts.sub.Subscribers() == 1 }, time.Second, 5*time.Millisecond)

	ts.sub.Send(&natspkg.NotificationEvent{ID: "other", Address: solana.NewWallet().PublicKey().String()})
	ts.sub.Send(&natspkg.NotificationEvent{ID: "n1", Kind: "success", Address: address, Message: "done"})

	var dataLine string
	for {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		if strings.HasPrefix(line, "event: notification") {
			dataLine, err = reader.ReadString('\n')
			require.NoError(t, err)
			break
		}
	}

	var event natspkg.NotificationEvent
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(strings.TrimSpace(dataLine), "data: ")), &event))
	assert.Equal(t, "n1", event.ID)
	assert.Equal(t, "done", event.Message)

	cancel()
	require.Eventually(t, func() bool { return ts.sub.Subscribers() == 0 }, time.Second, 5*time.Millisecond)
}

func TestStreamNotifications_Disabled(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	srv := New(":0", Dependencies{Notifications: notify.NewSink(time.Minute, nil, logger)}, nil, logger)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/stream/notifications", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStreamNotifications_BadAddress(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodGet, "/api/v1/stream/notifications?address=0OIl", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 0, ts.sub.Subscribers())
}

func TestStreamNotifications_SubscribeError(t *testing.T) {
	ts := newTestServer(t)
	ts.sub.SetSubscribeError(errors.New("nats down"))

	rec := ts.do(t, http.MethodGet, "/api/v1/stream/notifications", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
