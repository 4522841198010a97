package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Oshkosh1922/edens-gates/internal/chain"
	"github.com/Oshkosh1922/edens-gates/internal/database"
	"github.com/Oshkosh1922/edens-gates/internal/feetx"
	"github.com/Oshkosh1922/edens-gates/internal/localstore"
	"github.com/Oshkosh1922/edens-gates/internal/metrics"
	"github.com/Oshkosh1922/edens-gates/internal/votes"
	"github.com/Oshkosh1922/edens-gates/internal/wallet"
	"github.com/Oshkosh1922/edens-gates/pkg/logger"
	"github.com/Oshkosh1922/edens-gates/pkg/testutil"
)

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func newPlainAPI(t *testing.T) (http.Handler, *database.MemoryRepository, database.Founder) {
	t.Helper()
	store, err := localstore.Open(context.Background(), filepath.Join(t.TempDir(), "state.db"), logger.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	repo := database.NewMemoryRepository()
	founder := repo.AddFounder(database.Founder{Name: "Ada", Status: database.FounderApproved, IsActive: true})
	repo.AddFounder(database.Founder{Name: "Hidden", Status: database.FounderPending, IsActive: true})

	coord := votes.NewCoordinator(votes.Config{
		Repo:        repo,
		Ledger:      store.Ledger(),
		Journal:     store,
		Fingerprint: "fp",
		Logger:      logger.NewNop(),
	})
	h := NewRouter(Config{
		Voter:   coord,
		Repo:    repo,
		Metrics: metrics.New(),
		Logger:  logger.NewNop(),
	})
	return h, repo, founder
}

func TestHealthAndMetrics(t *testing.T) {
	h, _, _ := newPlainAPI(t)
	rec := do(t, h, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = do(t, h, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "edens_gates_http_requests_total")
}

func TestVoteFlowWithoutWallet(t *testing.T) {
	h, repo, founder := newPlainAPI(t)

	rec := do(t, h, http.MethodGet, "/api/founders", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list []database.FounderWithVotes
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1, "only approved active founders are listed")
	assert.Equal(t, int64(0), list[0].VoteCount)

	rec = do(t, h, http.MethodPost, "/api/founders/"+founder.ID+"/votes", "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var receipt votes.Receipt
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &receipt))
	assert.Equal(t, "Vote recorded. Thanks for supporting a founder.", receipt.Message)
	assert.Equal(t, int64(1), receipt.VoteCount)
	assert.Len(t, repo.Votes(), 1)

	rec = do(t, h, http.MethodPost, "/api/founders/"+founder.ID+"/votes", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), `"code":"already_voted"`)

	rec = do(t, h, http.MethodGet, "/api/founders", "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Equal(t, int64(1), list[0].VoteCount)
}

func TestFoundersServesStaleTally(t *testing.T) {
	h, repo, _ := newPlainAPI(t)
	require.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/api/founders", "").Code)

	repo.ErrorOnNextCall = errors.New("offline")
	rec := do(t, h, http.MethodGet, "/api/founders", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "true", rec.Header().Get("X-Data-Stale"))
}

func TestWinners(t *testing.T) {
	h, repo, founder := newPlainAPI(t)

	rec := do(t, h, http.MethodGet, "/api/winners", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	repo.AddWinner(founder.ID, 1)
	rec = do(t, h, http.MethodGet, "/api/winners", "")
	var winners []database.Winner
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &winners))
	require.Len(t, winners, 1)
	require.NotNil(t, winners[0].Founder)
	assert.Equal(t, "Ada", winners[0].Founder.Name)

	repo.ErrorOnNextCall = errors.New("offline")
	rec = do(t, h, http.MethodGet, "/api/winners", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestWalletEndpointsWhenDisabled(t *testing.T) {
	h, _, _ := newPlainAPI(t)

	rec := do(t, h, http.MethodGet, "/api/wallet", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"enabled":false`)

	rec = do(t, h, http.MethodPost, "/api/wallet/connect", "")
	assert.Equal(t, http.StatusPreconditionFailed, rec.Code)
	assert.Contains(t, rec.Body.String(), "wallet_disabled")

	rec = do(t, h, http.MethodPost, "/api/wallet/select", `{"adapter":""}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/wallet/select", `{"wallet":"x"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWalletConnectAndAdapters(t *testing.T) {
	key := testutil.NewKey()
	registry := wallet.NewRegistry(wallet.RegistryConfig{
		Static: []wallet.Adapter{wallet.NewKeypairAdapter("Local", key, logger.NewNop())},
		Logger: logger.NewNop(),
	})
	session := wallet.NewSession(wallet.SessionConfig{
		Enabled:  true,
		Registry: registry,
		RPC:      testutil.NewMockLedger(),
		Logger:   logger.NewNop(),
	})
	h := NewRouter(Config{Session: session, Registry: registry, Logger: logger.NewNop()})

	rec := do(t, h, http.MethodGet, "/api/wallet/adapters", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"name":"Local"`)

	rec = do(t, h, http.MethodPost, "/api/wallet/connect", `{"adapter":"Nope"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/wallet/connect", `{"adapter":"Local"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var view struct {
		Connected    bool   `json:"connected"`
		Address      string `json:"address"`
		ShortAddress string `json:"shortAddress"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.True(t, view.Connected)
	assert.Equal(t, key.PublicKey().String(), view.Address)
	assert.Equal(t, wallet.ShortAddress(view.Address), view.ShortAddress)

	rec = do(t, h, http.MethodPost, "/api/wallet/disconnect", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"connected":false`)
}

type stubVoter struct {
	err   error
	tally *votes.Tally
}

func (s *stubVoter) CastVote(context.Context, string) (*votes.Receipt, error) { return nil, s.err }

func (s *stubVoter) Tally() *votes.Tally { return s.tally }

func TestVoteErrorMapping(t *testing.T) {
	sig := testutil.SignatureFor([]byte("fee"))
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"pending", votes.ErrVotePending, http.StatusConflict, "vote_pending"},
		{"already voted", votes.ErrAlreadyVoted, http.StatusConflict, "already_voted"},
		{"not connected", fmt.Errorf("%w: %w", votes.ErrTransfer, wallet.ErrNotConnected), http.StatusPreconditionFailed, "wallet_not_connected"},
		{"bad config", fmt.Errorf("amount: %w", feetx.ErrInvalidConfiguration), http.StatusUnprocessableEntity, "invalid_configuration"},
		{"transfer", fmt.Errorf("%w: boom", votes.ErrTransfer), http.StatusBadGateway, "transfer_failed"},
		{"rejected", fmt.Errorf("%w: %w", votes.ErrTransfer, wallet.ErrUserRejected), http.StatusForbidden, "user_rejected"},
		{"indeterminate", &votes.IndeterminateError{FounderID: "f", Signature: sig, Err: chain.ErrConfirmationTimeout}, http.StatusGatewayTimeout, "indeterminate"},
		{"unsettled fee", &votes.UnsettledFeeError{FounderID: "f", Signature: sig}, http.StatusConflict, "fee_unsettled"},
		{"unrecorded", &votes.UnrecordedFeeError{FounderID: "f", Signature: sig, Err: errors.New("db down")}, http.StatusInternalServerError, "unrecorded_fee"},
		{"store", fmt.Errorf("%w: %w", votes.ErrDataStore, errors.New("x")), http.StatusServiceUnavailable, "data_store_unavailable"},
		{"unknown founder", database.ErrUnknownFounder, http.StatusNotFound, "not_found"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := NewRouter(Config{Voter: &stubVoter{err: tc.err, tally: votes.NewTally()}, Logger: logger.NewNop()})
			rec := do(t, h, http.MethodPost, "/api/founders/f/votes", "")
			require.Equal(t, tc.status, rec.Code)

			var body errorBody
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tc.code, body.Code)
			switch tc.code {
			case "unrecorded_fee", "indeterminate", "fee_unsettled":
				assert.Equal(t, sig.String(), body.Signature)
			default:
				assert.Empty(t, body.Signature)
			}
		})
	}
}

func TestRateLimitAndCORS(t *testing.T) {
	h := NewRouter(Config{
		Logger:      logger.NewNop(),
		RateLimit:   0.001,
		Burst:       1,
		CORSOrigins: []string{"http://ui.local"},
	})

	req := httptest.NewRequest(http.MethodOptions, "/api/founders/x/votes", nil)
	req.Header.Set("Origin", "http://ui.local")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://ui.local", rec.Header().Get("Access-Control-Allow-Origin"))

	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/api/wallet", "").Code)
	assert.Equal(t, http.StatusTooManyRequests, do(t, h, http.MethodGet, "/api/wallet", "").Code)
}

func TestEventStream(t *testing.T) {
	h, _, founder := newPlainAPI(t)
	srv := httptest.NewServer(h)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/api/events", nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var first Event
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, EventWallet, first.Type)

	resp, err := http.Post(srv.URL+"/api/founders/"+founder.ID+"/votes", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var ev struct {
		Type string        `json:"type"`
		Data votes.Receipt `json:"data"`
	}
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, EventVote, ev.Type)
	assert.Equal(t, founder.ID, ev.Data.FounderID)
}

func TestHubDropsForSlowSubscribers(t *testing.T) {
	hub := NewHub(logger.NewNop())
	ch, unsubscribe := hub.subscribe()
	assert.Equal(t, 1, hub.Subscribers())

	for i := 0; i < subscriberQ+5; i++ {
		hub.Publish(Event{Type: EventVote, Data: i})
	}
	assert.Len(t, ch, subscriberQ)

	unsubscribe()
	assert.Zero(t, hub.Subscribers())
}

type flippingSession struct {
	wallet.Session
	mu sync.Mutex
	st wallet.Status
}

func (s *flippingSession) Status() wallet.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st
}

func (s *flippingSession) set(st wallet.Status) {
	s.mu.Lock()
	s.st = st
	s.mu.Unlock()
}

func TestWatchSessionPublishesChanges(t *testing.T) {
	hub := NewHub(logger.NewNop())
	ch, unsubscribe := hub.subscribe()
	defer unsubscribe()

	session := &flippingSession{st: wallet.Status{Enabled: true, State: wallet.StateConnected, Connected: true, Address: "x"}}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.WatchSession(ctx, session, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)

	session.set(wallet.Status{Enabled: true, State: wallet.StateDisconnected})
	select {
	case ev := <-ch:
		assert.Equal(t, EventWallet, ev.Type)
		view := ev.Data.(walletView)
		assert.False(t, view.Connected)
	case <-time.After(2 * time.Second):
		t.Fatal("status change was not published")
	}
}
