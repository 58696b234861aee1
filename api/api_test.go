package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/ballot"
	"github.com/xraph/ballot/api"
	"github.com/xraph/ballot/store/memory"
	tokenmem "github.com/xraph/ballot/token/memory"
	"github.com/xraph/ballot/types"
)

const (
	owner  = "0x00000000000000000000000000000000000000a1"
	system = "0x00000000000000000000000000000000000000f0"
	alice  = "0x00000000000000000000000000000000000000b1"
)

type fixture struct {
	server *api.Server
	token  *tokenmem.Token
	clock  *clock.Mock
	reg    *prometheus.Registry
}

func newFixture(t *testing.T, opts ...api.Option) *fixture {
	t.Helper()
	f := &fixture{
		token: tokenmem.New(types.DefaultUnit),
		clock: clock.NewMock(),
		reg:   prometheus.NewRegistry(),
	}
	f.clock.Set(time.Date(2026, time.October, 10, 12, 0, 0, 0, time.UTC))

	engine, err := ballot.New(memory.New(), f.token.Session(system), owner,
		types.MustParseUnits("5", 18), ballot.WithClock(f.clock))
	require.NoError(t, err)
	require.NoError(t, engine.Start(context.Background()))
	t.Cleanup(func() { _ = engine.Stop() })

	opts = append([]api.Option{api.WithMetrics(f.reg)}, opts...)
	f.server = api.NewServer(engine, opts...)
	return f
}

type envelope struct {
	Data  json.RawMessage  `json:"data"`
	Error *api.ErrorDetail `json:"error"`
}

func (f *fixture) do(t *testing.T, method, path, caller, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if caller != "" {
		req.Header.Set(api.HeaderCaller, caller)
	}
	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, req)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec, env
}

func TestRegisterAndVote(t *testing.T) {
	f := newFixture(t)

	rec, env := f.do(t, http.MethodPost, "/projects", alice, `{"name":"Solar"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var p struct {
		ID   uint64 `json:"id"`
		Name string `json:"name"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &p))
	assert.Equal(t, uint64(0), p.ID)
	assert.NotEmpty(t, rec.Header().Get(api.HeaderRequestID))

	rec, _ = f.do(t, http.MethodPost, "/projects/0/votes", alice, "")
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec, env = f.do(t, http.MethodPost, "/projects/0/votes", alice, "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, api.CodeAlreadyVoted, env.Error.Code)

	rec, env = f.do(t, http.MethodGet, "/voters/"+alice+"/projects/0", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"voter":"`+alice+`","project_id":0,"voted":true}`, string(env.Data))

	rec, env = f.do(t, http.MethodGet, "/voters/"+alice, "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"address":"`+alice+`","total_votes":1,"free_votes_this_month":1}`, string(env.Data))
}

func TestErrorMapping(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name   string
		method string
		path   string
		caller string
		body   string
		status int
		code   string
	}{
		{"unknown project", http.MethodPost, "/projects/10/votes", alice, "", http.StatusNotFound, api.CodeInvalidProject},
		{"bad project id", http.MethodGet, "/projects/abc", "", "", http.StatusBadRequest, api.CodeInvalidArgument},
		{"anonymous vote", http.MethodPost, "/projects/0/votes", "", "", http.StatusUnauthorized, api.CodeUnauthenticated},
		{"non-owner withdraw", http.MethodPost, "/fees/withdrawals", alice, "", http.StatusForbidden, api.CodePermissionDenied},
		{"non-owner fee update", http.MethodPut, "/fees", alice, `{"amount":"1"}`, http.StatusForbidden, api.CodePermissionDenied},
		{"bad fee amount", http.MethodPut, "/fees", owner, `{"amount":"1.2.3"}`, http.StatusBadRequest, api.CodeInvalidArgument},
		{"bad limit", http.MethodGet, "/projects?limit=-1", "", "", http.StatusBadRequest, api.CodeInvalidArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, env := f.do(t, tt.method, tt.path, tt.caller, tt.body)
			assert.Equal(t, tt.status, rec.Code)
			require.NotNil(t, env.Error)
			assert.Equal(t, tt.code, env.Error.Code)
		})
	}
}

func TestBillableVoteNeedsAllowance(t *testing.T) {
	f := newFixture(t)
	for range 4 {
		rec, _ := f.do(t, http.MethodPost, "/projects", owner, `{"name":"p"}`)
		require.Equal(t, http.StatusCreated, rec.Code)
	}
	for i := range 3 {
		rec, _ := f.do(t, http.MethodPost, "/projects/"+strconv.Itoa(i)+"/votes", alice, "")
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec, env := f.do(t, http.MethodPost, "/projects/3/votes", alice, "")
	assert.Equal(t, http.StatusPaymentRequired, rec.Code)
	assert.Equal(t, api.CodeFeeDeclined, env.Error.Code)

	fee := types.MustParseUnits("5", 18)
	f.token.Mint(alice, fee)
	f.token.Approve(alice, system, fee)

	rec, _ = f.do(t, http.MethodPost, "/projects/3/votes", alice, "")
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec, env = f.do(t, http.MethodGet, "/fees", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var view struct {
		TokenFee  string `json:"token_fee"`
		Collected string `json:"collected"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &view))
	assert.Equal(t, "5 USDT", view.TokenFee)
	assert.Equal(t, fee.String(), view.Collected)

	rec, _ = f.do(t, http.MethodPost, "/fees/withdrawals", owner, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, fee, f.token.Balance(owner))
}

func TestOwnerUpdatesFee(t *testing.T) {
	f := newFixture(t)

	rec, _ := f.do(t, http.MethodPut, "/fees", owner, `{"amount":"2.5"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, _ = f.do(t, http.MethodPut, "/fees", owner, `{"amount":"7","base_units":true}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, env := f.do(t, http.MethodGet, "/fees/changes", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var changes []struct {
		Amount string `json:"amount"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &changes))
	require.Len(t, changes, 2)
	assert.Equal(t, "2500000000000000000", changes[0].Amount)
	assert.Equal(t, "7", changes[1].Amount)
}

func TestBasePathAndMetrics(t *testing.T) {
	f := newFixture(t, api.WithBasePath("/ballot"))

	rec, _ := f.do(t, http.MethodGet, "/ballot/projects/count", "", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec, _ = f.do(t, http.MethodGet, "/ballot/healthz", "", "")
	require.Equal(t, http.StatusOK, rec.Code)

	count, err := testutil.GatherAndCount(f.reg, "ballot_api_requests_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count, "one series per route")
}

func TestSignedCaller(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	addr := strings.ToLower(crypto.PubkeyToAddress(key.PublicKey).Hex())

	mock := clock.NewMock()
	mock.Set(time.Date(2026, time.October, 10, 12, 0, 0, 0, time.UTC))
	f := newFixture(t, api.WithSignatureVerification(api.NewSignatureVerifier(mock, time.Minute)))

	sign := func(method, path, query, body string, ts int64) string {
		text := api.SigningText(method, path, query, []byte(body), ts)
		sig, err := crypto.Sign(accounts.TextHash([]byte(text)), key)
		require.NoError(t, err)
		sig[crypto.RecoveryIDOffset] += 27
		return hexutil.Encode(sig)
	}

	send := func(method, target, body string, ts int64, sig string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, target, strings.NewReader(body))
		if body != "" {
			req.Header.Set("Content-Type", "application/json")
		}
		req.Header.Set(api.HeaderCaller, addr)
		req.Header.Set(api.HeaderTimestamp, strconv.FormatInt(ts, 10))
		req.Header.Set(api.HeaderSignature, sig)
		rec := httptest.NewRecorder()
		f.server.ServeHTTP(rec, req)
		return rec
	}

	now := mock.Now().Unix()
	body := `{"name":"signed"}`

	t.Run("valid", func(t *testing.T) {
		rec := send(http.MethodPost, "/projects", body, now, sign(http.MethodPost, "/projects", "", body, now))
		require.Equal(t, http.StatusCreated, rec.Code)
		assert.Contains(t, rec.Body.String(), `"name":"signed"`, "handler still reads the body")
	})

	t.Run("wrong method", func(t *testing.T) {
		sig := sign(http.MethodPut, "/projects", "", body, now)
		assert.Equal(t, http.StatusUnauthorized, send(http.MethodPost, "/projects", body, now, sig).Code)
	})

	t.Run("stale timestamp", func(t *testing.T) {
		stale := now - int64((2 * time.Minute).Seconds())
		sig := sign(http.MethodPost, "/projects", "", body, stale)
		assert.Equal(t, http.StatusUnauthorized, send(http.MethodPost, "/projects", body, stale, sig).Code)
	})

	t.Run("body is covered", func(t *testing.T) {
		sig := sign(http.MethodPost, "/projects", "", `{"name":"intended"}`, now+1)
		rec := send(http.MethodPost, "/projects", `{"name":"substituted"}`, now+1, sig)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("query is covered", func(t *testing.T) {
		sig := sign(http.MethodGet, "/projects", "limit=1", "", now)
		assert.Equal(t, http.StatusOK, send(http.MethodGet, "/projects?limit=1", "", now, sig).Code)
		assert.Equal(t, http.StatusUnauthorized, send(http.MethodGet, "/projects?limit=2", "", now, sig).Code)
	})

	t.Run("replay rejected", func(t *testing.T) {
		replayBody := `{"name":"once"}`
		sig := sign(http.MethodPost, "/projects", "", replayBody, now+2)
		require.Equal(t, http.StatusCreated, send(http.MethodPost, "/projects", replayBody, now+2, sig).Code)
		assert.Equal(t, http.StatusUnauthorized, send(http.MethodPost, "/projects", replayBody, now+2, sig).Code)
	})
}

func TestSignedOwnerFeeUpdateCannotBeReplayed(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	signer := strings.ToLower(crypto.PubkeyToAddress(key.PublicKey).Hex())

	mock := clock.NewMock()
	mock.Set(time.Date(2026, time.October, 10, 12, 0, 0, 0, time.UTC))

	tok := tokenmem.New(types.DefaultUnit)
	engine, err := ballot.New(memory.New(), tok.Session(system), types.Address(signer),
		types.MustParseUnits("5", 18), ballot.WithClock(mock))
	require.NoError(t, err)
	require.NoError(t, engine.Start(context.Background()))
	t.Cleanup(func() { _ = engine.Stop() })
	server := api.NewServer(engine, api.WithSignatureVerification(api.NewSignatureVerifier(mock, time.Minute)))

	ts := mock.Now().Unix()
	body := `{"amount":"7"}`
	sig, err := crypto.Sign(accounts.TextHash([]byte(api.SigningText(http.MethodPut, "/fees", "", []byte(body), ts))), key)
	require.NoError(t, err)

	put := func(body string) int {
		req := httptest.NewRequest(http.MethodPut, "/fees", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(api.HeaderCaller, signer)
		req.Header.Set(api.HeaderTimestamp, strconv.FormatInt(ts, 10))
		req.Header.Set(api.HeaderSignature, hexutil.Encode(sig))
		rec := httptest.NewRecorder()
		server.ServeHTTP(rec, req)
		return rec.Code
	}

	require.Equal(t, http.StatusOK, put(body))
	assert.Equal(t, http.StatusUnauthorized, put(`{"amount":"0"}`))
	assert.Equal(t, http.StatusUnauthorized, put(body))

	current, err := engine.TokenFeeAmount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, types.MustParseUnits("7", 18), current)
}
