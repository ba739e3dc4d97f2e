package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/Klingon-tech/tip-staking/config"
	klog "github.com/Klingon-tech/tip-staking/internal/log"
	"github.com/Klingon-tech/tip-staking/internal/staking"
	"github.com/Klingon-tech/tip-staking/internal/storage"
	"github.com/Klingon-tech/tip-staking/internal/token"
	"github.com/Klingon-tech/tip-staking/pkg/crypto"
	"github.com/Klingon-tech/tip-staking/pkg/types"
)

// testEnv holds all components for an RPC test.
type testEnv struct {
	server    *Server
	engine    *staking.Engine
	ledger    *token.Ledger
	clock     *staking.ManualClock
	ownerKey  *crypto.PrivateKey
	userKey   *crypto.PrivateKey
	ownerAddr types.Address
	userAddr  types.Address
	nonces    map[types.Address]uint64
	url       string
}

func setupTestEnv(t *testing.T) *testEnv {
	return setupTestEnvWithConfig(t, config.RPCConfig{})
}

func setupTestEnvWithConfig(t *testing.T, rpcCfg config.RPCConfig) *testEnv {
	t.Helper()
	klog.Init("error", false, "")

	ownerKey, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	userKey, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	ownerAddr := ownerKey.Address()
	userAddr := userKey.Address()

	db := storage.NewMemory()
	ledger, err := token.NewLedger(storage.NewPrefixDB(db, storage.PrefixToken), &token.Metadata{
		Name:     "TIP Token",
		Symbol:   "TIP",
		Decimals: types.Decimals,
		Creator:  ownerAddr,
	})
	if err != nil {
		t.Fatalf("create ledger: %v", err)
	}

	clock := staking.NewManualClock(time.Unix(1_700_000_000, 0))
	engine, err := staking.New(staking.Config{
		Token:   ledger,
		TokenID: ledger.ID(),
		Owner:   ownerAddr,
		Clock:   clock,
		DB:      storage.NewPrefixDB(db, storage.PrefixStaking),
	})
	if err != nil {
		t.Fatalf("create engine: %v", err)
	}

	if err := ledger.Mint(ownerAddr, types.Tokens(1000)); err != nil {
		t.Fatalf("mint owner: %v", err)
	}
	if err := ledger.Mint(engine.Custody(), types.Tokens(5000)); err != nil {
		t.Fatalf("mint pool: %v", err)
	}
	if err := ledger.Mint(userAddr, types.Tokens(100)); err != nil {
		t.Fatalf("mint user: %v", err)
	}

	nonces := NewNonceStore(storage.NewPrefixDB(db, storage.PrefixRPC))

	// Create and start RPC server on random port.
	srv := New("127.0.0.1:0", engine, ledger, nonces, rpcCfg)
	if err := srv.Start(); err != nil {
		t.Fatalf("start rpc: %v", err)
	}
	t.Cleanup(func() { srv.Stop() })

	return &testEnv{
		server:    srv,
		engine:    engine,
		ledger:    ledger,
		clock:     clock,
		ownerKey:  ownerKey,
		userKey:   userKey,
		ownerAddr: ownerAddr,
		userAddr:  userAddr,
		nonces:    make(map[types.Address]uint64),
		url:       fmt.Sprintf("http://%s/", srv.Addr()),
	}
}

// auth signs method for key with the key's next nonce.
func (env *testEnv) auth(t *testing.T, key *crypto.PrivateKey, method string, args ...string) Auth {
	t.Helper()
	addr := key.Address()
	env.nonces[addr]++
	a, err := SignAuth(key, env.engine.TokenID(), method, env.nonces[addr], args...)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return a
}

func rpcCall(t *testing.T, url, method string, params interface{}) Response {
	t.Helper()
	req := Request{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      1,
	}
	body, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}

	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("post %s: %v", method, err)
	}
	defer resp.Body.Close()

	var rpcResp Response
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return rpcResp
}

// mustResult fails on an RPC error and decodes the result into out.
func mustResult(t *testing.T, resp Response, out interface{}) {
	t.Helper()
	if resp.Error != nil {
		t.Fatalf("rpc error %d: %s (%v)", resp.Error.Code, resp.Error.Message, resp.Error.Data)
	}
	data, _ := json.Marshal(resp.Result)
	if err := json.Unmarshal(data, out); err != nil {
		t.Fatalf("decode result: %v", err)
	}
}

func wantRPCError(t *testing.T, resp Response, code int, msg string) {
	t.Helper()
	if resp.Error == nil {
		t.Fatalf("expected error %d, got success", code)
	}
	if resp.Error.Code != code {
		t.Errorf("error code = %d, want %d (%s)", resp.Error.Code, code, resp.Error.Message)
	}
	if msg != "" && resp.Error.Message != msg {
		t.Errorf("error message = %q, want %q", resp.Error.Message, msg)
	}
}

// stakeVia approves the custody and stakes amount for the user.
func (env *testEnv) stakeVia(t *testing.T, amount string) {
	t.Helper()
	custody := env.engine.Custody().String()
	max := token.MaxAllowance().Dec()
	var op OpResult
	mustResult(t, rpcCall(t, env.url, "token_approve", ApproveParam{
		Spender: custody,
		Amount:  max,
		Auth:    env.auth(t, env.userKey, "token_approve", custody, max),
	}), &op)
	mustResult(t, rpcCall(t, env.url, "staking_stake", AmountParam{
		Amount: amount,
		Auth:   env.auth(t, env.userKey, "staking_stake", amount),
	}), &op)
	if op.Caller != env.userAddr.String() {
		t.Errorf("caller = %s, want %s", op.Caller, env.userAddr)
	}
}

// ── Tests ───────────────────────────────────────────────────────────────

func TestRPC_MethodNotFound(t *testing.T) {
	env := setupTestEnv(t)

	resp := rpcCall(t, env.url, "nonexistent_method", nil)
	if resp.Error == nil {
		t.Fatal("expected error for unknown method")
	}
	if resp.Error.Code != CodeMethodNotFound {
		t.Errorf("error code = %d, want %d", resp.Error.Code, CodeMethodNotFound)
	}
}

func TestRPC_InvalidParams(t *testing.T) {
	env := setupTestEnv(t)

	// staking_getUserInfo requires params.
	resp := rpcCall(t, env.url, "staking_getUserInfo", nil)
	wantRPCError(t, resp, CodeInvalidParams, "")
}

func TestRPC_InvalidAddress(t *testing.T) {
	env := setupTestEnv(t)

	resp := rpcCall(t, env.url, "token_balanceOf", AddressParam{Address: "xyz"})
	wantRPCError(t, resp, CodeInvalidParams, "")
}

func TestRPC_InvalidAmount(t *testing.T) {
	env := setupTestEnv(t)

	resp := rpcCall(t, env.url, "staking_calculatePenalty", PenaltyParam{
		Address: env.userAddr.String(),
		Amount:  "1.5",
	})
	wantRPCError(t, resp, CodeInvalidParams, "")
}

func TestRPC_InvalidJSON(t *testing.T) {
	env := setupTestEnv(t)

	resp, err := http.Post(env.url, "application/json", bytes.NewReader([]byte("not json")))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()

	var rpcResp Response
	json.NewDecoder(resp.Body).Decode(&rpcResp)

	if rpcResp.Error == nil {
		t.Fatal("expected error for invalid JSON")
	}
	if rpcResp.Error.Code != CodeParseError {
		t.Errorf("error code = %d, want %d", rpcResp.Error.Code, CodeParseError)
	}
}

func TestRPC_WrongVersion(t *testing.T) {
	env := setupTestEnv(t)

	body := []byte(`{"jsonrpc":"1.0","method":"staking_paused","id":1}`)
	resp, err := http.Post(env.url, "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()

	var rpcResp Response
	json.NewDecoder(resp.Body).Decode(&rpcResp)
	if rpcResp.Error == nil || rpcResp.Error.Code != CodeInvalidRequest {
		t.Errorf("expected invalid request, got %+v", rpcResp.Error)
	}
}

func TestRPC_BodyTooLarge(t *testing.T) {
	env := setupTestEnv(t)

	body := `{"jsonrpc":"2.0","method":"staking_paused","params":"` +
		strings.Repeat("a", maxBodySize) + `","id":1}`
	resp, err := http.Post(env.url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()

	var rpcResp Response
	json.NewDecoder(resp.Body).Decode(&rpcResp)
	if rpcResp.Error == nil || rpcResp.Error.Code != CodeInvalidRequest {
		t.Errorf("expected invalid request for oversized body, got %+v", rpcResp.Error)
	}
}

func TestRPC_GetMethodNotAllowed(t *testing.T) {
	env := setupTestEnv(t)

	resp, err := http.Get(env.url)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()

	var rpcResp Response
	json.NewDecoder(resp.Body).Decode(&rpcResp)

	if rpcResp.Error == nil {
		t.Fatal("expected error for GET request")
	}
	if rpcResp.Error.Code != CodeInvalidRequest {
		t.Errorf("error code = %d, want %d", rpcResp.Error.Code, CodeInvalidRequest)
	}
}

// --- IP Filtering ---

func TestRPC_IPFilter_Allowed(t *testing.T) {
	env := setupTestEnvWithConfig(t, config.RPCConfig{
		AllowedIPs: []string{"127.0.0.1"},
	})

	resp := rpcCall(t, env.url, "staking_getStats", nil)
	if resp.Error != nil {
		t.Errorf("expected success for 127.0.0.1, got error: %s", resp.Error.Message)
	}
}

func TestRPC_IPFilter_Blocked(t *testing.T) {
	env := setupTestEnvWithConfig(t, config.RPCConfig{
		AllowedIPs: []string{"10.0.0.0/8"}, // Only allow 10.x.x.x.
	})

	// Request comes from 127.0.0.1 → should be blocked.
	req := Request{JSONRPC: "2.0", Method: "staking_getStats", ID: 1}
	body, _ := json.Marshal(req)
	resp, err := http.Post(env.url, "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("expected 403, got %d", resp.StatusCode)
	}
}

func TestRPC_IPFilter_Empty_AllowsAll(t *testing.T) {
	env := setupTestEnvWithConfig(t, config.RPCConfig{
		AllowedIPs: nil, // Empty = allow all.
	})

	resp := rpcCall(t, env.url, "staking_getStats", nil)
	if resp.Error != nil {
		t.Errorf("empty AllowedIPs should allow all: %s", resp.Error.Message)
	}
}

// --- CORS ---

func corsRequest(t *testing.T, url, origin string) *http.Response {
	t.Helper()
	req := Request{JSONRPC: "2.0", Method: "staking_getStats", ID: 1}
	body, _ := json.Marshal(req)
	httpReq, _ := http.NewRequest("POST", url, bytes.NewReader(body))
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Origin", origin)

	resp, err := http.DefaultClient.Do(httpReq)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	return resp
}

func TestRPC_CORS_WildcardOrigin(t *testing.T) {
	env := setupTestEnvWithConfig(t, config.RPCConfig{
		CORSOrigins: []string{"*"},
	})

	resp := corsRequest(t, env.url, "http://example.com")
	if origin := resp.Header.Get("Access-Control-Allow-Origin"); origin != "*" {
		t.Errorf("CORS origin = %q, want %q", origin, "*")
	}
}

func TestRPC_CORS_SpecificOrigin(t *testing.T) {
	env := setupTestEnvWithConfig(t, config.RPCConfig{
		CORSOrigins: []string{"http://myapp.com"},
	})

	resp := corsRequest(t, env.url, "http://myapp.com")
	if origin := resp.Header.Get("Access-Control-Allow-Origin"); origin != "http://myapp.com" {
		t.Errorf("CORS origin = %q, want %q", origin, "http://myapp.com")
	}

	resp2 := corsRequest(t, env.url, "http://evil.com")
	if origin := resp2.Header.Get("Access-Control-Allow-Origin"); origin != "" {
		t.Errorf("non-matching origin should have no CORS header, got %q", origin)
	}
}

func TestRPC_CORS_Preflight(t *testing.T) {
	env := setupTestEnvWithConfig(t, config.RPCConfig{
		CORSOrigins: []string{"*"},
	})

	httpReq, _ := http.NewRequest("OPTIONS", env.url, nil)
	httpReq.Header.Set("Origin", "http://example.com")

	resp, err := http.DefaultClient.Do(httpReq)
	if err != nil {
		t.Fatalf("options: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("preflight status = %d, want 204", resp.StatusCode)
	}
	if resp.Header.Get("Access-Control-Allow-Methods") == "" {
		t.Error("preflight should have Allow-Methods header")
	}
}

func TestRPC_CORS_Disabled(t *testing.T) {
	env := setupTestEnvWithConfig(t, config.RPCConfig{
		CORSOrigins: nil, // Disabled.
	})

	resp := corsRequest(t, env.url, "http://example.com")
	if origin := resp.Header.Get("Access-Control-Allow-Origin"); origin != "" {
		t.Errorf("disabled CORS should have no origin header, got %q", origin)
	}
}

// --- Token ---

func TestRPC_TokenGetInfo(t *testing.T) {
	env := setupTestEnv(t)

	var info TokenInfoResult
	mustResult(t, rpcCall(t, env.url, "token_getInfo", nil), &info)
	if info.Symbol != "TIP" || info.Decimals != types.Decimals {
		t.Errorf("info = %+v", info)
	}
	if info.TokenID != env.ledger.ID().String() {
		t.Errorf("token id = %s", info.TokenID)
	}
	if info.TotalSupply != types.Tokens(6100).Dec() {
		t.Errorf("total supply = %s", info.TotalSupply)
	}
}

func TestRPC_TokenBalanceOf(t *testing.T) {
	env := setupTestEnv(t)

	var bal AmountResult
	mustResult(t, rpcCall(t, env.url, "token_balanceOf", AddressParam{Address: env.userAddr.String()}), &bal)
	if bal.Amount != types.Tokens(100).Dec() {
		t.Errorf("balance = %s", bal.Amount)
	}

	// Unknown addresses read as zero.
	mustResult(t, rpcCall(t, env.url, "token_balanceOf", AddressParam{Address: types.Address{0x99}.String()}), &bal)
	if bal.Amount != "0" {
		t.Errorf("unknown balance = %s", bal.Amount)
	}
}

func TestRPC_TokenTransfer(t *testing.T) {
	env := setupTestEnv(t)
	to := types.Address{0x42}.String()
	amount := types.Tokens(7).Dec()

	var op OpResult
	mustResult(t, rpcCall(t, env.url, "token_transfer", TransferParam{
		To:     to,
		Amount: amount,
		Auth:   env.auth(t, env.userKey, "token_transfer", to, amount),
	}), &op)

	var bal AmountResult
	mustResult(t, rpcCall(t, env.url, "token_balanceOf", AddressParam{Address: to}), &bal)
	if bal.Amount != amount {
		t.Errorf("recipient balance = %s, want %s", bal.Amount, amount)
	}

	// More than the balance is rejected with the ledger's reason.
	big := types.Tokens(1000).Dec()
	resp := rpcCall(t, env.url, "token_transfer", TransferParam{
		To:     to,
		Amount: big,
		Auth:   env.auth(t, env.userKey, "token_transfer", to, big),
	})
	wantRPCError(t, resp, CodeRejected, token.ErrInsufficientBalance.Error())
}

func TestRPC_TokenApproveAllowance(t *testing.T) {
	env := setupTestEnv(t)
	spender := env.engine.Custody().String()
	amount := types.Tokens(3).Dec()

	var op OpResult
	mustResult(t, rpcCall(t, env.url, "token_approve", ApproveParam{
		Spender: spender,
		Amount:  amount,
		Auth:    env.auth(t, env.userKey, "token_approve", spender, amount),
	}), &op)

	var res AllowanceResult
	mustResult(t, rpcCall(t, env.url, "token_allowance", AllowanceParam{
		Owner:   env.userAddr.String(),
		Spender: spender,
	}), &res)
	if res.Allowance != amount {
		t.Errorf("allowance = %s, want %s", res.Allowance, amount)
	}
}

// --- Staking ---

func TestRPC_StakeFlow(t *testing.T) {
	env := setupTestEnv(t)
	amount := types.Tokens(50).Dec()
	env.stakeVia(t, amount)

	var info UserInfoResult
	mustResult(t, rpcCall(t, env.url, "staking_getUserInfo", AddressParam{Address: env.userAddr.String()}), &info)
	if info.Amount != amount {
		t.Errorf("staked = %s, want %s", info.Amount, amount)
	}
	if info.Rewards != "0" {
		t.Errorf("rewards = %s, want 0", info.Rewards)
	}
	if info.UnlockTime != info.DepositTime+604800 {
		t.Errorf("unlock = %d, deposit = %d", info.UnlockTime, info.DepositTime)
	}

	var flag BoolResult
	mustResult(t, rpcCall(t, env.url, "staking_canUnstakeWithoutPenalty", AddressParam{Address: env.userAddr.String()}), &flag)
	if flag.Value {
		t.Error("fresh stake should be locked")
	}
	mustResult(t, rpcCall(t, env.url, "staking_canClaimRewards", AddressParam{Address: env.userAddr.String()}), &flag)
	if !flag.Value {
		t.Error("staker should be able to claim")
	}

	var penalty AmountResult
	mustResult(t, rpcCall(t, env.url, "staking_calculatePenalty", PenaltyParam{
		Address: env.userAddr.String(),
		Amount:  amount,
	}), &penalty)
	if penalty.Amount != "500000000000000000" { // 1% of 50 tokens
		t.Errorf("penalty = %s", penalty.Amount)
	}

	// One year later: 10% of 50 tokens.
	env.clock.Advance(365 * 24 * time.Hour)
	var pending AmountResult
	mustResult(t, rpcCall(t, env.url, "staking_pending", AddressParam{Address: env.userAddr.String()}), &pending)
	if pending.Amount != types.Tokens(5).Dec() {
		t.Errorf("pending = %s, want %s", pending.Amount, types.Tokens(5).Dec())
	}

	var stats StatsResult
	mustResult(t, rpcCall(t, env.url, "staking_getStats", nil), &stats)
	if stats.TotalStaked != amount || stats.Accounts != 1 || stats.RewardRate != 10 {
		t.Errorf("stats = %+v", stats)
	}

	var op OpResult
	mustResult(t, rpcCall(t, env.url, "staking_unstake", AmountParam{
		Amount: amount,
		Auth:   env.auth(t, env.userKey, "staking_unstake", amount),
	}), &op)

	// 100 - 50 + 50 principal + 5 reward.
	var bal AmountResult
	mustResult(t, rpcCall(t, env.url, "token_balanceOf", AddressParam{Address: env.userAddr.String()}), &bal)
	if bal.Amount != types.Tokens(105).Dec() {
		t.Errorf("balance = %s, want %s", bal.Amount, types.Tokens(105).Dec())
	}

	var evs EventsResult
	mustResult(t, rpcCall(t, env.url, "staking_getEvents", EventsParam{FromSeq: 1}), &evs)
	if len(evs.Events) != 2 {
		t.Fatalf("events = %d, want 2", len(evs.Events))
	}
	if evs.Events[0].Type != staking.EventStaked || evs.Events[1].Type != staking.EventUnstaked {
		t.Errorf("event types = %s, %s", evs.Events[0].Type, evs.Events[1].Type)
	}
	if evs.NextSeq != 3 {
		t.Errorf("next seq = %d, want 3", evs.NextSeq)
	}
}

func TestRPC_ClaimRewards(t *testing.T) {
	env := setupTestEnv(t)

	// No stake yet.
	resp := rpcCall(t, env.url, "staking_claimRewards", AuthParam{
		Auth: env.auth(t, env.userKey, "staking_claimRewards"),
	})
	wantRPCError(t, resp, CodeRejected, staking.ErrNoStake.Error())

	env.stakeVia(t, types.Tokens(10).Dec())
	env.clock.Advance(365 * 24 * time.Hour)

	var op OpResult
	mustResult(t, rpcCall(t, env.url, "staking_claimRewards", AuthParam{
		Auth: env.auth(t, env.userKey, "staking_claimRewards"),
	}), &op)

	var bal AmountResult
	mustResult(t, rpcCall(t, env.url, "token_balanceOf", AddressParam{Address: env.userAddr.String()}), &bal)
	if bal.Amount != types.Tokens(91).Dec() {
		t.Errorf("balance = %s, want %s", bal.Amount, types.Tokens(91).Dec())
	}
}

func TestRPC_StakeZero_Rejected(t *testing.T) {
	env := setupTestEnv(t)

	resp := rpcCall(t, env.url, "staking_stake", AmountParam{
		Amount: "0",
		Auth:   env.auth(t, env.userKey, "staking_stake", "0"),
	})
	wantRPCError(t, resp, CodeRejected, "cannot stake 0")
}

func TestRPC_UnstakeTooMuch_Rejected(t *testing.T) {
	env := setupTestEnv(t)
	env.stakeVia(t, "1000")

	resp := rpcCall(t, env.url, "staking_unstake", AmountParam{
		Amount: "1001",
		Auth:   env.auth(t, env.userKey, "staking_unstake", "1001"),
	})
	wantRPCError(t, resp, CodeRejected, "insufficient staked amount")
}

func TestRPC_StakeWithoutAllowance_Rejected(t *testing.T) {
	env := setupTestEnv(t)

	resp := rpcCall(t, env.url, "staking_stake", AmountParam{
		Amount: "5",
		Auth:   env.auth(t, env.userKey, "staking_stake", "5"),
	})
	wantRPCError(t, resp, CodeRejected, token.ErrInsufficientAllowance.Error())

	if !env.engine.TotalStaked().IsZero() {
		t.Error("failed stake must not change total staked")
	}
}

// --- Auth ---

func TestRPC_Auth_BadSignature(t *testing.T) {
	env := setupTestEnv(t)

	a := env.auth(t, env.userKey, "staking_stake", "5")
	a.Signature = strings.Repeat("00", 64)
	resp := rpcCall(t, env.url, "staking_stake", AmountParam{Amount: "5", Auth: a})
	wantRPCError(t, resp, CodeUnauthorized, "")
}

func TestRPC_Auth_TamperedArgs(t *testing.T) {
	env := setupTestEnv(t)

	// Signed for 5, submitted with 50.
	a := env.auth(t, env.userKey, "staking_stake", "5")
	resp := rpcCall(t, env.url, "staking_stake", AmountParam{Amount: "50", Auth: a})
	wantRPCError(t, resp, CodeUnauthorized, "")
}

func TestRPC_Auth_WrongMethod(t *testing.T) {
	env := setupTestEnv(t)

	// A signature for unstake does not authorise stake.
	a := env.auth(t, env.userKey, "staking_unstake", "5")
	resp := rpcCall(t, env.url, "staking_stake", AmountParam{Amount: "5", Auth: a})
	wantRPCError(t, resp, CodeUnauthorized, "")
}

func TestRPC_Auth_Replay(t *testing.T) {
	env := setupTestEnv(t)
	to := types.Address{0x42}.String()

	a := env.auth(t, env.userKey, "token_transfer", to, "1")
	params := TransferParam{To: to, Amount: "1", Auth: a}

	var op OpResult
	mustResult(t, rpcCall(t, env.url, "token_transfer", params), &op)

	resp := rpcCall(t, env.url, "token_transfer", params)
	wantRPCError(t, resp, CodeUnauthorized, "")

	var bal AmountResult
	mustResult(t, rpcCall(t, env.url, "token_balanceOf", AddressParam{Address: to}), &bal)
	if bal.Amount != "1" {
		t.Errorf("replayed transfer moved funds: balance = %s", bal.Amount)
	}
}

func TestRPC_AuthGetNonce(t *testing.T) {
	env := setupTestEnv(t)

	var n NonceResult
	mustResult(t, rpcCall(t, env.url, "auth_getNonce", AddressParam{Address: env.userAddr.String()}), &n)
	if n.Nonce != 0 {
		t.Errorf("initial nonce = %d", n.Nonce)
	}

	// A rejected call still consumes its nonce.
	rpcCall(t, env.url, "staking_stake", AmountParam{
		Amount: "0",
		Auth:   env.auth(t, env.userKey, "staking_stake", "0"),
	})
	mustResult(t, rpcCall(t, env.url, "auth_getNonce", AddressParam{Address: env.userAddr.String()}), &n)
	if n.Nonce != 1 {
		t.Errorf("nonce = %d, want 1", n.Nonce)
	}
}

// --- Admin ---

func TestRPC_AdminPause_NotOwner(t *testing.T) {
	env := setupTestEnv(t)

	resp := rpcCall(t, env.url, "admin_pause", AuthParam{
		Auth: env.auth(t, env.userKey, "admin_pause"),
	})
	wantRPCError(t, resp, CodeUnauthorized, staking.ErrUnauthorized.Error())
	if env.engine.Paused() {
		t.Error("non-owner must not pause")
	}
}

func TestRPC_AdminPauseUnpause(t *testing.T) {
	env := setupTestEnv(t)

	var op OpResult
	mustResult(t, rpcCall(t, env.url, "admin_pause", AuthParam{
		Auth: env.auth(t, env.ownerKey, "admin_pause"),
	}), &op)

	var paused BoolResult
	mustResult(t, rpcCall(t, env.url, "staking_paused", nil), &paused)
	if !paused.Value {
		t.Fatal("expected paused")
	}

	resp := rpcCall(t, env.url, "staking_stake", AmountParam{
		Amount: "5",
		Auth:   env.auth(t, env.userKey, "staking_stake", "5"),
	})
	wantRPCError(t, resp, CodeRejected, staking.ErrPaused.Error())

	resp = rpcCall(t, env.url, "admin_pause", AuthParam{
		Auth: env.auth(t, env.ownerKey, "admin_pause"),
	})
	wantRPCError(t, resp, CodeRejected, staking.ErrPaused.Error())

	mustResult(t, rpcCall(t, env.url, "admin_unpause", AuthParam{
		Auth: env.auth(t, env.ownerKey, "admin_unpause"),
	}), &op)
	mustResult(t, rpcCall(t, env.url, "staking_paused", nil), &paused)
	if paused.Value {
		t.Error("expected unpaused")
	}

	resp = rpcCall(t, env.url, "admin_unpause", AuthParam{
		Auth: env.auth(t, env.ownerKey, "admin_unpause"),
	})
	wantRPCError(t, resp, CodeRejected, staking.ErrNotPaused.Error())
}

func TestRPC_AdminEmergencyWithdraw(t *testing.T) {
	env := setupTestEnv(t)
	zero := types.Address{}.String()
	dest := types.Address{0x77}.String()

	resp := rpcCall(t, env.url, "admin_emergencyWithdraw", WithdrawParam{
		To:   zero,
		Auth: env.auth(t, env.ownerKey, "admin_emergencyWithdraw", zero),
	})
	wantRPCError(t, resp, CodeRejected, staking.ErrInvalidAddress.Error())

	resp = rpcCall(t, env.url, "admin_emergencyWithdraw", WithdrawParam{
		To:   dest,
		Auth: env.auth(t, env.userKey, "admin_emergencyWithdraw", dest),
	})
	wantRPCError(t, resp, CodeUnauthorized, "")

	var op OpResult
	mustResult(t, rpcCall(t, env.url, "admin_emergencyWithdraw", WithdrawParam{
		To:   dest,
		Auth: env.auth(t, env.ownerKey, "admin_emergencyWithdraw", dest),
	}), &op)

	var bal AmountResult
	mustResult(t, rpcCall(t, env.url, "token_balanceOf", AddressParam{Address: dest}), &bal)
	if bal.Amount != types.Tokens(5000).Dec() {
		t.Errorf("swept = %s, want %s", bal.Amount, types.Tokens(5000).Dec())
	}

	resp = rpcCall(t, env.url, "admin_emergencyWithdraw", WithdrawParam{
		To:   dest,
		Auth: env.auth(t, env.ownerKey, "admin_emergencyWithdraw", dest),
	})
	wantRPCError(t, resp, CodeRejected, staking.ErrNoBalance.Error())
}

func TestRPC_OwnerAndParams(t *testing.T) {
	env := setupTestEnv(t)

	var owner OwnerResult
	mustResult(t, rpcCall(t, env.url, "staking_owner", nil), &owner)
	if owner.Owner != env.ownerAddr.String() {
		t.Errorf("owner = %s, want %s", owner.Owner, env.ownerAddr)
	}

	var params ParamsResult
	mustResult(t, rpcCall(t, env.url, "staking_getParams", nil), &params)
	if params.RewardRate != 10 || params.PenaltyRate != 1 || params.MinLockPeriod != 604800 {
		t.Errorf("params = %+v", params)
	}
	if params.MinRewardThreshold != "1000000000000000" {
		t.Errorf("threshold = %s", params.MinRewardThreshold)
	}
}

// --- Events ---

func TestRPC_WaitEvents_Timeout(t *testing.T) {
	env := setupTestEnv(t)

	start := time.Now()
	var evs EventsResult
	mustResult(t, rpcCall(t, env.url, "staking_waitEvents", EventsParam{FromSeq: 1, Timeout: 1}), &evs)
	if len(evs.Events) != 0 {
		t.Errorf("events = %d, want 0", len(evs.Events))
	}
	if time.Since(start) < 900*time.Millisecond {
		t.Error("waitEvents returned before its timeout")
	}
}

func TestRPC_WaitEvents_Wakes(t *testing.T) {
	env := setupTestEnv(t)

	go func() {
		time.Sleep(100 * time.Millisecond)
		env.engine.Pause(context.Background(), env.ownerAddr)
	}()

	var evs EventsResult
	mustResult(t, rpcCall(t, env.url, "staking_waitEvents", EventsParam{FromSeq: 1, Timeout: 10}), &evs)
	if len(evs.Events) != 1 || evs.Events[0].Type != staking.EventPaused {
		t.Fatalf("events = %+v", evs.Events)
	}
}

func TestRPC_GetEvents_Limit(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		env.engine.Pause(ctx, env.ownerAddr)
		env.engine.Unpause(ctx, env.ownerAddr)
	}

	var evs EventsResult
	mustResult(t, rpcCall(t, env.url, "staking_getEvents", EventsParam{FromSeq: 2, Limit: 3}), &evs)
	if len(evs.Events) != 3 {
		t.Fatalf("events = %d, want 3", len(evs.Events))
	}
	if evs.Events[0].Seq != 2 || evs.Events[2].Seq != 4 {
		t.Errorf("seqs = %d..%d", evs.Events[0].Seq, evs.Events[2].Seq)
	}
	if evs.NextSeq != 5 {
		t.Errorf("next seq = %d, want 5", evs.NextSeq)
	}
}

func TestRPC_GetEvents_PagingSeesEveryEvent(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		env.engine.Pause(ctx, env.ownerAddr)
		env.engine.Unpause(ctx, env.ownerAddr)
	}

	var seen []uint64
	next := uint64(1)
	for i := 0; i < 10; i++ {
		var page EventsResult
		mustResult(t, rpcCall(t, env.url, "staking_getEvents", EventsParam{FromSeq: next, Limit: 2}), &page)
		if len(page.Events) == 0 {
			if page.NextSeq != next {
				t.Errorf("empty page next seq = %d, want %d", page.NextSeq, next)
			}
			break
		}
		for _, ev := range page.Events {
			seen = append(seen, ev.Seq)
		}
		next = page.NextSeq
	}
	if len(seen) != 6 {
		t.Fatalf("seen %v, want 6 events", seen)
	}
	for i, seq := range seen {
		if seq != uint64(i+1) {
			t.Errorf("seen[%d] = %d, want %d", i, seq, i+1)
		}
	}
}

func TestRPC_GetEvents_EmptyPageFromZero(t *testing.T) {
	env := setupTestEnv(t)

	var page EventsResult
	mustResult(t, rpcCall(t, env.url, "staking_getEvents", EventsParam{}), &page)
	if len(page.Events) != 0 || page.NextSeq != 1 {
		t.Errorf("page = %+v, want empty with next seq 1", page)
	}
}
