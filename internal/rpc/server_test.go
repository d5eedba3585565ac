package rpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/tiervault/tiervault/config"
	"github.com/tiervault/tiervault/internal/escrow"
	klog "github.com/tiervault/tiervault/internal/log"
	"github.com/tiervault/tiervault/internal/staking"
	"github.com/tiervault/tiervault/internal/storage"
	"github.com/tiervault/tiervault/pkg/types"
)

var (
	rpcOwner = types.Address{0x01}
	rpcAlice = types.Address{0x02}
	rpcBob   = types.Address{0x03}
)

// testEnv holds all components for an RPC test.
type testEnv struct {
	server  *Server
	engine  *staking.Engine
	book    *escrow.Book
	genesis *config.Genesis
	url     string
	clock   *fakeClock
}

// fakeClock is a settable clock for the server's mutating endpoints.
type fakeClock struct {
	now int64
}

func (c *fakeClock) Now() int64 { return c.now }

func testGenesis() *config.Genesis {
	return &config.Genesis{
		LedgerID:        "tiervault-test-rpc",
		Owner:           rpcOwner.Hex(),
		CooldownSeconds: 100,
		Tiers: []config.GenesisTier{
			{ID: 1, RateBps: 500, LockSeconds: 1000},
			{ID: 2, RateBps: 1000, LockSeconds: 2000},
		},
		Approved:     []string{rpcAlice.Hex()},
		Alloc:        map[string]uint64{rpcAlice.Hex(): 100_000},
		VaultBalance: 1_000_000,
	}
}

func setupTestEnv(t *testing.T, rpcCfg ...config.RPCConfig) *testEnv {
	t.Helper()
	klog.Init("error", false, "")

	gen := testGenesis()
	db := storage.NewMemory()

	book := escrow.NewBook(db)
	if err := book.Seed(gen); err != nil {
		t.Fatalf("seed book: %v", err)
	}

	engine, err := staking.New(db, book, escrow.VaultAddress())
	if err != nil {
		t.Fatalf("create engine: %v", err)
	}
	if err := engine.InitFromGenesis(gen); err != nil {
		t.Fatalf("init genesis: %v", err)
	}

	srv := New("127.0.0.1:0", engine, book, gen, config.Devnet, rpcCfg...)
	clock := &fakeClock{now: 1000}
	srv.now = clock.Now
	if err := srv.Start(); err != nil {
		t.Fatalf("start rpc: %v", err)
	}
	t.Cleanup(func() { srv.Stop() })

	return &testEnv{
		server:  srv,
		engine:  engine,
		book:    book,
		genesis: gen,
		url:     fmt.Sprintf("http://%s/", srv.Addr()),
		clock:   clock,
	}
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

func decodeResult(t *testing.T, resp Response, target interface{}) {
	t.Helper()
	if resp.Error != nil {
		t.Fatalf("unexpected error: %s", resp.Error.Message)
	}
	data, err := json.Marshal(resp.Result)
	if err != nil {
		t.Fatalf("marshal result: %v", err)
	}
	if err := json.Unmarshal(data, target); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
}

// ── Read endpoints ──────────────────────────────────────────────────────

func TestRPC_StakingGetInfo(t *testing.T) {
	env := setupTestEnv(t)

	resp := rpcCall(t, env.url, "staking_getInfo", nil)
	var result StakingInfoResult
	decodeResult(t, resp, &result)

	if result.LedgerID != "tiervault-test-rpc" {
		t.Errorf("ledger_id = %q, want %q", result.LedgerID, "tiervault-test-rpc")
	}
	if result.Owner != rpcOwner.String() {
		t.Errorf("owner = %q, want %q", result.Owner, rpcOwner.String())
	}
	if result.CooldownSeconds != 100 {
		t.Errorf("cooldown_seconds = %d, want 100", result.CooldownSeconds)
	}
	if result.TierCount != 2 {
		t.Errorf("tier_count = %d, want 2", result.TierCount)
	}
	if result.GenesisHash == "" {
		t.Error("genesis_hash is empty")
	}
}

func TestRPC_StakingGetTier(t *testing.T) {
	env := setupTestEnv(t)

	resp := rpcCall(t, env.url, "staking_getTier", TierParam{Tier: 1})
	var result TierResult
	decodeResult(t, resp, &result)

	if !result.Configured {
		t.Fatal("tier 1 should be configured")
	}
	if result.RateBps != 500 || result.LockSeconds != 1000 {
		t.Errorf("tier = %+v", result)
	}
}

func TestRPC_StakingGetTier_Unconfigured(t *testing.T) {
	env := setupTestEnv(t)

	resp := rpcCall(t, env.url, "staking_getTier", TierParam{Tier: 99})
	var result TierResult
	decodeResult(t, resp, &result)

	if result.Configured {
		t.Error("tier 99 should not be configured")
	}
}

func TestRPC_StakingGetTier_Zero(t *testing.T) {
	env := setupTestEnv(t)

	resp := rpcCall(t, env.url, "staking_getTier", TierParam{Tier: 0})
	if resp.Error == nil {
		t.Fatal("expected error for tier 0")
	}
	if resp.Error.Code != CodeInvalidParams {
		t.Errorf("error code = %d, want %d", resp.Error.Code, CodeInvalidParams)
	}
}

func TestRPC_StakingListTiers(t *testing.T) {
	env := setupTestEnv(t)

	resp := rpcCall(t, env.url, "staking_listTiers", nil)
	var result TierListResult
	decodeResult(t, resp, &result)

	if result.Count != 2 {
		t.Fatalf("count = %d, want 2", result.Count)
	}
	if result.Tiers[0].Tier != 1 || result.Tiers[1].Tier != 2 {
		t.Errorf("tiers not in id order: %d, %d", result.Tiers[0].Tier, result.Tiers[1].Tier)
	}
}

func TestRPC_StakingGetAccount(t *testing.T) {
	env := setupTestEnv(t)

	resp := rpcCall(t, env.url, "staking_getAccount", AddressParam{Address: rpcAlice.Hex()})
	var result AccountResult
	decodeResult(t, resp, &result)

	if !result.Approved {
		t.Error("alice should be approved at genesis")
	}
	if result.Claimed {
		t.Error("alice should not be claimed")
	}
}

// ── Write endpoints ─────────────────────────────────────────────────────

func TestRPC_StakingSetTier(t *testing.T) {
	env := setupTestEnv(t)

	resp := rpcCall(t, env.url, "staking_setTier", SetTierParam{
		Caller:      rpcOwner.Hex(),
		Tier:        3,
		RateBps:     1500,
		LockSeconds: 3000,
	})
	var result TierResult
	decodeResult(t, resp, &result)

	if result.Tier != 3 || result.RateBps != 1500 {
		t.Errorf("result = %+v", result)
	}

	tier, err := env.engine.Tier(3)
	if err != nil {
		t.Fatalf("Tier: %v", err)
	}
	if tier.RateBps != 1500 || tier.LockSeconds != 3000 {
		t.Errorf("tier = %+v", tier)
	}
}

func TestRPC_StakingSetTier_NotOwner(t *testing.T) {
	env := setupTestEnv(t)

	resp := rpcCall(t, env.url, "staking_setTier", SetTierParam{
		Caller:      rpcAlice.Hex(),
		Tier:        3,
		RateBps:     1500,
		LockSeconds: 3000,
	})
	if resp.Error == nil {
		t.Fatal("expected error for non-owner caller")
	}
	if resp.Error.Code != CodeLedgerError {
		t.Errorf("error code = %d, want %d", resp.Error.Code, CodeLedgerError)
	}
	if resp.Error.Data != "not_owner" {
		t.Errorf("error data = %v, want %q", resp.Error.Data, "not_owner")
	}
}

func TestRPC_StakingSetApproval(t *testing.T) {
	env := setupTestEnv(t)

	resp := rpcCall(t, env.url, "staking_setApproval", SetApprovalParam{
		Caller:   rpcOwner.Hex(),
		Address:  rpcBob.Hex(),
		Approved: true,
	})
	var result AccountResult
	decodeResult(t, resp, &result)

	if !result.Approved {
		t.Error("expected approved result")
	}
	acct, err := env.engine.Account(rpcBob)
	if err != nil {
		t.Fatalf("Account: %v", err)
	}
	if !acct.Approved {
		t.Error("bob not approved in ledger")
	}
}

func TestRPC_StakingDeposit(t *testing.T) {
	env := setupTestEnv(t)
	env.clock.now = 50

	resp := rpcCall(t, env.url, "staking_deposit", DepositParam{
		Address: rpcAlice.Hex(),
		Tier:    1,
		Amount:  1000,
	})
	var result DepositResult
	decodeResult(t, resp, &result)

	if result.Staked != 1000 {
		t.Errorf("staked = %d, want 1000", result.Staked)
	}
	if result.Reward != 50 {
		t.Errorf("reward = %d, want 50", result.Reward)
	}
	if result.UnlockTime != 1050 {
		t.Errorf("unlock_time = %d, want 1050", result.UnlockTime)
	}

	// The deposit moved funds into the vault.
	bal, err := env.book.Balance(rpcAlice)
	if err != nil {
		t.Fatalf("Balance: %v", err)
	}
	if bal != 99_000 {
		t.Errorf("alice balance = %d, want 99000", bal)
	}
}

func TestRPC_StakingDeposit_NotApproved(t *testing.T) {
	env := setupTestEnv(t)

	resp := rpcCall(t, env.url, "staking_deposit", DepositParam{
		Address: rpcBob.Hex(),
		Tier:    1,
		Amount:  1000,
	})
	if resp.Error == nil {
		t.Fatal("expected error for unapproved principal")
	}
	if resp.Error.Code != CodeLedgerError {
		t.Errorf("error code = %d, want %d", resp.Error.Code, CodeLedgerError)
	}
	if resp.Error.Data != "not_approved" {
		t.Errorf("error data = %v, want %q", resp.Error.Data, "not_approved")
	}
}

func TestRPC_StakingDeposit_InsufficientFunds(t *testing.T) {
	env := setupTestEnv(t)

	resp := rpcCall(t, env.url, "staking_deposit", DepositParam{
		Address: rpcAlice.Hex(),
		Tier:    1,
		Amount:  200_000, // Alice only has 100_000.
	})
	if resp.Error == nil {
		t.Fatal("expected error for underfunded deposit")
	}
	if resp.Error.Data != "transfer_failed" {
		t.Errorf("error data = %v, want %q", resp.Error.Data, "transfer_failed")
	}
}

func TestRPC_StakingClaim(t *testing.T) {
	env := setupTestEnv(t)

	env.clock.now = 0
	resp := rpcCall(t, env.url, "staking_deposit", DepositParam{
		Address: rpcAlice.Hex(),
		Tier:    1,
		Amount:  1000,
	})
	if resp.Error != nil {
		t.Fatalf("deposit: %s", resp.Error.Message)
	}

	// Unlock is at t=1000; claim just past it.
	env.clock.now = 1001
	resp = rpcCall(t, env.url, "staking_claim", ClaimParam{
		Address: rpcAlice.Hex(),
		Tier:    1,
	})
	var result ClaimResult
	decodeResult(t, resp, &result)

	if result.Payout != 1050 {
		t.Errorf("payout = %d, want 1050", result.Payout)
	}

	bal, err := env.book.Balance(rpcAlice)
	if err != nil {
		t.Fatalf("Balance: %v", err)
	}
	if bal != 100_050 {
		t.Errorf("alice balance = %d, want 100050", bal)
	}
}

func TestRPC_StakingClaim_StillLocked(t *testing.T) {
	env := setupTestEnv(t)

	env.clock.now = 0
	resp := rpcCall(t, env.url, "staking_deposit", DepositParam{
		Address: rpcAlice.Hex(),
		Tier:    1,
		Amount:  1000,
	})
	if resp.Error != nil {
		t.Fatalf("deposit: %s", resp.Error.Message)
	}

	env.clock.now = 1000
	resp = rpcCall(t, env.url, "staking_claim", ClaimParam{
		Address: rpcAlice.Hex(),
		Tier:    1,
	})
	if resp.Error == nil {
		t.Fatal("expected error at the unlock boundary")
	}
	if resp.Error.Data != "stake_still_locked" {
		t.Errorf("error data = %v, want %q", resp.Error.Data, "stake_still_locked")
	}
}

func TestRPC_StakingGetStakeAndList(t *testing.T) {
	env := setupTestEnv(t)

	env.clock.now = 0
	rpcCall(t, env.url, "staking_deposit", DepositParam{Address: rpcAlice.Hex(), Tier: 1, Amount: 1000})
	env.clock.now = 200
	rpcCall(t, env.url, "staking_deposit", DepositParam{Address: rpcAlice.Hex(), Tier: 2, Amount: 500})

	resp := rpcCall(t, env.url, "staking_getStake", StakeParam{Address: rpcAlice.Hex(), Tier: 1})
	var stake StakeResult
	decodeResult(t, resp, &stake)
	if stake.Staked != 1000 {
		t.Errorf("staked = %d, want 1000", stake.Staked)
	}

	resp = rpcCall(t, env.url, "staking_listStakes", AddressParam{Address: rpcAlice.Hex()})
	var list StakeListResult
	decodeResult(t, resp, &list)
	if list.Count != 2 {
		t.Fatalf("count = %d, want 2", list.Count)
	}
	if list.Stakes[0].Tier != 1 || list.Stakes[1].Tier != 2 {
		t.Errorf("stakes not in tier order")
	}
}

func TestRPC_StakingListEvents(t *testing.T) {
	env := setupTestEnv(t)

	rpcCall(t, env.url, "staking_setApproval", SetApprovalParam{
		Caller: rpcOwner.Hex(), Address: rpcBob.Hex(), Approved: true,
	})
	rpcCall(t, env.url, "staking_deposit", DepositParam{Address: rpcAlice.Hex(), Tier: 1, Amount: 1000})

	resp := rpcCall(t, env.url, "staking_listEvents", nil)
	var result EventListResult
	decodeResult(t, resp, &result)

	if result.Count != 2 {
		t.Fatalf("count = %d, want 2", result.Count)
	}
	if result.Latest != 2 {
		t.Errorf("latest = %d, want 2", result.Latest)
	}
	if result.Events[0].Kind != staking.EventWhitelistChanged {
		t.Errorf("first event kind = %s", result.Events[0].Kind)
	}
	if err := staking.VerifyChain(result.Events); err != nil {
		t.Errorf("VerifyChain: %v", err)
	}
}

// ── Escrow and node endpoints ───────────────────────────────────────────

func TestRPC_EscrowGetBalance(t *testing.T) {
	env := setupTestEnv(t)

	resp := rpcCall(t, env.url, "escrow_getBalance", AddressParam{Address: rpcAlice.Hex()})
	var result BalanceResult
	decodeResult(t, resp, &result)

	if result.Balance != 100_000 {
		t.Errorf("balance = %d, want 100000", result.Balance)
	}
}

func TestRPC_NodeGetInfo(t *testing.T) {
	env := setupTestEnv(t)

	resp := rpcCall(t, env.url, "node_getInfo", nil)
	var result NodeInfoResult
	decodeResult(t, resp, &result)

	if result.Network != "devnet" {
		t.Errorf("network = %q, want %q", result.Network, "devnet")
	}
	if result.LedgerID != "tiervault-test-rpc" {
		t.Errorf("ledger_id = %q", result.LedgerID)
	}
	if result.Vault != escrow.VaultAddress().String() {
		t.Errorf("vault = %q", result.Vault)
	}
}

// ── Protocol-level behavior ─────────────────────────────────────────────

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

	resp := rpcCall(t, env.url, "staking_getStake", nil)
	if resp.Error == nil {
		t.Fatal("expected error for missing params")
	}
	if resp.Error.Code != CodeInvalidParams {
		t.Errorf("error code = %d, want %d", resp.Error.Code, CodeInvalidParams)
	}
}

func TestRPC_InvalidAddress(t *testing.T) {
	env := setupTestEnv(t)

	resp := rpcCall(t, env.url, "staking_getAccount", AddressParam{Address: "xyz"})
	if resp.Error == nil {
		t.Fatal("expected error for invalid address")
	}
	if resp.Error.Code != CodeInvalidParams {
		t.Errorf("error code = %d, want %d", resp.Error.Code, CodeInvalidParams)
	}
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

func TestRPC_WrongJSONRPCVersion(t *testing.T) {
	env := setupTestEnv(t)

	body := []byte(`{"jsonrpc":"1.0","method":"staking_getInfo","id":1}`)
	resp, err := http.Post(env.url, "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()

	var rpcResp Response
	json.NewDecoder(resp.Body).Decode(&rpcResp)

	if rpcResp.Error == nil {
		t.Fatal("expected error for wrong jsonrpc version")
	}
	if rpcResp.Error.Code != CodeInvalidRequest {
		t.Errorf("error code = %d, want %d", rpcResp.Error.Code, CodeInvalidRequest)
	}
}

// --- IP Filtering ---

func TestRPC_IPFilter_Allowed(t *testing.T) {
	env := setupTestEnv(t, config.RPCConfig{
		AllowedIPs: []string{"127.0.0.1"},
	})

	resp := rpcCall(t, env.url, "staking_getInfo", nil)
	if resp.Error != nil {
		t.Errorf("expected success for 127.0.0.1, got error: %s", resp.Error.Message)
	}
}

func TestRPC_IPFilter_Blocked(t *testing.T) {
	env := setupTestEnv(t, config.RPCConfig{
		AllowedIPs: []string{"10.0.0.0/8"}, // Only allow 10.x.x.x.
	})

	req := Request{JSONRPC: "2.0", Method: "staking_getInfo", ID: 1}
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

// --- CORS ---

func TestRPC_CORS_WildcardOrigin(t *testing.T) {
	env := setupTestEnv(t, config.RPCConfig{
		CORSOrigins: []string{"*"},
	})

	req := Request{JSONRPC: "2.0", Method: "staking_getInfo", ID: 1}
	body, _ := json.Marshal(req)
	httpReq, _ := http.NewRequest("POST", env.url, bytes.NewReader(body))
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Origin", "http://example.com")

	resp, err := http.DefaultClient.Do(httpReq)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()

	origin := resp.Header.Get("Access-Control-Allow-Origin")
	if origin != "*" {
		t.Errorf("CORS origin = %q, want %q", origin, "*")
	}
}

func TestRPC_CORS_Preflight(t *testing.T) {
	env := setupTestEnv(t, config.RPCConfig{
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

// --- Disabled endpoints ---

func TestRPC_FeedDisabled(t *testing.T) {
	env := setupTestEnv(t)

	resp, err := http.Get(env.url + "ws")
	if err != nil {
		t.Fatalf("get /ws: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestRPC_MetricsDisabled(t *testing.T) {
	env := setupTestEnv(t)

	resp, err := http.Get(env.url + "metrics")
	if err != nil {
		t.Fatalf("get /metrics: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}
