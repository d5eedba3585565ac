package rpcclient

import (
	"testing"

	"github.com/tiervault/tiervault/config"
	"github.com/tiervault/tiervault/internal/escrow"
	klog "github.com/tiervault/tiervault/internal/log"
	"github.com/tiervault/tiervault/internal/rpc"
	"github.com/tiervault/tiervault/internal/staking"
	"github.com/tiervault/tiervault/internal/storage"
	"github.com/tiervault/tiervault/pkg/types"
)

var (
	clientOwner = types.Address{0x01}
	clientAlice = types.Address{0x02}
)

type testEnv struct {
	client *Client
	engine *staking.Engine
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()
	klog.Init("error", false, "")

	gen := &config.Genesis{
		LedgerID:        "tiervault-test-client",
		Owner:           clientOwner.Hex(),
		CooldownSeconds: 100,
		Tiers: []config.GenesisTier{
			{ID: 1, RateBps: 500, LockSeconds: 1000},
		},
		Approved:     []string{clientAlice.Hex()},
		Alloc:        map[string]uint64{clientAlice.Hex(): 100_000},
		VaultBalance: 1_000_000,
	}

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

	srv := rpc.New("127.0.0.1:0", engine, book, gen, config.Devnet)
	if err := srv.Start(); err != nil {
		t.Fatalf("start rpc: %v", err)
	}
	t.Cleanup(func() { srv.Stop() })

	return &testEnv{
		client: New("http://" + srv.Addr() + "/"),
		engine: engine,
	}
}

func TestClient_StakingGetInfo(t *testing.T) {
	env := setupTestEnv(t)

	var result rpc.StakingInfoResult
	if err := env.client.Call("staking_getInfo", nil, &result); err != nil {
		t.Fatalf("Call error: %v", err)
	}

	if result.LedgerID != "tiervault-test-client" {
		t.Errorf("ledger_id = %q, want %q", result.LedgerID, "tiervault-test-client")
	}
	if result.TierCount != 1 {
		t.Errorf("tier_count = %d, want 1", result.TierCount)
	}
}

func TestClient_EscrowGetBalance(t *testing.T) {
	env := setupTestEnv(t)

	var result rpc.BalanceResult
	if err := env.client.Call("escrow_getBalance", rpc.AddressParam{Address: clientAlice.Hex()}, &result); err != nil {
		t.Fatalf("Call error: %v", err)
	}
	if result.Balance != 100_000 {
		t.Errorf("balance = %d, want 100000", result.Balance)
	}
}

func TestClient_LedgerError_Reason(t *testing.T) {
	env := setupTestEnv(t)

	var result rpc.TierResult
	err := env.client.Call("staking_setTier", rpc.SetTierParam{
		Caller:      clientAlice.Hex(),
		Tier:        2,
		RateBps:     100,
		LockSeconds: 500,
	}, &result)
	if err == nil {
		t.Fatal("expected error for non-owner caller")
	}

	rpcErr, ok := err.(*RPCError)
	if !ok {
		t.Fatalf("expected RPCError, got %T: %v", err, err)
	}
	if rpcErr.Code != -32000 {
		t.Errorf("error code = %d, want -32000", rpcErr.Code)
	}
	if rpcErr.Reason != "not_owner" {
		t.Errorf("reason = %q, want %q", rpcErr.Reason, "not_owner")
	}
}

func TestClient_Call_MethodNotFound(t *testing.T) {
	env := setupTestEnv(t)

	var result rpc.StakingInfoResult
	err := env.client.Call("nonexistent_method", nil, &result)
	if err == nil {
		t.Fatal("expected error for unknown method")
	}

	rpcErr, ok := err.(*RPCError)
	if !ok {
		t.Fatalf("expected RPCError, got %T: %v", err, err)
	}
	if rpcErr.Code != -32601 {
		t.Errorf("error code = %d, want -32601", rpcErr.Code)
	}
}

func TestClient_Call_InvalidEndpoint(t *testing.T) {
	client := New("http://127.0.0.1:1/") // port 1 — should refuse

	var result rpc.StakingInfoResult
	err := client.Call("staking_getInfo", nil, &result)
	if err == nil {
		t.Fatal("expected connection error")
	}
}
