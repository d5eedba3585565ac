// tiervault-cli is a command-line client for interacting with a tiervaultd node.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tiervault/tiervault/internal/rpc"
	"github.com/tiervault/tiervault/internal/rpcclient"
	"github.com/tiervault/tiervault/pkg/types"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	// Parse global flags that appear before the subcommand.
	rpcURL := ""
	network := "mainnet"

	args := os.Args[1:]
	for len(args) > 0 {
		switch {
		case args[0] == "--rpc" && len(args) > 1:
			rpcURL = args[1]
			args = args[2:]
		case strings.HasPrefix(args[0], "--rpc="):
			rpcURL = args[0][len("--rpc="):]
			args = args[1:]
		case args[0] == "--network" && len(args) > 1:
			network = args[1]
			args = args[2:]
		case strings.HasPrefix(args[0], "--network="):
			network = args[0][len("--network="):]
			args = args[1:]
		case args[0] == "--devnet":
			network = "devnet"
			args = args[1:]
		default:
			goto dispatch
		}
	}

dispatch:
	// Set address HRP based on network.
	if network == "devnet" {
		types.SetAddressHRP(types.DevnetHRP)
	} else {
		types.SetAddressHRP(types.MainnetHRP)
	}

	if rpcURL == "" {
		if network == "devnet" {
			rpcURL = "http://127.0.0.1:8641"
		} else {
			rpcURL = "http://127.0.0.1:8640"
		}
	}

	if len(args) == 0 {
		usage()
		os.Exit(1)
	}

	client := rpcclient.New(rpcURL)
	cmd := args[0]
	cmdArgs := args[1:]

	switch cmd {
	case "status":
		cmdStatus(client)
	case "tiers":
		cmdTiers(client)
	case "tier":
		cmdTier(client, cmdArgs)
	case "settier":
		cmdSetTier(client, cmdArgs)
	case "approve":
		cmdApprove(client, cmdArgs, true)
	case "revoke":
		cmdApprove(client, cmdArgs, false)
	case "deposit":
		cmdDeposit(client, cmdArgs)
	case "claim":
		cmdClaim(client, cmdArgs)
	case "stake":
		cmdStake(client, cmdArgs)
	case "stakes":
		cmdStakes(client, cmdArgs)
	case "account":
		cmdAccount(client, cmdArgs)
	case "balance":
		cmdBalance(client, cmdArgs)
	case "events":
		cmdEvents(client, cmdArgs)
	case "watch":
		cmdWatch(rpcURL, cmdArgs)
	case "help", "--help", "-h":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: tiervault-cli [global flags] <command> [flags]

Global flags:
  --rpc <url>         RPC endpoint (default: http://127.0.0.1:8640)
  --network <net>     mainnet (default) or devnet
  --devnet            Shorthand for --network devnet

Commands:
  status                          Show ledger status
  tiers                           List configured tiers
  tier <id>                       Show one tier
  settier --caller <addr> --tier <id> --rate <bps> --lock <secs>
                                  Create or overwrite a tier (owner only)
  approve --caller <addr> <address>
                                  Whitelist a principal (owner only)
  revoke --caller <addr> <address>
                                  Remove a principal from the whitelist
  deposit --address <addr> --tier <id> --amount <n>
                                  Stake into a tier
  claim --address <addr> --tier <id>
                                  Claim a matured stake
  stake <address> <tier>          Show one stake record
  stakes <address>                List all stakes of a principal
  account <address>               Show whitelist/cooldown/claim state
  balance <address>               Show escrow balance
  events [--from <seq>] [--limit <n>]
                                  List audit-log events
  watch [--channels <a,b>]        Stream committed events over WebSocket
`)
}

// ── status ──────────────────────────────────────────────────────────────

func cmdStatus(client *rpcclient.Client) {
	var info rpc.StakingInfoResult
	if err := client.Call("staking_getInfo", map[string]string{}, &info); err != nil {
		fatal("staking_getInfo: %v", err)
	}

	fmt.Printf("Ledger:   %s\n", info.LedgerID)
	fmt.Printf("Genesis:  %s\n", info.GenesisHash)
	fmt.Printf("Owner:    %s\n", info.Owner)
	fmt.Printf("Cooldown: %s\n", formatDuration(info.CooldownSeconds))
	fmt.Printf("Tiers:    %d\n", info.TierCount)
	fmt.Printf("Events:   %d\n", info.EventSeq)
}

// ── tiers ───────────────────────────────────────────────────────────────

func cmdTiers(client *rpcclient.Client) {
	var result rpc.TierListResult
	if err := client.Call("staking_listTiers", map[string]string{}, &result); err != nil {
		fatal("staking_listTiers: %v", err)
	}

	if result.Count == 0 {
		fmt.Println("No tiers configured.")
		return
	}

	fmt.Printf("Tiers: %d\n\n", result.Count)
	for _, t := range result.Tiers {
		fmt.Printf("  [%d] rate %s, lock %s\n", t.Tier, formatRate(t.RateBps), formatDuration(t.LockSeconds))
	}
}

func cmdTier(client *rpcclient.Client, args []string) {
	if len(args) < 1 {
		fatal("Usage: tiervault-cli tier <id>")
	}
	id, err := parseTierID(args[0])
	if err != nil {
		fatal("invalid tier id: %v", err)
	}

	var result rpc.TierResult
	if err := client.Call("staking_getTier", rpc.TierParam{Tier: id}, &result); err != nil {
		fatal("staking_getTier: %v", err)
	}

	fmt.Printf("Tier: %d\n", result.Tier)
	if !result.Configured {
		fmt.Println("Not configured.")
		return
	}
	fmt.Printf("Rate: %s (%d bps)\n", formatRate(result.RateBps), result.RateBps)
	fmt.Printf("Lock: %s\n", formatDuration(result.LockSeconds))
}

func cmdSetTier(client *rpcclient.Client, args []string) {
	fs := flag.NewFlagSet("settier", flag.ExitOnError)
	caller := fs.String("caller", "", "Owner address")
	tierStr := fs.String("tier", "", "Tier id (1-255)")
	rate := fs.Uint64("rate", 0, "Reward rate in basis points")
	lock := fs.Int64("lock", 0, "Lock duration in seconds")
	fs.Parse(args)

	if *caller == "" || *tierStr == "" || *lock == 0 {
		fatal("Usage: tiervault-cli settier --caller <addr> --tier <id> --rate <bps> --lock <secs>")
	}
	id, err := parseTierID(*tierStr)
	if err != nil {
		fatal("invalid tier id: %v", err)
	}

	var result rpc.TierResult
	if err := client.Call("staking_setTier", rpc.SetTierParam{
		Caller:      *caller,
		Tier:        id,
		RateBps:     *rate,
		LockSeconds: *lock,
	}, &result); err != nil {
		fatal("staking_setTier: %v", err)
	}

	fmt.Printf("Tier %d set: rate %s, lock %s\n",
		result.Tier, formatRate(result.RateBps), formatDuration(result.LockSeconds))
}

// ── whitelist ───────────────────────────────────────────────────────────

func cmdApprove(client *rpcclient.Client, args []string, approved bool) {
	fs := flag.NewFlagSet("approve", flag.ExitOnError)
	caller := fs.String("caller", "", "Owner address")
	fs.Parse(args)

	verb := "approve"
	if !approved {
		verb = "revoke"
	}
	if *caller == "" || fs.NArg() < 1 {
		fatal("Usage: tiervault-cli %s --caller <addr> <address>", verb)
	}

	var result rpc.AccountResult
	if err := client.Call("staking_setApproval", rpc.SetApprovalParam{
		Caller:   *caller,
		Address:  fs.Arg(0),
		Approved: approved,
	}, &result); err != nil {
		fatal("staking_setApproval: %v", err)
	}

	if result.Approved {
		fmt.Printf("Approved: %s\n", result.Address)
	} else {
		fmt.Printf("Revoked:  %s\n", result.Address)
	}
}

// ── deposit / claim ─────────────────────────────────────────────────────

func cmdDeposit(client *rpcclient.Client, args []string) {
	fs := flag.NewFlagSet("deposit", flag.ExitOnError)
	address := fs.String("address", "", "Principal address")
	tierStr := fs.String("tier", "", "Tier id (1-255)")
	amount := fs.Uint64("amount", 0, "Amount in base units")
	fs.Parse(args)

	if *address == "" || *tierStr == "" || *amount == 0 {
		fatal("Usage: tiervault-cli deposit --address <addr> --tier <id> --amount <n>")
	}
	id, err := parseTierID(*tierStr)
	if err != nil {
		fatal("invalid tier id: %v", err)
	}

	var result rpc.DepositResult
	if err := client.Call("staking_deposit", rpc.DepositParam{
		Address: *address,
		Tier:    id,
		Amount:  *amount,
	}, &result); err != nil {
		fatal("staking_deposit: %v", err)
	}

	fmt.Printf("Deposit accepted.\n")
	fmt.Printf("  Staked: %d\n", result.Staked)
	fmt.Printf("  Reward: %d\n", result.Reward)
	fmt.Printf("  Unlock: %s\n", formatUnixTime(result.UnlockTime))
}

func cmdClaim(client *rpcclient.Client, args []string) {
	fs := flag.NewFlagSet("claim", flag.ExitOnError)
	address := fs.String("address", "", "Principal address")
	tierStr := fs.String("tier", "", "Tier id (1-255)")
	fs.Parse(args)

	if *address == "" || *tierStr == "" {
		fatal("Usage: tiervault-cli claim --address <addr> --tier <id>")
	}
	id, err := parseTierID(*tierStr)
	if err != nil {
		fatal("invalid tier id: %v", err)
	}

	var result rpc.ClaimResult
	if err := client.Call("staking_claim", rpc.ClaimParam{
		Address: *address,
		Tier:    id,
	}, &result); err != nil {
		fatal("staking_claim: %v", err)
	}

	fmt.Printf("Claim paid out: %d\n", result.Payout)
}

// ── stake / stakes / account / balance ──────────────────────────────────

func cmdStake(client *rpcclient.Client, args []string) {
	if len(args) < 2 {
		fatal("Usage: tiervault-cli stake <address> <tier>")
	}
	id, err := parseTierID(args[1])
	if err != nil {
		fatal("invalid tier id: %v", err)
	}

	var result rpc.StakeResult
	if err := client.Call("staking_getStake", rpc.StakeParam{
		Address: args[0],
		Tier:    id,
	}, &result); err != nil {
		fatal("staking_getStake: %v", err)
	}

	printStake(result)
}

func cmdStakes(client *rpcclient.Client, args []string) {
	if len(args) < 1 {
		fatal("Usage: tiervault-cli stakes <address>")
	}

	var result rpc.StakeListResult
	if err := client.Call("staking_listStakes", rpc.AddressParam{Address: args[0]}, &result); err != nil {
		fatal("staking_listStakes: %v", err)
	}

	if result.Count == 0 {
		fmt.Println("No stakes.")
		return
	}
	for _, s := range result.Stakes {
		printStake(s)
		fmt.Println()
	}
}

func printStake(s rpc.StakeResult) {
	fmt.Printf("Address: %s\n", s.Address)
	fmt.Printf("Tier:    %d\n", s.Tier)
	fmt.Printf("Staked:  %d\n", s.Staked)
	fmt.Printf("Reward:  %d\n", s.Reward)
	fmt.Printf("Unlock:  %s\n", formatUnixTime(s.UnlockTime))
	fmt.Printf("Claimed: %v\n", s.Claimed)
}

func cmdAccount(client *rpcclient.Client, args []string) {
	if len(args) < 1 {
		fatal("Usage: tiervault-cli account <address>")
	}

	var result rpc.AccountResult
	if err := client.Call("staking_getAccount", rpc.AddressParam{Address: args[0]}, &result); err != nil {
		fatal("staking_getAccount: %v", err)
	}

	fmt.Printf("Address:      %s\n", result.Address)
	fmt.Printf("Approved:     %v\n", result.Approved)
	fmt.Printf("Last deposit: %s\n", formatUnixTime(result.LastDeposit))
	fmt.Printf("Claimed:      %v\n", result.Claimed)
}

func cmdBalance(client *rpcclient.Client, args []string) {
	if len(args) < 1 {
		fatal("Usage: tiervault-cli balance <address>")
	}

	var result rpc.BalanceResult
	if err := client.Call("escrow_getBalance", rpc.AddressParam{Address: args[0]}, &result); err != nil {
		fatal("escrow_getBalance: %v", err)
	}

	fmt.Printf("Address: %s\n", result.Address)
	fmt.Printf("Balance: %d\n", result.Balance)
}

// ── events ──────────────────────────────────────────────────────────────

func cmdEvents(client *rpcclient.Client, args []string) {
	fs := flag.NewFlagSet("events", flag.ExitOnError)
	from := fs.Uint64("from", 0, "First sequence number")
	limit := fs.Int("limit", 20, "Max events to return")
	fs.Parse(args)

	var result rpc.EventListResult
	if err := client.Call("staking_listEvents", rpc.EventsParam{
		From:  *from,
		Limit: *limit,
	}, &result); err != nil {
		fatal("staking_listEvents: %v", err)
	}

	fmt.Printf("Events: %d (latest seq %d)\n\n", result.Count, result.Latest)
	for _, e := range result.Events {
		data, err := json.Marshal(e)
		if err != nil {
			continue
		}
		fmt.Printf("%s\n", data)
	}
}

// ── watch ───────────────────────────────────────────────────────────────

func cmdWatch(rpcURL string, args []string) {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	channels := fs.String("channels", "", "Comma-separated event kinds (empty = all)")
	fs.Parse(args)

	wsURL, err := feedURL(rpcURL)
	if err != nil {
		fatal("invalid rpc url: %v", err)
	}

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		fatal("connect %s: %v", wsURL, err)
	}
	defer conn.Close()

	if *channels != "" {
		sub := map[string]interface{}{
			"type": "subscribe",
			"data": map[string]interface{}{
				"channels": strings.Split(*channels, ","),
			},
		}
		if err := conn.WriteJSON(sub); err != nil {
			fatal("subscribe: %v", err)
		}
	}

	fmt.Fprintf(os.Stderr, "Watching %s (Ctrl-C to stop)\n", wsURL)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	done := make(chan struct{})

	go func() {
		defer close(done)
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				fmt.Fprintf(os.Stderr, "Connection closed: %v\n", err)
				return
			}
			fmt.Printf("%s\n", data)
		}
	}()

	select {
	case <-sigCh:
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
	case <-done:
	}
}

// feedURL converts the HTTP RPC endpoint into the /ws feed URL.
func feedURL(rpcURL string) (string, error) {
	u, err := url.Parse(rpcURL)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	u.Path = "/ws"
	return u.String(), nil
}

// ── helpers ─────────────────────────────────────────────────────────────

func parseTierID(s string) (uint8, error) {
	v, err := strconv.ParseUint(s, 10, 8)
	if err != nil {
		return 0, err
	}
	if v == 0 {
		return 0, fmt.Errorf("tier id 0 is reserved")
	}
	return uint8(v), nil
}

func formatRate(bps uint64) string {
	return fmt.Sprintf("%.2f%%", float64(bps)/100)
}

func formatDuration(seconds int64) string {
	if seconds%86400 == 0 && seconds != 0 {
		return fmt.Sprintf("%dd", seconds/86400)
	}
	return (time.Duration(seconds) * time.Second).String()
}

func formatUnixTime(ts int64) string {
	if ts == 0 {
		return "-"
	}
	return fmt.Sprintf("%d (%s)", ts, time.Unix(ts, 0).UTC().Format("2006-01-02 15:04:05 UTC"))
}

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
