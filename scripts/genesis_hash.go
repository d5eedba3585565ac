// genesis_hash.go prints the canonical hash of a genesis file, or of the
// built-in mainnet/devnet genesis when given a network name instead of a path.
// Usage: go run scripts/genesis_hash.go <genesis.json | mainnet | devnet>
package main

import (
	"fmt"
	"os"

	"github.com/tiervault/tiervault/config"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: genesis_hash <genesis.json | mainnet | devnet>")
		os.Exit(1)
	}

	var gen *config.Genesis
	switch os.Args[1] {
	case "mainnet":
		gen = config.MainGenesis()
	case "devnet":
		gen = config.DevGenesis()
	default:
		var err error
		gen, err = config.LoadGenesis(os.Args[1])
		if err != nil {
			fmt.Fprintf(os.Stderr, "load genesis: %v\n", err)
			os.Exit(1)
		}
	}

	if err := gen.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid genesis: %v\n", err)
		os.Exit(1)
	}
	hash, err := gen.Hash()
	if err != nil {
		fmt.Fprintf(os.Stderr, "hash genesis: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("%s  %s\n", hash, gen.LedgerID)
}
