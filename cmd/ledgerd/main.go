package main

import (
	"context"
	"fmt"
	"os"

	"github.com/slimefarm/ledger-engine/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "ledgerd:", err)
		os.Exit(1)
	}
}
