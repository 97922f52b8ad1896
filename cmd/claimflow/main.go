// Package main provides the CLI entry point for claimflow.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/blackms/claimflow/cmd/claimflow/commands"
	domainClaims "github.com/blackms/claimflow/internal/domain/claims"
)

var (
	version = "0.1.0"
)

func main() {
	root := commands.NewRootCmd(version)
	if err := root.ExecuteContext(context.Background()); err != nil {
		var ce *domainClaims.ClaimError
		if errors.As(err, &ce) {
			fmt.Fprintf(os.Stderr, "Error [%s]: %s\n", ce.Code, ce.Message)
			os.Exit(2)
		}
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
