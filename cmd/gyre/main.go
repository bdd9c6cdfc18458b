// Package main is the entry point for the gyre loop-control CLI.
package main

import (
	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
)

// Build-time variables (set via ldflags)
var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

func init() {
	// Load .env for executor credentials and the like.
	_ = godotenv.Load()
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("gyre"),
		kong.Description("Loop-control engine for coding agents: plan, execute, verify, checkpoint."),
		kong.UsageOnError(),
	)
	ctx.FatalIfErrorf(ctx.Run())
}
