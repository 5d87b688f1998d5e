// Command discretionary-engine drives perpetual-futures positions through
// the Acquisition/Followup protocol state machine described in spec.md.
package main

import (
	"fmt"
	"os"

	"github.com/discretionary-eng/discretionary-engine/internal/cli"
	"github.com/discretionary-eng/discretionary-engine/internal/xerrors"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("No .env file found, using environment variables")
	}

	if err := cli.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, xerrors.Chain(err))
		os.Exit(xerrors.ExitCode(err))
	}
}
