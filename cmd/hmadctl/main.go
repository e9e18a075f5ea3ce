// Command hmadctl works with scouting match exports offline: it decodes and
// encodes match text, scores matches, and aggregates statistics over a set
// of exports. Its db commands manage the Postgres schema and payload
// encryption of a deployed service.
//
// Usage:
//
//	hmadctl decode [-i FILE] [-o FILE] [--format yaml|json|text] [--lenient] [--retag]
//	hmadctl encode [-i FILE] [-o FILE]
//	hmadctl score  [-i FILE] [--motif PGP] [--auto-pattern ...] [--park full] ...
//	hmadctl stats  [--format yaml|json] FILE...
//	hmadctl db migrate|down|version|encrypt-payloads
//
// "-" (the default) reads stdin or writes stdout. Output files are only
// created once there is something to write.
package main

import (
	"log"
	"os"

	"github.com/urfave/cli/v2"
)

const (
	inputFlag   = "input"
	outputFlag  = "output"
	formatFlag  = "format"
	lenientFlag = "lenient"
	retagFlag   = "retag"
	stdioName   = "-"
)

var build string
var semanticVersion = "v0.1.0-dev" + build

func newApp() *cli.App {
	return &cli.App{
		Name:    "hmadctl",
		Usage:   "Decode, encode, score and summarize scouting match exports",
		Version: semanticVersion,
		Commands: []*cli.Command{
			decodeCommand(),
			encodeCommand(),
			scoreCommand(),
			statsCommand(),
			dbCommand(),
		},
	}
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
