package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/onnwee/hmad-scout/clock"
	"github.com/onnwee/hmad-scout/codec"
	"github.com/onnwee/hmad-scout/match"
)

func inputFlagDef() cli.Flag {
	return &cli.StringFlag{
		Name:    inputFlag,
		Aliases: []string{"i"},
		Usage:   "Match export to read: text, JSON or YAML. \"-\" reads stdin.",
		Value:   stdioName,
	}
}

func outputFlagDef() cli.Flag {
	return &cli.StringFlag{
		Name:    outputFlag,
		Aliases: []string{"o"},
		Usage:   "Where to write the result. Can be a file path or \"-\" (for stdout).",
		Value:   stdioName,
	}
}

func formatFlagDef(def string, allowed ...string) cli.Flag {
	return &cli.StringFlag{
		Name:    formatFlag,
		Aliases: []string{"f"},
		Usage:   fmt.Sprintf("Output format, one of %v", allowed),
		Value:   def,
		Action: func(_ *cli.Context, v string) error {
			for _, a := range allowed {
				if v == a {
					return nil
				}
			}
			return fmt.Errorf("unknown format %q, want one of %v", v, allowed)
		},
	}
}

func retagFlagDef() cli.Flag {
	return &cli.BoolFlag{
		Name:  retagFlag,
		Usage: "Assign auto/buffer/teleop phases from event times (structured matches)",
	}
}

// readInput reads path, or the app reader for "-".
func readInput(cCtx *cli.Context, path string) ([]byte, error) {
	if path == stdioName {
		return io.ReadAll(cCtx.App.Reader)
	}
	return os.ReadFile(path)
}

// openOutput returns the writer for the output flag. Files are opened lazily.
func openOutput(cCtx *cli.Context) io.WriteCloser {
	if path := cCtx.String(outputFlag); path != stdioName {
		return newLazyFile(path)
	}
	return nopWriteCloser{cCtx.App.Writer}
}

// withOutput runs fn against the command output and closes it, reporting
// the first error.
func withOutput(cCtx *cli.Context, fn func(io.Writer) error) (err error) {
	out := openOutput(cCtx)
	defer func() {
		if cerr := out.Close(); err == nil {
			err = cerr
		}
	}()
	return fn(out)
}

// writeValue encodes v as YAML or JSON.
func writeValue(w io.Writer, format string, v any) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("encoding to YAML failed: %w", err)
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}

// parseMatch accepts a JSON document, match text, or a YAML document, in that
// order of detection. Legacy text without a version token is rejected since
// it carries no events.
func parseMatch(data []byte) (match.Match, int, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return match.Match{}, 0, fmt.Errorf("%w: empty input", match.ErrValidation)
	}
	if trimmed[0] == '{' {
		return codec.UnmarshalMatch(trimmed)
	}

	d, textErr := codec.Decode(string(trimmed))
	if textErr == nil {
		if d.Legacy() {
			return match.Match{}, 0, fmt.Errorf("%w: legacy text without a version token (team %q)", codec.ErrMalformedInput, d.Info.TeamNumber)
		}
		return d.Match, d.Skipped, nil
	}

	var doc codec.Document
	if err := yaml.Unmarshal(trimmed, &doc); err != nil {
		return match.Match{}, 0, textErr
	}
	return codec.FromDocument(doc)
}

func loadMatch(cCtx *cli.Context, path string) (match.Match, error) {
	data, err := readInput(cCtx, path)
	if err != nil {
		return match.Match{}, err
	}
	m, skipped, err := parseMatch(data)
	if err != nil {
		return match.Match{}, fmt.Errorf("%s: %w", path, err)
	}
	if skipped > 0 {
		fmt.Fprintf(cCtx.App.ErrWriter, "%s: skipped %d unreadable entries\n", path, skipped)
	}
	if cCtx.Bool(retagFlag) {
		clock.Retag(&m)
	}
	return m, nil
}
