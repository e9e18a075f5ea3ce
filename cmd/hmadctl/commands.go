package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/onnwee/hmad-scout/clock"
	"github.com/onnwee/hmad-scout/codec"
	"github.com/onnwee/hmad-scout/match"
	"github.com/onnwee/hmad-scout/scoring"
	"github.com/onnwee/hmad-scout/stats"
)

type decodeOutput struct {
	Version string         `json:"version" yaml:"version"`
	Info    *codec.Info    `json:"info,omitempty" yaml:"info,omitempty"`
	Skipped int            `json:"skipped" yaml:"skipped"`
	Match   codec.Document `json:"match" yaml:"match"`
}

type scoreOutput struct {
	Input     scoring.Input     `json:"input" yaml:"input"`
	Breakdown scoring.Breakdown `json:"breakdown" yaml:"breakdown"`
}

type statsOutput struct {
	Report     stats.Report `json:"report" yaml:"report"`
	CycleTimes []float64    `json:"cycleTimes" yaml:"cycleTimes"`
}

func decodeCommand() *cli.Command {
	return &cli.Command{
		Name:  "decode",
		Usage: "Decode match text into a document",
		Flags: []cli.Flag{
			inputFlagDef(),
			outputFlagDef(),
			formatFlagDef("yaml", "yaml", "json", "text"),
			&cli.BoolFlag{Name: lenientFlag, Usage: "Report text without a header separator as a legacy blob instead of failing"},
			retagFlagDef(),
		},
		Action: func(cCtx *cli.Context) error {
			data, err := readInput(cCtx, cCtx.String(inputFlag))
			if err != nil {
				return err
			}
			text := strings.TrimSpace(string(data))
			var d *codec.Decoded
			if cCtx.Bool(lenientFlag) {
				d = codec.DecodeLenient(text)
			} else if d, err = codec.Decode(text); err != nil {
				return err
			}
			if cCtx.Bool(retagFlag) && !d.Legacy() {
				clock.Retag(&d.Match)
			}

			return withOutput(cCtx, func(w io.Writer) error {
				if cCtx.String(formatFlag) == "text" {
					_, err := fmt.Fprintln(w, codec.Encode(d.Match))
					return err
				}
				return writeValue(w, cCtx.String(formatFlag), decodeOutput{
					Version: d.Match.Version.String(),
					Info:    d.Info,
					Skipped: d.Skipped,
					Match:   codec.ToDocument(d.Match),
				})
			})
		},
	}
}

func encodeCommand() *cli.Command {
	return &cli.Command{
		Name:  "encode",
		Usage: "Encode a JSON or YAML match document as shareable text",
		Flags: []cli.Flag{inputFlagDef(), outputFlagDef()},
		Action: func(cCtx *cli.Context) error {
			m, err := loadMatch(cCtx, cCtx.String(inputFlag))
			if err != nil {
				return err
			}
			return withOutput(cCtx, func(w io.Writer) error {
				_, err := fmt.Fprintln(w, codec.Encode(m))
				return err
			})
		},
	}
}

func scoreCommand() *cli.Command {
	return &cli.Command{
		Name:  "score",
		Usage: "Compute the score breakdown of a match",
		Flags: []cli.Flag{
			inputFlagDef(),
			outputFlagDef(),
			formatFlagDef("yaml", "yaml", "json"),
			&cli.StringFlag{Name: "motif", Usage: "Three character motif such as PGP"},
			&cli.StringFlag{Name: "auto-pattern", Usage: "Artifact colors in the ramp after auto, up to 9 of P/G"},
			&cli.StringFlag{Name: "teleop-pattern", Usage: "Artifact colors in the ramp at full time, up to 9 of P/G"},
			&cli.BoolFlag{Name: "leave", Usage: "The robot left the launch line in auto"},
			&cli.StringFlag{Name: "park", Usage: "End of match park: none, partial or full", Value: string(scoring.ParkNone)},
		},
		Action: func(cCtx *cli.Context) error {
			m, err := loadMatch(cCtx, cCtx.String(inputFlag))
			if err != nil {
				return err
			}
			park, err := scoring.ParsePark(cCtx.String("park"))
			if err != nil {
				return err
			}
			in := scoring.Input{
				Motif:         cCtx.String("motif"),
				AutoPattern:   cCtx.String("auto-pattern"),
				TeleopPattern: cCtx.String("teleop-pattern"),
				AutoLeave:     cCtx.Bool("leave"),
				TeleopPark:    park,
			}.Normalize()
			b, err := scoring.Compute(m, in)
			if err != nil {
				return err
			}
			return withOutput(cCtx, func(w io.Writer) error {
				return writeValue(w, cCtx.String(formatFlag), scoreOutput{Input: in, Breakdown: b})
			})
		},
	}
}

func statsCommand() *cli.Command {
	return &cli.Command{
		Name:      "stats",
		Usage:     "Aggregate statistics over one or more match exports",
		ArgsUsage: "FILE... (\"-\" or none reads a single match from stdin)",
		Flags: []cli.Flag{
			outputFlagDef(),
			formatFlagDef("yaml", "yaml", "json"),
			retagFlagDef(),
			&cli.StringFlag{Name: "team", Usage: "Only include matches scouting this team number"},
		},
		Action: func(cCtx *cli.Context) error {
			paths := cCtx.Args().Slice()
			if len(paths) == 0 {
				paths = []string{stdioName}
			}
			team := strings.TrimSpace(cCtx.String("team"))
			matches := make([]match.Match, 0, len(paths))
			for _, p := range paths {
				m, err := loadMatch(cCtx, p)
				if err != nil {
					return err
				}
				if team != "" && m.TeamNumber != team {
					continue
				}
				matches = append(matches, m)
			}
			if len(matches) == 0 {
				return fmt.Errorf("no matches to summarize")
			}
			return withOutput(cCtx, func(w io.Writer) error {
				return writeValue(w, cCtx.String(formatFlag), statsOutput{
					Report:     stats.Summarize(matches...),
					CycleTimes: stats.CycleTimes(matches...),
				})
			})
		},
	}
}
