// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/adiadia/flowsim/internal/clock"
	"github.com/adiadia/flowsim/internal/demos"
	"github.com/adiadia/flowsim/internal/domain"
	"github.com/adiadia/flowsim/internal/sequencer"
	"github.com/spf13/cobra"
)

type playOptions struct {
	Demo    string
	Fixture string
	Query   string
	Mode    string
	Speed   float64
	Clock   clock.Clock
	Logger  *slog.Logger
}

func newPlayCmd(loggerFor func(*cobra.Command) *slog.Logger) *cobra.Command {
	opts := playOptions{Speed: 1}

	cmd := &cobra.Command{
		Use:   "play <demo> [fixture]",
		Short: "Play one scenario with real timing",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog, err := demos.Load()
			if err != nil {
				return err
			}
			opts.Demo = args[0]
			if len(args) == 2 {
				opts.Fixture = args[1]
			}
			opts.Clock = clock.Real{}
			opts.Logger = loggerFor(cmd)

			_, err = play(cmd.Context(), cmd.OutOrStdout(), catalog, opts)
			return err
		},
	}
	cmd.Flags().StringVarP(&opts.Query, "query", "q", "", "free-text query used to pick a fixture")
	cmd.Flags().StringVarP(&opts.Mode, "mode", "m", "", "force a demo mode (rag: cache-hit|cache-miss, talktodata: success|healing)")
	cmd.Flags().Float64VarP(&opts.Speed, "speed", "s", 1, "playback speed multiplier (0.1 to 10)")
	return cmd
}

// play runs one scenario to completion, printing every node, edge and error
// change as it happens, then the published result once fully revealed.
func play(ctx context.Context, w io.Writer, catalog *demos.Catalog, opts playOptions) (sequencer.RunInfo, error) {
	d, err := catalog.Get(opts.Demo)
	if err != nil {
		return sequencer.RunInfo{}, err
	}
	f, err := d.Resolve(opts.Fixture, opts.Query, opts.Mode)
	if err != nil {
		return sequencer.RunInfo{}, err
	}

	seq := sequencer.New(d, sequencer.Options{Clock: opts.Clock, Logger: opts.Logger})
	defer seq.Close()
	if err := seq.SetSpeed(opts.Speed); err != nil {
		return sequencer.RunInfo{}, err
	}

	snaps, unsubscribe := seq.Subscribe(256)
	defer unsubscribe()
	prev := <-snaps

	info, err := seq.RunScenario(f)
	if err != nil {
		return sequencer.RunInfo{}, err
	}
	fmt.Fprintf(w, "%s / %s", d.Title(), f.Label)
	if info.Mode != "" {
		fmt.Fprintf(w, " [%s]", info.Mode)
	}
	fmt.Fprintf(w, "\n  %q\n\n", f.Query)

	for !seq.Idle() {
		select {
		case <-ctx.Done():
			return info, ctx.Err()
		case snap, ok := <-snaps:
			if !ok {
				return info, sequencer.ErrClosed
			}
			printChanges(w, opts.Clock.Now().Sub(info.StartedAt), prev, snap)
			prev = snap
		}
	}
	// The last change is already queued once the sequencer reports idle.
	select {
	case snap := <-snaps:
		printChanges(w, opts.Clock.Now().Sub(info.StartedAt), prev, snap)
		prev = snap
	default:
	}

	printResult(w, prev)
	return info, nil
}

func printChanges(w io.Writer, at time.Duration, prev, cur domain.Snapshot) {
	stamp := fmt.Sprintf("[%6.2fs]", at.Seconds())

	ids := make([]string, 0, len(cur.Nodes))
	for id := range cur.Nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		status, msg := cur.Nodes[id], cur.Messages[id]
		if status == prev.Nodes[id] && msg == prev.Messages[id] {
			continue
		}
		line := fmt.Sprintf("%s %-18s %s", stamp, id, status)
		if msg != "" {
			line += "  " + msg
		}
		fmt.Fprintln(w, line)
	}

	if added := diffEdges(cur.ActiveEdges, prev.ActiveEdges); len(added) > 0 {
		fmt.Fprintf(w, "%s edges +%s\n", stamp, strings.Join(added, " +"))
	}
	if cur.Error != "" && cur.Error != prev.Error {
		fmt.Fprintf(w, "%s error: %s\n", stamp, cur.Error)
	}
	if cur.Error == "" && prev.Error != "" {
		fmt.Fprintf(w, "%s error cleared\n", stamp)
	}
}

func diffEdges(cur, prev []string) []string {
	seen := make(map[string]bool, len(prev))
	for _, id := range prev {
		seen[id] = true
	}
	var out []string
	for _, id := range cur {
		if !seen[id] {
			out = append(out, id)
		}
	}
	return out
}

func printResult(w io.Writer, snap domain.Snapshot) {
	fmt.Fprintln(w)
	if snap.Result != nil {
		fmt.Fprintln(w, snap.RevealedText)
		for _, src := range snap.Result.Sources {
			fmt.Fprintf(w, "  - %s p.%d (%.0f%%)\n", src.Name, src.Page, src.Relevance*100)
		}
		for _, field := range snap.Result.Fields {
			fmt.Fprintf(w, "  %s: %s\n", field.Key, field.Value)
		}
	}

	keys := make([]string, 0, len(snap.Metrics))
	for k := range snap.Metrics {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fmt.Fprintln(w)
	for _, k := range keys {
		fmt.Fprintf(w, "  %-12s %v\n", k, snap.Metrics[k])
	}
}
