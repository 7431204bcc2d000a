package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"archivist/internal/edl"
	"archivist/internal/logging"
	"archivist/internal/tsframe"
)

func newCutlistCommand(ctx *commandContext) *cobra.Command {
	var offset float64

	cmd := &cobra.Command{
		Use:         "cutlist <file>",
		Short:       "Show the commercial breaks and kept segments of a cut list",
		Args:        cobra.ExactArgs(1),
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			logger, err := logging.New(logging.Options{Level: "warn", OutputPaths: []string{"stderr"}})
			if err != nil {
				return err
			}
			cuts, err := edl.Parse(f, offset, logger)
			if err != nil {
				return err
			}
			if ctx.JSONMode() {
				return writeJSON(cmd, struct {
					Breaks [][2]float64 `json:"breaks"`
					Keep   [][2]float64 `json:"keep"`
				}{segmentBounds(cuts.Segments()), segmentBounds(cuts.Keep())})
			}
			out := cmd.OutOrStdout()
			if cuts.Len() == 0 {
				fmt.Fprintln(out, "No commercial breaks; the whole recording is kept")
				return nil
			}
			fmt.Fprintln(out, "Commercial breaks")
			fmt.Fprintln(out, renderTable([]string{"#", "Start", "End", "Length"}, segmentRows(cuts.Segments()),
				[]columnAlignment{alignRight, alignRight, alignRight, alignRight}))
			fmt.Fprintln(out, "Kept segments")
			fmt.Fprintln(out, renderTable([]string{"#", "Start", "End", "Length"}, segmentRows(cuts.Keep()),
				[]columnAlignment{alignRight, alignRight, alignRight, alignRight}))
			return nil
		},
	}

	cmd.Flags().Float64Var(&offset, "offset", 0, "Seconds added to every boundary (audio/video start skew)")
	return cmd
}

func segmentRows(segments []edl.Segment) [][]string {
	rows := make([][]string, 0, len(segments))
	for i, s := range segments {
		end, length := "end", ""
		if !s.IsOpen() {
			end = formatSeconds(s.End())
			length = formatSeconds(s.Duration())
		}
		rows = append(rows, []string{strconv.Itoa(i + 1), formatSeconds(s.Start()), end, length})
	}
	return rows
}

// segmentBounds renders open segments with a negative end.
func segmentBounds(segments []edl.Segment) [][2]float64 {
	out := make([][2]float64, 0, len(segments))
	for _, s := range segments {
		end := s.End()
		if s.IsOpen() {
			end = -1
		}
		out = append(out, [2]float64{s.Start(), end})
	}
	return out
}

func formatSeconds(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

type tsSummary struct {
	Frames    int64            `json:"frames"`
	Scrambled int64            `json:"scrambled"`
	ByType    map[string]int64 `json:"by_type"`
	PIDs      int              `json:"pids"`
	Error     string           `json:"error,omitempty"`
}

// scanTransportStream counts frames until the source ends or framing breaks.
// A framing error is reported in the summary, not returned.
func scanTransportStream(r io.Reader) (tsSummary, error) {
	summary := tsSummary{ByType: make(map[string]int64)}
	pids := make(map[uint16]struct{})
	reader := tsframe.NewReader(bufio.NewReaderSize(r, 64*tsframe.FrameSize))
	for {
		pkt, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if errors.Is(err, tsframe.ErrSyncLost) || errors.Is(err, tsframe.ErrShortFrame) || errors.Is(err, tsframe.ErrAdaptationOverflow) {
				summary.Error = err.Error()
				break
			}
			return summary, err
		}
		summary.Frames++
		if pkt.IsScrambled() {
			summary.Scrambled++
		}
		summary.ByType[pkt.Type().String()]++
		pids[pkt.PID] = struct{}{}
	}
	summary.PIDs = len(pids)
	return summary, nil
}

func newTSInfoCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:         "tsinfo <file>",
		Short:       "Summarise the packets of a transport stream file",
		Args:        cobra.ExactArgs(1),
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			summary, err := scanTransportStream(f)
			if err != nil {
				return err
			}
			if ctx.JSONMode() {
				return writeJSON(cmd, summary)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Frames: %d\nScrambled: %d\nDistinct PIDs: %d\n", summary.Frames, summary.Scrambled, summary.PIDs)
			types := make([]string, 0, len(summary.ByType))
			for typ := range summary.ByType {
				types = append(types, typ)
			}
			sort.Strings(types)
			rows := make([][]string, 0, len(types))
			for _, typ := range types {
				rows = append(rows, []string{typ, strconv.FormatInt(summary.ByType[typ], 10)})
			}
			if len(rows) > 0 {
				fmt.Fprintln(out, renderTable([]string{"Type", "Frames"}, rows, []columnAlignment{alignLeft, alignRight}))
			}
			if summary.Error != "" {
				fmt.Fprintf(out, "Stopped early: %s\n", summary.Error)
			}
			return nil
		},
	}
}
