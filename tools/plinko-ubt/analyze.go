package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"plinko-ubt/internal/config"
	"plinko-ubt/internal/metrics"
	"plinko-ubt/internal/pir2"
	"plinko-ubt/internal/stemstats"
)

func (a *app) analyzeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze <state.bin>",
		Short: "Compare stem counts under raw-slot and EIP-7864 addressing",
		Long: `Reads a PIR2 storage dump (optionally .zst compressed) and reports how many
distinct stems its records occupy when the tree index is the raw slot and when
it is the EIP-7864 storage index.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runAnalyze(cmd.OutOrStdout(), args[0])
		},
	}
	cmd.Flags().Bool(config.KeyJSON, false, "print the report as JSON")
	return cmd
}

func (a *app) runAnalyze(w io.Writer, path string) error {
	start := time.Now()
	in, err := pir2.Open(path)
	if err != nil {
		return err
	}
	defer in.Close()

	a.logger.Info("Analyzing", "path", path, "compressed", pir2.IsCompressed(path))
	hdr, rep, err := stemstats.Analyze(in, stemstats.ScanOptions{
		ProgressEvery: a.cfg.ProgressEvery,
		Logger:        a.logger,
	})
	if err != nil {
		return fmt.Errorf("analyze %s: %w", path, err)
	}

	m := metrics.New("analyze")
	if rep.Truncated {
		m.Warn("truncated")
	}
	m.SetDistinct("addresses", rep.UniqueAddresses)
	m.SetDistinct("raw_stems", rep.RawStems)
	m.SetDistinct("eip7864_stems", rep.EIP7864Stems)
	m.Finish(rep.TotalRecords, time.Since(start))

	if a.cfg.JSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(rep); err != nil {
			return err
		}
	} else {
		fmt.Fprintf(w, "Chain: %s (block %d)\n", chainName(hdr.ChainID), hdr.BlockNumber)
		if err := rep.WriteText(w); err != nil {
			return err
		}
	}

	if err := m.WriteTextfile(a.cfg.MetricsTextfile); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}
	return nil
}
