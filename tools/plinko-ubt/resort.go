package main

import (
	"bufio"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"plinko-ubt/internal/config"
	"plinko-ubt/internal/metrics"
	"plinko-ubt/internal/pir2"
	"plinko-ubt/internal/resort"
)

func (a *app) resortCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resort <input.bin> <output.bin>",
		Short: "Rewrite a PIR2 dump in tree-key order",
		Long: `Loads every record of a PIR2 dump, sorts by tree key so that records sharing
a stem are adjacent, and writes a new PIR2 file with the same header. The
whole dump is held in memory.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runResort(cmd, args[0], args[1])
		},
	}
	cmd.Flags().String(config.KeyScheme, "raw", "tree index scheme: raw or eip7864")
	cmd.Flags().String(config.KeyStemIndex, "", "also write the stem offset index to this path")
	return cmd
}

func (a *app) runResort(cmd *cobra.Command, input, output string) error {
	start := time.Now()
	in, err := pir2.Open(input)
	if err != nil {
		return err
	}
	defer in.Close()

	var res resort.Result
	err = writeFileAtomic(output, func(w *bufio.Writer) error {
		var err error
		res, err = resort.Run(in, w, resort.Options{
			Scheme:        a.cfg.Scheme,
			ProgressEvery: a.cfg.ProgressEvery,
			Logger:        a.logger,
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("resort %s: %w", input, err)
	}

	if a.cfg.StemIndex != "" {
		err := writeFileAtomic(a.cfg.StemIndex, func(w *bufio.Writer) error {
			_, err := res.Index.WriteTo(w)
			return err
		})
		if err != nil {
			return fmt.Errorf("write stem index: %w", err)
		}
		a.logger.Info("Wrote stem index", "path", a.cfg.StemIndex, "stems", len(res.Index), "bytes", res.Index.Size())
	}

	m := metrics.New("resort")
	m.SetDistinct(a.cfg.Scheme.String()+"_stems", uint64(len(res.Index)))
	m.Finish(res.Records, time.Since(start))

	fmt.Fprintf(cmd.OutOrStdout(), "Sorted %d entries into %d %s stems: %s\n", res.Records, len(res.Index), a.cfg.Scheme, output)
	if err := m.WriteTextfile(a.cfg.MetricsTextfile); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}
	return nil
}
