package main

import (
	"os"

	"github.com/ledgerwatch/log/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"plinko-ubt/internal/config"
)

type app struct {
	v      *viper.Viper
	cfg    config.Config
	logger log.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{v: config.New()}

	root := &cobra.Command{
		Use:   "plinko-ubt",
		Short: "Stem analysis and plinko conversion for PIR2 storage dumps",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Arguments are valid by now; later errors are not usage errors.
			cmd.SilenceUsage = true
			return a.setup(cmd)
		},
	}

	pf := root.PersistentFlags()
	pf.String(config.KeyLogLevel, "info", "log level (trace, debug, info, warn, error)")
	pf.Uint64(config.KeyProgressEvery, 0, "log progress every N records (default 1000000)")
	pf.String(config.KeyMetricsTextfile, "", "write run metrics to this node-exporter textfile")

	root.AddCommand(
		a.analyzeCmd(),
		a.convertCmd(),
		a.resortCmd(),
		a.verifyCmd(),
		a.lookupCmd(),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command) error {
	if err := config.BindFlags(a.v, cmd.Flags()); err != nil {
		return err
	}
	cfg, err := config.Load(a.v)
	if err != nil {
		return err
	}
	a.cfg = cfg

	handler := log.StderrHandler
	if w := cmd.ErrOrStderr(); w != os.Stderr {
		handler = log.StreamHandler(w, log.LogfmtFormat())
	}
	log.Root().SetHandler(log.LvlFilterHandler(cfg.LogLevel, handler))
	a.logger = log.Root()
	return nil
}
