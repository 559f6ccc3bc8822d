package main

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/joseph-ayodele/collateral-classifier/internal/app"
	"github.com/joseph-ayodele/collateral-classifier/internal/common"
)

// cli carries state shared by every subcommand.
type cli struct {
	cfgFile string
	v       *viper.Viper
	cfg     *common.Config
	logger  *slog.Logger
	out     io.Writer

	// flag name -> config key, bound after viper is built
	bindings map[*pflag.Flag]string
}

func newRootCmd() *cobra.Command {
	c := &cli{out: os.Stdout, bindings: map[*pflag.Flag]string{}}
	root := &cobra.Command{
		Use:           "collateral",
		Short:         "Classify the pages of loan collateral PDFs",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.init(cmd)
		},
	}
	root.PersistentFlags().StringVar(&c.cfgFile, "config", os.Getenv("CONFIG_FILE"), "optional YAML config file")
	c.bind(root.PersistentFlags(), "model", "model.path", func(fs *pflag.FlagSet) {
		fs.String("model", "", "model artifact path (overrides MODEL_PATH)")
	})
	c.bind(root.PersistentFlags(), "log-level", "logging.level", func(fs *pflag.FlagSet) {
		fs.String("log-level", "", "debug, info, warn or error")
	})

	root.AddCommand(
		newClassifyCmd(c),
		newWatchCmd(c),
		newModelInfoCmd(c),
		newJobsCmd(c),
	)
	return root
}

// bind registers a flag and remembers the config key it overrides.
func (c *cli) bind(fs *pflag.FlagSet, name, key string, define func(*pflag.FlagSet)) {
	define(fs)
	c.bindings[fs.Lookup(name)] = key
}

func (c *cli) init(cmd *cobra.Command) error {
	v, err := common.NewViper(c.cfgFile)
	if err != nil {
		return err
	}
	for f, key := range c.bindings {
		if f.Changed {
			if err := v.BindPFlag(key, f); err != nil {
				return err
			}
		}
	}
	c.v = v
	c.cfg = common.LoadConfig(v)

	// logs go to stderr so stdout stays machine readable
	c.logger, err = common.NewLogger(cmd.ErrOrStderr(), c.cfg.Logging.Level, c.cfg.Logging.Format)
	if err != nil {
		return err
	}
	slog.SetDefault(c.logger)
	c.out = cmd.OutOrStdout()
	return c.cfg.Validate()
}

func (c *cli) build(ctx context.Context, withStore bool) (*app.App, error) {
	return app.Build(ctx, c.cfg, c.logger, withStore)
}

func (c *cli) printJSON(v any) error {
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
