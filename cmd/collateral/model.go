package main

import (
	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/collateral-classifier/internal/common"
	"github.com/joseph-ayodele/collateral-classifier/internal/model"
	"github.com/joseph-ayodele/collateral-classifier/internal/registry"
)

func newModelInfoCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "model-info",
		Short: "Show metadata of the configured model artifact",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			reg := registry.Load(c.cfg.Model.Path, c.logger)
			st := reg.Status()
			if !st.Loaded {
				_ = c.printJSON(map[string]any{
					"model_loaded": false,
					"path":         reg.Path(),
					"error":        st.LoadError,
				})
				return common.ErrModelUnavailable
			}
			return c.printJSON(struct {
				ModelLoaded bool   `json:"model_loaded"`
				Path        string `json:"path"`
				*model.Metadata
			}{true, reg.Path(), st.Metadata})
		},
	}
}
