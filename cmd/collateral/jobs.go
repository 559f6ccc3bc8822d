package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/collateral-classifier/internal/common"
	"github.com/joseph-ayodele/collateral-classifier/internal/entity"
	repo "github.com/joseph-ayodele/collateral-classifier/internal/repository"
	"github.com/joseph-ayodele/collateral-classifier/internal/server"
)

func newJobsCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect the classification audit store",
	}

	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List the most recent classification jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, jobs, err := c.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()
			recent, err := jobs.ListRecent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if recent == nil {
				recent = []*entity.ClassificationJob{}
			}
			return c.printJSON(recent)
		},
	}
	list.Flags().IntVarP(&limit, "limit", "n", 20, "number of jobs to show")

	get := &cobra.Command{
		Use:   "get <job-id>",
		Short: "Show one classification job with its predictions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("%w: invalid job id %q", common.ErrInvalidInput, args[0])
			}
			db, jobs, err := c.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()
			job, err := jobs.Get(cmd.Context(), id)
			if err != nil {
				return err
			}
			return c.printJSON(job)
		},
	}

	cmd.AddCommand(list, get)
	return cmd
}

// openStore connects to the audit store without loading the model.
func (c *cli) openStore(ctx context.Context) (*repo.DB, repo.ClassificationJobRepository, error) {
	db, jobs, err := server.ConnectStore(ctx, c.cfg.Database, c.logger)
	if err != nil {
		return nil, nil, err
	}
	if db == nil {
		return nil, nil, errors.New("no audit store configured, set DB_URL or SQLITE_PATH")
	}
	return db, jobs, nil
}
