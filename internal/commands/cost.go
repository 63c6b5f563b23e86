package commands

import (
	"errors"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/delimatsuo/headhunter-sub003/internal/config"
	"github.com/delimatsuo/headhunter-sub003/internal/costmetrics"
	"github.com/delimatsuo/headhunter-sub003/internal/logging"
)

func newCostCommand() *cobra.Command {
	var configPath string
	var rowsPath string
	cmd := &cobra.Command{
		Use:   "cost",
		Short: "Publish aggregated cost rows to the monitoring backend",
		Long: `Read collaborator-produced cost aggregation rows (JSON) and push them as
per-service, per-tenant, per-API, and per-period gauges. When no monitoring
backend is configured the command logs a skip and exits zero: cost
publication never gates CI.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			logger, err := logging.New(logging.Config{ServiceName: "headhunter-validate"})
			if err != nil {
				return err
			}

			path := rowsPath
			if path == "" {
				path = cfg.Cost.RowsPath
			}
			if path == "" {
				return errors.New("no cost rows file configured: set cost.rows_path or --rows")
			}
			rows, err := costmetrics.LoadRows(path)
			if err != nil {
				return err
			}

			publisher := costmetrics.NewPublisher(cfg.Cost.PushgatewayURL, cfg.Cost.Job, logger)
			if err := publisher.Publish(cmd.Context(), rows); err != nil {
				if errors.Is(err, costmetrics.ErrMonitoringUnavailable) {
					logger.Warn("cost metrics skipped", zap.Error(err))
					return nil
				}
				return err
			}
			return nil
		},
	}
	addConfigFlag(cmd, &configPath)
	cmd.Flags().StringVar(&rowsPath, "rows", "", "Path to the cost rows JSON file (overrides cost.rows_path)")
	return cmd
}
