package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/earshotfm/earshot/config"
	"github.com/earshotfm/earshot/internal/pipeline"
	srv "github.com/earshotfm/earshot/internal/server"
	"github.com/earshotfm/earshot/internal/store"
)

func main() {
	var root = &cobra.Command{Use: "earshot"}

	var serveAddr string
	var serve = &cobra.Command{
		Use:   "serve",
		Short: "Run HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if serveAddr == "" {
				serveAddr = os.Getenv("EARSHOT_HTTP_ADDR")
			}
			return srv.Run(serveAddr)
		},
	}
	serve.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config)")

	var migDir string
	var migDirDefault = "file://migrations"
	var direction string
	var steps int
	var cfgPath string
	var migrate = &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dsn := os.Getenv("DATABASE_URL")
			if dsn == "" {
				cfg := config.LoadConfig(cfgPath)
				if err := cfg.Databases.Postgres.Validate(); err != nil {
					return err
				}
				dsn = cfg.Databases.Postgres.DSN()
			}
			if migDir == "" {
				migDir = migDirDefault
			}
			return srv.Migrate(migDir, dsn, direction, steps)
		},
	}
	migrate.Flags().StringVar(&migDir, "dir", migDirDefault, "migrations source (file://migrations)")
	migrate.Flags().StringVar(&direction, "direction", "up", "up or down")
	migrate.Flags().IntVar(&steps, "steps", 0, "number of steps (0 = all)")
	migrate.Flags().StringVarP(&cfgPath, "config", "c", "", "config file (default is .)")

	var reapCfgPath string
	var reap = &cobra.Command{
		Use:   "reap",
		Short: "Fail and release episodes stuck past the recovery threshold",
		RunE: func(cmd *cobra.Command, args []string) error {
			dsn := os.Getenv("DATABASE_URL")
			pcfg := config.PipelineConfig{}.Normalize()
			if dsn == "" {
				cfg := config.LoadConfig(reapCfgPath)
				if err := cfg.Databases.Postgres.Validate(); err != nil {
					return err
				}
				dsn = cfg.Databases.Postgres.DSN()
				pcfg = cfg.Pipeline
			}
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()
			st, err := store.NewWithDSN(ctx, dsn)
			if err != nil {
				return err
			}
			defer st.DB.Close()
			reaped, err := pipeline.NewReaper(st, nil, pcfg, nil).ReapStuck(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("reaped %d stuck episode(s)\n", len(reaped))
			return nil
		},
	}
	reap.Flags().StringVarP(&reapCfgPath, "config", "c", "", "config file (default is .)")

	root.AddCommand(serve, migrate, reap)
	_ = root.Execute()
}
