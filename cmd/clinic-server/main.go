package main

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/clinic/clinic/internal/config"
	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/internal/platform/db"
	"github.com/clinic/clinic/internal/platform/sandbox"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "clinic-server",
		Short: "Clinic patient and payment API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(seedCmd())
	rootCmd.AddCommand(reportCmd())
	rootCmd.AddCommand(tokenCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the clinic API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run Postgres schema migrations",
	}

	withMigrator := func(run func(ctx context.Context, m *db.Migrator) error) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if cfg.StoreBackend != config.BackendPostgres {
			return fmt.Errorf("migrations apply to STORE_BACKEND=%s only", config.BackendPostgres)
		}

		ctx := context.Background()
		pool, err := db.NewPool(ctx, db.PoolConfig{URL: cfg.DatabaseURL, MaxConns: 2, MinConns: 1})
		if err != nil {
			return err
		}
		defer pool.Close()

		return run(ctx, db.NewMigrator(pool, migrationsFS(cfg)))
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(func(ctx context.Context, m *db.Migrator) error {
				count, err := m.Up(ctx)
				if err != nil {
					return fmt.Errorf("migration failed: %w", err)
				}
				fmt.Printf("Applied %d migration(s) successfully.\n", count)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(func(ctx context.Context, m *db.Migrator) error {
				statuses, err := m.Status(ctx)
				if err != nil {
					return fmt.Errorf("failed to get migration status: %w", err)
				}

				fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
				fmt.Println("---------- ---------------------------------------- ---------- --------------------")
				for _, s := range statuses {
					status := "pending"
					appliedAt := ""
					if s.Applied {
						status = "applied"
						if s.AppliedAt != nil {
							appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
						}
					}
					fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
				}
				return nil
			})
		},
	})

	return cmd
}

func seedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Generate demo patients and payments",
		RunE: func(cmd *cobra.Command, args []string) error {
			patients, _ := cmd.Flags().GetInt("patients")
			seed, _ := cmd.Flags().GetUint64("seed")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.IsProduction() {
				return fmt.Errorf("refusing to seed with ENV=production")
			}
			logger := newLogger(cfg.Env)

			ctx := context.Background()
			st, err := openStores(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer st.Close(ctx)

			svc, err := newService(cfg, st)
			if err != nil {
				return err
			}

			seedCfg := sandbox.DefaultSeedConfig()
			seedCfg.PatientCount = patients
			seedCfg.Seed = seed
			res, err := sandbox.NewSeeder(svc, logger).Seed(ctx, seedCfg)
			if err != nil {
				return err
			}
			fmt.Printf("Seeded %d patient(s) and %d payment(s) in %s.\n", res.Patients, res.Payments, res.Duration.Round(time.Millisecond))
			return nil
		},
	}
	cmd.Flags().Int("patients", 100, "Number of patients to generate")
	cmd.Flags().Uint64("seed", 0, "Random seed (0 picks one)")
	return cmd
}

func reportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Export reports",
	}

	monthly := &cobra.Command{
		Use:   "monthly",
		Short: "Write the monthly patient report as CSV or PDF",
		RunE: func(cmd *cobra.Command, args []string) error {
			month, _ := cmd.Flags().GetInt("month")
			year, _ := cmd.Flags().GetInt("year")
			format, _ := cmd.Flags().GetString("format")
			out, _ := cmd.Flags().GetString("out")

			format = strings.ToLower(format)
			if format != "csv" && format != "pdf" {
				return fmt.Errorf("--format must be csv or pdf, got %q", format)
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := newLogger(cfg.Env)

			ctx := context.Background()
			st, err := openStores(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer st.Close(ctx)

			svc, err := newService(cfg, st)
			if err != nil {
				return err
			}

			r, err := newAssembler(cfg, svc).BuildMonthlyReport(ctx, month, year)
			if err != nil {
				return err
			}

			var buf bytes.Buffer
			if format == "csv" {
				err = r.WriteCSV(&buf)
			} else {
				err = r.WritePDF(&buf)
			}
			if err != nil {
				return err
			}

			if out == "" {
				out = r.FileName() + "." + format
			}
			if err := os.WriteFile(out, buf.Bytes(), 0o644); err != nil {
				return fmt.Errorf("write %s: %w", out, err)
			}
			fmt.Printf("Wrote %s (%d patients, balance %d).\n", out, r.PatientCount, r.Totals.Balance)
			return nil
		},
	}
	now := time.Now()
	monthly.Flags().Int("month", int(now.Month()), "Month (1-12)")
	monthly.Flags().Int("year", now.Year(), "Year")
	monthly.Flags().String("format", "pdf", "Output format: csv or pdf")
	monthly.Flags().String("out", "", "Output file (default Patient_Report_<month>_<year>.<format>)")
	cmd.AddCommand(monthly)

	return cmd
}

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a signed access token",
		RunE: func(cmd *cobra.Command, args []string) error {
			subject, _ := cmd.Flags().GetString("subject")
			roles, _ := cmd.Flags().GetStringSlice("role")
			ttl, _ := cmd.Flags().GetDuration("ttl")

			if subject == "" {
				return fmt.Errorf("--subject is required")
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			token, err := auth.IssueToken(jwtConfig(cfg), subject, roles, ttl)
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}
	cmd.Flags().String("subject", "", "Token subject (user id)")
	cmd.Flags().StringSlice("role", []string{auth.RoleStaff}, "Role to grant (repeatable)")
	cmd.Flags().Duration("ttl", 12*time.Hour, "Token lifetime")
	return cmd
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Env)

	ctx := context.Background()
	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Str("backend", cfg.StoreBackend).Msg("failed to open store")
	}
	defer st.Close(context.Background())

	e, err := newServer(cfg, logger, st)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build server")
	}

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("backend", st.backend).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := e.Shutdown(sctx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}
