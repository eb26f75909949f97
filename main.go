package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/cors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"coffeefarm/dashboard"
	"coffeefarm/middleware"
	"coffeefarm/ratelim"
	"coffeefarm/records"
	"coffeefarm/reports"
	"coffeefarm/routes"
	"coffeefarm/seed"
	"coffeefarm/views"
	"coffeefarm/websock"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:          "coffeefarm",
		Short:        "Coffee farm records service",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "path to the YAML config file")
	root.AddCommand(serveCmd(), seedCmd(), exportCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and websocket server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			a, err := newApp(ctx, configPath)
			if err != nil {
				return err
			}
			defer a.Close(context.Background())
			return serve(ctx, a)
		},
	}
}

func serve(ctx context.Context, a *app) error {
	cfg := a.cfg
	logger := a.logger

	exporter := reports.NewExporter(reports.Options{
		LogoPath:  cfg.Reports.LogoPath,
		PublicURL: cfg.Reports.PublicURL,
		Loc:       cfg.Location(),
		Logger:    logger,
	})
	exporter.Prepare(ctx)

	hub := websock.NewHub(a.metrics)
	go hub.Run()

	rateLimiter := ratelim.NewRateLimiter(cfg.HTTP.RateLimit, cfg.HTTP.RateBurst, 10*time.Minute)
	rateLimiter.Start(time.Minute)
	defer rateLimiter.Stop()

	recordDeps := &records.Deps{
		States:  a.states,
		Hub:     hub,
		Loc:     cfg.Location(),
		Logger:  logger,
		Metrics: a.metrics,
	}
	router := routes.RoutesWrapper(&routes.Deps{
		Auth:           a.auth,
		Records:        recordDeps,
		Dashboard:      &dashboard.Handlers{Deps: recordDeps, Exporter: exporter},
		Hub:            hub,
		RateLimiter:    rateLimiter,
		Metrics:        a.metrics,
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		Logger:         logger,
	})

	// CORS → security headers → logging → router
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.HTTP.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: true,
	}).Handler(router)
	handler := middleware.Logging(logger, a.metrics)(middleware.SecurityHeaders(corsHandler))

	server := &http.Server{
		Addr:              cfg.Port,
		Handler:           handler,
		ReadTimeout:       7 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 2 * time.Second,
	}
	server.RegisterOnShutdown(func() {
		logger.Info("shutting down websocket hub")
		hub.Stop()
	})

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.String("addr", cfg.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutdown signal received")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	logger.Info("server stopped cleanly")
	return nil
}

func seedCmd() *cobra.Command {
	var (
		ownerFlag string
		force     bool
	)
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Write the example records for an owner",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, configPath)
			if err != nil {
				return err
			}
			defer a.Close(context.Background())

			owner, err := a.owner(ctx, ownerFlag)
			if err != nil {
				return err
			}
			res, err := seed.Examples(ctx, a.store, a.cfg.Namespace(), owner, seed.Options{
				Force:  force,
				Loc:    a.cfg.Location(),
				Logger: a.logger,
			})
			if err != nil {
				return err
			}
			if res.AlreadySeeded {
				fmt.Fprintln(cmd.OutOrStdout(), "examples already written; use --force to write them again")
				return nil
			}
			for kind, n := range res.Inserted {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %d\n", kind, n)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&ownerFlag, "owner", "", "owner id (defaults to the INITIAL_AUTH_TOKEN user)")
	cmd.Flags().BoolVar(&force, "force", false, "write the examples even if they were written before")
	return cmd
}

func exportCmd() *cobra.Command {
	var (
		ownerFlag, format, plotID, employeeID, start, end, out string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the activity PDF or the production spreadsheet",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, configPath)
			if err != nil {
				return err
			}
			defer a.Close(context.Background())

			owner, err := a.owner(ctx, ownerFlag)
			if err != nil {
				return err
			}
			state, release, err := a.states.Acquire(ctx, owner)
			if err != nil {
				return err
			}
			defer release()
			readyCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
			defer cancel()
			if err := state.Ready(readyCtx); err != nil {
				return fmt.Errorf("load records: %w", err)
			}

			loc := a.cfg.Location()
			now := time.Now().In(loc)
			ix := views.NewIndex(state.Plots(), state.Employees())
			exporter := reports.NewExporter(reports.Options{
				LogoPath:  a.cfg.Reports.LogoPath,
				PublicURL: a.cfg.Reports.PublicURL,
				Loc:       loc,
				Logger:    a.logger,
			})

			var write func(*os.File) error
			switch format {
			case "pdf":
				exporter.Prepare(ctx)
				if err := exporter.Wait(ctx); err != nil {
					return err
				}
				f := views.ActivityFilter{PlotID: plotID, Start: start, End: end}
				if start == "" && end == "" {
					window := views.DefaultActivityWindow(now)
					f.Start, f.End = window.Start, window.End
				}
				plotName := ""
				if plotID != "" {
					plotName = ix.PlotName(plotID, "")
				}
				if out == "" {
					out = reports.ActivitiesFilename(plotName, now)
				}
				acts := views.ActivityList(state.Activities(), f, ix, loc)
				write = func(file *os.File) error { return exporter.ActivitiesPDF(file, acts, plotName, f, now) }
			case "xlsx":
				if out == "" {
					out = reports.ProductionFilename(now)
				}
				recs := views.FilterHarvests(state.Harvests(), views.HarvestFilter{PlotID: plotID, EmployeeID: employeeID}, ix)
				write = func(file *os.File) error { return exporter.ProductionXLSX(file, recs, views.Production(recs)) }
			default:
				return fmt.Errorf("unknown format %q (pdf or xlsx)", format)
			}

			file, err := os.Create(out)
			if err != nil {
				return err
			}
			if err := write(file); err != nil {
				_ = file.Close()
				return err
			}
			if err := file.Close(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}
	cmd.Flags().StringVar(&ownerFlag, "owner", "", "owner id (defaults to the INITIAL_AUTH_TOKEN user)")
	cmd.Flags().StringVar(&format, "format", "pdf", "pdf (activities) or xlsx (production)")
	cmd.Flags().StringVar(&plotID, "plot", "", "plot id")
	cmd.Flags().StringVar(&employeeID, "employee", "", "employee id (xlsx only)")
	cmd.Flags().StringVar(&start, "start", "", "first day, YYYY-MM-DD (pdf only)")
	cmd.Flags().StringVar(&end, "end", "", "last day, YYYY-MM-DD (pdf only)")
	cmd.Flags().StringVarP(&out, "output", "o", "", "output file")
	return cmd
}
