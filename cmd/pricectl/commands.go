package main

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tropicaldog17/pricestore/internal/config"
	"github.com/tropicaldog17/pricestore/internal/db"
	apperrors "github.com/tropicaldog17/pricestore/internal/errors"
	"github.com/tropicaldog17/pricestore/internal/logger"
	"github.com/tropicaldog17/pricestore/internal/models"
	"github.com/tropicaldog17/pricestore/internal/repositories"
	"github.com/tropicaldog17/pricestore/internal/services"
)

type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	registry *models.AssetRegistry
}

func (a *app) openStore() (repositories.PriceHistoryRepository, error) {
	return repositories.NewFileHistoryRepository(a.cfg.Store.DataDir, a.registry, repositories.FileHistoryOptions{
		IndexInterval: a.cfg.Store.IndexInterval,
		Logger:        a.logger.Named("store"),
	})
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "pricectl",
		Short:         "Inspect and maintain the price history store",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			configFile, _ := cmd.Flags().GetString("config")
			cfg, err := config.Load(configFile)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if dir, _ := cmd.Flags().GetString("data-dir"); dir != "" {
				cfg.Store.DataDir = dir
			}
			if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
				cfg.Logging.Level = lvl
			}
			zl, err := logger.New(cfg.Logging)
			if err != nil {
				return err
			}
			registry, err := models.NewAssetRegistry(cfg.Pivot, models.DefaultAssets())
			if err != nil {
				return err
			}
			a.cfg, a.logger, a.registry = cfg, zl, registry
			return nil
		},
	}
	root.PersistentFlags().String("config", "", "config file path (default: ./config.yaml)")
	root.PersistentFlags().String("data-dir", "", "override store.data_dir")
	root.PersistentFlags().String("log-level", "warn", "log level (debug, info, warn, error)")

	root.AddCommand(
		newVerifyCmd(a),
		newReindexCmd(a),
		newLatestCmd(a),
		newHistoryCmd(a),
		newConvertCmd(a),
		newImportCmd(a),
		newIngestCmd(a),
		newFetchCmd(a),
	)
	return root
}

func newVerifyCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Check every series file and print its statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			history, err := a.openStore()
			if err != nil {
				var corrupt *apperrors.CorruptStoreError
				if errors.As(err, &corrupt) {
					fmt.Fprintf(cmd.OutOrStdout(), "CORRUPT %s line %d offset %d: %v\n", corrupt.Path, corrupt.Line, corrupt.Offset, corrupt.Err)
				}
				return err
			}
			defer history.Close()

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ASSET\tRECORDS\tFIRST\tLAST\tBYTES\tINDEX")
			for _, code := range history.Assets() {
				st, err := history.Stats(code)
				if err != nil {
					return err
				}
				fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%d\t%d\n", st.Asset, st.Count,
					st.First.Format(models.DateLayout), st.Last.Format(models.DateLayout), st.SizeBytes, st.IndexEntries)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "OK %d series\n", len(history.Assets()))
			return nil
		},
	}
}

func newReindexCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "reindex [ASSET...]",
		Short: "Rebuild the sparse index of the given series, or of all series",
		RunE: func(cmd *cobra.Command, args []string) error {
			history, err := a.openStore()
			if err != nil {
				return err
			}
			defer history.Close()

			codes := args
			if len(codes) == 0 {
				codes = history.Assets()
			}
			for _, code := range codes {
				if err := history.Reindex(code); err != nil {
					return fmt.Errorf("reindex %s: %w", code, err)
				}
				st, err := history.Stats(code)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %d records, %d index entries\n", st.Asset, st.Count, st.IndexEntries)
			}
			return nil
		},
	}
}

func newLatestCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "latest ASSET",
		Short: "Print the most recent rate of an asset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			history, err := a.openStore()
			if err != nil {
				return err
			}
			defer history.Close()

			rec, err := history.Latest(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s %s (%s)\n", rec.Asset, rec.DateString(),
				rec.Rate.String(), a.registry.Pivot().Code, rec.Source)
			return nil
		},
	}
}

func newHistoryCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history ASSET",
		Short: "Print the rates of an asset within a date range",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fromStr, _ := cmd.Flags().GetString("from")
			toStr, _ := cmd.Flags().GetString("to")
			format, _ := cmd.Flags().GetString("format")

			to := models.DateOnly(time.Now())
			if toStr != "" {
				d, err := models.ParseDate(toStr)
				if err != nil {
					return err
				}
				to = d
			}
			from := to.AddDate(0, 0, -30)
			if fromStr != "" {
				d, err := models.ParseDate(fromStr)
				if err != nil {
					return err
				}
				from = d
			}

			history, err := a.openStore()
			if err != nil {
				return err
			}
			defer history.Close()

			prices := services.NewPriceService(history, nil, nil, a.registry, a.logger)
			recs, err := prices.History(args[0], from, to)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			switch format {
			case "json":
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(recs)
			case "csv":
				w := csv.NewWriter(out)
				w.Write([]string{"asset", "date", "rate", "source"})
				for _, r := range recs {
					w.Write([]string{r.Asset, r.DateString(), r.Rate.String(), r.Source})
				}
				w.Flush()
				return w.Error()
			case "table":
				tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "DATE\tRATE\tSOURCE")
				for _, r := range recs {
					fmt.Fprintf(tw, "%s\t%s\t%s\n", r.DateString(), r.Rate.String(), r.Source)
				}
				return tw.Flush()
			default:
				return fmt.Errorf("unknown format %q", format)
			}
		},
	}
	cmd.Flags().String("from", "", "start date (default: 30 days before --to)")
	cmd.Flags().String("to", "", "end date (default: today)")
	cmd.Flags().String("format", "table", "output format: table, csv or json")
	return cmd
}

func newConvertCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   `convert "CODE AMOUNT" TARGET`,
		Short: "Convert an amount, e.g. convert \"USD 1,000.50\" EUR",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			money, err := ParseMoney(a.registry, args[0])
			if err != nil {
				return err
			}
			atStr, _ := cmd.Flags().GetString("at")
			maxStale, _ := cmd.Flags().GetDuration("max-staleness")

			var at *time.Time
			if atStr != "" && !strings.EqualFold(atStr, "latest") {
				d, err := models.ParseDate(atStr)
				if err != nil {
					return err
				}
				at = &d
			}

			history, err := a.openStore()
			if err != nil {
				return err
			}
			defer history.Close()

			conversion := services.NewConversionService(history, a.registry, services.ConversionOptions{
				MaxStaleness: a.cfg.Conversion.MaxStaleness,
				Logger:       a.logger,
			})
			res, err := conversion.Convert(cmd.Context(), models.ConversionRequest{
				From:         money.Asset.Code,
				To:           args[1],
				Amount:       money.Amount,
				At:           at,
				MaxStaleness: maxStale,
			})
			if err != nil {
				return err
			}
			target, _ := a.registry.Lookup(res.To)
			fmt.Fprintf(cmd.OutOrStdout(), "%s = %s\n", money, Money{Asset: target, Amount: res.Result})
			return nil
		},
	}
	cmd.Flags().String("at", "latest", "date (YYYY-MM-DD) or latest")
	cmd.Flags().Duration("max-staleness", 0, "reject rates older than this (default from config)")
	return cmd
}

func newImportCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import FILE...",
		Short: "Load historical rates from CSV files",
		Long: `Load historical rates from CSV files.

The header must name a date column (date or timestamp) and a rate column
(rate or close). An asset column is optional when --asset is given.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			assetCode, _ := cmd.Flags().GetString("asset")
			source, _ := cmd.Flags().GetString("source")
			delim, _ := cmd.Flags().GetString("delimiter")
			conventionStr, _ := cmd.Flags().GetString("convention")
			backfill, _ := cmd.Flags().GetBool("backfill")

			convention, err := parseConvention(conventionStr)
			if err != nil {
				return err
			}
			if len([]rune(delim)) != 1 {
				return fmt.Errorf("delimiter must be a single character")
			}
			opts := importOptions{
				Asset:      assetCode,
				Source:     source,
				Delimiter:  []rune(delim)[0],
				Convention: convention,
				Backfill:   backfill,
			}

			history, err := a.openStore()
			if err != nil {
				return err
			}
			defer history.Close()

			for _, path := range args {
				f, err := os.Open(path)
				if err != nil {
					return err
				}
				sum, err := importCSV(cmd.Context(), f, opts, a.registry, history)
				f.Close()
				if err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: read %d, appended %d, skipped %d\n", path, sum.Read, sum.Appended, sum.Skipped)
			}
			return nil
		},
	}
	cmd.Flags().String("asset", "", "asset code when the file has no asset column")
	cmd.Flags().String("source", models.SourceImport, "source recorded for rows without one")
	cmd.Flags().String("delimiter", ",", "field delimiter")
	cmd.Flags().String("convention", "pivot_per_asset", "how rates are quoted: pivot_per_asset or asset_per_pivot")
	cmd.Flags().Bool("backfill", false, "allow rows dated before the latest stored rate")
	return cmd
}

// withIngestion opens the store and the ledger, builds the ingestion service
// from config and hands it to fn.
func (a *app) withIngestion(fn func(services.IngestionService) (*models.IngestionRun, error), out io.Writer) error {
	history, err := a.openStore()
	if err != nil {
		return err
	}
	defer history.Close()

	database, err := db.Connect(a.cfg.DBConfig())
	if err != nil {
		return err
	}
	defer database.Close()
	if err := database.AutoMigrate(); err != nil {
		return err
	}

	providers, err := services.NewProvidersFromConfig(a.cfg.Ingestion, a.logger)
	if err != nil {
		return err
	}
	ingestion := services.NewIngestionService(
		providers,
		services.NewRateNormalizer(a.registry),
		history,
		repositories.NewIngestionRunRepository(database),
		a.registry,
		services.IngestionOptions{
			AppendTimeout: a.cfg.Ingestion.AppendTimeout,
			FetchTimeout:  a.cfg.Ingestion.FetchTimeout,
			Audits:        repositories.NewBackfillAuditRepository(database),
			Logger:        a.logger,
		},
	)
	run, err := fn(ingestion)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "run %s %s: appended %d, skipped %d, failed %d\n",
		run.ID, run.Status, run.Appended, run.Skipped, run.Failed)
	if run.Error != "" {
		fmt.Fprintln(out, run.Error)
	}
	return nil
}

func newIngestCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "ingest",
		Short: "Run one ingestion cycle with the configured providers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withIngestion(func(ingestion services.IngestionService) (*models.IngestionRun, error) {
				return ingestion.RunOnce(cmd.Context(), services.TriggerManual)
			}, cmd.OutOrStdout())
		},
	}
}

func newFetchCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fetch DATE",
		Short: "Fetch the rates of a past day from the configured providers and backfill them",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			date, err := models.ParseDate(args[0])
			if err != nil {
				return err
			}
			actor, _ := cmd.Flags().GetString("actor")
			return a.withIngestion(func(ingestion services.IngestionService) (*models.IngestionRun, error) {
				return ingestion.FetchHistorical(cmd.Context(), date, actor)
			}, cmd.OutOrStdout())
		},
	}
	cmd.Flags().String("actor", "pricectl", "operator recorded in the backfill audit")
	return cmd
}
