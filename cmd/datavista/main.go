package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"datavista/internal/api"
	"datavista/internal/config"
	"datavista/internal/engine"
	"datavista/internal/models"

	"github.com/goccy/go-json"
	"github.com/labstack/gommon/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	rc := &cobra.Command{
		Use:          "datavista",
		Short:        "datavista - OLAP cube demo over sales records",
		SilenceUsage: true,
	}
	rc.AddCommand(newServeCommand(), newOLAPCommand())
	return rc
}

func newServeCommand() *cobra.Command {
	cfg := config.Default()
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return config.Load(viper.New(), cmd.Flags())
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cfg)
		},
	}
	cfg.Flags(cmd.Flags())
	return cmd
}

func serve(cfg *config.Config) error {
	lvl, err := cfg.Level()
	if err != nil {
		return err
	}
	log.SetLevel(lvl)

	// Routes answer 503 until the dataset is in, 500 if loading fails.
	h := api.NewHandler(nil)
	e, err := api.NewServer(cfg, h)
	if err != nil {
		return err
	}

	go func() {
		log.Info("BACKGROUND: Loading dataset...")
		t0 := time.Now()

		records, err := loadRecords(cfg.Data)
		if err != nil {
			log.Errorf("BACKGROUND: %v", err)
			h.SetLoadError(err)
			return
		}
		h.SetStore(engine.NewStore(records))

		log.Infof("BACKGROUND: %d records ready in %v", len(records), time.Since(t0))
	}()

	log.Infof("Server ready on %s (data loading in background...)", cfg.Addr)
	return e.Start(cfg.Addr)
}

// loadRecords reads path, or returns the built-in sample when path is empty.
func loadRecords(path string) ([]models.Record, error) {
	if path == "" {
		return engine.SampleRecords(), nil
	}
	return engine.LoadFile(path)
}

func newOLAPCommand() *cobra.Command {
	var (
		data, op, format string
		p                engine.Params
	)
	cmd := &cobra.Command{
		Use:   "olap",
		Short: "Print one cube operation",
		Example: `  datavista olap --op rollup
  datavista olap --op slice --field state --value Texas
  datavista olap --op dice --field1 state --values1 "Texas,California" --field2 product --values2 iPhone
  datavista olap --op pivot --data sales.csv --format json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			records, err := loadRecords(data)
			if err != nil {
				return err
			}
			res := engine.Transform(records, engine.ParseOperation(op), p)

			switch format {
			case "json":
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(map[string]interface{}{
					"operation": res.Operation,
					"columns":   res.Columns,
					"rows":      res.Rows,
				})
			case "table":
				return writeTable(cmd, res)
			}
			return fmt.Errorf("unknown format %q", format)
		},
	}

	fs := cmd.Flags()
	fs.StringVar(&data, "data", "", "sales dataset (.csv or .json); built-in sample when empty")
	fs.StringVar(&op, "op", string(engine.OpOriginal), "original, drilldown, rollup, slice, dice or pivot")
	fs.StringVar(&format, "format", "table", "table or json")
	fs.StringVar(&p.Field, "field", "", "slice field")
	fs.StringVar(&p.Value, "value", "", "slice value")
	fs.StringVar(&p.Field1, "field1", "", "first dice field")
	fs.StringVar(&p.Values1, "values1", "", "comma-separated values for field1")
	fs.StringVar(&p.Field2, "field2", "", "second dice field")
	fs.StringVar(&p.Values2, "values2", "", "comma-separated values for field2")
	return cmd
}

func writeTable(cmd *cobra.Command, res *engine.Result) error {
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(res.Headers(), "\t"))
	for _, row := range res.Rows {
		cells := make([]string, len(row))
		for i, c := range row {
			cells[i] = c.String()
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	fmt.Fprintf(tw, "(%d rows)\n", len(res.Rows))
	return tw.Flush()
}
