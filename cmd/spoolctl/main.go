// Command spoolctl runs a PostgreSQL query, spools its rows to disk and
// exports all or part of the result in one of the supported formats.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/tuannm99/novaspool/internal"
	"github.com/tuannm99/novaspool/internal/alias/util"
	"github.com/tuannm99/novaspool/internal/export"
	"github.com/tuannm99/novaspool/internal/gologger"
	"github.com/tuannm99/novaspool/internal/record"
	"github.com/tuannm99/novaspool/internal/resultset"
	"github.com/tuannm99/novaspool/internal/selection"
	"github.com/tuannm99/novaspool/internal/source/pgxsource"
	"github.com/tuannm99/novaspool/internal/storage"
)

const ownerURI = "spoolctl"

var logger = gologger.NewLogger()

// openFunc starts the query and returns its rows with a release func.
type openFunc func(ctx context.Context, v *viper.Viper) (record.RowProducer, func(), error)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, openPostgres); err != nil {
		logger.Error().Err(err).Msg("spoolctl failed")
		os.Exit(1)
	}
}

func newFlagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet("spoolctl", pflag.ContinueOnError)
	fs.String("config", "", "path to a YAML config file")
	fs.String("dsn", "", "PostgreSQL connection string")
	fs.String("query", "", "query whose rows are spooled")
	fs.String("format", "csv", "text|csv|json|xml|excel|markdown|insert")
	fs.String("out", "", "output file; required unless --copy is set")
	fs.String("copy", "", "print the selection to stdout instead: text|in-clause")
	fs.Bool("headers", false, "write a header row")
	fs.String("delimiter", "", "field delimiter for text and csv")
	fs.String("table", "", "table name for insert statements")
	fs.Bool("formatted", false, "indent json and xml")
	fs.Int64("row-start", -1, "first row to export")
	fs.Int64("row-end", -1, "last row to export")
	fs.Int("col-start", -1, "first column to export")
	fs.Int("col-end", -1, "last column to export")

	fs.String("spool-dir", "", "directory for spool files")
	fs.String("encoding", "", "output encoding, IANA name or code page")
	fs.Int("page-size", 0, "rows fetched per page")
	fs.Int("max-conns", 4, "connection pool size")
	return fs
}

func bindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	if err := v.BindPFlags(fs); err != nil {
		return err
	}
	keys := map[string]string{
		"spool.dir":        "spool-dir",
		"export.encoding":  "encoding",
		"export.page_size": "page-size",
	}
	for key, name := range keys {
		f := fs.Lookup(name)
		if !f.Changed {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return err
		}
	}
	return nil
}

func run(ctx context.Context, args []string, stdout io.Writer, open openFunc) error {
	fs := newFlagSet()
	if err := fs.Parse(args); err != nil {
		return err
	}
	v := internal.NewViper()
	if err := bindFlags(v, fs); err != nil {
		return fmt.Errorf("bind flags: %w", err)
	}
	cfg, err := internal.LoadInto(v, v.GetString("config"))
	if err != nil {
		return err
	}
	gologger.SetLevel(cfg.LogLevel)

	copyMode := v.GetString("copy")
	if copyMode == "" && v.GetString("out") == "" {
		return errors.New("one of --out or --copy is required")
	}

	rsOpts, err := cfg.ResultSetOptions()
	if err != nil {
		return err
	}

	src, release, err := open(ctx, v)
	if err != nil {
		return err
	}
	defer release()

	rs, err := resultset.New(storage.SpoolDir{Dir: cfg.Spool.Dir}, src.Columns(), rsOpts)
	if err != nil {
		return err
	}
	registry := resultset.NewRegistry()
	defer util.CloseFunc(registry)

	key := resultset.Key{OwnerURI: ownerURI}
	if err := registry.Add(key, rs); err != nil {
		util.CloseFunc(rs)
		return err
	}
	if _, err := rs.Spool(ctx, src); err != nil {
		return err
	}

	orch := selection.New(registry, cfg.SelectionOptions())
	req := selection.Request{
		OwnerURI: key.OwnerURI,
		Columns:  rs.Columns(),
		RowCount: rs.RowCount(),
	}

	var out selection.Outcome
	switch copyMode {
	case "":
		out, err = exportFile(ctx, v, cfg, orch, req)
	case "text":
		var text string
		text, out, err = orch.CopyText(ctx, req, v.GetBool("headers"))
		if err == nil {
			_, err = io.WriteString(stdout, text+"\n")
		}
	case "in-clause":
		var text string
		text, out, err = orch.CopyInClause(ctx, req)
		if err == nil {
			_, err = io.WriteString(stdout, text+"\n")
		}
	default:
		return fmt.Errorf("unknown copy mode %q", copyMode)
	}
	if err != nil {
		return err
	}
	if out.Canceled {
		return context.Cause(ctx)
	}
	return nil
}

func exportFile(ctx context.Context, v *viper.Viper, cfg *internal.NovaSpoolConfig, orch *selection.Orchestrator, req selection.Request) (selection.Outcome, error) {
	format, err := export.ParseFormat(v.GetString("format"))
	if err != nil {
		return selection.Outcome{}, err
	}
	p := cfg.ExportParams(export.Params{
		Format:         format,
		IncludeHeaders: v.GetBool("headers"),
		Delimiter:      v.GetString("delimiter"),
		TableName:      v.GetString("table"),
		Formatted:      v.GetBool("formatted"),
	})
	if n := v.GetInt64("row-start"); n >= 0 {
		p.RowStartIndex = util.Ptr(n)
	}
	if n := v.GetInt64("row-end"); n >= 0 {
		p.RowEndIndex = util.Ptr(n)
	}
	if n := v.GetInt("col-start"); n >= 0 {
		p.ColumnStartIndex = util.Ptr(n)
	}
	if n := v.GetInt("col-end"); n >= 0 {
		p.ColumnEndIndex = util.Ptr(n)
	}
	return orch.ExportFile(ctx, req, v.GetString("out"), p)
}

// openPostgres connects a pool the way the rest of our services do and runs
// the query on it.
func openPostgres(ctx context.Context, v *viper.Viper) (record.RowProducer, func(), error) {
	dsn := v.GetString("dsn")
	if dsn == "" {
		return nil, nil, errors.New("--dsn is required")
	}
	query := v.GetString("query")
	if query == "" {
		return nil, nil, errors.New("--query is required")
	}

	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("parse dsn: %w", err)
	}
	config.MaxConns = int32(max(v.GetInt("max-conns"), 1))
	config.MinConns = 1
	config.HealthCheckPeriod = 5 * time.Second
	config.MaxConnLifetime = 30 * time.Minute
	config.MaxConnIdleTime = 30 * time.Minute

	logger.Debug().Int32("maxConns", config.MaxConns).Msg("connecting to postgres...")
	pool, err := pgxpool.ConnectConfig(ctx, config)
	if err != nil {
		return nil, nil, fmt.Errorf("connect: %w", err)
	}

	src, err := pgxsource.Query(ctx, pool, query)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	return src, func() {
		src.Close()
		pool.Close()
	}, nil
}
