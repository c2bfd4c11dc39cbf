package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"wbstorage/internal/config"
	"wbstorage/internal/export"
	"wbstorage/internal/report"
	"wbstorage/internal/storage"
)

func main() {
	cfg, err := config.Load()
	must(err)

	initLogging(cfg.LogLevel)

	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	// Config problems are reported before any network or storage activity
	// and exit with a distinct code.
	if err := cfg.Require("WB_API_TOKEN", cfg.WBAPIToken); err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(2)
	}

	ctx := context.Background()
	sink, err := openSink(ctx, cfg)
	must(err)
	defer sink.Close()

	writer := storage.NewWriter(sink, cfg.UpsertChunk)
	svc := report.NewSyncService(writer, cfg)

	cmd := os.Args[1]
	switch cmd {
	case "backfill":
		if len(os.Args) < 3 {
			must(fmt.Errorf("usage: backfill <year>"))
		}
		year, err := strconv.Atoi(os.Args[2])
		must(err)
		summary, err := svc.Backfill(ctx, year)
		must(err)
		finish(cfg, summary)
	case "range":
		if len(os.Args) < 4 {
			must(fmt.Errorf("usage: range <YYYY-MM-DD> <YYYY-MM-DD>"))
		}
		from, err := parseDate(os.Args[2])
		must(err)
		to, err := parseDate(os.Args[3])
		must(err)
		summary, err := svc.Range(ctx, from, to)
		must(err)
		finish(cfg, summary)
	case "since":
		if len(os.Args) < 3 {
			must(fmt.Errorf("usage: since <YYYY-MM-DD>"))
		}
		from, err := parseDate(os.Args[2])
		must(err)
		summary, err := svc.Since(ctx, from)
		must(err)
		finish(cfg, summary)
	case "sync":
		daysBack := 8
		if len(os.Args) > 2 {
			daysBack, err = strconv.Atoi(os.Args[2])
			must(err)
		}
		summary, err := svc.Sync(ctx, daysBack)
		must(err)
		finish(cfg, summary)
	case "export:xlsx":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		from := fs.String("from", "", "range start YYYY-MM-DD")
		to := fs.String("to", "", "range end YYYY-MM-DD")
		out := fs.String("out", "", "output xlsx path")
		_ = fs.Parse(os.Args[2:])
		if strings.TrimSpace(*from) == "" || strings.TrimSpace(*to) == "" || strings.TrimSpace(*out) == "" {
			must(fmt.Errorf("--from --to --out are required"))
		}
		if _, err := parseDate(*from); err != nil {
			must(err)
		}
		if _, err := parseDate(*to); err != nil {
			must(err)
		}
		rows, err := sink.SelectRange(ctx, *from, *to)
		must(err)
		must(export.RowsToXLSX(rows, *out))
		fmt.Printf("exported %d rows to %s\n", len(rows), *out)
	default:
		usage()
		os.Exit(1)
	}
}

func openSink(ctx context.Context, cfg config.Config) (storage.Sink, error) {
	if strings.TrimSpace(cfg.PGDSN) != "" {
		return storage.OpenPostgres(ctx, cfg.PGDSN)
	}
	return storage.Open(cfg.DBPath)
}

func finish(cfg config.Config, summary report.Summary) {
	fmt.Printf("%s complete: windows=%d succeeded=%d skipped=%d deferred=%d rows=%d\n",
		summary.Mode, summary.Windows, summary.Succeeded, summary.Skipped, summary.Deferred, summary.Rows)
	if cfg.FailOnTimeout && summary.Deferred > 0 {
		os.Exit(1)
	}
}

func initLogging(level string) {
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		parsed = logrus.InfoLevel
	}
	logrus.SetLevel(parsed)
}

func parseDate(s string) (time.Time, error) {
	t, err := time.Parse("2006-01-02", strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: expected YYYY-MM-DD", s)
	}
	return t, nil
}

func usage() {
	fmt.Println("usage: wbstorage <command>")
	fmt.Println("commands:")
	fmt.Println("  backfill <year>")
	fmt.Println("  range <YYYY-MM-DD> <YYYY-MM-DD>")
	fmt.Println("  since <YYYY-MM-DD>")
	fmt.Println("  sync [days_back]")
	fmt.Println("  export:xlsx --from=YYYY-MM-DD --to=YYYY-MM-DD --out=./out/report.xlsx")
}

func must(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
