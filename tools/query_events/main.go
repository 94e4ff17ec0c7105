// Command query_events dumps the pacing event log for a line item as JSON.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/patrickwarner/openpacer/internal/analytics"
	"github.com/patrickwarner/openpacer/internal/config"
	"github.com/patrickwarner/openpacer/internal/observability"
)

func main() {
	logger, err := observability.InitLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	var liid int
	var dsn string
	flag.IntVar(&liid, "li", 0, "line item ID")
	flag.StringVar(&dsn, "dsn", "", "ClickHouse DSN")
	flag.Parse()

	if liid == 0 {
		fmt.Fprintln(os.Stderr, "li required")
		os.Exit(1)
	}
	cfg := config.Load()
	if dsn == "" {
		dsn = cfg.ClickHouseDSN
	}

	a, err := analytics.InitClickHouse(dsn, cfg.CHMaxOpenConns, cfg.CHMaxIdleConns, cfg.CHConnMaxLifetime, cfg.CHConnMaxIdleTime)
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect clickhouse: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()

	events, err := a.EventsByLineItem(liid)
	if err != nil {
		fmt.Fprintf(os.Stderr, "query events: %v\n", err)
		os.Exit(1)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(events); err != nil {
		fmt.Fprintf(os.Stderr, "encode events: %v\n", err)
		os.Exit(1)
	}
}
