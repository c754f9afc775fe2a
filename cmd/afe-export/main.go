package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/frankss230/AFE-PLUS.2-sub001/common/database"
	"github.com/frankss230/AFE-PLUS.2-sub001/common/logger"
	"github.com/frankss230/AFE-PLUS.2-sub001/internal/config"
	"github.com/frankss230/AFE-PLUS.2-sub001/internal/report"
	"github.com/frankss230/AFE-PLUS.2-sub001/internal/repository"

	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

// historySource 组合读数与案例仓储
type historySource struct {
	*repository.ReadingsRepository
	*repository.EmergencyCasesRepository
}

const dateLayout = "2006-01-02"

func main() {
	var (
		dependentID string
		fromStr     string
		toStr       string
		out         string
		timeout     time.Duration
	)
	pflag.StringVarP(&dependentID, "dependent", "d", "", "dependent id (required)")
	pflag.StringVar(&fromStr, "from", "", "start date, inclusive (YYYY-MM-DD or RFC3339); default 7 days before --to")
	pflag.StringVar(&toStr, "to", "", "end date, exclusive (YYYY-MM-DD or RFC3339); default now")
	pflag.StringVarP(&out, "out", "o", "", "output .xlsx path; default {dependent}_{from}_{to}.xlsx")
	pflag.DurationVar(&timeout, "timeout", 30*time.Second, "overall query timeout")
	pflag.Parse()

	if dependentID == "" {
		fmt.Fprintln(os.Stderr, "--dependent is required")
		pflag.Usage()
		os.Exit(2)
	}

	to := time.Now()
	if toStr != "" {
		t, err := parseTime(toStr)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid --to: %v\n", err)
			os.Exit(2)
		}
		to = t
	}
	from := to.AddDate(0, 0, -7)
	if fromStr != "" {
		t, err := parseTime(fromStr)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid --from: %v\n", err)
			os.Exit(2)
		}
		from = t
	}
	if out == "" {
		out = fmt.Sprintf("%s_%s_%s.xlsx", dependentID, from.Format(dateLayout), to.Format(dateLayout))
	}

	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}
	log, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, "afe-export")
	if err != nil {
		panic(fmt.Sprintf("Failed to init logger: %v", err))
	}
	defer log.Sync()

	db, err := database.NewPostgresDB(&cfg.Database)
	if err != nil {
		log.Fatal("Failed to connect database", zap.Error(err))
	}
	defer db.Close()

	src := historySource{
		ReadingsRepository:       repository.NewReadingsRepository(db, log),
		EmergencyCasesRepository: repository.NewEmergencyCasesRepository(db, log),
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	data, err := report.NewHistoryExporter(src, log).Export(ctx, dependentID, from, to)
	if err != nil {
		log.Fatal("Failed to export history", zap.Error(err))
	}
	if err := os.WriteFile(out, data, 0o644); err != nil {
		log.Fatal("Failed to write workbook", zap.String("path", out), zap.Error(err))
	}

	log.Info("Workbook written",
		zap.String("path", out),
		zap.Int("bytes", len(data)),
	)
}

func parseTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.ParseInLocation(dateLayout, s, time.Local)
}
