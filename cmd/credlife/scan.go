package main

import (
	"encoding/json"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"credlife/internal/platform/config"
	"credlife/internal/platform/logger"
)

var scanCommand = &cli.Command{
	Name:  "scan",
	Usage: "Run one expiry scan and exit",
	Flags: []cli.Flag{
		&cli.TimestampFlag{
			Name:   "at",
			Usage:  "Evaluate expiry as of this instant (RFC 3339); defaults to now",
			Layout: time.RFC3339,
		},
	},
	Action: scan,
}

type scanSummary struct {
	ScannedAt        time.Time `json:"scanned_at"`
	Expired          int       `json:"expired"`
	ExpiringSoon     int       `json:"expiring_soon"`
	RecomputedOwners int       `json:"recomputed_owners"`
	Failures         int       `json:"failures"`
	Warnings         []string  `json:"warnings,omitempty"`
}

func scan(cCtx *cli.Context) error {
	cfg, err := config.Load(cCtx.String("env-file"))
	if err != nil {
		return err
	}
	log := logger.New(cfg.Server.LogLevel)

	a, err := newApp(cCtx.Context, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	now := time.Now().UTC()
	if at := cCtx.Timestamp("at"); at != nil {
		now = at.UTC()
	}

	res, err := a.service.RunExpiryScan(cCtx.Context, now)
	if err != nil {
		return err
	}
	if len(res.Failures) > 0 {
		log.Warn("expiry scan finished with failures", "failures", len(res.Failures), "error", res.Err())
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(scanSummary{
		ScannedAt:        now,
		Expired:          len(res.Expired),
		ExpiringSoon:     len(res.ExpiringSoon),
		RecomputedOwners: res.RecomputedOwners,
		Failures:         len(res.Failures),
		Warnings:         res.Warnings,
	})
}
