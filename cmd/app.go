package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kozaktomas/rollcall/internal/attendance"
	"github.com/kozaktomas/rollcall/internal/config"
	"github.com/kozaktomas/rollcall/internal/database"
	"github.com/kozaktomas/rollcall/internal/database/postgres"
	"github.com/kozaktomas/rollcall/internal/faceapi"
	"github.com/kozaktomas/rollcall/internal/facematch"
	"github.com/kozaktomas/rollcall/internal/logger"
	"github.com/kozaktomas/rollcall/internal/reference"
	"github.com/kozaktomas/rollcall/internal/session"
)

// app bundles what every command needs: config, logger, face detector
// and the optional PostgreSQL repositories.
type app struct {
	cfg      *config.Config
	log      *zap.Logger
	detector faceapi.Detector
	pool     *postgres.Pool
	cache    database.ReferenceCache
	history  database.AttendanceHistory
}

// loadConfig reads the environment and applies the persistent log flags.
func loadConfig(cmd *cobra.Command) *config.Config {
	cfg := config.Load()
	if v := mustGetString(cmd, "log-level"); v != "" {
		cfg.Log.Level = v
	}
	if v := mustGetString(cmd, "log-format"); v != "" {
		cfg.Log.Format = v
	}
	return cfg
}

// newApp builds the app. Without DATABASE_URL the reference cache and
// attendance history are disabled. The detector is created only when needed.
func newApp(ctx context.Context, cfg *config.Config, withDetector bool) (*app, error) {
	log, err := logger.New(cfg.Log)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, log: log}

	if withDetector {
		det, err := faceapi.New(cfg.Face)
		if err != nil {
			return nil, fmt.Errorf("failed to create face detector: %w", err)
		}
		a.detector = det
		log.Debug("face detector ready", zap.String("backend", cfg.Face.Backend), zap.String("model", det.Model()))
	}

	if cfg.Database.URL != "" {
		log.Info("connecting to PostgreSQL")
		pool, err := postgres.Open(ctx, &cfg.Database)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.pool = pool
		a.cache = postgres.NewReferenceRepository(pool)
		a.history = postgres.NewAttendanceRepository(pool)
	}
	return a, nil
}

// requireHistory returns an error when no database is configured.
func (a *app) requireHistory() error {
	if a.history == nil {
		return errors.New("DATABASE_URL environment variable is required for attendance history")
	}
	return nil
}

// controller builds a session controller from the app config.
func (a *app) controller(progress reference.ProgressFunc) (*session.Controller, error) {
	metric, err := facematch.ParseMetric(a.cfg.Face.Metric)
	if err != nil {
		return nil, err
	}
	format, err := attendance.ParseFormat(a.cfg.Attendance.Format)
	if err != nil {
		return nil, err
	}
	return session.New(session.Options{
		Detector:      a.detector,
		RosterColumn:  a.cfg.Roster.Column,
		Extensions:    a.cfg.Roster.Extensions,
		MaxImageSize:  a.cfg.Face.MaxImageSize,
		Tolerance:     a.cfg.Face.Tolerance,
		Metric:        metric,
		AttendanceDir: a.cfg.Attendance.Dir,
		Format:        format,
		Cache:         a.cache,
		History:       a.history,
		Progress:      progress,
		Logger:        a.log,
	}), nil
}

// Close releases the detector and the database pool.
func (a *app) Close() {
	if c, ok := a.detector.(interface{ Close() }); ok {
		c.Close()
	}
	if a.pool != nil {
		if err := a.pool.Close(); err != nil {
			a.log.Warn("failed to close database pool", zap.Error(err))
		}
	}
	_ = a.log.Sync()
}
