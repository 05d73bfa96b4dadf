package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/clinicdesk/intake/internal/config"
	"github.com/clinicdesk/intake/internal/domain/billing"
	"github.com/clinicdesk/intake/internal/domain/billingform"
	"github.com/clinicdesk/intake/internal/domain/clinic"
	"github.com/clinicdesk/intake/internal/domain/notification"
	"github.com/clinicdesk/intake/internal/platform/auth"
	"github.com/clinicdesk/intake/internal/platform/db"
	"github.com/clinicdesk/intake/internal/platform/mailer"
	"github.com/clinicdesk/intake/internal/platform/middleware"
)

const version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "intake-server",
		Short: "Clinic intake API server: billing forms and notification templates",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(notifyCmd())
	rootCmd.AddCommand(scheduleCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(env string, out io.Writer) zerolog.Logger {
	if env == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: out}).With().Timestamp().Logger()
	}
	return zerolog.New(out).With().Timestamp().Logger()
}

// loadConfig loads and validates the configuration.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	withMigrator := func(fn func(ctx context.Context, m *db.Migrator) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if dir, _ := cmd.Flags().GetString("dir"); dir != "" {
				cfg.MigrationsDir = dir
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			return fn(ctx, db.NewMigrator(pool, os.DirFS(cfg.MigrationsDir)))
		}
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: withMigrator(func(ctx context.Context, m *db.Migrator) error {
			count, err := m.Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		}),
	}
	upCmd.Flags().String("dir", "", "Path to migrations directory (default MIGRATIONS_DIR)")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: withMigrator(func(ctx context.Context, m *db.Migrator) error {
			statuses, err := m.Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}
			printStatus(os.Stdout, statuses)
			return nil
		}),
	}
	statusCmd.Flags().String("dir", "", "Path to migrations directory (default MIGRATIONS_DIR)")
	cmd.AddCommand(statusCmd)

	return cmd
}

func printStatus(w io.Writer, statuses []db.MigrationStatus) {
	fmt.Fprintf(w, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
	fmt.Fprintln(w, "---------- ---------------------------------------- ---------- --------------------")
	for _, s := range statuses {
		status := "pending"
		appliedAt := ""
		if s.Applied {
			status = "applied"
			if s.AppliedAt != nil {
				appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
			}
		}
		fmt.Fprintf(w, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
	}
}

func notifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "notify",
		Short: "Notification outbox maintenance",
	}

	deliverCmd := &cobra.Command{
		Use:   "deliver",
		Short: "Send every queued email that is due (run from cron)",
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger := newLogger(cfg.Env, os.Stderr)

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			svc, err := buildServices(cfg, pool, logger)
			if err != nil {
				return err
			}
			report, err := svc.notification.DeliverDue(ctx, time.Now(), limit)
			if err != nil {
				return err
			}
			logger.Info().Int("sent", report.Sent).Int("failed", report.Failed).Msg("delivery run finished")
			return nil
		},
	}
	deliverCmd.Flags().Int("limit", 100, "Maximum number of emails to send in this run")
	cmd.AddCommand(deliverCmd)

	return cmd
}

func scheduleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Inspect relative send schedules",
	}

	previewCmd := &cobra.Command{
		Use:   "preview",
		Short: "Print the send time of a schedule for an appointment start",
		RunE: func(cmd *cobra.Command, args []string) error {
			start, _ := cmd.Flags().GetString("start")
			typ, _ := cmd.Flags().GetString("type")
			offset, _ := cmd.Flags().GetInt("offset")
			unit, _ := cmd.Flags().GetString("unit")
			locale, _ := cmd.Flags().GetString("locale")

			out, err := previewSchedule(start, notification.Schedule{
				Type:   notification.ScheduleType(typ),
				Offset: offset,
				Unit:   notification.Unit(unit),
			}, notification.ParseLocale(locale), time.Now())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}
	previewCmd.Flags().String("start", "", "Appointment start (RFC 3339)")
	previewCmd.Flags().String("type", string(notification.ScheduleImmediate), "immediate, before_appointment or after_appointment")
	previewCmd.Flags().Int("offset", 0, "Offset in units")
	previewCmd.Flags().String("unit", string(notification.UnitDays), "hours, days, weeks or months")
	previewCmd.Flags().String("locale", "de", "Output locale")
	cmd.AddCommand(previewCmd)

	return cmd
}

// previewSchedule renders the unclipped send time for start in the zone of
// start.
func previewSchedule(start string, s notification.Schedule, l notification.Locale, now time.Time) (string, error) {
	var t time.Time
	if start != "" {
		var err error
		if t, err = time.Parse(time.RFC3339, start); err != nil {
			return "", fmt.Errorf("--start: %w", err)
		}
	} else if s.Type != notification.ScheduleImmediate {
		return "", fmt.Errorf("--start is required for %s", s.Type)
	}
	at, err := notification.SendTime(t, s, now)
	if err != nil {
		return "", err
	}
	r := notification.NewRenderer(l, at.Location())
	c := notification.Context{"appointment": map[string]interface{}{"start_time": at}}
	return at.Format(time.RFC3339) + "  " + r.Render("{{appointment.start_time}}", c), nil
}

// services holds the wired domain services.
type services struct {
	billing      *billing.Service
	billingForm  *billingform.Service
	clinic       *clinic.Service
	notification *notification.Service
}

func newMailSender(cfg *config.Config, logger zerolog.Logger) mailer.Sender {
	if cfg.SMTPAddr == "" {
		return mailer.NewLogSender(logger)
	}
	return mailer.NewSMTPSender(cfg.SMTPAddr, cfg.SMTPUsername, cfg.SMTPPassword)
}

func buildServices(cfg *config.Config, pool *pgxpool.Pool, logger zerolog.Logger) (*services, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	billingSvc := billing.NewService(billing.NewCodeRepoPG(pool))

	formSvc := billingform.NewService(
		billingform.NewFormRepoPG(pool),
		billingform.NewCompletionRepoPG(pool),
		billingSvc,
		logger,
	)

	clinicSvc := clinic.NewService(
		clinic.NewPatientRepoPG(pool),
		clinic.NewExaminationRepoPG(pool),
		clinic.NewLocationRepoPG(pool),
		clinic.NewDeviceRepoPG(pool),
		clinic.NewAppointmentRepoPG(pool),
		logger,
	)

	notifySvc := notification.NewService(
		notification.NewTemplateRepoPG(pool),
		notification.NewOutboxRepoPG(pool),
		notification.NewContextBuilder(clinicSvc),
		newMailSender(cfg, logger),
		notification.Settings{
			Locale:        notification.ParseLocale(cfg.Locale),
			Location:      loc,
			DefaultSender: cfg.MailFrom,
		},
		logger,
	)
	notifySvc.SetTxBeginner(pool)

	publisher := notification.NewPublisher(notifySvc)
	clinicSvc.SetEventPublisher(publisher)
	formSvc.SetSubmissionPublisher(publisher)

	return &services{billing: billingSvc, billingForm: formSvc, clinic: clinicSvc, notification: notifySvc}, nil
}

func newServer(cfg *config.Config, pool *pgxpool.Pool, svc *services, logger zerolog.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.BodyLimit(cfg.BodyLimit))
	e.Use(middleware.RequestTimeout(30 * time.Second))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	e.GET("/health/db", db.HealthHandler(pool))

	// Auth middleware
	jwtCfg := auth.JWTConfig{
		Issuer:     cfg.AuthIssuer,
		Audience:   cfg.AuthAudience,
		SigningKey: []byte(cfg.AuthJWTSecret),
	}
	apiV1 := e.Group("/api/v1")
	if cfg.IsDev() {
		apiV1.Use(auth.DevAuthMiddleware(jwtCfg))
	} else {
		apiV1.Use(auth.JWTMiddleware(jwtCfg))
	}
	apiV1.Use(middleware.Audit(logger))

	billing.NewHandler(svc.billing).RegisterRoutes(apiV1)
	billingform.NewHandler(svc.billingForm).RegisterRoutes(apiV1)
	clinic.NewHandler(svc.clinic).RegisterRoutes(apiV1)
	notification.NewHandler(svc.notification).RegisterRoutes(apiV1)

	return e
}

func runServer() error {
	logger := newLogger(os.Getenv("ENV"), os.Stdout)

	cfg, err := loadConfig()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	svc, err := buildServices(cfg, pool, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to wire services")
	}
	if cfg.SMTPAddr == "" {
		logger.Warn().Msg("SMTP_ADDR not set, emails are logged instead of sent")
	}
	e := newServer(cfg, pool, svc, logger)

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}
