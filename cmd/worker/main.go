package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/urbix-hr/urbix/internal/app"
	"github.com/urbix-hr/urbix/internal/attendance"
	"github.com/urbix-hr/urbix/internal/employees"
	"github.com/urbix-hr/urbix/internal/expenses"
	"github.com/urbix-hr/urbix/internal/ledger"
	"github.com/urbix-hr/urbix/internal/ledger/quickbooks"
	"github.com/urbix-hr/urbix/internal/license"
	"github.com/urbix-hr/urbix/internal/payroll"
	"github.com/urbix-hr/urbix/internal/platform/cache"
	"github.com/urbix-hr/urbix/internal/platform/db"
	"github.com/urbix-hr/urbix/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	jobClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	var verifier license.Verifier
	if cfg.LicenseServerURL != "" {
		verifier = license.NewHTTPVerifier(cfg.LicenseServerURL)
	}
	licenseService := license.NewService(license.NewRepository(pool), verifier, redisClient, logger)
	licenseJob := jobs.NewLicenseVerifyJob(licenseService, logger)

	handlers := []jobs.TaskHandler{
		{Type: jobs.TaskLicenseVerify, Handler: licenseJob.Handle},
	}
	cron := []jobs.CronRegistration{
		{Spec: cfg.LicenseVerifyCron, Task: jobs.NewLicenseVerifyTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
	}

	if cfg.QuickBooksConfigured() {
		connector := quickbooks.NewClient(quickbooks.Credentials{
			ClientID:     cfg.QBClientID,
			ClientSecret: cfg.QBClientSecret,
			RefreshToken: cfg.QBRefreshToken,
			RealmID:      cfg.QBRealmID,
			Environment:  cfg.QBEnvironment,
		}, logger)

		store := ledger.NewStore(pool)
		engine := ledger.NewEngine(
			connector,
			ledger.NewMappingRepository(pool),
			ledger.NewDepartmentRepository(pool),
			store,
			employees.NewRepository(pool),
			cfg.CompanyName,
			logger,
		)

		payrollService := payroll.NewService(payroll.NewRepository(pool), nil, logger)
		expenseService := expenses.NewService(expenses.NewRepository(pool), nil, logger)

		payrollJob := jobs.NewPayrollExportJob(payrollService, engine, redisClient, logger)
		expenseJob := jobs.NewExpenseExportJob(expenseService, engine, redisClient, logger)
		retryJob := jobs.NewExportRetryJob(store, jobClient, logger)

		handlers = append(handlers,
			jobs.TaskHandler{Type: jobs.TaskPayrollExport, Handler: payrollJob.Handle},
			jobs.TaskHandler{Type: jobs.TaskExpenseExport, Handler: expenseJob.Handle},
			jobs.TaskHandler{Type: jobs.TaskExportRetry, Handler: retryJob.Handle},
		)
		cron = append(cron, jobs.CronRegistration{
			Spec: cfg.ExportRetryCron, Task: jobs.NewExportRetryTask(), Options: []asynq.Option{asynq.MaxRetry(1)},
		})
	} else {
		logger.Warn("quickbooks credentials missing, ledger export disabled")
	}

	if len(cfg.AttendanceDevices) > 0 {
		devices := make(map[string]*attendance.Service, len(cfg.AttendanceDevices))
		for _, entry := range cfg.AttendanceDevices {
			name, baseURL, ok := strings.Cut(entry, "=")
			if !ok {
				logger.Warn("skipping malformed attendance device", slog.String("entry", entry))
				continue
			}
			devices[name] = attendance.NewService(pool, attendance.NewHTTPDeviceClient(baseURL, cfg.AttendanceTimeout), logger)
			task, err := jobs.NewAttendancePollTask(name)
			if err != nil {
				logger.Error("build attendance task", slog.Any("error", err))
				os.Exit(1)
			}
			cron = append(cron, jobs.CronRegistration{
				Spec: cfg.AttendancePollCron, Task: task, Options: []asynq.Option{asynq.MaxRetry(2)},
			})
		}
		if len(devices) > 0 {
			pollJob := jobs.NewAttendancePollJob(devices, logger)
			handlers = append(handlers, jobs.TaskHandler{
				Type: jobs.TaskAttendancePoll, Handler: pollJob.Handle,
			})
		}
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers:  handlers,
		Cron:      cron,
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
