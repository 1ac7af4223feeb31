package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/hms/hms/internal/config"
	"github.com/hms/hms/internal/domain/booking"
	"github.com/hms/hms/internal/domain/doctor"
	"github.com/hms/hms/internal/domain/inventory"
	"github.com/hms/hms/internal/domain/pharmacy"
	"github.com/hms/hms/internal/platform/auth"
	"github.com/hms/hms/internal/platform/db"
	"github.com/hms/hms/internal/platform/lock"
	"github.com/hms/hms/internal/platform/middleware"
	"github.com/hms/hms/internal/platform/payment"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "hms-server",
		Short: "Hospital Management API Server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(seedCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HMS API server",
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

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			count, err := migrator.Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			statuses, err := migrator.Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			fmt.Println("---------- ---------------------------------------- ---------- --------------------")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(statusCmd)

	return cmd
}

func seedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Populate the database with sample doctors and pharmacy stock",
		RunE: func(cmd *cobra.Command, args []string) error {
			doctors, _ := cmd.Flags().GetInt("doctors")
			products, _ := cmd.Flags().GetInt("products")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			return runSeed(ctx, pool, doctors, products)
		},
	}
	cmd.Flags().Int("doctors", 10, "Number of doctors to create")
	cmd.Flags().Int("products", 25, "Number of pharmacy products to create")
	return cmd
}

func runServer() error {
	// Logger
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	// Config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	// Database
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	runner := db.NewTxRunner(pool)

	// Per-doctor booking lock: Redis when configured (multi-instance
	// deployments), in-process otherwise.
	var locker lock.DoctorLocker
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("invalid REDIS_URL")
		}
		rdb := redis.NewClient(opts)
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer rdb.Close()
		locker = lock.NewRedisDoctorLocker(rdb, 10*time.Second)
		logger.Info().Msg("using redis doctor lock")
	} else {
		locker = lock.NewLocalDoctorLocker()
		logger.Info().Msg("using in-process doctor lock")
	}

	// Payment gateway
	gateway := payment.NewClient(cfg.PaymentBaseURL, cfg.PaymentKeyID, cfg.PaymentKeySecret, cfg.PaymentTimeout(), logger)

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))

	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": "0.1.0",
		})
	})
	e.GET("/health/db", db.HealthHandler(pool))

	// API group
	api := e.Group("/api/v1")

	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	api.Use(middleware.RateLimit(rateLimitCfg))

	// Auth middleware
	if cfg.IsDev() && cfg.JWTSecret == "" {
		logger.Warn().Msg("JWT_SECRET not set; using development auth with a fixed admin identity")
		api.Use(auth.DevAuthMiddleware())
	} else {
		api.Use(auth.JWTMiddleware(cfg.JWTSecret))
	}

	// -- Register Domain Handlers --

	// Doctor directory and weekly availability
	doctorRepo := doctor.NewRepoPG(pool)
	doctorSvc := doctor.NewService(doctorRepo)
	doctor.NewHandler(doctorSvc).RegisterRoutes(api)

	// Pharmacy inventory: products, batches, stock ledger
	productRepo := inventory.NewProductRepoPG(pool)
	batchRepo := inventory.NewBatchRepoPG(pool)
	txnRepo := inventory.NewTransactionRepoPG(pool)
	inventorySvc := inventory.NewService(productRepo, batchRepo, txnRepo, runner, logger)
	inventory.NewHandler(inventorySvc).RegisterRoutes(api)

	// Prescriptions and dispensing
	prescriptionRepo := pharmacy.NewRepoPG(pool)
	pharmacySvc := pharmacy.NewService(prescriptionRepo, productRepo, batchRepo, txnRepo, runner, logger)
	pharmacy.NewHandler(pharmacySvc).RegisterRoutes(api)

	// Appointment booking with payment capture
	apptRepo := booking.NewRepoPG(pool)
	coordinator := booking.NewCoordinator(apptRepo, doctorRepo, gateway, locker, runner, cfg.Currency, logger)
	booking.NewHandler(coordinator).RegisterRoutes(api)

	// Start server
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("env", cfg.Env).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("forced shutdown")
		return err
	}

	logger.Info().Msg("server stopped")
	return nil
}

var seedDepartments = []string{
	"Cardiology", "Dermatology", "Orthopedics", "Pediatrics",
	"Neurology", "General Medicine", "ENT", "Ophthalmology",
}

var seedCategories = []string{
	"Analgesic", "Antibiotic", "Antihistamine", "Antacid", "Vitamin",
}

var seedMedicines = []string{
	"Paracetamol 500mg", "Amoxicillin 250mg", "Cetirizine 10mg",
	"Ibuprofen 400mg", "Omeprazole 20mg", "Azithromycin 500mg",
	"Metformin 500mg", "Atorvastatin 10mg", "Amlodipine 5mg",
	"Pantoprazole 40mg", "Levothyroxine 50mcg", "Vitamin D3 60000IU",
	"Losartan 50mg", "Montelukast 10mg", "Domperidone 10mg",
}

// runSeed fills the database with plausible sample data: approved doctors
// with weekday availability, and pharmacy products stocked across batches
// with staggered expiry dates.
func runSeed(ctx context.Context, pool *pgxpool.Pool, doctorCount, productCount int) error {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	runner := db.NewTxRunner(pool)

	doctorRepo := doctor.NewRepoPG(pool)
	doctorSvc := doctor.NewService(doctorRepo)

	productRepo := inventory.NewProductRepoPG(pool)
	batchRepo := inventory.NewBatchRepoPG(pool)
	txnRepo := inventory.NewTransactionRepoPG(pool)
	inventorySvc := inventory.NewService(productRepo, batchRepo, txnRepo, runner, logger)

	faker := gofakeit.New(0)
	seedActor := uuid.MustParse("00000000-0000-0000-0000-000000000001")

	for i := 0; i < doctorCount; i++ {
		d := &doctor.Doctor{
			Name:            "Dr. " + faker.Name(),
			Email:           faker.Email(),
			Phone:           faker.Phone(),
			Department:      seedDepartments[i%len(seedDepartments)],
			ExperienceYears: faker.Number(2, 30),
			FeePaise:        int64(faker.Number(300, 1500)) * 100,
		}
		if err := doctorSvc.Create(ctx, d); err != nil {
			return fmt.Errorf("seed doctor: %w", err)
		}

		var slots []doctor.WeeklySlot
		for day := time.Monday; day <= time.Friday; day++ {
			slots = append(slots,
				doctor.WeeklySlot{Day: day, StartTime: "09:00", EndTime: "13:00"},
				doctor.WeeklySlot{Day: day, StartTime: "17:00", EndTime: "20:00"},
			)
		}
		if err := doctorSvc.SetAvailability(ctx, d.ID, slots); err != nil {
			return fmt.Errorf("seed doctor slots: %w", err)
		}
		if err := doctorSvc.Approve(ctx, d.ID); err != nil {
			return fmt.Errorf("approve seeded doctor: %w", err)
		}
	}

	for i := 0; i < productCount; i++ {
		p := &inventory.Product{
			SKU:            fmt.Sprintf("MED-%04d", i+1),
			Name:           seedMedicines[i%len(seedMedicines)],
			Category:       seedCategories[i%len(seedCategories)],
			Manufacturer:   faker.Company(),
			UnitPricePaise: int64(faker.Number(20, 600)) * 100,
			ReorderLevel:   50,
		}
		if err := inventorySvc.CreateProduct(ctx, p); err != nil {
			return fmt.Errorf("seed product: %w", err)
		}

		// Three batches per product with staggered expiries so dispensing
		// has something to drain in expiry order.
		for b := 0; b < 3; b++ {
			_, err := inventorySvc.ReceiveStock(ctx, seedActor, inventory.ReceiveRequest{
				ProductID:   p.ID,
				BatchNumber: fmt.Sprintf("B%04d-%d", i+1, b+1),
				Quantity:    faker.Number(40, 200),
				ExpiryDate:  time.Now().AddDate(0, 3*(b+1), 0),
				Note:        "seed stock",
			})
			if err != nil {
				return fmt.Errorf("seed batch: %w", err)
			}
		}
	}

	fmt.Printf("Seeded %d doctor(s) and %d product(s).\n", doctorCount, productCount)
	return nil
}
