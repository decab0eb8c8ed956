package db

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/mafiaboyhacker/tk-ai-model-gallery-backend/internal/platform/envutil"
	"github.com/mafiaboyhacker/tk-ai-model-gallery-backend/internal/platform/logger"
	"github.com/mafiaboyhacker/tk-ai-model-gallery-backend/internal/types"
)

type Service struct {
	db  *gorm.DB
	log *logger.Logger
}

// New connects to the database selected by DB_DRIVER: "postgres"
// (default) built from the POSTGRES_* variables, or "sqlite" at
// SQLITE_PATH for local development and tests.
func New(log *logger.Logger) (*Service, error) {
	serviceLog := log.With("service", "DBService")

	driver := envutil.Str("DB_DRIVER", "postgres")

	var (
		gdb *gorm.DB
		err error
	)
	logLevel := gormlogger.Silent
	if envutil.Bool("DB_LOG_QUERIES", false) {
		logLevel = gormlogger.Info
	}
	cfg := &gorm.Config{
		Logger: gormlogger.Default.LogMode(logLevel),
	}

	switch driver {
	case "sqlite":
		path := envutil.Str("SQLITE_PATH", "gallery.db")
		serviceLog.Info("Connecting to sqlite...", "path", path)
		gdb, err = gorm.Open(sqlite.Open(path), cfg)
	default:
		host := envutil.Str("POSTGRES_HOST", "localhost")
		port := envutil.Str("POSTGRES_PORT", "5432")
		user := envutil.Str("POSTGRES_USER", "postgres")
		password := envutil.Str("POSTGRES_PASSWORD", "")
		name := envutil.Str("POSTGRES_NAME", "gallery")
		dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", user, password, host, port, name)
		serviceLog.Info("Connecting to postgres...", "host", host, "db", name)
		gdb, err = gorm.Open(postgres.Open(dsn), cfg)
	}
	if err != nil {
		serviceLog.Error("Failed to connect to database", "driver", driver, "error", err)
		return nil, fmt.Errorf("connect %s: %w", driver, err)
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		serviceLog.Error("Failed to access connection pool", "error", err)
		return nil, fmt.Errorf("connection pool: %w", err)
	}
	sqlDB.SetMaxOpenConns(envutil.Int("DB_MAX_OPEN_CONNS", 10))
	sqlDB.SetMaxIdleConns(envutil.Int("DB_MAX_IDLE_CONNS", 5))

	return &Service{db: gdb, log: serviceLog}, nil
}

func (s *Service) AutoMigrateAll() error {
	s.log.Info("Auto migrating tables...")
	if err := s.db.AutoMigrate(&types.MediaRecord{}); err != nil {
		s.log.Error("Auto migration failed", "error", err)
		return err
	}
	return nil
}

func (s *Service) DB() *gorm.DB {
	return s.db
}
