package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/xaenox/relay-bot/internal/models"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// BindingRow is one user/thread binding.
type BindingRow struct {
	UserID       int64     `gorm:"primaryKey;autoIncrement:false"`
	ThreadID     int64     `gorm:"uniqueIndex;not null"`
	LastActiveAt time.Time `gorm:"index;not null"`
}

func (BindingRow) TableName() string { return "relay_bindings" }

// BanRow is one banned user.
type BanRow struct {
	UserID int64 `gorm:"primaryKey;autoIncrement:false"`
}

func (BanRow) TableName() string { return "relay_bans" }

// StateRow holds snapshot metadata; there is only ever the row with ID 1.
type StateRow struct {
	ID      uint `gorm:"primaryKey;autoIncrement:false"`
	SavedAt time.Time
}

func (StateRow) TableName() string { return "relay_state" }

// GormStorage stores the snapshot through GORM on SQLite or MySQL.
type GormStorage struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewGormStorage opens driver ("sqlite" or "mysql") at dsn and migrates
// the schema.
func NewGormStorage(driver, dsn string, log *zap.Logger) (*GormStorage, error) {
	if log == nil {
		log = zap.NewNop()
	}
	var dialector gorm.Dialector
	switch driver {
	case DriverSQLite:
		if dsn == "" {
			dsn = "relay_state.db"
		}
		dialector = sqlite.Open(dsn)
	case DriverMySQL:
		normalized, err := NormalizeMySQLDSN(dsn)
		if err != nil {
			return nil, err
		}
		dialector = mysql.Open(normalized)
	default:
		return nil, fmt.Errorf("storage: gorm: unsupported driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("storage: gorm: open %s: %w", driver, err)
	}
	return newGormStorage(db, log)
}

func newGormStorage(db *gorm.DB, log *zap.Logger) (*GormStorage, error) {
	if err := db.AutoMigrate(&BindingRow{}, &BanRow{}, &StateRow{}); err != nil {
		return nil, fmt.Errorf("storage: gorm: migrate: %w", err)
	}
	return &GormStorage{db: db, logger: log}, nil
}

// NormalizeMySQLDSN forces parseTime and UTC so timestamps round-trip.
func NormalizeMySQLDSN(dsn string) (string, error) {
	if dsn == "" {
		return "", fmt.Errorf("storage: mysql: dsn is required")
	}
	cfg, err := mysqldriver.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("storage: mysql: parse dsn: %w", err)
	}
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	return cfg.FormatDSN(), nil
}

func (s *GormStorage) Load(ctx context.Context) (models.Snapshot, error) {
	db := s.db.WithContext(ctx)
	var snapshot models.Snapshot

	var bindings []BindingRow
	if err := db.Order("user_id").Find(&bindings).Error; err != nil {
		return models.Snapshot{}, fmt.Errorf("storage: gorm: load bindings: %w", err)
	}
	for _, row := range bindings {
		snapshot.Bindings = append(snapshot.Bindings, models.Binding{
			UserID:       row.UserID,
			ThreadID:     row.ThreadID,
			LastActiveAt: row.LastActiveAt,
		})
	}

	var bans []BanRow
	if err := db.Order("user_id").Find(&bans).Error; err != nil {
		return models.Snapshot{}, fmt.Errorf("storage: gorm: load bans: %w", err)
	}
	for _, row := range bans {
		snapshot.Banned = append(snapshot.Banned, row.UserID)
	}

	var state StateRow
	err := db.First(&state, 1).Error
	switch {
	case err == nil:
		snapshot.SavedAt = state.SavedAt
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return models.Snapshot{}, fmt.Errorf("storage: gorm: load state: %w", err)
	}

	snapshot.Normalize()
	return snapshot, nil
}

func (s *GormStorage) Save(ctx context.Context, snapshot models.Snapshot) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		all := tx.Session(&gorm.Session{AllowGlobalUpdate: true})
		if err := all.Delete(&BindingRow{}).Error; err != nil {
			return fmt.Errorf("clear bindings: %w", err)
		}
		if err := all.Delete(&BanRow{}).Error; err != nil {
			return fmt.Errorf("clear bans: %w", err)
		}

		if len(snapshot.Bindings) > 0 {
			rows := make([]BindingRow, 0, len(snapshot.Bindings))
			for _, b := range snapshot.Bindings {
				rows = append(rows, BindingRow{
					UserID:       b.UserID,
					ThreadID:     b.ThreadID,
					LastActiveAt: b.LastActiveAt.UTC(),
				})
			}
			if err := tx.CreateInBatches(rows, 500).Error; err != nil {
				return fmt.Errorf("insert bindings: %w", err)
			}
		}
		if len(snapshot.Banned) > 0 {
			rows := make([]BanRow, 0, len(snapshot.Banned))
			for _, id := range snapshot.Banned {
				rows = append(rows, BanRow{UserID: id})
			}
			if err := tx.CreateInBatches(rows, 500).Error; err != nil {
				return fmt.Errorf("insert bans: %w", err)
			}
		}

		savedAt := snapshot.SavedAt
		if savedAt.IsZero() {
			savedAt = time.Now()
		}
		state := StateRow{ID: 1, SavedAt: savedAt.UTC()}
		if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&state).Error; err != nil {
			return fmt.Errorf("update state: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("storage: gorm: save: %w", err)
	}
	return nil
}

func (s *GormStorage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
