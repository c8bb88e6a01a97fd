// persistence/gorm_postgresql.go
package persistence

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/lib/pq"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/wfunc/playerhook/models"
	"github.com/wfunc/playerhook/session"
	"github.com/wfunc/playerhook/state"
)

// GormPostgreSQL stores session records through GORM.
type GormPostgreSQL struct {
	db *gorm.DB
}

// NewGormPostgreSQL connects to PostgreSQL and migrates the schema.
func NewGormPostgreSQL(host string, port int, user, password, dbname string) (*GormPostgreSQL, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		host, port, user, password, dbname)
	return NewGorm(postgres.Open(dsn))
}

// NewGorm opens a store on any GORM dialector.
func NewGorm(dialector gorm.Dialector) (*GormPostgreSQL, error) {
	gormLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold: time.Second,
			LogLevel:      logger.Silent,
			Colorful:      false,
		},
	)

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormLogger,
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := autoMigrate(db); err != nil {
		return nil, err
	}
	return &GormPostgreSQL{db: db}, nil
}

func autoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.GormSession{},
		&models.GormGameResult{},
	)
}

// SaveSession upserts rec under a row lock so concurrent writers cannot
// replace a newer version with an older one.
func (p *GormPostgreSQL) SaveSession(ctx context.Context, rec session.Record) error {
	if rec.URL == "" {
		return ErrNoURL
	}
	return p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row models.GormSession
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("url = ?", rec.URL).First(&row).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			row = models.NewGormSession(rec)
			return tx.Create(&row).Error
		} else if err != nil {
			return err
		}

		if row.Version >= rec.Version {
			return ErrStaleVersion
		}
		next := models.NewGormSession(rec)
		next.ID, next.CreatedAt = row.ID, row.CreatedAt
		return tx.Save(&next).Error
	})
}

func (p *GormPostgreSQL) LoadSession(ctx context.Context, url string) (session.Record, error) {
	var row models.GormSession
	if err := p.db.WithContext(ctx).Where("url = ?", url).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return session.Record{}, ErrRecordNotFound
		}
		return session.Record{}, err
	}
	return row.Record, nil
}

func (p *GormPostgreSQL) ActiveSessions(ctx context.Context) ([]session.Record, error) {
	var rows []models.GormSession
	err := p.db.WithContext(ctx).
		Where("status <> ?", state.Finished.String()).
		Order("url").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]session.Record, len(rows))
	for i, row := range rows {
		out[i] = row.Record
	}
	return out, nil
}

func (p *GormPostgreSQL) DeleteSession(ctx context.Context, url string) error {
	return p.db.WithContext(ctx).Where("url = ?", url).Delete(&models.GormSession{}).Error
}

func (p *GormPostgreSQL) SaveResult(ctx context.Context, result models.GameResult) error {
	row := models.GormGameResult{
		URL:        result.URL,
		RulesType:  result.RulesType,
		Players:    pq.StringArray(result.Players),
		Scores:     result.Scores,
		Moves:      result.Moves,
		FinishedAt: result.FinishedAt,
	}
	return p.db.WithContext(ctx).Create(&row).Error
}

func (p *GormPostgreSQL) Results(ctx context.Context, url string) ([]models.GameResult, error) {
	var rows []models.GormGameResult
	if err := p.db.WithContext(ctx).Where("url = ?", url).Order("finished_at").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]models.GameResult, len(rows))
	for i, row := range rows {
		out[i] = row.Result()
	}
	return out, nil
}

func (p *GormPostgreSQL) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
