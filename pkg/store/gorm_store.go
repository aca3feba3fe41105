package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
	"palmreader/pkg/domain"
)

const migrateLockID int64 = 73217322

const sqliteScheme = "sqlite://"

const (
	dialectPostgres = "postgres"
	dialectSQLite   = "sqlite"
)

type GormStoreOptions struct {
	MaxOpenConns    int
	ConnMaxIdleTime time.Duration
	LogLevel        gormlogger.LogLevel
}

type GormStoreOption func(*GormStoreOptions)

// WithMaxOpenConns caps the connection pool.
func WithMaxOpenConns(n int) GormStoreOption {
	return func(opts *GormStoreOptions) {
		opts.MaxOpenConns = n
	}
}

// WithLogLevel overrides the gorm logger level.
func WithLogLevel(level gormlogger.LogLevel) GormStoreOption {
	return func(opts *GormStoreOptions) {
		opts.LogLevel = level
	}
}

// GormStore implements Ledger using GORM + Postgres.
// A DSN of the form sqlite://path opens a local sqlite file instead.
type GormStore struct {
	db      *gorm.DB
	dialect string
}

// NewGormStore opens the DB. Call EnsureSchema before first use.
func NewGormStore(dsn string, options ...GormStoreOption) (*GormStore, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, errors.New("database URL required")
	}
	opts := GormStoreOptions{
		MaxOpenConns:    8,
		ConnMaxIdleTime: 5 * time.Minute,
		LogLevel:        gormlogger.Warn,
	}
	for _, option := range options {
		if option != nil {
			option(&opts)
		}
	}

	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  opts.LogLevel,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	dialector, dialect := openDialector(dsn)
	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql db: %w", err)
	}
	if dialect == dialectSQLite {
		// sqlite serializes writers; one connection avoids "database is locked".
		sqlDB.SetMaxOpenConns(1)
	} else if opts.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(opts.MaxOpenConns)
	}
	sqlDB.SetConnMaxIdleTime(opts.ConnMaxIdleTime)
	return &GormStore{db: db, dialect: dialect}, nil
}

func openDialector(dsn string) (gorm.Dialector, string) {
	if strings.HasPrefix(dsn, sqliteScheme) {
		return sqlite.Open(strings.TrimPrefix(dsn, sqliteScheme)), dialectSQLite
	}
	return postgres.Open(dsn), dialectPostgres
}

// Close releases the underlying connection pool.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// EnsureSchema runs auto-migrations for users, uploads and readings.
func (s *GormStore) EnsureSchema(ctx context.Context) error {
	migrate := func(tx *gorm.DB) error {
		if err := tx.AutoMigrate(&UserModel{}, &UploadModel{}, &ReadingModel{}); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		return nil
	}
	if s.dialect != dialectPostgres {
		return migrate(s.db.WithContext(ctx))
	}
	return withMigrationLock(ctx, s.db, migrate)
}

func withMigrationLock(ctx context.Context, db *gorm.DB, fn func(*gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open sql conn: %w", err)
	}
	defer conn.Close()
	if err := execAdvisory(ctx, conn, "SELECT pg_advisory_lock($1)", migrateLockID); err != nil {
		return fmt.Errorf("acquire migrate lock: %w", err)
	}
	defer func() {
		_ = execAdvisory(context.Background(), conn, "SELECT pg_advisory_unlock($1)", migrateLockID)
	}()
	return fn(db.WithContext(ctx))
}

func execAdvisory(ctx context.Context, conn *sql.Conn, query string, lockID int64) error {
	_, err := conn.ExecContext(ctx, query, lockID)
	return err
}

// EnsureUser looks the user up by id and inserts it on first sight.
// Two concurrent first sightings race on the primary key; the loser gets an error.
func (s *GormStore) EnsureUser(ctx context.Context, u domain.User) (int64, error) {
	if u.ID == 0 {
		return 0, ErrInvalidUser
	}
	var id int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing UserModel
		err := tx.Select("id").First(&existing, "id = ?", u.ID).Error
		if err == nil {
			id = existing.ID
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		model := userToModel(u)
		if err := tx.Create(&model).Error; err != nil {
			return err
		}
		id = model.ID
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("ensure user %d: %w", u.ID, err)
	}
	return id, nil
}

// RecordUpload appends an upload row.
func (s *GormStore) RecordUpload(ctx context.Context, up domain.Upload) (int64, error) {
	model := uploadToModel(up)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Omit(clause.Associations).Create(&model).Error
	})
	if err != nil {
		return 0, fmt.Errorf("record upload: %w", err)
	}
	return model.ID, nil
}

// RecordReading appends a reading row.
func (s *GormStore) RecordReading(ctx context.Context, r domain.Reading) error {
	model, err := readingToModel(r)
	if err != nil {
		return fmt.Errorf("record reading: %w", err)
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Omit(clause.Associations).Create(&model).Error
	})
	if err != nil {
		return fmt.Errorf("record reading: %w", err)
	}
	return nil
}

func userToModel(u domain.User) UserModel {
	createdAt := u.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	return UserModel{
		ID:        u.ID,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Username:  u.Username,
		CreatedAt: createdAt,
	}
}

func uploadToModel(up domain.Upload) UploadModel {
	createdAt := up.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	return UploadModel{
		UserID:       up.UserID,
		FileID:       up.FileID,
		FileUniqueID: up.FileUniqueID,
		StorageKey:   up.StorageKey,
		FirstName:    up.FirstName,
		LastName:     up.LastName,
		Username:     up.Username,
		CreatedAt:    createdAt,
	}
}

func readingToModel(r domain.Reading) (ReadingModel, error) {
	createdAt := r.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	var generation []byte
	if len(r.Generation) > 0 {
		raw, err := json.Marshal(r.Generation)
		if err != nil {
			return ReadingModel{}, err
		}
		generation = raw
	}
	return ReadingModel{
		UserID:        r.UserID,
		UploadID:      r.UploadID,
		Prompt:        r.Prompt,
		Response:      r.Response,
		Outcome:       string(r.Outcome),
		RefusalReason: r.RefusalReason,
		Generation:    generation,
		FirstName:     r.FirstName,
		LastName:      r.LastName,
		Username:      r.Username,
		CreatedAt:     createdAt,
	}, nil
}
