package store

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/apsdehal/go-logger"
	"github.com/go-sql-driver/mysql"
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormprom "gorm.io/plugin/prometheus"

	"github.com/chungtau/txn-webhook/internal/logging"
	"github.com/chungtau/txn-webhook/internal/model"
)

// mysqlDuplicateEntry is ER_DUP_ENTRY
const mysqlDuplicateEntry = 1062

// Options describes how to reach the MySQL transaction table
type Options struct {
	Host     string
	Port     string
	Database string
	Table    string

	// Standard credentials serve reads
	User     string
	Password string

	// Elevated credentials serve writes; the standard pool is reused when empty
	ElevatedUser     string
	ElevatedPassword string

	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
}

// SQLStore implements Backend on top of GORM with two privilege tiers
type SQLStore struct {
	standard *gorm.DB
	elevated *gorm.DB
	table    string
}

// OpenMySQL connects both pools, installs pool metrics and migrates the table
func OpenMySQL(opts Options, log *logger.Logger) (*SQLStore, error) {
	standard, err := openPool(opts, opts.User, opts.Password, opts.Database, log)
	if err != nil {
		return nil, fmt.Errorf("failed to open standard pool: %w", err)
	}

	elevated := standard
	if opts.ElevatedUser != "" {
		elevated, err = openPool(opts, opts.ElevatedUser, opts.ElevatedPassword, opts.Database+"_elevated", log)
		if err != nil {
			return nil, fmt.Errorf("failed to open elevated pool: %w", err)
		}
	} else {
		log.Warning("No elevated database credentials configured, writes use the standard pool")
	}

	log.Infof("Database is connected [%s/%s]", net.JoinHostPort(opts.Host, opts.Port), opts.Database)
	return NewSQLStore(standard, elevated, opts.Table)
}

// NewSQLStore wraps already opened pools and ensures the table exists
func NewSQLStore(standard, elevated *gorm.DB, table string) (*SQLStore, error) {
	if elevated == nil {
		elevated = standard
	}
	if err := elevated.Table(table).AutoMigrate(&model.Transaction{}); err != nil {
		return nil, fmt.Errorf("failed to migrate table %s: %w", table, err)
	}
	return &SQLStore{
		standard: standard,
		elevated: elevated,
		table:    table,
	}, nil
}

func openPool(opts Options, user, password, metricsName string, log *logger.Logger) (*gorm.DB, error) {
	db, err := gorm.Open(gormmysql.Open(DSN(opts, user, password)), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 logging.NewGormLogger(log, time.Second),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	maxIdle := opts.MaxIdleConns
	if maxIdle <= 0 {
		maxIdle = 10
	}
	maxOpen := opts.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = 100
	}
	lifetime := opts.ConnMaxLifetime
	if lifetime <= 0 {
		lifetime = time.Hour
	}
	sqlDB.SetMaxIdleConns(maxIdle)
	sqlDB.SetMaxOpenConns(maxOpen)
	sqlDB.SetConnMaxLifetime(lifetime)

	if err := db.Use(gormprom.New(gormprom.Config{
		DBName:          metricsName,
		RefreshInterval: 15,
		StartServer:     false,
		MetricsCollector: []gormprom.MetricsCollector{
			&gormprom.MySQL{VariableNames: []string{"Threads_running"}},
		},
	})); err != nil {
		log.Warningf("Failed to install database metrics for %s: %s", metricsName, err)
	}

	return db, nil
}

// DSN renders a go-sql-driver DSN for the given credentials
func DSN(opts Options, user, password string) string {
	cfg := mysql.NewConfig()
	cfg.User = user
	cfg.Passwd = password
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(opts.Host, opts.Port)
	cfg.DBName = opts.Database
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	return cfg.FormatDSN()
}

func (s *SQLStore) Get(ctx context.Context, transactionID string) (*model.Transaction, error) {
	var txn model.Transaction
	err := s.standard.WithContext(ctx).
		Table(s.table).
		Where("transaction_id = ?", transactionID).
		Take(&txn).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, err
	}
	return &txn, nil
}

// Insert writes txn unless its transaction id already exists
func (s *SQLStore) Insert(ctx context.Context, txn *model.Transaction) error {
	res := s.elevated.WithContext(ctx).
		Table(s.table).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(txn)

	if res.Error != nil {
		if isDuplicateKey(res.Error) {
			return ErrAlreadyExists
		}
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrAlreadyExists
	}
	return nil
}

// UpdateStatus moves rows from one status to another and reports how many changed
func (s *SQLStore) UpdateStatus(ctx context.Context, transactionID string, from, to model.Status, processedAt *time.Time) (int64, error) {
	updates := map[string]interface{}{"status": to}
	if processedAt != nil {
		updates["processed_at"] = processedAt.UTC()
	}

	res := s.elevated.WithContext(ctx).
		Table(s.table).
		Where("transaction_id = ? AND status = ?", transactionID, from).
		Updates(updates)
	return res.RowsAffected, res.Error
}

func (s *SQLStore) ListByStatus(ctx context.Context, status model.Status, createdBefore time.Time, limit int) ([]model.Transaction, error) {
	var txns []model.Transaction
	q := s.standard.WithContext(ctx).
		Table(s.table).
		Where("status = ? AND created_at < ?", status, createdBefore.UTC()).
		Order("created_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&txns).Error; err != nil {
		return nil, err
	}
	return txns, nil
}

func (s *SQLStore) CountByStatus(ctx context.Context) (map[model.Status]int64, error) {
	var rows []struct {
		Status model.Status
		Total  int64
	}
	err := s.standard.WithContext(ctx).
		Table(s.table).
		Select("status, COUNT(*) AS total").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[model.Status]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Total
	}
	return counts, nil
}

func (s *SQLStore) Ping(ctx context.Context) error {
	sqlDB, err := s.standard.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *SQLStore) Close() error {
	var errs []error
	for _, db := range s.pools() {
		sqlDB, err := db.DB()
		if err != nil {
			errs = append(errs, err)
			continue
		}
		errs = append(errs, sqlDB.Close())
	}
	return errors.Join(errs...)
}

func (s *SQLStore) pools() []*gorm.DB {
	if s.elevated == s.standard {
		return []*gorm.DB{s.standard}
	}
	return []*gorm.DB{s.standard, s.elevated}
}

func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var myErr *mysql.MySQLError
	return errors.As(err, &myErr) && myErr.Number == mysqlDuplicateEntry
}
