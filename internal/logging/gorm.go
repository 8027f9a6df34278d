package logging

import (
	"time"

	"github.com/apsdehal/go-logger"
	gormlogger "gorm.io/gorm/logger"
)

// GormWriter forwards GORM trace lines to the application logger
type GormWriter struct {
	Logger *logger.Logger
}

// Printf receives GORM's trace arguments: file, elapsed ms, rows, sql.
// Failed and slow statements carry the error or slow-log note in second position.
func (w *GormWriter) Printf(format string, v ...interface{}) {
	switch {
	case len(v) >= 5:
		w.Logger.Warningf("[DAL] [%.2fms] %s (%v)", v[2], v[4], v[1])
	case len(v) >= 4:
		w.Logger.Debugf("[DAL] [%.2fms] %s", v[1], v[3])
	default:
		w.Logger.Infof(format, v...)
	}
}

// NewGormLogger wraps the application logger for use in gorm.Config
func NewGormLogger(log *logger.Logger, slowThreshold time.Duration) gormlogger.Interface {
	return gormlogger.New(
		&GormWriter{Logger: log},
		gormlogger.Config{
			SlowThreshold:             slowThreshold,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
}
