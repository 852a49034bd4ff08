// Package logger provides category loggers for cpauscraper. It wraps logrus
// and exposes one entry per component (MainLog, CfgLog, SessionLog, ...).
// Entries exist from package init so library code can log before the CLI
// calls InitLog; InitLog adjusts level and caller reporting at runtime.
package logger

import (
	"fmt"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"
)

const moduleName = "CPAU"

var (
	initOnce sync.Once

	// MainLog is for CLI lifecycle events.
	MainLog *log.Entry

	// CfgLog is for configuration and credential loading.
	CfgLog *log.Entry

	// SessionLog is for portal login, page tokens and authenticated calls.
	SessionLog *log.Entry

	// FetchLog is for usage retrieval and chunking.
	FetchLog *log.Entry

	// StorageLog is for the SQLite usage store.
	StorageLog *log.Entry

	// PublishLog is for Home Assistant and MQTT publishing.
	PublishLog *log.Entry

	// WaterLog is for the WaterSmart portal.
	WaterLog *log.Entry
)

func init() {
	setup()
}

func setup() {
	initOnce.Do(func() {
		log.SetFormatter(&log.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
		})
		log.SetLevel(log.InfoLevel)

		MainLog = newEntry("MAIN")
		CfgLog = newEntry("CFG")
		SessionLog = newEntry("SESSION")
		FetchLog = newEntry("FETCH")
		StorageLog = newEntry("STORAGE")
		PublishLog = newEntry("PUBLISH")
		WaterLog = newEntry("WATER")
	})
}

func newEntry(category string) *log.Entry {
	return log.WithFields(log.Fields{
		"module":   moduleName,
		"category": category,
	})
}

// InitLog applies the log level and caller reporting. It is safe to call
// multiple times. An unknown level falls back to info and is reported as an
// error.
func InitLog(levelString string, reportCaller bool) error {
	setup()

	var initErr error
	level, err := parseLogLevel(levelString)
	if err != nil {
		log.SetLevel(log.InfoLevel)
		CfgLog.Warnf("invalid log level %q, falling back to info: %v", levelString, err)
		initErr = err
	} else {
		log.SetLevel(level)
	}
	log.SetReportCaller(reportCaller)

	return initErr
}

// parseLogLevel converts a case-insensitive level name into a logrus.Level.
func parseLogLevel(levelString string) (log.Level, error) {
	switch strings.ToLower(strings.TrimSpace(levelString)) {
	case "trace":
		return log.TraceLevel, nil
	case "debug":
		return log.DebugLevel, nil
	case "info", "":
		return log.InfoLevel, nil
	case "warn", "warning":
		return log.WarnLevel, nil
	case "error":
		return log.ErrorLevel, nil
	case "fatal":
		return log.FatalLevel, nil
	case "panic":
		return log.PanicLevel, nil
	default:
		return log.InfoLevel, fmt.Errorf("unknown log level: %s", levelString)
	}
}
