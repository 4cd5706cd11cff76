package log

import (
	"os"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	dslog "github.com/grafana/dskit/log"
)

// Logger is the process-wide default logger. Components accept their own
// log.Logger and fall back to this one when handed nil.
var Logger = log.NewNopLogger()

// InitLogger replaces the default logger with a leveled logfmt logger
// writing to stderr.
func InitLogger(l dslog.Level) log.Logger {
	logger := log.NewLogfmtLogger(log.NewSyncWriter(os.Stderr))
	logger = level.NewFilter(logger, l.Option)
	Logger = log.With(logger, "ts", log.DefaultTimestampUTC, "caller", log.Caller(4))
	return Logger
}
