package logging

import (
	"os"

	"github.com/sirupsen/logrus"
)

// SetupLogging configures the standard logger for JSON output. Services and
// the ledger auditor all log through logrus.StandardLogger, so configuring it
// once at startup covers the whole process.
func SetupLogging() *logrus.Logger {
	logger := logrus.StandardLogger()
	logger.SetFormatter(&logrus.JSONFormatter{
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyLevel: "loglevel",
		},
	})
	logger.SetOutput(os.Stdout)
	logger.SetLevel(logrus.InfoLevel)
	return logger
}
