package log

import (
	"fmt"
	"os"
	"path"

	"github.com/sirupsen/logrus"
)

var (
	globalLogger *logrus.Logger
	accessLogger *logrus.Logger
)

func openLogs(logDir string) (accessLog, errorLog *os.File, err error) {
	accessLog, err = os.OpenFile(path.Join(logDir, "access.log"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create access.log: %s", err)
	}
	errorLog, err = os.OpenFile(path.Join(logDir, "error.log"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		accessLog.Close()
		return nil, nil, fmt.Errorf("failed to create error.log: %s", err)
	}
	return accessLog, errorLog, nil
}

// ReopenLogs swaps in fresh file handles, e.g. after logrotate moved the files.
func ReopenLogs(logDir string) error {
	if logDir == "" {
		return nil
	}
	accessLog, errorLog, err := openLogs(logDir)
	if err != nil {
		return err
	}

	if oldFd, ok := accessLogger.Out.(*os.File); ok && oldFd != os.Stdout {
		defer oldFd.Close()
	}
	accessLogger.Out = accessLog

	if oldFd, ok := globalLogger.Out.(*os.File); ok && oldFd != os.Stderr {
		defer oldFd.Close()
	}
	globalLogger.Out = errorLog
	return nil
}

func Setup(logFormat, logDir, logLevel, backtrackLevel string) error {
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		return fmt.Errorf("failed to parse log level: %s", err)
	}
	btLevel, err := logrus.ParseLevel(backtrackLevel)
	if err != nil {
		return fmt.Errorf("failed to parse backtrack level: %s", err)
	}
	accessLogger = logrus.New()
	globalLogger = logrus.New()

	if logFormat == "json" {
		accessLogger.SetFormatter(&logrus.JSONFormatter{})
		globalLogger.SetFormatter(&logrus.JSONFormatter{})
	}

	globalLogger.Level = level
	globalLogger.Hooks.Add(NewBackTrackHook(btLevel))
	globalLogger.Hooks.Add(NewRedactHook())
	accessLogger.Hooks.Add(NewRedactHook())
	if logDir == "" {
		accessLogger.Out = os.Stdout
		globalLogger.Out = os.Stderr
		return nil
	}
	accessLog, errorLog, err := openLogs(logDir)
	if err != nil {
		return err
	}
	accessLogger.Out = accessLog
	globalLogger.Out = errorLog
	return nil
}

func Get() *logrus.Logger {
	return globalLogger
}

func GetAccessLogger() *logrus.Logger {
	return accessLogger
}
