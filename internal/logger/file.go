package logger

import (
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	defaultLogFile   = "./logs/mailrelay.log"
	defaultLogSizeMB = 100
	defaultLogFiles  = 5
)

// rotatingFile builds the lumberjack sink for Output "file". Zero values in
// cfg fall back to the service defaults. Rotated files keep local timestamps
// in their names and are gzipped.
func rotatingFile(cfg LoggingConfig) *lumberjack.Logger {
	out := &lumberjack.Logger{
		Filename:   cfg.FilePath,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxFiles,
		LocalTime:  true,
		Compress:   true,
	}
	if out.Filename == "" {
		out.Filename = defaultLogFile
	}
	if out.MaxSize <= 0 {
		out.MaxSize = defaultLogSizeMB
	}
	if out.MaxBackups <= 0 {
		out.MaxBackups = defaultLogFiles
	}
	return out
}
