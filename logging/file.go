package logging

import (
	"io"

	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// maxLogFileMB is the size at which a log file is rotated.
const maxLogFileMB = 64

// NewFileAppender returns an appender writing JSON entries to filename, rotating it by size. The closer releases
// the file.
func NewFileAppender(filename string) (Appender, io.Closer) {
	file := &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    maxLogFileMB,
		MaxBackups: 2,
		Compress:   true,
	}
	encoderConfig := NewZapLoggerConfig().EncoderConfig
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	return zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), zapcore.AddSync(file), zapcore.DebugLevel), file
}
