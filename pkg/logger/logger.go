package logger

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type Logger struct {
	logger *logrus.Logger
	fields logrus.Fields
}

type LogLevel string

const (
	DebugLevel LogLevel = "debug"
	InfoLevel  LogLevel = "info"
	WarnLevel  LogLevel = "warn"
	ErrorLevel LogLevel = "error"
	FatalLevel LogLevel = "fatal"
	PanicLevel LogLevel = "panic"
)

type Config struct {
	Level      LogLevel `json:"level"`
	Format     string   `json:"format"` // json, text
	Output     string   `json:"output"` // stdout, stderr, file path
	TimeFormat string   `json:"time_format"`
	Caller     bool     `json:"caller"`
	Colors     bool     `json:"colors"`
	AppName    string   `json:"app_name"`
	Version    string   `json:"version"`
}

func NewLogger(config *Config) (*Logger, error) {
	logger := logrus.New()

	level, err := logrus.ParseLevel(string(config.Level))
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if config.Format == "json" {
		logger.SetFormatter(&CustomJSONFormatter{
			TimestampFormat: config.TimeFormat,
			AppName:         config.AppName,
			Version:         config.Version,
		})
	} else {
		logger.SetFormatter(&CustomTextFormatter{
			TimestampFormat: config.TimeFormat,
			ForceColors:     config.Colors,
			DisableColors:   !config.Colors,
			AppName:         config.AppName,
		})
	}

	if config.Output == "stderr" {
		logger.SetOutput(os.Stderr)
	} else if config.Output == "stdout" || config.Output == "" {
		logger.SetOutput(os.Stdout)
	} else {
		file, err := os.OpenFile(config.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err != nil {
			return nil, err
		}
		logger.SetOutput(file)
	}

	logger.SetReportCaller(config.Caller)

	return &Logger{
		logger: logger,
		fields: make(logrus.Fields),
	}, nil
}

// NewDiscard returns a logger that drops everything; handy in tests.
func NewDiscard() *Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return &Logger{logger: l, fields: make(logrus.Fields)}
}

func (l *Logger) WithField(key string, value interface{}) *Logger {
	newFields := make(logrus.Fields, len(l.fields)+1)
	for k, v := range l.fields {
		newFields[k] = v
	}
	newFields[key] = value

	return &Logger{
		logger: l.logger,
		fields: newFields,
	}
}

func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	newFields := make(logrus.Fields, len(l.fields)+len(fields))
	for k, v := range l.fields {
		newFields[k] = v
	}
	for k, v := range fields {
		newFields[k] = v
	}

	return &Logger{
		logger: l.logger,
		fields: newFields,
	}
}

func (l *Logger) WithContext(ctx context.Context) *Logger {
	return l.WithFields(extractContextFields(ctx))
}

func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}
	return l.WithField("error", err.Error())
}

func (l *Logger) WithUserID(userID primitive.ObjectID) *Logger {
	return l.WithField("user_id", userID.Hex())
}

func (l *Logger) WithAlertID(alertID primitive.ObjectID) *Logger {
	return l.WithField("alert_id", alertID.Hex())
}

func (l *Logger) WithGuardianID(guardianID primitive.ObjectID) *Logger {
	return l.WithField("guardian_id", guardianID.Hex())
}

func (l *Logger) WithRequestID(requestID string) *Logger {
	return l.WithField("request_id", requestID)
}

func (l *Logger) Debug(msg string) {
	l.logger.WithFields(l.fields).Debug(msg)
}

func (l *Logger) Debugf(format string, args ...interface{}) {
	l.logger.WithFields(l.fields).Debugf(format, args...)
}

func (l *Logger) Info(msg string) {
	l.logger.WithFields(l.fields).Info(msg)
}

func (l *Logger) Infof(format string, args ...interface{}) {
	l.logger.WithFields(l.fields).Infof(format, args...)
}

func (l *Logger) Warn(msg string) {
	l.logger.WithFields(l.fields).Warn(msg)
}

func (l *Logger) Warnf(format string, args ...interface{}) {
	l.logger.WithFields(l.fields).Warnf(format, args...)
}

func (l *Logger) Error(msg string) {
	l.logger.WithFields(l.fields).Error(msg)
}

func (l *Logger) Errorf(format string, args ...interface{}) {
	l.logger.WithFields(l.fields).Errorf(format, args...)
}

func (l *Logger) Fatal(msg string) {
	l.logger.WithFields(l.fields).Fatal(msg)
}

func (l *Logger) Fatalf(format string, args ...interface{}) {
	l.logger.WithFields(l.fields).Fatalf(format, args...)
}

// Structured logging methods
func (l *Logger) LogAlertEvent(alertID primitive.ObjectID, event string, details map[string]interface{}) {
	fields := map[string]interface{}{
		"alert_id": alertID.Hex(),
		"event":    event,
		"type":     "alert_event",
	}

	for k, v := range details {
		fields[k] = v
	}

	l.WithFields(fields).Info("Alert event occurred")
}

func (l *Logger) LogAPIRequest(method, endpoint string, statusCode int, duration time.Duration, userID *primitive.ObjectID) {
	fields := map[string]interface{}{
		"method":      method,
		"endpoint":    endpoint,
		"status_code": statusCode,
		"duration_ms": duration.Milliseconds(),
		"type":        "api_request",
	}

	if userID != nil {
		fields["user_id"] = userID.Hex()
	}

	l.WithFields(fields).Info("API request processed")
}

func (l *Logger) LogSecurityEvent(eventType string, severity string, details map[string]interface{}) {
	fields := map[string]interface{}{
		"event_type": eventType,
		"severity":   severity,
		"type":       "security_event",
	}

	for k, v := range details {
		fields[k] = v
	}

	if severity == "high" || severity == "critical" {
		l.WithFields(fields).Error("Security event detected")
	} else {
		l.WithFields(fields).Warn("Security event detected")
	}
}

func (l *Logger) SetOutput(output io.Writer) {
	l.logger.SetOutput(output)
}

func (l *Logger) SetLevel(level LogLevel) {
	logrusLevel, err := logrus.ParseLevel(string(level))
	if err != nil {
		logrusLevel = logrus.InfoLevel
	}
	l.logger.SetLevel(logrusLevel)
}

type contextKey string

const (
	RequestIDKey contextKey = "request_id"
	UserIDKey    contextKey = "user_id"
)

// Helper function to extract fields from context
func extractContextFields(ctx context.Context) map[string]interface{} {
	fields := make(map[string]interface{})
	if ctx == nil {
		return fields
	}

	if userID := ctx.Value(UserIDKey); userID != nil {
		if oid, ok := userID.(primitive.ObjectID); ok {
			fields["user_id"] = oid.Hex()
		} else if str, ok := userID.(string); ok {
			fields["user_id"] = str
		}
	}

	if requestID := ctx.Value(RequestIDKey); requestID != nil {
		if str, ok := requestID.(string); ok {
			fields["request_id"] = str
		}
	}

	return fields
}
