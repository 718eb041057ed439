package audit

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/AlibekovAA/session-guard/internal/common/constants"
)

// LogrusSink writes one JSON object per event, separate from the
// application log so it can be shipped and retained on its own schedule.
type LogrusSink struct {
	log *logrus.Logger
}

func NewLogrusSink(w io.Writer) *LogrusSink {
	l := logrus.New()
	l.SetOutput(w)
	l.SetLevel(logrus.InfoLevel)
	l.SetFormatter(&logrus.JSONFormatter{
		DisableTimestamp: true,
	})
	return &LogrusSink{log: l}
}

// NewFileLogrusSink writes to a size-rotated audit.log in dir, or to stdout
// when dir is empty.
func NewFileLogrusSink(dir string) (*LogrusSink, error) {
	if dir == "" {
		return NewLogrusSink(os.Stdout), nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create audit log directory: %w", err)
	}
	return NewLogrusSink(&lumberjack.Logger{
		Filename:   filepath.Join(dir, "audit.log"),
		MaxSize:    constants.LoggerMaxSize,
		MaxBackups: constants.LoggerMaxBackups,
		MaxAge:     constants.LoggerMaxAge,
		Compress:   true,
	}), nil
}

func (s *LogrusSink) Emit(_ context.Context, event Event) {
	fields := logrus.Fields{
		"kind":      string(event.Kind),
		"timestamp": event.Timestamp.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
	}
	if event.UserID != "" {
		fields["user_id"] = event.UserID
	}
	if event.FamilyID != "" {
		fields["family_id"] = event.FamilyID
	}
	if event.RequestID != "" {
		fields["request_id"] = event.RequestID
	}
	if event.IPHash != "" {
		fields["ip_hash"] = event.IPHash
	}
	if event.Reason != "" {
		fields["reason"] = event.Reason
	}
	if event.Count != 0 {
		fields["count"] = event.Count
	}

	entry := s.log.WithFields(fields)
	switch event.Kind {
	case KindReuseDetected, KindFamilyLimitExceeded:
		entry.Warn("security audit event")
	default:
		entry.Info("security audit event")
	}
}
