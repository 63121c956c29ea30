// Package notify delivers critical operator notifications. Callers pass the
// same typed zap fields they log with.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gorm.io/datatypes"

	"futuresexec/internal/models"
	"futuresexec/internal/paas"
	"futuresexec/internal/repository"
)

const (
	LevelCritical = "critical"
	Source        = "stack_handler"
)

type Notifier interface {
	Critical(ctx context.Context, msg string, fields ...zap.Field) error
}

// Details flattens fields into a JSON-friendly map.
func Details(fields []zap.Field) map[string]any {
	enc := zapcore.NewMapObjectEncoder()
	for _, f := range fields {
		f.AddTo(enc)
	}
	return enc.Fields
}

// Log writes the notification at error level. It never fails.
type Log struct {
	logger *zap.Logger
}

func NewLog(logger *zap.Logger) *Log {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Log{logger: logger}
}

func (n *Log) Critical(_ context.Context, msg string, fields ...zap.Field) error {
	n.logger.Error("CRITICAL: "+msg, append(fields, zap.String("level", LevelCritical))...)
	return nil
}

// Store persists an operator_alerts row for the API.
type Store struct {
	repo repository.AlertRepository
	now  func() time.Time
}

func NewStore(repo repository.AlertRepository) *Store {
	return &Store{repo: repo, now: time.Now}
}

func (n *Store) Critical(ctx context.Context, msg string, fields ...zap.Field) error {
	details, err := marshalDetails(Details(fields))
	if err != nil {
		return err
	}
	return n.repo.InsertAlert(ctx, &models.OperatorAlert{
		Level:     LevelCritical,
		Source:    Source,
		Message:   msg,
		Details:   details,
		CreatedAt: n.now().UTC(),
	})
}

// PaaS ships the notification to the PaaS log with level critical.
type PaaS struct {
	client *paas.Client
}

func NewPaaS(client *paas.Client) *PaaS {
	return &PaaS{client: client}
}

func (n *PaaS) Critical(ctx context.Context, msg string, fields ...zap.Field) error {
	details := Details(fields)
	details["message"] = msg
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return n.client.CreateLog(ctx, paas.CreateLogRequest{
		Action:  "stack_handler_critical",
		Level:   LevelCritical,
		Details: details,
	})
}

// Multi fans out to every notifier. A failing notifier is logged and does
// not stop the rest.
type Multi struct {
	logger    *zap.Logger
	notifiers []Notifier
}

func NewMulti(logger *zap.Logger, notifiers ...Notifier) *Multi {
	if logger == nil {
		logger = zap.NewNop()
	}
	out := &Multi{logger: logger}
	for _, n := range notifiers {
		if n != nil {
			out.notifiers = append(out.notifiers, n)
		}
	}
	return out
}

func (m *Multi) Critical(ctx context.Context, msg string, fields ...zap.Field) error {
	var errs []error
	for _, n := range m.notifiers {
		if err := n.Critical(ctx, msg, fields...); err != nil {
			m.logger.Warn("notify failed", zap.String("message", msg), zap.Error(err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func marshalDetails(m map[string]any) (datatypes.JSON, error) {
	if len(m) == 0 {
		return datatypes.JSON([]byte(`{}`)), nil
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(raw), nil
}
