package charterd

import (
	"context"

	"github.com/MarkoPoloResearchLab/charterbook/pkg/reservation"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// zapOperationLogger writes engine operation records as structured log lines.
type zapOperationLogger struct {
	logger *zap.Logger
}

func newOperationLogger(logger *zap.Logger) reservation.OperationLogger {
	return &zapOperationLogger{logger: logger.Named("reservation")}
}

func (operationLogger *zapOperationLogger) LogOperation(_ context.Context, entry reservation.OperationLog) {
	fields := make([]zap.Field, 0, 12)
	fields = append(fields, zap.String("operation", entry.Operation), zap.String("status", entry.Status))
	fields = appendIfSet(fields, "captain_id", entry.CaptainID.String())
	fields = appendIfSet(fields, "charter_id", entry.CharterID.String())
	fields = appendIfSet(fields, "customer_id", entry.CustomerID.String())
	fields = appendIfSet(fields, "booking_id", entry.BookingID.String())
	fields = appendIfSet(fields, "waitlist_entry_id", entry.WaitlistEntryID.String())
	fields = appendIfSet(fields, "price_alert_id", entry.PriceAlertID.String())
	fields = appendIfSet(fields, "date", entry.Date.String())
	fields = appendIfSet(fields, "detail", entry.Detail)
	if entry.Amount != 0 {
		fields = append(fields, zap.Int64("amount_cents", entry.Amount.Int64()))
	}
	level := zapcore.InfoLevel
	if entry.Error != nil {
		level = zapcore.WarnLevel
		fields = append(fields, zap.Error(entry.Error))
	}
	if checked := operationLogger.logger.Check(level, "reservation operation"); checked != nil {
		checked.Write(fields...)
	}
}

func appendIfSet(fields []zap.Field, key string, value string) []zap.Field {
	if value == "" {
		return fields
	}
	return append(fields, zap.String(key, value))
}
