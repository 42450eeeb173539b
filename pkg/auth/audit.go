package auth

import (
	"context"
	"fmt"
	"time"
)

// audit appends one record to the audit log. Audit failures never block the
// operation being audited; they are logged and dropped. Subjects are
// truncated so raw credentials never reach the log.
func (a *Authenticator) audit(ctx context.Context, eventType, subject string, success bool, details map[string]any) {
	key := fmt.Sprintf("%d_%s", time.Now().UnixMilli(), sha256Hex(subject)[:16])
	record := map[string]any{
		"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		"event_type": eventType,
		"subject":    TruncateID(subject),
		"success":    success,
		"details":    details,
	}
	if err := a.backend.Set(ctx, nsAuditLog, key, record); err != nil {
		a.logger.Error("failed to write audit record", "event", eventType, "error", err)
	}
}
