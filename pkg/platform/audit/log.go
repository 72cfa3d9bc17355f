package audit

import (
	"context"
	"log/slog"

	"keepsake/pkg/platform/attrs"
	"keepsake/pkg/requestcontext"
)

// LogAudit logs audit events to both the structured logger and the audit
// publisher. It enriches the event with request ID and client IP from the
// context and extracts vault, subject, actor and reason from attrList.
func LogAudit(ctx context.Context, logger *slog.Logger, publisher Publisher, event AuditEvent, attrList ...any) {
	requestID := requestcontext.RequestID(ctx)
	if requestID != "" {
		attrList = append(attrList, "request_id", requestID)
	}

	args := append(attrList, "event", string(event), "log_type", "audit")
	if logger != nil {
		logger.InfoContext(ctx, string(event), args...)
	}

	if publisher == nil {
		return
	}

	e := Event{
		Category:  event.Category(),
		Subject:   attrs.FirstString(attrList, "beneficiary_id", "ip"),
		Action:    string(event),
		Reason:    attrs.ExtractString(attrList, "reason"),
		ActorID:   attrs.FirstString(attrList, "operator_id", "owner_id", "actor"),
		IP:        requestcontext.ClientIP(ctx),
		RequestID: requestID,
		Severity:  severityFor(event, attrList),
	}
	if v := attrs.ExtractString(attrList, "vault_id"); v != "" {
		_ = e.VaultID.UnmarshalText([]byte(v))
	}
	if e.IP == "" {
		e.IP = attrs.ExtractString(attrList, "ip")
	}

	if err := publisher.Emit(ctx, e); err != nil && logger != nil {
		logger.WarnContext(ctx, "failed to publish audit event",
			"event", string(event),
			"error", err,
		)
	}
}

func severityFor(event AuditEvent, attrList []any) Severity {
	if s := attrs.ExtractString(attrList, "severity"); s != "" {
		return Severity(s)
	}
	if event.Category() == CategorySecurity {
		return SeverityWarning
	}
	return SeverityInfo
}
