package security

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func newTestLogger(r *Redactor) (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	inner := slog.NewTextHandler(&buf, nil)
	return slog.New(NewRedactingHandler(inner, r)), &buf
}

func TestRedactingHandler_Message(t *testing.T) {
	t.Parallel()
	r := NewRedactor()
	r.AddLiteral("hunter2secret")
	logger, buf := newTestLogger(r)

	logger.Info("connecting with hunter2secret")

	if out := buf.String(); strings.Contains(out, "hunter2secret") {
		t.Errorf("secret leaked in message: %s", out)
	}
}

func TestRedactingHandler_Attrs(t *testing.T) {
	t.Parallel()
	r := NewRedactor()
	logger, buf := newTestLogger(r)

	logger.Info("handshake",
		"token", "t-g1044qeGEDXTB6NDJOGV4JQCYDGHRBARFTGT1234",
		"attempt", 3,
	)

	out := buf.String()
	if strings.Contains(out, "t-g1044") {
		t.Errorf("secret leaked in attribute: %s", out)
	}
	if !strings.Contains(out, "attempt=3") {
		t.Errorf("non-secret attribute lost: %s", out)
	}
}

func TestRedactingHandler_WithAttrsAndGroup(t *testing.T) {
	t.Parallel()
	r := NewRedactor()
	r.AddLiteral("grouped-secret-value")
	logger, buf := newTestLogger(r)

	logger.With("auth", "grouped-secret-value").WithGroup("lark").Info("ready", "chat", "oc_123")

	out := buf.String()
	if strings.Contains(out, "grouped-secret-value") {
		t.Errorf("secret leaked through With: %s", out)
	}
	if !strings.Contains(out, "lark.chat=oc_123") {
		t.Errorf("group attribute missing: %s", out)
	}
}

func TestRedactingHandler_ErrorValue(t *testing.T) {
	t.Parallel()
	r := NewRedactor()
	r.AddLiteral("token-in-error-text")
	logger, buf := newTestLogger(r)

	logger.Error("request failed", "error", errors.New("401 for token-in-error-text"))

	if out := buf.String(); strings.Contains(out, "token-in-error-text") {
		t.Errorf("secret leaked through error value: %s", out)
	}
}
