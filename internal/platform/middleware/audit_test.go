package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/careview/careview/internal/platform/auth"
)

func auditContext(t *testing.T, method, target string) (echo.Context, *httptest.ResponseRecorder) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(method, target, nil)
	ctx := context.WithValue(req.Context(), auth.UserIDKey, "user-7")
	ctx = context.WithValue(ctx, auth.UserRolesKey, []string{"physician"})
	req = req.WithContext(ctx)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.Set("request_id", "req-abc")
	return c, rec
}

func TestAudit_RecordsDocumentAccess(t *testing.T) {
	var captured []AuditEntry
	recorder := AuditRecorderFunc(func(e AuditEntry) error {
		captured = append(captured, e)
		return nil
	})

	c, _ := auditContext(t, http.MethodGet, "/api/v1/documents/6ba7b810-9dad-11d1-80b4-00c04fd430c8")
	handler := Audit(zerolog.Nop(), recorder)(func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	if err := handler(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(captured) != 1 {
		t.Fatalf("expected 1 audit entry, got %d", len(captured))
	}
	entry := captured[0]
	if entry.UserID != "user-7" {
		t.Errorf("expected user-7, got %q", entry.UserID)
	}
	if entry.RequestID != "req-abc" {
		t.Errorf("expected request_id 'req-abc', got %q", entry.RequestID)
	}
	if entry.ResourceType != "documents" {
		t.Errorf("expected resource type documents, got %q", entry.ResourceType)
	}
	if entry.DocumentID != "6ba7b810-9dad-11d1-80b4-00c04fd430c8" {
		t.Errorf("document id not extracted, got %q", entry.DocumentID)
	}
	if entry.Action != "read" {
		t.Errorf("expected action read, got %q", entry.Action)
	}
	if entry.SharedAccess {
		t.Error("owner API access must not be flagged as shared access")
	}
}

func TestAudit_ShareAccessRedactsToken(t *testing.T) {
	var captured []AuditEntry
	recorder := AuditRecorderFunc(func(e AuditEntry) error {
		captured = append(captured, e)
		return nil
	})

	c, _ := auditContext(t, http.MethodGet, "/share/secret-capability-token")
	handler := Audit(zerolog.Nop(), recorder)(func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	if err := handler(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	entry := captured[0]
	if !entry.SharedAccess {
		t.Error("share view must be flagged as shared access")
	}
	if entry.ResourceType != "share" {
		t.Errorf("expected resource type share, got %q", entry.ResourceType)
	}
	if strings.Contains(entry.Path, "secret-capability-token") {
		t.Errorf("token leaked into audit path: %q", entry.Path)
	}
}

func TestAudit_ActionFromMethod(t *testing.T) {
	cases := []struct {
		method string
		want   string
	}{
		{http.MethodGet, "read"},
		{http.MethodPost, "create"},
		{http.MethodPut, "update"},
		{http.MethodDelete, "delete"},
	}
	for _, tc := range cases {
		var captured []AuditEntry
		recorder := AuditRecorderFunc(func(e AuditEntry) error {
			captured = append(captured, e)
			return nil
		})
		c, _ := auditContext(t, tc.method, "/api/v1/documents")
		handler := Audit(zerolog.Nop(), recorder)(func(c echo.Context) error {
			return c.NoContent(http.StatusNoContent)
		})
		if err := handler(c); err != nil {
			t.Fatalf("%s: unexpected error: %v", tc.method, err)
		}
		if captured[0].Action != tc.want {
			t.Errorf("%s: expected action %q, got %q", tc.method, tc.want, captured[0].Action)
		}
	}
}

func TestAudit_SkipsNonAuditablePaths(t *testing.T) {
	var captured []AuditEntry
	recorder := AuditRecorderFunc(func(e AuditEntry) error {
		captured = append(captured, e)
		return nil
	})

	c, _ := auditContext(t, http.MethodGet, "/health")
	handler := Audit(zerolog.Nop(), recorder)(func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	if err := handler(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(captured) != 0 {
		t.Errorf("health endpoint should not be audited, got %d entries", len(captured))
	}
}

func TestAudit_RecorderFailureDoesNotBreakRequest(t *testing.T) {
	recorder := AuditRecorderFunc(func(e AuditEntry) error {
		return errors.New("sink unavailable")
	})

	c, rec := auditContext(t, http.MethodGet, "/api/v1/documents")
	handler := Audit(zerolog.Nop(), recorder)(func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	if err := handler(c); err != nil {
		t.Fatalf("audit sink failure must not fail the request: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}
