package rbac

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"smarttv-backend/internal/auth"

	"github.com/gin-gonic/gin"
)

func serveAs(role string, allowed ...string) int {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.GET("/x", func(c *gin.Context) {
		ctx := auth.WithIdentity(c.Request.Context(), "u", role)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}, RequireAnyRole(allowed...), func(c *gin.Context) {
		c.Status(200)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	return w.Code
}

func TestRequireAnyRole_SuperAdminBypasses(t *testing.T) {
	if code := serveAs(RoleSuperAdmin, RoleAdmin); code != 200 {
		t.Fatalf("expected 200, got %d", code)
	}
}

func TestRequireAnyRole_UserDeniedOnAdminRoute(t *testing.T) {
	if code := serveAs(RoleUser, RoleAdmin); code != 403 {
		t.Fatalf("expected 403, got %d", code)
	}
}

func TestRequireAnyRole_HiddenRoleDeniedUnlessAllowed(t *testing.T) {
	if code := serveAs(RoleOperator, RoleAdmin); code != 403 {
		t.Fatalf("expected 403, got %d", code)
	}
	if code := serveAs(RoleOperator, RoleAdmin, RoleOperator); code != 200 {
		t.Fatalf("expected 200 when explicitly allowed, got %d", code)
	}
}

func TestRequireAnyRole_IdentityRequired(t *testing.T) {
	if code := serveAs("", RoleAdmin); code != 401 {
		t.Fatalf("expected 401, got %d", code)
	}
}

func TestRequireAnyRole_UnknownRoleDenied(t *testing.T) {
	if code := serveAs("billing", "billing"); code != 403 {
		t.Fatalf("expected 403 for unknown role, got %d", code)
	}
}

func TestCanEndAnyCall(t *testing.T) {
	for role, want := range map[string]bool{
		RoleUser: false, RoleOperator: false, RoleAdmin: true, RoleSuperAdmin: true,
	} {
		if got := CanEndAnyCall(role); got != want {
			t.Fatalf("CanEndAnyCall(%q) = %v, want %v", role, got, want)
		}
	}
}
