package rbac

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"trunk-connector/internal/auth"

	"github.com/gin-gonic/gin"
)

func routerAs(accountID, role string, allowed ...string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/x", func(c *gin.Context) {
		ctx := auth.WithIdentity(c.Request.Context(), "u", accountID, role)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}, RequireAccount(), RequireAnyRole(allowed...), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return r
}

func serve(r *gin.Engine) int {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	return w.Code
}

func TestRequireAnyRole_SuperAdminBypasses(t *testing.T) {
	if code := serve(routerAs("a", RoleSuperAdmin, RoleOwner)); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
}

func TestRequireAnyRole_HiddenRoleDeniedUnlessAllowed(t *testing.T) {
	if code := serve(routerAs("a", RoleNetworkOperator, RoleOwner)); code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", code)
	}
	if code := serve(routerAs("a", RoleNetworkOperator, RoleOwner, RoleNetworkOperator)); code != http.StatusOK {
		t.Fatalf("expected 200 when allowed, got %d", code)
	}
}

func TestRequireAnyRole_ViewerForbidden(t *testing.T) {
	if code := serve(routerAs("a", RoleViewer, RoleOwner)); code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", code)
	}
}

func TestRequireAccount_Required(t *testing.T) {
	if code := serve(routerAs("", RoleOwner, RoleOwner)); code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", code)
	}
}

func TestAuthorizeAccount(t *testing.T) {
	owner := auth.WithIdentity(context.Background(), "u", "acct-1", RoleOwner)
	if err := AuthorizeAccount(owner, "acct-1"); err != nil {
		t.Fatalf("expected own account allowed, got %v", err)
	}
	if err := AuthorizeAccount(owner, "acct-2"); !errors.Is(err, ErrCrossAccount) {
		t.Fatalf("expected ErrCrossAccount, got %v", err)
	}

	admin := auth.WithIdentity(context.Background(), "u", "acct-1", RoleSuperAdmin)
	if err := AuthorizeAccount(admin, "acct-2"); err != nil {
		t.Fatalf("expected super_admin allowed, got %v", err)
	}

	if err := AuthorizeAccount(context.Background(), "acct-1"); err == nil {
		t.Fatalf("expected error without identity")
	}
}

func TestAuthorizeRead_OperatorReadsAnyAccount(t *testing.T) {
	op := auth.WithIdentity(context.Background(), "runtime", "ops", RoleNetworkOperator)
	if err := AuthorizeRead(op, "acct-1"); err != nil {
		t.Fatalf("expected operator read allowed, got %v", err)
	}
	if err := AuthorizeAccount(op, "acct-1"); !errors.Is(err, ErrCrossAccount) {
		t.Fatalf("expected operator writes denied, got %v", err)
	}

	viewer := auth.WithIdentity(context.Background(), "u", "acct-2", RoleViewer)
	if err := AuthorizeRead(viewer, "acct-1"); !errors.Is(err, ErrCrossAccount) {
		t.Fatalf("expected ErrCrossAccount, got %v", err)
	}
}
