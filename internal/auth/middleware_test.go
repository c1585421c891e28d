package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/lmendes/licitahub/internal/access"
	"github.com/lmendes/licitahub/internal/models"
)

func gatedContext(acc access.Access, p *models.Profile) echo.Context {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	c := echo.New().NewContext(req, httptest.NewRecorder())
	c.Set(string(AccessKey), acc)
	c.Set(string(ProfileKey), p)
	return c
}

func okHandler(c echo.Context) error { return c.NoContent(http.StatusOK) }

func TestRequireAuthorized_RefusesLapsedAccounts(t *testing.T) {
	c := gatedContext(access.Access{IsFreeAuthorized: false}, &models.Profile{})

	err := RequireAuthorized(okHandler)(c)
	var he *echo.HTTPError
	if !errors.As(err, &he) || he.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %v", err)
	}
	body, ok := he.Message.(map[string]interface{})
	if !ok || body["upgrade_required"] != true {
		t.Fatalf("expected upgrade_required in the refusal, got %v", he.Message)
	}
}

func TestRequireAuthorized_PassesAuthorizedTiers(t *testing.T) {
	cases := []access.Access{
		{IsAdmin: true, HasFullAccess: true, IsFreeAuthorized: true},
		{IsPaidSubscriber: true, HasFullAccess: true, IsFreeAuthorized: true},
		{IsFreeAuthorized: true}, // staff-authorized free account
	}
	for _, acc := range cases {
		c := gatedContext(acc, &models.Profile{})
		if err := RequireAuthorized(okHandler)(c); err != nil {
			t.Fatalf("tier %+v refused: %v", acc, err)
		}
	}
}

func TestRequireAdmin_StaffOnly(t *testing.T) {
	c := gatedContext(access.Access{IsFreeAuthorized: true}, &models.Profile{})
	err := RequireAdmin(okHandler)(c)
	var he *echo.HTTPError
	if !errors.As(err, &he) || he.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for a member, got %v", err)
	}

	c = gatedContext(access.Access{IsAdmin: true, IsFreeAuthorized: true}, &models.Profile{IsAdmin: true})
	if err := RequireAdmin(okHandler)(c); err != nil {
		t.Fatalf("staff refused: %v", err)
	}
}
