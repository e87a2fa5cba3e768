package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func testIssuer() Issuer {
	return Issuer{Name: "campusattend", Key: []byte("test-key"), AccessTTL: time.Minute, RefreshTTL: time.Hour}
}

func TestIssueAndParse(t *testing.T) {
	iss := testIssuer()
	pair, err := iss.Issue("kiosk-1", RoleKiosk)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	claims, err := iss.Parse(pair.AccessToken, KindAccess)
	if err != nil {
		t.Fatalf("parse access: %v", err)
	}
	if claims.Subject != "kiosk-1" || claims.Role != RoleKiosk {
		t.Errorf("unexpected claims %+v", claims)
	}

	if _, err := iss.Parse(pair.RefreshToken, KindAccess); err == nil {
		t.Error("refresh token accepted as access token")
	}
	if _, err := iss.Parse(pair.RefreshToken, KindRefresh); err != nil {
		t.Errorf("parse refresh: %v", err)
	}
}

func TestIssue_TokensAreUnique(t *testing.T) {
	iss := testIssuer()
	a, _ := iss.Issue("kiosk-1", RoleKiosk)
	b, _ := iss.Issue("kiosk-1", RoleKiosk)
	if a.RefreshToken == b.RefreshToken {
		t.Error("expected distinct refresh tokens for back-to-back issues")
	}
}

func TestParse_RejectsForeignIssuerAndKey(t *testing.T) {
	pair, _ := testIssuer().Issue("kiosk-1", RoleKiosk)

	other := testIssuer()
	other.Name = "someone-else"
	if _, err := other.Parse(pair.AccessToken, KindAccess); err == nil {
		t.Error("accepted token from another issuer")
	}

	other = testIssuer()
	other.Key = []byte("wrong")
	if _, err := other.Parse(pair.AccessToken, KindAccess); err == nil {
		t.Error("accepted token signed with another key")
	}
}

func TestParse_Expired(t *testing.T) {
	iss := testIssuer()
	iss.AccessTTL = -time.Minute
	pair, _ := iss.Issue("kiosk-1", RoleKiosk)

	if _, err := iss.Parse(pair.AccessToken, KindAccess); err == nil {
		t.Error("accepted expired token")
	}
}

func TestDeviceAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	iss := testIssuer()
	pair, _ := iss.Issue("kiosk-9", RoleKiosk)

	r := gin.New()
	r.GET("/p", DeviceAuth(iss), func(c *gin.Context) {
		claims, _ := FromContext(c)
		c.String(http.StatusOK, claims.Subject)
	})

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"garbage", "Bearer nope", http.StatusUnauthorized},
		{"refresh", "Bearer " + pair.RefreshToken, http.StatusUnauthorized},
		{"valid", "Bearer " + pair.AccessToken, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/p", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			if w.Code != tt.want {
				t.Errorf("got %d, want %d", w.Code, tt.want)
			}
			if tt.want == http.StatusOK && w.Body.String() != "kiosk-9" {
				t.Errorf("unexpected body %q", w.Body.String())
			}
		})
	}
}
