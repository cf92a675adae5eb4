package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"trunk-connector/internal/auth"
	"trunk-connector/internal/connector"
	"trunk-connector/internal/rbac"
	"trunk-connector/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConnector struct {
	connectRes connector.ConnectResult
	connectErr error
	route      store.NumberRoute
	lookupErr  error

	connects    []connector.ConnectParams
	disconnects []connector.DisconnectParams
}

func (f *fakeConnector) Connect(_ context.Context, p connector.ConnectParams) (connector.ConnectResult, error) {
	f.connects = append(f.connects, p)
	return f.connectRes, f.connectErr
}

func (f *fakeConnector) Disconnect(_ context.Context, p connector.DisconnectParams) (connector.DisconnectResult, error) {
	f.disconnects = append(f.disconnects, p)
	return connector.DisconnectResult{AccountID: p.AccountID, PhoneNumber: p.PhoneNumber}, nil
}

func (f *fakeConnector) Lookup(context.Context, string) (store.NumberRoute, error) {
	return f.route, f.lookupErr
}

func newRouter(fc *fakeConnector, accountID, role string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Request = c.Request.WithContext(auth.WithIdentity(c.Request.Context(), "u1", accountID, role))
		c.Next()
	})
	h := Handlers{Connector: fc}
	r.PATCH("/v1/connector/connect", h.Connect)
	r.DELETE("/v1/connector/disconnect", h.Disconnect)
	r.GET("/v1/connector/numbers/:phone_number", h.GetNumber)
	return r
}

func do(r *gin.Engine, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	var out map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	return w, out
}

const connectBody = `{"phone_number":"+15551234567","account_id":"acct-1","carrier_account_sid":"AC1","carrier_auth_token":"tok"}`

func TestConnect_OK(t *testing.T) {
	fc := &fakeConnector{connectRes: connector.ConnectResult{
		AccountID: "acct-1",
		State:     connector.StateMediaOutboundReady,
	}}
	w, body := do(newRouter(fc, "acct-1", rbac.RoleOwner), http.MethodPatch, "/v1/connector/connect", connectBody)

	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, fc.connects, 1)
	assert.Equal(t, "tok", fc.connects[0].CarrierAuthToken)
	result := body["result"].(map[string]any)
	assert.Equal(t, "MEDIA_OUTBOUND_READY", result["state"])
	assert.NotContains(t, w.Body.String(), "tok")
}

func TestConnect_CrossAccountForbidden(t *testing.T) {
	fc := &fakeConnector{}
	w, _ := do(newRouter(fc, "acct-2", rbac.RoleOwner), http.MethodPatch, "/v1/connector/connect", connectBody)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Empty(t, fc.connects)

	w, _ = do(newRouter(fc, "acct-2", rbac.RoleSuperAdmin), http.MethodPatch, "/v1/connector/connect", connectBody)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestConnect_InvalidBody(t *testing.T) {
	fc := &fakeConnector{}
	r := newRouter(fc, "acct-1", rbac.RoleOwner)

	w, _ := do(r, http.MethodPatch, "/v1/connector/connect", `{`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, body := do(r, http.MethodPatch, "/v1/connector/connect", `{"phone_number":"5551234567","account_id":"acct-1"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_params", body["kind"])
	assert.Empty(t, fc.connects)
}

func TestConnect_ErrorKindsMapToStatus(t *testing.T) {
	cases := []struct {
		kind connector.Kind
		want int
	}{
		{connector.KindPhoneNumberNotFound, http.StatusNotFound},
		{connector.KindAccountConflict, http.StatusConflict},
		{connector.KindCarrierAPI, http.StatusBadGateway},
		{connector.KindMediaPlatformAPI, http.StatusBadGateway},
		{connector.KindTimeout, http.StatusGatewayTimeout},
		{connector.KindPersistence, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(string(tc.kind), func(t *testing.T) {
			fc := &fakeConnector{
				connectRes: connector.ConnectResult{
					AccountID:      "acct-1",
					State:          connector.StateCarrierTrunkReady,
					CarrierTrunkID: "TK1",
				},
				connectErr: &connector.Error{Kind: tc.kind, Step: connector.StepAssociateNumber},
			}
			w, body := do(newRouter(fc, "acct-1", rbac.RoleOwner), http.MethodPatch, "/v1/connector/connect", connectBody)
			assert.Equal(t, tc.want, w.Code)
			assert.Equal(t, string(tc.kind), body["kind"])
			assert.Equal(t, "associate_phone_number", body["step"])
			result := body["result"].(map[string]any)
			assert.Equal(t, "TK1", result["carrier_trunk_id"])
		})
	}
}

func TestDisconnect_Accepted(t *testing.T) {
	fc := &fakeConnector{}
	w, body := do(newRouter(fc, "acct-1", rbac.RoleOwner), http.MethodDelete, "/v1/connector/disconnect",
		`{"phone_number":"+15551234567","account_id":"acct-1"}`)

	assert.Equal(t, http.StatusAccepted, w.Code)
	require.Len(t, fc.disconnects, 1)
	result := body["result"].(map[string]any)
	assert.Equal(t, false, result["changed"])
}

func TestGetNumber(t *testing.T) {
	fc := &fakeConnector{route: store.NumberRoute{
		PhoneNumber:  "+15551234567",
		TrunkID:      "TK1",
		AccountID:    "acct-1",
		MediaTrunkID: "ST_1",
	}}

	w, body := do(newRouter(fc, "acct-1", rbac.RoleViewer), http.MethodGet, "/v1/connector/numbers/+15551234567", "")
	require.Equal(t, http.StatusOK, w.Code)
	route := body["route"].(map[string]any)
	assert.Equal(t, "ST_1", route["media_trunk_id"])

	w, _ = do(newRouter(fc, "acct-2", rbac.RoleViewer), http.MethodGet, "/v1/connector/numbers/+15551234567", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	fc.lookupErr = connector.ErrPhoneNumberNotFound
	w, _ = do(newRouter(fc, "acct-1", rbac.RoleViewer), http.MethodGet, "/v1/connector/numbers/+15550000000", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}
