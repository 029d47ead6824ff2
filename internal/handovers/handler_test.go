package handovers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"propertyhub/owner-portal/owner-portal-backend/internal/auth"
	"propertyhub/owner-portal/owner-portal-backend/internal/threads"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestRouter(f *fixture, actor auth.Actor) *gin.Engine {
	r := gin.New()
	api := r.Group("/api/v1", func(c *gin.Context) { auth.SetActor(c, actor) })
	messages := threads.NewHandler(f.threads, zap.NewNop())
	NewHandler(f.service, messages, zap.NewNop()).RegisterRoutes(api)
	return r
}

func serve(r *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHandoverLifecycleOverHTTP(t *testing.T) {
	f := newFixture(t)
	admin := newTestRouter(f, f.admin)
	owner := newTestRouter(f, f.owner)

	w := serve(admin, http.MethodPost, "/api/v1/handovers", CreateRequest{
		UnitID:  f.owner.UserID,
		OwnerID: f.owner.UserID,
		Items:   []ItemInput{{Label: "Kitchen tiles"}},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created View
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	base := "/api/v1/handovers/" + created.ID.String()

	w = serve(owner, http.MethodPost, base+"/owner-confirm", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "DRAFT")

	w = serve(admin, http.MethodPost, base+"/send", SendRequest{Message: "please review"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = serve(owner, http.MethodGet, base+"/messages", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "please review")

	w = serve(owner, http.MethodPost, base+"/owner-confirm", ConfirmRequest{
		ItemUpdates: []ItemUpdate{{ID: created.Items[0].ID, Status: ItemNotOK}},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = serve(owner, http.MethodPost, base+"/owner-confirm", ConfirmRequest{Acknowledgement: "ok"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var accepted map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &accepted))
	assert.Equal(t, "ACCEPTED", accepted["status"])
	assert.Nil(t, accepted["pdfUrl"])
	assert.NotContains(t, accepted, "internalNotes")

	w = serve(owner, http.MethodPost, base+"/messages", threads.AppendRequest{Body: "thanks"})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestOwnersCannotUseAdminRoutes(t *testing.T) {
	f := newFixture(t)
	created := f.create(t, "Kitchen tiles")
	owner := newTestRouter(f, f.owner)
	base := "/api/v1/handovers/" + created.ID.String()

	for _, tc := range []struct{ method, path string }{
		{http.MethodPost, "/api/v1/handovers"},
		{http.MethodGet, "/api/v1/handovers/export"},
		{http.MethodPut, base},
		{http.MethodPost, base + "/send"},
		{http.MethodPost, base + "/cancel"},
	} {
		w := serve(owner, tc.method, tc.path, map[string]string{})
		assert.Equal(t, http.StatusForbidden, w.Code, tc.method+" "+tc.path)
	}
}

func TestGetRejectsBadQuery(t *testing.T) {
	f := newFixture(t)
	created := f.create(t, "Kitchen tiles")
	admin := newTestRouter(f, f.admin)

	w := serve(admin, http.MethodGet, "/api/v1/handovers/"+created.ID.String()+"?maxStaleness=soon", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = serve(admin, http.MethodGet, "/api/v1/handovers/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = serve(admin, http.MethodGet, "/api/v1/handovers?limit=ten", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = serve(admin, http.MethodGet, "/api/v1/handovers/"+created.ID.String()+"?maxStaleness=5", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestExportReturnsWorkbook(t *testing.T) {
	f := newFixture(t)
	f.create(t, "Kitchen tiles")
	admin := newTestRouter(f, f.admin)

	w := serve(admin, http.MethodGet, "/api/v1/handovers/export?status=DRAFT", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, FormatXLSX.ContentType(), w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), ".xlsx")
	// XLSX files are zip archives.
	assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("PK")))
}

func TestExportCSV(t *testing.T) {
	f := newFixture(t)
	created := f.create(t, "Kitchen tiles")
	admin := newTestRouter(f, f.admin)

	w := serve(admin, http.MethodGet, "/api/v1/handovers/export?format=csv", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Header().Get("Content-Disposition"), ".csv")

	lines := strings.Split(strings.TrimSpace(w.Body.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "Handover ID,Unit ID,Owner ID,Status"))
	assert.True(t, strings.HasPrefix(lines[1], created.ID.String()))
	assert.Contains(t, lines[1], ",DRAFT,33,1,0,")

	w = serve(admin, http.MethodGet, "/api/v1/handovers/export?format=pdf", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
