package alerts_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/MikoBN1/AWAST-Diploma/alerts"
	"github.com/MikoBN1/AWAST-Diploma/zap"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func TestDedupe(t *testing.T) {
	t.Parallel()

	in := []zap.Alert{
		{Name: "XSS", URL: "https://ex.test/a", Param: "q", Evidence: "<script>"},
		{Name: "XSS", URL: "https://ex.test/a", Param: "q", Evidence: "<script>"}, // 完全重复
		{Name: "XSS", URL: "https://ex.test/b", Param: "q", Evidence: "<svg>"},   // url 不同，保留
		{Name: "Missing Header", URL: "https://ex.test/", Param: ""},             // 无 evidence，丢弃
	}

	out := alerts.Dedupe(in)
	require.Len(t, out, 2)
	require.Equal(t, "https://ex.test/a", out[0].URL)
	require.Equal(t, "https://ex.test/b", out[1].URL)
}

func TestListHandlerFiltersEngineAlerts(t *testing.T) {
	gin.SetMode(gin.TestMode)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/JSON/core/view/alerts/", r.URL.Path)
		require.Equal(t, "https://ex.test/", r.URL.Query().Get("baseurl"))
		w.Write([]byte(`{"alerts":[
			{"id":"1","alert":"XSS","risk":"High","url":"https://ex.test/a","param":"q","evidence":"<script>"},
			{"id":"2","alert":"XSS","risk":"High","url":"https://ex.test/a","param":"q","evidence":"<script>"},
			{"id":"3","alert":"CSP Header Not Set","risk":"Medium","url":"https://ex.test/"}
		]}`))
	}))
	t.Cleanup(srv.Close)

	router := gin.New()
	h := alerts.NewHandler(zap.NewClient(srv.URL, "test-key"))
	router.GET("/api/alerts", h.List())

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/alerts?baseurl=https%3A%2F%2Fex.test%2F", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{
		"count": 1,
		"alerts": [{"id":"1","alert":"XSS","risk":"High","confidence":"","url":"https://ex.test/a","param":"q","evidence":"<script>","solution":"","reference":"","cweid":"","tags":null}]
	}`, w.Body.String())
}

func TestListHandlerMapsEngineErrors(t *testing.T) {
	gin.SetMode(gin.TestMode)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"code":"bad_api_key","message":"Provided apikey is incorrect"}`))
	}))
	t.Cleanup(srv.Close)

	router := gin.New()
	h := alerts.NewHandler(zap.NewClient(srv.URL, "wrong"))
	router.GET("/api/alerts", h.List())

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/alerts", nil))

	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Contains(t, w.Body.String(), "Provided apikey is incorrect")
}
