package serialmux

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// localHostRequest creates an httptest request that appears to come from localhost.
// This bypasses tsweb.AllowDebugAccess which checks for loopback IPs.
func localHostRequest(method, path string, body io.Reader) *http.Request {
	req := httptest.NewRequest(method, path, body)
	req.RemoteAddr = "127.0.0.1:12345"
	return req
}

func formRequest(values url.Values) *http.Request {
	req := localHostRequest(http.MethodPost, "/debug/send-command-api", strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func TestAttachAdminRoutes_SendCommandAPI(t *testing.T) {
	tests := []struct {
		name       string
		req        *http.Request
		wantStatus int
		wantBody   string
		wantLine   string
	}{
		{
			name:       "drive command is normalised",
			req:        formRequest(url.Values{"command": {`{"type":"data","throttle":0.5}`}}),
			wantStatus: http.StatusOK,
			wantBody:   "Wrote command",
			wantLine:   `{"type":"data","throttle":"0.5","brake":"0","steering_angle":"0"}`,
		},
		{
			name:       "pickup",
			req:        formRequest(url.Values{"command": {`{"type":"pickup"}`}}),
			wantStatus: http.StatusOK,
			wantLine:   `{"type":"pickup"}`,
		},
		{
			name:       "missing command",
			req:        formRequest(url.Values{"command": {"  "}}),
			wantStatus: http.StatusBadRequest,
			wantBody:   "Missing command",
		},
		{
			name:       "not a command",
			req:        formRequest(url.Values{"command": {`{"type":"warp"}`}}),
			wantStatus: http.StatusBadRequest,
			wantBody:   "Invalid command",
		},
		{
			name:       "GET not allowed",
			req:        localHostRequest(http.MethodGet, "/debug/send-command-api", nil),
			wantStatus: http.StatusMethodNotAllowed,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			port := NewFakePort()
			httpMux := http.NewServeMux()
			NewSerialMux(port).AttachAdminRoutes(httpMux)

			rec := httptest.NewRecorder()
			httpMux.ServeHTTP(rec, tt.req)
			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			if tt.wantBody != "" {
				assert.Contains(t, rec.Body.String(), tt.wantBody)
			}
			written := strings.TrimSpace(string(port.Written()))
			if tt.wantLine == "" {
				assert.Empty(t, written)
				return
			}
			assert.JSONEq(t, tt.wantLine, written)
		})
	}
}

func TestAttachAdminRoutes_StaticPages(t *testing.T) {
	httpMux := http.NewServeMux()
	NewSerialMux(NewFakePort()).AttachAdminRoutes(httpMux)

	rec := httptest.NewRecorder()
	httpMux.ServeHTTP(rec, localHostRequest(http.MethodGet, "/debug/send-command", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "tail.js")

	rec = httptest.NewRecorder()
	httpMux.ServeHTTP(rec, localHostRequest(http.MethodGet, "/debug/tail.js", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/javascript", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "EventSource")
}

func TestAttachAdminRoutes_TailStreamsSummarisedLines(t *testing.T) {
	port := NewFakePort()
	port.BlockReads = true
	mux := NewSerialMux(port)
	httpMux := http.NewServeMux()
	mux.AttachAdminRoutes(httpMux)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go mux.Monitor(ctx)

	srv := httptest.NewServer(httpMux)
	defer srv.Close()

	reqCtx, reqCancel := context.WithTimeout(ctx, 5*time.Second)
	defer reqCancel()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, srv.URL+"/debug/tail", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// Read the initial ping so the subscription is known to exist.
	buf := make([]byte, 64)
	n, err := resp.Body.Read(buf)
	require.NoError(t, err)
	require.Contains(t, string(buf[:n]), "ping")

	port.Feed([]byte(`{"speed":"2","image":"QUJD"}` + "\n"))

	var got strings.Builder
	for !strings.Contains(got.String(), "\n\n") {
		n, err := resp.Body.Read(buf)
		require.NoError(t, err)
		got.Write(buf[:n])
	}
	assert.Contains(t, got.String(), `"speed":"2"`)
	assert.Contains(t, got.String(), `<6 bytes>`)

	reqCancel()
	port.Close()
}

func TestAttachAdminRoutes_SerialStats(t *testing.T) {
	port := NewFakePort()
	mux := NewSerialMux(port)
	httpMux := http.NewServeMux()
	mux.AttachAdminRoutes(httpMux)

	port.Feed([]byte("{\"speed\":\"0\"}\n"))
	require.NoError(t, mux.Monitor(context.Background()))

	rec := httptest.NewRecorder()
	httpMux.ServeHTTP(rec, localHostRequest(http.MethodGet, "/debug/serial-stats", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var st LinkStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.Equal(t, int64(1), st.LinesIn)
	assert.Equal(t, int64(14), st.BytesIn)
}
