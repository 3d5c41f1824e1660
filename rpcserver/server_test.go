package rpcserver

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmlab-tud/lockvault/manager"
)

func newTestServer(t *testing.T, secret string) *httptest.Server {
	t.Helper()
	mgr, err := manager.New(manager.Options{
		NumWorkers:   4,
		BucketCount:  64,
		KeyVaultPath: filepath.Join(t.TempDir(), "vault"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { mgr.Close() })

	srv := New(mgr, secret)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts
}

func postJSON(t *testing.T, ts *httptest.Server, path, secret string, body any) *http.Response {
	t.Helper()
	buf, err := json.Marshal(body)
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPost, ts.URL+path, bytes.NewReader(buf))
	require.NoError(t, err)
	if secret != "" {
		req.Header.Set("X-LockVault-Secret", secret)
	}

	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	return resp
}

func TestRegisterThenLockShared(t *testing.T) {
	ts := newTestServer(t, "")

	resp := postJSON(t, ts, "/RegisterTransaction", "", registerRequest{TransactionID: 1, LockBudget: 10})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var regBody map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&regBody))
	assert.Equal(t, "OK", regBody["status"])

	lockResp := postJSON(t, ts, "/LockShared", "", lockRequest{TransactionID: 1, RowID: 7})
	defer lockResp.Body.Close()
	assert.Equal(t, http.StatusOK, lockResp.StatusCode)

	var lockBody map[string]any
	require.NoError(t, json.NewDecoder(lockResp.Body).Decode(&lockBody))
	assert.Equal(t, "OK", lockBody["status"])
	assert.NotEmpty(t, lockBody["signature"])
}

func TestLockSharedWithoutRegistrationIsCancelled(t *testing.T) {
	ts := newTestServer(t, "")

	resp := postJSON(t, ts, "/LockShared", "", lockRequest{TransactionID: 99, RowID: 1})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "CANCELLED", body["status"])
}

func TestUnlockAlwaysOK(t *testing.T) {
	ts := newTestServer(t, "")
	resp := postJSON(t, ts, "/Unlock", "", lockRequest{TransactionID: 1, RowID: 1})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAuthMiddleware_RejectsMissingSecret(t *testing.T) {
	ts := newTestServer(t, "topsecret")
	resp := postJSON(t, ts, "/RegisterTransaction", "", registerRequest{TransactionID: 1, LockBudget: 1})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAuthMiddleware_AcceptsCorrectSecret(t *testing.T) {
	ts := newTestServer(t, "topsecret")
	resp := postJSON(t, ts, "/RegisterTransaction", "topsecret", registerRequest{TransactionID: 1, LockBudget: 1})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
