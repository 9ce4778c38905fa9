package termhost

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"pkt.systems/pslog"
	"pkt.systems/termspace/schema"
)

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	var spawns atomic.Int64
	srv := &Server{
		registry: NewRegistry(fakeSpawner(&spawns), nil),
		token:    "test-token",
		log:      pslog.Ctx(context.Background()),
	}
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, ts
}

func doJSON(t *testing.T, ts *httptest.Server, method, path, token string, payload any) *http.Response {
	t.Helper()
	var body *bytes.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		body = bytes.NewReader(data)
	} else {
		body = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, ts.URL+path, body)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := ts.Client().Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	return resp
}

func TestServerRejectsBadToken(t *testing.T) {
	_, ts := newTestServer(t)
	for _, token := range []string{"", "wrong"} {
		resp := doJSON(t, ts, http.MethodGet, "/api/sessions", token, nil)
		resp.Body.Close()
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("token %q: status = %d, want 401", token, resp.StatusCode)
		}
	}
}

func TestServerAttachWriteScrollback(t *testing.T) {
	_, ts := newTestServer(t)

	resp := doJSON(t, ts, http.MethodPost, "/api/attach", "test-token", attachRequest{
		Key:  schema.TerminalKey{Workspace: "ws", Terminal: "term-1"},
		Cols: 80, Rows: 24,
	})
	var attached attachResponse
	if err := json.NewDecoder(resp.Body).Decode(&attached); err != nil {
		t.Fatalf("decode attach: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || !attached.IsNew {
		t.Fatalf("attach status=%d is_new=%v", resp.StatusCode, attached.IsNew)
	}

	writePath := "/api/sessions/" + string(attached.Session) + "/write"
	resp = doJSON(t, ts, http.MethodPost, writePath, "test-token", writeRequest{
		DataB64: base64.StdEncoding.EncodeToString([]byte("ls\r")),
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("write status = %d", resp.StatusCode)
	}

	resp = doJSON(t, ts, http.MethodGet, "/api/sessions/"+string(attached.Session)+"/scrollback", "test-token", nil)
	var sb scrollbackResponse
	if err := json.NewDecoder(resp.Body).Decode(&sb); err != nil {
		t.Fatalf("decode scrollback: %v", err)
	}
	resp.Body.Close()
	data, err := base64.StdEncoding.DecodeString(sb.ScrollbackB64)
	if err != nil {
		t.Fatalf("scrollback decode: %v", err)
	}
	if string(data) != "ls\r" {
		t.Fatalf("scrollback = %q", data)
	}
}

func TestServerCloseAndNotFound(t *testing.T) {
	_, ts := newTestServer(t)

	resp := doJSON(t, ts, http.MethodPost, "/api/attach", "test-token", attachRequest{
		Key: schema.TerminalKey{Workspace: "ws", Terminal: "term-1"},
	})
	var attached attachResponse
	if err := json.NewDecoder(resp.Body).Decode(&attached); err != nil {
		t.Fatalf("decode attach: %v", err)
	}
	resp.Body.Close()

	resp = doJSON(t, ts, http.MethodPost, "/api/sessions/"+string(attached.Session)+"/close", "test-token", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("close status = %d", resp.StatusCode)
	}

	resp = doJSON(t, ts, http.MethodPost, "/api/sessions/"+string(attached.Session)+"/close", "test-token", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("second close status = %d, want 404", resp.StatusCode)
	}
}

func TestServerAttachRequiresTerminal(t *testing.T) {
	_, ts := newTestServer(t)
	resp := doJSON(t, ts, http.MethodPost, "/api/attach", "test-token", attachRequest{})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestNewServerPreparesRuntimeDir(t *testing.T) {
	dir := t.TempDir()
	srv, err := NewServer(ServerConfig{Dir: dir, Shell: "/bin/sh"}, nil)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	if srv.Registry() == nil {
		t.Fatalf("expected registry")
	}
	paths := Paths{Dir: dir}
	token, err := paths.LoadToken()
	if err != nil {
		t.Fatalf("expected token file: %v", err)
	}
	if len(token) != 64 {
		t.Fatalf("expected 64-char token, got %d", len(token))
	}
}
