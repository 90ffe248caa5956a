package e2e

import (
	"bytes"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"testing"
	"time"
)

const adminToken = "e2e-admin-token"

// TestHarness manages a discoursa subprocess and provides HTTP helpers.
type TestHarness struct {
	BaseURL string
	DataDir string
	DBPath  string

	cmd    *exec.Cmd
	client *http.Client
	port   int
}

// NewHarness builds a config, starts discoursa serve, and waits for health.
func NewHarness(t *testing.T) *TestHarness {
	t.Helper()

	// Find free port
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("finding free port: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	// Data directory (manual cleanup — t.TempDir() would delete files when
	// the first test finishes, breaking shared DBAssert across tests)
	dataDir, err := os.MkdirTemp("", "discoursa-e2e-*")
	if err != nil {
		t.Fatalf("creating temp dir: %v", err)
	}
	dbPath := filepath.Join(dataDir, "discoursa.db")

	// Fresh encryption key per run
	keyBytes := make([]byte, 32)
	if _, err := rand.Read(keyBytes); err != nil {
		t.Fatalf("generating encryption key: %v", err)
	}
	encKey := base64.StdEncoding.EncodeToString(keyBytes)

	geminiKey := os.Getenv("GEMINI_API_KEY")

	config := fmt.Sprintf(`[server]
addr = ":%d"

[database]
path = %q

[auth]
jwt_secret = "e2e-test-secret-key-discoursa"
token_expiry_min = 60
admin_token = %q

[encryption]
key = %q

[platform]
base_url = "http://127.0.0.1:1"
bearer_token = "e2e-bearer"
bot_user_id = "e2e-bot"
bot_handle = "discoursa"
page_size = 50

[bot]
trigger_phrase = "debate this"
poll_interval_sec = 3600
rate_limit = 5
rate_window_min = 60
link_url = "http://127.0.0.1/link"

[llm]
gemini_api_key = %q
`, port, dbPath, adminToken, encKey, geminiKey)

	configPath := filepath.Join(dataDir, "config.toml")
	if err := os.WriteFile(configPath, []byte(config), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	// Locate binary using absolute path
	wd, _ := os.Getwd()
	binary, _ := filepath.Abs(filepath.Join(wd, "..", "discoursa"))
	if _, err := os.Stat(binary); os.IsNotExist(err) {
		t.Fatalf("binary not found at %s — run: CGO_ENABLED=0 go build -o discoursa .", binary)
	}

	parentDir, _ := filepath.Abs(filepath.Join(wd, ".."))
	cmd := exec.Command(binary, "serve", "--config", configPath)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Dir = parentDir

	if err := cmd.Start(); err != nil {
		t.Fatalf("starting discoursa: %v", err)
	}

	h := &TestHarness{
		BaseURL: fmt.Sprintf("http://127.0.0.1:%d", port),
		DataDir: dataDir,
		DBPath:  dbPath,
		cmd:     cmd,
		port:    port,
		client:  &http.Client{Timeout: 30 * time.Second},
	}

	// Health check
	deadline := time.Now().Add(15 * time.Second)
	backoff := 100 * time.Millisecond
	for time.Now().Before(deadline) {
		resp, err := h.client.Get(h.BaseURL + "/api/healthz")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				t.Logf("discoursa ready on port %d", port)
				return h
			}
		}
		time.Sleep(backoff)
		if backoff < 2*time.Second {
			backoff = backoff * 3 / 2
		}
	}

	h.Stop()
	t.Fatalf("discoursa did not become ready within 15s on port %d", port)
	return nil
}

// Stop sends SIGTERM, waits 5s, then SIGKILL. Cleans up the data directory.
func (h *TestHarness) Stop() {
	if h.cmd == nil || h.cmd.Process == nil {
		return
	}
	h.cmd.Process.Signal(syscall.SIGTERM)

	done := make(chan error, 1)
	go func() { done <- h.cmd.Wait() }()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		h.cmd.Process.Kill()
		<-done
	}

	if h.DataDir != "" {
		os.RemoveAll(h.DataDir)
	}
}

// Do executes an HTTP request and returns the response.
func (h *TestHarness) Do(method, path string, body interface{}, token string) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshaling body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, h.BaseURL+path, bodyReader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	return h.client.Do(req)
}

// JSON executes a request and decodes the JSON response into dst.
func (h *TestHarness) JSON(method, path string, body interface{}, token string, dst interface{}) (*http.Response, error) {
	resp, err := h.Do(method, path, body, token)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp, fmt.Errorf("reading body: %w", err)
	}

	// Reset body so caller can inspect status
	resp.Body = io.NopCloser(bytes.NewReader(data))

	if dst != nil && len(data) > 0 {
		if err := json.Unmarshal(data, dst); err != nil {
			return resp, fmt.Errorf("decoding JSON (status %d, body: %s): %w", resp.StatusCode, truncate(string(data), 500), err)
		}
	}

	return resp, nil
}

// LinkToken mints a link token through the admin-guarded endpoint.
func (h *TestHarness) LinkToken(t *testing.T, userID, handle string) string {
	t.Helper()
	var result struct {
		Token string `json:"token"`
	}
	req, err := http.NewRequest(http.MethodPost, h.BaseURL+"/api/user/link-token",
		bytes.NewReader([]byte(fmt.Sprintf(`{"user_id": %q, "handle": %q}`, userID, handle))))
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Admin-Token", adminToken)
	resp, err := h.client.Do(req)
	if err != nil {
		t.Fatalf("link token for %s: %v", userID, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("link token for %s: expected 200, got %d: %s", userID, resp.StatusCode, truncate(string(body), 500))
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("decoding link token: %v", err)
	}
	return result.Token
}

// LinkUser runs the full onboarding flow: mint a token, submit a credential.
func (h *TestHarness) LinkUser(t *testing.T, userID, handle, apiKey string) {
	t.Helper()
	token := h.LinkToken(t, userID, handle)
	resp, err := h.JSON("POST", "/api/user/config", map[string]string{"api_key": apiKey}, token, nil)
	if err != nil {
		t.Fatalf("submitting credential for %s: %v", userID, err)
	}
	RequireStatus(t, resp, http.StatusOK)
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

// RequireStatus asserts the HTTP status code matches expected.
func RequireStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("expected status %d, got %d: %s", expected, resp.StatusCode, truncate(string(body), 500))
	}
}
