package main

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/json"
	"encoding/pem"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// runCLI はルートコマンドを実行し、標準出力とエラーを返す。
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("EUICCCTL_API_URL", "")

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

func TestVersion(t *testing.T) {
	out, err := runCLI(t, "version")
	if err != nil {
		t.Fatalf("version failed: %v", err)
	}
	if !strings.Contains(out, version) {
		t.Errorf("want version in output, got %q", out)
	}
}

func TestInvalidOutputFormat(t *testing.T) {
	if _, err := runCLI(t, "--output", "xml", "version"); err == nil {
		t.Error("expected error for unsupported output format")
	}
}

func TestProfilesList(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/api/profiles" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"id":"p-1","name":"Travel","iccid":"89010000000000000001","status":"enabled","standard":"SGP.22"}]`))
	}))
	defer srv.Close()

	out, err := runCLI(t, "--api-url", srv.URL, "profiles", "list")
	if err != nil {
		t.Fatalf("profiles list failed: %v", err)
	}
	for _, want := range []string{"ID", "p-1", "Travel", "enabled"} {
		if !strings.Contains(out, want) {
			t.Errorf("want %q in output:\n%s", want, out)
		}
	}

	out, err = runCLI(t, "--api-url", srv.URL, "--output", "yaml", "profiles", "list")
	if err != nil {
		t.Fatalf("profiles list yaml failed: %v", err)
	}
	if !strings.Contains(out, "iccid: \"89010000000000000001\"") {
		t.Errorf("unexpected yaml output:\n%s", out)
	}
}

func TestProfilesGet_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"code":"PROFILE_NOT_FOUND","message":"profile not found"}`))
	}))
	defer srv.Close()

	_, err := runCLI(t, "--api-url", srv.URL, "profiles", "get", "missing")
	if err == nil || !strings.Contains(err.Error(), "profile not found") {
		t.Errorf("want not found error, got %v", err)
	}
}

func TestProfilesEnable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/profiles/p-1/enable" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		w.Write([]byte(`{"id":"p-1","iccid":"89010000000000000001","status":"enabled"}`))
	}))
	defer srv.Close()

	out, err := runCLI(t, "--api-url", srv.URL, "profiles", "enable", "p-1")
	if err != nil {
		t.Fatalf("enable failed: %v", err)
	}
	if !strings.Contains(out, "is now enabled") {
		t.Errorf("unexpected output: %q", out)
	}
}

func TestMissingAPIURL(t *testing.T) {
	_, err := runCLI(t, "stats")
	if err == nil || !strings.Contains(err.Error(), "--api-url") {
		t.Errorf("want api-url error, got %v", err)
	}
}

func TestScanLocal(t *testing.T) {
	path := writeFile(t, "notes.txt", "ICCID: 89010000000000000001\nKi: 000102030405060708090a0b0c0d0e0f\n\nICCID: 12\n")

	out, err := runCLI(t, "scan", "--local", "--file", path)
	if err != nil {
		t.Fatalf("scan failed: %v", err)
	}
	if !strings.Contains(out, "Profiles found: 2") {
		t.Errorf("unexpected output:\n%s", out)
	}
	// 鍵は伏せて表示する
	if strings.Contains(out, "000102030405060708090A0B0C0D0E0F") {
		t.Errorf("key must be masked in text output:\n%s", out)
	}

	out, err = runCLI(t, "--output", "json", "scan", "--local", "--file", path)
	if err != nil {
		t.Fatalf("scan json failed: %v", err)
	}
	var resp scanResponse
	if err := json.Unmarshal([]byte(out), &resp); err != nil {
		t.Fatalf("invalid json output: %v", err)
	}
	if resp.ProfilesFound != 2 || resp.Profiles[1].Valid() {
		t.Errorf("unexpected scan result: %+v", resp)
	}
}

func TestImportText(t *testing.T) {
	var imported map[string][]map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/profiles/scan":
			w.Write([]byte(`{"profiles_found":1,"profiles":[{"iccid":"89010000000000000001"}]}`))
		case "/api/profiles/import/text":
			if err := json.NewDecoder(r.Body).Decode(&imported); err != nil {
				t.Errorf("invalid import body: %v", err)
			}
			w.Write([]byte(`{"imported_count":1,"skipped_count":0,"failed_count":0,"imported_ids":["p-1"],"skipped":[]}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	path := writeFile(t, "notes.txt", "ICCID: 89010000000000000001\n")
	out, err := runCLI(t, "--api-url", srv.URL, "import", "text", "--file", path)
	if err != nil {
		t.Fatalf("import text failed: %v", err)
	}
	if !strings.Contains(out, "Imported: 1, skipped: 0, failed: 0") {
		t.Errorf("unexpected output: %q", out)
	}
	if len(imported["profiles"]) != 1 {
		t.Errorf("want scanned drafts forwarded, got %v", imported)
	}
}

func TestImportCSV(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Errorf("missing file field: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		defer file.Close()
		data, _ := io.ReadAll(file)
		if header.Filename != "profiles.csv" || !strings.HasPrefix(string(data), "iccid") {
			t.Errorf("unexpected upload %s: %q", header.Filename, data)
		}
		w.Write([]byte(`{"imported_count":0,"skipped_count":1,"failed_count":0,"imported_ids":[],
			"skipped":[{"iccid":"12","reason":"invalid","errors":[{"field":"iccid","code":"INVALID_FORMAT","message":"invalid format: ICCID must be 19 or 20 digits"}]}]}`))
	}))
	defer srv.Close()

	path := writeFile(t, "profiles.csv", "iccid\n12\n")
	out, err := runCLI(t, "--api-url", srv.URL, "import", "csv", "--file", path)
	if err != nil {
		t.Fatalf("import csv failed: %v", err)
	}
	if !strings.Contains(out, "skipped 12 (invalid): invalid format") {
		t.Errorf("unexpected output: %q", out)
	}
}

func TestCertInspect(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(42),
		Subject:      pkix.Name{CommonName: "CLI CI"},
		NotBefore:    time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		NotAfter:     time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("failed to create certificate: %v", err)
	}
	path := writeFile(t, "ci.pem", string(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})))

	out, err := runCLI(t, "cert", "inspect", "--file", path)
	if err != nil {
		t.Fatalf("cert inspect failed: %v", err)
	}
	for _, want := range []string{"CN=CLI CI", "2a", "ECDSA-SHA256"} {
		if !strings.Contains(out, want) {
			t.Errorf("want %q in output:\n%s", want, out)
		}
	}

	bad := writeFile(t, "bad.pem", "not a certificate")
	if _, err := runCLI(t, "cert", "inspect", "--file", bad); err == nil {
		t.Error("expected error for invalid PEM")
	}
}

func TestMigrate(t *testing.T) {
	t.Setenv("DATABASE_DRIVER", "sqlite")
	t.Setenv("DATABASE_URL", filepath.Join(t.TempDir(), "euicc.db"))

	out, err := runCLI(t, "migrate", "up")
	if err != nil {
		t.Fatalf("migrate up failed: %v", err)
	}
	if !strings.Contains(out, "Applied 2 migration(s)") {
		t.Errorf("unexpected output: %q", out)
	}

	out, err = runCLI(t, "migrate", "up")
	if err != nil {
		t.Fatalf("second migrate up failed: %v", err)
	}
	if !strings.Contains(out, "No pending migrations.") {
		t.Errorf("unexpected output: %q", out)
	}

	out, err = runCLI(t, "migrate", "status")
	if err != nil {
		t.Fatalf("migrate status failed: %v", err)
	}
	if strings.Count(out, "applied") != 2 {
		t.Errorf("want 2 applied migrations:\n%s", out)
	}
}
