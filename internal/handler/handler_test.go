package handler

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/json"
	"encoding/pem"
	"io"
	"math/big"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"euicc-profile-service/internal/domain"
	"euicc-profile-service/internal/repository"
	"euicc-profile-service/internal/usecase"
	"euicc-profile-service/migrations"
)

const (
	testICCID  = "89010000000000000001"
	testICCID2 = "89010000000000000002"
	testKi     = "000102030405060708090A0B0C0D0E0F"
)

// mockCipher はテスト用のモック暗号化。
type mockCipher struct{}

func (mockCipher) Encrypt(ctx context.Context, plaintext []byte) ([]byte, error) {
	return append([]byte("sealed:"), plaintext...), nil
}

func (mockCipher) Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error) {
	return bytes.TrimPrefix(ciphertext, []byte("sealed:")), nil
}

type testServer struct {
	router   http.Handler
	profiles *ProfileHandler
	certs    *CertificateHandler
}

// setupServer はsqliteのインメモリDBに対する実サービスでルーターを組み立てる。
func setupServer(t *testing.T) *testServer {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	fsys, err := migrations.ForDriver("sqlite")
	if err != nil {
		t.Fatalf("failed to load migrations: %v", err)
	}
	if _, err := usecase.NewMigrationService(repository.NewMigrationRepository(db), db, fsys).ApplyMigrations(context.Background()); err != nil {
		t.Fatalf("failed to apply migrations: %v", err)
	}

	certRepo := repository.NewCertificateRepository(db)
	profileService := usecase.NewProfileService(repository.NewProfileRepository(db), certRepo, mockCipher{}, nil)
	certService := usecase.NewCertificateService(certRepo, nil)

	ph := NewProfileHandler(profileService, 1<<20)
	ch := NewCertificateHandler(certService)
	return &testServer{
		router:   NewRouter(ph, ch, RouterConfig{MetricsHandler: http.NotFoundHandler()}),
		profiles: ph,
		certs:    ch,
	}
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("failed to marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("failed to decode response: %v (body=%s)", err, rec.Body.String())
	}
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp map[string]interface{}
	decode(t, rec, &resp)
	code, _ := resp["code"].(string)
	return code
}

func createProfile(t *testing.T, s *testServer, iccid string) domain.Profile {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/profiles", map[string]string{"iccid": iccid, "ki": testKi})
	if rec.Code != http.StatusCreated {
		t.Fatalf("want status 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var p domain.Profile
	decode(t, rec, &p)
	return p
}

func TestRoot(t *testing.T) {
	s := setupServer(t)

	rec := s.do(t, http.MethodGet, "/api", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("want status 200, got %d", rec.Code)
	}
	var resp map[string]string
	decode(t, rec, &resp)
	if resp["version"] != APIVersion {
		t.Errorf("want version %s, got %v", APIVersion, resp["version"])
	}

	rec = s.do(t, http.MethodGet, "/healthz", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("want healthz 200, got %d", rec.Code)
	}
}

func TestCreateProfile_Success(t *testing.T) {
	s := setupServer(t)

	p := createProfile(t, s, testICCID)
	if p.ID == "" {
		t.Error("want id to be set")
	}
	if p.Name != "Profile 8901000000" {
		t.Errorf("want default name, got %q", p.Name)
	}
	if p.Status != domain.ProfileStatusDisabled || p.Standard != domain.DefaultStandard {
		t.Errorf("want defaults disabled/SGP.22, got %s/%s", p.Status, p.Standard)
	}
	if p.Ki != testKi {
		t.Errorf("want ki %s, got %s", testKi, p.Ki)
	}
}

func TestCreateProfile_ValidationFailed(t *testing.T) {
	s := setupServer(t)

	rec := s.do(t, http.MethodPost, "/api/profiles", map[string]string{"iccid": "123", "standard": "SGP.99"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("want status 400, got %d", rec.Code)
	}
	var resp struct {
		Code    string                   `json:"code"`
		Details []domain.ValidationError `json:"details"`
	}
	decode(t, rec, &resp)
	if resp.Code != CodeValidationFailed {
		t.Errorf("want code %s, got %s", CodeValidationFailed, resp.Code)
	}
	if len(resp.Details) != 2 {
		t.Errorf("want 2 field errors, got %v", resp.Details)
	}
}

func TestCreateProfile_Duplicate(t *testing.T) {
	s := setupServer(t)
	createProfile(t, s, testICCID)

	rec := s.do(t, http.MethodPost, "/api/profiles", map[string]string{"iccid": testICCID})
	if rec.Code != http.StatusConflict {
		t.Fatalf("want status 409, got %d", rec.Code)
	}
	if code := errorCode(t, rec); code != CodeProfileAlreadyExists {
		t.Errorf("want code %s, got %s", CodeProfileAlreadyExists, code)
	}
}

func TestCreateProfile_MalformedBody(t *testing.T) {
	s := setupServer(t)

	for _, body := range []string{"", "{", `{"iccid": "1"} {}`} {
		rec := s.do(t, http.MethodPost, "/api/profiles", body)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("body %q: want status 400, got %d", body, rec.Code)
			continue
		}
		if code := errorCode(t, rec); code != CodeMalformedPayload {
			t.Errorf("body %q: want code %s, got %s", body, CodeMalformedPayload, code)
		}
	}
}

func TestGetProfile_NotFound(t *testing.T) {
	s := setupServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/profiles/missing", nil)
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("profile_id", "missing")
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))

	rec := httptest.NewRecorder()
	s.profiles.GetProfile(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("want status 404, got %d", rec.Code)
	}
	if code := errorCode(t, rec); code != CodeProfileNotFound {
		t.Errorf("want code %s, got %s", CodeProfileNotFound, code)
	}
}

func TestProfileLifecycle(t *testing.T) {
	s := setupServer(t)
	p := createProfile(t, s, testICCID)

	rec := s.do(t, http.MethodPost, "/api/profiles/"+p.ID+"/enable", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("enable: want status 200, got %d", rec.Code)
	}
	var enabled domain.Profile
	decode(t, rec, &enabled)
	if enabled.Status != domain.ProfileStatusEnabled {
		t.Errorf("want enabled, got %s", enabled.Status)
	}

	rec = s.do(t, http.MethodPut, "/api/profiles/"+p.ID, map[string]string{"name": "Travel", "opc": ""})
	if rec.Code != http.StatusOK {
		t.Fatalf("update: want status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var updated domain.Profile
	decode(t, rec, &updated)
	if updated.Name != "Travel" || updated.Ki != testKi {
		t.Errorf("unexpected updated profile: %+v", updated)
	}

	rec = s.do(t, http.MethodPut, "/api/profiles/"+p.ID, map[string]string{"imsi": "12"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("update invalid imsi: want status 400, got %d", rec.Code)
	}

	rec = s.do(t, http.MethodGet, "/api/stats", nil)
	var stats domain.Stats
	decode(t, rec, &stats)
	if stats.TotalProfiles != 1 || stats.EnabledProfiles != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}

	rec = s.do(t, http.MethodPost, "/api/profiles/"+p.ID+"/disable", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("disable: want status 200, got %d", rec.Code)
	}

	rec = s.do(t, http.MethodDelete, "/api/profiles/"+p.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete: want status 200, got %d", rec.Code)
	}
	var msg MessageResponse
	decode(t, rec, &msg)
	if msg.Message != "Profile deleted successfully" {
		t.Errorf("unexpected message: %q", msg.Message)
	}

	rec = s.do(t, http.MethodDelete, "/api/profiles/"+p.ID, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("second delete: want status 404, got %d", rec.Code)
	}

	rec = s.do(t, http.MethodGet, "/api/profiles", nil)
	var list []domain.Profile
	decode(t, rec, &list)
	if len(list) != 0 {
		t.Errorf("want empty list, got %d", len(list))
	}
}

func TestScanProfiles(t *testing.T) {
	s := setupServer(t)

	text := "Profile A\nICCID: " + testICCID + "\nKi: " + testKi + "\n\nICCID: 123\n"
	rec := s.do(t, http.MethodPost, "/api/profiles/scan", ScanRequest{Text: text})
	if rec.Code != http.StatusOK {
		t.Fatalf("want status 200, got %d", rec.Code)
	}
	var resp ScanResponse
	decode(t, rec, &resp)
	if resp.ProfilesFound != 2 || len(resp.Profiles) != 2 {
		t.Fatalf("want 2 drafts, got %+v", resp)
	}
	if !resp.Profiles[0].Valid() || resp.Profiles[1].Valid() {
		t.Errorf("want first valid and second invalid: %+v", resp.Profiles)
	}

	// スキャンは保存しない
	rec = s.do(t, http.MethodGet, "/api/profiles", nil)
	var list []domain.Profile
	decode(t, rec, &list)
	if len(list) != 0 {
		t.Errorf("scan must not persist, got %d profiles", len(list))
	}
}

func TestImportJSON(t *testing.T) {
	s := setupServer(t)
	createProfile(t, s, testICCID)

	body := `{"profiles": [
		{"iccid": "` + testICCID + `"},
		{"iccid": "` + testICCID2 + `", "name": "B"},
		{"iccid": "` + testICCID2 + `"},
		{"iccid": "bad"}
	]}`
	rec := s.do(t, http.MethodPost, "/api/profiles/import/json", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("want status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var result domain.ImportResult
	decode(t, rec, &result)
	if result.ImportedCount != 1 || result.SkippedCount != 3 {
		t.Fatalf("unexpected result: %+v", result)
	}
	reasons := []domain.SkipReason{domain.SkipReasonDuplicate, domain.SkipReasonDuplicate, domain.SkipReasonInvalid}
	for i, want := range reasons {
		if result.Skipped[i].Reason != want {
			t.Errorf("skipped[%d]: want %s, got %s", i, want, result.Skipped[i].Reason)
		}
	}
}

func TestImportText_Malformed(t *testing.T) {
	s := setupServer(t)

	rec := s.do(t, http.MethodPost, "/api/profiles/import/text", `{"items": []}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("want status 400, got %d", rec.Code)
	}
	if code := errorCode(t, rec); code != CodeMalformedPayload {
		t.Errorf("want code %s, got %s", CodeMalformedPayload, code)
	}
}

func newCSVRequest(t *testing.T, field, content string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(field, "profiles.csv")
	if err != nil {
		t.Fatalf("failed to create form file: %v", err)
	}
	if _, err := fw.Write([]byte(content)); err != nil {
		t.Fatalf("failed to write form file: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("failed to close multipart writer: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/profiles/import/csv", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestImportCSV(t *testing.T) {
	s := setupServer(t)

	csv := "iccid,name,ki\n" + testICCID + ",A," + testKi + "\n" + testICCID2 + ",B,\n"
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, newCSVRequest(t, "file", csv))
	if rec.Code != http.StatusOK {
		t.Fatalf("want status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var result domain.ImportResult
	decode(t, rec, &result)
	if result.ImportedCount != 2 || len(result.ImportedIDs) != 2 {
		t.Errorf("unexpected result: %+v", result)
	}

	rec = httptest.NewRecorder()
	s.router.ServeHTTP(rec, newCSVRequest(t, "upload", csv))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing file field: want status 400, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	s.router.ServeHTTP(rec, newCSVRequest(t, "file", "name,imsi\nA,123456\n"))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing iccid column: want status 400, got %d", rec.Code)
	}
}

func testCertificatePEM(t *testing.T) string {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(0xabcdef),
		Subject:      pkix.Name{CommonName: "Test CI"},
		NotBefore:    time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		NotAfter:     time.Date(2034, 1, 1, 0, 0, 0, 0, time.UTC),
		SubjectKeyId: []byte{0x01, 0x02},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("failed to create certificate: %v", err)
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}))
}

func TestParseCertificate(t *testing.T) {
	s := setupServer(t)

	rec := s.do(t, http.MethodPost, "/api/certificates/parse", ParseCertificateRequest{PEMData: testCertificatePEM(t)})
	if rec.Code != http.StatusOK {
		t.Fatalf("want status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var info domain.CertificateInfo
	decode(t, rec, &info)
	if info.Subject != "CN=Test CI" || info.SerialNumber != "abcdef" || info.KeyID != "01:02" {
		t.Errorf("unexpected info: %+v", info)
	}

	tests := []struct {
		name string
		pem  string
		code string
	}{
		{"empty", "", CodeInvalidPem},
		{"no armor", "hello", CodeInvalidPem},
		{"bad der", "-----BEGIN CERTIFICATE-----\nMAMCAQE=\n-----END CERTIFICATE-----\n", CodeMalformedCertificate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, http.MethodPost, "/api/certificates/parse", ParseCertificateRequest{PEMData: tt.pem})
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("want status 400, got %d", rec.Code)
			}
			if code := errorCode(t, rec); code != tt.code {
				t.Errorf("want code %s, got %s", tt.code, code)
			}
		})
	}
}

func TestCertificateLifecycle(t *testing.T) {
	s := setupServer(t)

	rec := s.do(t, http.MethodPost, "/api/certificates", CreateCertificateRequest{
		Name:     "GSMA CI",
		Standard: "SGP.22",
		PEMData:  testCertificatePEM(t),
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: want status 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var cert domain.Certificate
	decode(t, rec, &cert)
	if cert.ID == "" || cert.Subject != "CN=Test CI" || cert.NotAfter.Year() != 2034 {
		t.Errorf("unexpected certificate: %+v", cert)
	}

	rec = s.do(t, http.MethodGet, "/api/certificates/"+cert.ID, nil)
	if rec.Code != http.StatusOK {
		t.Errorf("get: want status 200, got %d", rec.Code)
	}

	rec = s.do(t, http.MethodGet, "/api/stats", nil)
	var stats domain.Stats
	decode(t, rec, &stats)
	if stats.TotalCertificates != 1 {
		t.Errorf("want 1 certificate in stats, got %d", stats.TotalCertificates)
	}

	rec = s.do(t, http.MethodDelete, "/api/certificates/"+cert.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete: want status 200, got %d", rec.Code)
	}
	rec = s.do(t, http.MethodGet, "/api/certificates/"+cert.ID, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("get after delete: want status 404, got %d", rec.Code)
	}
}

func TestCreateCertificate_Validation(t *testing.T) {
	s := setupServer(t)

	rec := s.do(t, http.MethodPost, "/api/certificates", CreateCertificateRequest{Standard: "SGP.99"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("want status 400, got %d", rec.Code)
	}
	if code := errorCode(t, rec); code != CodeValidationFailed {
		t.Errorf("want code %s, got %s", CodeValidationFailed, code)
	}

	rec = s.do(t, http.MethodPost, "/api/certificates", CreateCertificateRequest{
		Name:      "CI",
		NotBefore: "yesterday",
		PEMData:   testCertificatePEM(t),
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad time: want status 400, got %d", rec.Code)
	}
}

func TestBodyLimit(t *testing.T) {
	s := setupServer(t)

	ph := s.profiles
	router := NewRouter(ph, s.certs, RouterConfig{MaxBodyBytes: 16, MetricsHandler: http.NotFoundHandler()})
	req := httptest.NewRequest(http.MethodPost, "/api/profiles/scan", strings.NewReader(`{"text": "`+strings.Repeat("x", 64)+`"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("want status 413, got %d", rec.Code)
	}
}
