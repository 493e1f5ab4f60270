package main

import (
	"bytes"
	"encoding/json"
	"image"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/gin-gonic/gin"

	"prodtally/pkg/ocr"
	"prodtally/pkg/store"
)

// fakeEngine replaces Tesseract so the full pipeline runs without a native
// OCR install. It returns the same canned sheet for every image.
type fakeEngine struct {
	text  string
	words []ocr.RecognizedWord
}

func (f *fakeEngine) Recognize(imagePath string) (*ocr.Result, error) {
	return &ocr.Result{FullText: f.text, Words: f.words}, nil
}

// helper to perform requests with auth token
func performRequest(r http.Handler, method, path string, body io.Reader, token string, contentType string) *httptest.ResponseRecorder {
	// allow callers to pass nil for body safely
	req, _ := http.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func setupTestServer(t *testing.T) *gin.Engine {
	// integration tests are opt-in. Set DB_DSN_TEST=1 and DB_DSN to run them.
	if os.Getenv("DB_DSN_TEST") != "1" {
		t.Skip("integration tests are disabled; set DB_DSN_TEST=1 to enable")
	}
	gin.SetMode(gin.TestMode)
	jwtSecret = []byte("integration-test-secret")
	tmp := t.TempDir()
	_ = os.Setenv("UPLOAD_BASE", tmp)
	initDB()
	seedDB()
	recordStore = store.New(db)
	startDigitizePipeline(&fakeEngine{
		text: "01/07/2025\nTURNO 1 1OO 120 8O\nTURNO 2 90 110\n",
	})
	r := gin.Default()
	setupRoutes(r)
	return r
}

// sheetPNG produces a small decodable image so preprocessing succeeds.
func sheetPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 40, 30))
	buf := &bytes.Buffer{}
	if err := png.Encode(buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func mustLogin(t *testing.T, r http.Handler, username, password string) string {
	t.Helper()
	body, _ := json.Marshal(map[string]string{"username": username, "password": password})
	resp := performRequest(r, http.MethodPost, "/login", bytes.NewBuffer(body), "", "application/json")
	if resp.Code != 200 {
		t.Fatalf("login failed status=%d body=%s", resp.Code, resp.Body.String())
	}
	var loginResp map[string]any
	_ = json.Unmarshal(resp.Body.Bytes(), &loginResp)
	token, _ := loginResp["token"].(string)
	if token == "" {
		t.Fatalf("empty token in login response: %+v", loginResp)
	}
	return token
}

func TestFullFlow(t *testing.T) {
	r := setupTestServer(t)

	// 1. Register reviewer
	regBody, _ := json.Marshal(map[string]string{"username": "reviewer1", "password": "pass1234"})
	resp := performRequest(r, http.MethodPost, "/register", bytes.NewBuffer(regBody), "", "application/json")
	if resp.Code != 200 && resp.Code != 409 {
		t.Fatalf("register failed status=%d body=%s", resp.Code, resp.Body.String())
	}
	token := mustLogin(t, r, "reviewer1", "pass1234")

	// 2. Unauthorized digitize should be 401
	unauth := performRequest(r, http.MethodPost, "/ocr/digitize", nil, "", "")
	if unauth.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for unauthorized digitize got %d", unauth.Code)
	}

	// 3. Digitize a photo (multipart)
	buf := &bytes.Buffer{}
	mw := multipart.NewWriter(buf)
	w, _ := mw.CreateFormFile("file", "sheet.png")
	_, _ = w.Write(sheetPNG(t))
	_ = mw.Close()
	resp = performRequest(r, http.MethodPost, "/ocr/digitize", buf, token, mw.FormDataContentType())
	if resp.Code != 200 {
		t.Fatalf("digitize failed status=%d body=%s", resp.Code, resp.Body.String())
	}
	var digResp struct {
		Session struct {
			ID     string `json:"id"`
			Blocks []struct {
				ID     string `json:"id"`
				Date   string `json:"date"`
				Shifts []struct {
					Name   string `json:"name"`
					Values []struct {
						Raw string `json:"raw"`
					} `json:"values"`
				} `json:"shifts"`
			} `json:"blocks"`
		} `json:"session"`
		UploadID uint `json:"upload_id"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &digResp); err != nil {
		t.Fatalf("decode digitize response: %v", err)
	}
	if digResp.Session.ID == "" || len(digResp.Session.Blocks) != 1 {
		t.Fatalf("unexpected session shape: %s", resp.Body.String())
	}
	blk := digResp.Session.Blocks[0]
	if blk.Date != "2025-07-01" {
		t.Fatalf("expected parsed date 2025-07-01, got %q", blk.Date)
	}
	if len(blk.Shifts) != 2 {
		t.Fatalf("expected 2 shifts, got %d", len(blk.Shifts))
	}
	// misread digits on the shift row were corrected
	if got := blk.Shifts[0].Values[0].Raw; got != "100" {
		t.Fatalf("expected corrected value 100, got %q", got)
	}

	sid := digResp.Session.ID

	// 4. Fix a value through the editor, then commit
	upd, _ := json.Marshal(map[string]string{"raw": "85"})
	resp = performRequest(r, http.MethodPut, "/sessions/"+sid+"/blocks/"+blk.ID+"/shifts/0/values/2", bytes.NewBuffer(upd), token, "application/json")
	if resp.Code != 200 {
		t.Fatalf("update value failed status=%d body=%s", resp.Code, resp.Body.String())
	}
	resp = performRequest(r, http.MethodPost, "/sessions/"+sid+"/commit", nil, token, "")
	if resp.Code != 200 {
		t.Fatalf("commit failed status=%d body=%s", resp.Code, resp.Body.String())
	}

	// committed session is gone
	resp = performRequest(r, http.MethodGet, "/sessions/"+sid, nil, token, "")
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for committed session, got %d", resp.Code)
	}

	// 5. List persisted records
	resp = performRequest(r, http.MethodGet, "/producao?from=2025-07-01&to=2025-07-01", nil, token, "")
	if resp.Code != 200 {
		t.Fatalf("list producao failed status=%d body=%s", resp.Code, resp.Body.String())
	}
	var records []map[string]any
	_ = json.Unmarshal(resp.Body.Bytes(), &records)
	if len(records) != 5 {
		t.Fatalf("expected 5 records, got %d: %s", len(records), resp.Body.String())
	}

	// 6. Edit existing records without re-running OCR
	editBody, _ := json.Marshal(map[string]any{"date": "2025-07-01"})
	resp = performRequest(r, http.MethodPost, "/sessions/edit_existing", bytes.NewBuffer(editBody), token, "application/json")
	if resp.Code != 200 {
		t.Fatalf("edit_existing failed status=%d body=%s", resp.Code, resp.Body.String())
	}
	var editResp struct {
		Session struct {
			ID     string `json:"id"`
			Blocks []struct {
				Shifts []struct {
					Values []struct {
						Raw string `json:"raw"`
					} `json:"values"`
				} `json:"shifts"`
			} `json:"blocks"`
		} `json:"session"`
	}
	_ = json.Unmarshal(resp.Body.Bytes(), &editResp)
	if len(editResp.Session.Blocks) != 1 {
		t.Fatalf("unexpected edit session shape: %s", resp.Body.String())
	}
	if got := editResp.Session.Blocks[0].Shifts[0].Values[2].Raw; got != "85" {
		t.Fatalf("expected manual fix 85 to round-trip, got %q", got)
	}

	// 7. Re-commit is idempotent (same keys, upsert)
	resp = performRequest(r, http.MethodPost, "/sessions/"+editResp.Session.ID+"/commit", nil, token, "")
	if resp.Code != 200 {
		t.Fatalf("re-commit failed status=%d body=%s", resp.Code, resp.Body.String())
	}
	resp = performRequest(r, http.MethodGet, "/producao?from=2025-07-01&to=2025-07-01", nil, token, "")
	_ = json.Unmarshal(resp.Body.Bytes(), &records)
	if len(records) != 5 {
		t.Fatalf("expected 5 records after re-commit, got %d", len(records))
	}

	// 8. Non-admin cannot delete a date
	resp = performRequest(r, http.MethodDelete, "/producao/2025-07-01", nil, token, "")
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-admin delete, got %d", resp.Code)
	}

	// 9. Admin delete clears the date
	adminToken := mustLogin(t, r, "admin", "admin123")
	resp = performRequest(r, http.MethodDelete, "/producao/2025-07-01?lab_id=1", nil, adminToken, "")
	if resp.Code != 200 {
		t.Fatalf("admin delete failed status=%d body=%s", resp.Code, resp.Body.String())
	}
}

func TestDigitizeRejectsUnreadableSheet(t *testing.T) {
	if os.Getenv("DB_DSN_TEST") != "1" {
		t.Skip("integration tests are disabled; set DB_DSN_TEST=1 to enable")
	}
	gin.SetMode(gin.TestMode)
	jwtSecret = []byte("integration-test-secret")
	tmp := t.TempDir()
	_ = os.Setenv("UPLOAD_BASE", tmp)
	initDB()
	seedDB()
	recordStore = store.New(db)
	startDigitizePipeline(&fakeEngine{text: "completely unrelated scribbles\n"})
	r := gin.Default()
	setupRoutes(r)

	token := mustLogin(t, r, "admin", "admin123")
	buf := &bytes.Buffer{}
	mw := multipart.NewWriter(buf)
	w, _ := mw.CreateFormFile("file", "noise.png")
	_, _ = w.Write(sheetPNG(t))
	_ = mw.Close()
	resp := performRequest(r, http.MethodPost, "/ocr/digitize", buf, token, mw.FormDataContentType())
	if resp.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for unreadable sheet, got %d body=%s", resp.Code, resp.Body.String())
	}
}

func TestMigrateCommand(t *testing.T) {
	if os.Getenv("DB_DSN_TEST") != "1" {
		t.Skip("integration tests are disabled; set DB_DSN_TEST=1 to enable")
	}
	initDB()
}
