package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/alert/alert/internal/config"
	"github.com/alert/alert/internal/platform/websocket"
)

func TestParseFieldFlags(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		want    []fieldOverride
		wantErr bool
	}{
		{"empty", nil, []fieldOverride{}, false},
		{"simple", []string{"renal=true"}, []fieldOverride{{"renal", "true"}}, false},
		{"value with equals", []string{"pt_name=A=B"}, []fieldOverride{{"pt_name", "A=B"}}, false},
		{"empty value", []string{"pt_ward="}, []fieldOverride{{"pt_ward", ""}}, false},
		{"order kept", []string{"pt_age=80", "pt_age=90"}, []fieldOverride{{"pt_age", "80"}, {"pt_age", "90"}}, false},
		{"missing equals", []string{"renal"}, nil, true},
		{"missing name", []string{"=true"}, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseFieldFlags(tt.args)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("expected %d overrides, got %d", len(tt.want), len(got))
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("override %d: expected %+v, got %+v", i, tt.want[i], got[i])
				}
			}
		})
	}
}

func runCLI(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestAddsCmd(t *testing.T) {
	out, err := runCLI(t, "", "adds",
		"--rr", "32", "--spo2", "90", "--o2", "RA", "--sbp", "110", "--hr", "120", "--temp", "37", "--avpu", "A")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "Total  5") {
		t.Errorf("expected total 5, got:\n%s", out)
	}
	if strings.Contains(out, "MET criteria") {
		t.Errorf("did not expect MET criteria, got:\n%s", out)
	}
}

func TestAddsCmd_BadO2Mode(t *testing.T) {
	if _, err := runCLI(t, "", "adds", "--o2-mode", "mask"); err == nil {
		t.Fatal("expected error for unknown oxygen mode")
	}
}

func TestEvaluate_FieldsOnly(t *testing.T) {
	v, err := evaluate(context.Background(), "", "post", []fieldOverride{
		{"pt_name", "Jane Doe"},
		{"pt_age", "90"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.CategoryLabel != "CAT 2" {
		t.Errorf("expected CAT 2, got %s", v.CategoryLabel)
	}
	found := false
	for _, f := range v.Amber {
		if f.Text == "Age 90 (frailty risk)" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected age finding, got %+v", v.Amber)
	}
	if !strings.Contains(v.Report, "Jane Doe") {
		t.Errorf("expected patient name in report, got:\n%s", v.Report)
	}
}

func TestEvaluate_UnknownField(t *testing.T) {
	_, err := evaluate(context.Background(), "", "post", []fieldOverride{{"nonsense", "1"}})
	if err == nil || !strings.Contains(err.Error(), "nonsense") {
		t.Errorf("expected unknown field error, got %v", err)
	}
}

func TestEvaluateCmd_Stdin(t *testing.T) {
	out, err := runCLI(t, "\n", "evaluate", "--file", "-", "--field", "pt_age=90")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(out, "Category: CAT 2\n") {
		t.Errorf("unexpected output:\n%s", out)
	}
	if !strings.Contains(out, "  - Age 90 (frailty risk)") {
		t.Errorf("expected amber finding listed, got:\n%s", out)
	}
}

func TestReadNote_MissingFile(t *testing.T) {
	if _, err := readNote("/nonexistent/note.txt", nil); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func testConfig(mode string) *config.Config {
	return &config.Config{
		Env:                 "development",
		AuthMode:            mode,
		AuthSigningKey:      "test-secret",
		SnapshotBackend:     "memory",
		RecomputeDebounceMS: 350,
		CORSOrigins:         []string{"*"},
		RateLimitRPS:        50,
		RateLimitBurst:      100,
		RequestTimeout:      5 * time.Second,
		BodyLimit:           "1M",
		Timezone:            "UTC",
	}
}

func newTestServer(t *testing.T, mode string) http.Handler {
	t.Helper()
	cfg := testConfig(mode)
	logger := zerolog.Nop()
	backend, err := openBackend(context.Background(), cfg, logger)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	svc := newReviewService(cfg, backend.store, logger)
	t.Cleanup(svc.Close)
	return newServer(cfg, logger, svc, websocket.NewHub(logger), backend)
}

func TestServer_Routes(t *testing.T) {
	tests := []struct {
		name string
		mode string
		path string
		code int
	}{
		{"health", "development", "/health", http.StatusOK},
		{"store health", "development", "/health/db", http.StatusOK},
		{"metrics", "development", "/metrics", http.StatusOK},
		{"list reviews dev", "development", "/api/v1/reviews", http.StatusOK},
		{"list reviews no token", "external", "/api/v1/reviews", http.StatusUnauthorized},
		{"health is public", "external", "/health", http.StatusOK},
		{"unknown path", "development", "/nope", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, tt.mode)
			rec := httptest.NewRecorder()
			srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
			if rec.Code != tt.code {
				t.Errorf("expected %d, got %d: %s", tt.code, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestServer_RequestIDEchoed(t *testing.T) {
	srv := newTestServer(t, "development")
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	srv.ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-ID"); got != "abc-123" {
		t.Errorf("expected request id echoed, got %q", got)
	}
}

func TestNewLogger_Level(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&config.Config{Env: "production", LogLevel: "warn"}, &buf)
	logger.Info().Msg("hidden")
	logger.Warn().Msg("shown")
	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), "shown") {
		t.Errorf("unexpected log output %q", buf.String())
	}
}

func TestPrintMigrationStatus(t *testing.T) {
	var buf bytes.Buffer
	printMigrationStatus(&buf, "public", nil)
	if !strings.HasPrefix(buf.String(), "Migration status for schema: public\n") {
		t.Errorf("unexpected output %q", buf.String())
	}
}
