package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"
)

func TestRouterSetsRequestID(t *testing.T) {
	app := newTestApp(t, "", nil)

	resp, err := app.Test(httptest.NewRequest("GET", "/whoami", nil))
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200 status, got %d", resp.StatusCode)
	}
	if reqID := resp.Header.Get("X-Request-ID"); reqID == "" {
		t.Fatalf("expected X-Request-ID header to be set")
	}
}

func TestRouterResolvesIdentityFromHeader(t *testing.T) {
	app := newTestApp(t, "X-Photo-Identity", nil)

	cases := []struct {
		header string
		want   string
	}{
		{header: "", want: "anonymous"},
		{header: "   ", want: "anonymous"},
		{header: "alice", want: "user:alice"},
		{header: " super ", want: "user:super"},
	}
	for _, tc := range cases {
		req := httptest.NewRequest("GET", "/whoami", nil)
		if tc.header != "" {
			req.Header.Set("X-Photo-Identity", tc.header)
		}
		resp, err := app.Test(req)
		if err != nil {
			t.Fatalf("app.Test failed: %v", err)
		}
		body, _ := io.ReadAll(resp.Body)
		if string(body) != tc.want {
			t.Fatalf("header %q: expected identity %s, got %s", tc.header, tc.want, body)
		}
	}
}

func TestRouterIgnoresIdentityHeaderWhenUnconfigured(t *testing.T) {
	app := newTestApp(t, "", nil)

	req := httptest.NewRequest("GET", "/whoami", nil)
	req.Header.Set("X-Photo-Identity", "super")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "anonymous" {
		t.Fatalf("expected anonymous identity, got %s", body)
	}
}

func TestRouterWritesAccessLog(t *testing.T) {
	var buf bytes.Buffer
	app := newTestApp(t, "X-Photo-Identity", &buf)

	req := httptest.NewRequest("GET", "/whoami", nil)
	req.Header.Set("X-Photo-Identity", "alice")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}

	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("access log is not a single JSON line: %v (%s)", err, buf.String())
	}
	if entry["action"] != "http_request" {
		t.Fatalf("unexpected action: %v", entry["action"])
	}
	if entry["request_id"] != resp.Header.Get("X-Request-ID") {
		t.Fatalf("request id mismatch: %v", entry["request_id"])
	}
	if entry["identity"] != "user:alice" {
		t.Fatalf("unexpected identity: %v", entry["identity"])
	}
	if entry["method"] != "GET" || entry["status"] != float64(fiber.StatusOK) {
		t.Fatalf("unexpected method/status: %v %v", entry["method"], entry["status"])
	}
}

func TestRouterRecoversFromPanics(t *testing.T) {
	app := newTestApp(t, "", nil)
	app.Get("/boom", func(fiber.Ctx) error {
		panic("boom")
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/boom", nil))
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusInternalServerError {
		t.Fatalf("expected 500 status, got %d", resp.StatusCode)
	}
}

func TestNewAppRequiresLogger(t *testing.T) {
	if _, err := NewApp(AppOptions{}); err == nil {
		t.Fatalf("expected error without logger")
	}
}

func newTestApp(t *testing.T, identityHeader string, logOutput io.Writer) *fiber.App {
	t.Helper()

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(io.Discard)
	if logOutput != nil {
		logger.SetOutput(logOutput)
	}

	app, err := NewApp(AppOptions{
		Logger:         logger,
		IdentityHeader: identityHeader,
	})
	if err != nil {
		t.Fatalf("failed to create app: %v", err)
	}
	app.Get("/whoami", func(c fiber.Ctx) error {
		return c.SendString(Identity(c).String())
	})
	return app
}
