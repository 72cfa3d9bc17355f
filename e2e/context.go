// Package e2e drives a running keepsake server through its HTTP API. Owner
// and operator tokens are minted with the server's signing key; release links
// are read from the notification topic.
package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Settings come from the environment so the suite can target any deployment.
type Settings struct {
	BaseURL           string
	SigningKey        string
	Issuer            string
	Audience          string
	CLIPath           string
	KafkaBrokers      []string
	NotificationTopic string
	PublicRateLimit   int
}

func SettingsFromEnv() Settings {
	s := Settings{
		BaseURL:           strings.TrimRight(os.Getenv("E2E_BASE_URL"), "/"),
		SigningKey:        envOr("E2E_JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		Issuer:            envOr("E2E_JWT_ISSUER", "keepsake"),
		Audience:          envOr("E2E_JWT_AUDIENCE", "keepsake-api"),
		CLIPath:           os.Getenv("KEEPSAKE_BIN"),
		NotificationTopic: envOr("E2E_NOTIFICATION_TOPIC", "keepsake.notifications"),
		PublicRateLimit:   60,
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		for _, b := range strings.Split(v, ",") {
			if b = strings.TrimSpace(b); b != "" {
				s.KafkaBrokers = append(s.KafkaBrokers, b)
			}
		}
	}
	if n, err := strconv.Atoi(os.Getenv("E2E_PUBLIC_RATE_LIMIT")); err == nil && n > 0 {
		s.PublicRateLimit = n
	}
	return s
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// TestContext is the per-scenario state shared by every step package.
type TestContext struct {
	settings Settings
	client   *http.Client

	clientIP    string
	ownerToken  string
	adminToken  string
	lastStatus  int
	lastHeaders http.Header
	lastBody    []byte
	vars        map[string]string
}

func NewTestContext(settings Settings) *TestContext {
	tc := &TestContext{
		settings: settings,
		client:   &http.Client{Timeout: 30 * time.Second},
	}
	tc.Reset()
	return tc
}

// Reset clears scenario state and picks a fresh client IP so the public rate
// limit of one scenario never leaks into the next.
func (tc *TestContext) Reset() {
	tc.clientIP = fmt.Sprintf("203.0.113.%d", rand.IntN(254)+1)
	tc.ownerToken = ""
	tc.adminToken = ""
	tc.lastStatus = 0
	tc.lastHeaders = nil
	tc.lastBody = nil
	tc.vars = map[string]string{}
}

func (tc *TestContext) CLIPath() string { return tc.settings.CLIPath }

func (tc *TestContext) KafkaBrokers() []string { return tc.settings.KafkaBrokers }

func (tc *TestContext) NotificationTopic() string { return tc.settings.NotificationTopic }

func (tc *TestContext) PublicRateLimit() int { return tc.settings.PublicRateLimit }

func (tc *TestContext) SetClientIP(ip string) { tc.clientIP = ip }

// SignInOwner mints an owner token for a new owner ID.
func (tc *TestContext) SignInOwner() error {
	tok, err := tc.mint(uuid.NewString(), "owner")
	if err != nil {
		return err
	}
	tc.ownerToken = tok
	return nil
}

func (tc *TestContext) signInAdmin() error {
	tok, err := tc.mint(uuid.NewString(), "admin")
	if err != nil {
		return err
	}
	tc.adminToken = tok
	return nil
}

func (tc *TestContext) mint(subject, role string) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"role": role,
		"sub":  subject,
		"iss":  tc.settings.Issuer,
		"aud":  []string{tc.settings.Audience},
		"iat":  now.Unix(),
		"exp":  now.Add(time.Hour).Unix(),
		"jti":  uuid.NewString(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(tc.settings.SigningKey))
}

func (tc *TestContext) Public(method, path string, body any) error {
	return tc.do(method, path, "", body)
}

func (tc *TestContext) Owner(method, path string, body any) error {
	if tc.ownerToken == "" {
		return fmt.Errorf("no owner is signed in")
	}
	return tc.do(method, path, tc.ownerToken, body)
}

func (tc *TestContext) Admin(method, path string, body any) error {
	if tc.adminToken == "" {
		if err := tc.signInAdmin(); err != nil {
			return err
		}
	}
	return tc.do(method, path, tc.adminToken, body)
}

func (tc *TestContext) do(method, path, bearer string, body any) error {
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		r = bytes.NewReader(data)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, method, tc.settings.BaseURL+path, r)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Forwarded-For", tc.clientIP)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := tc.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	tc.lastBody, err = io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	tc.lastStatus = resp.StatusCode
	tc.lastHeaders = resp.Header
	return nil
}

func (tc *TestContext) Status() int { return tc.lastStatus }

func (tc *TestContext) Header(name string) string { return tc.lastHeaders.Get(name) }

func (tc *TestContext) Body() []byte { return tc.lastBody }

// Field returns a top-level field of the last JSON response.
func (tc *TestContext) Field(name string) (any, error) {
	var m map[string]any
	if err := json.Unmarshal(tc.lastBody, &m); err != nil {
		return nil, fmt.Errorf("response is not a JSON object: %s", tc.lastBody)
	}
	v, ok := m[name]
	if !ok {
		return nil, fmt.Errorf("field %q not in response: %s", name, tc.lastBody)
	}
	return v, nil
}

func (tc *TestContext) Set(key, value string) { tc.vars[key] = value }

func (tc *TestContext) Get(key string) string { return tc.vars[key] }
