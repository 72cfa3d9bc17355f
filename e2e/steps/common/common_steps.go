package common

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	Public(method, path string, body any) error
	SetClientIP(ip string)
	PublicRateLimit() int
	Status() int
	Header(name string) string
	Body() []byte
	Field(name string) (any, error)
}

// RegisterSteps registers server checks, raw requests and response assertions
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &commonSteps{tc: tc}

	ctx.Step(`^the keepsake server is running$`, steps.serverIsRunning)
	ctx.Step(`^my client IP is "([^"]*)"$`, steps.clientIPIs)
	ctx.Step(`^I GET "([^"]*)"$`, steps.get)
	ctx.Step(`^I exceed the public rate limit on "([^"]*)"$`, steps.exceedRateLimit)

	ctx.Step(`^the response status should be (\d+)$`, steps.statusShouldBe)
	ctx.Step(`^the response field "([^"]*)" should be "([^"]*)"$`, steps.fieldShouldBe)
	ctx.Step(`^the response field "([^"]*)" should be (true|false|\d+)$`, steps.fieldShouldBe)
	ctx.Step(`^the response header "([^"]*)" should be set$`, steps.headerShouldBeSet)
}

type commonSteps struct {
	tc TestContext
}

func (s *commonSteps) serverIsRunning(ctx context.Context) error {
	if err := s.tc.Public(http.MethodGet, "/healthz", nil); err != nil {
		return err
	}
	if s.tc.Status() != http.StatusOK {
		return fmt.Errorf("server unhealthy: %d %s", s.tc.Status(), s.tc.Body())
	}
	return nil
}

func (s *commonSteps) clientIPIs(ctx context.Context, ip string) error {
	s.tc.SetClientIP(ip)
	return nil
}

func (s *commonSteps) get(ctx context.Context, path string) error {
	return s.tc.Public(http.MethodGet, path, nil)
}

// exceedRateLimit sends one request more than the configured public limit.
func (s *commonSteps) exceedRateLimit(ctx context.Context, path string) error {
	for range s.tc.PublicRateLimit() + 1 {
		if err := s.tc.Public(http.MethodGet, path, nil); err != nil {
			return err
		}
	}
	return nil
}

func (s *commonSteps) statusShouldBe(ctx context.Context, expected int) error {
	if s.tc.Status() != expected {
		return fmt.Errorf("expected status %d, got %d: %s", expected, s.tc.Status(), s.tc.Body())
	}
	return nil
}

// fieldShouldBe compares the printed form, so 90, true and "ACTIVE" all work.
func (s *commonSteps) fieldShouldBe(ctx context.Context, field, expected string) error {
	v, err := s.tc.Field(field)
	if err != nil {
		return err
	}
	got := fmt.Sprint(v)
	if f, ok := v.(float64); ok {
		got = strconv.FormatFloat(f, 'f', -1, 64)
	}
	if got != expected {
		return fmt.Errorf("expected %s to be %q, got %q", field, expected, got)
	}
	return nil
}

func (s *commonSteps) headerShouldBeSet(ctx context.Context, name string) error {
	if s.tc.Header(name) == "" {
		return fmt.Errorf("header %s missing", name)
	}
	return nil
}
