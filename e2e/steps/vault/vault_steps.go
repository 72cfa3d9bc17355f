package vault

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	Owner(method, path string, body any) error
	SignInOwner() error
	CLIPath() string
	Status() int
	Body() []byte
	Field(name string) (any, error)
	Set(key, value string)
	Get(key string) string
}

// RegisterSteps registers owner-side vault step definitions
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &vaultSteps{tc: tc}

	ctx.Step(`^I am signed in as a vault owner$`, steps.signIn)
	ctx.Step(`^another owner signs in$`, steps.signIn)
	ctx.Step(`^I have sealed "([^"]*)" with master password "([^"]*)"$`, steps.seal)
	ctx.Step(`^I create a vault from the sealed payload$`, steps.createVault)
	ctx.Step(`^I read the vault$`, steps.readVault)
	ctx.Step(`^the vault status should be "([^"]*)"$`, steps.vaultStatusShouldBe)
	ctx.Step(`^I send a heartbeat$`, steps.heartbeat)
	ctx.Step(`^I retire the vault$`, steps.retire)
	ctx.Step(`^I add the beneficiary "([^"]*)"$`, steps.addBeneficiary)
	ctx.Step(`^beneficiary "([^"]*)" should have status "([^"]*)"$`, steps.beneficiaryStatusShouldBe)
}

type vaultSteps struct {
	tc TestContext
}

var fragmentLine = regexp.MustCompile(`Fragment ([AB]): (.+)`)

func (s *vaultSteps) signIn(ctx context.Context) error {
	return s.tc.SignInOwner()
}

// seal runs the keepsake CLI, the same way an owner prepares a vault.
func (s *vaultSteps) seal(ctx context.Context, plaintext, password string) error {
	if s.tc.CLIPath() == "" {
		return godog.ErrSkip
	}
	in := filepath.Join(os.TempDir(), fmt.Sprintf("keepsake-e2e-%d.txt", os.Getpid()))
	if err := os.WriteFile(in, []byte(plaintext), 0o600); err != nil {
		return err
	}
	defer os.Remove(in)

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, s.tc.CLIPath(), "seal", "--in", in, "--password-stdin")
	cmd.Stdin = strings.NewReader(password + "\n")
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("keepsake seal: %w: %s", err, stderr.String())
	}

	for _, m := range fragmentLine.FindAllStringSubmatch(stderr.String(), -1) {
		s.tc.Set("fragment_"+strings.ToLower(m[1]), strings.TrimSpace(m[2]))
	}
	if s.tc.Get("fragment_a") == "" || s.tc.Get("fragment_b") == "" {
		return fmt.Errorf("seal printed no recovery kit: %s", stderr.String())
	}
	s.tc.Set("sealed", stdout.String())
	s.tc.Set("plaintext", plaintext)
	return nil
}

func (s *vaultSteps) createVault(ctx context.Context) error {
	if err := s.tc.Owner(http.MethodPost, "/v1/vaults", json.RawMessage(s.tc.Get("sealed"))); err != nil {
		return err
	}
	if s.tc.Status() != http.StatusCreated {
		return fmt.Errorf("create vault: %d %s", s.tc.Status(), s.tc.Body())
	}
	vaultID, err := s.tc.Field("id")
	if err != nil {
		return err
	}
	s.tc.Set("vault_id", fmt.Sprint(vaultID))
	return nil
}

func (s *vaultSteps) readVault(ctx context.Context) error {
	return s.tc.Owner(http.MethodGet, "/v1/vaults/"+s.tc.Get("vault_id"), nil)
}

func (s *vaultSteps) vaultStatusShouldBe(ctx context.Context, expected string) error {
	if err := s.readVault(ctx); err != nil {
		return err
	}
	status, err := s.tc.Field("status")
	if err != nil {
		return err
	}
	if status != expected {
		return fmt.Errorf("expected vault %s, got %v", expected, status)
	}
	return nil
}

func (s *vaultSteps) heartbeat(ctx context.Context) error {
	return s.tc.Owner(http.MethodPost, "/v1/vaults/"+s.tc.Get("vault_id")+"/heartbeat", nil)
}

func (s *vaultSteps) retire(ctx context.Context) error {
	return s.tc.Owner(http.MethodDelete, "/v1/vaults/"+s.tc.Get("vault_id"), nil)
}

func (s *vaultSteps) addBeneficiary(ctx context.Context, email string) error {
	path := "/v1/vaults/" + s.tc.Get("vault_id") + "/beneficiaries"
	if err := s.tc.Owner(http.MethodPost, path, map[string]any{"email": email}); err != nil {
		return err
	}
	if s.tc.Status() != http.StatusCreated {
		return fmt.Errorf("add beneficiary: %d %s", s.tc.Status(), s.tc.Body())
	}
	beneficiaryID, err := s.tc.Field("id")
	if err != nil {
		return err
	}
	s.tc.Set("beneficiary_id", fmt.Sprint(beneficiaryID))
	return nil
}

func (s *vaultSteps) beneficiaryStatusShouldBe(ctx context.Context, email, expected string) error {
	if err := s.tc.Owner(http.MethodGet, "/v1/vaults/"+s.tc.Get("vault_id")+"/beneficiaries", nil); err != nil {
		return err
	}
	var list struct {
		Beneficiaries []struct {
			Email  string `json:"email"`
			Status string `json:"status"`
		} `json:"beneficiaries"`
	}
	if err := json.Unmarshal(s.tc.Body(), &list); err != nil {
		return err
	}
	for _, b := range list.Beneficiaries {
		if b.Email == email {
			if b.Status != expected {
				return fmt.Errorf("expected %s to be %s, got %s", email, expected, b.Status)
			}
			return nil
		}
	}
	return fmt.Errorf("beneficiary %s not listed: %s", email, s.tc.Body())
}
