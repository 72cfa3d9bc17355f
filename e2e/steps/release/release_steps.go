package release

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cucumber/godog"
	"github.com/twmb/franz-go/pkg/kgo"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	Public(method, path string, body any) error
	Admin(method, path string, body any) error
	KafkaBrokers() []string
	NotificationTopic() string
	Status() int
	Body() []byte
	Field(name string) (any, error)
	Set(key, value string)
	Get(key string) string
}

// RegisterSteps registers operator and beneficiary step definitions
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &releaseSteps{tc: tc}

	// Operator actions
	ctx.Step(`^an operator triggers the vault$`, steps.triggerVault)
	ctx.Step(`^an operator reissues the release link$`, steps.reissueLink)

	// Notification delivery
	ctx.Step(`^"([^"]*)" should receive a release link$`, steps.shouldReceiveLink)
	ctx.Step(`^"([^"]*)" should receive a new release link$`, steps.shouldReceiveNewLink)

	// Beneficiary actions
	ctx.Step(`^the beneficiary checks the release link$`, steps.checkLink)
	ctx.Step(`^the beneficiary decrypts with master password "([^"]*)"$`, steps.decryptWithPassword)
	ctx.Step(`^the beneficiary decrypts with the recovery fragments$`, steps.decryptWithFragments)
	ctx.Step(`^the decrypted plaintext should match what was sealed$`, steps.plaintextShouldMatch)
	ctx.Step(`^the beneficiary reads the attempt history$`, steps.readHistory)
	ctx.Step(`^the history should have (\d+) attempts$`, steps.historyShouldHave)
	ctx.Step(`^the beneficiary requests an early unlock with "([^"]*)"$`, steps.requestUnlock)
}

type releaseSteps struct {
	tc TestContext
}

// notice mirrors the inheritance notice command on the notifications topic.
type notice struct {
	Kind    string `json:"kind"`
	Payload struct {
		VaultID string `json:"vault_id"`
		Email   string `json:"email"`
		Token   string `json:"token"`
	} `json:"payload"`
}

func (s *releaseSteps) triggerVault(ctx context.Context) error {
	if err := s.tc.Admin(http.MethodPost, "/v1/admin/vaults/"+s.tc.Get("vault_id")+"/trigger", nil); err != nil {
		return err
	}
	if s.tc.Status() != http.StatusOK {
		return fmt.Errorf("trigger: %d %s", s.tc.Status(), s.tc.Body())
	}
	return nil
}

func (s *releaseSteps) reissueLink(ctx context.Context) error {
	if err := s.tc.Admin(http.MethodPost, "/v1/admin/beneficiaries/"+s.tc.Get("beneficiary_id")+"/token", nil); err != nil {
		return err
	}
	if s.tc.Status() != http.StatusCreated {
		return fmt.Errorf("reissue: %d %s", s.tc.Status(), s.tc.Body())
	}
	return nil
}

func (s *releaseSteps) shouldReceiveLink(ctx context.Context, email string) error {
	return s.awaitLink(ctx, email, "")
}

func (s *releaseSteps) shouldReceiveNewLink(ctx context.Context, email string) error {
	return s.awaitLink(ctx, email, s.tc.Get("token"))
}

// awaitLink reads the notifications topic from the start until it finds an
// inheritance notice for email on this scenario's vault whose token is not
// previous.
func (s *releaseSteps) awaitLink(ctx context.Context, email, previous string) error {
	if len(s.tc.KafkaBrokers()) == 0 {
		return godog.ErrSkip
	}
	cl, err := kgo.NewClient(
		kgo.SeedBrokers(s.tc.KafkaBrokers()...),
		kgo.ConsumeTopics(s.tc.NotificationTopic()),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	if err != nil {
		return err
	}
	defer cl.Close()

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	vaultID := s.tc.Get("vault_id")
	for {
		fetches := cl.PollFetches(ctx)
		if ctx.Err() != nil {
			return fmt.Errorf("no release link for %s on vault %s", email, vaultID)
		}
		var token string
		fetches.EachRecord(func(r *kgo.Record) {
			var n notice
			if json.Unmarshal(r.Value, &n) != nil || n.Kind != "inheritance_notice" {
				return
			}
			if n.Payload.VaultID == vaultID && n.Payload.Email == email && n.Payload.Token != previous {
				token = n.Payload.Token
			}
		})
		if token != "" {
			s.tc.Set("token", token)
			return nil
		}
	}
}

func (s *releaseSteps) checkLink(ctx context.Context) error {
	return s.tc.Public(http.MethodGet, "/v1/release/tokens/"+s.tc.Get("token"), nil)
}

func (s *releaseSteps) decryptWithPassword(ctx context.Context, password string) error {
	return s.tc.Public(http.MethodPost, "/v1/release/decrypt", map[string]string{
		"token":           s.tc.Get("token"),
		"master_password": password,
	})
}

func (s *releaseSteps) decryptWithFragments(ctx context.Context) error {
	return s.tc.Public(http.MethodPost, "/v1/release/decrypt", map[string]string{
		"token":      s.tc.Get("token"),
		"fragment_a": s.tc.Get("fragment_a"),
		"fragment_b": s.tc.Get("fragment_b"),
	})
}

func (s *releaseSteps) plaintextShouldMatch(ctx context.Context) error {
	v, err := s.tc.Field("plaintext")
	if err != nil {
		return err
	}
	encoded, ok := v.(string)
	if !ok {
		return errors.New("plaintext is not a string")
	}
	got, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return err
	}
	if string(got) != s.tc.Get("plaintext") {
		return fmt.Errorf("decrypted %q, sealed %q", got, s.tc.Get("plaintext"))
	}
	return nil
}

func (s *releaseSteps) readHistory(ctx context.Context) error {
	return s.tc.Public(http.MethodGet, "/v1/release/tokens/"+s.tc.Get("token")+"/history", nil)
}

func (s *releaseSteps) historyShouldHave(ctx context.Context, n int) error {
	var history struct {
		Attempts []json.RawMessage `json:"attempts"`
	}
	if err := json.Unmarshal(s.tc.Body(), &history); err != nil {
		return err
	}
	if len(history.Attempts) != n {
		return fmt.Errorf("expected %d attempts, got %d: %s", n, len(history.Attempts), s.tc.Body())
	}
	return nil
}

func (s *releaseSteps) requestUnlock(ctx context.Context, email string) error {
	return s.tc.Public(http.MethodPost,
		"/v1/release/beneficiaries/"+s.tc.Get("beneficiary_id")+"/unlock",
		map[string]string{"email": email})
}
