package handler

import (
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"keepsake/internal/liveness/handler/mocks"
	"keepsake/internal/liveness/models"
	"keepsake/internal/liveness/service"
	vaultmodels "keepsake/internal/vault/models"
	id "keepsake/pkg/domain"
	dErrors "keepsake/pkg/domain-errors"
	"keepsake/pkg/testutil"
)

// =============================================================================
// Liveness Handler Test Suite
// =============================================================================
// Justification for unit tests: path parsing, request validation and the
// mapping of conflict and not-found errors to status codes.

type LivenessHandlerSuite struct {
	suite.Suite
	service *mocks.MockService
	router  chi.Router
	owner   id.OwnerID
	vault   *vaultmodels.Vault
}

func TestLivenessHandlerSuite(t *testing.T) {
	suite.Run(t, new(LivenessHandlerSuite))
}

func (s *LivenessHandlerSuite) SetupTest() {
	ctrl := gomock.NewController(s.T())
	s.service = mocks.NewMockService(ctrl)
	s.owner = id.OwnerID(uuid.New())
	s.vault = &vaultmodels.Vault{
		ID:                     id.NewVaultID(),
		OwnerID:                s.owner,
		Status:                 vaultmodels.StatusActive,
		HeartbeatFrequencyDays: 90,
		GracePeriodDays:        7,
		DeadManSwitchEnabled:   true,
		LastSeenAt:             time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC),
	}

	h := New(s.service, slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.router = chi.NewRouter()
	h.RegisterOwner(s.router)
	h.RegisterAdmin(s.router)
}

func (s *LivenessHandlerSuite) path(suffix string) string {
	return "/v1/vaults/" + s.vault.ID.String() + suffix
}

func (s *LivenessHandlerSuite) TestHeartbeat() {
	s.Run("ok", func() {
		s.service.EXPECT().Heartbeat(gomock.Any(), s.vault.ID, s.owner).Return(s.vault, nil)
		rec := testutil.DoRequest(s.router, testutil.WithOwner(testutil.NewRequest(s.T(), http.MethodPost, s.path("/heartbeat")), s.owner))
		testutil.AssertStatus(s.T(), rec, http.StatusOK)
	})

	s.Run("triggered vault conflicts", func() {
		s.service.EXPECT().Heartbeat(gomock.Any(), s.vault.ID, s.owner).
			Return(nil, dErrors.New(dErrors.CodeConflict, "vault is TRIGGERED"))
		rec := testutil.DoRequest(s.router, testutil.WithOwner(testutil.NewRequest(s.T(), http.MethodPost, s.path("/heartbeat")), s.owner))
		testutil.AssertStatusAndError(s.T(), rec, http.StatusConflict, "conflict")
	})
}

func (s *LivenessHandlerSuite) TestSchedule() {
	s.Run("both fields required", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPut, s.path("/schedule"), map[string]any{"heartbeat_frequency_days": 30})
		rec := testutil.DoRequest(s.router, testutil.WithOwner(req, s.owner))
		testutil.AssertStatusAndError(s.T(), rec, http.StatusBadRequest, "bad_request")
	})

	s.Run("zero grace is allowed", func() {
		s.service.EXPECT().UpdateSchedule(gomock.Any(), s.vault.ID, s.owner, 30, 0).Return(s.vault, nil)
		req := testutil.NewJSONRequest(s.T(), http.MethodPut, s.path("/schedule"), map[string]any{
			"heartbeat_frequency_days": 30,
			"grace_period_days":        0,
		})
		rec := testutil.DoRequest(s.router, testutil.WithOwner(req, s.owner))
		testutil.AssertStatus(s.T(), rec, http.StatusOK)
	})
}

func (s *LivenessHandlerSuite) TestSwitch() {
	s.service.EXPECT().SetSwitch(gomock.Any(), s.vault.ID, s.owner, false).Return(s.vault, nil)
	req := testutil.NewJSONRequest(s.T(), http.MethodPut, s.path("/switch"), map[string]any{"enabled": false})
	rec := testutil.DoRequest(s.router, testutil.WithOwner(req, s.owner))
	testutil.AssertStatus(s.T(), rec, http.StatusOK)
}

func (s *LivenessHandlerSuite) TestRetire() {
	s.service.EXPECT().Retire(gomock.Any(), s.vault.ID, s.owner).Return(s.vault, nil)
	rec := testutil.DoRequest(s.router, testutil.WithOwner(testutil.NewRequest(s.T(), http.MethodDelete, s.path("")), s.owner))
	testutil.AssertStatus(s.T(), rec, http.StatusNoContent)
}

func (s *LivenessHandlerSuite) TestEvents() {
	at := time.Date(2026, 4, 6, 9, 0, 0, 0, time.UTC)
	s.service.EXPECT().Events(gomock.Any(), s.vault.ID, s.owner).Return([]models.Event{
		models.NewEvent(s.vault.ID, models.WarningSent{Deadline: at}, at),
	}, nil)

	rec := testutil.DoRequest(s.router, testutil.WithOwner(testutil.NewRequest(s.T(), http.MethodGet, s.path("/events")), s.owner))
	testutil.AssertStatus(s.T(), rec, http.StatusOK)
	body := testutil.UnmarshalResponse[struct {
		Events []map[string]any `json:"events"`
	}](s.T(), rec)
	s.Require().Len(body.Events, 1)
	s.Equal("warning_sent", body.Events[0]["event_type"])
	s.Equal(map[string]any{"deadline": "2026-04-06T09:00:00Z"}, body.Events[0]["event_data"])
}

func (s *LivenessHandlerSuite) TestAdmin() {
	operator := id.OwnerID(uuid.New())

	s.Run("trigger", func() {
		triggered := s.vault.Clone()
		triggered.Status = vaultmodels.StatusTriggered
		s.service.EXPECT().TriggerNow(gomock.Any(), s.vault.ID, operator).Return(triggered, nil)

		req := testutil.NewRequest(s.T(), http.MethodPost, "/v1/admin/vaults/"+s.vault.ID.String()+"/trigger")
		rec := testutil.DoRequest(s.router, testutil.WithAdmin(req, operator))
		testutil.AssertStatus(s.T(), rec, http.StatusOK)
		testutil.AssertJSONContains(s.T(), rec, "status", "TRIGGERED")
	})

	s.Run("sweep", func() {
		s.service.EXPECT().Sweep(gomock.Any()).Return(service.SweepReport{Examined: 4, Warned: 1}, nil)
		rec := testutil.DoRequest(s.router, testutil.WithAdmin(testutil.NewRequest(s.T(), http.MethodPost, "/v1/admin/sweep"), operator))
		testutil.AssertStatus(s.T(), rec, http.StatusOK)
		report := testutil.UnmarshalResponse[service.SweepReport](s.T(), rec)
		s.Equal(4, report.Examined)
		s.Equal(1, report.Warned)
	})

	s.Run("invalid vault id", func() {
		rec := testutil.DoRequest(s.router, testutil.WithAdmin(testutil.NewRequest(s.T(), http.MethodPost, "/v1/admin/vaults/xyz/trigger"), operator))
		testutil.AssertStatusAndError(s.T(), rec, http.StatusBadRequest, "invalid_input")
	})
}
