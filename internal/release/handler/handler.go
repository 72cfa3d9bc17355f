package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"keepsake/internal/release/models"
	id "keepsake/pkg/domain"
	dErrors "keepsake/pkg/domain-errors"
	"keepsake/pkg/platform/httputil"
	"keepsake/pkg/requestcontext"
)

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service

// Service defines the release gate operations exposed over HTTP.
type Service interface {
	IssueReleaseToken(ctx context.Context, beneficiaryID id.BeneficiaryID) (*models.TokenGrant, error)
	ValidateToken(ctx context.Context, token string) (models.TokenValidation, error)
	Decrypt(ctx context.Context, req models.DecryptRequest) (*models.DecryptResult, error)
	RequestUnlock(ctx context.Context, beneficiaryID id.BeneficiaryID, email string) (*models.Beneficiary, error)
	AddBeneficiary(ctx context.Context, vaultID id.VaultID, owner id.OwnerID, req models.AddBeneficiaryRequest) (*models.Beneficiary, error)
	ListBeneficiaries(ctx context.Context, vaultID id.VaultID, owner id.OwnerID) ([]*models.Beneficiary, error)
	History(ctx context.Context, vaultID id.VaultID, beneficiaryID id.BeneficiaryID, owner id.OwnerID) ([]models.DecryptionAttempt, error)
	HistoryForToken(ctx context.Context, token string) ([]models.DecryptionAttempt, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// RegisterPublic mounts the beneficiary-facing routes. A release token or a
// matching email is the only credential.
func (h *Handler) RegisterPublic(r chi.Router) {
	r.Get("/v1/release/tokens/{token}", h.handleValidateToken)
	r.Get("/v1/release/tokens/{token}/history", h.handleTokenHistory)
	r.Post("/v1/release/decrypt", h.handleDecrypt)
	r.Post("/v1/release/beneficiaries/{id}/unlock", h.handleRequestUnlock)
}

// RegisterOwner mounts routes for an authenticated vault owner.
func (h *Handler) RegisterOwner(r chi.Router) {
	r.Post("/v1/vaults/{id}/beneficiaries", h.handleAddBeneficiary)
	r.Get("/v1/vaults/{id}/beneficiaries", h.handleListBeneficiaries)
	r.Get("/v1/vaults/{id}/beneficiaries/{beneficiaryID}/history", h.handleHistory)
}

// RegisterAdmin mounts operator routes. The router must already require the
// admin role.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Post("/v1/admin/beneficiaries/{id}/token", h.handleIssueToken)
}

func (h *Handler) handleValidateToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	res, err := h.service.ValidateToken(ctx, chi.URLParam(r, "token"))
	if err != nil {
		h.writeServiceError(ctx, w, "validate token", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, models.ToTokenStatusResponse(res))
}

func (h *Handler) handleTokenHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	attempts, err := h.service.HistoryForToken(ctx, chi.URLParam(r, "token"))
	if err != nil {
		h.writeServiceError(ctx, w, "load history", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"attempts": models.ToAttemptResponses(attempts)})
}

func (h *Handler) handleDecrypt(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var body models.DecryptBody
	if err := httputil.DecodeJSON(r, &body); err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := body.Validate(); err != nil {
		httputil.WriteError(w, err)
		return
	}

	res, err := h.service.Decrypt(ctx, models.DecryptRequest{
		Token:          body.Token,
		MasterPassword: body.MasterPassword,
		FragmentA:      body.FragmentA,
		FragmentB:      body.FragmentB,
		IP:             requestcontext.ClientIP(ctx),
		UserAgent:      requestcontext.UserAgent(ctx),
	})
	if err != nil {
		h.writeServiceError(ctx, w, "decrypt vault", err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	httputil.WriteJSON(w, http.StatusOK, models.ToDecryptResponse(res))
}

func (h *Handler) handleRequestUnlock(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	beneficiaryID, ok := h.beneficiaryID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	var body models.UnlockBody
	if err := httputil.DecodeJSON(r, &body); err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := body.Validate(); err != nil {
		httputil.WriteError(w, err)
		return
	}
	b, err := h.service.RequestUnlock(ctx, beneficiaryID, body.Email)
	if err != nil {
		h.writeServiceError(ctx, w, "request unlock", err)
		return
	}
	resp := models.ToBeneficiaryResponse(b)
	httputil.WriteJSON(w, http.StatusAccepted, map[string]any{
		"status":             resp.Status,
		"unlock_delay_until": resp.UnlockDelayUntil,
	})
}

func (h *Handler) handleAddBeneficiary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	vaultID, ok := h.vaultID(w, r)
	if !ok {
		return
	}
	var req models.AddBeneficiaryRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	b, err := h.service.AddBeneficiary(ctx, vaultID, requestcontext.OwnerID(ctx), req)
	if err != nil {
		h.writeServiceError(ctx, w, "add beneficiary", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, models.ToBeneficiaryResponse(b))
}

func (h *Handler) handleListBeneficiaries(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	vaultID, ok := h.vaultID(w, r)
	if !ok {
		return
	}
	bs, err := h.service.ListBeneficiaries(ctx, vaultID, requestcontext.OwnerID(ctx))
	if err != nil {
		h.writeServiceError(ctx, w, "list beneficiaries", err)
		return
	}
	out := make([]models.BeneficiaryResponse, 0, len(bs))
	for _, b := range bs {
		out = append(out, models.ToBeneficiaryResponse(b))
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"beneficiaries": out})
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	vaultID, ok := h.vaultID(w, r)
	if !ok {
		return
	}
	beneficiaryID, ok := h.beneficiaryID(w, chi.URLParam(r, "beneficiaryID"))
	if !ok {
		return
	}
	attempts, err := h.service.History(ctx, vaultID, beneficiaryID, requestcontext.OwnerID(ctx))
	if err != nil {
		h.writeServiceError(ctx, w, "load history", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"attempts": models.ToAttemptResponses(attempts)})
}

func (h *Handler) handleIssueToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	beneficiaryID, ok := h.beneficiaryID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	grant, err := h.service.IssueReleaseToken(ctx, beneficiaryID)
	if err != nil {
		h.writeServiceError(ctx, w, "issue release token", err)
		return
	}
	h.logger.InfoContext(ctx, "release token issued by operator",
		"request_id", requestcontext.RequestID(ctx),
		"beneficiary_id", beneficiaryID,
		"operator_id", requestcontext.OwnerID(ctx),
	)
	httputil.WriteJSON(w, http.StatusCreated, models.ToTokenGrantResponse(grant))
}

func (h *Handler) vaultID(w http.ResponseWriter, r *http.Request) (id.VaultID, bool) {
	vaultID, err := id.ParseVaultID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return id.VaultID{}, false
	}
	return vaultID, true
}

func (h *Handler) beneficiaryID(w http.ResponseWriter, raw string) (id.BeneficiaryID, bool) {
	beneficiaryID, err := id.ParseBeneficiaryID(raw)
	if err != nil {
		httputil.WriteError(w, err)
		return id.BeneficiaryID{}, false
	}
	return beneficiaryID, true
}

func (h *Handler) writeServiceError(ctx context.Context, w http.ResponseWriter, op string, err error) {
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, "failed to "+op,
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
	}
	httputil.WriteError(w, err)
}
