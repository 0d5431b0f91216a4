package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"ico-relayer/internal/domain"
	"ico-relayer/internal/qruri"
	"ico-relayer/internal/usecase"
)

// SessionHandler exposes the session lifecycle over HTTP.
type SessionHandler struct {
	sessions *usecase.SessionUsecase
	logger   *zap.Logger
}

func NewSessionHandler(sessions *usecase.SessionUsecase, logger *zap.Logger) *SessionHandler {
	return &SessionHandler{
		sessions: sessions,
		logger:   logger,
	}
}

type createSessionRequest struct {
	Chain        string `json:"chain"`
	Token        string `json:"token,omitempty"`
	FiatCents    int64  `json:"fiatCents"`
	BuyerAddress string `json:"buyerAddress"`
}

type notePaymentTxRequest struct {
	TxHash string `json:"txHash"`
}

// sessionResponse is the public view of a session. The deposit secret never
// appears here.
type sessionResponse struct {
	ID              string            `json:"id"`
	Chain           string            `json:"chain"`
	PayType         string            `json:"payType"`
	TokenContract   *string           `json:"tokenContract,omitempty"`
	DepositAddress  string            `json:"depositAddress"`
	BuyerAddress    string            `json:"buyerAddress"`
	FiatCents       int64             `json:"fiatCents"`
	RequiredAmount  domain.BigAmount  `json:"requiredAmount"`
	ObservedAmount  *domain.BigAmount `json:"observedAmount,omitempty"`
	PaymentState    string            `json:"paymentState"`
	SettlementState string            `json:"settlementState"`
	DepositTxRef    *string           `json:"depositTxRef,omitempty"`
	SettlementTxRef *string           `json:"settlementTxRef,omitempty"`
	ForwardTxRef    *string           `json:"forwardTxRef,omitempty"`
	FailureReason   *string           `json:"failureReason,omitempty"`
	CreatedAt       time.Time         `json:"createdAt"`
	ConfirmedAt     *time.Time        `json:"confirmedAt,omitempty"`
	ExecutedAt      *time.Time        `json:"executedAt,omitempty"`
	Payment         *qruri.Payload    `json:"payment,omitempty"`
}

func toSessionResponse(s *domain.Session, payment *qruri.Payload) *sessionResponse {
	resp := &sessionResponse{
		ID:              s.ID,
		Chain:           string(s.PayChain),
		PayType:         string(s.PayType),
		TokenContract:   s.PayTokenContract,
		DepositAddress:  s.DepositAddress,
		BuyerAddress:    s.BuyerSettlementAddress,
		FiatCents:       s.FiatAmount,
		RequiredAmount:  domain.NewBigAmount(s.RequiredChainAmount),
		PaymentState:    string(s.PaymentState),
		SettlementState: string(s.SettlementState),
		DepositTxRef:    s.DepositTxRef,
		SettlementTxRef: s.SettlementTxRef,
		ForwardTxRef:    s.ForwardTxRef,
		FailureReason:   s.FailureReason,
		CreatedAt:       s.CreatedAt,
		ConfirmedAt:     s.ConfirmedAt,
		ExecutedAt:      s.ExecutedAt,
		Payment:         payment,
	}

	if s.LastObservedAmount != nil {
		observed := domain.NewBigAmount(s.LastObservedAmount)
		resp.ObservedAmount = &observed
	}

	return resp
}

func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.sessions.Create(r.Context(), &usecase.CreateSessionRequest{
		Chain:        req.Chain,
		TokenSymbol:  req.Token,
		FiatCents:    req.FiatCents,
		BuyerAddress: req.BuyerAddress,
	})
	if err != nil {
		h.writeFailure(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, toSessionResponse(result.Session, result.Payment))
}

func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	session, err := h.sessions.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeFailure(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, toSessionResponse(session, nil))
}

func (h *SessionHandler) NotePaymentTx(w http.ResponseWriter, r *http.Request) {
	var req notePaymentTxRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.TxHash == "" {
		h.writeError(w, http.StatusBadRequest, "txHash is required")
		return
	}

	if err := h.sessions.NotePaymentTx(r.Context(), chi.URLParam(r, "id"), req.TxHash); err != nil {
		h.writeFailure(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{"status": "recorded"})
}

func (h *SessionHandler) Settle(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.sessions.Settle(r.Context(), id); err != nil {
		h.writeFailure(w, err)
		return
	}

	session, err := h.sessions.Get(r.Context(), id)
	if err != nil {
		h.writeFailure(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, toSessionResponse(session, nil))
}

func (h *SessionHandler) Chains(w http.ResponseWriter, r *http.Request) {
	chains := domain.SupportedChains()
	out := make([]string, 0, len(chains))
	for _, c := range chains {
		out = append(out, string(c))
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"chains": out})
}

func (h *SessionHandler) writeFailure(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrSessionNotFound):
		h.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrUnsupportedChain):
		h.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrPaymentNotConfirmed),
		errors.Is(err, domain.ErrAlreadyExecuted),
		errors.Is(err, domain.ErrStateConflict):
		h.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrPriceUnavailable),
		errors.Is(err, domain.ErrAdapterUnavailable):
		h.writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, domain.ErrSettlementReverted):
		h.writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		h.logger.Error("request failed", zap.Error(err))
		h.writeError(w, http.StatusBadRequest, err.Error())
	}
}

func (h *SessionHandler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

func (h *SessionHandler) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("failed to encode response", zap.Error(err))
	}
}
