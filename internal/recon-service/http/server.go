package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/radieske/payment-recon-poc/internal/gateway"
	"github.com/radieske/payment-recon-poc/internal/recon-service/dto"
	"github.com/radieske/payment-recon-poc/internal/recon-service/executor"
	"github.com/radieske/payment-recon-poc/internal/recon-service/repo"
)

// Repo define as operações de persistência usadas pelos handlers
type Repo interface {
	CreateRequest(ctx context.Context, r *repo.Request) (string, error)
	GetRequest(ctx context.Context, id string) (*repo.Request, error)
	OperatorTransition(ctx context.Context, id string, to repo.Status, operator, reason string) error
}

// Exec é o coordenador de execução acionado pelas ações de operador
type Exec interface {
	Execute(ctx context.Context, requestID string, paymentID *string, processedBy string) (executor.Outcome, error)
	ExecuteWithdraw(ctx context.Context, requestID, code, operator string) (executor.Outcome, error)
}

// Server expõe a interface de colaboração: a camada de apresentação cria
// solicitações e lê status; operadores disparam aprovação/recusa/resolução.
// O núcleo nunca origina uma solicitação, só transiciona.
type Server struct {
	log  *zap.Logger
	repo Repo
	exec Exec
}

func NewServer(log *zap.Logger, r Repo, e Exec) *Server {
	return &Server{log: log, repo: r, exec: e}
}

// Router retorna o roteador HTTP com os endpoints REST
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Post("/v1/requests", s.createRequest)            // camada de apresentação
	r.Get("/v1/requests/{id}", s.getRequest)           // read model de status
	r.Post("/v1/requests/{id}/approve", s.approve)     // executa depósito manualmente
	r.Post("/v1/requests/{id}/confirm", s.confirm)     // código de confirmação de saque
	r.Post("/v1/requests/{id}/decline", s.decline)     // recusa pelo operador
	r.Post("/v1/requests/{id}/defer", s.deferRequest)  // estaciona fora do casamento automático
	r.Post("/v1/requests/{id}/resolve", s.resolve)     // fecha UNKNOWN_CHECK após conferência
	return r
}

func (s *Server) createRequest(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	kind := repo.Kind(req.Kind)
	if req.UserID == "" || req.Platform == "" || req.AccountRef == "" || req.AmountCents <= 0 ||
		(kind != repo.KindDeposit && kind != repo.KindWithdraw) {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}

	id, err := s.repo.CreateRequest(r.Context(), &repo.Request{
		UserID:      req.UserID,
		Platform:    req.Platform,
		AccountRef:  req.AccountRef,
		AmountCents: req.AmountCents,
		Kind:        kind,
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, dto.RequestResponse{
		RequestID:   id,
		UserID:      req.UserID,
		Platform:    req.Platform,
		Kind:        req.Kind,
		AmountCents: req.AmountCents,
		Status:      string(repo.StatusPending),
	})
}

func (s *Server) getRequest(w http.ResponseWriter, r *http.Request) {
	req, err := s.repo.GetRequest(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(req))
}

// approve dispara a execução manual de um depósito; passa pelo mesmo
// coordenador do fluxo automático, então sobreposição com o matcher é segura
func (s *Server) approve(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req dto.ApproveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	if req.Operator == "" {
		http.Error(w, "operator required", http.StatusBadRequest)
		return
	}

	var paymentID *string
	if req.PaymentID != "" {
		paymentID = &req.PaymentID
	}
	outcome, err := s.exec.Execute(r.Context(), id, paymentID, req.Operator)
	if err != nil {
		s.writeExecError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.ExecutionResponse{RequestID: id, Outcome: string(outcome)})
}

// confirm recebe o código de saque e dispara a verificação-execução
func (s *Server) confirm(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req dto.ConfirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	if req.Operator == "" || req.Code == "" {
		http.Error(w, "operator and code required", http.StatusBadRequest)
		return
	}

	outcome, err := s.exec.ExecuteWithdraw(r.Context(), id, req.Code, req.Operator)
	if err != nil {
		s.writeExecError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.ExecutionResponse{RequestID: id, Outcome: string(outcome)})
}

func (s *Server) decline(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, func(req dto.DeclineRequest) (repo.Status, string, string) {
		return repo.StatusDeclined, req.Operator, req.Reason
	})
}

func (s *Server) deferRequest(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, func(req dto.DeclineRequest) (repo.Status, string, string) {
		return repo.StatusDeferred, req.Operator, req.Reason
	})
}

// resolve fecha manualmente uma solicitação UNKNOWN_CHECK depois que o
// operador conferiu o desfecho real no back office da plataforma
func (s *Server) resolve(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req dto.ResolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	to := repo.Status(req.Status)
	if req.Operator == "" || (to != repo.StatusSuccess && to != repo.StatusFailed) {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}

	if err := s.repo.OperatorTransition(r.Context(), id, to, req.Operator, req.Reason); err != nil {
		s.writeTransitionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.ExecutionResponse{RequestID: id, Outcome: req.Status})
}

func (s *Server) transition(w http.ResponseWriter, r *http.Request, f func(dto.DeclineRequest) (repo.Status, string, string)) {
	id := chi.URLParam(r, "id")
	var req dto.DeclineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	if req.Operator == "" {
		http.Error(w, "operator required", http.StatusBadRequest)
		return
	}
	to, operator, reason := f(req)
	if err := s.repo.OperatorTransition(r.Context(), id, to, operator, reason); err != nil {
		s.writeTransitionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.ExecutionResponse{RequestID: id, Outcome: string(to)})
}

func (s *Server) writeExecError(w http.ResponseWriter, err error) {
	var cfgErr *gateway.ConfigError
	switch {
	case errors.Is(err, repo.ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	case errors.As(err, &cfgErr):
		// credencial ausente: erro de configuração, nada foi executado
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	default:
		http.Error(w, err.Error(), http.StatusConflict)
	}
}

func (s *Server) writeTransitionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, repo.ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	case errors.Is(err, repo.ErrInvalidTransition):
		http.Error(w, "invalid transition", http.StatusConflict)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func toResponse(r *repo.Request) dto.RequestResponse {
	return dto.RequestResponse{
		RequestID:    r.ID,
		UserID:       r.UserID,
		Platform:     r.Platform,
		Kind:         string(r.Kind),
		AmountCents:  r.AmountCents,
		Status:       string(r.Status),
		StatusDetail: r.StatusDetail,
		ProcessedBy:  r.ProcessedBy,
		CreatedAt:    r.CreatedAt,
		ProcessedAt:  r.ProcessedAt,
	}
}

// writeJSON serializa a resposta em JSON e define o status HTTP
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
