package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rpggio/fundinghub/internal/domain/chain"
)

// DefaultWaitTimeout bounds ledger_wait when the caller names no timeout.
const DefaultWaitTimeout = 30 * time.Second

// Ledger is the call interface served over JSON-RPC.
type Ledger interface {
	Submit(ctx context.Context, msg chain.CallMsg) (string, error)
	Receipt(ctx context.Context, id string) (*chain.Receipt, error)
	WaitForInclusion(ctx context.Context, id string) (*chain.Receipt, error)
	Read(ctx context.Context, msg chain.CallMsg) (json.RawMessage, error)
	Balance(ctx context.Context, addr common.Address) (*big.Int, error)
	Head(ctx context.Context) (*chain.Head, error)
	NetworkID() uint64
	GasLimit() uint64
}

// ErrSenderMismatch indicates a call signed for an account other than the
// authenticated one.
var ErrSenderMismatch = errors.New("sender does not match credentials")

// Server wires HTTP handlers.
type Server struct {
	ledger Ledger
	logger *slog.Logger
}

// NewServer creates an HTTP server router with middleware.
func NewServer(ledger Ledger, authMiddleware func(http.Handler) http.Handler, logger *slog.Logger) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	srv := &Server{ledger: ledger, logger: logger}

	r.Get("/health", srv.handleHealth)
	r.Group(func(r chi.Router) {
		if authMiddleware != nil {
			r.Use(authMiddleware)
		}
		r.Use(NetworkMiddleware(ledger.NetworkID()))
		r.Post("/rpc", srv.handleRPC)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	req, err := ParseRequest(r.Body)
	if err != nil {
		WriteError(w, nil, ErrInvalidReq, "invalid request", nil)
		return
	}

	result, err := s.Handle(r.Context(), req.Method, req.Params)
	if err != nil {
		var rpcErr *Error
		if errors.As(err, &rpcErr) {
			WriteError(w, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
			return
		}
		code, data := classify(err)
		if code == ErrInternal && s.logger != nil {
			s.logger.ErrorContext(r.Context(), "rpc call failed", "method", req.Method, "error", err)
		}
		WriteError(w, req.ID, code, err.Error(), data)
		return
	}

	WriteResult(w, req.ID, result)
}

// Handle dispatches one JSON-RPC method.
func (s *Server) Handle(ctx context.Context, method string, params json.RawMessage) (any, error) {
	switch method {
	case MethodSubmit:
		var p CallParams
		if err := decodeParams(params, &p); err != nil {
			return nil, err
		}
		msg := p.Msg()
		if account, ok := AccountFromContext(ctx); ok {
			if msg.From == (common.Address{}) {
				msg.From = account
			} else if msg.From != account {
				return nil, &Error{Code: ErrUnauthorizedCode, Message: ErrSenderMismatch.Error()}
			}
		}
		id, err := s.ledger.Submit(ctx, msg)
		if err != nil {
			return nil, err
		}
		return SubmitResult{TxID: id}, nil

	case MethodReceipt:
		var p TxParams
		if err := decodeParams(params, &p); err != nil {
			return nil, err
		}
		return s.ledger.Receipt(ctx, p.TxID)

	case MethodWait:
		var p TxParams
		if err := decodeParams(params, &p); err != nil {
			return nil, err
		}
		timeout := DefaultWaitTimeout
		if p.TimeoutMS > 0 {
			timeout = time.Duration(p.TimeoutMS) * time.Millisecond
		}
		waitCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		receipt, err := s.ledger.WaitForInclusion(waitCtx, p.TxID)
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, &Error{Code: ErrTimeoutCode, Message: fmt.Sprintf("transaction %s wasn't processed in %d seconds", p.TxID, int(timeout.Seconds()))}
		}
		return receipt, err

	case MethodRead:
		var p CallParams
		if err := decodeParams(params, &p); err != nil {
			return nil, err
		}
		return s.ledger.Read(ctx, p.Msg())

	case MethodBalance:
		var p BalanceParams
		if err := decodeParams(params, &p); err != nil {
			return nil, err
		}
		balance, err := s.ledger.Balance(ctx, p.Address)
		if err != nil {
			return nil, err
		}
		return BalanceResult{Address: p.Address, Balance: (*hexutil.Big)(balance)}, nil

	case MethodNetwork:
		head, err := s.ledger.Head(ctx)
		if err != nil {
			return nil, err
		}
		return NetworkResult{
			NetworkID: head.NetworkID,
			Height:    head.Height,
			BlockTime: head.BlockTime,
			GasLimit:  s.ledger.GasLimit(),
		}, nil

	default:
		return nil, &Error{Code: ErrMethodNotFound, Message: "method not found: " + method}
	}
}

func decodeParams(params json.RawMessage, dst any) error {
	if len(params) == 0 {
		return &Error{Code: ErrInvalidParams, Message: "missing params"}
	}
	if err := json.Unmarshal(params, dst); err != nil {
		return &Error{Code: ErrInvalidParams, Message: "invalid params: " + err.Error()}
	}
	return nil
}

// kinded is implemented by contract errors that carry a classification.
type kinded interface {
	ErrorKind() string
}

func classify(err error) (int, any) {
	var k kinded
	switch {
	case errors.Is(err, chain.ErrPending):
		return ErrPendingCode, nil
	case errors.Is(err, chain.ErrTxNotFound):
		return ErrNotFoundCode, nil
	case errors.As(err, &k):
		return ErrExecutionCode, ErrorData{Kind: k.ErrorKind()}
	case errors.Is(err, chain.ErrUnknownContract),
		errors.Is(err, chain.ErrUnknownFunction),
		errors.Is(err, chain.ErrBadArguments),
		errors.Is(err, chain.ErrGasLimitExceeded),
		errors.Is(err, chain.ErrOutOfGas):
		return ErrExecutionCode, nil
	default:
		return ErrInternal, nil
	}
}
