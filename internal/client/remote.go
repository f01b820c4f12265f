package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rpggio/fundinghub/internal/domain/chain"
	"github.com/rpggio/fundinghub/internal/transport"
)

// RemoteConfig configures a RemoteProvider.
type RemoteConfig struct {
	// Endpoint is the JSON-RPC URL, e.g. http://localhost:8545/rpc.
	Endpoint string
	// Token is sent as a bearer token when set.
	Token string
	// NetworkID is sent with every request when non-zero; the server rejects
	// requests for another network.
	NetworkID  uint64
	HTTPClient *http.Client
}

// RemoteProvider talks to a ledger over JSON-RPC.
type RemoteProvider struct {
	cfg    RemoteConfig
	nextID atomic.Int64
}

var _ Provider = (*RemoteProvider)(nil)

// NewRemoteProvider creates a provider for cfg.Endpoint.
func NewRemoteProvider(cfg RemoteConfig) *RemoteProvider {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &RemoteProvider{cfg: cfg}
}

func (p *RemoteProvider) Submit(ctx context.Context, msg chain.CallMsg) (string, error) {
	var out transport.SubmitResult
	if err := p.call(ctx, transport.MethodSubmit, transport.NewCallParams(msg), &out); err != nil {
		return "", err
	}
	return out.TxID, nil
}

func (p *RemoteProvider) Receipt(ctx context.Context, id string) (*chain.Receipt, error) {
	var out chain.Receipt
	if err := p.call(ctx, transport.MethodReceipt, transport.TxParams{TxID: id}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (p *RemoteProvider) Read(ctx context.Context, msg chain.CallMsg) (json.RawMessage, error) {
	var out json.RawMessage
	if err := p.call(ctx, transport.MethodRead, transport.NewCallParams(msg), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Balance returns the ledger balance of addr.
func (p *RemoteProvider) Balance(ctx context.Context, addr common.Address) (*big.Int, error) {
	var out transport.BalanceResult
	if err := p.call(ctx, transport.MethodBalance, transport.BalanceParams{Address: addr}, &out); err != nil {
		return nil, err
	}
	if out.Balance == nil {
		return new(big.Int), nil
	}
	return out.Balance.ToInt(), nil
}

// Network returns the served network and chain head.
func (p *RemoteProvider) Network(ctx context.Context) (*transport.NetworkResult, error) {
	var out transport.NetworkResult
	if err := p.call(ctx, transport.MethodNetwork, struct{}{}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

type rpcError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (p *RemoteProvider) call(ctx context.Context, method string, params, out any) error {
	rawParams, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("encode params: %w", err)
	}
	body, err := json.Marshal(transport.Request{
		JSONRPC: "2.0",
		Method:  method,
		Params:  rawParams,
		ID:      p.nextID.Add(1),
	})
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if p.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+p.cfg.Token)
	}
	if p.cfg.NetworkID != 0 {
		req.Header.Set(transport.NetworkHeader, strconv.FormatUint(p.cfg.NetworkID, 10))
	}

	resp, err := p.cfg.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	defer resp.Body.Close()

	var decoded rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return fmt.Errorf("%s: decode response (status %d): %w", method, resp.StatusCode, err)
	}
	if decoded.Error != nil {
		return decodeError(decoded.Error)
	}
	if err := json.Unmarshal(decoded.Result, out); err != nil {
		return fmt.Errorf("%s: decode result: %w", method, err)
	}
	return nil
}

func decodeError(e *rpcError) error {
	switch e.Code {
	case transport.ErrPendingCode:
		return chain.ErrPending
	case transport.ErrNotFoundCode:
		return chain.ErrTxNotFound
	case transport.ErrNetworkCode:
		return fmt.Errorf("%s: %w", e.Message, ErrNetworkMismatch)
	case transport.ErrExecutionCode:
		var data transport.ErrorData
		if len(e.Data) > 0 {
			_ = json.Unmarshal(e.Data, &data)
		}
		return &RemoteError{Code: e.Code, Message: e.Message, Kind: data.Kind}
	default:
		return &transport.Error{Code: e.Code, Message: e.Message}
	}
}
