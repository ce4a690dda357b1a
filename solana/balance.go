// Package solana reads wallet balances from a Solana RPC node.
package solana

import (
	"context"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/becomeliminal/dlmm-scout/core"
	"github.com/becomeliminal/dlmm-scout/logger"
)

// LamportsPerSOL is the number of lamports in one SOL.
const LamportsPerSOL = solana.LAMPORTS_PER_SOL

// BalanceReader is the subset of *rpc.Client used by BalanceService.
type BalanceReader interface {
	GetBalance(ctx context.Context, account solana.PublicKey, commitment rpc.CommitmentType) (*rpc.GetBalanceResult, error)
}

// NewRPCClient returns an RPC client for url. Callers own its lifecycle and
// pass it to NewBalanceService.
func NewRPCClient(url string) *rpc.Client {
	return rpc.New(url)
}

// Balance is the SOL balance of one account.
type Balance struct {
	Address  string `json:"address"`
	Lamports uint64 `json:"lamports"`
	SOL      string `json:"sol"`
}

// BalanceService looks up SOL balances.
type BalanceService struct {
	client BalanceReader
	logger *zap.Logger
}

// NewBalanceService creates a BalanceService over an injected RPC client.
func NewBalanceService(client BalanceReader, l *zap.Logger) *BalanceService {
	return &BalanceService{
		client: client,
		logger: logger.OrNop(l).Named("balance"),
	}
}

// SOLBalance returns the confirmed balance of address. An address that is
// not a valid base58 public key is a *core.ValidationError; RPC failures are
// a *core.GatewayError.
func (s *BalanceService) SOLBalance(ctx context.Context, address string) (*Balance, error) {
	pubkey, err := solana.PublicKeyFromBase58(address)
	if err != nil {
		return nil, core.NewValidationError("address", "not a valid Solana address")
	}

	result, err := s.client.GetBalance(ctx, pubkey, rpc.CommitmentConfirmed)
	if err != nil {
		s.logger.Error("GetBalance error", zap.String("address", address), zap.Error(err))
		return nil, &core.GatewayError{Op: "solana getBalance", Err: err}
	}

	return &Balance{
		Address:  pubkey.String(),
		Lamports: result.Value,
		SOL:      LamportsToSOL(result.Value).String(),
	}, nil
}

// LamportsToSOL converts lamports to SOL without floating point error.
func LamportsToSOL(lamports uint64) decimal.Decimal {
	return decimal.NewFromUint64(lamports).Shift(-9)
}
