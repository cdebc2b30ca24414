package settlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// ErrSettlementUnavailable marks a transient settlement-network failure.
// Safe to retry; the caller's state has not changed.
var ErrSettlementUnavailable = errors.New("settlement network unavailable")

const (
	// LamportsPerSol converts the network's SOL-denominated costs into its
	// base unit.
	LamportsPerSol = 1_000_000_000

	defaultTimeout = 10 * time.Second
)

// Client is the narrow settlement-network surface the pipeline depends on.
// The ledger itself (consensus, broadcast) is an external collaborator.
type Client interface {
	// Balance returns the confirmed balance of an address in lamports.
	Balance(ctx context.Context, address string) (uint64, error)
}

// balanceGetter is the slice of the solana-go RPC API the client needs.
type balanceGetter interface {
	GetBalance(ctx context.Context, account solana.PublicKey, commitment rpc.CommitmentType) (*rpc.GetBalanceResult, error)
}

type client struct {
	rpc     balanceGetter
	timeout time.Duration
}

func New(endpoint string, timeoutSecs int) Client {
	timeout := defaultTimeout
	if timeoutSecs > 0 {
		timeout = time.Duration(timeoutSecs) * time.Second
	}
	return &client{rpc: rpc.New(endpoint), timeout: timeout}
}

// Balance queries the address balance at confirmed commitment with a bounded
// timeout and a single retry before surfacing ErrSettlementUnavailable.
func (c *client) Balance(ctx context.Context, address string) (uint64, error) {
	pubkey, err := solana.PublicKeyFromBase58(address)
	if err != nil {
		return 0, fmt.Errorf("invalid settlement address %q: %w", address, err)
	}

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		balance, err := c.getBalance(ctx, pubkey)
		if err == nil {
			return balance, nil
		}
		lastErr = err

		slog.Warn("Balance query failed",
			slog.String("type", "rpc"),
			slog.Int("attempt", attempt+1),
			slog.Any("error", err))
	}
	return 0, fmt.Errorf("%w: %v", ErrSettlementUnavailable, lastErr)
}

func (c *client) getBalance(ctx context.Context, pubkey solana.PublicKey) (uint64, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	out, err := c.rpc.GetBalance(callCtx, pubkey, rpc.CommitmentConfirmed)
	if err != nil {
		return 0, err
	}
	if out == nil {
		return 0, errors.New("empty balance response")
	}
	return out.Value, nil
}

// NewVaultKeypair generates a fresh ed25519 funding keypair. The secret key
// must be encrypted before it is persisted and must never leave the trusted
// boundary in the clear.
func NewVaultKeypair() (publicKey string, secretKey []byte) {
	wallet := solana.NewWallet()
	return wallet.PublicKey().String(), []byte(wallet.PrivateKey)
}
