// Package simulate issues simulateTransaction calls against a Solana RPC
// endpoint and classifies their outcomes.
package simulate

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"golang.org/x/time/rate"

	"github.com/weiihann/simbench/workload"
)

// Simulator submits a transaction for simulation. Implementations hold no
// mutable state and are safe for concurrent use.
type Simulator interface {
	SimulateTransaction(
		ctx context.Context,
		tx *solana.Transaction,
	) (*rpc.SimulateTransactionResponse, error)
}

// RPCSimulator simulates transactions through a JSON-RPC endpoint.
type RPCSimulator struct {
	client *rpc.Client
}

// NewRPCSimulator creates an RPCSimulator for the given endpoint.
func NewRPCSimulator(endpoint string) *RPCSimulator {
	return &RPCSimulator{client: rpc.New(endpoint)}
}

// SimulateTransaction sends tx without signature verification. The
// transaction is encoded locally because the client's own marshaller
// rejects unsigned transactions.
func (s *RPCSimulator) SimulateTransaction(
	ctx context.Context,
	tx *solana.Transaction,
) (*rpc.SimulateTransactionResponse, error) {
	wire, err := workload.Encode(tx)
	if err != nil {
		return nil, fmt.Errorf("encode transaction: %w", err)
	}

	params := []interface{}{
		base64.StdEncoding.EncodeToString(wire),
		map[string]interface{}{
			"encoding":               solana.EncodingBase64,
			"sigVerify":              false,
			"replaceRecentBlockhash": false,
		},
	}

	var out rpc.SimulateTransactionResponse
	if err := s.client.RPCCallForInto(ctx, &out, "simulateTransaction", params); err != nil {
		return nil, err
	}

	return &out, nil
}

// Close releases the underlying client.
func (s *RPCSimulator) Close() error {
	return s.client.Close()
}

// Limited throttles a Simulator with a token bucket.
type Limited struct {
	next    Simulator
	limiter *rate.Limiter
}

// NewLimited wraps next so that at most rps calls start per second.
func NewLimited(next Simulator, rps float64) *Limited {
	return &Limited{
		next:    next,
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
	}
}

// SimulateTransaction waits for a token, then delegates.
func (l *Limited) SimulateTransaction(
	ctx context.Context,
	tx *solana.Transaction,
) (*rpc.SimulateTransactionResponse, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}

	return l.next.SimulateTransaction(ctx, tx)
}
