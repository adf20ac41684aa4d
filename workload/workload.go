// Package workload builds the simulation requests sent by the benchmark.
// Every request is an unsigned legacy Solana transaction carrying a single
// empty instruction addressed to a freshly generated program id. Such a
// transaction serializes fine but never passes the validator's sanitize
// step, which is exactly the outcome each simulation call expects.
package workload

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	mrand "math/rand"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
)

// Request is the JSONL form of a generated simulation request.
type Request struct {
	Index     int    `json:"index"`
	ProgramID string `json:"program_id"`
	Wire      string `json:"wire"`
}

// Summary contains statistics about a generated batch.
type Summary struct {
	Requests  int
	WireBytes int
}

// Config controls request generation.
type Config struct {
	// Seed for the program id generator. Zero seeds from the wall clock.
	Seed int64
}

// Generator produces simulation requests. It is safe for concurrent use.
type Generator struct {
	mu  sync.Mutex
	rng *mrand.Rand
}

// NewGenerator creates a Generator from the given Config.
func NewGenerator(cfg Config) *Generator {
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	return &Generator{
		rng: mrand.New(mrand.NewSource(seed)),
	}
}

// Next builds one unsigned transaction with a single instruction targeting
// a new program id. It carries no accounts, no data, no fee payer and a
// zero recent blockhash.
func (g *Generator) Next() *solana.Transaction {
	programID := g.randomPublicKey()

	return &solana.Transaction{
		Message: solana.Message{
			AccountKeys: []solana.PublicKey{programID},
			Instructions: []solana.CompiledInstruction{
				{ProgramIDIndex: 0},
			},
		},
	}
}

// Generate writes n requests as JSONL to w and returns a Summary.
func (g *Generator) Generate(w io.Writer, n int) (Summary, error) {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	var summary Summary

	for i := 0; i < n; i++ {
		tx := g.Next()

		wire, err := Encode(tx)
		if err != nil {
			return summary, fmt.Errorf("encode request %d: %w", i, err)
		}

		if err := enc.Encode(Request{
			Index:     i,
			ProgramID: tx.Message.AccountKeys[0].String(),
			Wire:      base64.StdEncoding.EncodeToString(wire),
		}); err != nil {
			return summary, fmt.Errorf("write request %d: %w", i, err)
		}

		summary.Requests++
		summary.WireBytes += len(wire)
	}

	return summary, nil
}

func (g *Generator) randomPublicKey() solana.PublicKey {
	var buf [solana.PublicKeyLength]byte

	g.mu.Lock()
	g.rng.Read(buf[:])
	g.mu.Unlock()

	return solana.PublicKeyFromBytes(buf[:])
}
