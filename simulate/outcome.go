package simulate

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
)

// Outcome classifies the result of one simulation call.
type Outcome int

const (
	// ExpectedFailure means the endpoint rejected the request with one of
	// the expected validation errors.
	ExpectedFailure Outcome = iota
	// UnexpectedSuccess means the endpoint simulated the request.
	UnexpectedSuccess
	// UnexpectedError means the call failed for any other reason.
	UnexpectedError
)

func (o Outcome) String() string {
	switch o {
	case ExpectedFailure:
		return "expected failure"
	case UnexpectedSuccess:
		return "unexpected success"
	case UnexpectedError:
		return "unexpected error"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// CodeInvalidParams is the JSON-RPC code the validator uses for requests
// carrying an invalid transaction.
const CodeInvalidParams = -32602

// ExpectedError describes one acceptable RPC error.
type ExpectedError struct {
	Code            int
	MessageContains string
}

// ExpectedErrors is the set of RPC errors that count as a successful call.
type ExpectedErrors []ExpectedError

// DefaultExpected matches the sanitize rejection every generated request
// produces:
//
//	{code: -32602, message: "invalid transaction: Transaction failed to
//	sanitize accounts offsets correctly"}
var DefaultExpected = ExpectedErrors{
	{Code: CodeInvalidParams, MessageContains: "failed to sanitize"},
}

// Match reports whether an RPC error with code and message is expected.
func (e ExpectedErrors) Match(code int, message string) bool {
	for _, want := range e {
		if want.Code == code && strings.Contains(message, want.MessageContains) {
			return true
		}
	}

	return false
}

// Classify maps the result of a simulation call to an Outcome.
func (e ExpectedErrors) Classify(
	resp *rpc.SimulateTransactionResponse,
	err error,
) Outcome {
	if err == nil {
		if resp != nil && resp.Value != nil && resp.Value.Err != nil {
			return UnexpectedError
		}

		return UnexpectedSuccess
	}

	var rpcErr *jsonrpc.RPCError
	if errors.As(err, &rpcErr) && e.Match(rpcErr.Code, rpcErr.Message) {
		return ExpectedFailure
	}

	return UnexpectedError
}

// Check returns nil when the call ended in an expected failure and an
// *UnexpectedOutcomeError otherwise.
func (e ExpectedErrors) Check(
	resp *rpc.SimulateTransactionResponse,
	err error,
) error {
	outcome := e.Classify(resp, err)
	if outcome == ExpectedFailure {
		return nil
	}

	unexpected := &UnexpectedOutcomeError{Outcome: outcome, Err: err}

	var rpcErr *jsonrpc.RPCError
	if errors.As(err, &rpcErr) {
		unexpected.Code = rpcErr.Code
		unexpected.Message = rpcErr.Message
	}

	if err == nil && resp != nil && resp.Value != nil && resp.Value.Err != nil {
		unexpected.Message = fmt.Sprintf("transaction error: %v", resp.Value.Err)
	}

	return unexpected
}

// UnexpectedOutcomeError reports a simulation call that did not fail the
// way the benchmark requires.
type UnexpectedOutcomeError struct {
	Outcome Outcome
	Code    int
	Message string
	Err     error
}

func (e *UnexpectedOutcomeError) Error() string {
	var b strings.Builder

	b.WriteString(e.Outcome.String())

	if e.Code != 0 {
		fmt.Fprintf(&b, ": code %d", e.Code)
	}

	if e.Message != "" {
		fmt.Fprintf(&b, ": %s", e.Message)
	} else if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}

	return b.String()
}

func (e *UnexpectedOutcomeError) Unwrap() error {
	return e.Err
}

// Caller binds a Simulator, a transaction source and the expected errors
// into one benchmark call.
type Caller struct {
	Simulator Simulator
	Next      func() *solana.Transaction
	Expected  ExpectedErrors
}

// Call builds a fresh transaction, simulates it and checks the outcome.
func (c *Caller) Call(ctx context.Context, _ int) error {
	expected := c.Expected
	if expected == nil {
		expected = DefaultExpected
	}

	resp, err := c.Simulator.SimulateTransaction(ctx, c.Next())

	return expected.Check(resp, err)
}
