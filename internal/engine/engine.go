// Package engine drives the gateway fallback loop for one checkout: it
// resolves the gateway sequence and retry budget, dispatches the payment to
// provider adapters, classifies each failure as retryable or terminal, and
// appends one attempt record per try.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"

	"github.com/yourorg/gateway-fallback/internal/classifier"
	"github.com/yourorg/gateway-fallback/internal/config"
	"github.com/yourorg/gateway-fallback/internal/gateway"
	"github.com/yourorg/gateway-fallback/internal/metrics"
	"github.com/yourorg/gateway-fallback/internal/policy"
	"github.com/yourorg/gateway-fallback/internal/recorder"
)

const (
	// defaultAttemptTimeout bounds one adapter call so a hung provider
	// cannot block the checkout indefinitely.
	defaultAttemptTimeout = 30 * time.Second

	// defaultRetryDelay applies between attempts when the fallback policy
	// does not set one.
	defaultRetryDelay = 1 * time.Second
)

// Breaker gates attempts per gateway. An open breaker makes the engine skip
// the sequence entry without consuming an attempt slot. The done func
// reports the technical outcome of the allowed attempt.
type Breaker interface {
	Allow(t gateway.GatewayType) (done func(success bool), err error)
}

// Result is what the caller receives from one processing call: the final
// resolved response, which gateway handled (or was last attempted for) the
// payment, and the complete ordered attempt history.
type Result struct {
	Response    gateway.GatewayResponse `json:"response"`
	UsedGateway gateway.GatewayType     `json:"used_gateway,omitempty"`
	Attempts    []gateway.AttemptRecord `json:"attempts"`
}

// Engine is the fallback orchestrator. One instance serves one checkout:
// Init loads a fresh configuration snapshot for the payment method, Process
// runs the attempt loop. Instances are not shared across checkouts, so
// concurrent checkouts never race on configuration state.
type Engine struct {
	store    config.Store
	registry *gateway.Registry
	recorder recorder.Recorder

	// Optional collaborators, set before Init.
	Enforcer       *policy.Enforcer
	Breaker        Breaker
	Metrics        *metrics.Set
	AttemptTimeout time.Duration

	snapshot *config.Snapshot
}

// New creates an engine. Store, registry and recorder are required.
func New(store config.Store, registry *gateway.Registry, rec recorder.Recorder) *Engine {
	if store == nil {
		panic("engine: config store cannot be nil")
	}
	if registry == nil {
		panic("engine: adapter registry cannot be nil")
	}
	if rec == nil {
		panic("engine: recorder cannot be nil")
	}
	return &Engine{
		store:          store,
		registry:       registry,
		recorder:       rec,
		AttemptTimeout: defaultAttemptTimeout,
	}
}

// Init loads the gateway configs and fallback policy for the payment
// method. It must be called once before Process.
func (e *Engine) Init(ctx context.Context, method gateway.PaymentMethod) error {
	snap, err := config.Load(ctx, e.store, method)
	if err != nil {
		return fmt.Errorf("engine: %w", err)
	}
	e.snapshot = snap
	return nil
}

// Process settles one payment request against the resolved gateway
// sequence. It always returns a fully-resolved Result; the error return is
// reserved for caller mistakes (missing Init, method mismatch), never for
// gateway failures.
func (e *Engine) Process(ctx context.Context, req gateway.PaymentRequest) (Result, error) {
	tracer := otel.Tracer("engine")
	ctx, span := tracer.Start(ctx, "Engine.Process")
	defer span.End()

	if e.snapshot == nil {
		return Result{}, fmt.Errorf("engine: Process called before Init")
	}
	if req.Method() != e.snapshot.Method {
		return Result{}, fmt.Errorf("engine: request method %q does not match initialized method %q", req.Method(), e.snapshot.Method)
	}

	sequence := ResolveSequence(e.snapshot)
	maxAttempts := len(sequence)
	retryDelay := defaultRetryDelay
	if p := e.snapshot.Policy; p != nil {
		if p.MaxAttempts > 0 {
			maxAttempts = p.MaxAttempts
		}
		if p.RetryDelay > 0 {
			retryDelay = p.RetryDelay
		}
	}

	var (
		attempts      []gateway.AttemptRecord
		lastResponse  gateway.GatewayResponse
		lastGateway   gateway.GatewayType
		prevGateway   gateway.GatewayType
		attemptNumber int
	)

	for i, gw := range sequence {
		if attemptNumber >= maxAttempts {
			break
		}

		cfg, ok := e.snapshot.ByType[gw]
		if !ok || !cfg.Active {
			// Inactive or missing entries do not consume an attempt slot.
			log.Printf("engine: skipping gateway %s for sale %s: not active", gw, req.SaleID)
			continue
		}
		adapter, ok := e.registry.Lookup(gw)
		if !ok {
			log.Printf("engine: skipping gateway %s for sale %s: no adapter registered", gw, req.SaleID)
			continue
		}

		var done func(bool)
		if e.Breaker != nil {
			d, err := e.Breaker.Allow(gw)
			if err != nil {
				log.Printf("engine: skipping gateway %s for sale %s: circuit open", gw, req.SaleID)
				continue
			}
			done = d
		}

		attemptNumber++
		isFallback := attemptNumber > 1
		rec := gateway.AttemptRecord{
			ID:          uuid.NewString(),
			SaleID:      req.SaleID,
			Gateway:     gw,
			Method:      req.Method(),
			AmountCents: req.AmountCents,
			Number:      attemptNumber,
			IsFallback:  isFallback,
			Status:      gateway.AttemptPending,
			CreatedAt:   time.Now().UTC(),
		}
		if isFallback {
			rec.FallbackFrom = prevGateway
		}

		started := time.Now()
		resp := e.dispatch(ctx, adapter, cfg, req)
		elapsed := time.Since(started)

		lastResponse = resp
		lastGateway = gw

		retryable := classifier.Retryable(resp.ErrorCode)
		if done != nil {
			// Business declines say nothing about provider health; only
			// technical failures count against the breaker.
			done(resp.Success || !retryable)
		}

		if resp.Success {
			rec.Status = gateway.AttemptSuccess
		} else {
			rec.Status = gateway.AttemptFailed
		}
		rec.TransactionID = resp.TransactionID
		rec.ErrorCode = resp.ErrorCode
		rec.ErrorMessage = resp.ErrorMessage
		rec.Raw = resp.Raw
		e.record(ctx, rec)
		attempts = append(attempts, rec)
		e.Metrics.ObserveAttempt(gw, rec.Status, isFallback, elapsed)

		if resp.Success {
			e.Metrics.ObserveOutcome("success")
			return Result{Response: resp, UsedGateway: gw, Attempts: attempts}, nil
		}

		decision := e.Enforcer.Evaluate(policy.Params{
			AttemptNumber: attemptNumber,
			ErrorCode:     resp.ErrorCode,
			Retryable:     retryable,
			Gateway:       gw,
			Method:        req.Method(),
			AmountCents:   req.AmountCents,
		})
		if !decision.AllowRetry {
			// Terminal failure: fallback never continues past a business
			// decline, which could otherwise create duplicate holds.
			log.Printf("engine: sale %s stopping after attempt %d on %s: %s", req.SaleID, attemptNumber, gw, decision.Reason)
			e.Metrics.ObserveOutcome("terminal")
			return Result{Response: resp, UsedGateway: gw, Attempts: attempts}, nil
		}

		prevGateway = gw
		if i < len(sequence)-1 && attemptNumber < maxAttempts {
			if !wait(ctx, retryDelay) {
				break
			}
		}
	}

	if attemptNumber == 0 {
		e.Metrics.ObserveOutcome("no_gateway")
		resp := gateway.GatewayResponse{
			Success:      false,
			ErrorCode:    gateway.ErrNoGateway,
			ErrorMessage: fmt.Sprintf("no active gateway available for payment method %s", e.snapshot.Method),
		}
		var nominal gateway.GatewayType
		if len(sequence) > 0 {
			nominal = sequence[0]
		}
		return Result{Response: resp, UsedGateway: nominal, Attempts: attempts}, nil
	}

	e.Metrics.ObserveOutcome("exhausted")
	return Result{Response: lastResponse, UsedGateway: lastGateway, Attempts: attempts}, nil
}

// dispatch is the failure boundary around one adapter call. Transport
// errors, decode errors and panics all come back as a synthetic failed
// response; nothing an adapter does may propagate to the caller.
func (e *Engine) dispatch(ctx context.Context, a gateway.Adapter, cfg gateway.GatewayConfig, req gateway.PaymentRequest) (resp gateway.GatewayResponse) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("engine: adapter %s panicked for sale %s: %v", a.Type(), req.SaleID, r)
			resp = gateway.GatewayResponse{
				Success:      false,
				ErrorCode:    gateway.ErrException,
				ErrorMessage: fmt.Sprintf("adapter panic: %v", r),
			}
		}
	}()

	actx := ctx
	if e.AttemptTimeout > 0 {
		var cancel context.CancelFunc
		actx, cancel = context.WithTimeout(ctx, e.AttemptTimeout)
		defer cancel()
	}

	r, err := a.ProcessPayment(actx, cfg, req)
	if err != nil {
		code := gateway.ErrException
		if errors.Is(err, context.DeadlineExceeded) {
			code = gateway.ErrTimeout
		}
		log.Printf("engine: adapter %s failed for sale %s: %v", a.Type(), req.SaleID, err)
		return gateway.GatewayResponse{
			Success:      false,
			ErrorCode:    code,
			ErrorMessage: err.Error(),
		}
	}
	return r
}

// record persists one attempt record best-effort. A failed write is logged
// and suppressed: a recording fault must never abort an in-flight payment
// or trigger an extra charge through a retry.
func (e *Engine) record(ctx context.Context, rec gateway.AttemptRecord) {
	if err := e.recorder.Record(ctx, rec); err != nil {
		log.Printf("engine: failed to persist attempt %d for sale %s: %v", rec.Number, rec.SaleID, err)
		e.Metrics.ObserveRecorderFailure()
	}
}

// wait sleeps for the inter-attempt delay, returning false when the context
// is cancelled first.
func wait(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
