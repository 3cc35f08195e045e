// Package payment reconciles shoppers returning from the payment gateway.
package payment

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/Sung-star/storefront-checkout/internal/backend"
	"github.com/Sung-star/storefront-checkout/internal/cart"
	"github.com/Sung-star/storefront-checkout/internal/events"
	"github.com/Sung-star/storefront-checkout/internal/idempotency"
	"github.com/Sung-star/storefront-checkout/internal/logger"
	"github.com/Sung-star/storefront-checkout/internal/session"
)

// Gateway return parameters read directly.
const (
	ParamSecureHash   = "vnp_SecureHash"
	ParamResponseCode = "vnp_ResponseCode"
	ParamTxnRef       = "vnp_TxnRef"
	ParamAmount       = "vnp_Amount"

	responseCodeOK = "00"
)

// Outcome states
const (
	StateSuccess   = "SUCCESS"
	StateFailure   = "FAILURE"
	StateVerifying = "VERIFYING"
)

const (
	MsgInvalidReturn = "Invalid payment return data"
	MsgCancelled     = "The transaction was cancelled or failed at the payment gateway."
	MsgSignature     = "Could not verify the payment signature."
	MsgVerifying     = "Your payment is being verified."
)

// Action is a follow-up the shopper can take.
type Action struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

var (
	successActions = []Action{{Name: "orders", Path: "/orders"}, {Name: "home", Path: "/"}}
	failureActions = []Action{{Name: "retry", Path: "/checkout"}, {Name: "abandon", Path: "/"}}
)

// Outcome is the reconciliation result shown to the shopper.
type Outcome struct {
	State    string   `json:"state"`
	OrderRef string   `json:"orderRef,omitempty"`
	Amount   int64    `json:"amount,omitempty"`
	Message  string   `json:"message,omitempty"`
	Actions  []Action `json:"actions,omitempty"`
	Replayed bool     `json:"replayed,omitempty"`
}

// Verifier checks gateway parameters with the backend.
type Verifier interface {
	VerifyPayment(ctx context.Context, token string, params url.Values) error
}

// CartClearer empties a session cart.
type CartClearer interface {
	ClearCart(ctx context.Context, sessionID string) cart.Cart
}

// DraftDiscarder drops a session checkout draft.
type DraftDiscarder interface {
	Discard(ctx context.Context, sessionID string) error
}

// RecordStore persists at-most-once records.
type RecordStore interface {
	CreateIfNotExists(ctx context.Context, key, reference string) (bool, error)
	Get(ctx context.Context, key string) (*idempotency.Record, error)
	Reclaim(ctx context.Context, key string) (bool, error)
	MarkDone(ctx context.Context, key, responseBody string, responseStatus int) error
	MarkFailed(ctx context.Context, key, note string) error
}

// Reconciler verifies a gateway return at most once per transaction.
type Reconciler struct {
	verifier Verifier
	carts    CartClearer
	drafts   DraftDiscarder
	records  RecordStore
	events   events.Publisher
	group    singleflight.Group
	log      *zap.Logger
	nowFunc  func() time.Time
}

// NewReconciler wires a reconciler. records and pub may be nil.
func NewReconciler(v Verifier, carts CartClearer, drafts DraftDiscarder, records RecordStore, pub events.Publisher, log *zap.Logger) *Reconciler {
	if pub == nil {
		pub = events.Nop{}
	}
	return &Reconciler{
		verifier: v,
		carts:    carts,
		drafts:   drafts,
		records:  records,
		events:   pub,
		log:      logger.OrNop(log),
		nowFunc:  time.Now,
	}
}

// Reconcile verifies the gateway return in query for sess. The returned
// error is non-nil only for a backend 401, alongside a FAILURE outcome.
func (r *Reconciler) Reconcile(ctx context.Context, sess session.Session, query url.Values) (Outcome, error) {
	hash := query.Get(ParamSecureHash)
	if hash == "" || query.Get(ParamResponseCode) == "" {
		return failure(MsgInvalidReturn), nil
	}

	key := query.Get(ParamTxnRef) + "#" + hash
	type result struct {
		out Outcome
		err error
	}
	v, _, _ := r.group.Do(sess.ID+"|"+key, func() (any, error) {
		out, err := r.reconcileOnce(ctx, sess, key, query)
		return result{out, err}, nil
	})
	res := v.(result)
	return res.out, res.err
}

func (r *Reconciler) reconcileOnce(ctx context.Context, sess session.Session, key string, query url.Values) (Outcome, error) {
	log := r.log.With(zap.String("session_id", sess.ID), zap.String("txn_ref", query.Get(ParamTxnRef)))

	tracked := r.records != nil
	if tracked {
		proceed, replay, err := r.claim(ctx, key, query.Get(ParamTxnRef))
		switch {
		case err != nil:
			// verification is safe to repeat at the backend; run untracked
			log.Warn("idempotency store unavailable", zap.Error(err))
			tracked = false
		case !proceed:
			return replay, nil
		}
	}

	err := r.verifier.VerifyPayment(ctx, sess.AuthToken, query)
	var out Outcome
	switch {
	case err == nil:
		r.carts.ClearCart(ctx, sess.ID)
		if derr := r.drafts.Discard(ctx, sess.ID); derr != nil {
			log.Warn("discard draft failed", zap.Error(derr))
		}
		out = Outcome{
			State:    StateSuccess,
			OrderRef: query.Get(ParamTxnRef),
			Amount:   gatewayAmount(query.Get(ParamAmount)),
			Actions:  successActions,
		}
	case query.Get(ParamResponseCode) != responseCodeOK:
		out = failure(MsgCancelled)
	default:
		msg := backend.MessageOf(err)
		if msg == "" {
			msg = MsgSignature
		}
		out = failure(msg)
	}

	if tracked {
		if isVerdict(err) {
			r.finish(ctx, log, key, out)
		} else if merr := r.records.MarkFailed(ctx, key, err.Error()); merr != nil {
			log.Error("mark reconciliation failed", zap.Error(merr))
		}
	}
	if err != nil {
		log.Info("payment verification failed", zap.Error(err))
	}

	r.publish(ctx, log, sess.ID, out)
	if errors.Is(err, backend.ErrUnauthorized) {
		return out, err
	}
	return out, nil
}

// claim creates or reclaims the record. proceed is false when the stored
// outcome (or VERIFYING) should be returned instead.
func (r *Reconciler) claim(ctx context.Context, key, ref string) (proceed bool, replay Outcome, err error) {
	created, err := r.records.CreateIfNotExists(ctx, key, ref)
	if err != nil {
		return false, Outcome{}, err
	}
	if created {
		return true, Outcome{}, nil
	}

	rec, err := r.records.Get(ctx, key)
	if err != nil {
		return false, Outcome{}, err
	}
	if rec == nil {
		// expired between the put and the get
		return false, verifying(), nil
	}
	switch rec.Status {
	case idempotency.StatusDone:
		var out Outcome
		if err := json.Unmarshal([]byte(rec.ResponseBody), &out); err != nil {
			return false, Outcome{}, err
		}
		out.Replayed = true
		return false, out, nil
	case idempotency.StatusFailed:
		ok, err := r.records.Reclaim(ctx, key)
		if err != nil {
			return false, Outcome{}, err
		}
		if ok {
			return true, Outcome{}, nil
		}
	}
	return false, verifying(), nil
}

func (r *Reconciler) finish(ctx context.Context, log *zap.Logger, key string, out Outcome) {
	body, err := json.Marshal(out)
	if err != nil {
		log.Error("marshal outcome failed", zap.Error(err))
		return
	}
	status := http.StatusOK
	if out.State != StateSuccess {
		status = http.StatusPaymentRequired
	}
	if err := r.records.MarkDone(ctx, key, string(body), status); err != nil {
		log.Error("store reconciliation outcome failed", zap.Error(err))
	}
}

func (r *Reconciler) publish(ctx context.Context, log *zap.Logger, sessionID string, out Outcome) {
	err := r.events.Publish(ctx, events.CheckoutEvent{
		Event:      events.PaymentReconciled,
		SessionID:  sessionID,
		OrderID:    out.OrderRef,
		Amount:     out.Amount,
		State:      out.State,
		OccurredAt: r.nowFunc().UTC(),
	})
	if err != nil {
		log.Warn("publish checkout event failed", zap.Error(err))
	}
}

// isVerdict reports whether err is an answer about the payment rather than a
// failure to ask: nil or a 4xx other than 401.
func isVerdict(err error) bool {
	if err == nil {
		return true
	}
	var apiErr *backend.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Status >= 400 && apiErr.Status < 500 && apiErr.Status != http.StatusUnauthorized
}

// gatewayAmount converts the gateway amount (VND x 100) to VND.
func gatewayAmount(raw string) int64 {
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0
	}
	return n / 100
}

func failure(msg string) Outcome {
	return Outcome{State: StateFailure, Message: msg, Actions: failureActions}
}

func verifying() Outcome {
	return Outcome{State: StateVerifying, Message: MsgVerifying}
}
