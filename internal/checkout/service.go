// Package checkout drives the four step checkout wizard of a session and
// hands confirmed drafts to an OrderPlacer.
package checkout

import (
	"context"
	"errors"

	validatorv10 "github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Sung-star/storefront-checkout/internal/backend"
	"github.com/Sung-star/storefront-checkout/internal/cart"
	"github.com/Sung-star/storefront-checkout/internal/keylock"
	"github.com/Sung-star/storefront-checkout/internal/logger"
	"github.com/Sung-star/storefront-checkout/internal/session"
	"github.com/Sung-star/storefront-checkout/internal/validation"
)

// PlaceRequest is everything an OrderPlacer needs for one submission.
type PlaceRequest struct {
	SessionID string
	AuthToken string
	Lines     []cart.Line
	Draft     Draft
}

// Placement is a successful submission. RedirectURL is set for gateway
// payments; Reused is true when an order created earlier was used.
type Placement struct {
	OrderID     string
	RedirectURL string
	Reused      bool
}

// OrderPlacer submits an order. Failures are *SubmitError.
type OrderPlacer interface {
	Place(ctx context.Context, req PlaceRequest) (Placement, error)
}

// AddressBook lists saved addresses used to prefill a new draft.
type AddressBook interface {
	GetUserAddresses(ctx context.Context, token, userID string) ([]backend.Address, error)
}

// Toast levels
const (
	ToastSuccess = "success"
	ToastWarning = "warning"
	ToastError   = "error"
)

// Toast is a short message for the shopper.
type Toast struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

// Summary prices the cart for the current draft.
type Summary struct {
	Lines       []cart.Line `json:"lines"`
	ItemCount   int         `json:"itemCount"`
	Subtotal    int64       `json:"subtotal"`
	ShippingFee int64       `json:"shippingFee"`
	Total       int64       `json:"total"`
}

// View is the result of every checkout operation.
type View struct {
	Draft       *Draft  `json:"draft"`
	StepName    string  `json:"stepName"`
	Summary     Summary `json:"summary"`
	Redirect    string  `json:"redirect,omitempty"`
	RedirectURL string  `json:"redirect_url,omitempty"`
	Toast       *Toast  `json:"toast,omitempty"`
}

// CartPath is where the shopper is sent when checkout has nothing to buy.
const CartPath = "/cart"

// OrderTotal is the cart total plus the shipping fee.
func OrderTotal(lines []cart.Line, shippingMethod string) int64 {
	return cart.Cart{Lines: lines}.Total() + ShippingFee(shippingMethod)
}

// Service runs the wizard. Operations on one session are serialized and at
// most one placement per session runs at a time.
type Service struct {
	carts     *cart.Service
	drafts    *DraftStore
	placer    OrderPlacer
	addresses AddressBook
	validate  *validatorv10.Validate
	locks     *keylock.Mutex
	busy      *keylock.Flags
	newKey    func() string
	log       *zap.Logger
}

// NewService wires the wizard. addresses may be nil to skip address prefill.
func NewService(carts *cart.Service, drafts *DraftStore, placer OrderPlacer, addresses AddressBook, log *zap.Logger) *Service {
	return &Service{
		carts:     carts,
		drafts:    drafts,
		placer:    placer,
		addresses: addresses,
		validate:  validation.New(),
		locks:     keylock.New(),
		busy:      keylock.NewFlags(),
		newKey:    uuid.NewString,
		log:       logger.OrNop(log),
	}
}

// Start resumes the session's open draft or creates a prefilled one. A
// confirmed draft is replaced.
func (s *Service) Start(ctx context.Context, sess session.Session) (*View, error) {
	return s.run(ctx, sess, true, func(d *Draft, c cart.Cart) (*View, error) {
		return s.view(d, c), nil
	})
}

// Get returns the current draft, creating one when none exists.
func (s *Service) Get(ctx context.Context, sess session.Session) (*View, error) {
	return s.run(ctx, sess, false, func(d *Draft, c cart.Cart) (*View, error) {
		return s.view(d, c), nil
	})
}

// Update edits draft fields and clears their errors.
func (s *Service) Update(ctx context.Context, sess session.Session, p Patch) (*View, error) {
	return s.run(ctx, sess, false, func(d *Draft, c cart.Cart) (*View, error) {
		if d.Step.IsTerminal() {
			return s.view(d, c), ErrInvalidTransition
		}
		if err := d.Apply(p); err != nil {
			return s.view(d, c), err
		}
		s.save(ctx, sess.ID, d)
		return s.view(d, c), nil
	})
}

// Next validates the address step or advances from payment to review.
func (s *Service) Next(ctx context.Context, sess session.Session) (*View, error) {
	return s.run(ctx, sess, false, func(d *Draft, c cart.Cart) (*View, error) {
		switch d.Step {
		case StepAddress:
			if errs := validateAddress(s.validate, d); errs != nil {
				d.FieldErrors = errs
				s.save(ctx, sess.ID, d)
				v := s.view(d, c)
				v.Toast = &Toast{Level: ToastWarning, Message: "Please fill in all required information"}
				return v, &ValidationError{Fields: errs}
			}
			d.FieldErrors = nil
			d.Step = StepPaymentShipping
		case StepPaymentShipping:
			d.Step = StepReview
		default:
			return s.view(d, c), ErrInvalidTransition
		}
		s.save(ctx, sess.ID, d)
		return s.view(d, c), nil
	})
}

// Back moves from review to payment or from payment to address, keeping all values.
func (s *Service) Back(ctx context.Context, sess session.Session) (*View, error) {
	return s.run(ctx, sess, false, func(d *Draft, c cart.Cart) (*View, error) {
		switch d.Step {
		case StepReview:
			d.Step = StepPaymentShipping
		case StepPaymentShipping:
			d.Step = StepAddress
		default:
			return s.view(d, c), ErrInvalidTransition
		}
		s.save(ctx, sess.ID, d)
		return s.view(d, c), nil
	})
}

// PlaceOrder submits the reviewed draft. Cash-like payments confirm at once
// and clear the cart; gateway payments return the redirect URL and stay on review.
func (s *Service) PlaceOrder(ctx context.Context, sess session.Session) (*View, error) {
	release, ok := s.busy.TryAcquire(sess.ID)
	if !ok {
		return nil, ErrSubmitInProgress
	}
	defer release()

	return s.run(ctx, sess, false, func(d *Draft, c cart.Cart) (*View, error) {
		if d.Step != StepReview {
			return s.view(d, c), ErrInvalidTransition
		}
		if missing := missingForPlacement(d); missing != nil {
			d.Step = StepAddress
			d.FieldErrors = missing
			s.save(ctx, sess.ID, d)
			v := s.view(d, c)
			v.Toast = &Toast{Level: ToastError, Message: "Please check your information"}
			return v, &ValidationError{Fields: missing}
		}

		clamped, changed := s.carts.ClampToStock(ctx, sess.ID)
		if changed {
			if clamped.IsEmpty() {
				d.Step = StepAddress
				d.forgetCreatedOrder()
				s.save(ctx, sess.ID, d)
				v := s.view(d, clamped)
				v.Redirect = CartPath
				v.Toast = &Toast{Level: ToastWarning, Message: "The products in your cart are out of stock"}
				return v, ErrStockAdjusted
			}
			v := s.view(d, clamped)
			v.Toast = &Toast{Level: ToastWarning, Message: "Some quantities were reduced to the available stock. Please review your order"}
			return v, ErrStockAdjusted
		}
		c = clamped

		total := OrderTotal(c.Lines, d.ShippingMethod)
		fingerprint := OrderFingerprint(c.Lines, *d)
		placement, err := s.placer.Place(ctx, PlaceRequest{
			SessionID: sess.ID,
			AuthToken: sess.AuthToken,
			Lines:     c.Lines,
			Draft:     *d,
		})
		if err != nil {
			v := s.view(d, c)
			var se *SubmitError
			if errors.As(err, &se) {
				if se.OrderID != "" {
					s.rememberOrder(d, se.OrderID, total, fingerprint)
					s.save(ctx, sess.ID, d)
				}
				v.Toast = &Toast{Level: ToastError, Message: se.Message}
			}
			s.log.Warn("place order failed", zap.String("session_id", sess.ID), zap.Error(err))
			return v, err
		}

		if placement.RedirectURL != "" {
			s.rememberOrder(d, placement.OrderID, total, fingerprint)
			s.save(ctx, sess.ID, d)
			v := s.view(d, c)
			v.RedirectURL = placement.RedirectURL
			return v, nil
		}

		cleared := s.carts.ClearCart(ctx, sess.ID)
		d.Step = StepConfirmed
		d.FieldErrors = nil
		d.ConfirmedOrderID = placement.OrderID
		d.ConfirmedTotal = total
		d.forgetCreatedOrder()
		d.SubmissionKey = s.newKey()
		s.save(ctx, sess.ID, d)

		v := s.view(d, cleared)
		v.Toast = &Toast{Level: ToastSuccess, Message: "Order placed successfully!"}
		return v, nil
	})
}

// Discard drops the session's draft.
func (s *Service) Discard(ctx context.Context, sessionID string) error {
	unlock := s.locks.Lock(sessionID)
	defer unlock()
	return s.drafts.Delete(ctx, sessionID)
}

// rememberOrder records a created order and rotates the submission key so a
// new order is never deduplicated against it.
func (s *Service) rememberOrder(d *Draft, orderID string, total int64, fingerprint string) {
	if d.CreatedOrderID != orderID {
		d.SubmissionKey = s.newKey()
	}
	d.CreatedOrderID = orderID
	d.CreatedOrderTotal = total
	d.CreatedOrderFingerprint = fingerprint
}

// run loads the draft and cart under the session lock and applies the empty
// cart guard before fn.
func (s *Service) run(ctx context.Context, sess session.Session, fresh bool, fn func(d *Draft, c cart.Cart) (*View, error)) (*View, error) {
	unlock := s.locks.Lock(sess.ID)
	defer unlock()

	d := s.drafts.Load(ctx, sess.ID)
	if d == nil || (fresh && d.Step.IsTerminal()) {
		d = NewDraft(s.newKey())
		s.prefill(ctx, sess, d)
		s.save(ctx, sess.ID, d)
	}

	c := s.carts.Get(ctx, sess.ID)
	if c.IsEmpty() && !d.Step.IsTerminal() {
		if d.Step != StepAddress || d.FieldErrors != nil || d.CreatedOrderID != "" {
			d.Step = StepAddress
			d.FieldErrors = nil
			d.forgetCreatedOrder()
			s.save(ctx, sess.ID, d)
		}
		v := s.view(d, c)
		v.Redirect = CartPath
		return v, nil
	}
	return fn(d, c)
}

// prefill copies the profile name and email (only for profiles with an
// email) and the default saved address into a new draft.
func (s *Service) prefill(ctx context.Context, sess session.Session, d *Draft) {
	p := sess.Profile
	if p == nil {
		return
	}
	if p.Email != "" {
		d.Contact.FullName = p.DisplayName()
		d.Contact.Email = p.Email
	}
	if p.ID == "" || s.addresses == nil || !sess.LoggedIn() {
		return
	}
	addrs, err := s.addresses.GetUserAddresses(ctx, sess.AuthToken, string(p.ID))
	if err != nil {
		s.log.Debug("default address lookup failed", zap.String("session_id", sess.ID), zap.Error(err))
		return
	}
	a, ok := backend.DefaultAddress(addrs)
	if !ok {
		return
	}
	d.Shipping.Address = a.DetailAddress
	d.Shipping.Ward = a.Ward
	d.Shipping.District = a.District
	d.Shipping.City = a.Province
	if a.Phone != "" {
		d.Contact.Phone = a.Phone
	}
}

func (s *Service) save(ctx context.Context, sessionID string, d *Draft) {
	if err := s.drafts.Save(ctx, sessionID, d); err != nil {
		s.log.Error("save draft failed", zap.String("session_id", sessionID), zap.Error(err))
	}
}

func (s *Service) view(d *Draft, c cart.Cart) *View {
	lines := c.Lines
	if lines == nil {
		lines = []cart.Line{}
	}
	sum := Summary{
		Lines:       lines,
		ItemCount:   c.ItemCount(),
		Subtotal:    c.Total(),
		ShippingFee: ShippingFee(d.ShippingMethod),
	}
	sum.Total = sum.Subtotal + sum.ShippingFee
	if d.Step.IsTerminal() {
		sum.Total = d.ConfirmedTotal
	}
	return &View{Draft: d, StepName: d.Step.String(), Summary: sum}
}
