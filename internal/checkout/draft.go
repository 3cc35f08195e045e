package checkout

import (
	"strings"

	validatorv10 "github.com/go-playground/validator/v10"

	"github.com/Sung-star/storefront-checkout/internal/validation"
)

// Contact is the buyer block of the address step.
type Contact struct {
	FullName string `json:"fullName"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
}

// Shipping is the delivery block of the address step.
type Shipping struct {
	Address  string `json:"address"`
	City     string `json:"city"`
	District string `json:"district"`
	Ward     string `json:"ward"`
	Note     string `json:"note"`
}

// Draft is the in-progress checkout of one session.
type Draft struct {
	Step           Step              `json:"step"`
	Contact        Contact           `json:"contact"`
	Shipping       Shipping          `json:"shipping"`
	PaymentMethod  string            `json:"paymentMethod"`
	ShippingMethod string            `json:"shippingMethod"`
	FieldErrors    map[string]string `json:"fieldErrors,omitempty"`

	// Set once an order exists but its payment link could not be used, so a
	// retry for the same cart and delivery details only asks for a new link.
	CreatedOrderID          string `json:"createdOrderId,omitempty"`
	CreatedOrderTotal       int64  `json:"createdOrderTotal,omitempty"`
	CreatedOrderFingerprint string `json:"createdOrderFingerprint,omitempty"`

	ConfirmedOrderID string `json:"confirmedOrderId,omitempty"`
	ConfirmedTotal   int64  `json:"confirmedTotal,omitempty"`

	// SubmissionKey is sent as Idempotency-Key on order creation.
	SubmissionKey string `json:"submissionKey"`
}

// NewDraft returns an empty draft on the address step with cash on delivery
// and standard shipping.
func NewDraft(submissionKey string) *Draft {
	return &Draft{
		Step:           StepAddress,
		PaymentMethod:  PaymentCOD,
		ShippingMethod: ShippingStandard,
		SubmissionKey:  submissionKey,
	}
}

// Patch is a partial edit; nil fields are left alone.
type Patch struct {
	FullName       *string `json:"fullName"`
	Email          *string `json:"email"`
	Phone          *string `json:"phone"`
	Address        *string `json:"address"`
	City           *string `json:"city"`
	District       *string `json:"district"`
	Ward           *string `json:"ward"`
	Note           *string `json:"note"`
	PaymentMethod  *string `json:"paymentMethod"`
	ShippingMethod *string `json:"shippingMethod"`
}

// Apply writes p into d and clears the error of every edited field.
// Unknown payment or shipping methods reject the whole patch.
func (d *Draft) Apply(p Patch) error {
	bad := map[string]string{}
	if p.PaymentMethod != nil && !KnownPaymentMethod(*p.PaymentMethod) {
		bad["paymentMethod"] = "Unsupported payment method"
	}
	if p.ShippingMethod != nil && !KnownShippingMethod(*p.ShippingMethod) {
		bad["shippingMethod"] = "Unsupported shipping method"
	}
	if len(bad) > 0 {
		return &ValidationError{Fields: bad}
	}

	set := func(name string, dst *string, v *string) {
		if v == nil {
			return
		}
		*dst = *v
		delete(d.FieldErrors, name)
	}
	set("fullName", &d.Contact.FullName, p.FullName)
	set("email", &d.Contact.Email, p.Email)
	set("phone", &d.Contact.Phone, p.Phone)
	set("address", &d.Shipping.Address, p.Address)
	set("city", &d.Shipping.City, p.City)
	set("district", &d.Shipping.District, p.District)
	set("ward", &d.Shipping.Ward, p.Ward)
	set("note", &d.Shipping.Note, p.Note)
	if p.PaymentMethod != nil {
		lower := strings.ToLower(*p.PaymentMethod)
		set("paymentMethod", &d.PaymentMethod, &lower)
	}
	if p.ShippingMethod != nil {
		lower := strings.ToLower(*p.ShippingMethod)
		set("shippingMethod", &d.ShippingMethod, &lower)
	}
	if len(d.FieldErrors) == 0 {
		d.FieldErrors = nil
	}
	return nil
}

// addressStep holds the fields checked before leaving the address step.
type addressStep struct {
	FullName string `json:"fullName" validate:"notblank"`
	Email    string `json:"email" validate:"notblank,storefront_email"`
	Phone    string `json:"phone" validate:"notblank,vn_phone"`
	Address  string `json:"address" validate:"notblank"`
	City     string `json:"city" validate:"notblank"`
}

var addressMessages = map[string]string{
	"fullName.notblank":      "Please enter your full name",
	"email.notblank":         "Please enter your email",
	"email.storefront_email": "Email is invalid",
	"phone.notblank":         "Please enter your phone number",
	"phone.vn_phone":         "Phone number is invalid",
	"address.notblank":       "Please enter your address",
	"city.notblank":          "Please choose a city",
}

// validateAddress returns field errors for the address step, or nil.
func validateAddress(v *validatorv10.Validate, d *Draft) map[string]string {
	err := v.Struct(addressStep{
		FullName: d.Contact.FullName,
		Email:    d.Contact.Email,
		Phone:    d.Contact.Phone,
		Address:  d.Shipping.Address,
		City:     d.Shipping.City,
	})
	if err == nil {
		return nil
	}
	return validation.FieldErrors(err, addressMessages)
}

// missingForPlacement lists required contact fields that are blank.
func missingForPlacement(d *Draft) map[string]string {
	missing := map[string]string{}
	check := func(name, v string) {
		if !validation.IsNotBlank(v) {
			missing[name] = addressMessages[name+".notblank"]
		}
	}
	check("fullName", d.Contact.FullName)
	check("email", d.Contact.Email)
	check("phone", d.Contact.Phone)
	check("address", d.Shipping.Address)
	if len(missing) == 0 {
		return nil
	}
	return missing
}
