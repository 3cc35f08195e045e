package checkout

import "strings"

// Payment method keys chosen in the wizard.
const (
	PaymentCOD  = "cod"
	PaymentBank = "bank"
	PaymentMomo = "momo"
	PaymentCard = "card"
)

// Shipping method keys.
const (
	ShippingStandard = "standard"
	ShippingFast     = "fast"
	ShippingExpress  = "express"
)

// Backend payment method codes.
const (
	BackendCash       = "CASH"
	BackendVNPay      = "VNPAY"
	BackendMomo       = "MOMO"
	BackendCreditCard = "CREDIT_CARD"
)

var paymentCodes = map[string]string{
	PaymentCOD:  BackendCash,
	PaymentBank: BackendVNPay,
	PaymentMomo: BackendMomo,
	PaymentCard: BackendCreditCard,
}

var shippingFees = map[string]int64{
	ShippingStandard: 0,
	ShippingFast:     30000,
	ShippingExpress:  50000,
}

// MapPaymentMethod converts a wizard key to the backend code. Lookup is
// case-insensitive and unknown keys map to CASH.
func MapPaymentMethod(method string) string {
	if code, ok := paymentCodes[strings.ToLower(method)]; ok {
		return code
	}
	return BackendCash
}

// IsRedirectMethod reports whether the method is settled at the external
// gateway. Only bank transfer is; momo and card settle like cash.
func IsRedirectMethod(method string) bool {
	return strings.EqualFold(method, PaymentBank)
}

// ShippingFee in VND. Unknown methods cost the same as standard.
func ShippingFee(method string) int64 {
	return shippingFees[strings.ToLower(method)]
}

// KnownPaymentMethod reports whether method has a backend mapping.
func KnownPaymentMethod(method string) bool {
	_, ok := paymentCodes[strings.ToLower(method)]
	return ok
}

// KnownShippingMethod reports whether method has a fee.
func KnownShippingMethod(method string) bool {
	_, ok := shippingFees[strings.ToLower(method)]
	return ok
}
