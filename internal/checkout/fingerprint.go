package checkout

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/Sung-star/storefront-checkout/internal/cart"
)

// OrderFingerprint identifies what an order is created from: every line
// (product, quantity, unit price) and the draft fields copied into the order.
// Line order does not matter.
func OrderFingerprint(lines []cart.Line, d Draft) string {
	parts := make([]string, 0, len(lines))
	for _, l := range lines {
		parts = append(parts, fmt.Sprintf("%q:%d:%d", l.ProductID, l.Quantity, l.UnitPrice))
	}
	sort.Strings(parts)

	h := sha256.New()
	fmt.Fprintf(h, "lines=%s\n", strings.Join(parts, ","))
	fmt.Fprintf(h, "contact=%q|%q|%q\n", d.Contact.FullName, d.Contact.Email, d.Contact.Phone)
	fmt.Fprintf(h, "shipping=%q|%q|%q|%q|%q|%q\n",
		d.Shipping.Address, d.Shipping.Ward, d.Shipping.District, d.Shipping.City, d.Shipping.Note, d.ShippingMethod)
	return hex.EncodeToString(h.Sum(nil))
}

// CanReuseOrder reports whether the order remembered on d was created from
// exactly these lines and delivery details, so only a new payment link is needed.
func (d Draft) CanReuseOrder(lines []cart.Line) bool {
	return d.CreatedOrderID != "" &&
		d.CreatedOrderTotal == OrderTotal(lines, d.ShippingMethod) &&
		d.CreatedOrderFingerprint == OrderFingerprint(lines, d)
}

func (d *Draft) forgetCreatedOrder() {
	d.CreatedOrderID = ""
	d.CreatedOrderTotal = 0
	d.CreatedOrderFingerprint = ""
}
