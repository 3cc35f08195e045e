package orders

import (
	"encoding/json"
	"strings"

	"github.com/Sung-star/storefront-checkout/internal/cart"
	"github.com/Sung-star/storefront-checkout/internal/checkout"
)

// Payload versions. V2 carries product details per item; V1 only ids and
// quantities.
const (
	PayloadV1 = 1
	PayloadV2 = 2
)

// PaymentStatusUnpaid is the status of every new order.
const PaymentStatusUnpaid = "UNPAID"

// Payload is the body of POST /orders.
type Payload struct {
	CustomerName    string  `json:"customerName"`
	CustomerEmail   string  `json:"customerEmail"`
	CustomerPhone   string  `json:"customerPhone"`
	ShippingAddress string  `json:"shippingAddress"`
	PaymentMethod   string  `json:"paymentMethod"`
	PaymentStatus   string  `json:"paymentStatus"`
	Note            *string `json:"note"`
	Items           any     `json:"items"`
	TotalAmount     int64   `json:"totalAmount"`
}

// ItemV1 is a minimal order line.
type ItemV1 struct {
	ProductID ProductRef `json:"productId"`
	Quantity  int        `json:"quantity"`
}

// ItemV2 is a full order line.
type ItemV2 struct {
	ProductID    ProductRef `json:"productId"`
	ProductName  string     `json:"productName"`
	ProductPrice int64      `json:"productPrice"`
	Quantity     int        `json:"quantity"`
	Subtotal     int64      `json:"subtotal"`
	ImageURL     string     `json:"imageUrl"`
}

// ProductRef is emitted as a JSON number when the id is a canonical integer,
// since the catalog hands out numeric ids, and as a string otherwise. Ids
// with a leading zero stay strings because JSON numbers cannot carry one.
type ProductRef string

func (r ProductRef) MarshalJSON() ([]byte, error) {
	s := string(r)
	if s != "" && strings.Trim(s, "0123456789") == "" && (s == "0" || s[0] != '0') {
		return []byte(s), nil
	}
	return json.Marshal(s)
}

// BuildPayload assembles the order body for lines and d.
func BuildPayload(version int, assetBaseURL string, lines []cart.Line, d checkout.Draft) Payload {
	p := Payload{
		CustomerName:    strings.TrimSpace(d.Contact.FullName),
		CustomerEmail:   strings.TrimSpace(d.Contact.Email),
		CustomerPhone:   strings.TrimSpace(d.Contact.Phone),
		ShippingAddress: JoinAddress(d.Shipping),
		PaymentMethod:   checkout.MapPaymentMethod(d.PaymentMethod),
		PaymentStatus:   PaymentStatusUnpaid,
		TotalAmount:     checkout.OrderTotal(lines, d.ShippingMethod),
	}
	if note := strings.TrimSpace(d.Shipping.Note); note != "" {
		p.Note = &note
	}

	if version == PayloadV1 {
		items := make([]ItemV1, 0, len(lines))
		for _, l := range lines {
			items = append(items, ItemV1{ProductID: ProductRef(l.ProductID), Quantity: l.Quantity})
		}
		p.Items = items
		return p
	}

	items := make([]ItemV2, 0, len(lines))
	for _, l := range lines {
		items = append(items, ItemV2{
			ProductID:    ProductRef(l.ProductID),
			ProductName:  l.Name,
			ProductPrice: l.UnitPrice,
			Quantity:     l.Quantity,
			Subtotal:     l.Subtotal(),
			ImageURL:     AbsoluteImageURL(assetBaseURL, l.ImageRef),
		})
	}
	p.Items = items
	return p
}

// JoinAddress joins the non-empty trimmed parts address, ward, district, city with ", ".
func JoinAddress(s checkout.Shipping) string {
	parts := make([]string, 0, 4)
	for _, v := range []string{s.Address, s.Ward, s.District, s.City} {
		if v = strings.TrimSpace(v); v != "" {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, ", ")
}

// AbsoluteImageURL prefixes relative refs with base. Empty refs stay empty.
func AbsoluteImageURL(base, ref string) string {
	ref = strings.TrimSpace(ref)
	switch {
	case ref == "":
		return ""
	case strings.HasPrefix(ref, "http://"), strings.HasPrefix(ref, "https://"):
		return ref
	case strings.HasPrefix(ref, "/"):
		return strings.TrimRight(base, "/") + ref
	default:
		return strings.TrimRight(base, "/") + "/" + ref
	}
}
