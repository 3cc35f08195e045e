package orders

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sung-star/storefront-checkout/internal/cart"
	"github.com/Sung-star/storefront-checkout/internal/checkout"
)

func sampleLines() []cart.Line {
	return []cart.Line{
		{ProductID: "12", Name: "Tee", UnitPrice: 100000, AvailableStock: 5, Quantity: 2, ImageRef: "/uploads/tee.jpg"},
		{ProductID: "sku-x", Name: "Cap", UnitPrice: 50000, AvailableStock: 1, Quantity: 1},
	}
}

func sampleDraft() checkout.Draft {
	d := checkout.NewDraft("sub-1")
	d.Contact = checkout.Contact{FullName: "  Nguyen An ", Email: " an@example.com", Phone: "0912345678 "}
	d.Shipping = checkout.Shipping{Address: "12 Hang Bai", Ward: " ", District: "Hoan Kiem", City: "Ha Noi", Note: "   "}
	d.ShippingMethod = checkout.ShippingFast
	d.PaymentMethod = checkout.PaymentBank
	d.Step = checkout.StepReview
	return *d
}

func TestBuildPayload_V2(t *testing.T) {
	p := BuildPayload(PayloadV2, "http://localhost:8080", sampleLines(), sampleDraft())

	raw, err := json.Marshal(p)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"customerName": "Nguyen An",
		"customerEmail": "an@example.com",
		"customerPhone": "0912345678",
		"shippingAddress": "12 Hang Bai, Hoan Kiem, Ha Noi",
		"paymentMethod": "VNPAY",
		"paymentStatus": "UNPAID",
		"note": null,
		"items": [
			{"productId": 12, "productName": "Tee", "productPrice": 100000, "quantity": 2, "subtotal": 200000, "imageUrl": "http://localhost:8080/uploads/tee.jpg"},
			{"productId": "sku-x", "productName": "Cap", "productPrice": 50000, "quantity": 1, "subtotal": 50000, "imageUrl": ""}
		],
		"totalAmount": 280000
	}`, string(raw))
}

func TestBuildPayload_V1AndNote(t *testing.T) {
	d := sampleDraft()
	d.Shipping.Note = " ring twice "
	d.PaymentMethod = "cod"
	p := BuildPayload(PayloadV1, "", sampleLines(), d)

	raw, err := json.Marshal(p)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, "ring twice", got["note"])
	assert.Equal(t, "CASH", got["paymentMethod"])
	assert.Equal(t, []any{
		map[string]any{"productId": float64(12), "quantity": float64(2)},
		map[string]any{"productId": "sku-x", "quantity": float64(1)},
	}, got["items"])
}

func TestProductRef_MarshalJSON(t *testing.T) {
	cases := map[ProductRef]string{
		"12":    `12`,
		"0":     `0`,
		"007":   `"007"`,
		"00":    `"00"`,
		"sku-4": `"sku-4"`,
		"":      `""`,
	}
	for ref, want := range cases {
		out, err := json.Marshal(ItemV2{ProductID: ref})
		require.NoError(t, err, ref)
		var back map[string]json.RawMessage
		require.NoError(t, json.Unmarshal(out, &back), "output must stay valid JSON for %q", ref)
		assert.Equal(t, want, string(back["productId"]), ref)
	}
}

func TestAbsoluteImageURL(t *testing.T) {
	assert.Equal(t, "", AbsoluteImageURL("http://a", ""))
	assert.Equal(t, "https://cdn/x.jpg", AbsoluteImageURL("http://a", "https://cdn/x.jpg"))
	assert.Equal(t, "http://a/x.jpg", AbsoluteImageURL("http://a/", "/x.jpg"))
	assert.Equal(t, "http://a/x.jpg", AbsoluteImageURL("http://a", "x.jpg"))
}

func TestJoinAddress(t *testing.T) {
	assert.Equal(t, "A, B", JoinAddress(checkout.Shipping{Address: " A ", City: "B"}))
	assert.Equal(t, "", JoinAddress(checkout.Shipping{}))
}
