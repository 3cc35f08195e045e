package orders

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sung-star/storefront-checkout/internal/backend"
	"github.com/Sung-star/storefront-checkout/internal/cart"
	"github.com/Sung-star/storefront-checkout/internal/checkout"
	"github.com/Sung-star/storefront-checkout/internal/events"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.CheckoutEvent
	err    error
}

func (r *recordingPublisher) Publish(ctx context.Context, ev events.CheckoutEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return r.err
}

type fakeBackend struct {
	orders   []backend.CreateOrderRequest
	links    []string
	orderID  string
	orderErr error
	linkURL  string
	linkErr  error
}

func (f *fakeBackend) CreateOrder(ctx context.Context, in backend.CreateOrderRequest) (string, error) {
	f.orders = append(f.orders, in)
	return f.orderID, f.orderErr
}

func (f *fakeBackend) CreatePaymentLink(ctx context.Context, token string, amount int64, orderID string) (string, error) {
	f.links = append(f.links, orderID)
	return f.linkURL, f.linkErr
}

func TestPlace_GatewayEndToEnd(t *testing.T) {
	var created map[string]any
	var linkQuery map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/orders":
			assert.Equal(t, "sub-1", r.Header.Get("Idempotency-Key"))
			assert.Equal(t, "2", r.Header.Get("X-Order-Payload-Version"))
			require.NoError(t, json.NewDecoder(r.Body).Decode(&created))
			_, _ = io.WriteString(w, `{"id": 981}`)
		case "/api/payment/create_payment":
			linkQuery = map[string]string{
				"amount":  r.URL.Query().Get("amount"),
				"orderId": r.URL.Query().Get("orderId"),
			}
			_, _ = io.WriteString(w, `{"url":"https://sandbox.vnpayment.vn/pay?ref=981"}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	client := backend.NewClient(srv.URL+"/api", time.Second, nil)
	pub := &recordingPublisher{}
	p := NewPlacer(client, pub, PayloadV2, srv.URL, nil)

	placement, err := p.Place(context.Background(), checkout.PlaceRequest{
		SessionID: "s1",
		AuthToken: "tok",
		Lines:     sampleLines(),
		Draft:     sampleDraft(),
	})
	require.NoError(t, err)

	assert.Equal(t, "981", placement.OrderID)
	assert.Equal(t, "https://sandbox.vnpayment.vn/pay?ref=981", placement.RedirectURL)
	assert.False(t, placement.Reused)
	assert.EqualValues(t, 280000, created["totalAmount"])
	assert.Equal(t, map[string]string{"amount": "280000", "orderId": "981"}, linkQuery)

	require.Len(t, pub.events, 1)
	assert.Equal(t, events.OrderPlaced, pub.events[0].Event)
	assert.Equal(t, "981", pub.events[0].OrderID)
	assert.Equal(t, "VNPAY", pub.events[0].PaymentMethod)
	assert.EqualValues(t, 280000, pub.events[0].Amount)
}

func TestPlace_CashSkipsLink(t *testing.T) {
	fb := &fakeBackend{orderID: "5"}
	p := NewPlacer(fb, nil, 0, "", nil)
	d := sampleDraft()
	d.PaymentMethod = checkout.PaymentCOD

	placement, err := p.Place(context.Background(), checkout.PlaceRequest{Lines: sampleLines(), Draft: d})
	require.NoError(t, err)
	assert.Equal(t, checkout.Placement{OrderID: "5"}, placement)
	assert.Empty(t, fb.links)
	require.Len(t, fb.orders, 1)
	assert.Equal(t, PayloadV2, fb.orders[0].PayloadVersion, "unknown versions fall back to v2")
}

func TestPlace_MomoAndCardSettleLikeCash(t *testing.T) {
	for _, method := range []string{checkout.PaymentMomo, checkout.PaymentCard} {
		fb := &fakeBackend{orderID: "5"}
		d := sampleDraft()
		d.PaymentMethod = method

		placement, err := NewPlacer(fb, nil, PayloadV1, "", nil).Place(context.Background(), checkout.PlaceRequest{Lines: sampleLines(), Draft: d})
		require.NoError(t, err)
		assert.Empty(t, placement.RedirectURL)
		assert.Empty(t, fb.links)
		assert.Equal(t, checkout.MapPaymentMethod(method), fb.orders[0].Payload.(Payload).PaymentMethod)
	}
}

func TestPlace_CreateFailureCarriesServerMessage(t *testing.T) {
	fb := &fakeBackend{orderErr: &backend.APIError{Status: 400, Message: "Sản phẩm Tee không đủ hàng"}}
	pub := &recordingPublisher{}

	_, err := NewPlacer(fb, pub, PayloadV2, "", nil).Place(context.Background(), checkout.PlaceRequest{Lines: sampleLines(), Draft: sampleDraft()})
	var se *checkout.SubmitError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, checkout.StageCreateOrder, se.Stage)
	assert.Equal(t, "Sản phẩm Tee không đủ hàng", se.Message)
	assert.Empty(t, se.OrderID)
	assert.Empty(t, fb.links)
	assert.Empty(t, pub.events)
}

func TestPlace_CreateFailureGenericMessageAndUnauthorized(t *testing.T) {
	fb := &fakeBackend{orderErr: &backend.APIError{Status: 401}}
	_, err := NewPlacer(fb, nil, PayloadV2, "", nil).Place(context.Background(), checkout.PlaceRequest{Lines: sampleLines(), Draft: sampleDraft()})

	var se *checkout.SubmitError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, msgCreateFailed, se.Message)
	assert.ErrorIs(t, err, backend.ErrUnauthorized)
}

func TestPlace_LinkFailureKeepsOrderID(t *testing.T) {
	fb := &fakeBackend{orderID: "44", linkErr: backend.ErrNoPaymentURL}
	_, err := NewPlacer(fb, nil, PayloadV2, "", nil).Place(context.Background(), checkout.PlaceRequest{Lines: sampleLines(), Draft: sampleDraft()})

	var se *checkout.SubmitError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, checkout.StageCreatePaymentLink, se.Stage)
	assert.Equal(t, "44", se.OrderID)
	assert.ErrorIs(t, err, backend.ErrNoPaymentURL)
}

func TestPlace_RetryReusesCreatedOrder(t *testing.T) {
	fb := &fakeBackend{orderID: "new", linkURL: "https://pay/44"}
	d := sampleDraft()
	d.CreatedOrderID = "44"
	d.CreatedOrderTotal = 280000
	d.CreatedOrderFingerprint = checkout.OrderFingerprint(sampleLines(), d)

	placement, err := NewPlacer(fb, nil, PayloadV2, "", nil).Place(context.Background(), checkout.PlaceRequest{Lines: sampleLines(), Draft: d})
	require.NoError(t, err)
	assert.Equal(t, checkout.Placement{OrderID: "44", RedirectURL: "https://pay/44", Reused: true}, placement)
	assert.Empty(t, fb.orders, "no second order")
	assert.Equal(t, []string{"44"}, fb.links)

	// a changed total creates a new order
	d.CreatedOrderTotal = 1
	placement, err = NewPlacer(fb, nil, PayloadV2, "", nil).Place(context.Background(), checkout.PlaceRequest{Lines: sampleLines(), Draft: d})
	require.NoError(t, err)
	assert.Equal(t, "new", placement.OrderID)
	assert.Len(t, fb.orders, 1)
}

func TestPlace_SameTotalDifferentLinesCreatesNewOrder(t *testing.T) {
	fb := &fakeBackend{orderID: "45", linkURL: "https://pay/45"}
	lines := sampleLines()
	d := sampleDraft()
	d.CreatedOrderID = "44"
	d.CreatedOrderTotal = checkout.OrderTotal(lines, d.ShippingMethod)
	d.CreatedOrderFingerprint = checkout.OrderFingerprint(lines, d)

	// swap product ids between lines; the total stays the same
	swapped := make([]cart.Line, len(lines))
	copy(swapped, lines)
	swapped[0].ProductID, swapped[1].ProductID = swapped[1].ProductID, swapped[0].ProductID
	require.Equal(t, d.CreatedOrderTotal, checkout.OrderTotal(swapped, d.ShippingMethod))

	placement, err := NewPlacer(fb, nil, PayloadV2, "", nil).Place(context.Background(), checkout.PlaceRequest{Lines: swapped, Draft: d})
	require.NoError(t, err)
	assert.Equal(t, "45", placement.OrderID)
	assert.False(t, placement.Reused)
	require.Len(t, fb.orders, 1, "CreateOrder runs again")
	assert.Equal(t, []string{"45"}, fb.links)
}

func TestPlace_PublishFailureIsIgnored(t *testing.T) {
	fb := &fakeBackend{orderID: "9"}
	pub := &recordingPublisher{err: errors.New("queue down")}
	d := sampleDraft()
	d.PaymentMethod = checkout.PaymentCOD

	placement, err := NewPlacer(fb, pub, PayloadV2, "", nil).Place(context.Background(), checkout.PlaceRequest{Lines: sampleLines(), Draft: d})
	require.NoError(t, err)
	assert.Equal(t, "9", placement.OrderID)
	assert.Len(t, pub.events, 1)
}
