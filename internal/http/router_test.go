// README: Full-surface tests over the router with in-memory stores; one
// booking is walked from quote to payout entirely over HTTP.
package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	apihttp "sparkle/internal/http"
	"sparkle/internal/infra"
	"sparkle/internal/modules/booking"
	"sparkle/internal/modules/dispatch"
	"sparkle/internal/modules/job"
	"sparkle/internal/modules/partner"
	"sparkle/internal/modules/pricing"
	"sparkle/internal/modules/settlement"
	"sparkle/internal/payments"
	"sparkle/internal/types"
)

// stubVerifier turns "role:id" tokens into principals so tests can mint
// callers without JWTs.
type stubVerifier struct{}

func (stubVerifier) Verify(_ context.Context, raw string) (*infra.Principal, error) {
	role, id, ok := strings.Cut(raw, ":")
	if !ok || id == "" {
		return nil, errors.New("malformed test token")
	}
	return &infra.Principal{ID: id, Role: role}, nil
}

type env struct {
	router   *gin.Engine
	gateway  *payments.SimGateway
	partners *partner.Service
}

func newEnv(t *testing.T) *env {
	t.Helper()
	gin.SetMode(gin.TestMode)

	gateway := payments.NewSimGateway(0)
	pricingSvc := pricing.NewService(pricing.NoSurge{},
		decimal.RequireFromString("0.25"), decimal.RequireFromString("0.80"))

	bookingStore := booking.NewMemoryStore()
	bookingSvc := booking.NewService(bookingStore, pricingSvc, gateway, nil, booking.Config{
		FreeWindow:     5 * time.Minute,
		TierAThreshold: time.Hour,
		TierAFeeCents:  500,
		TierBFeeCents:  1500,
	}, nil)

	partnerSvc := partner.NewService(partner.NewMemoryStore(), nil)
	jobSvc := job.NewService(job.NewMemoryStore(), bookingStore, nil, job.Config{}, nil)

	dispatchSvc := dispatch.NewService(dispatch.Deps{
		Offers:   dispatch.NewMemoryStore(),
		Bookings: bookingStore,
		Partners: partnerSvc,
		Payout:   pricingSvc,
		Jobs:     jobSvc,
		Payments: gateway,
	}, dispatch.Config{}, nil)
	bookingSvc.SetDispatcher(dispatchSvc)

	settlementSvc := settlement.NewService(settlement.NewMemoryStore(), bookingStore,
		gateway, pricingSvc, nil, settlement.Config{}, nil)

	router := apihttp.NewRouter(apihttp.ServerDeps{
		Pricing:    pricingSvc,
		Bookings:   bookingSvc,
		Dispatch:   dispatchSvc,
		Jobs:       jobSvc,
		Settlement: settlementSvc,
		Partners:   partnerSvc,
		Verifier:   stubVerifier{},
	})
	return &env{router: router, gateway: gateway, partners: partnerSvc}
}

// addVerifiedPartner seeds a partner straight through the service; onboarding
// has no public route.
func (e *env) addVerifiedPartner(t *testing.T, name string, pos types.Point) types.ID {
	t.Helper()
	ctx := context.Background()
	p, err := e.partners.Register(ctx, partner.RegisterCommand{Name: name})
	if err != nil {
		t.Fatalf("register partner: %v", err)
	}
	if err := e.partners.SetStatus(ctx, p.ID, partner.StatusVerified); err != nil {
		t.Fatalf("verify partner: %v", err)
	}
	if err := e.partners.UpdateLocation(ctx, partner.UpdateLocationCommand{PartnerID: p.ID, Position: pos}); err != nil {
		t.Fatalf("place partner: %v", err)
	}
	return p.ID
}

func do(t *testing.T, r *gin.Engine, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
}

func wantStatus(t *testing.T, w *httptest.ResponseRecorder, code int) {
	t.Helper()
	if w.Code != code {
		t.Fatalf("status = %d, want %d; body %s", w.Code, code, w.Body.String())
	}
}

func checkoutBody() map[string]any {
	return map[string]any{
		"service_type":  "standard",
		"bedrooms":      2,
		"bathrooms":     1,
		"dwelling_type": "apartment",
		"line1":         "12 Orchid Lane",
		"city":          "Springfield",
		"zone":          "central",
		"lat":           1.30,
		"lng":           103.85,
		"instrument":    "card_visa_1881",
	}
}

func TestHealthIsPublic(t *testing.T) {
	e := newEnv(t)
	w := do(t, e.router, http.MethodGet, "/health", "", nil)
	wantStatus(t, w, http.StatusOK)
}

func TestAPIRequiresBearer(t *testing.T) {
	e := newEnv(t)
	w := do(t, e.router, http.MethodGet, "/api/offers/poll", "", nil)
	wantStatus(t, w, http.StatusUnauthorized)

	var body struct {
		Error     string `json:"error"`
		RequestID string `json:"request_id"`
	}
	decode(t, w, &body)
	if body.Error != "unauthenticated" {
		t.Fatalf("error = %q, want unauthenticated", body.Error)
	}
	if body.RequestID == "" {
		t.Fatal("expected a request id in the error envelope")
	}
}

func TestQuoteEndpoint(t *testing.T) {
	e := newEnv(t)

	w := do(t, e.router, http.MethodPost, "/api/pricing/quote", "customer:c1", map[string]any{
		"service_type": "standard",
		"bedrooms":     2,
		"bathrooms":    1,
		"zone":         "central",
	})
	wantStatus(t, w, http.StatusOK)
	var q pricing.Quote
	decode(t, w, &q)
	if q.Total.Amount != 13200 {
		t.Fatalf("total = %d, want 13200", q.Total.Amount)
	}

	// The servicetype binding rule rejects unknown types before the service
	// sees them.
	w = do(t, e.router, http.MethodPost, "/api/pricing/quote", "customer:c1", map[string]any{
		"service_type": "chimney_sweep",
	})
	wantStatus(t, w, http.StatusBadRequest)
	if !strings.Contains(w.Body.String(), "invalid_argument") {
		t.Fatalf("body = %s, want invalid_argument", w.Body.String())
	}
}

func TestBookingFlowEndToEnd(t *testing.T) {
	e := newEnv(t)
	partnerID := e.addVerifiedPartner(t, "Mora", types.Point{Lat: 1.301, Lng: 103.851})
	partnerTok := "partner:" + string(partnerID)

	// Checkout. The first offer goes out synchronously, so the booking comes
	// back already searching.
	w := do(t, e.router, http.MethodPost, "/api/bookings", "customer:c1", checkoutBody())
	wantStatus(t, w, http.StatusCreated)
	var b booking.Booking
	decode(t, w, &b)
	if b.Status != booking.StatusSearching {
		t.Fatalf("status after checkout = %s, want searching", b.Status)
	}
	if b.Totals.Total.Amount != 13200 {
		t.Fatalf("total = %d, want 13200", b.Totals.Total.Amount)
	}
	bid := string(b.ID)

	// The nearby partner sees the directed offer.
	w = do(t, e.router, http.MethodGet, "/api/offers/poll", partnerTok, nil)
	wantStatus(t, w, http.StatusOK)
	var poll struct {
		Offers []*dispatch.Offer `json:"offers"`
	}
	decode(t, w, &poll)
	if len(poll.Offers) != 1 {
		t.Fatalf("polled %d offers, want 1", len(poll.Offers))
	}
	offer := poll.Offers[0]
	if offer.Payout.Amount != 9900 {
		t.Fatalf("offer payout = %d, want 9900", offer.Payout.Amount)
	}

	w = do(t, e.router, http.MethodPost, "/api/offers/"+string(offer.ID)+"/accept", partnerTok,
		map[string]any{"idempotency_key": "acc-1"})
	wantStatus(t, w, http.StatusOK)

	// Customer's status view now names the partner.
	w = do(t, e.router, http.MethodGet, "/api/dispatch/status/"+bid, "customer:c1", nil)
	wantStatus(t, w, http.StatusOK)
	var sv dispatch.StatusView
	decode(t, w, &sv)
	if sv.State != booking.StatusAssigned {
		t.Fatalf("state = %s, want assigned", sv.State)
	}
	if sv.Partner == nil || sv.Partner.ID != partnerID {
		t.Fatalf("partner glimpse = %+v, want %s", sv.Partner, partnerID)
	}

	// Partner works the job.
	steps := []string{"enroute", "arrived"}
	for _, step := range steps {
		w = do(t, e.router, http.MethodPost, "/api/jobs/"+bid+"/"+step, partnerTok, nil)
		wantStatus(t, w, http.StatusOK)
	}

	w = do(t, e.router, http.MethodPost, "/api/jobs/"+bid+"/verify/start", partnerTok,
		map[string]any{"method": "face"})
	wantStatus(t, w, http.StatusOK)

	w = do(t, e.router, http.MethodPost, "/api/jobs/"+bid+"/photos", partnerTok,
		map[string]any{"kind": "before", "urls": []string{"https://img.test/before1.jpg"}})
	wantStatus(t, w, http.StatusOK)

	w = do(t, e.router, http.MethodPost, "/api/jobs/"+bid+"/verify/complete", partnerTok, nil)
	wantStatus(t, w, http.StatusOK)

	w = do(t, e.router, http.MethodPost, "/api/jobs/"+bid+"/start", partnerTok, nil)
	wantStatus(t, w, http.StatusOK)

	// While the job is live the customer's view carries the partner's last
	// heartbeat position.
	w = do(t, e.router, http.MethodGet, "/api/jobs/"+bid, "customer:c1", nil)
	wantStatus(t, w, http.StatusOK)
	var liveView struct {
		Status          booking.Status `json:"status"`
		PartnerPosition *types.Point   `json:"partner_position"`
	}
	decode(t, w, &liveView)
	if liveView.Status != booking.StatusInProgress {
		t.Fatalf("job status = %s, want in_progress", liveView.Status)
	}
	if liveView.PartnerPosition == nil {
		t.Fatal("expected partner position on a live job view")
	}

	w = do(t, e.router, http.MethodPost, "/api/jobs/"+bid+"/photos", partnerTok,
		map[string]any{"kind": "after", "urls": []string{"https://img.test/a1.jpg", "https://img.test/a2.jpg"}})
	wantStatus(t, w, http.StatusOK)

	w = do(t, e.router, http.MethodPost, "/api/jobs/"+bid+"/complete", partnerTok, nil)
	wantStatus(t, w, http.StatusOK)

	w = do(t, e.router, http.MethodPost, "/api/jobs/"+bid+"/approve", "customer:c1", nil)
	wantStatus(t, w, http.StatusOK)
	var done job.Job
	decode(t, w, &done)
	if done.Status != booking.StatusCompleted {
		t.Fatalf("job status = %s, want completed", done.Status)
	}

	// Settlement: mutual ratings with a tip, then the payout preview.
	w = do(t, e.router, http.MethodPost, "/api/ratings/customer", "customer:c1", map[string]any{
		"booking_id":      bid,
		"stars":           5,
		"compliments":     []string{"thorough"},
		"tip_cents":       1500,
		"idempotency_key": "rate-c1",
	})
	wantStatus(t, w, http.StatusCreated)
	var rr settlement.RatingResult
	decode(t, w, &rr)
	if rr.Tip == nil || rr.Tip.Status != settlement.TipCaptured {
		t.Fatalf("tip = %+v, want captured", rr.Tip)
	}
	if got := e.gateway.CallCount("capture"); got != 1 {
		t.Fatalf("gateway captures = %d, want 1", got)
	}

	w = do(t, e.router, http.MethodPost, "/api/ratings/partner", partnerTok, map[string]any{
		"booking_id":      bid,
		"stars":           4,
		"notes":           []string{"polite"},
		"idempotency_key": "rate-p1",
	})
	wantStatus(t, w, http.StatusCreated)

	w = do(t, e.router, http.MethodPost, "/api/partner/earnings/payout-calc", partnerTok,
		map[string]any{"booking_id": bid})
	wantStatus(t, w, http.StatusOK)
	var terms pricing.PayoutBreakdown
	decode(t, w, &terms)
	if terms.Net.Amount != 9900 {
		t.Fatalf("net payout = %d, want 9900", terms.Net.Amount)
	}

	// Completed job views drop the live position.
	w = do(t, e.router, http.MethodGet, "/api/jobs/"+bid, partnerTok, nil)
	wantStatus(t, w, http.StatusOK)
	if strings.Contains(w.Body.String(), "partner_position") {
		t.Fatal("completed job view should not carry a live position")
	}
}

func TestCancelAndDeclineRoutes(t *testing.T) {
	e := newEnv(t)
	partnerID := e.addVerifiedPartner(t, "Rin", types.Point{Lat: 1.30, Lng: 103.85})
	partnerTok := "partner:" + string(partnerID)

	w := do(t, e.router, http.MethodPost, "/api/bookings", "customer:c1", checkoutBody())
	wantStatus(t, w, http.StatusCreated)
	var b booking.Booking
	decode(t, w, &b)

	w = do(t, e.router, http.MethodGet, "/api/offers/poll", partnerTok, nil)
	wantStatus(t, w, http.StatusOK)
	var poll struct {
		Offers []*dispatch.Offer `json:"offers"`
	}
	decode(t, w, &poll)
	if len(poll.Offers) != 1 {
		t.Fatalf("polled %d offers, want 1", len(poll.Offers))
	}

	w = do(t, e.router, http.MethodPost, "/api/offers/"+string(poll.Offers[0].ID)+"/decline", partnerTok, nil)
	wantStatus(t, w, http.StatusOK)
	if !strings.Contains(w.Body.String(), "declined") {
		t.Fatalf("body = %s, want declined ack", w.Body.String())
	}

	// Inside the free window the cancel costs nothing.
	w = do(t, e.router, http.MethodPost, "/api/bookings/"+string(b.ID)+"/cancel", "customer:c1",
		map[string]any{"reason": "plans changed"})
	wantStatus(t, w, http.StatusOK)
	var res booking.CancelResult
	decode(t, w, &res)
	if res.Fee.Amount != 0 {
		t.Fatalf("cancel fee = %d, want 0", res.Fee.Amount)
	}

	w = do(t, e.router, http.MethodGet, "/api/bookings/"+string(b.ID), "customer:c1", nil)
	wantStatus(t, w, http.StatusOK)
	decode(t, w, &b)
	if b.Status != booking.StatusCancelled {
		t.Fatalf("status = %s, want cancelled", b.Status)
	}
}

func TestRoleGates(t *testing.T) {
	e := newEnv(t)

	cases := []struct {
		name   string
		method string
		path   string
		token  string
	}{
		{"booking needs customer", http.MethodPost, "/api/bookings", "partner:p1"},
		{"poll needs partner", http.MethodGet, "/api/offers/poll", "customer:c1"},
		{"accept needs partner", http.MethodPost, "/api/offers/o1/accept", "customer:c1"},
		{"job step needs partner", http.MethodPost, "/api/jobs/b1/enroute", "customer:c1"},
		{"approve needs customer", http.MethodPost, "/api/jobs/b1/approve", "partner:p1"},
		{"customer rating needs customer", http.MethodPost, "/api/ratings/customer", "partner:p1"},
		{"partner rating needs partner", http.MethodPost, "/api/ratings/partner", "customer:c1"},
		{"tip needs customer", http.MethodPost, "/api/billing/tip", "partner:p1"},
		{"payout calc needs partner", http.MethodPost, "/api/partner/earnings/payout-calc", "customer:c1"},
		{"location needs partner", http.MethodPut, "/api/partners/p1/location", "customer:c1"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := do(t, e.router, tc.method, tc.path, tc.token, map[string]any{})
			wantStatus(t, w, http.StatusForbidden)
			if !strings.Contains(w.Body.String(), "forbidden") {
				t.Fatalf("body = %s, want forbidden envelope", w.Body.String())
			}
		})
	}
}

func TestBookingOwnership(t *testing.T) {
	e := newEnv(t)

	w := do(t, e.router, http.MethodPost, "/api/bookings", "customer:c1", checkoutBody())
	wantStatus(t, w, http.StatusCreated)
	var b booking.Booking
	decode(t, w, &b)
	path := "/api/bookings/" + string(b.ID)

	w = do(t, e.router, http.MethodGet, path, "customer:c2", nil)
	wantStatus(t, w, http.StatusForbidden)

	w = do(t, e.router, http.MethodGet, path, "admin:ops1", nil)
	wantStatus(t, w, http.StatusOK)

	w = do(t, e.router, http.MethodGet, "/api/bookings/"+string(types.NewID()), "customer:c1", nil)
	wantStatus(t, w, http.StatusNotFound)
}

func TestPartnerLocationSelfOnly(t *testing.T) {
	e := newEnv(t)
	partnerID := e.addVerifiedPartner(t, "Sol", types.Point{Lat: 1.3, Lng: 103.8})
	tok := "partner:" + string(partnerID)

	w := do(t, e.router, http.MethodPut, "/api/partners/"+string(partnerID)+"/location", tok,
		map[string]any{"lat": 1.31, "lng": 103.86})
	wantStatus(t, w, http.StatusOK)

	w = do(t, e.router, http.MethodPut, "/api/partners/someoneelse/location", tok,
		map[string]any{"lat": 1.31, "lng": 103.86})
	wantStatus(t, w, http.StatusForbidden)

	w = do(t, e.router, http.MethodPut, "/api/partners/"+string(partnerID)+"/location", tok,
		map[string]any{"lat": 123.0, "lng": 103.86})
	wantStatus(t, w, http.StatusBadRequest)
}

func TestValidationErrorsUseEnvelope(t *testing.T) {
	e := newEnv(t)

	w := do(t, e.router, http.MethodPost, "/api/jobs/b1/photos", "partner:p1",
		map[string]any{"kind": "during", "urls": []string{"https://img.test/x.jpg"}})
	wantStatus(t, w, http.StatusBadRequest)

	var body struct {
		Error     string `json:"error"`
		Message   string `json:"message"`
		RequestID string `json:"request_id"`
	}
	decode(t, w, &body)
	if body.Error != "invalid_argument" {
		t.Fatalf("error = %q, want invalid_argument", body.Error)
	}
	if body.Message == "" || body.RequestID == "" {
		t.Fatalf("envelope incomplete: %+v", body)
	}
}

func TestAcceptReplayOverHTTP(t *testing.T) {
	e := newEnv(t)
	first := e.addVerifiedPartner(t, "P-one", types.Point{Lat: 1.3, Lng: 103.85})

	w := do(t, e.router, http.MethodPost, "/api/bookings", "customer:c1", checkoutBody())
	wantStatus(t, w, http.StatusCreated)
	var b booking.Booking
	decode(t, w, &b)

	w = do(t, e.router, http.MethodGet, "/api/offers/poll", "partner:"+string(first), nil)
	wantStatus(t, w, http.StatusOK)
	var poll struct {
		Offers []*dispatch.Offer `json:"offers"`
	}
	decode(t, w, &poll)
	if len(poll.Offers) != 1 {
		t.Fatalf("polled %d offers, want 1", len(poll.Offers))
	}
	offerPath := "/api/offers/" + string(poll.Offers[0].ID) + "/accept"

	w = do(t, e.router, http.MethodPost, offerPath, "partner:"+string(first),
		map[string]any{"idempotency_key": "k1"})
	wantStatus(t, w, http.StatusOK)

	// Replay with the same key is idempotent; a different key conflicts.
	w = do(t, e.router, http.MethodPost, offerPath, "partner:"+string(first),
		map[string]any{"idempotency_key": "k1"})
	wantStatus(t, w, http.StatusOK)

	w = do(t, e.router, http.MethodPost, offerPath, "partner:"+string(first),
		map[string]any{"idempotency_key": "k2"})
	wantStatus(t, w, http.StatusConflict)
}

func TestCaptureTipRoute(t *testing.T) {
	e := newEnv(t)
	partnerID := e.addVerifiedPartner(t, "Vee", types.Point{Lat: 1.3, Lng: 103.85})
	bid := runToCompletion(t, e, partnerID, "customer:c9")

	w := do(t, e.router, http.MethodPost, "/api/billing/tip", "customer:c9", map[string]any{
		"booking_id":      bid,
		"amount_cents":    800,
		"idempotency_key": "tip-1",
	})
	wantStatus(t, w, http.StatusCreated)
	var tip settlement.Tip
	decode(t, w, &tip)
	if tip.Status != settlement.TipCaptured || tip.Amount.Amount != 800 {
		t.Fatalf("tip = %+v, want captured 800", tip)
	}
}

// runToCompletion drives one booking through accept and the whole job over
// HTTP and returns its id.
func runToCompletion(t *testing.T, e *env, partnerID types.ID, customerTok string) string {
	t.Helper()
	partnerTok := "partner:" + string(partnerID)

	w := do(t, e.router, http.MethodPost, "/api/bookings", customerTok, checkoutBody())
	wantStatus(t, w, http.StatusCreated)
	var b booking.Booking
	decode(t, w, &b)
	bid := string(b.ID)

	w = do(t, e.router, http.MethodGet, "/api/offers/poll", partnerTok, nil)
	wantStatus(t, w, http.StatusOK)
	var poll struct {
		Offers []*dispatch.Offer `json:"offers"`
	}
	decode(t, w, &poll)
	if len(poll.Offers) == 0 {
		t.Fatal("no offer to accept")
	}
	w = do(t, e.router, http.MethodPost, "/api/offers/"+string(poll.Offers[0].ID)+"/accept", partnerTok,
		map[string]any{"idempotency_key": fmt.Sprintf("acc-%s", bid)})
	wantStatus(t, w, http.StatusOK)

	for _, step := range []struct {
		path string
		body map[string]any
	}{
		{"/enroute", nil},
		{"/arrived", nil},
		{"/verify/start", map[string]any{"method": "face"}},
		{"/photos", map[string]any{"kind": "before", "urls": []string{"https://img.test/b.jpg"}}},
		{"/verify/complete", nil},
		{"/start", nil},
		{"/photos", map[string]any{"kind": "after", "urls": []string{"https://img.test/a1.jpg", "https://img.test/a2.jpg"}}},
		{"/complete", nil},
	} {
		w = do(t, e.router, http.MethodPost, "/api/jobs/"+bid+step.path, partnerTok, step.body)
		wantStatus(t, w, http.StatusOK)
	}
	w = do(t, e.router, http.MethodPost, "/api/jobs/"+bid+"/approve", customerTok, nil)
	wantStatus(t, w, http.StatusOK)
	return bid
}
