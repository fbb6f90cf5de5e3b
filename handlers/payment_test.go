package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"clearance-svc/middleware"
	"clearance-svc/models"
	"clearance-svc/stripe"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

// Fake store for testing.
type fakeStore struct {
	findOwnedShipmentFunc func(ctx context.Context, shipmentID, userID int) (*models.Shipment, error)
	findPendingFunc       func(ctx context.Context, shipmentID int) (*models.Payment, error)
	markCompletedFunc     func(ctx context.Context, shipmentID int, method, transactionID string) (bool, error)
	recordManualFunc      func(ctx context.Context, shipmentID int, method, transactionRef string) (bool, error)

	markCompletedCalls int
	recordManualCalls  int
	activityActions    []string
}

func (f *fakeStore) FindOwnedShipment(ctx context.Context, shipmentID, userID int) (*models.Shipment, error) {
	if f.findOwnedShipmentFunc != nil {
		return f.findOwnedShipmentFunc(ctx, shipmentID, userID)
	}
	return ownedShipment(shipmentID), nil
}

func (f *fakeStore) FindPendingPayment(ctx context.Context, shipmentID int) (*models.Payment, error) {
	if f.findPendingFunc != nil {
		return f.findPendingFunc(ctx, shipmentID)
	}
	return &models.Payment{
		ID:         5,
		ShipmentID: shipmentID,
		Amount:     170000,
		Status:     models.PaymentStatusPending,
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}, nil
}

func (f *fakeStore) MarkPaymentCompleted(ctx context.Context, shipmentID int, method, transactionID string) (bool, error) {
	f.markCompletedCalls++
	if f.markCompletedFunc != nil {
		return f.markCompletedFunc(ctx, shipmentID, method, transactionID)
	}
	return true, nil
}

func (f *fakeStore) RecordManualPayment(ctx context.Context, shipmentID int, method, transactionRef string) (bool, error) {
	f.recordManualCalls++
	if f.recordManualFunc != nil {
		return f.recordManualFunc(ctx, shipmentID, method, transactionRef)
	}
	return true, nil
}

func (f *fakeStore) LogActivity(ctx context.Context, userID int, action, category string, entityID int, message string) error {
	f.activityActions = append(f.activityActions, action)
	return nil
}

func (f *fakeStore) ClientEmail(ctx context.Context, shipmentID int) (string, error) {
	return "client@acme.mw", nil
}

func (f *fakeStore) ActiveAdminEmails(ctx context.Context) ([]string, error) {
	return []string{"admin@primecargo.mw"}, nil
}

func ownedShipment(id int) *models.Shipment {
	return &models.Shipment{
		ID:               id,
		ClientID:         3,
		TrackingNumber:   "PCL-2024-0042",
		GoodsDescription: "Assorted electronics",
		OriginCountry:    "China",
		DestinationPort:  "Blantyre",
		PaymentStatus:    models.ShipmentPending,
		CompanyName:      "Acme Traders",
	}
}

// Fake checkout provider for testing.
type fakeProvider struct {
	createFunc   func(ctx context.Context, params stripe.CreateSessionParams) (*stripe.CheckoutSession, error)
	retrieveFunc func(ctx context.Context, sessionID string) (*stripe.CheckoutSession, error)

	lastCreateParams *stripe.CreateSessionParams
}

func (f *fakeProvider) CreateSession(ctx context.Context, params stripe.CreateSessionParams) (*stripe.CheckoutSession, error) {
	f.lastCreateParams = &params
	if f.createFunc != nil {
		return f.createFunc(ctx, params)
	}
	return &stripe.CheckoutSession{ID: "cs_test_abc", PaymentStatus: "unpaid"}, nil
}

func (f *fakeProvider) RetrieveSession(ctx context.Context, sessionID string) (*stripe.CheckoutSession, error) {
	if f.retrieveFunc != nil {
		return f.retrieveFunc(ctx, sessionID)
	}
	return &stripe.CheckoutSession{ID: sessionID, PaymentStatus: "paid", PaymentIntent: "pi_abc123"}, nil
}

// Fake notifier and mailer recording side effects.
type fakeNotifier struct {
	titles []string
}

func (f *fakeNotifier) NotifyAdmin(ctx context.Context, title, body, severity, category string, entityID int) error {
	f.titles = append(f.titles, title)
	return nil
}

type fakeMailer struct {
	recipients []string
	bodies     []string
}

func (f *fakeMailer) SendEmail(toEmail, subject, htmlContent string) error {
	f.recipients = append(f.recipients, toEmail)
	f.bodies = append(f.bodies, htmlContent)
	return nil
}

func clientToken(t *testing.T, userID int, role string) string {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": userID,
		"role":    role,
		"exp":     time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte("your-secret-key-change-in-production"))
	if err != nil {
		t.Fatalf("Failed to sign token: %v", err)
	}
	return signed
}

func setupPaymentTest(t *testing.T) (*fakeStore, *fakeProvider, *fakeNotifier, *fakeMailer, *gin.Engine) {
	st := &fakeStore{}
	provider := &fakeProvider{}
	notifier := &fakeNotifier{}
	mailer := &fakeMailer{}

	logger := zaptest.NewLogger(t, zaptest.Level(zap.InfoLevel))
	handler := NewPaymentHandler(st, provider, nil, notifier, mailer, nil, logger, "http://app.local")

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.LoadHTMLGlob("../templates/*")

	api := router.Group("/api", middleware.RequireRole("client", false))
	api.POST("/payments/checkout-session", handler.CreateCheckoutSession)
	api.GET("/payments/pending/:shipment_id", handler.GetPendingPayment)

	pages := router.Group("/payments", middleware.RequireRole("client", true))
	pages.GET("/success", handler.PaymentSuccess)
	pages.GET("/cancel", handler.PaymentCancel)
	pages.POST("/manual", handler.SubmitManualPayment)

	return st, provider, notifier, mailer, router
}

func postJSON(t *testing.T, router *gin.Engine, path, token string, body any) *httptest.ResponseRecorder {
	data, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBuffer(data))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestCreateCheckoutSession_Unauthorized(t *testing.T) {
	_, _, _, _, router := setupPaymentTest(t)

	w := postJSON(t, router, "/api/payments/checkout-session", "",
		models.CreateSessionRequest{ShipmentID: 42, Amount: 10000, Currency: "usd"})

	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected status %d, got %d", http.StatusUnauthorized, w.Code)
	}
}

func TestCreateCheckoutSession_WrongRole(t *testing.T) {
	_, _, _, _, router := setupPaymentTest(t)

	w := postJSON(t, router, "/api/payments/checkout-session", clientToken(t, 7, "admin"),
		models.CreateSessionRequest{ShipmentID: 42, Amount: 10000, Currency: "usd"})

	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected status %d, got %d", http.StatusUnauthorized, w.Code)
	}
}

func TestCreateCheckoutSession_InvalidRequest(t *testing.T) {
	st, provider, _, _, router := setupPaymentTest(t)

	w := postJSON(t, router, "/api/payments/checkout-session", clientToken(t, 7, "client"),
		models.CreateSessionRequest{ShipmentID: 42, Amount: 0})

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status %d, got %d", http.StatusBadRequest, w.Code)
	}
	if provider.lastCreateParams != nil {
		t.Error("Provider should not be called for an invalid request")
	}
	if len(st.activityActions) != 0 {
		t.Error("No activity should be logged for an invalid request")
	}
}

func TestCreateCheckoutSession_NotOwned(t *testing.T) {
	st, _, _, _, router := setupPaymentTest(t)
	st.findOwnedShipmentFunc = func(ctx context.Context, shipmentID, userID int) (*models.Shipment, error) {
		return nil, nil
	}

	w := postJSON(t, router, "/api/payments/checkout-session", clientToken(t, 99, "client"),
		models.CreateSessionRequest{ShipmentID: 42, Amount: 10000, Currency: "usd"})

	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status %d, got %d", http.StatusNotFound, w.Code)
	}
	if strings.Contains(w.Body.String(), "PCL-2024") {
		t.Error("Response must not leak another client's shipment data")
	}
}

func TestCreateCheckoutSession_UpstreamError(t *testing.T) {
	_, provider, _, _, router := setupPaymentTest(t)
	provider.createFunc = func(ctx context.Context, params stripe.CreateSessionParams) (*stripe.CheckoutSession, error) {
		return nil, &stripe.APIError{StatusCode: 400, Message: "Amount must be at least 50 cents"}
	}

	w := postJSON(t, router, "/api/payments/checkout-session", clientToken(t, 7, "client"),
		models.CreateSessionRequest{ShipmentID: 42, Amount: 1, Currency: "usd"})

	if w.Code != http.StatusBadGateway {
		t.Errorf("Expected status %d, got %d", http.StatusBadGateway, w.Code)
	}
	if !strings.Contains(w.Body.String(), "Amount must be at least 50 cents") {
		t.Errorf("Expected provider message in response, got %s", w.Body.String())
	}
}

func TestCreateCheckoutSession_Success(t *testing.T) {
	st, provider, _, _, router := setupPaymentTest(t)

	w := postJSON(t, router, "/api/payments/checkout-session", clientToken(t, 7, "client"),
		models.CreateSessionRequest{ShipmentID: 42, Amount: 10000, Currency: "usd"})

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
	}

	var resp map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp["id"] != "cs_test_abc" {
		t.Errorf("Expected session id cs_test_abc, got %s", resp["id"])
	}

	params := provider.lastCreateParams
	if params == nil {
		t.Fatal("Provider was not called")
	}
	if params.ProductName != "Customs Clearance - PCL-2024-0042" {
		t.Errorf("Unexpected product name: %s", params.ProductName)
	}
	if !strings.Contains(params.SuccessURL, "session_id={CHECKOUT_SESSION_ID}") ||
		!strings.Contains(params.SuccessURL, "shipment_id=42") {
		t.Errorf("Unexpected success URL: %s", params.SuccessURL)
	}
	if params.Metadata["shipment_id"] != "42" || params.Metadata["client_id"] != "7" {
		t.Errorf("Unexpected metadata: %v", params.Metadata)
	}

	if len(st.activityActions) != 1 || st.activityActions[0] != "stripe_session_created" {
		t.Errorf("Expected session-creation audit entry, got %v", st.activityActions)
	}
}

func TestCreateCheckoutSession_TruncatesDescription(t *testing.T) {
	st, provider, _, _, router := setupPaymentTest(t)
	st.findOwnedShipmentFunc = func(ctx context.Context, shipmentID, userID int) (*models.Shipment, error) {
		s := ownedShipment(shipmentID)
		s.GoodsDescription = strings.Repeat("x", 300)
		return s, nil
	}

	w := postJSON(t, router, "/api/payments/checkout-session", clientToken(t, 7, "client"),
		models.CreateSessionRequest{ShipmentID: 42, Amount: 10000, Currency: "usd"})

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d", http.StatusOK, w.Code)
	}
	want := "Goods: " + strings.Repeat("x", 100)
	if provider.lastCreateParams.ProductDescription != want {
		t.Errorf("Description not truncated to %d chars: %d",
			100, len(provider.lastCreateParams.ProductDescription))
	}
}

func getPage(router *gin.Engine, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.AddCookie(&http.Cookie{Name: "token", Value: token})
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestPaymentSuccess_MissingParamsRedirects(t *testing.T) {
	st, _, _, _, router := setupPaymentTest(t)

	w := getPage(router, "/payments/success?shipment_id=42", clientToken(t, 7, "client"))

	if w.Code != http.StatusFound {
		t.Fatalf("Expected redirect, got %d", w.Code)
	}
	if loc := w.Header().Get("Location"); loc != "/shipments/track" {
		t.Errorf("Expected redirect to tracking view, got %s", loc)
	}
	if st.markCompletedCalls != 0 {
		t.Error("No update should happen without a session id")
	}
}

func TestPaymentSuccess_UnpaidSessionLeavesPaymentPending(t *testing.T) {
	st, provider, notifier, mailer, router := setupPaymentTest(t)
	provider.retrieveFunc = func(ctx context.Context, sessionID string) (*stripe.CheckoutSession, error) {
		return &stripe.CheckoutSession{ID: sessionID, PaymentStatus: "unpaid"}, nil
	}

	// A forged success redirect carries a real session id for a checkout the
	// client abandoned. The re-fetched status is the only trusted signal.
	w := getPage(router, "/payments/success?session_id=cs_forged&shipment_id=42", clientToken(t, 7, "client"))

	if st.markCompletedCalls != 0 {
		t.Error("An unpaid session must not complete the payment")
	}
	if len(notifier.titles) != 0 || len(mailer.recipients) != 0 {
		t.Error("No notifications should fire for an unpaid session")
	}
	if !strings.Contains(w.Body.String(), "Payment Verification Failed") {
		t.Error("Expected the verification-failed page")
	}
}

func TestPaymentSuccess_PaidSessionCompletesPayment(t *testing.T) {
	st, _, notifier, mailer, router := setupPaymentTest(t)
	var gotMethod, gotTxnID string
	st.markCompletedFunc = func(ctx context.Context, shipmentID int, method, transactionID string) (bool, error) {
		gotMethod, gotTxnID = method, transactionID
		return true, nil
	}

	w := getPage(router, "/payments/success?session_id=cs_test_abc&shipment_id=42", clientToken(t, 7, "client"))

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d", http.StatusOK, w.Code)
	}
	if st.markCompletedCalls != 1 {
		t.Fatalf("Expected one completion call, got %d", st.markCompletedCalls)
	}
	if gotMethod != "stripe" || gotTxnID != "pi_abc123" {
		t.Errorf("Expected stripe/pi_abc123, got %s/%s", gotMethod, gotTxnID)
	}

	if len(notifier.titles) != 1 || !strings.Contains(notifier.titles[0], "Payment Received") {
		t.Errorf("Expected admin notification, got %v", notifier.titles)
	}
	// Receipt to the client plus one active admin
	if len(mailer.recipients) != 2 {
		t.Errorf("Expected 2 receipt emails, got %v", mailer.recipients)
	}
	if len(st.activityActions) != 1 || st.activityActions[0] != "payment_completed" {
		t.Errorf("Expected payment_completed activity, got %v", st.activityActions)
	}
	if !strings.Contains(w.Body.String(), "Payment Successful") {
		t.Error("Expected the success page")
	}
}

func TestPaymentSuccess_ReceiptIncludesAmount(t *testing.T) {
	_, _, _, mailer, router := setupPaymentTest(t)

	getPage(router, "/payments/success?session_id=cs_test_abc&shipment_id=42", clientToken(t, 7, "client"))

	if len(mailer.bodies) != 2 {
		t.Fatalf("Expected 2 receipt emails, got %d", len(mailer.bodies))
	}
	for _, body := range mailer.bodies {
		if !strings.Contains(body, "MWK 170,000.00") {
			t.Errorf("Expected receipt to state the amount, got %s", body)
		}
	}
}

func TestPaymentSuccess_ReceiptOmitsAmountWhenPendingRowUnreadable(t *testing.T) {
	st, _, notifier, mailer, router := setupPaymentTest(t)
	st.findPendingFunc = func(ctx context.Context, shipmentID int) (*models.Payment, error) {
		return nil, context.DeadlineExceeded
	}

	w := getPage(router, "/payments/success?session_id=cs_test_abc&shipment_id=42", clientToken(t, 7, "client"))

	// The amount lookup is best-effort: its failure must not block completion.
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d", http.StatusOK, w.Code)
	}
	if st.markCompletedCalls != 1 {
		t.Fatalf("Expected the payment to complete, got %d calls", st.markCompletedCalls)
	}
	if len(notifier.titles) != 1 {
		t.Errorf("Expected admin notification, got %v", notifier.titles)
	}

	if len(mailer.bodies) != 2 {
		t.Fatalf("Expected 2 receipt emails, got %d", len(mailer.bodies))
	}
	for _, body := range mailer.bodies {
		if strings.Contains(body, "MWK 0.00") {
			t.Errorf("Receipt must not state a made-up amount, got %s", body)
		}
		if !strings.Contains(body, "PCL-2024-0042") {
			t.Errorf("Receipt should still reference the shipment, got %s", body)
		}
	}
}

func TestPaymentSuccess_ReplayedRedirectFiresNothing(t *testing.T) {
	st, _, notifier, mailer, router := setupPaymentTest(t)
	st.markCompletedFunc = func(ctx context.Context, shipmentID int, method, transactionID string) (bool, error) {
		// Zero rows matched the pending guard: already completed.
		return false, nil
	}

	w := getPage(router, "/payments/success?session_id=cs_test_abc&shipment_id=42", clientToken(t, 7, "client"))

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d", http.StatusOK, w.Code)
	}
	if len(notifier.titles) != 0 || len(mailer.recipients) != 0 || len(st.activityActions) != 0 {
		t.Error("Side effects must only fire on the pending-to-completed edge")
	}
	if !strings.Contains(w.Body.String(), "Payment Successful") {
		t.Error("A replayed redirect for a completed payment still shows success")
	}
}

func TestPaymentSuccess_VerificationFailureDoesNotClaimPaymentFailed(t *testing.T) {
	st, provider, _, _, router := setupPaymentTest(t)
	provider.retrieveFunc = func(ctx context.Context, sessionID string) (*stripe.CheckoutSession, error) {
		return nil, &stripe.APIError{StatusCode: 500, Message: "upstream unavailable"}
	}

	w := getPage(router, "/payments/success?session_id=cs_test_abc&shipment_id=42", clientToken(t, 7, "client"))

	if st.markCompletedCalls != 0 {
		t.Error("No update should happen when verification fails")
	}
	body := w.Body.String()
	if !strings.Contains(body, "couldn't verify your payment") {
		t.Error("Expected a verification-failure message")
	}
	if strings.Contains(strings.ToLower(body), "payment failed") {
		t.Error("Must not claim the payment failed when the true state is unknown")
	}
}

func TestPaymentCancel(t *testing.T) {
	_, _, _, _, router := setupPaymentTest(t)

	w := getPage(router, "/payments/cancel?shipment_id=42", clientToken(t, 7, "client"))

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d", http.StatusOK, w.Code)
	}
	if !strings.Contains(w.Body.String(), "Payment Cancelled") {
		t.Error("Expected the cancel page")
	}
}

func postForm(router *gin.Engine, path, token string, form string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if token != "" {
		req.AddCookie(&http.Cookie{Name: "token", Value: token})
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestSubmitManualPayment_MissingFieldsRejectedBeforeDB(t *testing.T) {
	st, _, notifier, _, router := setupPaymentTest(t)

	w := postForm(router, "/payments/manual", clientToken(t, 7, "client"),
		"shipment_id=7&payment_method=bank_transfer&transaction_ref=")

	if w.Code != http.StatusFound {
		t.Fatalf("Expected redirect, got %d", w.Code)
	}
	if st.recordManualCalls != 0 {
		t.Error("Validation must reject the request before touching the database")
	}
	if len(notifier.titles) != 0 {
		t.Error("No admin notification for a rejected submission")
	}
}

func TestSubmitManualPayment_UnusableShipmentIDRedirectsToTracking(t *testing.T) {
	st, _, _, _, router := setupPaymentTest(t)

	// A malformed shipment_id fails binding, so no payment page exists to
	// send the client back to.
	cases := map[string]string{
		"malformed id": "shipment_id=abc&payment_method=bank_transfer&transaction_ref=NBM-1",
		"missing id":   "payment_method=bank_transfer&transaction_ref=NBM-1",
	}
	for name, form := range cases {
		w := postForm(router, "/payments/manual", clientToken(t, 7, "client"), form)

		if w.Code != http.StatusFound {
			t.Fatalf("%s: expected redirect, got %d", name, w.Code)
		}
		if loc := w.Header().Get("Location"); loc != "/shipments/track" {
			t.Errorf("%s: expected redirect to tracking view, got %s", name, loc)
		}
	}
	if st.recordManualCalls != 0 {
		t.Error("Nothing should be recorded without a usable shipment id")
	}
}

func TestSubmitManualPayment_NotOwned(t *testing.T) {
	st, _, notifier, _, router := setupPaymentTest(t)
	st.findOwnedShipmentFunc = func(ctx context.Context, shipmentID, userID int) (*models.Shipment, error) {
		return nil, nil
	}

	w := postForm(router, "/payments/manual", clientToken(t, 99, "client"),
		"shipment_id=42&payment_method=bank_transfer&transaction_ref=NBM-849302")

	if w.Code != http.StatusFound {
		t.Fatalf("Expected redirect, got %d", w.Code)
	}
	if loc := w.Header().Get("Location"); loc != "/shipments/track" {
		t.Errorf("Expected redirect to tracking view, got %s", loc)
	}
	if st.recordManualCalls != 0 || len(notifier.titles) != 0 {
		t.Error("Nothing should be recorded for a shipment the caller does not own")
	}
}

func TestSubmitManualPayment_Success(t *testing.T) {
	st, _, notifier, _, router := setupPaymentTest(t)

	w := postForm(router, "/payments/manual", clientToken(t, 7, "client"),
		"shipment_id=42&payment_method=mobile_money&transaction_ref=AM-555")

	if w.Code != http.StatusFound {
		t.Fatalf("Expected redirect, got %d", w.Code)
	}
	if st.recordManualCalls != 1 {
		t.Fatalf("Expected one manual-payment record, got %d", st.recordManualCalls)
	}
	if len(notifier.titles) != 1 || !strings.Contains(notifier.titles[0], "Manual Payment Submitted") {
		t.Errorf("Expected admin verification notification, got %v", notifier.titles)
	}
	if len(st.activityActions) != 1 || st.activityActions[0] != "manual_payment_submitted" {
		t.Errorf("Expected manual-payment activity, got %v", st.activityActions)
	}
	if loc := w.Header().Get("Location"); !strings.Contains(loc, "shipment_id=42") {
		t.Errorf("Expected redirect back to the shipment, got %s", loc)
	}
}

func TestSubmitManualPayment_NoPendingRow(t *testing.T) {
	st, _, notifier, _, router := setupPaymentTest(t)
	st.recordManualFunc = func(ctx context.Context, shipmentID int, method, transactionRef string) (bool, error) {
		return false, nil
	}

	w := postForm(router, "/payments/manual", clientToken(t, 7, "client"),
		"shipment_id=42&payment_method=bank_transfer&transaction_ref=NBM-849302")

	if w.Code != http.StatusFound {
		t.Fatalf("Expected redirect, got %d", w.Code)
	}
	if len(notifier.titles) != 0 {
		t.Error("No notification when no pending payment was updated")
	}
}

func TestGetPendingPayment_ConvertsAmount(t *testing.T) {
	_, _, _, _, router := setupPaymentTest(t)

	w := getPage(router, "/api/payments/pending/42", "")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("Expected %d without a token, got %d", http.StatusUnauthorized, w.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/payments/pending/42", nil)
	req.Header.Set("Authorization", "Bearer "+clientToken(t, 7, "client"))
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
	}

	var view models.PendingPaymentView
	if err := json.Unmarshal(w.Body.Bytes(), &view); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if view.AmountMWK != 170000 {
		t.Errorf("Expected amount 170000 MWK, got %v", view.AmountMWK)
	}
	if view.AmountUSD != 100.00 {
		t.Errorf("Expected 100.00 USD at the default rate, got %v", view.AmountUSD)
	}
	if view.AmountCents != 10000 {
		t.Errorf("Expected 10000 cents, got %v", view.AmountCents)
	}
	if view.Shipment.TrackingNumber != "PCL-2024-0042" {
		t.Errorf("Unexpected shipment: %+v", view.Shipment)
	}
}

func TestGetPendingPayment_NotOwned(t *testing.T) {
	st, _, _, _, router := setupPaymentTest(t)
	st.findOwnedShipmentFunc = func(ctx context.Context, shipmentID, userID int) (*models.Shipment, error) {
		return nil, nil
	}

	req := httptest.NewRequest(http.MethodGet, "/api/payments/pending/42", nil)
	req.Header.Set("Authorization", "Bearer "+clientToken(t, 99, "client"))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status %d, got %d", http.StatusNotFound, w.Code)
	}
	if strings.Contains(w.Body.String(), "PCL-2024") {
		t.Error("Response must not leak another client's shipment data")
	}
}
