package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"clearance-svc/cache"
	"clearance-svc/currency"
	"clearance-svc/kafka"
	"clearance-svc/middleware"
	"clearance-svc/models"
	"clearance-svc/notify"
	"clearance-svc/store"
	"clearance-svc/stripe"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const (
	trackingPath    = "/shipments/track"
	descriptionMax  = 100
	methodStripe    = "stripe"
	categoryPayment = "payments"
)

// CheckoutProvider is the single external-processor capability the payment
// flow depends on.
type CheckoutProvider interface {
	CreateSession(ctx context.Context, params stripe.CreateSessionParams) (*stripe.CheckoutSession, error)
	RetrieveSession(ctx context.Context, sessionID string) (*stripe.CheckoutSession, error)
}

type PaymentHandler struct {
	store    store.Store
	provider CheckoutProvider
	events   *kafka.Publisher
	notifier notify.AdminNotifier
	mailer   notify.Mailer
	rdb      *redis.Client
	logger   *zap.Logger
	appURL   string
}

func NewPaymentHandler(
	st store.Store,
	provider CheckoutProvider,
	events *kafka.Publisher,
	notifier notify.AdminNotifier,
	mailer notify.Mailer,
	rdb *redis.Client,
	logger *zap.Logger,
	appURL string,
) *PaymentHandler {
	return &PaymentHandler{
		store:    st,
		provider: provider,
		events:   events,
		notifier: notifier,
		mailer:   mailer,
		rdb:      rdb,
		logger:   logger,
		appURL:   strings.TrimRight(appURL, "/"),
	}
}

// CreateCheckoutSession opens a hosted checkout for a pending customs charge.
// POST /api/payments/checkout-session with {shipment_id, amount, currency}.
func (h *PaymentHandler) CreateCheckoutSession(c *gin.Context) {
	ctx, span := otel.Tracer("clearance-service").Start(c.Request.Context(), "CreateCheckoutSession")
	defer span.End()

	identity, ok := middleware.GetIdentity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	var req models.CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	if req.ShipmentID <= 0 || req.Amount <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	if req.Currency == "" {
		req.Currency = "usd"
	}

	span.SetAttributes(
		attribute.Int("shipment_id", req.ShipmentID),
		attribute.Int64("amount", req.Amount),
	)

	shipment, err := h.store.FindOwnedShipment(ctx, req.ShipmentID, identity.UserID)
	if err != nil {
		span.RecordError(err)
		h.logger.Error("Failed to look up shipment", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	if shipment == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Shipment not found"})
		return
	}

	session, err := h.provider.CreateSession(ctx, stripe.CreateSessionParams{
		Currency:           req.Currency,
		UnitAmount:         req.Amount,
		ProductName:        "Customs Clearance - " + shipment.TrackingNumber,
		ProductDescription: "Goods: " + truncate(shipment.GoodsDescription, descriptionMax),
		SuccessURL:         fmt.Sprintf("%s/payments/success?session_id={CHECKOUT_SESSION_ID}&shipment_id=%d", h.appURL, shipment.ID),
		CancelURL:          fmt.Sprintf("%s/payments/cancel?shipment_id=%d", h.appURL, shipment.ID),
		Metadata: map[string]string{
			"shipment_id":     strconv.Itoa(shipment.ID),
			"tracking_number": shipment.TrackingNumber,
			"client_id":       strconv.Itoa(identity.UserID),
		},
	})
	if err != nil {
		span.RecordError(err)
		middleware.RecordCheckoutSession("failed")
		var apiErr *stripe.APIError
		if errors.As(err, &apiErr) {
			c.JSON(http.StatusBadGateway, gin.H{"error": apiErr.Message})
			return
		}
		h.logger.Error("Failed to create checkout session", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to create checkout session"})
		return
	}

	if err := h.store.LogActivity(ctx, identity.UserID, "stripe_session_created", categoryPayment, shipment.ID,
		"Created Stripe checkout session for shipment "+shipment.TrackingNumber); err != nil {
		h.logger.Error("Failed to log activity", zap.Error(err))
	}

	middleware.RecordCheckoutSession("created")
	h.logger.Info("Checkout session created",
		zap.String("trace_id", middleware.GetTraceID(ctx)),
		zap.Int("shipment_id", shipment.ID),
		zap.String("session_id", session.ID),
	)
	c.JSON(http.StatusOK, gin.H{"id": session.ID})
}

// PaymentSuccess reconciles the outcome of a hosted checkout. The redirect
// that lands here is untrusted; only the re-fetched session status counts.
// GET /payments/success?session_id=...&shipment_id=...
func (h *PaymentHandler) PaymentSuccess(c *gin.Context) {
	ctx, span := otel.Tracer("clearance-service").Start(c.Request.Context(), "PaymentSuccess")
	defer span.End()

	identity, ok := middleware.GetIdentity(c)
	if !ok {
		c.Redirect(http.StatusFound, "/login")
		return
	}

	sessionID := c.Query("session_id")
	shipmentID, _ := strconv.Atoi(c.Query("shipment_id"))
	if sessionID == "" || shipmentID <= 0 {
		c.Redirect(http.StatusFound, trackingPath)
		return
	}

	span.SetAttributes(attribute.Int("shipment_id", shipmentID))

	shipment, err := h.store.FindOwnedShipment(ctx, shipmentID, identity.UserID)
	if err != nil || shipment == nil {
		if err != nil {
			span.RecordError(err)
			h.logger.Error("Failed to look up shipment", zap.Error(err))
		}
		h.renderOutcome(c, shipmentID, false, "")
		return
	}

	session, err := h.provider.RetrieveSession(ctx, sessionID)
	if err != nil {
		span.RecordError(err)
		middleware.RecordReconciliation("failed")
		h.logger.Error("Failed to verify checkout session",
			zap.String("session_id", sessionID), zap.Error(err))
		// The true state is unknown here: report a verification failure, not
		// a failed payment.
		h.renderOutcome(c, shipmentID, false, "We couldn't verify your payment. Please contact support if you believe this is an error.")
		return
	}

	if session.PaymentStatus != "paid" {
		middleware.RecordReconciliation("unpaid")
		h.renderOutcome(c, shipmentID, false, "")
		return
	}

	pending, err := h.store.FindPendingPayment(ctx, shipmentID)
	if err != nil {
		h.logger.Error("Failed to load pending payment", zap.Error(err))
	}

	transitioned, err := h.store.MarkPaymentCompleted(ctx, shipmentID, methodStripe, session.PaymentIntent)
	if err != nil {
		span.RecordError(err)
		middleware.RecordReconciliation("failed")
		h.logger.Error("Failed to complete payment",
			zap.Int("shipment_id", shipmentID), zap.Error(err))
		h.renderOutcome(c, shipmentID, false, "We couldn't verify your payment. Please contact support if you believe this is an error.")
		return
	}

	if transitioned {
		middleware.RecordReconciliation("completed")
		h.firePaymentCompleted(ctx, identity, shipment, session, pending)
	} else {
		// Replayed success redirect: the row was already completed, so the
		// receipts went out the first time.
		middleware.RecordReconciliation("replayed")
	}

	h.renderOutcome(c, shipmentID, true, "")
}

// firePaymentCompleted runs the post-commit side effects. They are
// fire-and-forget: a failure here never unwinds the committed payment.
// pending is nil when the payment row could not be read back; receipts then
// omit the amount rather than stating a wrong one.
func (h *PaymentHandler) firePaymentCompleted(ctx context.Context, identity middleware.Identity, shipment *models.Shipment, session *stripe.CheckoutSession, pending *models.Payment) {
	if err := h.store.LogActivity(ctx, identity.UserID, "payment_completed", categoryPayment, shipment.ID,
		"Payment completed via Stripe for shipment "+shipment.TrackingNumber); err != nil {
		h.logger.Error("Failed to log activity", zap.Error(err))
	}

	if h.notifier != nil {
		err := h.notifier.NotifyAdmin(ctx,
			"Payment Received - "+shipment.TrackingNumber,
			fmt.Sprintf("Payment has been successfully received via Stripe for shipment %s (%s)",
				shipment.TrackingNumber, shipment.CompanyName),
			"success", categoryPayment, shipment.ID)
		if err != nil {
			h.logger.Error("Failed to notify admin", zap.Error(err))
		}
	}

	if h.events != nil {
		event := models.PaymentEvent{
			EventID:    uuid.NewString(),
			ShipmentID: shipment.ID,
			Tracking:   shipment.TrackingNumber,
			Status:     models.PaymentStatusCompleted,
			EventType:  "payment_completed",
			Method:     methodStripe,
			Reference:  session.PaymentIntent,
		}
		if pending != nil {
			event.Amount = pending.Amount
		}
		if err := h.events.PublishPaymentEvent(ctx, event); err != nil {
			h.logger.Error("Failed to publish payment event", zap.Error(err))
		}
	}

	if h.mailer == nil {
		return
	}

	paymentPhrase := "Your payment"
	receivedPhrase := "Payment"
	if pending != nil {
		formatted := currency.Format(pending.Amount, "MWK")
		paymentPhrase = fmt.Sprintf("Your payment of <strong>%s</strong>", formatted)
		receivedPhrase = fmt.Sprintf("Payment of <strong>%s</strong>", formatted)
	}
	receipt := fmt.Sprintf(
		"<p>%s for shipment <strong>%s</strong> has been received.</p><p>Transaction reference: %s</p>",
		paymentPhrase, shipment.TrackingNumber, session.PaymentIntent)

	if clientEmail, err := h.store.ClientEmail(ctx, shipment.ID); err != nil {
		h.logger.Error("Failed to resolve client email", zap.Error(err))
	} else if clientEmail != "" {
		if err := h.mailer.SendEmail(clientEmail, "Payment Receipt - "+shipment.TrackingNumber, receipt); err != nil {
			h.logger.Error("Failed to send receipt email", zap.Error(err))
		}
	}

	admins, err := h.store.ActiveAdminEmails(ctx)
	if err != nil {
		h.logger.Error("Failed to list admin emails", zap.Error(err))
		return
	}
	adminBody := fmt.Sprintf(
		"<p>%s received via Stripe for shipment <strong>%s</strong> (%s).</p>",
		receivedPhrase, shipment.TrackingNumber, shipment.CompanyName)
	for _, email := range admins {
		if err := h.mailer.SendEmail(email, "Payment Received - "+shipment.TrackingNumber, adminBody); err != nil {
			h.logger.Error("Failed to send admin email", zap.String("to", email), zap.Error(err))
		}
	}
}

// PaymentCancel renders the cancelled-checkout page. The payment row stays
// pending; the client can retry or pay manually.
// GET /payments/cancel?shipment_id=...
func (h *PaymentHandler) PaymentCancel(c *gin.Context) {
	if _, ok := middleware.GetIdentity(c); !ok {
		c.Redirect(http.StatusFound, "/login")
		return
	}
	shipmentID, _ := strconv.Atoi(c.Query("shipment_id"))
	c.HTML(http.StatusOK, "payment_cancel.html", gin.H{"ShipmentID": shipmentID})
}

// SubmitManualPayment records client-asserted proof of an out-of-band payment.
// POST /payments/manual with form fields shipment_id, payment_method,
// transaction_ref. Responds with a redirect plus a flash message.
func (h *PaymentHandler) SubmitManualPayment(c *gin.Context) {
	ctx, span := otel.Tracer("clearance-service").Start(c.Request.Context(), "SubmitManualPayment")
	defer span.End()

	identity, ok := middleware.GetIdentity(c)
	if !ok {
		c.Redirect(http.StatusFound, "/login")
		return
	}

	var req models.ManualPaymentRequest
	if err := c.ShouldBind(&req); err != nil {
		h.flashAndRedirect(c, identity.UserID, "error", "All fields are required",
			paymentPagePath(req.ShipmentID))
		return
	}
	req.TransactionRef = strings.TrimSpace(req.TransactionRef)
	if req.ShipmentID <= 0 || req.PaymentMethod == "" || req.TransactionRef == "" {
		h.flashAndRedirect(c, identity.UserID, "error", "All fields are required",
			paymentPagePath(req.ShipmentID))
		return
	}

	span.SetAttributes(
		attribute.Int("shipment_id", req.ShipmentID),
		attribute.String("payment_method", req.PaymentMethod),
	)

	shipment, err := h.store.FindOwnedShipment(ctx, req.ShipmentID, identity.UserID)
	if err != nil {
		span.RecordError(err)
		h.logger.Error("Failed to look up shipment", zap.Error(err))
		h.flashAndRedirect(c, identity.UserID, "error", "Error processing payment", trackingPath)
		return
	}
	if shipment == nil {
		h.flashAndRedirect(c, identity.UserID, "error", "Shipment not found", trackingPath)
		return
	}

	recorded, err := h.store.RecordManualPayment(ctx, req.ShipmentID, req.PaymentMethod, req.TransactionRef)
	if err != nil {
		span.RecordError(err)
		h.logger.Error("Failed to record manual payment", zap.Error(err))
		h.flashAndRedirect(c, identity.UserID, "error", "Error processing payment",
			paymentPagePath(req.ShipmentID))
		return
	}
	if !recorded {
		h.flashAndRedirect(c, identity.UserID, "error", "No pending payment found for this shipment",
			paymentPagePath(req.ShipmentID))
		return
	}

	if err := h.store.LogActivity(ctx, identity.UserID, "manual_payment_submitted", categoryPayment, shipment.ID,
		fmt.Sprintf("Manual payment submitted (%s) for shipment %s", req.PaymentMethod, shipment.TrackingNumber)); err != nil {
		h.logger.Error("Failed to log activity", zap.Error(err))
	}

	if h.notifier != nil {
		err := h.notifier.NotifyAdmin(ctx,
			"Manual Payment Submitted - "+shipment.TrackingNumber,
			fmt.Sprintf("A manual payment (%s) has been submitted for shipment %s (%s). Transaction Reference: %s. Please verify the payment.",
				req.PaymentMethod, shipment.TrackingNumber, shipment.CompanyName, req.TransactionRef),
			"info", categoryPayment, shipment.ID)
		if err != nil {
			h.logger.Error("Failed to notify admin", zap.Error(err))
		}
	}

	if h.events != nil {
		event := models.PaymentEvent{
			EventID:    uuid.NewString(),
			ShipmentID: shipment.ID,
			Tracking:   shipment.TrackingNumber,
			Status:     models.PaymentStatusPending,
			EventType:  "manual_payment_submitted",
			Method:     req.PaymentMethod,
			Reference:  req.TransactionRef,
		}
		if err := h.events.PublishPaymentEvent(ctx, event); err != nil {
			h.logger.Error("Failed to publish payment event", zap.Error(err))
		}
	}

	h.flashAndRedirect(c, identity.UserID, "success",
		"Payment information submitted successfully. An admin will verify your payment shortly.",
		fmt.Sprintf("%s?shipment_id=%d", trackingPath, shipment.ID))
}

// GetPendingPayment returns the payment page data: shipment summary, the
// declared charge and its USD conversion for the hosted checkout.
// GET /api/payments/pending/:shipment_id
func (h *PaymentHandler) GetPendingPayment(c *gin.Context) {
	ctx, span := otel.Tracer("clearance-service").Start(c.Request.Context(), "GetPendingPayment")
	defer span.End()

	identity, ok := middleware.GetIdentity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	shipmentID, err := strconv.Atoi(c.Param("shipment_id"))
	if err != nil || shipmentID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid shipment ID"})
		return
	}

	shipment, err := h.store.FindOwnedShipment(ctx, shipmentID, identity.UserID)
	if err != nil {
		span.RecordError(err)
		h.logger.Error("Failed to look up shipment", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	if shipment == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Shipment not found"})
		return
	}

	payment, err := h.store.FindPendingPayment(ctx, shipmentID)
	if err != nil {
		span.RecordError(err)
		h.logger.Error("Failed to load pending payment", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	view := models.PendingPaymentView{Shipment: *shipment, Payment: payment}
	if payment != nil {
		rate := currency.USDRate()
		if h.rdb != nil {
			if override, err := cache.GetRate(ctx, h.rdb, "USD"); err != nil {
				h.logger.Warn("Failed to read rate override", zap.Error(err))
			} else if override > 0 {
				rate = override
			}
		}
		view.AmountMWK = payment.Amount
		view.AmountUSD, view.AmountCents = currency.ToUSDCents(payment.Amount, rate)
	}

	if h.rdb != nil {
		if flash, err := cache.PopFlash(ctx, h.rdb, identity.UserID); err != nil {
			h.logger.Warn("Failed to pop flash message", zap.Error(err))
		} else {
			view.Flash = flash
		}
	}

	c.JSON(http.StatusOK, view)
}

func (h *PaymentHandler) renderOutcome(c *gin.Context, shipmentID int, success bool, errMsg string) {
	c.HTML(http.StatusOK, "payment_success.html", gin.H{
		"Success":    success,
		"Error":      errMsg,
		"ShipmentID": shipmentID,
	})
}

func (h *PaymentHandler) flashAndRedirect(c *gin.Context, userID int, kind, message, location string) {
	if h.rdb != nil {
		if err := cache.SetFlash(c.Request.Context(), h.rdb, userID, models.Flash{Kind: kind, Message: message}); err != nil {
			h.logger.Warn("Failed to set flash message", zap.Error(err))
		}
	}
	c.Redirect(http.StatusFound, location)
}

// paymentPagePath points back at the shipment's payment page. A failed form
// bind leaves no usable shipment ID, so the redirect falls back to the
// tracking page instead of a payment page that does not exist.
func paymentPagePath(shipmentID int) string {
	if shipmentID <= 0 {
		return trackingPath
	}
	return fmt.Sprintf("/payments/%d", shipmentID)
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
