package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"clearance-svc/models"
)

// Store is the typed data access the payment handlers work against, so the
// reconciliation logic is testable without a live database.
type Store interface {
	// FindOwnedShipment resolves a shipment only when it belongs to the given
	// user. Returns nil, nil when it doesn't - ownership misses and absent
	// rows are indistinguishable to the caller.
	FindOwnedShipment(ctx context.Context, shipmentID, userID int) (*models.Shipment, error)

	// FindPendingPayment returns the latest actionable pending payment for a
	// shipment, nil when there is none.
	FindPendingPayment(ctx context.Context, shipmentID int) (*models.Payment, error)

	// MarkPaymentCompleted atomically moves the pending payment row to
	// completed and mirrors the status onto the shipment. The returned flag
	// reports whether the guarded update actually affected a row; a repeat
	// call for an already-completed payment commits as a no-op and returns
	// false.
	MarkPaymentCompleted(ctx context.Context, shipmentID int, method, transactionID string) (bool, error)

	// RecordManualPayment stores client-submitted payment evidence against the
	// pending row. Status stays pending until an admin verifies it.
	RecordManualPayment(ctx context.Context, shipmentID int, method, transactionRef string) (bool, error)

	LogActivity(ctx context.Context, userID int, action, category string, entityID int, message string) error

	// ClientEmail returns the email of the user owning a shipment's client.
	ClientEmail(ctx context.Context, shipmentID int) (string, error)

	// ActiveAdminEmails lists recipients for admin-facing receipts.
	ActiveAdminEmails(ctx context.Context) ([]string, error)
}

type sqlStore struct {
	db *sql.DB
}

func New(db *sql.DB) Store {
	return &sqlStore{db: db}
}

func (s *sqlStore) FindOwnedShipment(ctx context.Context, shipmentID, userID int) (*models.Shipment, error) {
	var shipment models.Shipment
	err := s.db.QueryRowContext(ctx,
		`SELECT s.shipment_id, s.client_id, s.tracking_number, s.goods_description,
		        s.origin_country, s.destination_port, s.payment_status, c.company_name,
		        s.created_at, s.updated_at
		 FROM shipments s
		 JOIN clients c ON s.client_id = c.client_id
		 WHERE s.shipment_id = $1 AND c.user_id = $2`,
		shipmentID, userID,
	).Scan(
		&shipment.ID,
		&shipment.ClientID,
		&shipment.TrackingNumber,
		&shipment.GoodsDescription,
		&shipment.OriginCountry,
		&shipment.DestinationPort,
		&shipment.PaymentStatus,
		&shipment.CompanyName,
		&shipment.CreatedAt,
		&shipment.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find shipment: %w", err)
	}
	return &shipment, nil
}

func (s *sqlStore) FindPendingPayment(ctx context.Context, shipmentID int) (*models.Payment, error) {
	var payment models.Payment
	var method, txnID sql.NullString
	var paymentDate sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT payment_id, shipment_id, amount, status, payment_method, transaction_id,
		        payment_date, created_at, updated_at
		 FROM payments
		 WHERE shipment_id = $1 AND status = 'pending'
		 ORDER BY created_at DESC
		 LIMIT 1`,
		shipmentID,
	).Scan(
		&payment.ID,
		&payment.ShipmentID,
		&payment.Amount,
		&payment.Status,
		&method,
		&txnID,
		&paymentDate,
		&payment.CreatedAt,
		&payment.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find pending payment: %w", err)
	}
	payment.PaymentMethod = method.String
	payment.TransactionID = txnID.String
	if paymentDate.Valid {
		payment.PaymentDate = &paymentDate.Time
	}
	return &payment, nil
}

func (s *sqlStore) MarkPaymentCompleted(ctx context.Context, shipmentID int, method, transactionID string) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// The status guard makes the transition idempotent: a duplicate success
	// redirect matches zero rows here.
	res, err := tx.ExecContext(ctx,
		`UPDATE payments SET
			status = 'completed',
			payment_method = $2,
			transaction_id = $3,
			payment_date = NOW(),
			updated_at = NOW()
		 WHERE shipment_id = $1 AND status = 'pending'`,
		shipmentID, method, transactionID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to update payment: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE shipments SET
			payment_status = 'completed',
			updated_at = NOW()
		 WHERE shipment_id = $1`,
		shipmentID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to update shipment: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit: %w", err)
	}
	return rows > 0, nil
}

func (s *sqlStore) RecordManualPayment(ctx context.Context, shipmentID int, method, transactionRef string) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Status stays pending: manual evidence still needs human verification.
	res, err := tx.ExecContext(ctx,
		`UPDATE payments SET
			payment_method = $2,
			transaction_id = $3,
			payment_date = NOW(),
			updated_at = NOW()
		 WHERE shipment_id = $1 AND status = 'pending'`,
		shipmentID, method, transactionRef,
	)
	if err != nil {
		return false, fmt.Errorf("failed to record manual payment: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit: %w", err)
	}
	return rows > 0, nil
}

func (s *sqlStore) LogActivity(ctx context.Context, userID int, action, category string, entityID int, message string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO activity_log (user_id, action, category, entity_id, message)
		 VALUES ($1, $2, $3, $4, $5)`,
		userID, action, category, entityID, message,
	)
	if err != nil {
		return fmt.Errorf("failed to log activity: %w", err)
	}
	return nil
}

func (s *sqlStore) ClientEmail(ctx context.Context, shipmentID int) (string, error) {
	var email string
	err := s.db.QueryRowContext(ctx,
		`SELECT u.email
		 FROM shipments s
		 JOIN clients c ON s.client_id = c.client_id
		 JOIN users u ON c.user_id = u.id
		 WHERE s.shipment_id = $1`,
		shipmentID,
	).Scan(&email)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to find client email: %w", err)
	}
	return email, nil
}

func (s *sqlStore) ActiveAdminEmails(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT email FROM users WHERE role = 'admin' AND is_active = TRUE`)
	if err != nil {
		return nil, fmt.Errorf("failed to list admin emails: %w", err)
	}
	defer rows.Close()

	var emails []string
	for rows.Next() {
		var email string
		if err := rows.Scan(&email); err != nil {
			return nil, err
		}
		emails = append(emails, email)
	}
	return emails, rows.Err()
}
