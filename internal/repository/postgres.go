package repository

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormLogger "gorm.io/gorm/logger"

	"github.com/core-coin/payportal/internal/models"
	"github.com/core-coin/payportal/pkg/logger"
)

type PostgresDB struct {
	logger *logger.Logger

	Conn *gorm.DB
}

func NewPostgresDB(user, password, dbname, host string, port int, logger *logger.Logger) (*PostgresDB, error) {
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=disable",
		host, user, password, dbname, port)

	// Configure GORM logger to suppress "record not found" messages
	gormLogger := gormLogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormLogger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  gormLogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  true,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLogger, TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	if err := db.AutoMigrate(&models.PaymentLink{}, &models.Payment{}, &models.Subscription{}, &models.AppLock{}); err != nil {
		return nil, fmt.Errorf("failed to auto-migrate models: %w", err)
	}
	logger.Info("Successfully connected to PostgreSQL!")
	return &PostgresDB{Conn: db, logger: logger}, nil
}

func (db *PostgresDB) Close() error {
	sqlDB, err := db.Conn.DB()
	if err != nil {
		return fmt.Errorf("failed to get database connection: %w", err)
	}
	return sqlDB.Close()
}

// notFound maps gorm's missing-row error onto models.ErrNotFound.
func notFound(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.ErrNotFound
	}
	return fmt.Errorf("failed to get %s: %w", what, err)
}

func (db *PostgresDB) CreatePaymentLink(ctx context.Context, link *models.PaymentLink) error {
	if err := db.Conn.WithContext(ctx).Create(link).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return models.ErrAlreadyExists
		}
		return fmt.Errorf("failed to create payment link: %w", err)
	}
	return nil
}

func (db *PostgresDB) GetPaymentLink(ctx context.Context, id string) (*models.PaymentLink, error) {
	var link models.PaymentLink
	if err := db.Conn.WithContext(ctx).Where("id = ?", id).First(&link).Error; err != nil {
		return nil, notFound(err, "payment link")
	}
	return &link, nil
}

func (db *PostgresDB) UpdatePaymentLink(ctx context.Context, link *models.PaymentLink) error {
	res := db.Conn.WithContext(ctx).Model(&models.PaymentLink{}).Where("id = ?", link.ID).
		Select("*").Omit("created_at", "used_count").Updates(link)
	if res.Error != nil {
		return fmt.Errorf("failed to update payment link: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (db *PostgresDB) DeletePaymentLink(ctx context.Context, id string) error {
	res := db.Conn.WithContext(ctx).Where("id = ?", id).Delete(&models.PaymentLink{})
	if res.Error != nil {
		return fmt.Errorf("failed to delete payment link: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (db *PostgresDB) ListPaymentLinks(ctx context.Context) ([]*models.PaymentLink, error) {
	var links []*models.PaymentLink
	if err := db.Conn.WithContext(ctx).Order("created_at").Find(&links).Error; err != nil {
		return nil, fmt.Errorf("failed to list payment links: %w", err)
	}
	return links, nil
}

func (db *PostgresDB) IncrementLinkUsage(ctx context.Context, id string) (int, error) {
	var link models.PaymentLink
	res := db.Conn.WithContext(ctx).Model(&link).
		Clauses(clause.Returning{Columns: []clause.Column{{Name: "used_count"}}}).
		Where("id = ?", id).
		UpdateColumns(map[string]interface{}{
			"used_count": gorm.Expr("used_count + 1"),
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to increment link usage: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return 0, models.ErrNotFound
	}
	return link.UsedCount, nil
}

func (db *PostgresDB) GetOrCreatePayment(ctx context.Context, payment *models.Payment) (*models.Payment, bool, error) {
	res := db.Conn.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "chain_id"}, {Name: "tx_hash"}},
			DoNothing: true,
		}).
		Create(payment)
	if res.Error != nil {
		return nil, false, fmt.Errorf("failed to create payment: %w", res.Error)
	}
	if res.RowsAffected == 1 {
		return payment, true, nil
	}
	existing, err := db.GetPaymentByTxHash(ctx, payment.ChainID, payment.TxHash)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (db *PostgresDB) GetPaymentByTxHash(ctx context.Context, chainID int64, txHash string) (*models.Payment, error) {
	var payment models.Payment
	if err := db.Conn.WithContext(ctx).Where("chain_id = ? AND tx_hash = ?", chainID, txHash).First(&payment).Error; err != nil {
		return nil, notFound(err, "payment")
	}
	return &payment, nil
}

func (db *PostgresDB) GetConfirmedPayment(ctx context.Context, linkID string) (*models.Payment, error) {
	var payment models.Payment
	if err := db.Conn.WithContext(ctx).
		Where("payment_link_id = ? AND confirmed = ?", linkID, true).
		Order("created_at").
		First(&payment).Error; err != nil {
		return nil, notFound(err, "confirmed payment")
	}
	return &payment, nil
}

func (db *PostgresDB) MarkPaymentConfirmed(ctx context.Context, id string, fromAddress, amount string, at time.Time) (bool, error) {
	updates := map[string]interface{}{
		"confirmed":    true,
		"confirmed_at": at,
	}
	if fromAddress != "" {
		updates["from_address"] = fromAddress
	}
	if amount != "" {
		updates["amount"] = amount
	}
	res := db.Conn.WithContext(ctx).Model(&models.Payment{}).
		Where("id = ? AND confirmed = ?", id, false).
		UpdateColumns(updates)
	if res.Error != nil {
		return false, fmt.Errorf("failed to confirm payment: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (db *PostgresDB) ListPayments(ctx context.Context, linkID string) ([]*models.Payment, error) {
	var payments []*models.Payment
	q := db.Conn.WithContext(ctx).Order("created_at")
	if linkID != "" {
		q = q.Where("payment_link_id = ?", linkID)
	}
	if err := q.Find(&payments).Error; err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	return payments, nil
}

func (db *PostgresDB) CreateSubscription(ctx context.Context, sub *models.Subscription) (*models.Subscription, bool, error) {
	res := db.Conn.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "payment_link_id"}, {Name: "subscriber_address"}},
			DoNothing: true,
		}).
		Create(sub)
	if res.Error != nil {
		return nil, false, fmt.Errorf("failed to create subscription: %w", res.Error)
	}
	if res.RowsAffected == 1 {
		return sub, true, nil
	}
	existing, err := db.GetSubscriptionByAddress(ctx, sub.PaymentLinkID, sub.SubscriberAddress)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (db *PostgresDB) GetSubscription(ctx context.Context, id string) (*models.Subscription, error) {
	var sub models.Subscription
	if err := db.Conn.WithContext(ctx).Where("id = ?", id).First(&sub).Error; err != nil {
		return nil, notFound(err, "subscription")
	}
	return &sub, nil
}

func (db *PostgresDB) GetSubscriptionByAddress(ctx context.Context, linkID, address string) (*models.Subscription, error) {
	var sub models.Subscription
	if err := db.Conn.WithContext(ctx).
		Where("payment_link_id = ? AND subscriber_address = ?", linkID, address).
		First(&sub).Error; err != nil {
		return nil, notFound(err, "subscription")
	}
	return &sub, nil
}

func (db *PostgresDB) UpdateSubscription(ctx context.Context, sub *models.Subscription) error {
	res := db.Conn.WithContext(ctx).Model(&models.Subscription{}).Where("id = ?", sub.ID).
		Select("*").Omit("created_at").Updates(sub)
	if res.Error != nil {
		return fmt.Errorf("failed to update subscription: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (db *PostgresDB) ListSubscriptions(ctx context.Context, linkID string) ([]*models.Subscription, error) {
	var subs []*models.Subscription
	q := db.Conn.WithContext(ctx).Order("created_at")
	if linkID != "" {
		q = q.Where("payment_link_id = ?", linkID)
	}
	if err := q.Find(&subs).Error; err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}
	return subs, nil
}

func (db *PostgresDB) GetSubscriptionsDue(ctx context.Context, before time.Time) ([]*models.Subscription, error) {
	var subs []*models.Subscription
	if err := db.Conn.WithContext(ctx).
		Where("status IN ? AND next_payment_due < ?",
			[]models.SubscriptionStatus{models.SubscriptionActive, models.SubscriptionPastDue}, before).
		Order("next_payment_due").
		Find(&subs).Error; err != nil {
		return nil, fmt.Errorf("failed to get due subscriptions: %w", err)
	}
	return subs, nil
}

// TryLock takes over name if it is free, expired or already held by instanceID.
func (db *PostgresDB) TryLock(ctx context.Context, name, instanceID string, ttl time.Duration) (bool, error) {
	now := time.Now()
	lock := &models.AppLock{
		LockName:   name,
		InstanceID: instanceID,
		AcquiredAt: now.Unix(),
		ExpiresAt:  now.Add(ttl).Unix(),
	}
	res := db.Conn.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "lock_name"}},
			DoUpdates: clause.AssignmentColumns([]string{"instance_id", "acquired_at", "expires_at"}),
			Where: clause.Where{Exprs: []clause.Expression{
				gorm.Expr("app_locks.expires_at < ? OR app_locks.instance_id = ?", now.Unix(), instanceID),
			}},
		}).
		Create(lock)
	if res.Error != nil {
		return false, fmt.Errorf("failed to acquire lock %s: %w", name, res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (db *PostgresDB) Unlock(ctx context.Context, name, instanceID string) error {
	if err := db.Conn.WithContext(ctx).
		Where("lock_name = ? AND instance_id = ?", name, instanceID).
		Delete(&models.AppLock{}).Error; err != nil {
		return fmt.Errorf("failed to release lock %s: %w", name, err)
	}
	return nil
}
