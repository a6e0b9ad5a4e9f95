package cart

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/teeprintlabs/teeprint-backend/pkg/db/models"
)

// Repository exposes persistence operations for carts.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a cart repository bound to the provided DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx binds the repository to a transaction.
func (r *Repository) WithTx(tx *gorm.DB) CartRepository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// FindByUser loads the user's cart with its items and attached coupon.
func (r *Repository) FindByUser(ctx context.Context, userID uuid.UUID) (*models.Cart, error) {
	var cart models.Cart
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC")
		}).
		Preload("Coupon").
		Where("user_id = ?", userID).
		First(&cart).Error
	if err != nil {
		return nil, err
	}
	return &cart, nil
}

// FindByID loads a cart by primary key with items and coupon.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Cart, error) {
	var cart models.Cart
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC")
		}).
		Preload("Coupon").
		Where("id = ?", id).
		First(&cart).Error
	if err != nil {
		return nil, err
	}
	return &cart, nil
}

// Create inserts a new cart.
func (r *Repository) Create(ctx context.Context, cart *models.Cart) (*models.Cart, error) {
	if cart.ID == uuid.Nil {
		cart.ID = uuid.New()
	}
	if cart.Version == 0 {
		cart.Version = 1
	}
	if err := r.db.WithContext(ctx).Omit("Items", "Coupon").Create(cart).Error; err != nil {
		return nil, err
	}
	return cart, nil
}

// SaveVersioned persists the cart header only when the stored version still
// matches the expected one, bumping the version in the same statement. A false
// return means another mutation won the race.
func (r *Repository) SaveVersioned(ctx context.Context, cart *models.Cart, expectedVersion int64) (bool, error) {
	updates := map[string]any{
		"version":     expectedVersion + 1,
		"coupon_id":   cart.CouponID,
		"items_total": cart.ItemsTotal,
		"discount":    cart.Discount,
		"tax":         cart.Tax,
		"shipping":    cart.Shipping,
		"total":       cart.Total,
	}
	result := r.db.WithContext(ctx).
		Model(&models.Cart{}).
		Where("id = ? AND version = ?", cart.ID, expectedVersion).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	if result.RowsAffected == 0 {
		return false, nil
	}
	cart.Version = expectedVersion + 1
	return true, nil
}

// ReplaceItems atomically replaces the items belonging to a cart.
func (r *Repository) ReplaceItems(ctx context.Context, cartID uuid.UUID, items []models.CartItem) error {
	tx := r.db.WithContext(ctx)
	if err := tx.Where("cart_id = ?", cartID).Delete(&models.CartItem{}).Error; err != nil {
		return err
	}
	if len(items) == 0 {
		return nil
	}
	for i := range items {
		if items[i].ID == uuid.Nil {
			items[i].ID = uuid.New()
		}
		items[i].CartID = cartID
	}
	return tx.Create(&items).Error
}

// Empty removes every item, detaches the coupon and zeroes the cached totals.
// Used after a successful checkout inside the same transaction.
func (r *Repository) Empty(ctx context.Context, cartID uuid.UUID) error {
	tx := r.db.WithContext(ctx)
	if err := tx.Where("cart_id = ?", cartID).Delete(&models.CartItem{}).Error; err != nil {
		return err
	}
	return tx.Model(&models.Cart{}).
		Where("id = ?", cartID).
		Updates(map[string]any{
			"coupon_id":   nil,
			"items_total": decimal.Zero,
			"discount":    decimal.Zero,
			"tax":         decimal.Zero,
			"shipping":    decimal.Zero,
			"total":       decimal.Zero,
			"version":     gorm.Expr("version + 1"),
		}).Error
}
