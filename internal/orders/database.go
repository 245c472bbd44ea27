package orders

import (
	"gorm.io/gorm"

	"github.com/quorumtrade/quorum-api/internal/types"
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

// CreateOrder persists a new order record.
func (d *Database) CreateOrder(order *types.Order) error {
	return d.db.Create(order).Error
}

// GetOrder retrieves an order with its fills by client order id.
func (d *Database) GetOrder(clientOrderID string) (*types.Order, error) {
	var order types.Order
	if err := d.db.Preload("Fills").Where("client_order_id = ?", clientOrderID).First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

// SaveOrder persists updated order fields.
func (d *Database) SaveOrder(order *types.Order) error {
	return d.db.Save(order).Error
}

// AppendFill records one fill.
func (d *Database) AppendFill(fill *types.Fill) error {
	return d.db.Create(fill).Error
}

// ListByStatus returns orders currently in any of the given states, for
// the reconciliation poller.
func (d *Database) ListByStatus(statuses []string) ([]types.Order, error) {
	var orders []types.Order
	if err := d.db.Preload("Fills").Where("execution_status IN ?", statuses).Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}
