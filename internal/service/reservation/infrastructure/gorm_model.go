// internal/service/reservation/infrastructure/gorm_model.go
package infrastructure

import (
	"time"

	"github.com/TheBigWealth89/product-reservation/internal/service/reservation/domain"
)

// ProductModel 对应数据库中的 products 表。
type ProductModel struct {
	ID        string  `gorm:"primaryKey;size:64"`
	Name      string  `gorm:"size:255"`
	Price     float64 `gorm:"type:decimal(10,2);not null"`
	Inventory int64   `gorm:"not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName 指定 GORM 应该使用的表名
func (ProductModel) TableName() string {
	return "products"
}

// ReservationModel 对应数据库中的 reservations 表。
type ReservationModel struct {
	ID            uint   `gorm:"primaryKey"`
	ProductID     string `gorm:"index;size:64;not null"`
	UserID        string `gorm:"index;size:64;not null"`
	ReservationID string `gorm:"uniqueIndex;size:191;not null"`
	Status        string `gorm:"index;size:32;not null;default:pending"`
	ExpiresAt     time.Time
	Amount        float64 `gorm:"type:decimal(10,2)"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
	CompletedAt   *time.Time
}

// TableName 指定 GORM 应该使用的表名
func (ReservationModel) TableName() string {
	return "reservations"
}

// SettlementJobModel 对应数据库中的 settlement_jobs 表。
type SettlementJobModel struct {
	ID        string `gorm:"primaryKey;size:36"`
	Type      string `gorm:"size:32;not null"`
	Payload   string `gorm:"type:text"`
	Attempts  int    `gorm:"not null;default:0"`
	State     string `gorm:"index;size:16;not null"`
	LastError string `gorm:"type:text"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName 指定 GORM 应该使用的表名
func (SettlementJobModel) TableName() string {
	return "settlement_jobs"
}

func toDomainReservation(m *ReservationModel) *domain.Reservation {
	return &domain.Reservation{
		ID:            m.ID,
		ProductID:     m.ProductID,
		UserID:        m.UserID,
		ReservationID: m.ReservationID,
		Status:        domain.Status(m.Status),
		ExpiresAt:     m.ExpiresAt,
		Amount:        m.Amount,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
		CompletedAt:   m.CompletedAt,
	}
}

func toDomainProduct(m *ProductModel) *domain.Product {
	return &domain.Product{
		ID:        m.ID,
		Name:      m.Name,
		Price:     m.Price,
		Inventory: m.Inventory,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

func toDomainJobRecord(m *SettlementJobModel) *domain.SettlementJobRecord {
	return &domain.SettlementJobRecord{
		ID:        m.ID,
		Type:      domain.JobType(m.Type),
		Payload:   m.Payload,
		Attempts:  m.Attempts,
		State:     domain.JobState(m.State),
		LastError: m.LastError,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}
