package pgstore

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"wellsite/internal/booking"
)

// Booking mirrors the site's bookings table.
type Booking struct {
	ID            string     `gorm:"primaryKey;type:uuid"`
	SessionID     string     `gorm:"type:uuid;index"`
	ClientName    string     `gorm:"type:varchar(255);not null"`
	ClientEmail   string     `gorm:"type:varchar(255);not null"`
	ClientPhone   *string    `gorm:"type:varchar(64)"`
	Note          *string    `gorm:"type:text"`
	ServiceID     *string    `gorm:"index"`
	TimeSlotID    *string    `gorm:"index"`
	SessionFormat string     `gorm:"type:varchar(20);not null"`
	StartDatetime *time.Time
	EndDatetime   *time.Time
	Status        string    `gorm:"type:varchar(20);not null;default:'pending'"`
	CreatedAt     time.Time `gorm:"default:CURRENT_TIMESTAMP"`
	UpdatedAt     time.Time
}

func (Booking) TableName() string {
	return "bookings"
}

// Repository inserts confirmed wizard bookings. Inserts are keyed by the
// request ID, so a replayed request is a no-op.
type Repository struct {
	db      *gorm.DB
	catalog booking.Catalog
}

func NewRepository(databaseURL string, catalog booking.Catalog) (*Repository, error) {
	db, err := gorm.Open(postgres.Open(databaseURL), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := db.AutoMigrate(&Booking{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return &Repository{db: db, catalog: catalog}, nil
}

func (r *Repository) Submit(ctx context.Context, req booking.Request) error {
	row := toRow(req, r.catalog)
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, DoNothing: true}).
		Create(&row).Error
	if err != nil {
		return fmt.Errorf("failed to create booking: %w", err)
	}
	return nil
}

func (r *Repository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func toRow(req booking.Request, catalog booking.Catalog) Booking {
	p := req.Payload
	row := Booking{
		ID:            req.ID,
		SessionID:     req.SessionID,
		ClientName:    p.Contact.Name,
		ClientEmail:   p.Contact.Email,
		ClientPhone:   optional(p.Contact.Phone),
		Note:          optional(p.Contact.Note),
		ServiceID:     optional(p.ServiceID),
		TimeSlotID:    optional(p.SlotID),
		SessionFormat: sessionFormat(p.SessionType),
		Status:        "pending",
		CreatedAt:     req.RequestedAt,
	}
	if slot, ok := catalog.Slot(p.SlotID); ok {
		row.StartDatetime = parseISO(slot.StartISO)
		row.EndDatetime = parseISO(slot.EndISO)
	}
	return row
}

// sessionFormat maps the wizard's session types onto the table's enum.
func sessionFormat(t booking.SessionType) string {
	if t == booking.SessionInPerson {
		return "in_person"
	}
	return string(t)
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func parseISO(s string) *time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil
	}
	return &t
}
