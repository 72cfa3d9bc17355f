// Package shipment requests physical delivery of printed access material to a
// beneficiary's postal address. Carrier integrations are external.
package shipment

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
)

//go:generate mockgen -source=shipment.go -destination=mocks/mocks.go -package=mocks Carrier

type Carrier interface {
	CreateShipment(ctx context.Context, to Recipient, description string) (*Shipment, error)
}

type Address struct {
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

// Complete reports whether the address has every field a carrier needs.
// Line2 is optional.
func (a Address) Complete() bool {
	for _, f := range []string{a.Line1, a.City, a.PostalCode, a.Country} {
		if strings.TrimSpace(f) == "" {
			return false
		}
	}
	return true
}

type Recipient struct {
	Name    string
	Address Address
}

type Shipment struct {
	ID        string
	Tracking  string
	CreatedAt time.Time
}

// NoopCarrier accepts every shipment without sending anything.
type NoopCarrier struct{}

func (NoopCarrier) CreateShipment(_ context.Context, _ Recipient, _ string) (*Shipment, error) {
	return &Shipment{ID: uuid.NewString(), CreatedAt: time.Now()}, nil
}

// LogCarrier records shipments in the log with a synthetic tracking number.
type LogCarrier struct {
	logger *slog.Logger
	now    func() time.Time
}

func NewLogCarrier(logger *slog.Logger) *LogCarrier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogCarrier{logger: logger, now: time.Now}
}

func (c *LogCarrier) CreateShipment(ctx context.Context, to Recipient, description string) (*Shipment, error) {
	if !to.Address.Complete() {
		return nil, fmt.Errorf("incomplete address for %q", to.Name)
	}
	id := uuid.New()
	s := &Shipment{
		ID:        id.String(),
		Tracking:  "KS" + strings.ToUpper(strings.ReplaceAll(id.String(), "-", "")[:12]),
		CreatedAt: c.now(),
	}
	c.logger.InfoContext(ctx, "shipment created",
		"shipment_id", s.ID,
		"tracking", s.Tracking,
		"country", to.Address.Country,
		"description", description,
	)
	return s, nil
}
