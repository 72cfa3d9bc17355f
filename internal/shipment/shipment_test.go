package shipment

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fullAddress = Address{
	Line1:      "12 Harbour Road",
	City:       "Galway",
	PostalCode: "H91 X2Y3",
	Country:    "IE",
}

func TestAddress_Complete(t *testing.T) {
	assert.True(t, fullAddress.Complete())

	missing := fullAddress
	missing.PostalCode = " "
	assert.False(t, missing.Complete())

	assert.False(t, Address{}.Complete())
}

func TestLogCarrier(t *testing.T) {
	var buf bytes.Buffer
	c := NewLogCarrier(slog.New(slog.NewTextHandler(&buf, nil)))

	s, err := c.CreateShipment(context.Background(), Recipient{Name: "Ada", Address: fullAddress}, "vault access kit")
	require.NoError(t, err)
	assert.NotEmpty(t, s.ID)
	assert.Len(t, s.Tracking, 14)
	assert.Contains(t, buf.String(), s.Tracking)
	assert.NotContains(t, buf.String(), "Harbour Road")

	_, err = c.CreateShipment(context.Background(), Recipient{Name: "Bo"}, "kit")
	assert.Error(t, err)
}

func TestNoopCarrier(t *testing.T) {
	s, err := NoopCarrier{}.CreateShipment(context.Background(), Recipient{}, "kit")
	require.NoError(t, err)
	assert.Empty(t, s.Tracking)
}
