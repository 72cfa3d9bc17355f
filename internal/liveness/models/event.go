// Package models holds the append-only liveness event log. Each event kind is
// its own payload type; Event serializes as {"event_type", "event_data"}.
package models

import (
	"encoding/json"
	"fmt"
	"time"

	id "keepsake/pkg/domain"
	dErrors "keepsake/pkg/domain-errors"
)

type EventType string

const (
	EventWarningSent        EventType = "warning_sent"
	EventGracePeriodStarted EventType = "grace_period_started"
	EventAssetsReleased     EventType = "assets_released"
	EventHeartbeatReceived  EventType = "heartbeat_received"
	EventSwitchActivated    EventType = "switch_activated"
	EventSwitchDeactivated  EventType = "switch_deactivated"
)

// Payload is implemented only by the event kinds in this package.
type Payload interface {
	Type() EventType
	isPayload()
}

type WarningSent struct {
	Deadline time.Time `json:"deadline"`
}

type GracePeriodStarted struct {
	GraceEndsAt time.Time `json:"grace_ends_at"`
}

type AssetsReleased struct {
	BeneficiaryID    id.BeneficiaryID `json:"beneficiary_id"`
	ShipmentTracking string           `json:"shipment_tracking,omitempty"`
}

type HeartbeatReceived struct {
	PreviousStatus string `json:"previous_status"`
}

type SwitchActivated struct {
	AdminAction bool       `json:"admin_action"`
	OperatorID  id.OwnerID `json:"operator_id,omitzero"`
}

type SwitchDeactivated struct {
	Reason string `json:"reason"`
}

func (WarningSent) Type() EventType        { return EventWarningSent }
func (GracePeriodStarted) Type() EventType { return EventGracePeriodStarted }
func (AssetsReleased) Type() EventType     { return EventAssetsReleased }
func (HeartbeatReceived) Type() EventType  { return EventHeartbeatReceived }
func (SwitchActivated) Type() EventType    { return EventSwitchActivated }
func (SwitchDeactivated) Type() EventType  { return EventSwitchDeactivated }

func (WarningSent) isPayload()        {}
func (GracePeriodStarted) isPayload() {}
func (AssetsReleased) isPayload()     {}
func (HeartbeatReceived) isPayload()  {}
func (SwitchActivated) isPayload()    {}
func (SwitchDeactivated) isPayload()  {}

// Event is an immutable liveness record.
type Event struct {
	ID        id.EventID
	VaultID   id.VaultID
	Payload   Payload
	CreatedAt time.Time
}

func NewEvent(vaultID id.VaultID, payload Payload, now time.Time) Event {
	return Event{
		ID:        id.NewEventID(),
		VaultID:   vaultID,
		Payload:   payload,
		CreatedAt: now,
	}
}

func (e Event) Type() EventType {
	if e.Payload == nil {
		return ""
	}
	return e.Payload.Type()
}

type eventJSON struct {
	ID        id.EventID      `json:"id"`
	VaultID   id.VaultID      `json:"vault_id"`
	EventType EventType       `json:"event_type"`
	EventData json.RawMessage `json:"event_data"`
	CreatedAt time.Time       `json:"created_at"`
}

func (e Event) MarshalJSON() ([]byte, error) {
	data, err := json.Marshal(e.Payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(eventJSON{
		ID:        e.ID,
		VaultID:   e.VaultID,
		EventType: e.Type(),
		EventData: data,
		CreatedAt: e.CreatedAt,
	})
}

func (e *Event) UnmarshalJSON(b []byte) error {
	var raw eventJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	p, err := DecodePayload(raw.EventType, raw.EventData)
	if err != nil {
		return err
	}
	*e = Event{ID: raw.ID, VaultID: raw.VaultID, Payload: p, CreatedAt: raw.CreatedAt}
	return nil
}

// DecodePayload rebuilds a payload from its stored type and data.
func DecodePayload(t EventType, data []byte) (Payload, error) {
	var p Payload
	switch t {
	case EventWarningSent:
		p = &WarningSent{}
	case EventGracePeriodStarted:
		p = &GracePeriodStarted{}
	case EventAssetsReleased:
		p = &AssetsReleased{}
	case EventHeartbeatReceived:
		p = &HeartbeatReceived{}
	case EventSwitchActivated:
		p = &SwitchActivated{}
	case EventSwitchDeactivated:
		p = &SwitchDeactivated{}
	default:
		return nil, dErrors.New(dErrors.CodeInvalidInput, fmt.Sprintf("unknown event type %q", t))
	}
	if err := json.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("decode %s: %w", t, err)
	}
	return deref(p), nil
}

func deref(p Payload) Payload {
	switch v := p.(type) {
	case *WarningSent:
		return *v
	case *GracePeriodStarted:
		return *v
	case *AssetsReleased:
		return *v
	case *HeartbeatReceived:
		return *v
	case *SwitchActivated:
		return *v
	case *SwitchDeactivated:
		return *v
	}
	return p
}
