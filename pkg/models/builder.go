package models

import (
	"encoding/json"
	"time"
)

type EnvelopeBuilder struct {
	envelope *Envelope
}

func NewEnvelopeBuilder() *EnvelopeBuilder {
	return &EnvelopeBuilder{
		envelope: &Envelope{
			Data: make(map[string]interface{}),
		},
	}
}

func (b *EnvelopeBuilder) WithIdentifier(id string) *EnvelopeBuilder {
	b.envelope.SetDataField(FieldIdentifier, id)
	return b
}

func (b *EnvelopeBuilder) WithText(text string) *EnvelopeBuilder {
	b.envelope.SetDataField(FieldText, text)
	return b
}

func (b *EnvelopeBuilder) WithDestination(phone string) *EnvelopeBuilder {
	b.envelope.SetDataField(FieldDestination, phone)
	return b
}

func (b *EnvelopeBuilder) WithCampaign(campaignID string, total int) *EnvelopeBuilder {
	b.envelope.SetDataField(FieldCampaignID, campaignID)
	b.envelope.SetDataField(FieldTotal, total)
	return b
}

func (b *EnvelopeBuilder) Without(field string) *EnvelopeBuilder {
	delete(b.envelope.Data, field)
	return b
}

func (b *EnvelopeBuilder) Build() *Envelope {
	return b.envelope
}

// NewMessage builds a persisted-shape message stamped with now.
func NewMessage(identifier, text, destination, campaignID string, total int64, now time.Time) *Message {
	return &Message{
		Identifier:    identifier,
		Text:          text,
		Destination:   destination,
		CampaignID:    campaignID,
		ExpectedTotal: total,
		CreatedAt:     now,
		UpdatedAt:     now,
		Deleted:       false,
	}
}

// JSON encodes the envelope as a queue payload.
func (b *EnvelopeBuilder) JSON() ([]byte, error) {
	return json.Marshal(b.envelope)
}
