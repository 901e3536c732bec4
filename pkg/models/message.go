package models

import "time"

// Message is one inbound SMS of a campaign, as persisted by the message store.
type Message struct {
	Identifier    string    `json:"identifier" bson:"identifier" db:"identifier"`
	Text          string    `json:"message" bson:"message" db:"message"`
	Destination   string    `json:"phoneNumber" bson:"phone_number" db:"phone_number"`
	CampaignID    string    `json:"campaignId" bson:"campaign_id" db:"campaign_id"`
	ExpectedTotal int64     `json:"total" bson:"total" db:"total"`
	CreatedAt     time.Time `json:"createdAt" bson:"created_at" db:"created_at"`
	UpdatedAt     time.Time `json:"updatedAt" bson:"updated_at" db:"updated_at"`
	Deleted       bool      `json:"deleted" bson:"deleted" db:"deleted"`
}

// Envelope is the shape of a queue payload. The record lives under "data".
type Envelope struct {
	Data map[string]interface{} `json:"data"`
}

// Wire field names inside the "data" record.
const (
	FieldData        = "data"
	FieldIdentifier  = "identifier"
	FieldText        = "message"
	FieldDestination = "phoneNumber"
	FieldCampaignID  = "campaignId"
	FieldTotal       = "total"
)
