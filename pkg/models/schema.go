package models

import "fmt"

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// Validate checks the invariants every persisted message must hold.
func (m *Message) Validate() error {
	if m == nil {
		return &ValidationError{
			Field:   "message",
			Message: "message cannot be nil",
		}
	}

	if m.Identifier == "" {
		return &ValidationError{
			Field:   FieldIdentifier,
			Message: "identifier is required",
		}
	}

	if m.Text == "" {
		return &ValidationError{
			Field:   FieldText,
			Message: "message text is required",
		}
	}

	if m.Destination == "" {
		return &ValidationError{
			Field:   FieldDestination,
			Message: "phone number is required",
		}
	}

	if m.CampaignID == "" {
		return &ValidationError{
			Field:   FieldCampaignID,
			Message: "campaign ID is required",
		}
	}

	if m.ExpectedTotal <= 0 {
		return &ValidationError{
			Field:   FieldTotal,
			Message: fmt.Sprintf("total must be a positive integer, got %d", m.ExpectedTotal),
		}
	}

	if m.CreatedAt.IsZero() {
		return &ValidationError{
			Field:   "createdAt",
			Message: "creation timestamp is required",
		}
	}

	return nil
}

// GetDataField reads a raw field from the envelope record.
func (e *Envelope) GetDataField(name string) (interface{}, bool) {
	if e.Data == nil {
		return nil, false
	}

	value, ok := e.Data[name]
	return value, ok
}

func (e *Envelope) SetDataField(name string, value interface{}) {
	if e.Data == nil {
		e.Data = make(map[string]interface{})
	}

	e.Data[name] = value
}
