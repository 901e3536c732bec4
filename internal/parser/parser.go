// Package parser turns raw queue payloads into validated campaign messages.
package parser

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	apperrors "campaignd/pkg/errors"
	"campaignd/pkg/models"
)

type Clock func() time.Time

type Parser struct {
	now Clock
}

func New(clock Clock) *Parser {
	if clock == nil {
		clock = time.Now
	}
	return &Parser{now: clock}
}

// Parse decodes a JSON payload of the form {"data": {...}} and validates the
// record inside it.
func (p *Parser) Parse(raw []byte) (*models.Message, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var payload map[string]interface{}
	if err := dec.Decode(&payload); err != nil {
		return nil, invalid(models.FieldData, fmt.Sprintf("payload is not a JSON object: %v", err))
	}

	data, ok := payload[models.FieldData]
	if !ok || data == nil {
		return nil, invalid(models.FieldData, "missing data envelope")
	}

	record, ok := data.(map[string]interface{})
	if !ok {
		return nil, invalid(models.FieldData, "data must be an object")
	}

	return p.ParseRecord(record)
}

// ParseRecord validates an already-decoded record.
func (p *Parser) ParseRecord(record map[string]interface{}) (*models.Message, error) {
	identifier, err := requiredString(record, models.FieldIdentifier)
	if err != nil {
		return nil, err
	}
	text, err := requiredString(record, models.FieldText)
	if err != nil {
		return nil, err
	}
	destination, err := requiredString(record, models.FieldDestination)
	if err != nil {
		return nil, err
	}
	campaignID, err := requiredString(record, models.FieldCampaignID)
	if err != nil {
		return nil, err
	}
	total, err := positiveInt(record, models.FieldTotal)
	if err != nil {
		return nil, err
	}

	msg := models.NewMessage(identifier, text, destination, campaignID, total, p.now().UTC())
	if err := msg.Validate(); err != nil {
		return nil, apperrors.ErrValidation.WithStage(apperrors.StageParse).WithCause(err)
	}
	return msg, nil
}

func requiredString(record map[string]interface{}, field string) (string, error) {
	v, ok := record[field]
	if !ok || v == nil {
		return "", invalid(field, "is required")
	}
	s, ok := v.(string)
	if !ok {
		return "", invalid(field, fmt.Sprintf("must be a string, got %T", v))
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return "", invalid(field, "must not be empty")
	}
	return s, nil
}

func positiveInt(record map[string]interface{}, field string) (int64, error) {
	v, ok := record[field]
	if !ok || v == nil {
		return 0, invalid(field, "is required")
	}

	var n int64
	switch val := v.(type) {
	case json.Number:
		i, err := val.Int64()
		if err != nil {
			return 0, invalid(field, fmt.Sprintf("must be an integer, got %s", val.String()))
		}
		n = i
	case float64:
		if val != math.Trunc(val) || val > math.MaxInt64 || val < math.MinInt64 {
			return 0, invalid(field, fmt.Sprintf("must be an integer, got %v", val))
		}
		n = int64(val)
	case int:
		n = int64(val)
	case int64:
		n = val
	case int32:
		n = int64(val)
	default:
		return 0, invalid(field, fmt.Sprintf("must be a number, got %T", v))
	}

	if n <= 0 {
		return 0, invalid(field, fmt.Sprintf("must be positive, got %d", n))
	}
	return n, nil
}

// invalid wraps a *models.ValidationError so callers can recover the field
// with errors.As while still classifying the failure as VALIDATION_ERROR.
func invalid(field, message string) error {
	return apperrors.ErrValidation.
		WithStage(apperrors.StageParse).
		WithDetail("field", field).
		WithCause(&models.ValidationError{Field: field, Message: message})
}
