package dto

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report JSON field names rather than Go field names
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// RecordInput is one ledger record in a bulk upsert.
type RecordInput struct {
	ID          string `json:"id" validate:"required,max=128"`
	Kind        string `json:"kind" validate:"required,oneof=INVOICE PAYMENT TRANSACTION"`
	AmountCents int64  `json:"amount_cents"`
	Date        string `json:"date" validate:"required"`
	Description string `json:"description,omitempty" validate:"max=512"`
}

// ParsedDate accepts either RFC 3339 timestamps or plain dates.
func (r RecordInput) ParsedDate() (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, r.Date); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.DateOnly, r.Date)
	if err != nil {
		return time.Time{}, fmt.Errorf("record %q: date %q is not RFC 3339 or YYYY-MM-DD", r.ID, r.Date)
	}
	return t, nil
}

// UpsertRecordsRequest is the body of PUT /records.
type UpsertRecordsRequest struct {
	Records []RecordInput `json:"records" validate:"required,min=1,max=1000,dive"`
}

// ComponentRequest is one component of a new split match. A zero amount
// means "use the record's stored amount".
type ComponentRequest struct {
	CandidateRecordID string `json:"candidate_record_id" validate:"required"`
	AmountCents       int64  `json:"amount_cents" validate:"gte=0"`
}

// CreateSplitMatchRequest is the body of POST /split-matches.
type CreateSplitMatchRequest struct {
	SourceTransactionID string             `json:"source_transaction_id" validate:"required"`
	MatchType           string             `json:"match_type" validate:"required,oneof=ONE_TO_MANY MANY_TO_ONE"`
	Components          []ComponentRequest `json:"components" validate:"required,min=1,dive"`
}

// Validate checks a request struct against its validate tags and flattens the
// failures into a single readable message.
func Validate(req any) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := fe.Namespace()
		if _, rest, ok := strings.Cut(field, "."); ok {
			field = rest
		}
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s failed %s=%s", field, fe.Tag(), fe.Param()))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s failed %s", field, fe.Tag()))
		}
	}
	return errors.New(strings.Join(msgs, "; "))
}
