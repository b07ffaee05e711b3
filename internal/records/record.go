// Package records keeps the chemicals table: a thin adapter over a SQL
// persistence backend that publishes whole-table change notifications.
package records

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	// ErrInvalid is returned when a record fails validation.
	ErrInvalid = errors.New("invalid record")

	// ErrNotFound is returned when updating or deleting an unknown record.
	ErrNotFound = errors.New("record not found")
)

// Hazard levels accepted in ChemicalRecord.HazardLevel.
const (
	HazardLow     = "low"
	HazardMedium  = "medium"
	HazardHigh    = "high"
	HazardExtreme = "extreme"
)

// ChemicalRecord is one row of the chemicals table.
type ChemicalRecord struct {
	ID            int64    `json:"id"`
	ChemName      string   `json:"chemName" validate:"required,max=120"`
	Formula       string   `json:"formula" validate:"max=64"`
	BoilingPoint  *float64 `json:"boilingPoint,omitempty"`
	FreezingPoint *float64 `json:"freezingPoint,omitempty"`
	HazardLevel   string   `json:"hazardLevel" validate:"omitempty,oneof=low medium high extreme"`
	Notes         string   `json:"notes" validate:"max=2000"`
	BackendID     string   `json:"backendId"`
}

// Result is the outcome of one backend mutation.
type Result struct {
	Success bool
	Record  ChemicalRecord
	Err     error
}

func failed(err error) Result {
	return Result{Err: err}
}

// Backend is the persistence boundary the adapter talks to.
type Backend interface {
	Init(ctx context.Context) error
	List(ctx context.Context) ([]ChemicalRecord, error)
	Create(ctx context.Context, rec ChemicalRecord) Result
	Update(ctx context.Context, rec ChemicalRecord) Result
	Delete(ctx context.Context, rec ChemicalRecord) Result

	// Subscribe registers fn to receive the full record set after every
	// change. The returned func removes the subscription.
	Subscribe(fn func([]ChemicalRecord)) func()

	Close() error
}

var recordValidate = validator.New()

// Validate checks field constraints and normalises whitespace and case.
func Validate(rec *ChemicalRecord) error {
	rec.ChemName = strings.TrimSpace(rec.ChemName)
	rec.Formula = strings.TrimSpace(rec.Formula)
	rec.HazardLevel = strings.ToLower(strings.TrimSpace(rec.HazardLevel))

	if err := recordValidate.Struct(rec); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("%w: %s failed %q", ErrInvalid, fe.Field(), fe.Tag())
		}
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}
