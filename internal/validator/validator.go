package validator

import (
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/pauljones0/skuwatch/internal/models"
)

// Validator is a wrapper around the validator library.
type Validator struct {
	validate *validator.Validate
}

// New creates a new Validator instance.
func New() *Validator {
	return &Validator{
		validate: validator.New(),
	}
}

// ValidateStruct validates a struct based on its tags.
func (v *Validator) ValidateStruct(s interface{}) error {
	err := v.validate.Struct(s)
	if err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	return nil
}

// ValidateVariantSet checks every variant of a parsed product and that they
// all belong to the same product under their own variant ID.
func (v *Validator) ValidateVariantSet(store models.StoreID, vs models.VariantSet) error {
	var key models.ProductKey
	first := true
	for id, variant := range vs {
		if err := v.ValidateStruct(variant); err != nil {
			return fmt.Errorf("variant %s: %w", id, err)
		}
		if variant.VariantID != id {
			return fmt.Errorf("variant %s is stored under key %s", variant.VariantID, id)
		}
		if variant.Store != store {
			return fmt.Errorf("variant %s belongs to store %s, expected %s", id, variant.Store, store)
		}
		k := models.ProductKey{Store: variant.Store, ProductID: variant.ProductID}
		if first {
			key, first = k, false
		} else if k != key {
			return fmt.Errorf("variant %s belongs to product %s, expected %s", id, k, key)
		}
	}
	return nil
}
