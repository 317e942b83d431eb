package model

import (
	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
)

// Category classifies the limiting belief behind a phrase
type Category string

const (
	CategoryCapacidad    Category = "Capacidad"
	CategoryIdentidad    Category = "Identidad"
	CategoryPermanencia  Category = "Permanencia"
	CategoryMerecimiento Category = "Merecimiento"
	CategoryObligacion   Category = "Obligación"
	CategoryMiedo        Category = "Miedo"
	CategoryCulpa        Category = "Culpa"
	CategoryComparacion  Category = "Comparación"
	CategoryGeneral      Category = "General"
)

// DefaultRequiredReps is how many repetitions a custom transformation asks for
const DefaultRequiredReps = 21

type TransformationID string

// NewTransformationID generates an id for a user-requested transformation
func NewTransformationID() TransformationID {
	return TransformationID("custom-" + uuid.New().String())
}

// Transformation rewrites a limiting phrase into an empowering one.
// It is built per request and never persisted server side.
type Transformation struct {
	ID            TransformationID `json:"id"`
	Category      Category         `json:"category"`
	Old           string           `json:"old"`
	New           string           `json:"new"`
	Effect        string           `json:"effect"`
	RequiredReps  int              `json:"requiredReps"`
	IsCustom      bool             `json:"isCustom"`
	GeneratedByAI bool             `json:"generatedByAI"`
}

// Validate checks that every field produced by generation is present
func (t *Transformation) Validate() error {
	switch {
	case t.Category == "":
		return goerr.New("category is empty")
	case t.Old == "":
		return goerr.New("old phrase is empty")
	case t.New == "":
		return goerr.New("new phrase is empty")
	case t.Effect == "":
		return goerr.New("effect is empty")
	}
	return nil
}
