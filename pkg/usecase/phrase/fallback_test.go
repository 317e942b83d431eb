package phrase_test

import (
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/tolerancia/pkg/model"
	"github.com/m-mizutani/tolerancia/pkg/usecase/phrase"
)

func TestFallback(t *testing.T) {
	tests := []struct {
		name     string
		phrase   string
		category model.Category
		newText  string
	}{
		{
			name:     "capacity",
			phrase:   "No puedo hacer esto",
			category: model.CategoryCapacidad,
			newText:  "Todavía no encontré cómo",
		},
		{
			name:     "identity",
			phrase:   "Soy un desastre con los números",
			category: model.CategoryIdentidad,
			newText:  "Estoy aprendiendo a hacerlo mejor",
		},
		{
			name:     "permanence with accent in upper case",
			phrase:   "JAMÁS me sale bien",
			category: model.CategoryPermanencia,
		},
		{
			name:     "obligation",
			phrase:   "Tengo que ser perfecta",
			category: model.CategoryObligacion,
		},
		{
			name:     "no rule matches",
			phrase:   "El clima está raro",
			category: model.CategoryGeneral,
			newText:  "Estoy en proceso de encontrar otra forma de verlo",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := phrase.Fallback(tt.phrase)
			gt.Equal(t, result.Category, tt.category)
			gt.Equal(t, result.Old, tt.phrase)
			gt.False(t, result.GeneratedByAI)
			gt.NotEqual(t, result.New, "")
			gt.NotEqual(t, result.Effect, "")
			if tt.newText != "" {
				gt.Equal(t, result.New, tt.newText)
			}
		})
	}
}

func TestFallbackEarlierRuleWins(t *testing.T) {
	// matches both capacity ("no puedo") and permanence ("nunca")
	result := phrase.Fallback("Nunca voy a poder, no puedo")
	gt.Equal(t, result.Category, model.CategoryCapacidad)

	// matches both permanence ("siempre") and obligation ("tengo que")
	result = phrase.Fallback("Siempre tengo que hacerlo todo")
	gt.Equal(t, result.Category, model.CategoryPermanencia)
}

func TestFallbackDeterministic(t *testing.T) {
	first := phrase.Fallback("Me da miedo hablar en público")
	for i := 0; i < 20; i++ {
		gt.Equal(t, phrase.Fallback("Me da miedo hablar en público"), first)
	}
}
