package phrase

import (
	"strings"

	"github.com/m-mizutani/tolerancia/pkg/model"
)

// fallbackRule maps a set of substrings to a fixed transformation
type fallbackRule struct {
	patterns []string
	category model.Category
	new      string
	effect   string
}

// fallbackRules is consulted top to bottom; the first matching rule wins.
// Keep it a slice: the order is the priority.
var fallbackRules = []fallbackRule{
	{
		patterns: []string{"no puedo", "no soy capaz", "no sé cómo", "no se como", "imposible"},
		category: model.CategoryCapacidad,
		new:      "Todavía no encontré cómo",
		effect:   "Convierte una limitación fija en un proceso que sigue abierto.",
	},
	{
		patterns: []string{"soy un desastre", "soy un fracaso", "soy una fracasada", "soy torpe", "soy inútil", "soy inutil", "no sirvo"},
		category: model.CategoryIdentidad,
		new:      "Estoy aprendiendo a hacerlo mejor",
		effect:   "Separa lo que hacés de lo que sos.",
	},
	{
		patterns: []string{"no merezco", "no me lo merezco", "no valgo"},
		category: model.CategoryMerecimiento,
		new:      "Me doy permiso para recibir cosas buenas",
		effect:   "Restituye el propio valor como punto de partida.",
	},
	{
		patterns: []string{"siempre", "nunca", "jamás", "jamas"},
		category: model.CategoryPermanencia,
		new:      "Esta vez fue difícil, y la próxima puede ser distinta",
		effect:   "Rompe la generalización temporal y abre la posibilidad de cambio.",
	},
	{
		patterns: []string{"tengo miedo", "me da miedo", "me aterra", "me paraliza"},
		category: model.CategoryMiedo,
		new:      "Siento miedo y aun así puedo dar un paso pequeño",
		effect:   "Reconoce la emoción sin dejar que decida por vos.",
	},
	{
		patterns: []string{"es mi culpa", "culpa mía", "culpa mia"},
		category: model.CategoryCulpa,
		new:      "Asumo mi parte y puedo repararla",
		effect:   "Transforma la culpa en responsabilidad accionable.",
	},
	{
		patterns: []string{"tengo que", "debería", "deberia", "debo"},
		category: model.CategoryObligacion,
		new:      "Elijo hacerlo porque me importa",
		effect:   "Pasa de la obligación a la elección consciente.",
	},
	{
		patterns: []string{"los demás", "los demas", "todos pueden", "todo el mundo"},
		category: model.CategoryComparacion,
		new:      "Mi proceso tiene su propio ritmo",
		effect:   "Devuelve la atención al propio camino en lugar de la comparación.",
	},
}

var genericFallback = fallbackRule{
	category: model.CategoryGeneral,
	new:      "Estoy en proceso de encontrar otra forma de verlo",
	effect:   "Abre una perspectiva de aprendizaje frente a la situación.",
}

// Fallback builds a transformation from the fixed rule list. It is pure: the
// same phrase always yields the same result.
func Fallback(phrase string) *model.Transformation {
	lower := strings.ToLower(phrase)

	rule := genericFallback
	for _, r := range fallbackRules {
		if matchesAny(lower, r.patterns) {
			rule = r
			break
		}
	}

	return &model.Transformation{
		Category:      rule.category,
		Old:           phrase,
		New:           rule.new,
		Effect:        rule.effect,
		GeneratedByAI: false,
	}
}

func matchesAny(s string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}
