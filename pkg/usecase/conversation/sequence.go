package conversation

import (
	"slices"

	"github.com/m-mizutani/tolerancia/pkg/model"
)

// Sequences are treated as immutable values: every helper returns a new slice
// and never writes into its argument.

// appendMessage returns seq + msg, keeping at most limit entries (oldest dropped)
func appendMessage(seq []model.Message, msg model.Message, limit int) []model.Message {
	next := append(slices.Clip(seq), msg)
	return truncate(next, limit)
}

// truncate keeps the last limit entries
func truncate(seq []model.Message, limit int) []model.Message {
	if limit <= 0 || len(seq) <= limit {
		return seq
	}
	return slices.Clone(seq[len(seq)-limit:])
}

// replaceAt returns a copy of seq with the element at i replaced
func replaceAt(seq []model.Message, i int, msg model.Message) []model.Message {
	next := slices.Clone(seq)
	next[i] = msg
	return next
}

func indexOf(seq []model.Message, id model.MessageID) int {
	return slices.IndexFunc(seq, func(m model.Message) bool {
		return m.ID == id
	})
}
