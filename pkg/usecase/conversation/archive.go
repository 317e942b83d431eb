package conversation

import (
	"context"
	"encoding/json"
	"slices"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/tolerancia/pkg/adapter"
	"github.com/m-mizutani/tolerancia/pkg/model"
)

var errMalformedArchive = goerr.New("malformed conversation archive")

// archive maps a track key ("1", "2", "3") to its message sequence. It is
// stored as a single blob and always rewritten as a whole.
type archive map[string][]model.Message

// readArchive loads the archive blob. Missing data yields an empty archive;
// unreadable or malformed data yields an empty archive and an error to log.
func readArchive(ctx context.Context, storage adapter.Storage, key string) (archive, error) {
	data, err := storage.Get(ctx, key)
	if err != nil {
		return archive{}, goerr.Wrap(err, "failed to read conversation archive", goerr.V("key", key))
	}
	if len(data) == 0 {
		return archive{}, nil
	}

	var a archive
	if err := json.Unmarshal(data, &a); err != nil {
		return archive{}, goerr.Wrap(errMalformedArchive, "failed to decode archive",
			goerr.V("key", key),
			goerr.V("cause", err.Error()))
	}
	if a == nil {
		return archive{}, nil
	}

	// drop entries that do not belong to a known track or fail validation
	for k, seq := range a {
		if _, err := model.ParseTrack(k); err != nil {
			delete(a, k)
			continue
		}
		a[k] = slices.DeleteFunc(seq, func(msg model.Message) bool {
			return msg.Validate() != nil
		})
	}
	return a, nil
}

func writeArchive(ctx context.Context, storage adapter.Storage, key string, a archive) error {
	data, err := json.Marshal(a)
	if err != nil {
		return goerr.Wrap(err, "failed to encode conversation archive")
	}
	if err := storage.Put(ctx, key, data); err != nil {
		return goerr.Wrap(err, "failed to write conversation archive", goerr.V("key", key))
	}
	return nil
}
