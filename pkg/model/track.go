package model

import (
	"strconv"

	"github.com/m-mizutani/goerr/v2"
)

// Track is one of the three seminar days. Each track owns an isolated conversation.
type Track int

const (
	TrackDay1 Track = 1
	TrackDay2 Track = 2
	TrackDay3 Track = 3
)

// Tracks returns all tracks in display order
func Tracks() []Track {
	return []Track{TrackDay1, TrackDay2, TrackDay3}
}

// Validate checks if the track is one of the fixed tracks
func (t Track) Validate() error {
	switch t {
	case TrackDay1, TrackDay2, TrackDay3:
		return nil
	default:
		return goerr.Wrap(ErrInvalidTrack, "track out of range", goerr.V("track", int(t)))
	}
}

// Key returns the archive key of the track ("1", "2" or "3")
func (t Track) Key() string {
	return strconv.Itoa(int(t))
}

// ParseTrack converts an archive key or CLI argument into a Track
func ParseTrack(s string) (Track, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, goerr.Wrap(ErrInvalidTrack, "track is not a number", goerr.V("track", s))
	}
	t := Track(n)
	if err := t.Validate(); err != nil {
		return 0, err
	}
	return t, nil
}
