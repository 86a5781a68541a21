// Package timeline maps chat entries onto video playback position.
package timeline

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"

	"github.com/aura-webinar/virtual-live/internal/models"
)

// MaxBodyLength bounds a single chat message.
const MaxBodyLength = 2000

// ErrValidation is matched by every ValidationError.
var ErrValidation = errors.New("validation error")

// ValidationError rejects a malformed submission. No state changes.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

// Is lets errors.Is(err, ErrValidation) match.
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// VisibleEntries returns the entries with VideoOffset <= at, ordered by
// (VideoOffset, SequenceIndex). The input is not modified. It never depends
// on when an entry arrived.
func VisibleEntries(all []models.ChatEntry, at time.Duration) []models.ChatEntry {
	out := make([]models.ChatEntry, 0, len(all))
	for _, e := range all {
		if e.VideoOffset <= at {
			out = append(out, e)
		}
	}
	Sort(out)
	return out
}

// Sort orders entries by (VideoOffset, SequenceIndex) in place.
func Sort(entries []models.ChatEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].VideoOffset != entries[j].VideoOffset {
			return entries[i].VideoOffset < entries[j].VideoOffset
		}
		return entries[i].SequenceIndex < entries[j].SequenceIndex
	})
}

// NewEntry validates a submission and builds the entry that will carry it.
func NewEntry(author, body string, at time.Duration, seq int, now time.Time) (models.ChatEntry, error) {
	author = strings.TrimSpace(author)
	body = strings.TrimSpace(body)
	if author == "" {
		return models.ChatEntry{}, &ValidationError{Field: "name", Reason: "is required"}
	}
	if body == "" {
		return models.ChatEntry{}, &ValidationError{Field: "comment", Reason: "is required"}
	}
	if len(body) > MaxBodyLength {
		return models.ChatEntry{}, &ValidationError{Field: "comment", Reason: fmt.Sprintf("must be %d characters or fewer", MaxBodyLength)}
	}
	if at < 0 {
		at = 0
	}
	return models.ChatEntry{
		ID:            uuid.New(),
		AuthorName:    author,
		Body:          body,
		VideoOffset:   at.Truncate(time.Second),
		SequenceIndex: seq,
		CreatedAt:     now,
	}, nil
}

// ContentKey identifies an entry by content so a local copy and its durable
// counterpart can be matched when their identifiers are not comparable.
func ContentKey(e models.ChatEntry) string {
	return fmt.Sprintf("%d\x00%d\x00%s\x00%s", e.SequenceIndex, int64(e.VideoOffset/time.Second), e.AuthorName, e.Body)
}

// Fingerprint hashes an ordered entry sequence. Equal sequences hash equal.
func Fingerprint(entries []models.ChatEntry) uint64 {
	d := xxhash.New()
	var buf [8]byte
	for _, e := range entries {
		_, _ = d.Write(e.ID[:])
		binary.LittleEndian.PutUint64(buf[:], uint64(e.VideoOffset))
		_, _ = d.Write(buf[:])
		binary.LittleEndian.PutUint64(buf[:], uint64(e.SequenceIndex))
		_, _ = d.Write(buf[:])
		_, _ = d.WriteString(e.AuthorName)
		_, _ = d.Write([]byte{0})
		_, _ = d.WriteString(e.Body)
		_, _ = d.Write([]byte{0})
	}
	return d.Sum64()
}
