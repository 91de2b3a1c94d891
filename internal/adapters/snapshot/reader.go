// Package snapshot reads user snapshots handed over by the activity store
// and writes computed reports as JSON lines.
package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/okian/kpiforecast/internal/domain/model"
)

// Snapshot is one export of users' raw rows.
type Snapshot struct {
	GeneratedAt string               `json:"generated_at"`
	Users       []model.UserSnapshot `json:"users"`
}

// AsOf returns GeneratedAt as a UTC instant, or fallback when it is absent
// or unparseable.
func (s Snapshot) AsOf(fallback time.Time) time.Time {
	if t, ok := model.ParseTimestamp(s.GeneratedAt); ok {
		return t
	}
	return fallback
}

// Load reads and decodes the snapshot file at path.
func Load(ctx context.Context, path string) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}
	f, err := os.Open(path)
	if err != nil {
		return Snapshot{}, fmt.Errorf("%w: %w", ErrRead, err)
	}
	defer f.Close()
	return Decode(f)
}

// Decode reads one snapshot document from r. Users without an id are
// dropped.
func Decode(r io.Reader) (Snapshot, error) {
	var s Snapshot
	if err := json.NewDecoder(r).Decode(&s); err != nil {
		return Snapshot{}, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	users := s.Users[:0]
	for _, u := range s.Users {
		if u.UserID != "" {
			users = append(users, u)
		}
	}
	s.Users = users
	return s, nil
}
