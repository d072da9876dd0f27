package model

import (
	"path"
	"time"
)

// TempDir is the storage subdirectory holding files with an expiry.
const TempDir = "temp"

type File struct {
	ID           int64      `db:"id"`
	Key          string     `db:"key"` // public share id
	OwnerID      int64      `db:"owner_id"`
	Filename     string     `db:"filename"` // on-disk name, uuid + ext
	OriginalName string     `db:"original_name"`
	Size         int64      `db:"size"`
	ExpiresAt    *time.Time `db:"expires_at"` // nil = permanent
	CreatedAt    time.Time  `db:"created_at"`
}

func (f *File) IsTemp() bool {
	return f.ExpiresAt != nil
}

// StoragePath is the blob location relative to the uploads root.
func (f *File) StoragePath() string {
	return StoragePath(f.Filename, f.IsTemp())
}

func StoragePath(filename string, temp bool) string {
	if temp {
		return path.Join(TempDir, filename)
	}
	return filename
}
