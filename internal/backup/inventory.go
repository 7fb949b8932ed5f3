// Package backup reports on the database backup archives kept in object
// storage.
package backup

import (
	"context"
	"path"
	"slices"
	"strings"
	"time"

	"github.com/koustreak/dac/internal/filestore"
)

// ArchiveSuffix marks the objects counted as backups.
const ArchiveSuffix = ".zip"

// Entry is one backup archive.
type Entry struct {
	Filename string    `json:"filename"`
	Key      string    `json:"key"`
	Size     int64     `json:"size"`
	Modified time.Time `json:"modified"`
	// DownloadURL is a presigned link, set only when presigning is enabled.
	DownloadURL string `json:"download_url,omitempty"`
}

// Inventory summarises the archives under one prefix. Backups are ordered
// newest first; LatestBackup and OldestBackup are null when there are none.
type Inventory struct {
	TotalBackups int        `json:"total_backups"`
	TotalSize    int64      `json:"total_size"`
	AverageSize  int64      `json:"average_size"`
	LatestBackup *time.Time `json:"latest_backup"`
	OldestBackup *time.Time `json:"oldest_backup"`
	Backups      []Entry    `json:"backups"`
}

// Lister builds inventories from a bucket.
type Lister struct {
	store      filestore.Store
	bucket     string
	prefix     string
	presignTTL time.Duration
}

// NewLister returns a Lister for archives under prefix in bucket. A positive
// presignTTL adds a download link to every entry.
func NewLister(store filestore.Store, bucket, prefix string, presignTTL time.Duration) *Lister {
	return &Lister{store: store, bucket: bucket, prefix: prefix, presignTTL: presignTTL}
}

// Inventory lists the archives and computes the totals.
func (l *Lister) Inventory(ctx context.Context) (*Inventory, error) {
	objects, err := l.store.ListObjects(ctx, l.bucket, filestore.ListOptions{
		Prefix:    l.prefix,
		Recursive: true,
	})
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(objects))
	for _, obj := range objects {
		if obj.IsDir || !strings.HasSuffix(obj.Key, ArchiveSuffix) {
			continue
		}
		entries = append(entries, Entry{
			Filename: path.Base(obj.Key),
			Key:      obj.Key,
			Size:     obj.Size,
			Modified: obj.LastModified.UTC(),
		})
	}

	slices.SortStableFunc(entries, func(a, b Entry) int {
		return b.Modified.Compare(a.Modified)
	})

	if l.presignTTL > 0 {
		for i := range entries {
			u, err := l.store.PresignGetURL(ctx, l.bucket, entries[i].Key, l.presignTTL)
			if err != nil {
				return nil, err
			}
			entries[i].DownloadURL = u
		}
	}

	return summarise(entries), nil
}

func summarise(entries []Entry) *Inventory {
	inv := &Inventory{TotalBackups: len(entries), Backups: entries}
	if len(entries) == 0 {
		return inv
	}
	for _, e := range entries {
		inv.TotalSize += e.Size
	}
	inv.AverageSize = inv.TotalSize / int64(len(entries))

	latest := entries[0].Modified
	oldest := entries[len(entries)-1].Modified
	inv.LatestBackup = &latest
	inv.OldestBackup = &oldest
	return inv
}
