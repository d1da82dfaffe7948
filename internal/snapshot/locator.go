// Package snapshot triggers AWS Config snapshot deliveries and waits for the
// exported file to appear in the delivery channel's S3 bucket.
package snapshot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	apperrors "github.com/Adithya-Monish-Kumar-K/configsync/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/configsync/pkg/logger"
)

// ObjectLister enumerates every key in a bucket, across all pages, in the
// order the store returns them.
type ObjectLister interface {
	ListKeys(ctx context.Context, bucket string) ([]string, error)
}

// Locator finds the object key that belongs to a snapshot.
type Locator struct {
	lister ObjectLister
	logger *slog.Logger
}

// NewLocator returns a Locator over lister. A nil logger discards output.
func NewLocator(lister ObjectLister, l *slog.Logger) *Locator {
	if l == nil {
		l = logger.Nop()
	}
	return &Locator{lister: lister, logger: l}
}

// Locate returns the key in bucket that contains partialName. AWS Config
// names snapshot objects after the snapshot id, so a substring match is
// enough. When several keys match, the last one enumerated wins. No match is
// ErrSnapshotNotFound; listing failures are returned unchanged.
func (l *Locator) Locate(ctx context.Context, bucket, partialName string) (string, error) {
	if partialName == "" {
		return "", apperrors.Invalid("locate requires a snapshot name")
	}
	keys, err := l.lister.ListKeys(ctx, bucket)
	if err != nil {
		return "", fmt.Errorf("locating %s: %w", partialName, err)
	}

	var found string
	matches := 0
	for _, key := range keys {
		if strings.Contains(key, partialName) {
			found = key
			matches++
		}
	}
	if matches == 0 {
		return "", apperrors.Newf(apperrors.ErrSnapshotNotFound, 0, "no key containing %s in %s (%d keys)", partialName, bucket, len(keys))
	}
	if matches > 1 {
		l.logger.Warn("several keys match snapshot, using the last", "snapshot", partialName, "matches", matches, "key", found)
	}
	return found, nil
}
