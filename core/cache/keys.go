package cache

import (
	"fmt"
	"time"
)

// Key builders for the three logical caches (§4.4). Keeping them in one
// place means the handlers and the send_email invalidation path can never
// drift out of sync on the exact key shape.

const (
	FolderTTL  = 10 * time.Minute
	SummaryTTL = 5 * time.Minute
	FullTTL    = 5 * time.Minute
)

func FolderListKey() string {
	return "folders"
}

func ListSummaryKey(folderID string, unreadOnly bool, limit int) string {
	return fmt.Sprintf("summary:list:%s:%t:%d", folderID, unreadOnly, limit)
}

func SearchSummaryKey(query, folderID string, limit int) string {
	return fmt.Sprintf("summary:search:%s:%s:%d", query, folderID, limit)
}

func FullEmailKey(emailID string) string {
	return "full:" + emailID
}

// SentItemsPrefix scopes DeletePrefix invalidation after a send_email call.
// It matches every list and search summary key, of any folder; the folder
// list and full-email keys are not matched.
const SentItemsPrefix = "summary:"
