package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyBuilders_AreStableAndDistinct(t *testing.T) {
	keys := map[string]string{
		"folders":            FolderListKey(),
		"list a":             ListSummaryKey("inbox", false, 10),
		"list b (unread)":    ListSummaryKey("inbox", true, 10),
		"list c (diff limit)": ListSummaryKey("inbox", false, 20),
		"search":             SearchSummaryKey("invoice", "inbox", 10),
		"full":               FullEmailKey("msg-1"),
	}

	seen := make(map[string]string)
	for label, key := range keys {
		if other, ok := seen[key]; ok {
			t.Fatalf("key collision: %q (%s) collides with %q (%s)", key, label, key, other)
		}
		seen[key] = label
	}

	assert.Equal(t, ListSummaryKey("inbox", false, 10), ListSummaryKey("inbox", false, 10), "key builder must be deterministic")
}

func TestListSummaryKey_HasSentItemsPrefix(t *testing.T) {
	key := ListSummaryKey("sent", false, 10)
	assert.Contains(t, key, SentItemsPrefix)
}
