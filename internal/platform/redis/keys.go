package redis

import "github.com/private-doc-vault/docvault-ocr-service/internal/domain"

// slotTag is the hash tag shared by every key. Scripts and WATCH/MULTI
// transactions touch a task record together with the queue and index keys,
// so on Redis Cluster all of them must map to one slot.
const slotTag = "{ocr}:"

const (
	processingKey = slotTag + "tasks:processing"
	queuedKey     = slotTag + "tasks:queued"
	finishedKey   = slotTag + "tasks:finished"
	membersKey    = slotTag + "queue:members"
	deadLetterKey = slotTag + "queue:dead_letter"
)

func taskKey(id string) string     { return slotTag + "task:" + id }
func progressKey(id string) string { return slotTag + "task:" + id + ":progress" }
func resultKey(id string) string   { return slotTag + "result:" + id }
func batchKey(id string) string    { return slotTag + "batch:" + id }

func tierKey(p domain.Priority) string { return slotTag + "queue:" + string(p) }

// tierKeys returns the tier lists in dequeue order.
func tierKeys() []string {
	keys := make([]string, len(domain.Priorities))
	for i, p := range domain.Priorities {
		keys[i] = tierKey(p)
	}
	return keys
}
