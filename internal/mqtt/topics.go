package mqtt

import (
	"strings"

	json "github.com/goccy/go-json"

	"github.com/dokzlo13/sunrised/internal/eventbus"
	"github.com/dokzlo13/sunrised/internal/syncsvc"
)

// DefaultTopicPrefix is used when no prefix is configured.
const DefaultTopicPrefix = "sunrised"

// Topics builds the topic names under one prefix.
type Topics struct {
	prefix string
}

// NewTopics trims slashes from prefix and falls back to DefaultTopicPrefix.
func NewTopics(prefix string) Topics {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return Topics{prefix: prefix}
}

func (t Topics) Event(typ eventbus.EventType) string {
	return t.prefix + "/events/" + string(typ)
}

func (t Topics) Config() string      { return t.prefix + "/config" }
func (t Topics) SyncCommand() string { return t.prefix + "/cmd/sync" }
func (t Topics) SyncResult() string  { return t.prefix + "/sync/result" }

func encodeEvent(e eventbus.Event) ([]byte, error) {
	return json.Marshal(e)
}

func encodeFields(fields map[string]any) ([]byte, error) {
	return json.Marshal(fields)
}

func encodeSyncResult(res syncsvc.Result) ([]byte, error) {
	return json.Marshal(res)
}
