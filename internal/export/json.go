package export

import (
	"encoding/json"

	"github.com/victorarias/cclog/internal/logs"
)

// JSON dumps the full conversation, metadata included, as indented JSON.
func JSON(conv *logs.Conversation) (string, error) {
	raw, err := json.MarshalIndent(conv, "", "  ")
	if err != nil {
		return "", err
	}
	return string(raw), nil
}
