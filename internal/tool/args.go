package tool

import (
	"encoding/json"
	"fmt"
)

// decodeArgs converts the loosely typed request args into a typed params
// struct by round-tripping through JSON.
func decodeArgs(args any, into any) error {
	if args == nil {
		return nil
	}
	data, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("encode args: %w", err)
	}
	if err := json.Unmarshal(data, into); err != nil {
		return fmt.Errorf("decode args: %w", err)
	}
	return nil
}
