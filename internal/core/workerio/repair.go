// Package workerio decodes and validates the JSON a Worker Agent's LLM
// call returns (spec.md §4.5, §4.6.6): a three-tier parse ladder
// (standard JSON, then repair, then lenient Hjson), adapted from
// pkg/core/utils/json_validator.go's SmartParse, followed by a real
// JSON-Schema check against each worker's declared output schema.
package workerio

import (
	"encoding/json"
	"fmt"

	jsonrepair "github.com/RealAlexandreAI/json-repair"
	hjson "github.com/hjson/hjson-go/v4"
)

// RepairJSON attempts to fix common LLM JSON mistakes: missing quotes,
// single quotes, trailing commas, markdown code fences.
func RepairJSON(malformed string) (string, error) {
	repaired, err := jsonrepair.RepairJSON(malformed)
	if err != nil {
		return "", fmt.Errorf("json repair failed: %w", err)
	}
	return repaired, nil
}

// ParseHJSON parses the most lenient tier (Hjson: comments, unquoted
// keys, optional commas) and re-renders it as standard JSON.
func ParseHJSON(input string) (string, error) {
	var result interface{}
	if err := hjson.Unmarshal([]byte(input), &result); err != nil {
		return "", fmt.Errorf("hjson parse failed: %w", err)
	}
	jsonBytes, err := json.Marshal(result)
	if err != nil {
		return "", fmt.Errorf("hjson remarshal failed: %w", err)
	}
	return string(jsonBytes), nil
}

// SmartParse tries standard JSON, then repair, then Hjson, in that
// order, unmarshaling into out on the first strategy that succeeds.
// Returns the JSON text that actually parsed (for trace logging) and
// which tier won.
func SmartParse(input string, out interface{}) (parsed string, tier string, err error) {
	if err := json.Unmarshal([]byte(input), out); err == nil {
		return input, "standard", nil
	}

	if repaired, rerr := RepairJSON(input); rerr == nil {
		if err := json.Unmarshal([]byte(repaired), out); err == nil {
			return repaired, "repaired", nil
		}
	}

	if hjsonResult, herr := ParseHJSON(input); herr == nil {
		if err := json.Unmarshal([]byte(hjsonResult), out); err == nil {
			return hjsonResult, "hjson", nil
		}
	}

	return "", "", fmt.Errorf("smart parse failed: no strategy produced valid JSON for schema %T", out)
}
