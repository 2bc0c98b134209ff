package inference

import (
	"encoding/json"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var (
	fencedJSONPattern = regexp.MustCompile(`(?s)` + "```json" + `\s*(.*?)\s*` + "```")
	simpleKVPattern   = regexp.MustCompile(`"([^"]+)":\s*"([^"]*)"`)
	nestedObjPattern  = regexp.MustCompile(`(?s)"([^"]+)":\s*\{([^{}]*(?:\{[^{}]*\}[^{}]*)*)\}`)
	nonWordPattern    = regexp.MustCompile(`[^\w\s]`)
	whitespacePattern = regexp.MustCompile(`\s+`)
	repeatedUnderPat  = regexp.MustCompile(`_+`)
)

// Repair extracts a fenced ```json``` block from raw model output, runs a
// best-effort structural repair over it, and returns the parsed value.
// When no fenced block is present, or the repaired text still isn't valid
// JSON, Repair returns the raw string unchanged — the same tolerant fallback
// qwen_vision_service.py applies ("failed to extract valid JSON, returning
// raw output").
func Repair(raw string) any {
	match := fencedJSONPattern.FindStringSubmatch(raw)
	if match == nil {
		return raw
	}

	repaired := genericJSONRepair(cleanEscapes(match[1]))

	encoded, err := json.Marshal(repaired)
	if err != nil {
		return raw
	}

	var roundTripped any
	if err := json.Unmarshal(encoded, &roundTripped); err != nil {
		return raw
	}
	return roundTripped
}

func cleanEscapes(text string) string {
	text = strings.ReplaceAll(text, `\n`, "\n")
	text = strings.ReplaceAll(text, `\"`, `"`)
	return text
}

// genericJSONRepair ports response_parser.py's generic_json_repair: extract
// simple kv pairs and one level of nested objects, coalesce duplicate keys
// into arrays, then split numerically-keyed entries into an "entities" array.
func genericJSONRepair(text string) map[string]any {
	values := map[string][]any{}
	var order []string

	record := func(key string, value any) {
		if _, seen := values[key]; !seen {
			order = append(order, key)
		}
		values[key] = append(values[key], value)
	}

	for _, m := range simpleKVPattern.FindAllStringSubmatch(text, -1) {
		key, value := strings.TrimSpace(m[1]), strings.TrimSpace(m[2])
		record(key, value)
	}

	for _, m := range nestedObjPattern.FindAllStringSubmatch(text, -1) {
		key, content := strings.TrimSpace(m[1]), m[2]
		nested := map[string]string{}
		for _, nm := range simpleKVPattern.FindAllStringSubmatch(content, -1) {
			nested[strings.TrimSpace(nm[1])] = strings.TrimSpace(nm[2])
		}
		record(key, nested)
	}

	// A key seen more than once is coalesced into an array of every value it
	// took on, in encounter order, rather than dropped or silently
	// overwritten by the last occurrence.
	organized := map[string]any{}
	for _, key := range order {
		vs := values[key]
		if len(vs) > 1 {
			organized[key] = vs
		} else {
			organized[key] = vs[0]
		}
	}

	numbered := map[string]any{}
	regular := map[string]any{}
	for key, value := range organized {
		if isDigits(key) {
			numbered[key] = value
		} else {
			regular[key] = value
		}
	}

	final := map[string]any{}

	if len(numbered) > 0 {
		nums := make([]string, 0, len(numbered))
		for n := range numbered {
			nums = append(nums, n)
		}
		sort.Slice(nums, func(i, j int) bool {
			a, _ := strconv.Atoi(nums[i])
			b, _ := strconv.Atoi(nums[j])
			return a < b
		})

		var entities []map[string]any
		for _, num := range nums {
			entity := map[string]any{"id": num}
			if s, ok := numbered[num].(string); ok {
				entity["primary_value"] = s
			}
			for fieldKey, fieldValue := range regular {
				if isRelatedField(num, fieldKey, text) {
					entity[normalizeFieldName(fieldKey)] = fieldValue
				}
			}
			entities = append(entities, entity)
		}
		final["entities"] = entities
	}

	for key, value := range regular {
		related := false
		for num := range numbered {
			if isRelatedField(num, key, text) {
				related = true
				break
			}
		}
		if !related {
			final[normalizeFieldName(key)] = value
		}
	}

	return final
}

// isRelatedField treats a numbered entity and a regular field as related
// when their quoted keys appear within 500 characters of each other in the
// original text — the same proximity heuristic response_parser.py uses.
func isRelatedField(entityID, fieldKey, text string) bool {
	entityPos := strings.Index(text, `"`+entityID+`"`)
	fieldPos := strings.Index(text, `"`+fieldKey+`"`)
	if entityPos == -1 || fieldPos == -1 {
		return false
	}
	diff := entityPos - fieldPos
	if diff < 0 {
		diff = -diff
	}
	return diff < 500
}

func normalizeFieldName(name string) string {
	normalized := nonWordPattern.ReplaceAllString(strings.ToLower(name), "")
	normalized = whitespacePattern.ReplaceAllString(strings.TrimSpace(normalized), "_")
	normalized = repeatedUnderPat.ReplaceAllString(normalized, "_")
	return strings.Trim(normalized, "_")
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
