package store

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/vulnverified/certscan/internal/engine"
)

// LoadSubdomainMap reads a scan input file {"<domain>": ["<subdomain>", ...]}.
// A domain whose value is not an array, and any item that is not a string,
// is skipped with a warn entry on log.
func LoadSubdomainMap(path string, log engine.LogSink) (map[string][]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read subdomain file: %w", err)
	}

	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return nil, schemaErrorf(path, "top-level value must be an object: %v", err)
	}
	if top == nil {
		return nil, schemaErrorf(path, "top-level value must be an object")
	}

	out := make(map[string][]string, len(top))
	for domain, raw := range top {
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil || items == nil {
			log.Emit(engine.Warnf("Skipped malformed data for domain %s", domain))
			continue
		}

		subs := make([]string, 0, len(items))
		for _, item := range items {
			var s string
			if err := json.Unmarshal(item, &s); err != nil {
				log.Emit(engine.Warnf("Skipped malformed subdomain %s of %s", item, domain))
				continue
			}
			subs = append(subs, s)
		}
		out[domain] = subs
	}
	return out, nil
}
