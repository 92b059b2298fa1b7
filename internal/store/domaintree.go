package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"os"
	"sort"
	"strings"
)

const (
	keyActive   = "active_subdomains"
	keyInactive = "inactive_subdomains"
	keyDomains  = "domains"
)

// ActiveSubdomain is one entry of active_subdomains.
type ActiveSubdomain struct {
	Subdomain  string `json:"subdomain"`
	IP         string `json:"ip"`
	StatusCode int    `json:"status_code"`
}

// DomainTree is a domain-tree file whose top-level structure has been
// checked. Items are decoded on demand.
type DomainTree struct {
	Path string

	active   []json.RawMessage
	inactive []json.RawMessage
	domains  []json.RawMessage
}

// LoadAndValidate reads a domain-tree file. It fails with a *SchemaError
// unless active_subdomains, inactive_subdomains and domains are all present
// and arrays. Empty arrays are accepted.
func LoadAndValidate(path string) (*DomainTree, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read domain tree: %w", err)
	}

	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return nil, schemaErrorf(path, "top-level value must be an object: %v", err)
	}

	tree := &DomainTree{Path: path}
	for key, dst := range map[string]*[]json.RawMessage{
		keyActive:   &tree.active,
		keyInactive: &tree.inactive,
		keyDomains:  &tree.domains,
	} {
		raw, ok := top[key]
		if !ok {
			return nil, schemaErrorf(path, "missing key %q", key)
		}
		if err := json.Unmarshal(raw, dst); err != nil || *dst == nil {
			return nil, schemaErrorf(path, "%q must be an array", key)
		}
	}
	return tree, nil
}

// Active yields each active subdomain, or the error decoding it.
func (t *DomainTree) Active() iter.Seq2[ActiveSubdomain, error] {
	return decodeEach[ActiveSubdomain](keyActive, t.active)
}

// Inactive yields each inactive subdomain name.
func (t *DomainTree) Inactive() iter.Seq2[string, error] {
	return decodeEach[string](keyInactive, t.inactive)
}

// Domains yields each registered domain.
func (t *DomainTree) Domains() iter.Seq2[string, error] {
	return decodeEach[string](keyDomains, t.domains)
}

// Counts returns the number of items under each of the three keys.
func (t *DomainTree) Counts() (active, inactive, domains int) {
	return len(t.active), len(t.inactive), len(t.domains)
}

// SubdomainMap groups the active subdomains under the longest registered
// domain they belong to, producing the input of a certificate scan. A
// subdomain outside every registered domain is grouped under itself. Items
// that fail to decode are left out and reported in the joined error.
func (t *DomainTree) SubdomainMap() (map[string][]string, error) {
	var errs []error

	var domains []string
	for d, err := range t.Domains() {
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if d = normalizeName(d); d != "" {
			domains = append(domains, d)
		}
	}
	// Longest first so nested registered domains win.
	sort.Slice(domains, func(i, j int) bool { return len(domains[i]) > len(domains[j]) })

	out := make(map[string][]string)
	for sub, err := range t.Active() {
		if err != nil {
			errs = append(errs, err)
			continue
		}
		name := normalizeName(sub.Subdomain)
		if name == "" {
			errs = append(errs, schemaErrorf(t.Path, "active subdomain without a name"))
			continue
		}
		parent := name
		for _, d := range domains {
			if name == d || strings.HasSuffix(name, "."+d) {
				parent = d
				break
			}
		}
		out[parent] = append(out[parent], sub.Subdomain)
	}

	return out, errors.Join(errs...)
}

func decodeEach[T any](key string, items []json.RawMessage) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		for i, raw := range items {
			var v T
			if err := json.Unmarshal(raw, &v); err != nil {
				var zero T
				if !yield(zero, &SchemaError{Reason: fmt.Sprintf("%s[%d]: %v", key, i, err)}) {
					return
				}
				continue
			}
			if !yield(v, nil) {
				return
			}
		}
	}
}

func normalizeName(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	return strings.TrimSuffix(strings.ToLower(fields[0]), ".")
}
