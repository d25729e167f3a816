package collection

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// ItemID identifies an item within a collection.
// Upstream APIs send ids either as JSON numbers or strings; both decode here.
type ItemID string

// UnmarshalJSON accepts a JSON number or string.
func (id *ItemID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}

	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("decode item id: %w", err)
		}
		*id = ItemID(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("decode item id: %w", err)
	}
	*id = ItemID(n.String())
	return nil
}

// MarshalJSON encodes numeric ids as JSON numbers and everything else as strings.
func (id ItemID) MarshalJSON() ([]byte, error) {
	if n, err := strconv.ParseInt(string(id), 10, 64); err == nil && strconv.FormatInt(n, 10) == string(id) {
		return []byte(id), nil
	}
	return json.Marshal(string(id))
}

// Trait is a single named attribute of an item.
type Trait struct {
	Name  string `json:"trait_type"`
	Value string `json:"value"`
}

// UnmarshalJSON normalises non-string values (numbers, booleans) to text.
func (t *Trait) UnmarshalJSON(data []byte) error {
	var raw struct {
		Name  string          `json:"trait_type"`
		Value json.RawMessage `json:"value"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode trait: %w", err)
	}

	t.Name = raw.Name
	t.Value = ""

	value := bytes.TrimSpace(raw.Value)
	switch {
	case len(value) == 0, bytes.Equal(value, []byte("null")):
	case value[0] == '"':
		if err := json.Unmarshal(value, &t.Value); err != nil {
			return fmt.Errorf("decode trait %q value: %w", raw.Name, err)
		}
	default:
		t.Value = string(value)
	}
	return nil
}

// Item is the canonical collection entry. Fields other than ID and Traits
// are display data the paginator passes through untouched.
type Item struct {
	ID          ItemID  `json:"id"`
	Name        string  `json:"name,omitempty"`
	Description string  `json:"description,omitempty"`
	Image       string  `json:"image,omitempty"`
	Traits      []Trait `json:"attributes"`
}

// Trait returns the value of the named trait and whether the item carries it.
func (it Item) Trait(name string) (string, bool) {
	for _, t := range it.Traits {
		if t.Name == name {
			return t.Value, true
		}
	}
	return "", false
}

// Info is collection-level metadata reported by the source alongside a page.
type Info struct {
	ID           int64  `json:"id,omitempty"`
	Tick         string `json:"tick"`
	Deployer     string `json:"deployer,omitempty"`
	BaseURI      string `json:"buri,omitempty"`
	TxIDReveal   string `json:"txIdRev,omitempty"`
	State        string `json:"state,omitempty"`
	Max          int    `json:"max"`
	Minted       int    `json:"minted"`
	Premint      int    `json:"premint,omitempty"`
	MintStartDAA int64  `json:"daaMintStart,omitempty"`
	AddedAt      int64  `json:"mtsAdd,omitempty"`
	RoyaltyFee   int64  `json:"royaltyFee,omitempty"`
	Completed    bool   `json:"completed"`
}

func cloneItems(items []Item) []Item {
	if items == nil {
		return nil
	}
	out := make([]Item, len(items))
	copy(out, items)
	return out
}
