package collection

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestItem_UnmarshalUpstreamEntry(t *testing.T) {
	data := `{
		"id": 42,
		"fkCollection": 7,
		"name": "Kaspunk #42",
		"image": "ipfs://bafy/42.png",
		"attributes": [
			{"trait_type": "Background", "value": "Teal"},
			{"trait_type": "Level", "value": 3},
			{"trait_type": "Shiny", "value": true},
			{"trait_type": "Note", "value": null}
		]
	}`

	var it Item
	if err := json.Unmarshal([]byte(data), &it); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	want := Item{
		ID:    "42",
		Name:  "Kaspunk #42",
		Image: "ipfs://bafy/42.png",
		Traits: []Trait{
			{Name: "Background", Value: "Teal"},
			{Name: "Level", Value: "3"},
			{Name: "Shiny", Value: "true"},
			{Name: "Note", Value: ""},
		},
	}
	if diff := cmp.Diff(want, it); diff != "" {
		t.Errorf("Item (-want +got):\n%s", diff)
	}
}

func TestItemID_JSON(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    ItemID
		encoded string
	}{
		{name: "number", in: `17`, want: "17", encoded: `17`},
		{name: "string", in: `"abc-1"`, want: "abc-1", encoded: `"abc-1"`},
		{name: "numeric string", in: `"17"`, want: "17", encoded: `17`},
		{name: "leading zero stays string", in: `"007"`, want: "007", encoded: `"007"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var id ItemID
			if err := json.Unmarshal([]byte(tt.in), &id); err != nil {
				t.Fatalf("Unmarshal(%s) failed: %v", tt.in, err)
			}
			if id != tt.want {
				t.Errorf("ItemID = %q, want %q", id, tt.want)
			}
			out, err := json.Marshal(id)
			if err != nil {
				t.Fatalf("Marshal failed: %v", err)
			}
			if string(out) != tt.encoded {
				t.Errorf("Marshal = %s, want %s", out, tt.encoded)
			}
		})
	}
}

func TestFilters_KeyAndMatches(t *testing.T) {
	f := Filters{"size": "L", "color": "red", "empty": ""}
	if got, want := f.Key(), "color=red&size=L"; got != want {
		t.Errorf("Key() = %q, want %q", got, want)
	}
	if _, ok := f.Clone()["empty"]; ok {
		t.Error("Clone() kept an empty filter value")
	}

	tests := []struct {
		name string
		item Item
		want bool
	}{
		{
			name: "all match",
			item: Item{Traits: []Trait{{Name: "color", Value: "red"}, {Name: "size", Value: "L"}}},
			want: true,
		},
		{
			name: "one mismatch",
			item: Item{Traits: []Trait{{Name: "color", Value: "blue"}, {Name: "size", Value: "L"}}},
			want: false,
		},
		{
			name: "missing trait does not exclude",
			item: Item{Traits: []Trait{{Name: "color", Value: "red"}}},
			want: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := f.Matches(tt.item); got != tt.want {
				t.Errorf("Matches() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPage_Validate(t *testing.T) {
	ok := Page{Meta: PageMeta{CurrentPage: 2, TotalPages: 3}}
	if err := ok.validate(2); err != nil {
		t.Errorf("validate() = %v, want nil", err)
	}

	bad := Page{Meta: PageMeta{CurrentPage: 1, TotalPages: 3}}
	if err := bad.validate(2); err == nil {
		t.Error("validate() = nil for mismatched page, want error")
	}

	negative := Page{Meta: PageMeta{CurrentPage: 1, TotalItems: -1}}
	if err := negative.validate(1); err == nil {
		t.Error("validate() = nil for negative totals, want error")
	}
}
