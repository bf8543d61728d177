package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// ============================================================
// Budget declaration (user input, persisted)
// ============================================================

// BudgetDeclaration is the percentage-based budget a user saves.
// One live declaration exists per user; saving replaces the previous one.
type BudgetDeclaration struct {
	UserID             string          `json:"userId"`
	MonthlyIncome      float64         `json:"monthlyIncome"`
	Categories         CategoryShares  `json:"categories"`
	WantsSubcategories []CategoryShare `json:"wantsSubcategories"`
	Streak             *StreakState    `json:"streak,omitempty"`
	UpdatedAt          time.Time       `json:"updatedAt,omitempty"`
}

// AllocateRequest is the body of PUT /v1/users/{userId}/budget and of the
// stateless POST /v1/budget/allocate.
type AllocateRequest struct {
	MonthlyIncome      float64         `json:"monthlyIncome"`
	Categories         CategoryShares  `json:"categories"`
	WantsSubcategories []CategoryShare `json:"wantsSubcategories"`
}

// CategoryShare is a named percentage.
type CategoryShare struct {
	Name       string  `json:"name"`
	Percentage float64 `json:"percentage"`
}

// CategoryShares is an ordered list of category percentages.
//
// On the wire it is accepted in every shape clients have sent:
//
//	{"rent": 30, "food": 15}
//	{"rent": {"percentage": 30, "total": 1500}}
//	[{"name": "rent", "percentage": 30}]
//
// Key order of the object forms is preserved. It is always written back as
// an ordered object of name → percentage.
type CategoryShares []CategoryShare

// Percentage returns the share for name and whether it exists.
func (c CategoryShares) Percentage(name string) (float64, bool) {
	for _, s := range c {
		if s.Name == name {
			return s.Percentage, true
		}
	}
	return 0, false
}

func (c CategoryShares) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, s := range c {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(s.Name)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(s.Percentage)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (c *CategoryShares) UnmarshalJSON(b []byte) error {
	trimmed := bytes.TrimSpace(b)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*c = nil
		return nil
	}

	switch trimmed[0] {
	case '[':
		var list []CategoryShare
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return fmt.Errorf("decode categories list: %w", err)
		}
		*c = list
		return nil
	case '{':
		return c.decodeObject(trimmed)
	default:
		return fmt.Errorf("categories must be an object or a list")
	}
}

func (c *CategoryShares) decodeObject(b []byte) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	if _, err := dec.Token(); err != nil { // opening brace
		return err
	}

	out := CategoryShares{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		name, ok := tok.(string)
		if !ok {
			return fmt.Errorf("unexpected category key %v", tok)
		}

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("decode category %q: %w", name, err)
		}
		pct, err := decodeShareValue(raw)
		if err != nil {
			return fmt.Errorf("decode category %q: %w", name, err)
		}
		out = append(out, CategoryShare{Name: name, Percentage: pct})
	}
	*c = out
	return nil
}

// decodeShareValue accepts a bare number or an object carrying "percentage".
func decodeShareValue(raw json.RawMessage) (float64, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '{' {
		var obj struct {
			Percentage *float64 `json:"percentage"`
		}
		if err := json.Unmarshal(raw, &obj); err != nil {
			return 0, err
		}
		if obj.Percentage == nil {
			return 0, fmt.Errorf("missing percentage")
		}
		return *obj.Percentage, nil
	}
	var pct float64
	if err := json.Unmarshal(raw, &pct); err != nil {
		return 0, err
	}
	return pct, nil
}

// ============================================================
// Budget result (derived, never persisted)
// ============================================================

// BudgetResult is the dollar allocation computed from a declaration.
type BudgetResult struct {
	MonthlyIncome  float64              `json:"monthlyIncome"`
	TotalAllocated float64              `json:"totalAllocated"`
	Unallocated    float64              `json:"unallocated"`
	Categories     []CategoryAllocation `json:"categories"`
	IsValid        bool                 `json:"isValid"`
	Errors         []string             `json:"errors,omitempty"`
}

// CategoryAllocation is one category's share of income.
type CategoryAllocation struct {
	Name          string                  `json:"name"`
	Percentage    float64                 `json:"percentage"`
	Amount        float64                 `json:"amount"`
	Subcategories []SubcategoryAllocation `json:"subcategories,omitempty"`
}

// SubcategoryAllocation is a share of the wants category.
type SubcategoryAllocation struct {
	Name       string  `json:"name"`
	Percentage float64 `json:"percentage"`
	Amount     float64 `json:"amount"`
}
