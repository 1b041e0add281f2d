// Package disclosure holds the financial disclosure snapshot and the rule that decides whether a
// union must be audited.
package disclosure

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrMalformedSnapshot is returned when financial data is not a JSON object or a known field has
// the wrong type, a negative value, or a count outside the int64 range.
var ErrMalformedSnapshot = errors.New("malformed financial data")

var maxCount = decimal.NewFromInt(math.MaxInt64)

// Known snapshot keys. Any other key is carried through untouched in Extra.
const (
	KeyAnnualRevenue     = "annualRevenue"
	KeyTotalAssets       = "totalAssets"
	KeyMemberCount       = "memberCount"
	KeyGovernmentSupport = "governmentSupport"
)

// Snapshot is a union's self-reported financial figures. Nil fields were absent from the input.
type Snapshot struct {
	AnnualRevenue     *decimal.Decimal
	TotalAssets       *decimal.Decimal
	MemberCount       *int64
	GovernmentSupport *bool
	// Extra holds unrecognized keys verbatim.
	Extra map[string]json.RawMessage
}

// ParseSnapshot decodes financial data. A JSON string holding an object is unwrapped first, as
// multipart clients send the object as text. null, "" and an empty body yield nil, nil.
func ParseSnapshot(raw []byte) (*Snapshot, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedSnapshot, err)
		}
		return ParseSnapshot([]byte(s))
	}
	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		if errors.Is(err, ErrMalformedSnapshot) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrMalformedSnapshot, err)
	}
	return &snap, nil
}

// UnmarshalJSON decodes known fields strictly and keeps the rest in Extra.
func (s *Snapshot) UnmarshalJSON(b []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(b, &fields); err != nil || fields == nil {
		return fmt.Errorf("%w: expected a JSON object", ErrMalformedSnapshot)
	}
	*s = Snapshot{}
	for k, v := range fields {
		if isNull(v) {
			continue
		}
		var err error
		switch k {
		case KeyAnnualRevenue:
			s.AnnualRevenue, err = parseAmount(k, v)
		case KeyTotalAssets:
			s.TotalAssets, err = parseAmount(k, v)
		case KeyMemberCount:
			s.MemberCount, err = parseCount(k, v)
		case KeyGovernmentSupport:
			var b bool
			if json.Unmarshal(v, &b) != nil {
				err = fmt.Errorf("%w: %s must be a boolean", ErrMalformedSnapshot, k)
			}
			s.GovernmentSupport = &b
		default:
			if s.Extra == nil {
				s.Extra = make(map[string]json.RawMessage)
			}
			s.Extra[k] = append(json.RawMessage(nil), v...)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// MarshalJSON writes known fields that are set plus every Extra key.
func (s Snapshot) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(s.Extra)+4)
	for k, v := range s.Extra {
		out[k] = v
	}
	if s.AnnualRevenue != nil {
		out[KeyAnnualRevenue] = json.RawMessage(s.AnnualRevenue.String())
	}
	if s.TotalAssets != nil {
		out[KeyTotalAssets] = json.RawMessage(s.TotalAssets.String())
	}
	if s.MemberCount != nil {
		out[KeyMemberCount] = *s.MemberCount
	}
	if s.GovernmentSupport != nil {
		out[KeyGovernmentSupport] = *s.GovernmentSupport
	}
	return json.Marshal(out)
}

// IsEmpty reports whether s carries no data at all.
func (s *Snapshot) IsEmpty() bool {
	return s == nil || (s.AnnualRevenue == nil && s.TotalAssets == nil && s.MemberCount == nil &&
		s.GovernmentSupport == nil && len(s.Extra) == 0)
}

// Revenue returns the annual revenue, zero when absent.
func (s *Snapshot) Revenue() decimal.Decimal {
	if s == nil || s.AnnualRevenue == nil {
		return decimal.Zero
	}
	return *s.AnnualRevenue
}

// Assets returns total assets, zero when absent.
func (s *Snapshot) Assets() decimal.Decimal {
	if s == nil || s.TotalAssets == nil {
		return decimal.Zero
	}
	return *s.TotalAssets
}

// Members returns the member count, zero when absent.
func (s *Snapshot) Members() int64 {
	if s == nil || s.MemberCount == nil {
		return 0
	}
	return *s.MemberCount
}

// Supported reports government support, false when absent.
func (s *Snapshot) Supported() bool {
	return s != nil && s.GovernmentSupport != nil && *s.GovernmentSupport
}

func parseAmount(key string, v json.RawMessage) (*decimal.Decimal, error) {
	var d decimal.Decimal
	if err := d.UnmarshalJSON(v); err != nil {
		return nil, fmt.Errorf("%w: %s must be a number", ErrMalformedSnapshot, key)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("%w: %s must not be negative", ErrMalformedSnapshot, key)
	}
	return &d, nil
}

func parseCount(key string, v json.RawMessage) (*int64, error) {
	d, err := parseAmount(key, v)
	if err != nil {
		return nil, err
	}
	if !d.IsInteger() {
		return nil, fmt.Errorf("%w: %s must be a whole number", ErrMalformedSnapshot, key)
	}
	if d.GreaterThan(maxCount) {
		return nil, fmt.Errorf("%w: %s is out of range", ErrMalformedSnapshot, key)
	}
	n := d.IntPart()
	return &n, nil
}

func isNull(v json.RawMessage) bool {
	return strings.TrimSpace(string(v)) == "null"
}
