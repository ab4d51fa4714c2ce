package forecast

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Number is a JSON number that also accepts numeric strings. Null, absent
// and unparsable values leave it unset.
type Number struct {
	Value float64
	Set   bool
}

// Num returns a set Number.
func Num(v float64) Number { return Number{Value: v, Set: true} }

// UnmarshalJSON implements json.Unmarshaler.
func (n *Number) UnmarshalJSON(b []byte) error {
	*n = Number{}
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	s := string(b)
	if b[0] == '"' {
		if err := json.Unmarshal(b, &s); err != nil {
			return nil
		}
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	*n = Number{Value: v, Set: true}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (n Number) MarshalJSON() ([]byte, error) {
	if !n.Set {
		return []byte("null"), nil
	}
	return json.Marshal(n.Value)
}

// RawTip is one advisory item as the generator sent it: either an object or
// plain text.
type RawTip struct {
	Action   string
	Impact   Number
	Priority string
	// Text marks a tip that arrived as a bare string.
	Text bool
}

type rawTipObject struct {
	Action          any    `json:"action"`
	EstimatedImpact Number `json:"estimated_impact"`
	EstimatedKwh    Number `json:"estimated_kwh"`
	Impact          Number `json:"impact"`
	Priority        any    `json:"priority"`
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *RawTip) UnmarshalJSON(b []byte) error {
	*t = RawTip{}
	b = bytes.TrimSpace(b)
	switch {
	case len(b) == 0:
		return nil
	case b[0] == '{':
		var o rawTipObject
		if err := json.Unmarshal(b, &o); err != nil {
			return err
		}
		t.Action = text(o.Action)
		t.Priority = text(o.Priority)
		for _, n := range []Number{o.EstimatedImpact, o.EstimatedKwh, o.Impact} {
			if n.Set {
				t.Impact = n
				break
			}
		}
	case b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		t.Action, t.Text = s, true
	default:
		t.Action, t.Text = string(b), true
	}
	return nil
}

func text(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	default:
		return fmt.Sprint(x)
	}
}

// Tips is a section's advisory list. A value that is not an array, and any
// element that cannot be read, is dropped so validation backfills defaults.
type Tips []RawTip

// UnmarshalJSON implements json.Unmarshaler.
func (ts *Tips) UnmarshalJSON(b []byte) error {
	*ts = nil
	var items []json.RawMessage
	if err := json.Unmarshal(b, &items); err != nil {
		return nil
	}
	out := make(Tips, 0, len(items))
	for _, item := range items {
		var t RawTip
		if err := json.Unmarshal(item, &t); err != nil {
			continue
		}
		out = append(out, t)
	}
	*ts = out
	return nil
}

// RawCatchUp is the catch-up section before validation.
type RawCatchUp struct {
	PredictedIncrease   Number `json:"predicted_increase"`
	UserTrend           Number `json:"userTrend"`
	CompetitorMomentum  Number `json:"competitorMomentum"`
	OvertakeProbability Number `json:"overtakeProbability"`
	Tips                Tips   `json:"tips"`
}

// RawDefense is the defense section before validation.
type RawDefense struct {
	ChaserIncrease      Number `json:"chaserIncrease"`
	ChaserMomentum      Number `json:"chaserMomentum"`
	OvertakeRisk        Number `json:"overtakeRisk"`
	SustainabilityScore Number `json:"sustainabilityScore"`
	Tips                Tips   `json:"tips"`
}

// Raw is a generator response.
type Raw struct {
	CatchUp RawCatchUp `json:"catchUp"`
	Defense RawDefense `json:"defense"`
}

// Parse decodes a generator response body. Only a body that is not a JSON
// object fails; a section that is not an object is left empty.
func Parse(body []byte) (Raw, error) {
	var sections map[string]json.RawMessage
	if err := json.Unmarshal(bytes.TrimSpace(body), &sections); err != nil {
		return Raw{}, fmt.Errorf("%w: %w", ErrParse, err)
	}
	var raw Raw
	if b, ok := sections["catchUp"]; ok {
		if err := json.Unmarshal(b, &raw.CatchUp); err != nil {
			raw.CatchUp = RawCatchUp{}
		}
	}
	if b, ok := sections["defense"]; ok {
		if err := json.Unmarshal(b, &raw.Defense); err != nil {
			raw.Defense = RawDefense{}
		}
	}
	return raw, nil
}
