package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ErrInvalidExtraction wraps every boundary rejection of an extractor payload.
var ErrInvalidExtraction = errors.New("invalid extraction")

var validate = validator.New()

// Coord is one explicit coordinate as claimed by the extractor. Extractors
// emit numbers, numeric strings, or garbage; Coord keeps enough to tell them apart.
type Coord struct {
	Value   float64
	Present bool
	Numeric bool
	Raw     string
}

// NumericCoord builds a present numeric coordinate.
func NumericCoord(v float64) Coord {
	return Coord{Value: v, Present: true, Numeric: true}
}

// UnmarshalJSON accepts null, a JSON number, or a string.
func (c *Coord) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*c = Coord{}
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			*c = Coord{}
			return nil
		}
		v, err := strconv.ParseFloat(s, 64)
		*c = Coord{Value: v, Present: true, Numeric: err == nil, Raw: s}
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		*c = Coord{Present: true, Raw: string(b)}
		return nil
	}
	*c = NumericCoord(v)
	return nil
}

// MarshalJSON writes numbers as numbers and keeps non-numeric input verbatim.
func (c Coord) MarshalJSON() ([]byte, error) {
	switch {
	case !c.Present:
		return []byte("null"), nil
	case c.Numeric:
		return json.Marshal(c.Value)
	default:
		return json.Marshal(c.Raw)
	}
}

// ClaimedLocation is where the extractor believes the event happened.
type ClaimedLocation struct {
	ExplicitLat Coord  `json:"explicit_lat"`
	ExplicitLon Coord  `json:"explicit_lon"`
	PlaceName   string `json:"place_name,omitempty" validate:"max=256"`
}

// HasCoordinates reports whether either coordinate was supplied.
func (l ClaimedLocation) HasCoordinates() bool {
	return l.ExplicitLat.Present || l.ExplicitLon.Present
}

// IsZero reports whether nothing at all was claimed.
func (l ClaimedLocation) IsZero() bool {
	return !l.HasCoordinates() && strings.TrimSpace(l.PlaceName) == ""
}

// UnitMention names a military unit referenced by the event.
type UnitMention struct {
	UnitID string `json:"unit_id" validate:"required,max=128"`
}

// TitanVectors are the extractor's qualitative 1–10 judgements. Values out of
// range, 0 included, are clamped by the scorer rather than rejected here.
type TitanVectors struct {
	Kinetic int `json:"kinetic"`
	Target  int `json:"target"`
	Effect  int `json:"effect"`
}

// Extraction is the extractor's per-event output contract.
type Extraction struct {
	ClusterID         string          `json:"cluster_id" validate:"required,max=128"`
	ClaimedLocation   ClaimedLocation `json:"claimed_location"`
	ClaimedTimestamp  string          `json:"claimed_timestamp,omitempty"`
	UnitMentions      []UnitMention   `json:"unit_mentions,omitempty" validate:"max=32,dive"`
	TitanVectors      *TitanVectors   `json:"titan_vectors" validate:"required"`
	IsDeepStrike      bool            `json:"is_deep_strike"`
	VisuallyConfirmed bool            `json:"visually_confirmed"`
	ContextText       string          `json:"context_text,omitempty"`
}

// DecodeExtraction parses and schema-checks an extractor payload.
func DecodeExtraction(data []byte) (Extraction, error) {
	var ex Extraction
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&ex); err != nil {
		return Extraction{}, fmt.Errorf("%w: decode: %v", ErrInvalidExtraction, err)
	}
	if err := ex.Validate(); err != nil {
		return Extraction{}, err
	}
	return ex, nil
}

// Validate runs the struct-tag schema checks.
func (ex Extraction) Validate() error {
	if err := validate.Struct(ex); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidExtraction, err)
	}
	return nil
}
