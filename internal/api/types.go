package api

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// RawSnapshot is one entry of the /coins/markets response. Every field may
// be absent, null, or of the wrong type; those all decode as "missing".
type RawSnapshot struct {
	ID                           OptionalString `json:"id"`
	Symbol                       OptionalString `json:"symbol"`
	Name                         OptionalString `json:"name"`
	CurrentPrice                 OptionalFloat  `json:"current_price"`
	MarketCap                    OptionalFloat  `json:"market_cap"`
	MarketCapRank                OptionalFloat  `json:"market_cap_rank"`
	TotalVolume                  OptionalFloat  `json:"total_volume"`
	High24h                      OptionalFloat  `json:"high_24h"`
	Low24h                       OptionalFloat  `json:"low_24h"`
	PriceChangePercentage24h     OptionalFloat  `json:"price_change_percentage_24h"`
	MarketCapChangePercentage24h OptionalFloat  `json:"market_cap_change_percentage_24h"`
	LastUpdated                  OptionalString `json:"last_updated"`
}

// OptionalFloat is a JSON number that may be missing. Numeric strings are
// accepted; null, non-numeric and non-finite values are treated as missing.
type OptionalFloat struct {
	Value float64
	Valid bool
}

// Float returns an OptionalFloat holding f, valid only if f is finite.
func Float(f float64) OptionalFloat {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return OptionalFloat{}
	}
	return OptionalFloat{Value: f, Valid: true}
}

// UnmarshalJSON never fails; unusable input leaves the value missing.
func (f *OptionalFloat) UnmarshalJSON(data []byte) error {
	*f = OptionalFloat{}
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}

	text := string(data)
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return nil
		}
		text = strings.TrimSpace(s)
	}

	v, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return nil
	}
	*f = Float(v)
	return nil
}

// MarshalJSON writes null for a missing value.
func (f OptionalFloat) MarshalJSON() ([]byte, error) {
	if !f.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(f.Value)
}

// OptionalString is a JSON string that may be missing. Non-string values
// are treated as missing.
type OptionalString struct {
	Value string
	Valid bool
}

// String returns a valid OptionalString holding s.
func String(s string) OptionalString {
	return OptionalString{Value: s, Valid: true}
}

// UnmarshalJSON never fails; unusable input leaves the value missing.
func (s *OptionalString) UnmarshalJSON(data []byte) error {
	*s = OptionalString{}
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil
	}
	var v string
	if err := json.Unmarshal(data, &v); err != nil {
		return nil
	}
	*s = OptionalString{Value: v, Valid: true}
	return nil
}

// MarshalJSON writes null for a missing value.
func (s OptionalString) MarshalJSON() ([]byte, error) {
	if !s.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(s.Value)
}
