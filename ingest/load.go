/*
load.go - Decoding tile payloads into engine records

The portal double-encodes its data: the response is a JSON object, and
the row array lives in an inner JSON STRING under the tile's key. Row
values are loosely typed - numbers arrive as numbers or strings, ids as
float-formatted strings - so everything is read through tolerant
accessors and normalized once, here.
*/
package ingest

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/skjhavit/mpladsanalyticsdashboard/engine"
)

// ParseTile extracts and decodes the inner row array of one tile.
func ParseTile(raw []byte, key string) ([]map[string]any, error) {
	var outer map[string]json.RawMessage
	if err := json.Unmarshal(raw, &outer); err != nil {
		return nil, fmt.Errorf("tile %q: outer decode: %w", key, err)
	}
	inner, ok := outer[key]
	if !ok {
		return nil, fmt.Errorf("tile %q: key not found in response", key)
	}

	// The inner payload is a JSON string holding JSON.
	var innerStr string
	if err := json.Unmarshal(inner, &innerStr); err != nil {
		return nil, fmt.Errorf("tile %q: inner payload is not a string: %w", key, err)
	}

	dec := json.NewDecoder(strings.NewReader(innerStr))
	dec.UseNumber()
	var rows []map[string]any
	if err := dec.Decode(&rows); err != nil {
		return nil, fmt.Errorf("tile %q: row decode: %w", key, err)
	}
	return rows, nil
}

// BuildDataset maps the four fetched tiles (keyed by Tile.Name) onto a
// full replacement dataset.
func BuildDataset(tiles map[string][]byte) (engine.Dataset, error) {
	var ds engine.Dataset

	for _, t := range Tiles {
		raw, ok := tiles[t.Name]
		if !ok {
			return engine.Dataset{}, fmt.Errorf("missing tile %q", t.Name)
		}
		rows, err := ParseTile(raw, t.Key)
		if err != nil {
			return engine.Dataset{}, err
		}

		switch t.Name {
		case "allocated_limit":
			for _, row := range rows {
				ds.Allocations = append(ds.Allocations, engine.AllocationRecord{
					MPName:       cell(row, "MP_NAME"),
					State:        cell(row, "STATE_NAME"),
					Constituency: cell(row, "CONSTITUENCY"),
					Allocated:    amountCell(row, "ALLOCATED_AMT"),
				})
			}
		case "total_expenditure":
			for _, row := range rows {
				ds.Expenditures = append(ds.Expenditures, engine.ExpenditureRecord{
					MPName:    cell(row, "MP_NAME"),
					State:     cell(row, "STATE_NAME"),
					Vendor:    cell(row, "VENDOR_NAME"),
					Activity:  cell(row, "ACTIVITY_NAME"),
					Disbursed: amountCell(row, "FUND_DISBURSED_AMT"),
					DateRaw:   cell(row, "EXPENDITURE_DATE"),
					WorkID:    cell(row, "WORK_RECOMMENDATION_DTL_ID"),
				})
			}
		case "total_works_recommended":
			for _, row := range rows {
				ds.Recommendations = append(ds.Recommendations, engine.RecommendationRecord{
					MPName:      cell(row, "MP_NAME"),
					State:       cell(row, "STATE_NAME"),
					Activity:    cell(row, "ACTIVITY_NAME"),
					Description: cell(row, "WORK_DESCRIPTION"),
					Recommended: amountCell(row, "RECOMMENDED_AMOUNT"),
					DateRaw:     cell(row, "RECOMMENDATION_DATE"),
					WorkID:      cell(row, "WORK_RECOMMENDATION_DTL_ID"),
				})
			}
		case "total_works_completed":
			for _, row := range rows {
				ds.Completions = append(ds.Completions, engine.CompletionRecord{
					MPName:       cell(row, "MP_NAME"),
					State:        cell(row, "STATE_NAME"),
					Activity:     cell(row, "ACTIVITY_NAME"),
					WorkID:       cell(row, "WORK_RECOMMENDATION_DTL_ID"),
					EndDateRaw:   cell(row, "ACTUAL_END_DATE"),
					ProofRef:     cell(row, "ATTACH_ID"),
					ActualAmount: amountCell(row, "ACTUAL_AMOUNT"),
				})
			}
		}
	}
	return ds, nil
}

// cell reads a row value as a string, tolerating numeric cells. Nulls
// and the textual NaN token become "".
func cell(row map[string]any, key string) string {
	v, ok := row[key]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		s := strings.TrimSpace(t)
		if strings.EqualFold(s, "nan") || strings.EqualFold(s, "null") {
			return ""
		}
		return s
	case json.Number:
		return t.String()
	case float64:
		return strings.TrimSuffix(fmt.Sprintf("%f", t), ".000000")
	default:
		return fmt.Sprintf("%v", t)
	}
}

// amountCell reads a row value as an optional decimal. Anything that
// does not parse as a number is "absent", never zero.
func amountCell(row map[string]any, key string) decimal.NullDecimal {
	s := cell(row, key)
	if s == "" {
		return decimal.NullDecimal{}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(d)
}
