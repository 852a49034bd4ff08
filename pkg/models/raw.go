package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Flow direction tags reported in RawRecord.UsageType
const (
	FlowImport = "IUsage"
	FlowExport = "EUsage"
)

// RawRecord is one row of the portal's LoadUsage result set. Import and
// export for the same bucket arrive as separate rows.
type RawRecord struct {
	UsageDate  string `json:"UsageDate"`  // MM/DD/YY, daily and sub-daily
	Hourly     string `json:"Hourly"`     // HH:MM, sub-daily only
	Year       Number `json:"Year"`       // monthly only
	Month      Number `json:"Month"`      // monthly only
	BillPeriod string `json:"BillPeriod"` // "MM/DD/YY to MM/DD/YY", monthly only
	UsageType  string `json:"UsageType"`
	UsageValue Number `json:"UsageValue"`
}

// IsImport reports whether the row carries consumption from the grid
func (r RawRecord) IsImport() bool {
	return strings.EqualFold(strings.TrimSpace(r.UsageType), FlowImport)
}

// IsExport reports whether the row carries generation returned to the grid.
// The portal spells this tag "Eusage".
func (r RawRecord) IsExport() bool {
	return strings.EqualFold(strings.TrimSpace(r.UsageType), FlowExport)
}

// Number decodes a JSON number that the portal sometimes sends as a string.
// null and "" decode as zero.
type Number float64

func (n *Number) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*n = 0
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
		if s == "" {
			*n = 0
			return nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("invalid number %q: %w", s, err)
		}
		*n = Number(f)
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*n = Number(f)
	return nil
}

// Float returns the value as float64
func (n Number) Float() float64 {
	return float64(n)
}

// Int returns the value truncated to an int
func (n Number) Int() int {
	return int(n)
}
