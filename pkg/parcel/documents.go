package parcel

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DeedDateLayout is the accepted format of a deed of assignment date.
const DeedDateLayout = "2006-01-02"

const (
	minTaxYear = 1900
	maxTaxYear = 9999
)

// Documents records which supporting documents the surveyor has sighted.
// A reference is only kept when its flag is set; otherwise it is null.
type Documents struct {
	HasSurveyPlan        bool    `json:"hasSurveyPlan"`
	SurveyPlanNumber     *string `json:"surveyPlanNumber"`
	HasDeedOfAssignment  bool    `json:"hasDeedOfAssignment"`
	DeedOfAssignmentDate *string `json:"deedOfAssignmentDate"`
	HasTaxClearance      bool    `json:"hasTaxClearance"`
	TaxClearanceYear     *Year   `json:"taxClearanceYear"`
}

// Clone returns a deep copy.
func (d Documents) Clone() Documents {
	out := d
	out.SurveyPlanNumber = cloneString(d.SurveyPlanNumber)
	out.DeedOfAssignmentDate = cloneString(d.DeedOfAssignmentDate)
	if d.TaxClearanceYear != nil {
		y := *d.TaxClearanceYear
		out.TaxClearanceYear = &y
	}
	return out
}

// Normalize trims references and nulls every reference whose flag is unset
// or whose value is blank.
func (d Documents) Normalize() Documents {
	out := d.Clone()
	if out.SurveyPlanNumber != nil {
		out.SurveyPlanNumber = optionalString(*out.SurveyPlanNumber)
	}
	if out.DeedOfAssignmentDate != nil {
		out.DeedOfAssignmentDate = optionalString(*out.DeedOfAssignmentDate)
	}
	if out.TaxClearanceYear != nil && *out.TaxClearanceYear == 0 {
		out.TaxClearanceYear = nil
	}
	if !out.HasSurveyPlan {
		out.SurveyPlanNumber = nil
	}
	if !out.HasDeedOfAssignment {
		out.DeedOfAssignmentDate = nil
	}
	if !out.HasTaxClearance {
		out.TaxClearanceYear = nil
	}
	return out
}

func (d Documents) validate(verr *ValidationError) {
	if d.DeedOfAssignmentDate != nil {
		if _, err := time.Parse(DeedDateLayout, *d.DeedOfAssignmentDate); err != nil {
			verr.add("deedOfAssignmentDate", "must be a date in YYYY-MM-DD format")
		}
	}
	if d.TaxClearanceYear != nil {
		if y := int(*d.TaxClearanceYear); y < minTaxYear || y > maxTaxYear {
			verr.add("taxClearanceYear", "must be between %d and %d", minTaxYear, maxTaxYear)
		}
	}
}

// Year is a calendar year. Like Coordinate it accepts a number or a numeric
// string, and an empty string decodes as zero.
type Year int

// UnmarshalJSON accepts a JSON number or a numeric string.
func (y *Year) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			*y = 0
			return nil
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			return fmt.Errorf("invalid year %q", s)
		}
		*y = Year(n)
		return nil
	}
	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("invalid year %s", string(data))
	}
	*y = Year(n)
	return nil
}
