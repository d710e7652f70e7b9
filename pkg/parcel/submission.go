package parcel

import (
	"sort"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
)

// Submission is the body of a new parcel submission. Supporting document
// fields are flattened into the top level, matching the surveyor form.
type Submission struct {
	OwnerName       string       `json:"ownerName"`
	NIN             string       `json:"nin"`
	Phone           string       `json:"phone"`
	LandDescription string       `json:"landDescription"`
	Latitude        *Coordinate  `json:"latitude"`
	Longitude       *Coordinate  `json:"longitude"`
	Points          []PointInput `json:"points"`
	SurveyorName    string       `json:"surveyorName"`
	SurveyorLicense string       `json:"surveyorLicense"`
	Documents
}

// Draft validates the submission against the deployment geometry schema and
// returns the record it describes. Identifiers, timestamps and hashes are
// left for the caller to fill in.
func (s Submission) Draft(schema GeometryKind) (Record, error) {
	verr := &ValidationError{}

	rec := Record{
		OwnerName:       strings.TrimSpace(s.OwnerName),
		NIN:             strings.TrimSpace(s.NIN),
		Phone:           strings.TrimSpace(s.Phone),
		LandDescription: strings.TrimSpace(s.LandDescription),
		SurveyorName:    optionalString(s.SurveyorName),
		SurveyorLicense: optionalString(s.SurveyorLicense),
		Documents:       s.Documents.Normalize(),
		Status:          StatusPending,
	}
	requireText(verr, "ownerName", rec.OwnerName)
	requireText(verr, "nin", rec.NIN)
	requireText(verr, "phone", rec.Phone)
	requireText(verr, "landDescription", rec.LandDescription)

	n := len(verr.Fields)
	rec.Geometry = geometryFromInput(schema, s.Latitude, s.Longitude, s.Points, verr)
	if len(verr.Fields) == n || schema == GeometryPolygon {
		rec.Geometry.validate(schema, verr)
	}
	rec.Documents.validate(verr)

	if err := verr.orNil(); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// Edit is the body of an edit request. Only the fields declared here can ever
// reach the store; identifiers, status, hashes and timestamps are not editable.
type Edit struct {
	OwnerName            *string      `json:"ownerName"`
	NIN                  *string      `json:"nin"`
	Phone                *string      `json:"phone"`
	LandDescription      *string      `json:"landDescription"`
	Latitude             *Coordinate  `json:"latitude"`
	Longitude            *Coordinate  `json:"longitude"`
	Points               []PointInput `json:"points"`
	SurveyorName         *string      `json:"surveyorName"`
	SurveyorLicense      *string      `json:"surveyorLicense"`
	HasSurveyPlan        *bool        `json:"hasSurveyPlan"`
	SurveyPlanNumber     *string      `json:"surveyPlanNumber"`
	HasDeedOfAssignment  *bool        `json:"hasDeedOfAssignment"`
	DeedOfAssignmentDate *string      `json:"deedOfAssignmentDate"`
	HasTaxClearance      *bool        `json:"hasTaxClearance"`
	TaxClearanceYear     *Year        `json:"taxClearanceYear"`
}

// Patch validates the edit against the current record and returns the patch
// to apply together with the names of the fields it touches.
func (e Edit) Patch(current Record, schema GeometryKind) (Patch, []string, error) {
	verr := &ValidationError{}
	changed := mapset.NewThreadUnsafeSet[string]()
	var p Patch

	text := func(field string, v *string, dst **string) {
		if v == nil {
			return
		}
		s := strings.TrimSpace(*v)
		requireText(verr, field, s)
		*dst = &s
		changed.Add(field)
	}
	text("ownerName", e.OwnerName, &p.OwnerName)
	text("nin", e.NIN, &p.NIN)
	text("phone", e.Phone, &p.Phone)
	text("landDescription", e.LandDescription, &p.LandDescription)

	if e.SurveyorName != nil {
		p.SurveyorName = e.SurveyorName
		changed.Add("surveyorName")
	}
	if e.SurveyorLicense != nil {
		p.SurveyorLicense = e.SurveyorLicense
		changed.Add("surveyorLicense")
	}

	if g, ok := e.geometry(current, schema, verr); ok {
		p.Geometry = &g
		changed.Add("geometry")
	}

	if docs, ok := e.documents(current.Documents); ok {
		docs.validate(verr)
		p.Documents = &docs
		changed.Add("documents")
	}

	if err := verr.orNil(); err != nil {
		return Patch{}, nil, err
	}
	fields := changed.ToSlice()
	sort.Strings(fields)
	return p, fields, nil
}

func (e Edit) geometry(current Record, schema GeometryKind, verr *ValidationError) (Geometry, bool) {
	switch schema {
	case GeometryPoint:
		if e.Latitude == nil && e.Longitude == nil {
			return Geometry{}, false
		}
		lat, lng := e.Latitude, e.Longitude
		if cur := current.Geometry.Point; cur != nil {
			if lat == nil {
				c := Coordinate(cur.Latitude)
				lat = &c
			}
			if lng == nil {
				c := Coordinate(cur.Longitude)
				lng = &c
			}
		}
		n := len(verr.Fields)
		g := geometryFromInput(schema, lat, lng, nil, verr)
		if len(verr.Fields) == n {
			g.validate(schema, verr)
		}
		return g, true
	default:
		if e.Points == nil {
			return Geometry{}, false
		}
		g := geometryFromInput(schema, nil, nil, e.Points, verr)
		g.validate(schema, verr)
		return g, true
	}
}

func (e Edit) documents(current Documents) (Documents, bool) {
	if e.HasSurveyPlan == nil && e.SurveyPlanNumber == nil &&
		e.HasDeedOfAssignment == nil && e.DeedOfAssignmentDate == nil &&
		e.HasTaxClearance == nil && e.TaxClearanceYear == nil {
		return Documents{}, false
	}
	d := current.Clone()
	if e.HasSurveyPlan != nil {
		d.HasSurveyPlan = *e.HasSurveyPlan
	}
	if e.SurveyPlanNumber != nil {
		d.SurveyPlanNumber = cloneString(e.SurveyPlanNumber)
	}
	if e.HasDeedOfAssignment != nil {
		d.HasDeedOfAssignment = *e.HasDeedOfAssignment
	}
	if e.DeedOfAssignmentDate != nil {
		d.DeedOfAssignmentDate = cloneString(e.DeedOfAssignmentDate)
	}
	if e.HasTaxClearance != nil {
		d.HasTaxClearance = *e.HasTaxClearance
	}
	if e.TaxClearanceYear != nil {
		y := *e.TaxClearanceYear
		d.TaxClearanceYear = &y
	}
	return d.Normalize(), true
}

func requireText(verr *ValidationError, field, v string) {
	if v == "" {
		verr.add(field, "is required")
	}
}
