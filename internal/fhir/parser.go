package fhir

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"hemogram-alert/internal/models"

	"go.uber.org/zap"
)

// ErrMalformedResource marks payloads that are not parseable FHIR JSON.
// Callers treat it as "ignore": the notifier already got its acknowledgment.
var ErrMalformedResource = errors.New("malformed FHIR resource")

// Parser decodes notification payloads into typed records and extracts the
// panel and subject data the pipeline works with.
type Parser struct {
	logger *zap.Logger
}

// NewParser creates a parser.
func NewParser(logger *zap.Logger) *Parser {
	return &Parser{logger: logger}
}

// resourceHeader is the minimal envelope probed before full decoding.
type resourceHeader struct {
	ResourceType string `json:"resourceType"`
}

// IsWellFormed reports whether payload looks like a FHIR resource: a JSON
// object carrying a resourceType.
func (p *Parser) IsWellFormed(payload []byte) bool {
	var header resourceHeader
	if err := json.Unmarshal(payload, &header); err != nil {
		return false
	}
	return header.ResourceType != ""
}

// Parse decodes payload into a tagged record. Resource types outside the
// routed set come back as RecordUnrecognized, not as an error.
func (p *Parser) Parse(payload []byte) (*Record, error) {
	var header resourceHeader
	if err := json.Unmarshal(payload, &header); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResource, err)
	}
	if header.ResourceType == "" {
		return nil, fmt.Errorf("%w: missing resourceType", ErrMalformedResource)
	}

	switch header.ResourceType {
	case "Bundle":
		var bundle Bundle
		if err := json.Unmarshal(payload, &bundle); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedResource, err)
		}
		return &Record{Kind: RecordBundle, Bundle: &bundle}, nil
	case "Observation":
		var obs Observation
		if err := json.Unmarshal(payload, &obs); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedResource, err)
		}
		return &Record{Kind: RecordObservation, Observation: &obs}, nil
	case "Patient":
		var patient Patient
		if err := json.Unmarshal(payload, &patient); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedResource, err)
		}
		return &Record{Kind: RecordPatient, Patient: &patient}, nil
	default:
		p.logger.Debug("Unrecognized resource type",
			zap.String("resource_type", header.ResourceType),
		)
		return &Record{Kind: RecordUnrecognized}, nil
	}
}

// ParseBundleEntries decodes each entry of a bundle into its own record.
// Entries that fail to decode are logged and dropped; the rest survive.
func (p *Parser) ParseBundleEntries(bundle *Bundle) []*Record {
	var records []*Record
	for i, entry := range bundle.Entry {
		if len(entry.Resource) == 0 {
			continue
		}
		record, err := p.Parse(entry.Resource)
		if err != nil {
			p.logger.Warn("Skipping malformed bundle entry",
				zap.String("bundle_id", bundle.ID),
				zap.Int("entry", i),
				zap.Error(err),
			)
			continue
		}
		records = append(records, record)
	}
	return records
}

// PanelData is the normalized panel content of one Observation.
type PanelData struct {
	ObservationID string // "Observation/<id>"
	SubjectRef    string // "Patient/<id>"
	Status        string
	CollectedAt   *time.Time
	Measurements  []models.Measurement
}

// SubjectData is the normalized demographic content of one Patient.
type SubjectData struct {
	Ref        string // "Patient/<id>"
	FullName   *string
	GivenName  *string
	FamilyName *string
	Sex        models.Sex
	BirthDate  *time.Time
	Phone      *string
	Address    *string
	City       *string
	State      *string
	PostalCode *string
}

// ExtractPanel maps an Observation onto panel data. Panel observations carry
// component[] entries; single-value observations map to a one-measurement
// panel through the top-level code and valueQuantity. Components with a LOINC
// code outside the catalogue are dropped, not reported.
func (p *Parser) ExtractPanel(obs *Observation) (*PanelData, error) {
	if obs == nil {
		return nil, fmt.Errorf("%w: nil observation", ErrMalformedResource)
	}
	if obs.ID == "" {
		return nil, fmt.Errorf("%w: observation without id", ErrMalformedResource)
	}

	data := &PanelData{
		ObservationID: "Observation/" + obs.ID,
		Status:        obs.Status,
		CollectedAt:   parseFHIRTime(obs.EffectiveDateTime),
	}
	if obs.Subject != nil {
		data.SubjectRef = obs.Subject.Reference
	}

	if len(obs.Component) > 0 {
		for _, component := range obs.Component {
			m, ok := p.componentMeasurement(component)
			if !ok {
				continue
			}
			data.Measurements = append(data.Measurements, m)
		}
	} else if obs.ValueQuantity != nil && obs.ValueQuantity.Value != nil && obs.Code != nil {
		if code, ok := firstCode(*obs.Code); ok {
			if param, ok := models.ParameterByLOINC(code); ok {
				data.Measurements = append(data.Measurements, models.Measurement{
					Kind:  param.Kind,
					Value: *obs.ValueQuantity.Value,
					Unit:  obs.ValueQuantity.Unit,
				})
			}
		}
	}

	return data, nil
}

func (p *Parser) componentMeasurement(component ObservationComponent) (models.Measurement, bool) {
	code, ok := firstCode(component.Code)
	if !ok {
		return models.Measurement{}, false
	}
	param, ok := models.ParameterByLOINC(code)
	if !ok {
		p.logger.Debug("Dropping component with unmapped code",
			zap.String("code", code),
		)
		return models.Measurement{}, false
	}
	if component.ValueQuantity == nil || component.ValueQuantity.Value == nil {
		return models.Measurement{}, false
	}
	return models.Measurement{
		Kind:  param.Kind,
		Value: *component.ValueQuantity.Value,
		Unit:  component.ValueQuantity.Unit,
	}, true
}

// ExtractSubject maps a Patient onto subject demographics.
func (p *Parser) ExtractSubject(patient *Patient) (*SubjectData, error) {
	if patient == nil {
		return nil, fmt.Errorf("%w: nil patient", ErrMalformedResource)
	}
	if patient.ID == "" {
		return nil, fmt.Errorf("%w: patient without id", ErrMalformedResource)
	}

	data := &SubjectData{
		Ref: "Patient/" + patient.ID,
		Sex: models.ParseSex(patient.Gender),
	}

	if len(patient.Name) > 0 {
		name := patient.Name[0]
		if full := name.Text; full != "" {
			data.FullName = &full
		} else if joined := joinName(name); joined != "" {
			data.FullName = &joined
		}
		if len(name.Given) > 0 {
			given := name.Given[0]
			data.GivenName = &given
		}
		if name.Family != "" {
			family := name.Family
			data.FamilyName = &family
		}
	}

	data.BirthDate = parseFHIRDate(patient.BirthDate)

	for _, telecom := range patient.Telecom {
		if telecom.Value != "" {
			phone := telecom.Value
			data.Phone = &phone
			break
		}
	}

	if len(patient.Address) > 0 {
		addr := patient.Address[0]
		if len(addr.Line) > 0 {
			line := addr.Line[0]
			data.Address = &line
		}
		if addr.City != "" {
			city := addr.City
			data.City = &city
		}
		if addr.State != "" {
			state := addr.State
			data.State = &state
		}
		if addr.PostalCode != "" {
			postal := addr.PostalCode
			data.PostalCode = &postal
		}
	}

	return data, nil
}

func firstCode(concept CodeableConcept) (string, bool) {
	if len(concept.Coding) == 0 || concept.Coding[0].Code == "" {
		return "", false
	}
	return concept.Coding[0].Code, true
}

func joinName(name HumanName) string {
	joined := ""
	for _, given := range name.Given {
		if joined != "" {
			joined += " "
		}
		joined += given
	}
	if name.Family != "" {
		if joined != "" {
			joined += " "
		}
		joined += name.Family
	}
	return joined
}

// parseFHIRTime accepts the dateTime shapes the FHIR server actually sends.
func parseFHIRTime(value string) *time.Time {
	if value == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, value); err == nil {
			return &t
		}
	}
	return nil
}

func parseFHIRDate(value string) *time.Time {
	if value == "" {
		return nil
	}
	if t, err := time.Parse("2006-01-02", value); err == nil {
		return &t
	}
	return nil
}
