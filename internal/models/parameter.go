package models

// ParameterKind identifies one measured parameter of a complete blood count.
type ParameterKind string

const (
	ParamLeukocytes   ParameterKind = "LEUKOCYTES"
	ParamHemoglobin   ParameterKind = "HEMOGLOBIN"
	ParamPlatelets    ParameterKind = "PLATELETS"
	ParamHematocrit   ParameterKind = "HEMATOCRIT"
	ParamErythrocytes ParameterKind = "ERYTHROCYTES"
	ParamNeutrophils  ParameterKind = "NEUTROPHILS"
	ParamLymphocytes  ParameterKind = "LYMPHOCYTES"
	ParamMonocytes    ParameterKind = "MONOCYTES"
	ParamEosinophils  ParameterKind = "EOSINOPHILS"
	ParamBasophils    ParameterKind = "BASOPHILS"
)

// ParameterInfo is one entry of the static parameter catalogue.
type ParameterInfo struct {
	Kind        ParameterKind
	DisplayName string
	Unit        string
	LOINCCode   string
}

// parameterCatalogue is the closed set of recognized blood-count parameters.
// LOINC codes follow the standard CBC panel component codes.
var parameterCatalogue = []ParameterInfo{
	{ParamLeukocytes, "Leukocytes", "/μL", "6690-2"},
	{ParamHemoglobin, "Hemoglobin", "g/dL", "718-7"},
	{ParamPlatelets, "Platelets", "/μL", "777-3"},
	{ParamHematocrit, "Hematocrit", "%", "4544-3"},
	{ParamErythrocytes, "Erythrocytes", "million/μL", "789-8"},
	{ParamNeutrophils, "Neutrophils", "/μL", "751-8"},
	{ParamLymphocytes, "Lymphocytes", "/μL", "731-0"},
	{ParamMonocytes, "Monocytes", "/μL", "742-7"},
	{ParamEosinophils, "Eosinophils", "/μL", "711-2"},
	{ParamBasophils, "Basophils", "/μL", "704-7"},
}

var parameterByLOINC = func() map[string]ParameterInfo {
	m := make(map[string]ParameterInfo, len(parameterCatalogue))
	for _, p := range parameterCatalogue {
		m[p.LOINCCode] = p
	}
	return m
}()

var parameterByKind = func() map[ParameterKind]ParameterInfo {
	m := make(map[ParameterKind]ParameterInfo, len(parameterCatalogue))
	for _, p := range parameterCatalogue {
		m[p.Kind] = p
	}
	return m
}()

// ParameterByLOINC looks up a parameter by its LOINC code.
// Returns ok=false for codes outside the catalogue.
func ParameterByLOINC(code string) (ParameterInfo, bool) {
	p, ok := parameterByLOINC[code]
	return p, ok
}

// ParameterByKind looks up catalogue info for a kind.
func ParameterByKind(kind ParameterKind) (ParameterInfo, bool) {
	p, ok := parameterByKind[kind]
	return p, ok
}

// DisplayName returns the catalogue display name, or the raw kind string
// for kinds outside the catalogue.
func (k ParameterKind) DisplayName() string {
	if p, ok := parameterByKind[k]; ok {
		return p.DisplayName
	}
	return string(k)
}

// Unit returns the catalogue unit for a kind, empty when unknown.
func (k ParameterKind) Unit() string {
	if p, ok := parameterByKind[k]; ok {
		return p.Unit
	}
	return ""
}
