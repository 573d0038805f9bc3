package nlrule

import "rulecompiler/internal/metadata"

func admissionTemplate() *metadata.Template {
	return &metadata.Template{
		ID:   "inpatient-admission",
		Name: "Inpatient Admission",
		Sections: []metadata.Section{
			{
				Name: "Stay",
				Fields: []metadata.Field{
					{ID: "expectedAdmissionDatetime", Label: "Expected Admission Datetime", Type: "datetime"},
					{ID: "expectedDischargeDatetime", Label: "Expected Discharge Datetime", Type: "datetime"},
					{ID: "numberOfDays", Label: "Number of Days", Type: "number"},
					{ID: "admissionType", Label: "Admission Type", Type: "select"},
				},
			},
			{
				Name: "Review",
				Fields: []metadata.Field{
					{ID: "providerName", Label: "Provider Name"},
					{ID: "patientAge", DisplayName: "Patient Age", Label: "age", Type: "number"},
					{ID: "caseStatus", Label: "Status"},
					{ID: "priorityLevel", Label: "Priority"},
				},
			},
		},
	}
}

func metadataField(id, label string) metadata.Field {
	return metadata.Field{ID: id, Label: label}
}
