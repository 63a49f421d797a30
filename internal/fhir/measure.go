package fhir

// Library and Measure templates mirror the resources the quality checker
// posts before evaluating a CQL artifact: a cohort-scored Measure whose
// initial population criteria is the CQL expression InInitialPopulation.

func libraryResource(urn, cqlBase64 string) map[string]any {
	return map[string]any{
		"resourceType": "Library",
		"status":       "active",
		"url":          urn,
		"type": map[string]any{
			"coding": []map[string]any{{
				"system": "http://terminology.hl7.org/CodeSystem/library-type",
				"code":   "logic-library",
			}},
		},
		"content": []map[string]any{{
			"contentType": "text/cql",
			"data":        cqlBase64,
		}},
	}
}

func measureResource(urn, libraryURN, subjectType string) map[string]any {
	return map[string]any{
		"resourceType": "Measure",
		"status":       "active",
		"url":          urn,
		"library":      []string{libraryURN},
		"subjectCodeableConcept": map[string]any{
			"coding": []map[string]any{{
				"system": "http://hl7.org/fhir/resource-types",
				"code":   subjectType,
			}},
		},
		"scoring": map[string]any{
			"coding": []map[string]any{{
				"system": "http://terminology.hl7.org/CodeSystem/measure-scoring",
				"code":   "cohort",
			}},
		},
		"group": []map[string]any{{
			"population": []map[string]any{{
				"code": map[string]any{
					"coding": []map[string]any{{
						"system": "http://terminology.hl7.org/CodeSystem/measure-population",
						"code":   "initial-population",
					}},
				},
				"criteria": map[string]any{
					"language":   "text/cql-identifier",
					"expression": "InInitialPopulation",
				},
			}},
		}},
	}
}
