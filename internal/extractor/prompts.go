package extractor

const systemPrompt = "You are a clinical data specialist. Respond with strict JSON only, no markdown."

const extractionPrompt = `Decide whether the attached document is a patient medical record, then extract the patient's data.

Return ONLY this JSON object:
{
  "is_medical_record": true or false,
  "document_type": "medical record" | "lab report" | "prescription" | "radiology report" | "other",
  "confidence": 0.0 to 1.0,
  "age": integer or null,
  "ethnicity": string,
  "gender": string,
  "conditions": [confirmed diagnoses only, not symptoms],
  "medications": [current medications],
  "bmi": number or 0,
  "blood_pressure": "systolic/diastolic" or "",
  "hba1c": number (percent) or 0
}

Use null, "" or 0 when a value is missing. Do not include names, addresses or identifiers.`

const matchingPrompt = `Evaluate whether the patient qualifies for each clinical trial using its inclusion and exclusion criteria.

PATIENT PROFILE:
%s

CLINICAL TRIALS:
%s

Return ONLY this JSON object:
{
  "matches": [
    {
      "trial_id": "string",
      "match_score": 0-100,
      "qualifying_factors": ["specific reasons the patient matches"],
      "disqualifying_factors": ["specific reasons the patient may not match"],
      "recommendation": "Excellent Match" | "Good Match" | "Possible Match" | "Poor Match" | "No Match"
    }
  ]
}

Scores: 90-100 meets all key criteria, 70-89 most, 50-69 some, 30-49 few, 0-29 fails key criteria.
Include every trial listed.`
