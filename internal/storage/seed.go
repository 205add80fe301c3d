package storage

import (
	"context"
	"errors"

	"github.com/Dropicx/docworker/internal/domain"
)

// defaultSteps is the built-in universal step sequence. Operators can
// disable or reorder steps afterwards; seeding never overwrites existing
// configuration.
var defaultSteps = []StepConfig{
	{Name: domain.StepTextExtraction, DisplayName: "Text Extraction", Description: "Read the document text with the OCR engine", ExecOrder: 10, Enabled: true},
	{Name: domain.StepMedicalValidation, DisplayName: "Medical Validation", Description: "Verify the document is a medical document", ExecOrder: 20, Enabled: true},
	{Name: domain.StepClassification, DisplayName: "Classification", Description: "Determine the medical document category", ExecOrder: 30, Enabled: true},
	{Name: domain.StepPreprocessing, DisplayName: "Preprocessing", Description: "Normalize abbreviations and clean up OCR noise", ExecOrder: 40, Enabled: true},
	{Name: domain.StepTranslation, DisplayName: "Translation", Description: "Translate medical language into patient-readable text", ExecOrder: 50, Enabled: true},
	{Name: domain.StepFactCheck, DisplayName: "Fact Check", Description: "Check the translation against the source for contradictions", ExecOrder: 60, Enabled: true},
	{Name: domain.StepFinalCheck, DisplayName: "Final Check", Description: "Review completeness and tone of the patient text", ExecOrder: 70, Enabled: true},
	{Name: domain.StepFormatting, DisplayName: "Formatting", Description: "Format the result for presentation", ExecOrder: 80, Enabled: true},
}

// defaultPrompts holds the built-in universal prompt templates, one per
// step, so a fresh database can run the full pipeline immediately.
var defaultPrompts = map[domain.StepName]string{
	domain.StepTextExtraction: `Transcribe the document text exactly as extracted. Fix obvious OCR character confusions (0/O, 1/l, rn/m) only when the correction is unambiguous. Do not summarize, reorder, or omit anything.`,

	domain.StepMedicalValidation: `You are reviewing text extracted from a scanned document. Decide whether it is a medical document (lab report, doctor letter, discharge summary, prescription, radiology report, or similar clinical paperwork).

Answer with exactly one word on the first line: MEDICAL or NOT_MEDICAL.
If NOT_MEDICAL, add one short sentence explaining what the document appears to be instead.`,

	domain.StepClassification: `Classify the following medical document into exactly one category:

- lab_report: laboratory values, reference ranges, specimen details
- doctor_letter: correspondence between physicians or to the patient
- discharge_summary: hospital stay summary with diagnoses and course
- prescription: medication orders with dosage instructions
- radiology_report: imaging findings and impressions
- other: medical content that fits none of the above

Answer with the category identifier only.`,

	domain.StepPreprocessing: `Prepare the following medical text for translation. Expand medical abbreviations into their full terms, normalize units, and remove OCR artifacts such as broken words and stray characters. Keep every medical fact unchanged. Output the cleaned text only.`,

	domain.StepTranslation: `Rewrite the following medical text so a patient without medical training understands it. Explain technical terms in parentheses the first time they appear. Keep all values, dosages, and findings exactly as stated. Do not add reassurance, interpretation, or advice that is not in the source.`,

	domain.StepFactCheck: `Compare the patient-readable text against the original medical text. Verify that every value, medication, dosage, diagnosis, and finding matches the source and nothing was invented or dropped.

If everything matches, answer CONSISTENT on the first line, followed by the patient-readable text unchanged.
If you find a contradiction that cannot be reconciled from the source, answer INCONSISTENT on the first line, followed by one line per discrepancy.`,

	domain.StepFinalCheck: `Review the patient-readable text a final time. Confirm it is complete, neutral in tone, and free of medical jargon without explanation. Apply only minimal wording fixes. Output the final text.`,

	domain.StepFormatting: `Format the patient-readable text for presentation. Add a short title, group related content under headings, and render lists as bullet points. Use Markdown. Do not change the wording of the content.`,
}

// Seed installs the default step configuration and universal prompt
// templates into an empty database. Existing rows are left untouched.
func Seed(ctx context.Context, repos *Repositories) error {
	existing, err := repos.StepConfigs.ListByScope(ctx, "")
	if err != nil {
		return err
	}
	if len(existing) == 0 {
		for i := range defaultSteps {
			step := defaultSteps[i]
			if err := repos.StepConfigs.Upsert(ctx, &step); err != nil {
				return err
			}
		}
	}

	for step, body := range defaultPrompts {
		_, err := repos.Prompts.Active(ctx, step, "")
		if err == nil {
			continue
		}
		if !errors.Is(err, ErrNotFound) {
			return err
		}
		if _, err := repos.Prompts.Publish(ctx, step, "", body, "seed"); err != nil {
			return err
		}
	}

	return nil
}
