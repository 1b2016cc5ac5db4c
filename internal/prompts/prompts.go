// Package prompts builds the upstream message lists for every proxy endpoint.
// All builders are pure: the same request always yields the same messages.
package prompts

import (
	"strings"

	"healthproxy/internal/core"
)

// Model settings per endpoint.
const (
	DentalModel       = "gpt-4o"
	EyeTestModel      = "gpt-4o-mini"
	PrescriptionModel = "google/gemini-2.5-flash"
	ChatModel         = "google/gemini-2.5-flash"

	// AnalysisMaxTokens caps the dental and eye-test completions.
	AnalysisMaxTokens = 1000

	eyeTestImageDetail = "high"
)

const dentalSystemPrompt = `You are a dental health AI assistant. Analyze teeth images and provide detailed assessments including:
- Overall oral health status
- Visible cavities or decay (location and severity)
- Plaque or tartar buildup
- Gum health indicators
- Teeth alignment observations
- Recommendations for dental care
- Whether professional dental consultation is needed

Be thorough but compassionate. Format the response in clear sections.`

const dentalUserPrompt = "Please analyze this dental image and provide a comprehensive assessment of oral health, cavity detection, and recommendations."

// BuildDental returns the upstream request for a dental image.
func BuildDental(req core.DentalRequest) *core.ChatCompletionRequest {
	return &core.ChatCompletionRequest{
		Model: DentalModel,
		Messages: []core.Message{
			{Role: core.RoleSystem, Content: dentalSystemPrompt},
			{Role: core.RoleUser, Content: []core.ContentPart{
				core.TextPart(dentalUserPrompt),
				core.ImagePart(req.Image, ""),
			}},
		},
		MaxTokens: maxTokens(AnalysisMaxTokens),
	}
}

// TestType selects one of the eye-test prompt pairs.
type TestType string

const (
	TestTypeDistance    TestType = "distance"
	TestTypeNear        TestType = "near"
	TestTypeAstigmatism TestType = "astigmatism"
)

// EyeTestPrompt is a (system, user) prompt pair.
type EyeTestPrompt struct {
	System string
	User   string
}

var eyeTestPrompts = map[TestType]EyeTestPrompt{
	TestTypeDistance: {
		System: "You are an expert optometrist analyzing vision test results.",
		User: `Analyze this eye chart image captured during a vision test. The user is viewing this from a standard distance (around 3-6 feet).

Please provide:
1. Estimated visual acuity (e.g., 20/20, 20/40, etc.)
2. Which line the person can likely read clearly
3. Estimated refractive error in diopters (e.g., -2.00D for myopia, +1.50D for hyperopia)
4. Recommendations (glasses needed, eye exam suggested, etc.)
5. Confidence level in your assessment (low/medium/high)

Be specific but also note this is a preliminary assessment and recommend professional examination.`,
	},
	TestTypeNear: {
		System: "You are an expert optometrist analyzing near vision and reading ability.",
		User: `Analyze this near vision test image (reading card or text) captured at typical reading distance (14-16 inches).

Please provide:
1. Near vision acuity assessment
2. Reading capability evaluation
3. Estimated presbyopia degree if applicable
4. Recommendations for reading glasses if needed
5. Confidence level in assessment

Note this is preliminary and recommend professional eye examination.`,
	},
	TestTypeAstigmatism: {
		System: "You are an expert optometrist analyzing astigmatism tests.",
		User: `Analyze this astigmatism test chart (sunburst/clock dial pattern). The user should see lines of varying darkness if astigmatism is present.

Please provide:
1. Astigmatism detection (present/absent)
2. Estimated axis and degree if present
3. Severity assessment (mild/moderate/severe)
4. Impact on vision quality
5. Recommendations
6. Confidence level

Note limitations of self-testing and recommend professional examination.`,
	},
}

// eyeTestFallback is used for unrecognized test types.
var eyeTestFallback = EyeTestPrompt{
	System: "You are an expert optometrist reviewing a vision test image.",
	User:   "Analyze this eye test image and provide a general vision assessment with recommendations.",
}

// EyeTestPromptFor returns the prompt pair for testType and whether the type
// was recognized.
func EyeTestPromptFor(testType string) (EyeTestPrompt, bool) {
	p, ok := eyeTestPrompts[TestType(testType)]
	if !ok {
		return eyeTestFallback, false
	}
	return p, true
}

// BuildEyeTest returns the upstream request for an eye-test image.
func BuildEyeTest(req core.EyeTestRequest) *core.ChatCompletionRequest {
	p, _ := EyeTestPromptFor(req.TestType)
	return &core.ChatCompletionRequest{
		Model: EyeTestModel,
		Messages: []core.Message{
			{Role: core.RoleSystem, Content: p.System},
			{Role: core.RoleUser, Content: []core.ContentPart{
				core.TextPart(p.User),
				core.ImagePart(req.Image, eyeTestImageDetail),
			}},
		},
		MaxTokens: maxTokens(AnalysisMaxTokens),
	}
}

const prescriptionSystemPrompt = `You are a medical prescription reader assistant. Analyze handwritten prescriptions and provide:
1. **Extracted Text**: Convert handwritten prescription to readable text
2. **Medicines List**: List each medicine with:
   - Name
   - Dosage
   - Timing (morning/afternoon/night, before/after meals)
   - Duration
3. **Purpose**: Brief explanation of what each medicine is for
4. **Warnings**: Any important warnings or side effects
5. **Duplicate Check**: If existing medicines provided, warn about duplicates or potential interactions

Format your response clearly with sections. Be accurate but note this is informational only - always consult a doctor.`

const prescriptionUserPrompt = "Please analyze this prescription image and extract all medicine information."

// DuplicateCheckInstruction ends the existing-medicines suffix.
const DuplicateCheckInstruction = "Check for duplicates or interactions."

// PrescriptionSystemPrompt returns the system prompt, suffixed with the
// existing medicines only when there are any.
func PrescriptionSystemPrompt(existing []string) string {
	if len(existing) == 0 {
		return prescriptionSystemPrompt
	}
	return prescriptionSystemPrompt +
		"\n\nUser's existing medicines: " + strings.Join(existing, ", ") + ". " + DuplicateCheckInstruction
}

// BuildPrescription returns the upstream request for a prescription image.
func BuildPrescription(req core.PrescriptionRequest) *core.ChatCompletionRequest {
	return &core.ChatCompletionRequest{
		Model: PrescriptionModel,
		Messages: []core.Message{
			{Role: core.RoleSystem, Content: PrescriptionSystemPrompt(req.ExistingMedicines)},
			{Role: core.RoleUser, Content: []core.ContentPart{
				core.TextPart(prescriptionUserPrompt),
				core.ImagePart(req.ImageURL, ""),
			}},
		},
	}
}

// ChatPersona is the system message prepended to every chat conversation.
const ChatPersona = "You are MediBot, a compassionate AI health assistant. Provide helpful health advice, answer medical questions, and offer emotional support. Always remind users to consult healthcare professionals for serious concerns. Be empathetic, clear, and concise."

// BuildChat prepends the persona to the caller's history. The history is
// copied as-is and the result always requests a streamed response.
func BuildChat(req core.ChatRequest) *core.ChatCompletionRequest {
	messages := make([]core.Message, 0, len(req.Messages)+1)
	messages = append(messages, core.Message{Role: core.RoleSystem, Content: ChatPersona})
	messages = append(messages, req.Messages...)
	return &core.ChatCompletionRequest{
		Model:    ChatModel,
		Messages: messages,
		Stream:   true,
	}
}

func maxTokens(n int) *int {
	return &n
}
