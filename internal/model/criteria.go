package model

// Each module is graded on four fixed criteria. The grading service returns
// generic criterion1..criterion4 keys; this table maps them to the
// human-readable names shown in results, declared once so the modules
// cannot drift apart.
var criterionNames = map[Module][4]string{
	ModuleListening: {"Main Ideas", "Specific Details", "Inference & Logic", "Vocabulary"},
	ModuleReading:   {"Main Ideas", "Specific Details", "Inference & Logic", "Vocabulary"},
	ModuleWriting:   {"Task Achievement", "Coherence & Cohesion", "Lexical Resource", "Grammatical Range"},
	ModuleSpeaking:  {"Fluency & Coherence", "Lexical Resource", "Grammatical Range", "Pronunciation"},
}

// CriterionNames returns the four display names for a module's grading
// criteria, in presentation order.
func CriterionNames(m Module) [4]string {
	return criterionNames[m]
}
