// Package prompts builds the module-specific prompts sent to the content &
// grading providers. The structured-output instructions are shared so both
// providers parse the same JSON envelope.
package prompts

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ShahHtetNaing/GATE-IELTS/internal/model"
)

// WriterSystem frames content generation.
const WriterSystem = "You are an expert IELTS Academic test writer. You produce realistic, challenging exam material and respond only with JSON."

// ExaminerSystem frames every grading call.
const ExaminerSystem = "You are a strict IELTS Academic examiner. Be critical but constructive."

// feedbackFormat is the JSON envelope every grading prompt demands. The
// generic criterion keys are remapped to display names after parsing.
const feedbackFormat = `Respond ONLY with a JSON object:
{"bandScore": <number 0 to 9>, "criteria": {"criterion1": {"score": <0-9>, "feedback": "<text>"}, "criterion2": {...}, "criterion3": {...}, "criterion4": {...}}, "generalFeedback": "<text>", "improvementPlan": ["<step>", ...]}`

const contentFormat = `Return ONLY a JSON object with 'passageText' (string) and 'questions': an array of {"id": <int>, "text": "<question>", "type": "multiple-choice"|"true-false-not-given"|"fill-gap", "options": ["..."] (multiple-choice only), "correctAnswer": "<answer>", "questionTag": "<skill tested, e.g. 'Gist', 'Detail', 'Inference'>"}.`

// Reading builds the reading-test generation prompt.
func Reading() string {
	var sb strings.Builder
	sb.WriteString("Generate a challenging Academic IELTS Reading passage (approx 600 words) about a topic in science, history, or sociology.\n")
	sb.WriteString("Follow it with 5 questions. Mix Multiple Choice, True/False/Not Given and gap-fill.\n")
	sb.WriteString("For true-false-not-given questions the correctAnswer must be exactly 'True', 'False' or 'Not Given'.\n")
	sb.WriteString(contentFormat)
	return sb.String()
}

// Listening builds the listening-script generation prompt. The passage is
// the audio transcript; it is synthesized to speech afterwards and never
// shown to the user.
func Listening() string {
	var sb strings.Builder
	sb.WriteString("Generate a script for an IELTS Listening Section 3 (academic discussion between two students and a tutor).\n")
	sb.WriteString("Approx 400 words. Follow it with 5 questions based on the script.\n")
	sb.WriteString("For true-false-not-given questions the correctAnswer must be exactly 'True', 'False' or 'Not Given'.\n")
	sb.WriteString(contentFormat)
	return sb.String()
}

// Writing builds the writing-prompt generation prompt.
func Writing() string {
	return "Generate one IELTS Academic Writing Task 1 prompt (describe a graph or chart - provide the text description of the data) and one Task 2 prompt (essay question).\n" +
		`Return ONLY JSON: {"task1": "...", "task2": "..."}`
}

// Speaking builds the speaking-prompt generation prompt.
func Speaking() string {
	var sb strings.Builder
	sb.WriteString("Generate IELTS Speaking prompts.\n")
	sb.WriteString("Part 1: 3 introductory questions.\n")
	sb.WriteString("Part 2: a cue card topic.\n")
	sb.WriteString("Part 3: 3 abstract discussion questions related to Part 2.\n")
	sb.WriteString(`Return ONLY JSON: {"part1": ["..."], "part2": "...", "part3": ["..."]}`)
	return sb.String()
}

type questionOutcome struct {
	Tag           string `json:"tag"`
	IsCorrect     bool   `json:"isCorrect"`
	UserAnswer    string `json:"userAnswer"`
	CorrectAnswer string `json:"correctAnswer"`
}

// GradeObjective builds the qualitative-analysis prompt for a finished
// Reading or Listening session. The raw score travels as a loose banding
// hint only; the band itself is the examiner's to produce.
func GradeObjective(module model.Module, questions []model.Question, answers map[int]string, rawScore int) string {
	summary := make([]questionOutcome, 0, len(questions))
	for _, q := range questions {
		a := answers[q.ID]
		summary = append(summary, questionOutcome{
			Tag:           q.Tag,
			IsCorrect:     model.NormalizeAnswer(a) == model.NormalizeAnswer(q.CorrectAnswer),
			UserAnswer:    a,
			CorrectAnswer: q.CorrectAnswer,
		})
	}
	breakdown, _ := json.Marshal(summary)

	var sb strings.Builder
	fmt.Fprintf(&sb, "Analyze this IELTS %s test performance.\n", module)
	fmt.Fprintf(&sb, "Total Score: %d/%d.\n\n", rawScore, len(questions))
	sb.WriteString("Question breakdown:\n")
	sb.Write(breakdown)
	sb.WriteString("\n\nProvide a detailed qualitative report.\n")
	sb.WriteString("Map feedback to these 4 pseudo-criteria for detailed analytics:\n")
	writeCriteria(&sb, module)
	fmt.Fprintf(&sb, "Provide an estimated Band Score based on %d/%d (scale approx: 5/5=9, 4/5=8, 3/5=6.5, etc - adapt for difficulty).\n", rawScore, len(questions))
	sb.WriteString("Provide an improvement plan.\n")
	sb.WriteString(feedbackFormat)
	return sb.String()
}

// GradeWriting builds the two-task writing evaluation prompt.
func GradeWriting(answers model.WritingAnswers, prompt model.WritingPrompt) string {
	var sb strings.Builder
	sb.WriteString("Evaluate these two IELTS Academic writing tasks.\n\n")
	sb.WriteString("PROMPT 1: " + prompt.Task1 + "\n")
	sb.WriteString("RESPONSE 1: " + answers.Task1 + "\n\n")
	sb.WriteString("PROMPT 2: " + prompt.Task2 + "\n")
	sb.WriteString("RESPONSE 2: " + answers.Task2 + "\n\n")
	sb.WriteString("Provide a holistic academic band score and a detailed breakdown for:\n")
	writeCriteria(&sb, model.ModuleWriting)
	sb.WriteString("Also provide specific improvement steps.\n")
	sb.WriteString(feedbackFormat)
	return sb.String()
}

// GradeSpeaking builds the text part of the multimodal speaking evaluation;
// the recording itself is attached alongside it.
func GradeSpeaking(p model.SpeakingPrompts) string {
	shown, _ := json.Marshal(p)

	var sb strings.Builder
	sb.WriteString("This is a recording of an IELTS Speaking test simulation.\n")
	sb.WriteString("The user was asked: ")
	sb.Write(shown)
	sb.WriteString("\nEvaluate the student's performance strictly on Academic IELTS criteria:\n")
	writeCriteria(&sb, model.ModuleSpeaking)
	sb.WriteString("Provide a score (0-9) and detailed feedback for EACH criterion.\n")
	sb.WriteString("Provide an overall Band Score and a step-by-step improvement plan.\n")
	sb.WriteString(feedbackFormat)
	return sb.String()
}

// GradeSpeakingTranscript is the transcription fallback for providers that
// cannot grade audio directly.
func GradeSpeakingTranscript(p model.SpeakingPrompts, transcript string) string {
	var sb strings.Builder
	sb.WriteString(GradeSpeaking(p))
	sb.WriteString("\n\nThe recording was transcribed as follows (pronunciation must be judged conservatively from the transcript alone):\n")
	sb.WriteString("TRANSCRIPT: " + transcript + "\n")
	return sb.String()
}

func writeCriteria(sb *strings.Builder, module model.Module) {
	for i, name := range model.CriterionNames(module) {
		fmt.Fprintf(sb, "%d. %s\n", i+1, name)
	}
}
