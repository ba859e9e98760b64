package scoring

import (
	"fmt"
	"strings"

	"github.com/sjawhar/ghost-interviewer/internal/interview"
)

const evaluatorSystemPrompt = `You are a senior hiring manager evaluating a technical interview transcript.
Be fair and evidence based. Cite what the candidate actually said. Do not reward confident delivery that lacks substance.
Respond with a single JSON object and nothing else.`

func buildEvaluationPrompt(iv interview.Interview) string {
	transcript := iv.Transcript
	if len(strings.Fields(transcript)) > maxTranscriptWords {
		transcript = SampleTranscript(transcript, 5000, 2000, 5000)
	}

	skills := "(none listed)"
	if len(iv.Skills) > 0 {
		skills = strings.Join(iv.Skills, ", ")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Role: %s\n", iv.Role)
	fmt.Fprintf(&b, "Candidate: %s\n", iv.CandidateName)
	fmt.Fprintf(&b, "Skills to assess: %s\n\n", skills)
	if jd := strings.TrimSpace(iv.JobDescription); jd != "" {
		fmt.Fprintf(&b, "Job description:\n%s\n\n", jd)
	}
	fmt.Fprintf(&b, "Transcript:\n%s\n\n", transcript)
	b.WriteString(`Return JSON with these fields:
- "candidate_name": string
- "role_applied": string
- "overall_score": number from 1 to 10
- "role_eligibility": one of "Strong Hire", "Hire", "No Hire", "Strong No Hire"
- "recommendation": 2 to 3 sentences
- "skill_scores": array of {"skill", "score" (integer 1-10), "evidence"}, one per skill to assess
- "competency_scores": object keyed by `)
	b.WriteString(strings.Join(quoted(interview.Competencies), ", "))
	b.WriteString(`, each {"score" (integer 1-10), "notes"}
- "strengths": array of strings
- "weaknesses": array of strings
- "areas_for_improvement": array of {"area", "current_level" (Beginner, Intermediate or Advanced), "why_important", "resources" (array of strings), "timeline"}
- "red_flags": array of strings
- "green_flags": array of strings
- "interview_quality_notes": string, noting anything about the interview itself that limits the assessment`)
	return b.String()
}

func quoted(items []string) []string {
	out := make([]string, len(items))
	for i, s := range items {
		out[i] = fmt.Sprintf("%q", s)
	}
	return out
}
