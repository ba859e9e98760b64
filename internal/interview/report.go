package interview

import (
	"fmt"
	"time"
)

// Eligibility is the closed hiring recommendation category.
type Eligibility string

const (
	StrongHire   Eligibility = "Strong Hire"
	Hire         Eligibility = "Hire"
	NoHire       Eligibility = "No Hire"
	StrongNoHire Eligibility = "Strong No Hire"
)

func (e Eligibility) Valid() bool {
	switch e {
	case StrongHire, Hire, NoHire, StrongNoHire:
		return true
	default:
		return false
	}
}

// Competencies scored on every interview.
var Competencies = []string{
	"communication",
	"problem_solving",
	"technical_depth",
	"cultural_fit",
	"leadership",
}

type SkillScore struct {
	Skill    string `json:"skill"`
	Score    int    `json:"score"`
	Evidence string `json:"evidence"`
}

type CompetencyScore struct {
	Score int    `json:"score"`
	Notes string `json:"notes"`
}

type ImprovementArea struct {
	Area         string   `json:"area"`
	CurrentLevel string   `json:"current_level"`
	WhyImportant string   `json:"why_important"`
	Resources    []string `json:"resources"`
	Timeline     string   `json:"timeline"`
}

// Report is the scored outcome of one interview. At most one exists per
// interview id.
type Report struct {
	ID                    string                     `json:"id"`
	InterviewID           string                     `json:"interview_id"`
	OverallScore          float64                    `json:"overall_score"`
	RoleEligibility       Eligibility                `json:"role_eligibility"`
	Recommendation        string                     `json:"recommendation"`
	SkillScores           []SkillScore               `json:"skill_scores"`
	CompetencyScores      map[string]CompetencyScore `json:"competency_scores"`
	Strengths             []string                   `json:"strengths"`
	Weaknesses            []string                   `json:"weaknesses"`
	AreasForImprovement   []ImprovementArea          `json:"areas_for_improvement"`
	RedFlags              []string                   `json:"red_flags"`
	GreenFlags            []string                   `json:"green_flags"`
	InterviewQualityNotes string                     `json:"interview_quality_notes"`
	GeneratedAt           time.Time                  `json:"generated_at"`
}

// Check enforces the invariants the schema cannot express on its own.
func (r Report) Check() error {
	if r.OverallScore < 1 || r.OverallScore > 10 {
		return fmt.Errorf("overall_score %.1f out of range [1,10]", r.OverallScore)
	}
	if !r.RoleEligibility.Valid() {
		return fmt.Errorf("unknown role_eligibility %q", r.RoleEligibility)
	}
	return nil
}
