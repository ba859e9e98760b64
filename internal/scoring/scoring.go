package scoring

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sjawhar/ghost-interviewer/internal/interview"
	"github.com/sjawhar/ghost-interviewer/internal/llm"
)

// Temperature used for scoring calls.
const Temperature = 0.3

// MaxTokens caps the report the model may write.
const MaxTokens = 4096

// Transcripts longer than this many words are sampled before scoring.
const maxTranscriptWords = 12000

type ClientFactory func(provider, model string) (llm.Client, error)

// Scorer turns a committed transcript into a report through an LLM.
type Scorer struct {
	model   string
	factory ClientFactory
	now     func() time.Time
}

func New(model string, factory ClientFactory) *Scorer {
	return &Scorer{model: model, factory: factory, now: time.Now}
}

func (s *Scorer) client() (llm.Client, error) {
	provider, model, err := llm.ParseModel(s.model)
	if err != nil {
		return nil, err
	}
	client, err := s.factory(provider, model)
	if err != nil {
		return nil, fmt.Errorf("create llm client: %w", err)
	}
	return client, nil
}

// Score produces a report for iv. The result has InterviewID and
// GeneratedAt set; the store assigns the report id.
func (s *Scorer) Score(ctx context.Context, iv interview.Interview) (interview.Report, error) {
	if !iv.HasTranscript() {
		return interview.Report{}, errors.New("interview has no transcript")
	}

	client, err := s.client()
	if err != nil {
		return interview.Report{}, err
	}

	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: evaluatorSystemPrompt},
		{Role: llm.RoleUser, Content: buildEvaluationPrompt(iv)},
	}
	out, err := client.Complete(ctx, messages)
	if err != nil {
		return interview.Report{}, fmt.Errorf("score interview %s: %w", iv.ID, err)
	}

	report, err := ParseReport(out)
	if err != nil {
		return interview.Report{}, err
	}
	report.InterviewID = iv.ID
	report.GeneratedAt = s.now().UTC()
	return report, nil
}

// ExtractSkills asks the model for the skills an interview for role should
// cover, given a job description.
func (s *Scorer) ExtractSkills(ctx context.Context, role, jobDescription string) ([]string, error) {
	if strings.TrimSpace(jobDescription) == "" {
		return nil, errors.New("job description is required")
	}

	client, err := s.client()
	if err != nil {
		return nil, err
	}

	prompt := fmt.Sprintf(`Extract the technical and professional skills a candidate for this role should be interviewed on.

Role: %s

Job description:
%s

Reply with ONLY a JSON array of 3 to 8 short skill names, for example ["Go", "Distributed systems", "Code review"].`, role, jobDescription)

	out, err := client.Complete(ctx, []llm.Message{{Role: llm.RoleUser, Content: prompt}})
	if err != nil {
		return nil, fmt.Errorf("extract skills: %w", err)
	}
	return parseSkills(out)
}

// SampleTranscript keeps the head, middle and tail of a long transcript.
func SampleTranscript(transcript string, firstN, midN, lastN int) string {
	words := strings.Fields(transcript)
	total := len(words)

	if total <= firstN+midN+lastN {
		return transcript
	}

	first := strings.Join(words[:firstN], " ")
	midStart := (total - midN) / 2
	mid := strings.Join(words[midStart:midStart+midN], " ")
	last := strings.Join(words[total-lastN:], " ")

	return first + "\n\n[...]\n\n" + mid + "\n\n[...]\n\n" + last
}
