package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/sjawhar/ghost-interviewer/internal/interview"
)

// Writer archives evaluated interviews as markdown files, one per
// interview, under dir.
type Writer struct {
	dir string
	mu  sync.Mutex
}

func NewWriter(dir string) *Writer {
	return &Writer{dir: dir}
}

func (w *Writer) Path(interviewID string) string {
	return filepath.Join(w.dir, interviewID+".md")
}

// Archive writes the interview and its report to Path(iv.ID), replacing any
// earlier copy.
func (w *Writer) Archive(_ context.Context, iv interview.Interview, report interview.Report) error {
	_, err := w.Write(iv, report)
	return err
}

func (w *Writer) Write(iv interview.Interview, report interview.Report) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return "", fmt.Errorf("mkdir %s: %w", w.dir, err)
	}

	path := w.Path(iv.ID)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(RenderMarkdown(iv, report)), 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return "", fmt.Errorf("rename %s: %w", path, err)
	}
	return path, nil
}

func RenderMarkdown(iv interview.Interview, report interview.Report) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Interview report: %s\n\n", iv.CandidateName)
	fmt.Fprintf(&b, "- Role: %s\n", iv.Role)
	fmt.Fprintf(&b, "- Overall score: %.1f / 10\n", report.OverallScore)
	fmt.Fprintf(&b, "- Eligibility: %s\n", report.RoleEligibility)
	if !report.GeneratedAt.IsZero() {
		fmt.Fprintf(&b, "- Generated: %s\n", report.GeneratedAt.UTC().Format("2006-01-02 15:04 MST"))
	}

	b.WriteString("\n## Recommendation\n\n")
	b.WriteString(strings.TrimSpace(report.Recommendation))
	b.WriteString("\n")

	if len(report.SkillScores) > 0 {
		b.WriteString("\n## Skills\n\n")
		for _, s := range report.SkillScores {
			fmt.Fprintf(&b, "- **%s** (%d/10): %s\n", s.Skill, s.Score, s.Evidence)
		}
	}

	if len(report.CompetencyScores) > 0 {
		b.WriteString("\n## Competencies\n\n")
		names := make([]string, 0, len(report.CompetencyScores))
		for name := range report.CompetencyScores {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			c := report.CompetencyScores[name]
			fmt.Fprintf(&b, "- **%s** (%d/10): %s\n", name, c.Score, c.Notes)
		}
	}

	writeList(&b, "Strengths", report.Strengths)
	writeList(&b, "Weaknesses", report.Weaknesses)
	writeList(&b, "Red flags", report.RedFlags)
	writeList(&b, "Green flags", report.GreenFlags)

	if len(report.AreasForImprovement) > 0 {
		b.WriteString("\n## Areas for improvement\n\n")
		for _, a := range report.AreasForImprovement {
			fmt.Fprintf(&b, "- **%s** (%s): %s\n", a.Area, a.CurrentLevel, a.WhyImportant)
		}
	}

	if notes := strings.TrimSpace(report.InterviewQualityNotes); notes != "" {
		b.WriteString("\n## Interview quality\n\n")
		b.WriteString(notes)
		b.WriteString("\n")
	}

	if iv.Transcript != "" {
		b.WriteString("\n## Transcript\n\n")
		b.WriteString(iv.Transcript)
		b.WriteString("\n")
	}

	return b.String()
}

func writeList(b *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "\n## %s\n\n", title)
	for _, item := range items {
		fmt.Fprintf(b, "- %s\n", item)
	}
}
