package gdrive

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"github.com/sjawhar/ghost-interviewer/internal/interview"
)

const docMimeType = "application/vnd.google-apps.document"

// RenderFunc turns an evaluated interview into the markdown body uploaded
// to Drive.
type RenderFunc func(iv interview.Interview, report interview.Report) string

// Exporter uploads each report as a Google Doc in one folder. Re-exporting
// an interview updates its existing document.
type Exporter struct {
	service  *drive.Service
	folderID string
	render   RenderFunc
	fileIDs  map[string]string
	mu       sync.Mutex
}

func NewExporter(ctx context.Context, credPath, folderID string, render RenderFunc) (*Exporter, error) {
	creds, err := os.ReadFile(credPath)
	if err != nil {
		return nil, fmt.Errorf("read credentials: %w", err)
	}

	config, err := google.CredentialsFromJSONWithTypeAndParams(ctx, creds, google.ServiceAccount, google.CredentialsParams{Scopes: []string{drive.DriveFileScope}})
	if err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}

	return newExporter(ctx, folderID, render, option.WithCredentials(config))
}

func newExporter(ctx context.Context, folderID string, render RenderFunc, opts ...option.ClientOption) (*Exporter, error) {
	if strings.TrimSpace(folderID) == "" {
		return nil, fmt.Errorf("drive folder id is required")
	}
	svc, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create drive service: %w", err)
	}

	return &Exporter{
		service:  svc,
		folderID: folderID,
		render:   render,
		fileIDs:  make(map[string]string),
	}, nil
}

func DocName(iv interview.Interview) string {
	return fmt.Sprintf("Interview report - %s - %s (%s)", iv.CandidateName, iv.Role, iv.ID)
}

// Archive satisfies evaluation.Archiver.
func (e *Exporter) Archive(ctx context.Context, iv interview.Interview, report interview.Report) error {
	_, err := e.Export(ctx, iv, report)
	return err
}

// Export uploads the rendered report and returns the Drive file id.
func (e *Exporter) Export(ctx context.Context, iv interview.Interview, report interview.Report) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	body := strings.NewReader(e.render(iv, report))

	if fileID, ok := e.fileIDs[iv.ID]; ok {
		_, err := e.service.Files.Update(fileID, &drive.File{}).Media(body).Context(ctx).Do()
		if err != nil {
			return "", fmt.Errorf("drive update: %w", err)
		}
		return fileID, nil
	}

	doc, err := e.service.Files.Create(&drive.File{
		Name:     DocName(iv),
		MimeType: docMimeType,
		Parents:  []string{e.folderID},
	}).Media(body).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("drive create: %w", err)
	}

	e.fileIDs[iv.ID] = doc.Id
	return doc.Id, nil
}
