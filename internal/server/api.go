package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/sjawhar/ghost-interviewer/internal/handoff"
	"github.com/sjawhar/ghost-interviewer/internal/interview"
	"github.com/sjawhar/ghost-interviewer/internal/recovery"
	"github.com/sjawhar/ghost-interviewer/internal/storage"
)

const maxBodyBytes = 4 << 20

var (
	interviewIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
	validate           = validator.New()
)

type Store interface {
	CreateInterview(ctx context.Context, iv interview.Interview, roomPrefix string) (interview.Interview, error)
	GetInterview(ctx context.Context, id string) (interview.Interview, error)
	StartInterview(ctx context.Context, id string) (interview.Interview, error)
	GetReport(ctx context.Context, interviewID string) (interview.Report, error)
}

type createInterviewRequest struct {
	CandidateName  string   `json:"candidate_name" validate:"required"`
	CandidateEmail string   `json:"candidate_email" validate:"omitempty,email"`
	Role           string   `json:"role" validate:"required"`
	JobDescription string   `json:"job_description"`
	Skills         []string `json:"skills_to_cover" validate:"omitempty,dive,required"`
}

type interviewResponse struct {
	interview.Interview
	HasReport bool `json:"has_report"`
}

func registerAPIRoutes(mux *http.ServeMux, d Deps) {
	mux.HandleFunc("POST /api/interviews", func(w http.ResponseWriter, r *http.Request) {
		var req createInterviewRequest
		if !decodeAndValidate(w, r, &req) {
			return
		}

		iv := interview.Interview{
			CandidateName:  strings.TrimSpace(req.CandidateName),
			CandidateEmail: strings.TrimSpace(req.CandidateEmail),
			Role:           strings.TrimSpace(req.Role),
			JobDescription: req.JobDescription,
			Skills:         req.Skills,
		}
		if len(iv.Skills) == 0 && strings.TrimSpace(iv.JobDescription) != "" && d.Skills != nil {
			skills, err := d.Skills.ExtractSkills(r.Context(), iv.Role, iv.JobDescription)
			if err != nil {
				d.Logger.Warn("skill extraction failed, creating interview without skills",
					"event", "skills_extraction_failed",
					"error", err,
				)
			} else {
				iv.Skills = skills
			}
		}

		created, err := d.Store.CreateInterview(r.Context(), iv, d.RoomPrefix)
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("create interview: %v", err))
			return
		}
		d.Logger.Info("interview created",
			"interview_id", created.ID,
			"event", "interview_created",
			"room", created.RoomName,
			"skills", len(created.Skills),
		)
		writeJSON(w, http.StatusCreated, created)
	})

	mux.HandleFunc("GET /api/interviews/{id}", func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathInterviewID(w, r)
		if !ok {
			return
		}
		iv, err := d.Store.GetInterview(r.Context(), id)
		if err != nil {
			writeStoreError(w, "get interview", err)
			return
		}
		writeJSON(w, http.StatusOK, interviewResponse{Interview: iv, HasReport: iv.Status == interview.StatusEvaluated})
	})

	mux.HandleFunc("POST /api/interviews/{id}/start", func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathInterviewID(w, r)
		if !ok {
			return
		}
		iv, err := d.Store.StartInterview(r.Context(), id)
		if err != nil {
			writeStoreError(w, "start interview", err)
			return
		}
		d.Logger.Info("interview started", "interview_id", id, "event", "interview_started", "status", iv.Status)
		writeJSON(w, http.StatusOK, iv)
	})

	mux.HandleFunc("GET /api/interviews/{id}/report", func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathInterviewID(w, r)
		if !ok {
			return
		}
		report, err := d.Store.GetReport(r.Context(), id)
		if err != nil {
			writeStoreError(w, "get report", err)
			return
		}
		writeJSON(w, http.StatusOK, report)
	})
}

func registerWebhookRoutes(mux *http.ServeMux, d Deps) {
	if d.Commit != nil {
		mux.HandleFunc("POST "+handoff.CompletePath, func(w http.ResponseWriter, r *http.Request) {
			if !authorized(r, d.Secret) {
				writeJSONError(w, http.StatusUnauthorized, "invalid webhook secret")
				return
			}
			var req handoff.Request
			if !decodeAndValidate(w, r, &req) {
				return
			}
			if !interviewIDPattern.MatchString(req.InterviewID) {
				writeJSONError(w, http.StatusBadRequest, "invalid interview id")
				return
			}

			resp, err := d.Commit.Deliver(r.Context(), req.InterviewID, req.Transcript)
			if err != nil {
				writeStoreError(w, "commit transcript", err)
				return
			}
			writeJSON(w, http.StatusOK, resp)
		})
	}

	if d.Recovery != nil {
		mux.HandleFunc("POST /api/webhooks/livekit", func(w http.ResponseWriter, r *http.Request) {
			if !authorized(r, d.Secret) {
				writeJSONError(w, http.StatusUnauthorized, "invalid webhook secret")
				return
			}
			var ev recovery.RoomEvent
			if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&ev); err != nil {
				writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("invalid json: %v", err))
				return
			}

			// The sender does not retry, so processing failures are logged
			// by the sweep and still answered with 200.
			outcome, _ := d.Recovery.OnRoomEvent(r.Context(), ev)
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "outcome": string(outcome)})
		})
	}
}

func authorized(r *http.Request, secret string) bool {
	if secret == "" {
		return true
	}
	got := r.Header.Get(handoff.SecretHeader)
	return subtle.ConstantTimeCompare([]byte(got), []byte(secret)) == 1
}

func decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(dst); err != nil {
		writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("invalid json: %v", err))
		return false
	}
	if err := validate.Struct(dst); err != nil {
		writeJSONError(w, http.StatusBadRequest, validationMessage(err))
		return false
	}
	return true
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fmt.Sprintf("%s failed %s", strings.ToLower(fe.Field()), fe.Tag()))
	}
	return "validation failed: " + strings.Join(fields, ", ")
}

func pathInterviewID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := r.PathValue("id")
	if !interviewIDPattern.MatchString(id) {
		writeJSONError(w, http.StatusBadRequest, "invalid interview id")
		return "", false
	}
	return id, true
}

func writeStoreError(w http.ResponseWriter, op string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, storage.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, storage.ErrInvalidState):
		status = http.StatusConflict
	}
	writeJSONError(w, status, fmt.Sprintf("%s: %v", op, err))
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
