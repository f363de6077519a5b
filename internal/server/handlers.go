package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/fachebot/meeting-summarizer/internal/errs"
	"github.com/fachebot/meeting-summarizer/internal/logger"
	"github.com/fachebot/meeting-summarizer/internal/notify"
	chimw "github.com/go-chi/chi/v5/middleware"
)

const maxBodyBytes = 1_048_576

type envelope map[string]any

type summarizeRequest struct {
	Transcript  string `json:"transcript"`
	Instruction string `json:"instruction"`
}

type sendEmailRequest struct {
	Recipients string `json:"recipients"`
	Subject    string `json:"subject"`
	Body       string `json:"body"`
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	_ = s.writeJSON(w, http.StatusOK, envelope{"status": "ok"})
}

func (s *Server) summarize(w http.ResponseWriter, r *http.Request) {
	var req summarizeRequest
	if err := s.readJSON(w, r, &req); err != nil {
		s.failure(w, r, err)
		return
	}
	if utf8.RuneCountInString(req.Transcript) < 10 {
		s.failure(w, r, errs.Validation("Transcript is too short"))
		return
	}

	summary, err := s.summarizer.Summarize(r.Context(), req.Transcript, req.Instruction)
	if err != nil {
		s.failure(w, r, err)
		return
	}
	_ = s.writeJSON(w, http.StatusOK, envelope{"summary": summary})
}

func (s *Server) sendEmail(w http.ResponseWriter, r *http.Request) {
	var req sendEmailRequest
	if err := s.readJSON(w, r, &req); err != nil {
		s.failure(w, r, err)
		return
	}
	if utf8.RuneCountInString(req.Recipients) < 3 {
		s.failure(w, r, errs.Validation("Recipients are required"))
		return
	}
	if req.Body == "" {
		s.failure(w, r, errs.Validation("Body is required"))
		return
	}

	recipients := notify.ParseRecipients(req.Recipients)
	if len(recipients) == 0 {
		s.failure(w, r, errs.Validation("No valid recipient addresses"))
		return
	}

	if _, err := s.notifier.Dispatch(r.Context(), recipients, req.Subject, req.Body); err != nil {
		s.failure(w, r, err)
		return
	}
	_ = s.writeJSON(w, http.StatusOK, envelope{"ok": true})
}

// failure 所有失败统一返回 400 和 {"error": message}，提示信息只写日志
func (s *Server) failure(w http.ResponseWriter, r *http.Request, err error) {
	hints := errs.GetAllHints(err)
	logger.Warnf("[Server] 请求失败, method: %s, uri: %s, request_id: %s, kind: %s, %v, hints: %s",
		r.Method, r.URL.RequestURI(), chimw.GetReqID(r.Context()), errs.Kind(err), err, strings.Join(hints, "; "))
	s.errorResponse(w, r, http.StatusBadRequest, err.Error())
}

func (s *Server) errorResponse(w http.ResponseWriter, r *http.Request, status int, message string) {
	if err := s.writeJSON(w, status, envelope{"error": message}); err != nil {
		logger.Errorf("[Server] 写入响应失败, method: %s, uri: %s, %v", r.Method, r.URL.RequestURI(), err)
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}

// readJSON 解析请求体，未知字段会被忽略
func (s *Server) readJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	dec := json.NewDecoder(r.Body)
	err := dec.Decode(dst)
	if err != nil {
		var syntaxError *json.SyntaxError
		var unmarshalTypeError *json.UnmarshalTypeError
		var maxBytesError *http.MaxBytesError

		switch {
		case errors.As(err, &syntaxError):
			return errs.Validation("body contains badly-formed JSON (at character %d)", syntaxError.Offset)
		case errors.Is(err, io.ErrUnexpectedEOF):
			return errs.Validation("body contains badly-formed JSON")
		case errors.As(err, &unmarshalTypeError):
			if unmarshalTypeError.Field != "" {
				return errs.Validation("body contains incorrect JSON type for field %q", unmarshalTypeError.Field)
			}
			return errs.Validation("body contains incorrect JSON type (at character %d)", unmarshalTypeError.Offset)
		case errors.Is(err, io.EOF):
			return errs.Validation("body must not be empty")
		case errors.As(err, &maxBytesError):
			return errs.Validation("body must not be larger than %d bytes", maxBytesError.Limit)
		default:
			return errs.Validation("%v", err)
		}
	}

	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errs.Validation("body must only contain a single JSON value")
	}
	return nil
}
