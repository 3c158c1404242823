package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/goevery/seatcast/internal/auth"
	"github.com/goevery/seatcast/internal/handler"
	"github.com/goevery/seatcast/internal/ierr"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

type RESTServer struct {
	logger        *zap.Logger
	authenticator *auth.Authenticator

	publishHandler       handler.PublishHandlerInterface
	bookingChangeHandler handler.BookingChangeHandlerInterface
	deleteCourseHandler  handler.DeleteCourseHandlerInterface
	historyHandler       handler.HistoryHandlerInterface
	statsHandler         handler.StatsHandlerInterface
}

func NewRESTServer(
	logger *zap.Logger,
	authenticator *auth.Authenticator,
	publishHandler handler.PublishHandlerInterface,
	bookingChangeHandler handler.BookingChangeHandlerInterface,
	deleteCourseHandler handler.DeleteCourseHandlerInterface,
	historyHandler handler.HistoryHandlerInterface,
	statsHandler handler.StatsHandlerInterface,
) *RESTServer {
	return &RESTServer{
		logger,
		authenticator,
		publishHandler,
		bookingChangeHandler,
		deleteCourseHandler,
		historyHandler,
		statsHandler,
	}
}

func (s *RESTServer) Register(router *mux.Router) {
	api := router.NewRoute().Subrouter()
	api.Use(s.cors, s.authenticate)

	api.HandleFunc("/publish", s.publish).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/courses/{courseId}/bookings", s.bookingChange).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/courses/{courseId}", s.deleteCourse).Methods(http.MethodDelete, http.MethodOptions)
	api.HandleFunc("/courses/{courseId}/notifications", s.history).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/stats", s.stats).Methods(http.MethodGet, http.MethodOptions)
}

func (s *RESTServer) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")

		if r.Method == http.MethodOptions {
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *RESTServer) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apiKey, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || apiKey == "" {
			s.writeError(w, ierr.New(ierr.ErrorCodeUnauthenticated, errors.New("missing api key")))
			return
		}

		authentication, err := s.authenticator.AuthenticateAPIKey(apiKey)
		if err != nil {
			s.writeError(w, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(auth.WithAuthentication(r.Context(), authentication)))
	})
}

func (s *RESTServer) publish(w http.ResponseWriter, r *http.Request) {
	var req handler.PublishRequest
	if !s.decode(w, r, &req) {
		return
	}

	response, err := s.publishHandler.Handle(r.Context(), req)
	s.respond(w, response, err)
}

func (s *RESTServer) bookingChange(w http.ResponseWriter, r *http.Request) {
	courseId, ok := s.courseId(w, r)
	if !ok {
		return
	}

	var req handler.BookingChangeRequest
	if !s.decode(w, r, &req) {
		return
	}
	req.CourseId = courseId

	response, err := s.bookingChangeHandler.Handle(r.Context(), req)
	s.respond(w, response, err)
}

func (s *RESTServer) deleteCourse(w http.ResponseWriter, r *http.Request) {
	courseId, ok := s.courseId(w, r)
	if !ok {
		return
	}

	response, err := s.deleteCourseHandler.Handle(r.Context(), handler.DeleteCourseRequest{CourseId: courseId})
	s.respond(w, response, err)
}

func (s *RESTServer) history(w http.ResponseWriter, r *http.Request) {
	courseId, ok := s.courseId(w, r)
	if !ok {
		return
	}

	req := handler.HistoryRequest{
		CourseId:   courseId,
		LastSeenId: r.URL.Query().Get("lastSeenId"),
	}

	response, err := s.historyHandler.Handle(r.Context(), req)
	s.respond(w, response, err)
}

func (s *RESTServer) stats(w http.ResponseWriter, r *http.Request) {
	response, err := s.statsHandler.Handle(r.Context())
	s.respond(w, response, err)
}

func (s *RESTServer) courseId(w http.ResponseWriter, r *http.Request) (int64, bool) {
	courseId, err := strconv.ParseInt(mux.Vars(r)["courseId"], 10, 64)
	if err != nil {
		s.writeError(w, ierr.New(ierr.ErrorCodeInvalidArgument, errors.New("invalid courseId")))
		return 0, false
	}

	return courseId, true
}

func (s *RESTServer) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	err := json.NewDecoder(r.Body).Decode(v)
	if err != nil {
		s.writeError(w, ierr.New(ierr.ErrorCodeInvalidArgument, errors.New("invalid request body")))
		return false
	}

	return true
}

func (s *RESTServer) respond(w http.ResponseWriter, response any, err error) {
	if err != nil {
		s.writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	err = json.NewEncoder(w).Encode(response)
	if err != nil {
		s.logger.Error("failed to encode response", zap.Error(err))
	}
}

func (s *RESTServer) writeError(w http.ResponseWriter, err error) {
	handlerErr := mapError(s.logger, err)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusOf(handlerErr.Code))

	encodeErr := json.NewEncoder(w).Encode(map[string]ierr.Error{"error": handlerErr})
	if encodeErr != nil {
		s.logger.Error("failed to encode error response", zap.Error(encodeErr))
	}
}

func statusOf(code ierr.ErrorCode) int {
	switch code {
	case ierr.ErrorCodeInvalidArgument:
		return http.StatusBadRequest
	case ierr.ErrorCodeNotFound:
		return http.StatusNotFound
	case ierr.ErrorCodeAlreadyExists, ierr.ErrorCodeAborted:
		return http.StatusConflict
	case ierr.ErrorCodeFailedPrecondition:
		return http.StatusPreconditionFailed
	case ierr.ErrorCodePermissionDenied:
		return http.StatusForbidden
	case ierr.ErrorCodeUnauthenticated:
		return http.StatusUnauthorized
	case ierr.ErrorCodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
