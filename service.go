package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"
)

const healthMessage = "Hi, I'm healthy!"

// service translates HTTP requests into Store calls. It holds no state of
// its own beyond its collaborators.
type service struct {
	store  *Store
	logger TransactionLogger
}

// NewRouter wires the HTTP surface around store. Successful mutations are
// recorded in logger.
func NewRouter(store *Store, logger TransactionLogger) *mux.Router {
	if logger == nil {
		logger = nopTransactionLogger{}
	}
	s := &service{store: store, logger: logger}

	r := mux.NewRouter()
	r.Use(loggingMiddleware)
	r.MethodNotAllowedHandler = http.HandlerFunc(notAllowedHandler)

	r.HandleFunc("/health", healthHandler).Methods("GET")

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("", s.listHandler).Methods("GET")
	api.HandleFunc("/", s.listHandler).Methods("GET")
	api.HandleFunc("/{key}", s.getHandler).Methods("GET")
	api.HandleFunc("/{key}", s.putHandler).Methods("POST", "PUT")
	api.HandleFunc("/{key}", s.deleteHandler).Methods("DELETE")
	// Older clients send the value as a path segment.
	api.HandleFunc("/{key}/{value}", s.putHandler).Methods("POST")

	return r
}

func notAllowedHandler(w http.ResponseWriter, r *http.Request) {
	http.Error(w, "Not Allowed", http.StatusMethodNotAllowed)
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, healthMessage)
}

func (s *service) listHandler(w http.ResponseWriter, r *http.Request) {
	entries := s.store.List()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(entries); err != nil {
		Warnf("failed to encode entries: %v", err)
	}
}

func (s *service) getHandler(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]

	value, err := s.store.Get(key)
	if errors.Is(err, ErrorNoSuchKey) {
		http.Error(w, fmt.Sprintf("%s not found in db", key), http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusFound)
	fmt.Fprint(w, value)
}

// putHandler takes the value from the {value} path segment when present,
// otherwise from the request body.
func (s *service) putHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	key := vars["key"]

	value, ok := vars["value"]
	if !ok {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w,
				err.Error(),
				http.StatusInternalServerError)
			return
		}
		defer r.Body.Close()
		value = string(body)
	}

	result := s.store.Put(key, value)
	s.logger.WritePut(key, value)

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	switch result {
	case Created:
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, "Item Created")
	default:
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "Item Updated")
	}
}

func (s *service) deleteHandler(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]

	value, err := s.store.Delete(key)
	if errors.Is(err, ErrorNoSuchKey) {
		http.Error(w, fmt.Sprintf("%s not found in database", key), http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.logger.WriteDelete(key)

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "%s deleted successfully", value)
}

// statusRecorder remembers the status code written by the wrapped handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rec *statusRecorder) WriteHeader(code int) {
	rec.status = code
	rec.ResponseWriter.WriteHeader(code)
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		Infof("%s %s %d %s", r.Method, r.URL.Path, rec.status, time.Since(start))
	})
}
