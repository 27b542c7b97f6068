package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tide-labs/tide/internal/domain"
)

// ─── Task Lifecycle (/api/tasks) ─────────────────────────────────────────────

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	tasks := s.tasks.List()
	if tasks == nil {
		tasks = []domain.TaskInfo{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"tasks": tasks})
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var spec domain.TaskSpec
	if err := json.NewDecoder(r.Body).Decode(&spec); err != nil {
		writeError(w, http.StatusBadRequest, "decode task spec: "+err.Error())
		return
	}

	info, err := s.tasks.Create(spec)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, info)
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	info, err := s.tasks.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleStartTask(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, s.tasks.Start)
}

func (s *Server) handleStopTask(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, s.tasks.Stop)
}

func (s *Server) handleRemoveTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.tasks.Remove(id); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// transition runs op and answers with the task's state afterwards.
func (s *Server) transition(w http.ResponseWriter, r *http.Request, op func(string) error) {
	id := chi.URLParam(r, "id")
	if err := op(id); err != nil {
		writeDomainError(w, err)
		return
	}
	info, err := s.tasks.Get(id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}
