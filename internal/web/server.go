// Package web provides a simple web UI for browsing and completing tasks.
package web

import (
	"embed"
	"html/template"
	"net/http"

	"github.com/metalagman/tm/internal/engine"
	"github.com/metalagman/tm/internal/task"
)

// Server provides the web UI handlers and state.
type Server struct {
	orc *engine.Orchestrator
}

// NewServer creates a new web server.
func NewServer(orc *engine.Orchestrator) (*Server, error) {
	return &Server{orc: orc}, nil
}

//go:embed templates/*.html
var templatesFS embed.FS

// Routes returns the router for the web UI.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /", s.handleIndex)
	mux.HandleFunc("POST /tasks/{id}/complete", s.handleComplete)
	return mux
}

type boardData struct {
	Groups []boardGroup
}

type boardGroup struct {
	Heading string
	Tasks   []task.Task
}

var boardOrder = []struct {
	status  task.Status
	heading string
}{
	{task.StatusInProgress, "In Progress"},
	{task.StatusPending, "Pending"},
	{task.StatusBlocked, "Blocked"},
	{task.StatusCompleted, "Completed"},
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	tmpl, err := template.ParseFS(templatesFS, "templates/index.html")
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	items, err := s.orc.List(r.Context(), task.Filter{})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	byStatus := make(map[task.Status][]task.Task)
	for _, t := range items {
		byStatus[t.Status] = append(byStatus[t.Status], t)
	}
	var data boardData
	for _, g := range boardOrder {
		if tasks := byStatus[g.status]; len(tasks) > 0 {
			data.Groups = append(data.Groups, boardGroup{Heading: g.heading, Tasks: tasks})
		}
	}

	if err := tmpl.Execute(w, data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.orc.Complete(r.Context(), id, engine.CompleteOptions{}); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}
