// Package progressserver exposes a REST + WebSocket control plane over
// galaxydl's long-running download/pack/extract operations, generalising
// the teacher's ad-hoc mux/websocket main.go and its
// install/update/repair task model to galaxydl's own task types.
package progressserver

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"galaxydl/internal/logging"
	"galaxydl/internal/models"
)

// TaskFunc does the actual work for one task, reporting fractional
// progress in [0,1] via report as it goes. A non-nil return is recorded
// as the task's failure.
type TaskFunc func(report func(progress float64)) error

type task struct {
	mu       sync.RWMutex
	id       string
	status   string // pending, running, completed, failed, cancelled
	progress float64
	err      error
	cancel   chan struct{}
}

func (t *task) snapshot() models.TaskStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()
	st := models.TaskStatus{TaskID: t.id, Status: t.status, Progress: &t.progress}
	if t.err != nil {
		msg := t.err.Error()
		st.Error = &msg
	}
	return st
}

func (t *task) setProgress(p float64) {
	t.mu.Lock()
	t.progress = p
	t.mu.Unlock()
}

func (t *task) finish(err error) {
	t.mu.Lock()
	if err != nil {
		t.status = "failed"
		t.err = err
	} else {
		t.status = "completed"
		t.progress = 1
	}
	t.mu.Unlock()
}

// Server is galaxydl's task registry plus HTTP/WS front end.
type Server struct {
	mu    sync.RWMutex
	tasks map[string]*task

	upgrader websocket.Upgrader

	wsMu   sync.Mutex
	wsConn map[*websocket.Conn]bool
}

// New builds a Server with an empty task table.
func New() *Server {
	return &Server{
		tasks:  make(map[string]*task),
		wsConn: make(map[*websocket.Conn]bool),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Router builds the mux.Router exposing the task API and the live
// progress WebSocket.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/api/tasks/{id}", s.handleGetTask).Methods(http.MethodGet)
	r.HandleFunc("/ws", s.handleWS)
	return r
}

// Submit registers fn as a new task and runs it in its own goroutine,
// broadcasting progress to every connected WebSocket client as it goes
// (mirrors the teacher's install/update/repair pipeline pattern, one
// goroutine per task rather than one per pipeline stage since galaxydl's
// pool already owns its own worker concurrency).
func (s *Server) Submit(fn TaskFunc) models.TaskResponse {
	t := &task{id: uuid.NewString(), status: "pending", cancel: make(chan struct{})}

	s.mu.Lock()
	s.tasks[t.id] = t
	s.mu.Unlock()

	go func() {
		t.mu.Lock()
		t.status = "running"
		t.mu.Unlock()
		s.broadcast(t.snapshot())

		err := fn(func(p float64) {
			t.setProgress(p)
			s.broadcast(t.snapshot())
		})

		t.finish(err)
		s.broadcast(t.snapshot())
		if err != nil {
			logging.GlobalLogger.Error("task failed", logging.Fields{"task_id": t.id, "error": err.Error()})
		}
	}()

	return models.TaskResponse{TaskID: t.id, Status: "pending", Message: "task accepted"}
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	s.mu.RLock()
	t, ok := s.tasks[id]
	s.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(models.TaskStatus{TaskID: id, Status: "not_found"})
		return
	}
	json.NewEncoder(w).Encode(t.snapshot())
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.GlobalLogger.Warn("websocket upgrade failed", logging.Fields{"error": err.Error()})
		return
	}

	s.wsMu.Lock()
	s.wsConn[conn] = true
	s.wsMu.Unlock()

	defer func() {
		s.wsMu.Lock()
		delete(s.wsConn, conn)
		s.wsMu.Unlock()
		conn.Close()
	}()

	// Drain the read side so ping/close control frames are handled; this
	// connection is write-only from the server's perspective otherwise.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Server) broadcast(st models.TaskStatus) {
	data, err := json.Marshal(st)
	if err != nil {
		return
	}

	s.wsMu.Lock()
	defer s.wsMu.Unlock()
	for conn := range s.wsConn {
		conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			conn.Close()
			delete(s.wsConn, conn)
		}
	}
}

// ListenAndServe starts the HTTP server on addr (e.g. ":8080").
func (s *Server) ListenAndServe(addr string) error {
	logging.GlobalLogger.Info("progress server starting", logging.Fields{"addr": addr})
	return http.ListenAndServe(addr, s.Router())
}
