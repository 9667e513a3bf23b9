package web

import (
	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/rollcall/internal/web/handlers"
)

func (s *Server) setupRoutes() {
	attendanceHandler := handlers.NewAttendanceHandler(s.controller)
	historyHandler := handlers.NewHistoryHandler(s.history)

	s.router.Get("/api/v1/health", handlers.HealthCheck)

	s.router.Route("/api/v1", func(r chi.Router) {
		// Roll call
		r.Post("/roster", attendanceHandler.LoadRoster)
		r.Post("/references", attendanceHandler.LoadReferences)
		r.Post("/image", attendanceHandler.ProcessImage)

		// Attendance
		r.Get("/attendance", attendanceHandler.Get)
		r.Post("/attendance/update", attendanceHandler.Update)
		r.Post("/attendance/save", attendanceHandler.Save)
		r.Put("/attendance/{id}", attendanceHandler.SetStatus)

		// History of saved rolls
		r.Get("/history", historyHandler.List)
		r.Get("/history/{id}", historyHandler.Get)
	})
}
