package server

import "github.com/go-chi/chi/v5"

// registerRoutes registers all HTTP routes
func (s *Server) registerRoutes() {
	s.router.Get("/health", s.health)

	s.router.Route("/v1", func(r chi.Router) {
		r.Post("/validate", s.validate)
		r.Post("/validate/bulk", s.submitBulk)
		r.Post("/validate/bulk/csv", s.submitCSV)
		r.Post("/csv/headers", s.csvHeaders)

		r.Get("/jobs/{jobID}", s.jobStatus)
		r.Get("/jobs/{jobID}/results", s.jobResults)
		r.Get("/jobs/{jobID}/results/csv", s.jobResultsCSV)
	})

	// Admin dashboard endpoints
	s.router.Get("/api/stats", s.stats)
	s.router.Get("/api/jobs", s.jobs)
}
