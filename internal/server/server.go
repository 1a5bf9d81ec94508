// Package server wires the dependency chain and defines every route.
// It is the composition root: main.go only loads config and calls New.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/subitlab-buf/sms4-backend/internal/auth"
	"github.com/subitlab-buf/sms4-backend/internal/config"
	"github.com/subitlab-buf/sms4-backend/internal/handler"
	"github.com/subitlab-buf/sms4-backend/internal/mailer"
	"github.com/subitlab-buf/sms4-backend/internal/middleware"
	sqliteRepo "github.com/subitlab-buf/sms4-backend/internal/repository/sqlite"
	"github.com/subitlab-buf/sms4-backend/internal/service"
)

// Server owns the router and the database connection; the connection
// is closed on shutdown to flush the WAL.
type Server struct {
	router *chi.Mux
	cfg    *config.Config
	logger *slog.Logger
	db     *sqliteRepo.DB
}

func New(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	db, err := sqliteRepo.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Server{
		router: chi.NewRouter(),
		cfg:    cfg,
		logger: logger,
		db:     db,
	}
	if err := s.setupRoutes(); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting up routes: %w", err)
	}
	return s, nil
}

func (s *Server) setupRoutes() error {
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.Logger(s.logger))

	tokens, err := auth.NewTokenService(s.cfg.TokenSecret)
	if err != nil {
		return err
	}
	passwords := auth.NewPasswordService()
	guard := auth.NewGuard(s.db, tokens)
	mail := mailer.NewSMTP(s.cfg.SMTP)

	accountService := service.NewAccountService(s.db, passwords, tokens, guard, mail, s.logger)
	resourceService := service.NewResourceService(s.db, guard, s.cfg.ResourcePath, s.logger)
	postService := service.NewPostService(s.db, resourceService, guard, s.logger)
	notificationService := service.NewNotificationService(s.db, guard, s.logger)

	accounts := handler.NewAccountHandler(accountService, s.logger)
	posts := handler.NewPostHandler(postService, s.logger)
	resources := handler.NewResourceHandler(resourceService, s.logger)
	notifications := handler.NewNotificationHandler(notificationService, s.logger)

	requireAuth := auth.RequireAuth()

	s.router.Route("/account", func(r chi.Router) {
		r.Post("/send-captcha", accounts.HandleSendCaptcha)
		r.Put("/register", accounts.HandleRegister)
		r.Post("/login", accounts.HandleLogin)
		r.Post("/send-reset-password-captcha", accounts.HandleSendResetPasswordCaptcha)
		r.Patch("/reset-password", accounts.HandleResetPassword)

		r.Group(func(r chi.Router) {
			r.Use(requireAuth)
			r.Post("/logout", accounts.HandleLogout)
			r.Patch("/modify", accounts.HandleModify)
			r.Patch("/set-permissions", accounts.HandleSetPermissions)
			r.Get("/get/{id}", accounts.HandleGet)
			r.Post("/bulk-get", accounts.HandleBulkGet)
		})
	})

	s.router.Route("/post", func(r chi.Router) {
		r.Use(requireAuth)
		r.Put("/new", posts.HandleNew)
		r.Patch("/modify/{id}", posts.HandleModify)
		r.Patch("/review/{id}", posts.HandleReview)
		r.Delete("/delete/{id}", posts.HandleDelete)
		r.Delete("/bulk-delete", posts.HandleBulkDelete)
		r.Post("/bulk-remove-unused", posts.HandleBulkRemoveUnused)
		r.Get("/filter", posts.HandleFilter)
		r.Get("/get/{id}", posts.HandleGet)
		r.Post("/bulk-get", posts.HandleBulkGet)
	})

	s.router.Route("/resource", func(r chi.Router) {
		r.Use(requireAuth)
		r.Post("/new-session", resources.HandleNewSession)
		r.Post("/upload/{session}", resources.HandleUpload)
		r.Get("/payload/{id}", resources.HandlePayload)
		r.Get("/get/{id}", resources.HandleGet)
		r.Post("/bulk-get", resources.HandleBulkGet)
	})

	s.router.Route("/notification", func(r chi.Router) {
		r.Use(requireAuth)
		r.Post("/notify", notifications.HandleNotify)
		r.Delete("/delete/{id}", notifications.HandleDelete)
		r.Get("/filter", notifications.HandleFilter)
		r.Get("/get/{id}", notifications.HandleGet)
		r.Post("/bulk-get", notifications.HandleBulkGet)
	})

	return nil
}

// Start runs the server until SIGINT/SIGTERM, then shuts down
// gracefully: in-flight requests get 30 seconds, then the database is
// closed.
func (s *Server) Start() error {
	defer s.db.Close()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.cfg.Port),
		Handler:      s.router,
		ReadTimeout:  5 * time.Minute, // uploads can be slow on weak links
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.cfg.Port),
			slog.String("database", s.cfg.DBPath),
			slog.String("resources", s.cfg.ResourcePath),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}
	return nil
}
