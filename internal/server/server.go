package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"dnsmanager/internal/auth"
	"dnsmanager/internal/config"
	"dnsmanager/internal/database"
	"dnsmanager/internal/handler"
	"dnsmanager/internal/lock"
	"dnsmanager/internal/model"
	"dnsmanager/internal/service"
	"dnsmanager/internal/transport"
	"dnsmanager/web"
)

const shutdownTimeout = 15 * time.Second

// Deps are the collaborators the HTTP surface is built from.
type Deps struct {
	Accounts          handler.Accounts
	AuditLog          handler.AuditLog
	Sessions          *auth.SessionManager
	Directory         auth.Directory
	Domains           *service.DomainService
	Records           *service.RecordService
	Clients           *service.ClientService
	Rebinder          *service.Rebinder
	Journal           *service.Journal
	TrustProxyHeaders bool
	Logger            *slog.Logger
}

// NewHandler builds the routing tree. Everything except setup, the rebind
// endpoint and metrics waits for the first account to exist.
func NewHandler(d Deps) http.Handler {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	sm := d.Sessions
	audit := handler.NewAuditor(d.AuditLog, d.TrustProxyHeaders, logger)

	setupH := handler.NewSetupHandler(d.Accounts, audit, logger)
	authH := handler.NewAuthHandler(d.Accounts, sm, d.Directory, audit, logger)
	domainH := handler.NewDomainHandler(d.Domains, d.Records, audit, logger)
	recH := handler.NewRecordHandler(d.Domains, d.Records, audit, logger)
	clientH := handler.NewClientHandler(d.Domains, d.Clients, audit, logger)
	updateH := handler.NewUpdateHandler(d.Rebinder, audit, logger)
	adminH := handler.NewAdminHandler(d.Accounts, d.AuditLog, d.Journal, audit, logger)

	mux := http.NewServeMux()

	mux.HandleFunc("GET /setup", setupH.Status)
	mux.HandleFunc("POST /setup", setupH.Submit)
	mux.HandleFunc("GET /update/{secret}", updateH.Update)
	mux.HandleFunc("POST /update/{secret}", updateH.Update)
	mux.Handle("GET /metrics", promhttp.Handler())

	appMux := http.NewServeMux()

	appMux.HandleFunc("POST /login", authH.Login)
	appMux.HandleFunc("POST /logout", authH.Logout)

	appMux.HandleFunc("GET /api/domains", sm.RequireAuth(domainH.List))
	appMux.HandleFunc("POST /api/domains", sm.RequireAuth(domainH.Create))
	appMux.HandleFunc("GET /api/domains/{id}", sm.RequireAuth(domainH.Get))
	appMux.HandleFunc("PUT /api/domains/{id}", sm.RequireAuth(domainH.Update))
	appMux.HandleFunc("DELETE /api/domains/{id}", sm.RequireAuth(domainH.Delete))
	appMux.HandleFunc("POST /api/domains/{id}/sync", sm.RequireAuth(domainH.Sync))

	appMux.HandleFunc("GET /api/domains/{id}/records", sm.RequireAuth(recH.List))
	appMux.HandleFunc("POST /api/domains/{id}/records", sm.RequireAuth(recH.Create))
	appMux.HandleFunc("PUT /api/domains/{id}/records/{rid}", sm.RequireAuth(recH.Update))
	appMux.HandleFunc("DELETE /api/domains/{id}/records/{rid}", sm.RequireAuth(recH.Delete))

	appMux.HandleFunc("GET /api/domains/{id}/clients", sm.RequireAuth(clientH.List))
	appMux.HandleFunc("POST /api/domains/{id}/clients", sm.RequireAuth(clientH.Create))
	appMux.HandleFunc("GET /api/clients/{cid}", sm.RequireAuth(clientH.Get))
	appMux.HandleFunc("DELETE /api/clients/{cid}", sm.RequireAuth(clientH.Delete))
	appMux.HandleFunc("POST /api/clients/{cid}/secret", sm.RequireAuth(clientH.RotateSecret))
	appMux.HandleFunc("POST /api/clients/{cid}/enabled", sm.RequireAuth(clientH.SetEnabled))

	appMux.HandleFunc("GET /api/admin/users", sm.RequireAdmin(adminH.ListUsers))
	appMux.HandleFunc("POST /api/admin/users", sm.RequireAdmin(adminH.CreateUser))
	appMux.HandleFunc("DELETE /api/admin/users/{username}", sm.RequireAdmin(adminH.DeleteUser))
	appMux.HandleFunc("GET /api/admin/audit", sm.RequireAdmin(adminH.AuditLog))
	appMux.HandleFunc("POST /api/admin/pending/resume", sm.RequireAdmin(adminH.ResumePending))

	mux.Handle("/", handler.RequireSetupComplete(d.Accounts, appMux))
	return mux
}

// Start wires the application from cfg and serves until ctx is cancelled.
func Start(ctx context.Context, cfg *config.Config, version string) error {
	logger := slog.Default()

	db, err := database.Open(ctx, cfg.Database.DSN, web.MigrationsFS())
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	sessionMgr, err := auth.NewSessionManager(ctx, db)
	if err != nil {
		return fmt.Errorf("failed to init session manager: %w", err)
	}
	if err := db.PurgeExpiredSessions(ctx); err != nil {
		logger.Warn("failed to purge expired sessions", "err", err)
	}

	var locks service.Locker = lock.NewLocal()
	if cfg.Redis.Enabled {
		rl := lock.NewRedis(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.LockTTL)
		defer rl.Close()
		if err := rl.Ping(ctx); err != nil {
			return fmt.Errorf("failed to reach redis at %s: %w", cfg.Redis.Addr, err)
		}
		locks = rl
		logger.Info("using redis locks", "addr", cfg.Redis.Addr)
	}

	router := transport.NewRouter().
		Register(model.BackendRFC2136, transport.NewDNS(cfg.DNS.Timeout, cfg.DNS.TSIGFudge))
	if r53, err := transport.NewRoute53(ctx, cfg.AWS); err != nil {
		logger.Warn("route53 backend unavailable", "err", err)
	} else {
		router.Register(model.BackendRoute53, r53)
	}

	sync := service.NewSynchronizer(db, db, db, router, locks, cfg.DNS.Freshness, logger)
	engine := service.NewUpdateEngine(router, logger)
	journal := service.NewJournal(db, db, db, engine, sync, locks, logger)

	deps := Deps{
		Accounts:          db,
		AuditLog:          db,
		Sessions:          sessionMgr,
		Domains:           service.NewDomainService(db, locks, logger),
		Records:           service.NewRecordService(db, db, engine, sync, journal, locks, logger),
		Clients:           service.NewClientService(db, db, db, sync, journal, locks, logger),
		Rebinder:          service.NewRebinder(db, router, journal, locks, cfg.DNS.RebindTTL, logger),
		Journal:           journal,
		TrustProxyHeaders: cfg.Server.TrustProxyHeaders,
		Logger:            logger,
	}
	if cfg.LDAP.Enabled {
		deps.Directory = auth.NewLDAPClient(cfg.LDAP)
		logger.Info("LDAP authentication enabled", "url", cfg.LDAP.URL, "mapped_roles", len(cfg.LDAP.GroupMapping))
	}

	if n, err := journal.Resume(ctx); err != nil {
		logger.Warn("pending operations remain after startup resume", "completed", n, "err", err)
	} else if n > 0 {
		logger.Info("resumed pending operations", "completed", n)
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           NewHandler(deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("dnsmanager server starting", "addr", addr, "version", version)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
