// Package server orchestrates all components: NATS client, optional DB,
// permission store, approval queue, router, and the HTTP health endpoint.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	comms "github.com/nats-io/nats.go"

	"github.com/morezero/wallet-router/internal/config"
	"github.com/morezero/wallet-router/pkg/approval"
	"github.com/morezero/wallet-router/pkg/db"
	"github.com/morezero/wallet-router/pkg/events"
	"github.com/morezero/wallet-router/pkg/natsutil"
	"github.com/morezero/wallet-router/pkg/permission"
	"github.com/morezero/wallet-router/pkg/router"
	"github.com/morezero/wallet-router/pkg/transport"
	"github.com/morezero/wallet-router/pkg/wire"
)

const logPrefix = "server:server"

// Server is the wallet-router orchestrator.
type Server struct {
	cfg        *config.Config
	nc         *comms.Conn
	pool       *pgxpool.Pool
	grants     *db.GrantsRepository
	httpServer *http.Server

	perms  *permission.Store
	queue  *approval.Queue
	rtr    *router.Router
	subs   []*comms.Subscription
	funnel string // request subject actually in use

	mu      sync.Mutex
	wallets map[string]*walletLink // keyed by chainID + "/" + walletID
}

type walletLink struct {
	tr    *transport.NATSTransport
	proxy *transport.Proxy
}

// Run starts the server, blocks until shutdown signal, then cleans up.
func Run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("%s - failed to load config: %w", logPrefix, err)
	}
	if err := cfg.ValidateForServe(); err != nil {
		return err
	}

	var logLevel slog.Level
	switch cfg.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))

	slog.Info(fmt.Sprintf("%s - Starting wallet-router", logPrefix))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := &Server{cfg: cfg, wallets: make(map[string]*walletLink)}

	// Step 1: Connect to NATS
	nc, err := natsutil.Connect(cfg.COMMSURL, cfg.COMMSName)
	if err != nil {
		return fmt.Errorf("%s - failed to connect to NATS: %w", logPrefix, err)
	}
	s.nc = nc

	// Step 2: Permission store (default from config), optionally seeded from DB
	defaultState, _ := permission.ParseState(cfg.DefaultPermission)
	s.perms = permission.NewStore(permission.Config{Default: defaultState})

	if cfg.DatabaseURL != "" {
		pool, err := db.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			nc.Close()
			return fmt.Errorf("%s - failed to connect to database: %w", logPrefix, err)
		}
		s.pool = pool
		s.grants = db.NewGrantsRepository(pool)

		if cfg.RunMigrations {
			migrationSQL, err := db.LoadMigrationFiles(cfg.MigrationPath)
			if err != nil {
				s.closeInfra()
				return fmt.Errorf("%s - failed to load migrations: %w", logPrefix, err)
			}
			if err := db.RunMigrations(ctx, pool, migrationSQL); err != nil {
				s.closeInfra()
				return fmt.Errorf("%s - failed to run migrations: %w", logPrefix, err)
			}
		}

		if err := s.seedPermissions(ctx); err != nil {
			s.closeInfra()
			return err
		}
	}

	// Step 3: Approval queue, notifying the approver UI over NATS
	notifySubject := cfg.ApprovalNotifySubj
	if notifySubject == "" {
		notifySubject = natsutil.SubjectApprovalNotify
	}
	s.queue = approval.NewQueue(approval.Config{Timeout: cfg.ApprovalTimeout}, func(n *approval.Notification) {
		data, err := natsutil.EncodePayload(n)
		if err != nil {
			slog.Error(fmt.Sprintf("%s - failed to encode approval notification: %v", logPrefix, err))
			return
		}
		if err := nc.Publish(notifySubject, data); err != nil {
			slog.Error(fmt.Sprintf("%s - failed to publish approval notification: %v", logPrefix, err))
		}
	})

	// Step 4: Router with lifecycle events on NATS
	publisherOpts := &events.CommsPublisherOpts{}
	if cfg.EventSubject != "" {
		publisherOpts.GlobalEventSubject = cfg.EventSubject
	}
	s.rtr = router.NewRouter(router.NewRouterParams{
		Permissions: s.perms,
		Ask:         approval.Gate(s.queue),
		Publisher:   events.NewCommsPublisher(nc, publisherOpts),
		Config: router.Config{
			RequestTimeout:  cfg.RequestTimeout,
			ApprovalTimeout: cfg.ApprovalTimeout,
		},
	})

	// Step 5: Control-plane subscriptions
	if err := s.subscribeAll(ctx); err != nil {
		s.closeInfra()
		return err
	}

	// Step 6: HTTP health server
	s.startHTTP()

	slog.Info(fmt.Sprintf("%s - Wallet-router is ready", logPrefix))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info(fmt.Sprintf("%s - Received signal %s, shutting down", logPrefix, sig))

	// Graceful shutdown
	for _, sub := range s.subs {
		sub.Unsubscribe()
	}
	if s.httpServer != nil {
		s.httpServer.Shutdown(ctx)
	}
	s.mu.Lock()
	for _, link := range s.wallets {
		link.proxy.Close()
	}
	s.mu.Unlock()
	nc.Drain()
	if s.pool != nil {
		s.pool.Close()
	}

	slog.Info(fmt.Sprintf("%s - Shutdown complete", logPrefix))
	return nil
}

func (s *Server) closeInfra() {
	if s.pool != nil {
		s.pool.Close()
	}
	s.nc.Close()
}

// seedPermissions loads persisted grants into the in-memory store.
func (s *Server) seedPermissions(ctx context.Context) error {
	grants, err := s.grants.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("%s - failed to load permission grants: %w", logPrefix, err)
	}
	for _, g := range grants {
		state, err := permission.ParseState(g.State)
		if err != nil {
			slog.Warn(fmt.Sprintf("%s - skipping grant %s/%s: %v", logPrefix, g.ChainID, g.Method, err))
			continue
		}
		if err := s.perms.SetState(g.ChainID, g.Method, state); err != nil {
			return fmt.Errorf("%s - failed to seed grant %s/%s: %w", logPrefix, g.ChainID, g.Method, err)
		}
	}
	slog.Info(fmt.Sprintf("%s - Seeded %d permission grants from database", logPrefix, len(grants)))
	return nil
}

func (s *Server) subscribeAll(ctx context.Context) error {
	requestSubject := s.cfg.RequestSubject
	if requestSubject == "" {
		requestSubject = natsutil.SubjectRequests
	}
	s.funnel = requestSubject

	approvalSubject := s.cfg.ApprovalSubject
	if approvalSubject == "" {
		approvalSubject = natsutil.SubjectApprovals
	}
	registerSubject := s.cfg.RegisterSubject
	if registerSubject == "" {
		registerSubject = natsutil.SubjectRegister
	}

	type binding struct {
		subject string
		handler comms.MsgHandler
	}
	bindings := []binding{
		{requestSubject, s.handleRequest(ctx)},
		{approvalSubject, s.handleApproval},
		{registerSubject, s.handleAnnouncement},
		{natsutil.SubjectSessionClosed, s.handleSessionClosed},
		{natsutil.SubjectPermissions, s.handlePermissionChange(ctx)},
	}
	for _, b := range bindings {
		sub, err := s.nc.Subscribe(b.subject, b.handler)
		if err != nil {
			for _, prev := range s.subs {
				prev.Unsubscribe()
			}
			return fmt.Errorf("%s - failed to subscribe to %s: %w", logPrefix, b.subject, err)
		}
		s.subs = append(s.subs, sub)
		slog.Info(fmt.Sprintf("%s - Subscribed to %s", logPrefix, b.subject))
	}
	return nil
}

// handleRequest dispatches one session request. Dispatch runs on its own
// goroutine so a request suspended on approval never stalls other traffic.
func (s *Server) handleRequest(ctx context.Context) comms.MsgHandler {
	return func(msg *comms.Msg) {
		var req wire.Request
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			slog.Error(fmt.Sprintf("%s - failed to decode request: %v", logPrefix, err))
			data, _ := json.Marshal(wire.ErrResponse("", wire.CodeInvalidRequest, "failed to decode request"))
			msg.Respond(data)
			return
		}

		go func() {
			reqCtx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout+s.cfg.ApprovalTimeout)
			if req.Ctx != nil && req.Ctx.TimeoutMs > 0 {
				if d := time.Duration(req.Ctx.TimeoutMs) * time.Millisecond; d < s.cfg.RequestTimeout {
					cancel()
					reqCtx, cancel = context.WithTimeout(ctx, d+s.cfg.ApprovalTimeout)
				}
			}
			defer cancel()

			resp := s.rtr.Dispatch(reqCtx, req.Ctx, &req)

			data, err := json.Marshal(resp)
			if err != nil {
				slog.Error(fmt.Sprintf("%s - failed to encode response: %v", logPrefix, err))
				return
			}
			msg.Respond(data)
		}()
	}
}

// handleApproval settles one pending approval with the approver's decision.
func (s *Server) handleApproval(msg *comms.Msg) {
	var decision wire.ApprovalDecision
	if err := json.Unmarshal(msg.Data, &decision); err != nil {
		s.ack(msg, wire.AckErr(wire.NewRouterError(wire.CodeInvalidRequest, "failed to decode approval decision")))
		return
	}
	if err := s.queue.Resolve(decision.RequestID, decision.Approved); err != nil {
		// Races between timeout and late approver action are expected; the
		// stale condition is reported, not swallowed.
		s.ack(msg, wire.AckErr(err))
		return
	}
	s.ack(msg, wire.AckOK(nil))
}

// handleAnnouncement registers or unregisters a wallet node and its transport.
func (s *Server) handleAnnouncement(msg *comms.Msg) {
	var ann wire.WalletAnnouncement
	if err := json.Unmarshal(msg.Data, &ann); err != nil {
		s.ack(msg, wire.AckErr(wire.NewRouterError(wire.CodeInvalidRequest, "failed to decode wallet announcement")))
		return
	}

	key := ann.ChainID + "/" + ann.WalletID
	switch ann.Action {
	case "register":
		tr := transport.NewNATSTransport(s.nc,
			natsutil.BuildWalletSendSubject(ann.ChainID, ann.WalletID),
			natsutil.BuildWalletRecvSubject(ann.ChainID, ann.WalletID))
		proxy, err := transport.NewProxy(tr)
		if err != nil {
			s.ack(msg, wire.AckErr(err))
			return
		}
		if err := s.rtr.Registry().Register(&router.WalletEntry{
			ChainID:  ann.ChainID,
			WalletID: ann.WalletID,
			Version:  ann.Version,
			Methods:  ann.Methods,
			Caller:   proxy,
		}); err != nil {
			proxy.Close()
			s.ack(msg, wire.AckErr(err))
			return
		}
		s.mu.Lock()
		if old, ok := s.wallets[key]; ok {
			old.proxy.Close()
		}
		s.wallets[key] = &walletLink{tr: tr, proxy: proxy}
		s.mu.Unlock()
		s.ack(msg, wire.AckOK(nil))

	case "unregister":
		s.rtr.Registry().Unregister(ann.ChainID, ann.WalletID)
		s.mu.Lock()
		link, ok := s.wallets[key]
		delete(s.wallets, key)
		s.mu.Unlock()
		if ok {
			link.tr.Fail(wire.NewRouterError(wire.CodeTransportDisconnected, "wallet node unregistered"))
		}
		s.ack(msg, wire.AckOK(nil))

	default:
		s.ack(msg, wire.AckErr(wire.NewRouterError(wire.CodeInvalidRequest,
			fmt.Sprintf("unknown announcement action %q", ann.Action))))
	}
}

// handleSessionClosed cancels all pending approvals owned by the session.
func (s *Server) handleSessionClosed(msg *comms.Msg) {
	var closed wire.SessionClosed
	if err := json.Unmarshal(msg.Data, &closed); err != nil {
		s.ack(msg, wire.AckErr(wire.NewRouterError(wire.CodeInvalidRequest, "failed to decode session close")))
		return
	}
	n := s.queue.CancelSession(closed.SessionID)
	s.ack(msg, wire.AckOK(map[string]int{"cancelled": n}))
}

// handlePermissionChange applies explicit permission mutations and persists
// them when a database is configured.
func (s *Server) handlePermissionChange(ctx context.Context) comms.MsgHandler {
	return func(msg *comms.Msg) {
		var change wire.PermissionChange
		if err := json.Unmarshal(msg.Data, &change); err != nil {
			s.ack(msg, wire.AckErr(wire.NewRouterError(wire.CodeInvalidRequest, "failed to decode permission change")))
			return
		}

		switch change.Action {
		case "get":
			state := s.perms.GetState(change.ChainID, change.Method)
			s.ack(msg, wire.AckOK(map[string]string{"state": string(state)}))

		case "set":
			state, err := permission.ParseState(change.State)
			if err != nil {
				s.ack(msg, wire.AckErr(wire.NewRouterError(wire.CodeInvalidRequest, err.Error())))
				return
			}
			if err := s.perms.SetState(change.ChainID, change.Method, state); err != nil {
				s.ack(msg, wire.AckErr(wire.NewRouterError(wire.CodeInvalidRequest, err.Error())))
				return
			}
			if s.grants != nil {
				updatedBy := change.UpdatedBy
				if updatedBy == "" {
					updatedBy = "system"
				}
				if err := s.grants.Upsert(ctx, db.Grant{
					ChainID:   change.ChainID,
					Method:    change.Method,
					State:     string(state),
					UpdatedBy: updatedBy,
				}); err != nil {
					slog.Error(fmt.Sprintf("%s - failed to persist grant: %v", logPrefix, err))
				}
			}
			s.ack(msg, wire.AckOK(nil))

		default:
			s.ack(msg, wire.AckErr(wire.NewRouterError(wire.CodeInvalidRequest,
				fmt.Sprintf("unknown permission action %q", change.Action))))
		}
	}
}

func (s *Server) ack(msg *comms.Msg, a *wire.Ack) {
	data, err := json.Marshal(a)
	if err != nil {
		slog.Error(fmt.Sprintf("%s - failed to encode ack: %v", logPrefix, err))
		return
	}
	msg.Respond(data)
}

// statusPageTemplate is the HTML for the router status page.
const statusPageTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <title>Wallet Router</title>
  <style>
    * { box-sizing: border-box; }
    body { background: #fff; color: #000; font-family: system-ui, sans-serif; margin: 0; padding: 2rem; line-height: 1.5; }
    h1, h2 { color: #0066cc; }
    .status-healthy { color: #0066cc; font-weight: bold; }
    .status-unhealthy { color: #cc0000; font-weight: bold; }
    table { border-collapse: collapse; width: 100%; max-width: 900px; margin-top: 0.5rem; }
    th, td { text-align: left; padding: 0.5rem 0.75rem; border: 1px solid #ccc; }
    th { background: #f0f4f8; color: #0066cc; }
    .meta { color: #333; font-size: 0.9rem; margin-top: 1rem; }
    section { margin-bottom: 2rem; }
  </style>
</head>
<body>
  <h1>Wallet Router</h1>
  <p class="meta">Connection health, registered wallets, and pending approvals.</p>

  <section>
    <h2>Health</h2>
    <p>COMMS: <span class="status-{{if .CommsOK}}healthy{{else}}unhealthy{{end}}">{{if .CommsOK}}connected{{else}}disconnected{{end}}</span></p>
    <p>Request subject: {{.RequestSubject}}</p>
  </section>

  <section>
    <h2>Wallets</h2>
    {{if not .Wallets}}
    <p>No wallets registered.</p>
    {{else}}
    <table>
      <thead><tr><th>Chain</th><th>Wallet</th><th>Version</th><th>Methods</th></tr></thead>
      <tbody>
        {{range .Wallets}}
        <tr><td>{{.ChainID}}</td><td>{{.WalletID}}</td><td>{{.Version}}</td><td>{{len .Methods}}</td></tr>
        {{end}}
      </tbody>
    </table>
    {{end}}
  </section>

  <section>
    <h2>Pending approvals</h2>
    {{if not .Pending}}
    <p>No pending approvals.</p>
    {{else}}
    <table>
      <thead><tr><th>Request</th><th>Token</th><th>Session</th><th>Chain</th><th>Method</th><th>Created</th></tr></thead>
      <tbody>
        {{range .Pending}}
        <tr><td>{{.RequestID}}</td><td>{{.CorrelationToken}}</td><td>{{.SessionID}}</td><td>{{.ChainID}}</td><td>{{.Method}}</td><td>{{.CreatedAt}}</td></tr>
        {{end}}
      </tbody>
    </table>
    {{end}}
  </section>
</body>
</html>
`

// statusData is the data passed to the status page template.
type statusData struct {
	CommsOK        bool
	RequestSubject string
	Wallets        []router.WalletInfo
	Pending        []approval.PendingInfo
}

func (s *Server) commsConnected() bool {
	return s.nc != nil && s.nc.IsConnected()
}

// handleStatus renders the HTML status page with registered wallets and
// pending approvals.
func (s *Server) handleStatus() http.HandlerFunc {
	tmpl := template.Must(template.New("status").Parse(statusPageTemplate))
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		data := statusData{
			CommsOK:        s.commsConnected(),
			RequestSubject: s.funnel,
			Wallets:        s.rtr.Registry().List(),
			Pending:        s.queue.PendingList(),
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := tmpl.Execute(w, data); err != nil {
			slog.Error(fmt.Sprintf("%s - status template execute: %v", logPrefix, err))
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
	}
}

func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		healthCtx, cancel := context.WithTimeout(r.Context(), s.cfg.HealthCheckTimeout)
		defer cancel()

		checks := map[string]bool{"comms": s.commsConnected()}
		healthy := checks["comms"]
		if s.pool != nil {
			dbOK := s.pool.Ping(healthCtx) == nil
			checks["database"] = dbOK
			healthy = healthy && dbOK
		}

		w.Header().Set("Content-Type", "application/json")
		if !healthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":           statusWord(healthy),
			"checks":           checks,
			"pendingApprovals": s.queue.PendingCount(),
			"timestamp":        time.Now().UTC().Format(time.RFC3339),
		})
	}
}

func (s *Server) handleReady() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "ready"})
	}
}

func (s *Server) startHTTP() {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleStatus())
	mux.HandleFunc("/health", s.handleHealth())
	mux.HandleFunc("/ready", s.handleReady())

	httpAddr := fmt.Sprintf(":%d", s.cfg.HTTPPort)
	s.httpServer = &http.Server{Addr: httpAddr, Handler: mux}
	go func() {
		slog.Info(fmt.Sprintf("%s - HTTP health server listening on %s", logPrefix, httpAddr))
		if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
			slog.Error(fmt.Sprintf("%s - HTTP server error: %v", logPrefix, err))
		}
	}()
}

func statusWord(healthy bool) string {
	if healthy {
		return "healthy"
	}
	return "unhealthy"
}
