package router

import (
	"context"
	"time"

	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/mzlad1/BenchPOS-sub001/internal/config"
	"github.com/mzlad1/BenchPOS-sub001/internal/dto"
	"github.com/mzlad1/BenchPOS-sub001/internal/handler"
	"github.com/mzlad1/BenchPOS-sub001/internal/infra"
	"github.com/mzlad1/BenchPOS-sub001/internal/middleware"
	"github.com/mzlad1/BenchPOS-sub001/internal/remote"
	"github.com/mzlad1/BenchPOS-sub001/internal/repository"
	"github.com/mzlad1/BenchPOS-sub001/internal/service"
	syncpkg "github.com/mzlad1/BenchPOS-sub001/internal/sync"
	"github.com/mzlad1/BenchPOS-sub001/internal/worker"
)

// Deps are the long-lived components main needs after wiring: the sync
// engine (retry loop), and the worker handlers (pool startup).
type Deps struct {
	SyncEngine     *syncpkg.Engine
	WorkerHandlers worker.Handlers
	ReceiptWorker  *worker.ReceiptWorker
}

// New wires all dependencies and returns a configured Gin engine.
// Dependency graph: Handler ← Service ← Repository ← DB/Redis/Remote
func New(cfg *config.Config, db *gorm.DB, rdb *redis.Client, store remote.Store, cb *infra.CircuitBreaker, hub *syncpkg.Hub, reauth *syncpkg.ReauthRegistry) (*gin.Engine, *Deps) {
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	// Global middleware chain (order matters)
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger())
	r.Use(middleware.Recovery())
	r.Use(middleware.CORS())
	r.Use(middleware.ErrorHandler())
	r.Use(middleware.RateLimiter(1000, time.Minute)) // 1000 req/min per IP

	// ── Infrastructure ───────────────────────────────────────────────────────
	mailer := infra.NewMailer(cfg)

	// ── Repositories ─────────────────────────────────────────────────────────
	userRepo := repository.NewUserRepository(db)
	productRepo := repository.NewProductRepository(db)
	invoiceRepo := repository.NewInvoiceRepository(db)
	customerRepo := repository.NewCustomerRepository(db)
	changeRepo := repository.NewChangeLogRepository(db)
	stateRepo := repository.NewSyncStateRepository(db)
	movementRepo := repository.NewStockMovementRepository(db)
	priceHistRepo := repository.NewPriceHistoryRepository(db)
	activityRepo := repository.NewActivityRepository(db)
	settingRepo := repository.NewSettingRepository(db)
	receiptRepo := repository.NewReceiptRepository(db)
	categoryRepo := repository.NewCategoryRepository(db)

	// Worker dispatcher, injected into services that enqueue async jobs
	dispatcher := worker.NewDispatcher(rdb)

	// ── Services ─────────────────────────────────────────────────────────────
	activitySvc := service.NewActivityService(activityRepo)
	settingsSvc := service.NewSettingsService(settingRepo, activitySvc)
	authSvc := service.NewAuthService(userRepo, activitySvc, dispatcher, cfg)
	productSvc := service.NewProductService(productRepo, priceHistRepo, movementRepo, changeRepo, categoryRepo, activitySvc, rdb)
	inventorySvc := service.NewInventoryService(productRepo, movementRepo, changeRepo, activitySvc)
	invoiceSvc := service.NewInvoiceService(invoiceRepo, productRepo, customerRepo, changeRepo, inventorySvc, activitySvc, settingsSvc, dispatcher, cfg.TaxRatePct)
	customerSvc := service.NewCustomerService(customerRepo, changeRepo, activitySvc)
	reportSvc := service.NewReportService(invoiceRepo)
	receiptSvc := service.NewReceiptService(receiptRepo, dispatcher)

	// ── Sync engine ──────────────────────────────────────────────────────────
	syncEngine := syncpkg.NewEngine(syncpkg.EngineConfig{
		Changes:   changeRepo,
		State:     stateRepo,
		Products:  productRepo,
		Invoices:  invoiceRepo,
		Customers: customerRepo,
		Movements: movementRepo,
		Remote:    store,
		Breaker:   cb,
		Hub:       hub,
		Reauth:    reauth,
		// Re-auth verifies the operator locally before sync resumes pushing.
		AuthFn: func(ctx context.Context, creds syncpkg.Credentials) error {
			_, err := authSvc.Login(ctx, dto.LoginRequest{Email: creds.Email, Password: creds.Password})
			return err
		},
		DeviceID:      cfg.DeviceID,
		MaxAttempts:   cfg.SyncMaxAttempts,
		RetryInterval: cfg.SyncRetryInterval,
	})

	// ── Workers ──────────────────────────────────────────────────────────────
	receiptWorker := worker.NewReceiptWorker(receiptRepo, invoiceRepo, settingRepo, dispatcher, cfg.PDFStoragePath)
	emailWorker := worker.NewEmailWorker(mailer)

	// ── Handlers ─────────────────────────────────────────────────────────────
	authH := handler.NewAuthHandler(authSvc)
	usersH := handler.NewUsersHandler(authSvc)
	productsH := handler.NewProductsHandler(productSvc, inventorySvc)
	invoicesH := handler.NewInvoicesHandler(invoiceSvc, receiptSvc)
	customersH := handler.NewCustomersHandler(customerSvc)
	reportsH := handler.NewReportsHandler(reportSvc)
	adminH := handler.NewAdminHandler(activitySvc, settingsSvc)
	syncH := handler.NewSyncHandler(syncEngine, hub, reauth)

	// ── Routes ───────────────────────────────────────────────────────────────

	// Public
	r.GET("/health", handler.Health(db, rdb, store, cb))

	// Auth (public)
	auth := r.Group("/v1/auth")
	{
		auth.POST("/login", middleware.LoginRateLimiter(), authH.Login)
		auth.POST("/refresh", authH.Refresh)
		auth.POST("/password-reset", middleware.LoginRateLimiter(), authH.RequestPasswordReset)
	}

	// Price check kiosk, no auth required
	r.GET("/v1/price-check/:sku", productsH.PriceCheck)

	// Protected routes. Roles are hierarchical: admin > manager > cashier.
	jwtMW := middleware.JWTAuth(cfg.JWTSecret)
	v1 := r.Group("/v1", jwtMW)
	{
		v1.GET("/auth/me", authH.Me)
		v1.POST("/auth/logout", authH.Logout)
		v1.GET("/auth/permission", authH.CheckPermission)
		// Account creation stays admin-gated; there is no self-service signup.
		v1.POST("/auth/register", middleware.RequireRole("admin"), usersH.Create)

		// Sales flow: every role can sell and browse; void and edit need a
		// manager.
		v1.POST("/invoices", middleware.RequireRole("cashier"), invoicesH.Create)
		v1.GET("/invoices", middleware.RequireRole("cashier"), invoicesH.List)
		v1.GET("/invoices/:id", middleware.RequireRole("cashier"), invoicesH.GetByID)
		v1.PUT("/invoices/:id", middleware.RequireRole("manager"), invoicesH.Update)
		v1.DELETE("/invoices/:id", middleware.RequireRole("manager"), invoicesH.Void)
		v1.GET("/invoices/:id/receipt", middleware.RequireRole("cashier"), invoicesH.Receipt)
		v1.POST("/invoices/:id/receipt", middleware.RequireRole("cashier"), invoicesH.RerenderReceipt)
		v1.GET("/receipts/pdf/:id", middleware.RequireRole("cashier"), invoicesH.DownloadReceipt)

		// Catalog reads for every role; writes need a manager.
		v1.GET("/products", middleware.RequireRole("cashier"), productsH.List)
		v1.GET("/products/:id", middleware.RequireRole("cashier"), productsH.GetByID)
		v1.GET("/products/:id/price-history", middleware.RequireRole("manager"), productsH.PriceHistory)
		v1.GET("/products/:id/movements", middleware.RequireRole("manager"), productsH.Movements)
		v1.PATCH("/products/:id/stock", middleware.RequireRole("manager"), productsH.AdjustStock)
		prods := v1.Group("/products", middleware.RequireRole("manager"))
		{
			prods.POST("", productsH.Create)
			prods.PUT("/:id", productsH.Update)
			prods.DELETE("/:id", productsH.Deactivate)
			prods.PATCH("/:id/reactivate", productsH.Reactivate)
		}
		v1.GET("/inventory/low-stock", middleware.RequireRole("manager"), productsH.LowStock)

		// Category picker entries; maintenance needs a manager.
		v1.GET("/categories", middleware.RequireRole("cashier"), productsH.Categories)
		categories := v1.Group("/categories", middleware.RequireRole("manager"))
		{
			categories.POST("", productsH.CreateCategory)
			categories.PUT("/:id", productsH.UpdateCategory)
			categories.DELETE("/:id", productsH.DeactivateCategory)
		}

		// Customer directory
		v1.GET("/customers", middleware.RequireRole("cashier"), customersH.List)
		v1.GET("/customers/:id", middleware.RequireRole("cashier"), customersH.GetByID)
		customers := v1.Group("/customers", middleware.RequireRole("manager"))
		{
			customers.POST("", customersH.Create)
			customers.PUT("/:id", customersH.Update)
			customers.DELETE("/:id", customersH.Deactivate)
		}

		// Reports
		reports := v1.Group("/reports", middleware.RequireRole("manager"))
		{
			reports.GET("/daily", reportsH.DailySales)
			reports.GET("/top-products", reportsH.TopProducts)
			reports.GET("/summary", reportsH.Summary)
		}

		// Admin: users, audit trail, settings
		users := v1.Group("/users", middleware.RequireRole("admin"))
		{
			users.POST("", usersH.Create)
			users.GET("", usersH.List)
			users.GET("/:id", usersH.GetByID)
			users.PUT("/:id", usersH.Update)
			users.DELETE("/:id", usersH.Delete)
		}
		v1.GET("/activity", middleware.RequireRole("admin"), adminH.Activity)
		v1.GET("/settings", middleware.RequireRole("cashier"), adminH.GetSettings)
		v1.PUT("/settings", middleware.RequireRole("admin"), adminH.UpdateSettings)

		// Sync engine surface
		syncGrp := v1.Group("/sync", middleware.RequireRole("cashier"))
		{
			syncGrp.GET("/status", syncH.Status)
			syncGrp.POST("", syncH.Perform)
			syncGrp.GET("/last", syncH.LastSync)
			syncGrp.GET("/online", syncH.Online)
			syncGrp.GET("/events", syncH.Events)
			syncGrp.POST("/reauth/:id", syncH.ResolveReauth)
			syncGrp.DELETE("/reauth/:id", syncH.CancelReauth)
		}
	}

	// Swagger UI, only enabled outside production
	if cfg.Env != "production" {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	deps := &Deps{
		SyncEngine:     syncEngine,
		WorkerHandlers: worker.Handlers{Receipt: receiptWorker, Email: emailWorker},
		ReceiptWorker:  receiptWorker,
	}
	return r, deps
}
