package routes

import (
	websocket "github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/madhumithaparameshwaran/AI-FITNESS-ANALYST/internal/config"
	"github.com/madhumithaparameshwaran/AI-FITNESS-ANALYST/internal/handlers"
	"github.com/madhumithaparameshwaran/AI-FITNESS-ANALYST/internal/middleware"
	"github.com/madhumithaparameshwaran/AI-FITNESS-ANALYST/internal/services"
	syncws "github.com/madhumithaparameshwaran/AI-FITNESS-ANALYST/internal/websocket"
	"github.com/madhumithaparameshwaran/AI-FITNESS-ANALYST/internal/workspace"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Dependencies struct {
	Workspaces *workspace.Registry
	Chat       *services.ChatService
	Hub        *syncws.Hub
	// Gatherer backs /metrics. Nil leaves the endpoint unregistered.
	Gatherer prometheus.Gatherer
}

func RegisterRoutes(app *fiber.App, cfg *config.Config, deps Dependencies) {
	sessionHandler := handlers.NewSessionHandler(deps.Workspaces)
	profileHandler := handlers.NewProfileHandler(deps.Workspaces)
	planHandler := handlers.NewPlanHandler(deps.Workspaces)
	chatHandler := handlers.NewChatHandler(deps.Chat, deps.Workspaces, deps.Hub, cfg.JWTSecret)

	if cfg.EnableMetrics && deps.Gatherer != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}

	api := app.Group("/api")

	auth := api.Group("/auth")
	auth.Post("/session", sessionHandler.SignIn)

	// The socket route takes its token from the query string and has to be
	// matched ahead of the header-only /v1 group.
	api.Use("/v1/ws", chatHandler.WebSocketAuth)
	api.Get("/v1/ws", websocket.New(chatHandler.HandleWebSocket))

	authProtected := api.Group("/v1", middleware.AuthRequired(cfg.JWTSecret))
	authProtected.Delete("/session", sessionHandler.SignOut)

	profile := authProtected.Group("/profile")
	profile.Get("", profileHandler.GetProfile)
	profile.Put("", profileHandler.UpdateProfile)
	profile.Get("/bmi", profileHandler.GetBMI)

	plan := authProtected.Group("/plan")
	plan.Get("", planHandler.GetPlan)
	plan.Post("", planHandler.GeneratePlan)

	chat := authProtected.Group("/chat")
	chat.Get("", chatHandler.GetMessages)
	chat.Post("", chatHandler.Ask)
}
