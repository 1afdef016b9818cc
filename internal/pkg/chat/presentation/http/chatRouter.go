package http

import (
	cacheport "dormlink/internal/infrastructure/cache/port"
	"dormlink/internal/infrastructure/identity"
	qport "dormlink/internal/infrastructure/queue/port"
	"dormlink/internal/infrastructure/realtime"
	"dormlink/internal/pkg/chat/application/notify"
	repoAdapter "dormlink/internal/pkg/chat/persistence/repository/adapter"
	"dormlink/internal/pkg/chat/presentation/controller"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Deps carries what the chat endpoints need. Cache and Queue are optional;
// without a queue the REST send endpoint is not mounted and clients fall back
// to the websocket path.
type Deps struct {
	Pool     *pgxpool.Pool
	Cache    cacheport.Cache
	Queue    qport.Client
	Resolver *identity.Resolver
	Registry *realtime.Registry
	Notifier *notify.Notifier
}

// RegisterRoutes registers chat-related HTTP endpoints under the given router
// group. It constructs per-endpoint controllers and binds them directly to
// routes.
func RegisterRoutes(g *gin.RouterGroup, deps Deps) {
	repo := repoAdapter.NewPgChatRepository(deps.Pool)

	listCtl := controller.NewListConversationsController(repo, deps.Cache)
	createCtl := controller.NewCreateConversationController(repo)
	getMsgsCtl := controller.NewGetMessagesController(repo)
	socketCtl := controller.NewChatSocketController(repo, deps.Resolver, deps.Registry, deps.Notifier)

	authed := g.Group("/chat", identity.Middleware(deps.Resolver))

	// GET /api/v1/chat/conversations -> the caller's chat list
	authed.GET("/conversations", listCtl.Handle())

	// POST /api/v1/chat/conversations -> find or create the pair's conversation
	authed.POST("/conversations", createCtl.Handle())

	// GET /api/v1/chat/messages/:conversationId -> full history, oldest first
	authed.GET("/messages/:conversationId", getMsgsCtl.Handle())

	if deps.Queue != nil {
		sendCtl := controller.NewSendMessageController(deps.Queue)
		// POST /api/v1/chat/messages/:conversationId -> queue an append
		authed.POST("/messages/:conversationId", sendCtl.Handle())
	}

	// GET /api/v1/chat/ws -> websocket endpoint; auth runs in the handler
	// because the token arrives as a query parameter.
	g.GET("/chat/ws", socketCtl.Handle())
}
