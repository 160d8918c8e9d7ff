package server

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/fleamarket-app/backend/internal/config"
	"github.com/fleamarket-app/backend/internal/handler"
	appmw "github.com/fleamarket-app/backend/internal/middleware"
	"github.com/fleamarket-app/backend/internal/repository"
	"github.com/fleamarket-app/backend/internal/service"
	"github.com/fleamarket-app/backend/internal/storage"
	"github.com/fleamarket-app/backend/internal/ws"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"gorm.io/gorm"
)

type Server struct {
	e           *echo.Echo
	hub         *ws.Hub
	listingRepo repository.ListingRepository
	chatRepo    repository.ChatRepository
	notifRepo   repository.NotificationRepository
	sha         string
	build       string
}

func New(ctx context.Context, db *gorm.DB, cfg *config.Config, sha, buildTime string) (*Server, error) {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.Logger())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
		AllowOriginFunc: func(origin string) (bool, error) {
			low := strings.ToLower(origin)
			if strings.HasPrefix(low, "http://localhost:") || strings.HasPrefix(low, "http://127.0.0.1:") ||
				strings.HasPrefix(low, "https://localhost:") || strings.HasPrefix(low, "https://127.0.0.1:") {
				return true, nil
			}
			u, err := url.Parse(origin)
			if err != nil {
				return false, nil
			}
			if u.Scheme != "http" && u.Scheme != "https" {
				return false, nil
			}
			if strings.HasSuffix(u.Hostname(), "vercel.app") {
				return true, nil
			}
			return false, nil
		},
	}))

	authMw, err := appmw.NewAuthMiddleware(ctx, cfg.FirebaseProjectID)
	if err != nil {
		return nil, err
	}
	members := service.NewMemberDirectory(authMw.Client(), cfg.DefaultAvatar)

	var blobs service.BlobStore
	if cfg.StorageBucket != "" {
		gcs, err := storage.New(ctx, cfg.StorageBucket, cfg.ImagePrefix)
		if err != nil {
			return nil, err
		}
		blobs = gcs
	}

	listingRepo := repository.NewListingRepository(db)
	listingSvc := service.NewListingService(listingRepo, blobs)
	listingHandler := handler.NewListingHandler(listingSvc)

	notifRepo := repository.NewNotificationRepository(db)
	notifSvc := service.NewNotificationService(notifRepo)
	notifHandler := handler.NewNotificationHandler(notifSvc)

	hub := ws.NewHub()
	chatRepo := repository.NewChatRepository(db)
	chatSvc := service.NewChatService(chatRepo, listingRepo, members, notifSvc, hub)
	chatHandler := handler.NewChatHandler(chatSvc)
	wsHandler := ws.NewHandler(hub, chatSvc, authMw)

	userHandler := handler.NewUserHandler(members)

	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"ok":         "true",
			"git_sha":    sha,
			"build_time": buildTime,
		})
	})

	api := e.Group("/api")

	api.GET("/listings", listingHandler.List)
	api.GET("/listings/:id", listingHandler.Get)
	api.POST("/listings", listingHandler.Create, authMw.RequireAuth)
	api.POST("/listings/:id/images", listingHandler.UploadImage, authMw.RequireAuth)
	api.GET("/me/listings", listingHandler.ListMine, authMw.RequireAuth)

	api.GET("/users/:uid/public", userHandler.GetPublic)

	api.GET("/notifications", notifHandler.List, authMw.RequireAuth)
	api.POST("/notifications/read", notifHandler.MarkAllRead, authMw.RequireAuth)

	chat := api.Group("/chat", authMw.RequireAuth)
	chat.POST("/rooms/open", chatHandler.OpenRoom)
	chat.POST("/rooms/open-direct", chatHandler.OpenDirectRoom)
	chat.GET("/rooms/my", chatHandler.MyRooms)
	chat.GET("/rooms/:id", chatHandler.RoomDetail)
	chat.DELETE("/rooms/:id", chatHandler.DeleteRoom)
	chat.GET("/rooms/:id/messages", chatHandler.ListMessages)
	chat.POST("/rooms/:id/messages", chatHandler.SendMessage)
	chat.POST("/rooms/:id/read", chatHandler.MarkRead)

	e.GET("/ws/chat", wsHandler.Serve)

	return &Server{
		e:           e,
		hub:         hub,
		listingRepo: listingRepo,
		chatRepo:    chatRepo,
		notifRepo:   notifRepo,
		sha:         sha,
		build:       buildTime,
	}, nil
}

func (s *Server) Start(addr string) error {
	go s.hub.Run(context.Background())
	return s.e.Start(addr)
}

// SetDB injects the database once it is ready; the HTTP surface starts
// before the connection succeeds and repositories reject calls until then.
func (s *Server) SetDB(db *gorm.DB) {
	s.listingRepo.SetDB(db)
	s.chatRepo.SetDB(db)
	s.notifRepo.SetDB(db)
}
