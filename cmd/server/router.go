package main

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/thereayou/taskrooms/internal/config"
	"github.com/thereayou/taskrooms/internal/database"
	"github.com/thereayou/taskrooms/internal/handlers"
	"github.com/thereayou/taskrooms/internal/middleware"
	"github.com/thereayou/taskrooms/internal/notify"
	"github.com/thereayou/taskrooms/internal/services"
	"github.com/thereayou/taskrooms/internal/websocket"
	"github.com/thereayou/taskrooms/pkg/auth"
)

type deps struct {
	cfg   *config.Config
	db    *database.Database
	redis *redis.Client
	jwt   *auth.JWTManager
	hub   *websocket.Hub
	sink  notify.Sink
}

func newRouter(d deps) *gin.Engine {
	rooms := services.NewRoomService(d.db, d.sink, d.cfg.MaxRoomMembers)
	tasks := services.NewTaskService(d.db, d.sink)
	comments := services.NewCommentService(d.db, d.sink)

	authH := handlers.NewAuthHandler(d.db, d.jwt, d.redis)
	userH := handlers.NewUserHandler(d.db, rooms, d.hub)
	roomH := handlers.NewRoomHandler(rooms, d.hub)
	taskH := handlers.NewTaskHandler(tasks)
	commentH := handlers.NewCommentHandler(comments)
	wsH := handlers.NewWebSocketHandler(d.hub, handlers.NewMessageHandler(rooms, d.hub), d.cfg.CORSAllowedOrigins)

	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())
	r.Use(cors.New(cors.Config{
		AllowOrigins:     d.cfg.CORSAllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Length", "Content-Type", "Authorization", "Accept", "X-Requested-With"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/ws", middleware.WSAuthMiddleware(d.jwt, d.redis), wsH.HandleWebSocket)

	authGroup := r.Group("/auth")
	{
		authGroup.POST("/register", authH.Register)
		authGroup.POST("/login", authH.Login)
		authGroup.POST("/logout", middleware.AuthMiddleware(d.jwt, d.redis), authH.Logout)
	}

	api := r.Group("/api/v1", middleware.AuthMiddleware(d.jwt, d.redis))
	{
		users := api.Group("/users")
		{
			users.GET("/me", userH.GetMe)
			users.PATCH("/me", userH.UpdateMe)
			users.GET("/me/rooms", userH.GetMyRooms)
			users.GET("/search", userH.SearchUsers)
			users.GET("/:id", userH.GetUser)
		}

		roomsGroup := api.Group("/rooms")
		{
			roomsGroup.POST("", roomH.CreateRoom)
			roomsGroup.GET("", roomH.GetMyRooms)
			roomsGroup.GET("/:id", roomH.GetRoom)
			roomsGroup.PATCH("/:id", roomH.UpdateRoom)
			roomsGroup.DELETE("/:id", roomH.DeleteRoom)
			roomsGroup.POST("/:id/members", roomH.AddMember)
			roomsGroup.DELETE("/:id/members/:userId", roomH.RemoveMember)
			roomsGroup.POST("/:id/transfer", roomH.TransferOwnership)
			roomsGroup.POST("/:id/toggle-active", roomH.ToggleActive)
			roomsGroup.GET("/:id/tasks", taskH.ListRoomTasks)
			roomsGroup.GET("/:id/comments", commentH.ListRoomComments)
			roomsGroup.POST("/:id/comments", commentH.CreateRoomComment)
		}

		tasksGroup := api.Group("/tasks")
		{
			tasksGroup.POST("", taskH.CreateTask)
			tasksGroup.GET("", taskH.ListMyTasks)
			tasksGroup.GET("/:id", taskH.GetTask)
			tasksGroup.PATCH("/:id", taskH.UpdateTask)
			tasksGroup.DELETE("/:id", taskH.DeleteTask)
			tasksGroup.PUT("/:id/room", taskH.MoveTask)
			tasksGroup.GET("/:id/comments", commentH.ListTaskComments)
			tasksGroup.POST("/:id/comments", commentH.CreateTaskComment)
		}

		api.PATCH("/comments/:id", commentH.UpdateComment)
		api.DELETE("/comments/:id", commentH.DeleteComment)
	}

	return r
}
