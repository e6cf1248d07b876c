package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/robolearn/learning-backend/internal/config"
	"github.com/robolearn/learning-backend/internal/http/handlers"
	"github.com/robolearn/learning-backend/internal/http/middleware"
	"github.com/robolearn/learning-backend/internal/service"
)

func SetupRouter(
	cfg *config.Config,
	authHandler *handlers.AuthHandler,
	profileHandler *handlers.ProfileHandler,
	courseHandler *handlers.CourseHandler,
	studentHandler *handlers.StudentHandler,
	newsletterHandler *handlers.NewsletterHandler,
	mediaHandler *handlers.MediaHandler,
	wsHandler *handlers.WSHandler,
	healthHandler *handlers.HealthHandler,
	seedHandler *handlers.SeedHandler,
	tokenManager *service.TokenManager,
) *gin.Engine {
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.Default()
	r.Use(middleware.ErrorHandler())
	r.Use(middleware.CORSMiddleware(cfg.AllowedOrigins))

	r.GET("/health", healthHandler.Health)
	r.StaticFS("/media", http.Dir(cfg.MediaStoragePath))

	api := r.Group("/api")

	if seedHandler != nil && cfg.Env == "development" {
		api.POST("/seed", seedHandler.Seed)
		api.GET("/seed", seedHandler.Seed)
	}

	// Выдача и проверка кодов ограничены, чтобы не дать перебрать код.
	authGroup := api.Group("/auth")
	authRateLimit := middleware.RateLimitMiddleware(5, cfg.RateLimitPeriod)
	authGroup.Use(authRateLimit)
	{
		authGroup.POST("/register", authHandler.Register)
		authGroup.POST("/verify-email", authHandler.VerifyEmail)
		authGroup.POST("/resend-otp", authHandler.ResendOTP)
		authGroup.POST("/login", authHandler.Login)
		authGroup.POST("/refresh", authHandler.Refresh)
		authGroup.POST("/logout", authHandler.Logout)
		authGroup.POST("/forgot-password", authHandler.ForgotPassword)
		authGroup.POST("/reset-password", authHandler.ResetPassword)
	}

	protectedAuth := api.Group("/auth")
	protectedAuth.Use(middleware.AuthMiddleware(tokenManager))
	{
		protectedAuth.POST("/change-password", authHandler.ChangePassword)
		protectedAuth.POST("/email-change", authHandler.RequestEmailChange)
		protectedAuth.POST("/email-change/confirm", authHandler.ConfirmEmailChange)
		protectedAuth.DELETE("/account", authHandler.DeleteAccount)
		protectedAuth.GET("/sessions", authHandler.ListSessions)
		protectedAuth.DELETE("/sessions/:id", authHandler.DeleteSession)
	}

	// Публичные маршруты
	api.GET("/ws", wsHandler.Handle)
	api.GET("/catalog/categories", courseHandler.ListCategories)
	api.GET("/catalog/courses", courseHandler.ListCourses)
	api.GET("/catalog/courses/:slug", courseHandler.GetCourse)
	api.GET("/courses/:id/reviews", middleware.UUIDValidator("id"), courseHandler.ListReviews)

	api.POST("/newsletter/subscribe", newsletterHandler.Subscribe)
	api.POST("/newsletter/unsubscribe", newsletterHandler.Unsubscribe)
	api.POST("/waitlist", newsletterHandler.JoinWaitlist)

	// Защищённые маршруты
	protected := api.Group("/")
	protected.Use(middleware.AuthMiddleware(tokenManager))
	{
		protected.GET("/profile", profileHandler.GetMe)
		protected.PUT("/profile", profileHandler.UpdateMe)

		protected.POST("/courses/:id/enroll", middleware.UUIDValidator("id"), studentHandler.Enroll)
		protected.GET("/enrollments", studentHandler.ListEnrollments)
		protected.POST("/courses/:id/modules/:moduleID/complete",
			middleware.UUIDValidator("id"), middleware.UUIDValidator("moduleID"), studentHandler.CompleteModule)

		protected.POST("/courses/:id/reviews", middleware.UUIDValidator("id"), courseHandler.CreateReview)
		protected.PUT("/reviews/:id", middleware.UUIDValidator("id"), courseHandler.UpdateReview)
		protected.DELETE("/reviews/:id", middleware.UUIDValidator("id"), courseHandler.DeleteReview)

		protected.GET("/student/dashboard", studentHandler.Dashboard)
		protected.GET("/student/stats", studentHandler.GetStats)
		protected.GET("/student/badges", studentHandler.ListBadges)
		protected.GET("/student/activities", studentHandler.ListActivities)
		protected.POST("/student/simulations", studentHandler.LogSimulation)

		protected.POST("/media/photos", mediaHandler.UploadPhoto)
		protected.GET("/media", mediaHandler.ListMine)
		protected.DELETE("/media/:id", middleware.UUIDValidator("id"), mediaHandler.DeleteMedia)
	}

	return r
}
