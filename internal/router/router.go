package router

import (
	"net/http"
	"time"

	"lexlab/internal/config"
	"lexlab/internal/handlers"
	"lexlab/internal/runner"

	ratelimit "github.com/JGLTechnologies/gin-rate-limit"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/unrolled/secure"
	"go.uber.org/zap"
)

func keyFunc(c *gin.Context) string {
	return c.ClientIP()
}

func errorHandler(c *gin.Context, info ratelimit.Info) {
	c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many requests, try again later"})
}

func Setup(log *zap.Logger, manager *runner.Manager) *gin.Engine {
	// Set up a new Gin router, add recovery middleware and request logging.
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(RequestLogger(log))

	store := cookie.NewStore([]byte(config.Conf.Server.SessionSecret))
	store.Options(sessions.Options{
		Path:     "/",
		HttpOnly: true,
		Secure:   false, // Set to true in production
		SameSite: http.SameSiteLaxMode,
		MaxAge:   86400 * 7,
	})
	router.Use(sessions.Sessions("lexlab_session", store))

	// --- Now that sessions are initialized, other middleware can use them ---
	router.Use(CSRFProtection())
	router.Use(ParticipantLoader(log))

	secureMiddleware := secure.New(secure.Options{
		FrameDeny:          true,
		ContentTypeNosniff: true,
		BrowserXssFilter:   true,
	})
	router.Use(func(c *gin.Context) {
		err := secureMiddleware.Process(c.Writer, c.Request)
		if err != nil {
			c.Abort()
			return
		}
	})

	// Handlers and routes
	authHandler := handlers.NewAuthHandler(log, manager)
	trialHandler := handlers.NewTrialHandler(log, manager)
	exportHandler := handlers.NewExportHandler(log)
	resultsHandler := handlers.NewResultsHandler(log)

	// Login is the only surface open to the whole participant pool at once, so
	// it is the only one behind a limiter.
	rateLimitStore := ratelimit.InMemoryStore(&ratelimit.InMemoryOptions{
		Rate:  time.Minute,
		Limit: 5,
	})
	limiter := ratelimit.RateLimiter(rateLimitStore, &ratelimit.Options{
		ErrorHandler: errorHandler,
		KeyFunc:      keyFunc,
	})

	router.GET("/csrf", func(c *gin.Context) {
		token, _ := c.Get(csrfTokenContextKey)
		c.JSON(http.StatusOK, gin.H{"csrfToken": token})
	})

	router.POST("/login", limiter, authHandler.Login)
	router.POST("/logout", authHandler.Logout)

	authorized := router.Group("/")
	authorized.Use(ParticipantRequired(log))
	{
		trialRoutes := authorized.Group("/trial")
		{
			trialRoutes.GET("", trialHandler.Current)
			trialRoutes.POST("/submit", trialHandler.Submit)
			trialRoutes.POST("/expired", trialHandler.Expired)
			trialRoutes.GET("/log", trialHandler.Log)
		}
	}

	research := router.Group("/research")
	{
		research.POST("/login", limiter, authHandler.ResearcherLogin)

		protected := research.Group("/")
		protected.Use(ResearcherRequired(log))
		{
			protected.GET("/export/responses.csv", exportHandler.CSV)
			protected.GET("/export/responses.json", exportHandler.JSON)
			protected.GET("/results/latency", resultsHandler.LatencyChart)
		}
	}

	return router
}
