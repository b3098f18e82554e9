package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"bookbot/pkg/report"
	"bookbot/pkg/scheduler"
	"bookbot/pkg/session"
	"bookbot/pkg/store"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP chat server",
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, err := openDeps()
			if err != nil {
				return err
			}
			manager := session.NewManager(deps)

			queue := scheduler.NewQueue()
			reportChat := getEnv("REPORT_CHAT_ID", "")
			if reportChat != "" {
				scheduleMonthlyReport(queue, deps.Reporter, manager, reportChat, time.Now())
			}
			go scheduler.NewRunner(queue, time.Minute).Run(context.Background())

			router := newRouter(manager, deps.Store, deps.Reporter)
			addr := getEnv("HTTP_ADDR", ":8080")
			log.Printf("Starting bookbot server on %s", addr)
			return router.Run(addr)
		},
	}
}

// scheduleMonthlyReport queues a job for 09:00 on the last day of the
// month that pushes the previous month's digest into the report chat.
func scheduleMonthlyReport(queue *scheduler.Queue, rep *report.Reporter, manager *session.Manager, chatID string, now time.Time) {
	queue.Enqueue(&scheduler.Job{
		Name:  "monthly-report",
		RunAt: scheduler.NextMonthlyRun(now),
		Run: func(ctx context.Context) error {
			// The next run is queued before anything can fail, so one bad
			// digest does not end monthly reporting.
			scheduleMonthlyReport(queue, rep, manager, chatID, time.Now())
			since, until := report.PrevMonth(time.Now())
			digest, err := rep.CombinedDigest(since, until)
			if err != nil {
				return err
			}
			manager.Push(chatID, report.SplitMessage(digest, report.DefaultMessageBudget))
			return nil
		},
	})
}

type messageRequest struct {
	Text string `json:"text" binding:"required"`
}

type messageResponse struct {
	Replies []string `json:"replies"`
}

func newRouter(manager *session.Manager, st *store.Store, rep *report.Reporter) *gin.Engine {
	router := gin.Default()
	router.Use(rateLimit())

	api := router.Group("/api/v1")
	{
		api.POST("/chats/:chatId/messages", func(c *gin.Context) {
			var req messageRequest
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"message": "text is required"})
				return
			}
			sess := manager.Session(c.Param("chatId"))
			c.JSON(http.StatusOK, messageResponse{Replies: sess.Handle(req.Text)})
		})

		api.GET("/books", func(c *gin.Context) {
			books, err := st.ListBooks()
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"message": err.Error()})
				return
			}
			c.JSON(http.StatusOK, books)
		})

		api.GET("/books/:id", func(c *gin.Context) {
			id, err := strconv.ParseUint(c.Param("id"), 10, 32)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"message": "invalid book id"})
				return
			}
			book, err := st.GetBook(uint(id))
			if errors.Is(err, store.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"message": "book not found"})
				return
			}
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"message": err.Error()})
				return
			}
			c.JSON(http.StatusOK, book)
		})

		api.GET("/summary", func(c *gin.Context) {
			summary, err := st.LibrarySummary()
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"message": err.Error()})
				return
			}
			c.JSON(http.StatusOK, summary)
		})
	}

	router.GET("/manage/health", func(c *gin.Context) {
		if err := st.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "DOWN"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "UP"})
	})

	return router
}

// rateLimit allows bursts of 5 requests and 2 requests/second sustained,
// tracked per client IP. Stale entries are dropped after 3 minutes.
func rateLimit() gin.HandlerFunc {
	type client struct {
		limiter  *rate.Limiter
		lastSeen time.Time
	}
	var (
		mu      sync.Mutex
		clients = make(map[string]*client)
	)

	go func() {
		for {
			time.Sleep(time.Minute)
			mu.Lock()
			for ip, c := range clients {
				if time.Since(c.lastSeen) > 3*time.Minute {
					delete(clients, ip)
				}
			}
			mu.Unlock()
		}
	}()

	return func(c *gin.Context) {
		ip, _, err := net.SplitHostPort(c.Request.RemoteAddr)
		if err != nil {
			ip = c.Request.RemoteAddr
		}

		mu.Lock()
		cl, ok := clients[ip]
		if !ok {
			cl = &client{limiter: rate.NewLimiter(2, 5)}
			clients[ip] = cl
		}
		cl.lastSeen = time.Now()
		allowed := cl.limiter.Allow()
		mu.Unlock()

		if !allowed {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"message": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}
