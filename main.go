package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/inboxd/inboxd/internal/auth"
	"github.com/inboxd/inboxd/internal/config"
	"github.com/inboxd/inboxd/internal/events"
	"github.com/inboxd/inboxd/internal/ingest"
	"github.com/inboxd/inboxd/internal/providers/gmail"
	"github.com/inboxd/inboxd/internal/providers/outlook"
	"github.com/inboxd/inboxd/internal/relay"
	"github.com/inboxd/inboxd/internal/store"
	"github.com/inboxd/inboxd/internal/sync"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		log.Fatal(err)
	}

	records, err := store.Open(filepath.Join(cfg.DataDir, "mail.db"))
	if err != nil {
		log.Fatal(err)
	}
	defer records.Close()

	tokens, err := auth.OpenTokenStore(filepath.Join(cfg.DataDir, "tokens.db"))
	if err != nil {
		log.Fatal(err)
	}
	defer tokens.Close()

	var publisher *events.Publisher
	if cfg.NATSURL != "" {
		publisher, err = events.NewPublisher(cfg.NATSURL)
		if err != nil {
			log.Fatal(err)
		}
		defer publisher.Close()

		if err := publisher.EnsureStream(context.Background()); err != nil {
			log.Fatal(err)
		}
	}

	var verifier *auth.Verifier
	if cfg.JWKSURL != "" {
		verifier, err = auth.NewVerifier(cfg.JWKSURL)
		if err != nil {
			log.Fatal(err)
		}
	}

	oauthConfig := &oauth2.Config{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURL:  cfg.GoogleRedirectURL,
		Scopes: []string{
			"https://www.googleapis.com/auth/gmail.readonly",
			"https://www.googleapis.com/auth/drive.file",
		},
		Endpoint: google.Endpoint,
	}

	factory := coordinatorFactory(cfg, oauthConfig, tokens, records, publisher)
	manager := sync.NewManager(factory, time.Duration(cfg.SyncIntervalSec)*time.Second, cfg.PageSize)
	defer manager.StopAll()

	r := gin.Default()

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/auth/google/url", func(c *gin.Context) {
		mailbox := c.Query("mailbox")
		if mailbox == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "mailbox is required"})
			return
		}

		url := oauthConfig.AuthCodeURL(mailbox, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
		c.JSON(http.StatusOK, gin.H{"url": url})
	})

	r.GET("/auth/google/callback", func(c *gin.Context) {
		mailbox := c.Query("state")
		code := c.Query("code")
		if mailbox == "" || code == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "state and code are required"})
			return
		}

		tok, err := oauthConfig.Exchange(c.Request.Context(), code)
		if err != nil {
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
			return
		}

		if err := tokens.Save(c.Request.Context(), mailbox, "google", tok); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{"mailbox": mailbox})
	})

	api := r.Group("/")
	if verifier != nil {
		api.Use(authMiddleware(verifier))
	}

	api.POST("/sync/:mailbox", func(c *gin.Context) {
		mailbox := c.Param("mailbox")

		pageSize, err := intQuery(c, "pageSize", cfg.PageSize)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		page, err := intQuery(c, "page", 1)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		coord, err := factory(c.Request.Context(), mailbox)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		msgs, err := coord.Sync(c.Request.Context(), pageSize, page)
		if err != nil {
			status := http.StatusInternalServerError
			if err == sync.ErrInvalidPageSize || err == sync.ErrInvalidPageNumber {
				status = http.StatusBadRequest
			}
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{"messages": msgs, "count": len(msgs)})
	})

	api.GET("/sync/:mailbox/status", func(c *gin.Context) {
		mailbox := c.Param("mailbox")

		state, err := records.GetSyncState(c.Request.Context(), mailbox)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		resp := gin.H{"mailbox": mailbox, "running": manager.IsRunning(mailbox)}
		if state != nil {
			resp["status"] = state.Status
			resp["history_token"] = state.HistoryToken
			resp["last_synced_at"] = state.LastSyncedAt
		}
		c.JSON(http.StatusOK, resp)
	})

	api.POST("/sync/:mailbox/start", func(c *gin.Context) {
		mailbox := c.Param("mailbox")

		if err := manager.Start(context.Background(), mailbox); err != nil {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"mailbox": mailbox, "running": true})
	})

	api.POST("/sync/:mailbox/stop", func(c *gin.Context) {
		mailbox := c.Param("mailbox")

		if err := manager.Stop(mailbox); err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"mailbox": mailbox, "running": false})
	})

	log.Printf("listening on %s", cfg.ListenAddr)
	log.Fatal(r.Run(cfg.ListenAddr))
}

// coordinatorFactory resolves a mailbox's stored credentials and builds
// a request-scoped coordinator. Resolving the token here rather than at
// startup means refreshed tokens are picked up on the next run.
func coordinatorFactory(
	cfg *config.Config,
	oauthConfig *oauth2.Config,
	tokens *auth.TokenStore,
	records store.RecordStore,
	publisher *events.Publisher,
) sync.CoordinatorFactory {
	return func(ctx context.Context, mailbox string) (*sync.Coordinator, error) {
		tok, providerName, err := tokens.Get(ctx, mailbox)
		if err != nil {
			return nil, err
		}
		if tok == nil {
			return nil, fmt.Errorf("no credentials stored for %s", mailbox)
		}

		var provider sync.MailProvider
		var blobs sync.BlobStore

		switch providerName {
		case "outlook":
			adapter, err := outlook.New(ctx, tok.AccessToken, mailbox)
			if err != nil {
				return nil, err
			}
			provider = adapter
		default:
			httpClient := oauthConfig.Client(ctx, tok)
			adapter, err := gmail.NewWithClient(ctx, httpClient)
			if err != nil {
				return nil, err
			}
			drive, err := gmail.NewDriveBlobStore(ctx, httpClient)
			if err != nil {
				return nil, err
			}
			provider = adapter
			blobs = drive
		}

		var pub ingest.EventPublisher
		if publisher != nil {
			pub = publisher
		}
		pipeline := ingest.NewPipeline(mailbox, records, relay.New(provider, blobs), pub)

		return sync.NewCoordinator(sync.CoordinatorOptions{
			Mailbox:        mailbox,
			Provider:       provider,
			Cursors:        records,
			Ingestor:       pipeline,
			FallbackWindow: cfg.FallbackWindow,
		}), nil
	}
}

func authMiddleware(verifier *auth.Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := verifier.UserFromRequest(c.Request)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			c.Abort()
			return
		}

		c.Set("user_id", user.ID)
		c.Set("user_email", user.Email)
		c.Next()
	}
}

func intQuery(c *gin.Context, name string, fallback int) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return fallback, nil
	}
	return strconv.Atoi(raw)
}
