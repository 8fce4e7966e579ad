// Package quotes is a built-in plugin that stores memorable chat lines and
// serves them back through chat commands, an HTTP endpoint, and a service
// other plugins can call.
package quotes

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hashicorp/go-hclog"
	"gorm.io/gorm"

	"github.com/castbot/castbot/sdk"
)

const ID = "quotes"

// Quote is one stored line with attribution.
type Quote struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Text      string    `gorm:"not null" json:"text"`
	Author    string    `json:"author"`
	AddedBy   string    `json:"added_by"`
	CreatedAt time.Time `json:"created_at"`
}

func (Quote) TableName() string { return "castbot_quotes" }

// Plugin implements the quotes feature set.
type Plugin struct {
	sdk.BasePlugin
	db     *gorm.DB
	logger hclog.Logger
}

func New() *Plugin { return &Plugin{} }

func (p *Plugin) Metadata() sdk.Metadata {
	return sdk.Metadata{
		ID:          ID,
		Name:        "Quotes",
		Version:     "1.0.0",
		Description: "Stores and recalls memorable chat quotes",
		Author:      "castbot",
	}
}

func (p *Plugin) Init(ctx context.Context, host sdk.Host) error {
	p.db = host.DB()
	p.logger = host.Logger()

	if err := host.Migrate(
		`CREATE TABLE IF NOT EXISTS castbot_quotes (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			text TEXT NOT NULL,
			author TEXT,
			added_by TEXT,
			created_at DATETIME
		)`,
	); err != nil {
		return fmt.Errorf("failed to migrate quotes schema: %w", err)
	}

	if err := host.ProvideService("random", p.randomService); err != nil {
		return err
	}

	router := sdk.NewRouter()
	router.GET("/", p.handleList)
	router.GET("/random", p.handleRandom)
	router.POST("/", p.handleAdd)
	router.OPTIONS("/", func(c *gin.Context) {
		c.Header("Allow", "GET, POST, OPTIONS")
		c.Status(http.StatusNoContent)
	})
	host.RegisterRouter(router)

	if err := host.RegisterCommand(sdk.Command{
		Name:        "quote",
		Aliases:     []string{"q"},
		Description: "Say a random stored quote",
		Usage:       "!quote",
		Level:       sdk.LevelEveryone,
		Cooldown:    5 * time.Second,
		Enabled:     true,
		Handler:     p.cmdQuote,
	}); err != nil {
		return err
	}
	return host.RegisterCommand(sdk.Command{
		Name:        "addquote",
		Description: "Store a new quote",
		Usage:       "!addquote <text> [-- author]",
		Level:       sdk.LevelModerator,
		Cooldown:    0,
		Enabled:     true,
		Handler:     p.cmdAddQuote,
	})
}

func (p *Plugin) random(ctx context.Context) (*Quote, error) {
	var count int64
	if err := p.db.WithContext(ctx).Model(&Quote{}).Count(&count).Error; err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, gorm.ErrRecordNotFound
	}

	var quote Quote
	err := p.db.WithContext(ctx).Offset(rand.Intn(int(count))).Limit(1).Find(&quote).Error
	if err != nil {
		return nil, err
	}
	return &quote, nil
}

func (p *Plugin) add(ctx context.Context, text, author, addedBy string) (*Quote, error) {
	quote := &Quote{Text: text, Author: author, AddedBy: addedBy, CreatedAt: time.Now()}
	if err := p.db.WithContext(ctx).Create(quote).Error; err != nil {
		return nil, err
	}
	return quote, nil
}

// randomService lets other plugins pull a quote without knowing the schema.
func (p *Plugin) randomService(ctx context.Context, _ map[string]any) (map[string]any, error) {
	quote, err := p.random(ctx)
	if err == gorm.ErrRecordNotFound {
		return map[string]any{"found": false}, nil
	}
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"found":  true,
		"id":     quote.ID,
		"text":   quote.Text,
		"author": quote.Author,
	}, nil
}

func (p *Plugin) cmdQuote(ctx context.Context, cc sdk.CommandContext, _ sdk.Sender) (string, error) {
	quote, err := p.random(ctx)
	if err == gorm.ErrRecordNotFound {
		return "No quotes stored yet.", nil
	}
	if err != nil {
		return "", err
	}
	return formatQuote(quote), nil
}

func (p *Plugin) cmdAddQuote(ctx context.Context, cc sdk.CommandContext, _ sdk.Sender) (string, error) {
	if len(cc.Args) == 0 {
		return "Usage: !addquote <text> [-- author]", nil
	}

	text := strings.Join(cc.Args, " ")
	author := ""
	if idx := strings.LastIndex(text, "--"); idx > 0 {
		author = strings.TrimSpace(text[idx+2:])
		text = strings.TrimSpace(text[:idx])
	}

	quote, err := p.add(ctx, text, author, cc.User)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Quote #%d added.", quote.ID), nil
}

func (p *Plugin) handleList(c *gin.Context) {
	var all []Quote
	if err := p.db.WithContext(c.Request.Context()).Order("id").Find(&all).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load quotes"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"quotes": all})
}

func (p *Plugin) handleRandom(c *gin.Context) {
	quote, err := p.random(c.Request.Context())
	if err == gorm.ErrRecordNotFound {
		c.JSON(http.StatusNotFound, gin.H{"error": "no quotes stored"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load quote"})
		return
	}
	c.JSON(http.StatusOK, quote)
}

func (p *Plugin) handleAdd(c *gin.Context) {
	var req struct {
		Text   string `json:"text" binding:"required"`
		Author string `json:"author"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "text is required"})
		return
	}

	quote, err := p.add(c.Request.Context(), req.Text, req.Author, "api")
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store quote"})
		return
	}
	c.JSON(http.StatusCreated, quote)
}

func formatQuote(q *Quote) string {
	if q.Author != "" {
		return fmt.Sprintf("\"%s\" - %s", q.Text, q.Author)
	}
	return fmt.Sprintf("\"%s\"", q.Text)
}
