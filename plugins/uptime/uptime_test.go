package uptime

import (
	"context"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/castbot/castbot/internal/command"
	"github.com/castbot/castbot/internal/plugin"
	"github.com/castbot/castbot/plugins/quotes"
	"github.com/castbot/castbot/sdk"
)

func newManager(t *testing.T) (*plugin.Manager, *command.Registry) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	commands := command.NewRegistry(hclog.NewNullLogger())
	return plugin.NewManager(db, nil, commands, hclog.NewNullLogger()), commands
}

func TestInitAfterQuotesDependency(t *testing.T) {
	m, commands := newManager(t)

	// Registered before its dependency; ordering must still hold.
	require.NoError(t, m.Register(New()))
	require.NoError(t, m.Register(quotes.New()))

	ctx := context.Background()
	require.NoError(t, m.InitAll(ctx))

	info, ok := m.Get(ID)
	require.True(t, ok)
	assert.Equal(t, "initialized", info.State)

	_, ok = commands.Resolve("uptime")
	assert.True(t, ok)
}

func TestInitFailsWithoutQuotes(t *testing.T) {
	m, _ := newManager(t)
	require.NoError(t, m.Register(New()))

	err := m.InitAll(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, plugin.ErrMissingDep)
}

func TestUptimeCommandReply(t *testing.T) {
	m, commands := newManager(t)
	require.NoError(t, m.Register(quotes.New()))
	require.NoError(t, m.Register(New()))

	ctx := context.Background()
	require.NoError(t, m.InitAll(ctx))
	m.StartAll(ctx)

	cmd, ok := commands.Resolve("uptime")
	require.True(t, ok)

	reply, err := cmd.Handler(ctx, sdk.CommandContext{
		Channel: "#teststream",
		User:    "viewer",
		Level:   sdk.LevelEveryone,
	}, nil)
	require.NoError(t, err)
	assert.Contains(t, reply, "Up for")
}

func TestUptimeReplyIncludesQuoteWhenAvailable(t *testing.T) {
	m, commands := newManager(t)
	require.NoError(t, m.Register(quotes.New()))
	require.NoError(t, m.Register(New()))

	ctx := context.Background()
	require.NoError(t, m.InitAll(ctx))
	m.StartAll(ctx)

	add, ok := commands.Resolve("addquote")
	require.True(t, ok)
	_, err := add.Handler(ctx, sdk.CommandContext{
		Channel: "#teststream", User: "mod", Level: sdk.LevelModerator,
		Args: []string{"stay", "hydrated"},
	}, nil)
	require.NoError(t, err)

	cmd, _ := commands.Resolve("uptime")
	reply, err := cmd.Handler(ctx, sdk.CommandContext{Channel: "#teststream", User: "viewer"}, nil)
	require.NoError(t, err)
	assert.Contains(t, reply, "stay hydrated")
}

func TestFormatDuration(t *testing.T) {
	cases := []struct {
		seconds int
		want    string
	}{
		{5, "5s"},
		{65, "1m 5s"},
		{3700, "1h 1m 40s"},
	}
	for _, tc := range cases {
		got := formatDuration(time.Duration(tc.seconds) * time.Second)
		assert.Equal(t, tc.want, got)
	}
}
