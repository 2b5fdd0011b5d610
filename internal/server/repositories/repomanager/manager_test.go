package repomanager

import (
	"context"
	"testing"

	"github.com/dmitrijs2005/gophchat/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Memory(t *testing.T) {
	for _, dsn := range []string{"", "memory://"} {
		m, err := New(context.Background(), dsn)
		require.NoError(t, err, dsn)
		_, ok := m.(*MemoryRepositoryManager)
		assert.True(t, ok, "dsn %q gave %T", dsn, m)
	}
}

func TestNew_UnsupportedScheme(t *testing.T) {
	_, err := New(context.Background(), "redis://localhost:6379")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unsupported database scheme "redis"`)
}

func TestNew_InvalidDSN(t *testing.T) {
	_, err := New(context.Background(), "::not a url")
	require.Error(t, err)
}

func TestMemoryRepositoryManager_SharesRepositories(t *testing.T) {
	m := NewMemoryRepositoryManager()
	ctx := context.Background()

	require.NoError(t, m.RunMigrations(ctx))

	u, err := m.Users().Create(ctx, &models.User{FirstName: "A", LastName: "B", Email: "a@b.c"})
	require.NoError(t, err)
	got, err := m.Users().GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "a@b.c", got.Email)

	assert.Same(t, m.Messages(), m.Messages())
	require.NoError(t, m.Close(ctx))
}

func TestMongoDatabaseName(t *testing.T) {
	cases := map[string]string{
		"mongodb://localhost:27017":                         DefaultMongoDatabase,
		"mongodb://localhost:27017/":                        DefaultMongoDatabase,
		"mongodb://user:pw@localhost:27017/chat":            "chat",
		"mongodb+srv://cluster.example.net/chat?w=majority": "chat",
	}
	for dsn, want := range cases {
		assert.Equal(t, want, mongoDatabaseName(dsn), dsn)
	}
}
