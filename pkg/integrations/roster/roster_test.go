package roster

import (
	"context"
	"fmt"
	"testing"

	"github.com/andreibyf/aishacrm-2-sub004/pkg/integrations/crm"
	"github.com/andreibyf/aishacrm-2-sub004/pkg/models"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func seededStore() *crm.MemoryStore {
	store := crm.NewMemoryStore()
	store.SeedUsers("t-1",
		crm.User{ID: "u-2", Name: "Bo", Active: true, Team: "sales"},
		crm.User{ID: "u-1", Name: "Al", Active: true, Team: "sales"},
		crm.User{ID: "u-3", Name: "Cy", Active: true, Team: "support"},
		crm.User{ID: "u-4", Name: "Di", Active: false, Team: "sales"},
	)

	return store
}

func TestRoundRobin_RotatesActiveUsersInIDOrder(t *testing.T) {
	ctx := context.Background()
	r := New(seededStore(), nil)

	var picked []string

	for range 4 {
		user, err := r.RoundRobin(ctx, "t-1", models.EntityLead, "")
		require.NoError(t, err)

		picked = append(picked, user.ID)
	}

	assert.Equal(t, []string{"u-1", "u-2", "u-3", "u-1"}, picked)
}

func TestRoundRobin_TeamAndEntityHaveIndependentCursors(t *testing.T) {
	ctx := context.Background()
	r := New(seededStore(), nil)

	first, err := r.RoundRobin(ctx, "t-1", models.EntityLead, "sales")
	require.NoError(t, err)
	assert.Equal(t, "u-1", first.ID)

	other, err := r.RoundRobin(ctx, "t-1", models.EntityOpportunity, "sales")
	require.NoError(t, err)
	assert.Equal(t, "u-1", other.ID)

	second, err := r.RoundRobin(ctx, "t-1", models.EntityLead, "sales")
	require.NoError(t, err)
	assert.Equal(t, "u-2", second.ID)
}

func TestRoundRobin_NoUsers(t *testing.T) {
	r := New(crm.NewMemoryStore(), nil)

	_, err := r.RoundRobin(context.Background(), "t-1", models.EntityLead, "")
	require.ErrorIs(t, err, ErrNoUsers)
}

func TestLeastAssigned(t *testing.T) {
	ctx := context.Background()
	store := seededStore()
	store.Seed("t-1", models.EntityLead, crm.Record{"id": "l-1", crm.FieldAssignedTo: "u-1"})
	store.Seed("t-1", models.EntityLead, crm.Record{"id": "l-2", crm.FieldAssignedTo: "u-1"})
	store.Seed("t-1", models.EntityLead, crm.Record{"id": "l-3", crm.FieldAssignedTo: "u-3"})

	r := New(store, nil)

	user, err := r.LeastAssigned(ctx, "t-1", models.EntityLead, "")
	require.NoError(t, err)
	assert.Equal(t, "u-2", user.ID)

	user, err = r.LeastAssigned(ctx, "t-1", models.EntityLead, "support")
	require.NoError(t, err)
	assert.Equal(t, "u-3", user.ID)
}

func TestRedisCursor(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping redis container test in short mode")
	}

	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = container.Terminate(ctx)
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: fmt.Sprintf("%s:%s", host, port.Port())})
	t.Cleanup(func() {
		_ = client.Close()
	})

	cursor := NewRedisCursor(client)

	first, err := cursor.Next(ctx, "t-1:lead")
	require.NoError(t, err)
	second, err := cursor.Next(ctx, "t-1:lead")
	require.NoError(t, err)

	assert.Equal(t, uint64(1), first)
	assert.Equal(t, uint64(2), second)

	r := New(seededStore(), cursor)

	user, err := r.RoundRobin(ctx, "t-1", models.EntityContact, "")
	require.NoError(t, err)
	assert.Equal(t, "u-1", user.ID)
}
