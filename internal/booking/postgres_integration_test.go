//go:build integration

package booking_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"

	"ms-booking/internal/apperrors"
	"ms-booking/internal/booking"
	bookingdb "ms-booking/internal/booking/db"
	"ms-booking/internal/checkin"
	checkindb "ms-booking/internal/checkin/db"
	"ms-booking/internal/config"
	"ms-booking/internal/database"
	"ms-booking/internal/database/migrations"
	"ms-booking/internal/kafka"
	"ms-booking/internal/lock"
	"ms-booking/internal/logger"
	"ms-booking/internal/models"
	"ms-booking/internal/slots"
	slotsdb "ms-booking/internal/slots/db"
)

func startPostgres(t *testing.T) *bun.DB {
	t.Helper()
	ctx := context.Background()

	pg, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "booking",
				"POSTGRES_PASSWORD": "booking",
				"POSTGRES_DB":       "booking",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").WithOccurrence(2).WithStartupTimeout(time.Minute),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = pg.Terminate(ctx) })

	host, err := pg.Host(ctx)
	require.NoError(t, err)
	port, err := pg.MappedPort(ctx, "5432")
	require.NoError(t, err)

	db, err := database.Open(ctx, config.DatabaseConfig{
		Driver:         "postgres",
		DSN:            fmt.Sprintf("postgres://booking:booking@%s:%s/booking?sslmode=disable", host, port.Port()),
		MaxOpenConns:   20,
		MaxIdleConns:   20,
		MaxLifetime:    time.Minute,
		ConnectRetries: 5,
	}, logger.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, migrations.NewRunner(db.DB, logger.Discard()).Up())
	return db
}

func startRedis(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	rc, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = rc.Terminate(ctx) })

	host, err := rc.Host(ctx)
	require.NoError(t, err)
	port, err := rc.MappedPort(ctx, "6379")
	require.NoError(t, err)
	return host + ":" + port.Port()
}

func TestPostgres_ConcurrentReserveAndScan(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping Postgres integration test in short mode")
	}
	ctx := context.Background()
	db := startPostgres(t)

	sport := &models.Sport{Name: "Nets", PricePerHour: decimal.NewFromInt(500), Duration: 60, MaxPlayers: 4, IsActive: true}
	_, err := db.NewInsert().Model(sport).Exec(ctx)
	require.NoError(t, err)
	slot := &models.Slot{SportID: sport.ID, Date: "2025-06-02", StartTime: "18:00", EndTime: "19:00", Price: sport.PricePerHour, MaxPlayers: 4}
	_, err = db.NewInsert().Model(slot).Exec(ctx)
	require.NoError(t, err)

	store := &bookingdb.DB{Bun: db}
	signer := checkin.NewTokenSigner("integration")
	events := kafka.NewEmitter(&kafka.Recorder{}, topics, logger.Discard())
	ledger := booking.NewLedger(store, signer, events, logger.Discard(), time.UTC)
	ledger.Now = func() time.Time { return today }

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners []*models.Booking
		losers  int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			b, err := ledger.Reserve(ctx, models.Actor{UserID: fmt.Sprintf("user-%d", i)}, slot.ID)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				winners = append(winners, b)
				return
			}
			assert.ErrorIs(t, err, apperrors.ErrSlotAlreadyBooked)
			losers++
		}(i)
	}
	wg.Wait()
	require.Len(t, winners, 1)
	assert.Equal(t, 19, losers)

	b := winners[0]
	ok, err := store.MarkVerified(ctx, b.ID, "pay_pg", today)
	require.NoError(t, err)
	require.True(t, ok)

	owner := models.Actor{UserID: b.UserID}
	tickets, err := ledger.AddPlayers(ctx, owner, b.ID, []models.PlayerInput{{Name: "Asha", Email: "asha@example.com"}})
	require.NoError(t, err)

	redisLocker, closeRedis, err := lock.New(ctx, config.RedisConfig{Enabled: true, Addr: startRedis(t), LockTTL: 5 * time.Second, LockWait: 2 * time.Second}, logger.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = closeRedis() })

	engine := checkin.NewEngine(&checkindb.DB{Bun: db}, signer, redisLocker, events, logger.Discard(), time.UTC)
	engine.Now = func() time.Time { return today }

	var accepted int
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := engine.Scan(ctx, models.ScanRequest{Token: tickets[0].Token}); err == nil {
				mu.Lock()
				accepted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 2, accepted)

	logs, err := engine.Logs(ctx, owner, tickets[0].Player.ID)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, "IN", logs[0].Action)
	assert.Equal(t, "OUT", logs[1].Action)
}

func TestPostgres_ConcurrentBlackoutsForOneDate(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping Postgres integration test in short mode")
	}
	ctx := context.Background()
	db := startPostgres(t)

	sport := &models.Sport{Name: "Turf", PricePerHour: decimal.NewFromInt(900), Duration: 60, MaxPlayers: 10, IsActive: true}
	_, err := db.NewInsert().Model(sport).Exec(ctx)
	require.NoError(t, err)

	catalog := slots.NewCatalog(&slotsdb.DB{Bun: db}, logger.Discard())
	admin := models.Actor{UserID: "admin", IsStaff: true}

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		added int
		dupes int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := catalog.AddBlackout(ctx, admin, sport.ID, models.BlackoutRequest{Date: "2025-08-15"})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				added++
				return
			}
			assert.ErrorIs(t, err, apperrors.ErrDuplicateBlackout)
			dupes++
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, added)
	assert.Equal(t, 9, dupes)
}
