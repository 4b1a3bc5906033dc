package handler

import (
	"context"
	"database/sql"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/hydrex-protocol/bribe-batcher/internal/events"
	"github.com/redis/go-redis/v9"
)

const readinessTimeout = 2 * time.Second

func RegisterHealthRoutes(app fiber.Router, sqlDB *sql.DB, rdb *redis.Client, broker *events.RabbitMQ) {
	app.Get("/livez", LivezHandler())
	app.Get("/readyz", ReadyzHandler(sqlDB, rdb, broker))
}

func LivezHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"status": "ok",
		})
	}
}

// ReadyzHandler checks the journal database, the lock store, and the event
// broker. The broker is optional and reported but never fails readiness:
// events are best-effort, so a broker outage must not take the API out of
// rotation.
func ReadyzHandler(sqlDB *sql.DB, rdb *redis.Client, broker *events.RabbitMQ) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.Context(), readinessTimeout)
		defer cancel()

		pgErr := sqlDB.PingContext(ctx)
		redisErr := rdb.Ping(ctx).Err()

		pgStatus := "ok"
		if pgErr != nil {
			pgStatus = "down"
		}
		redisStatus := "ok"
		if redisErr != nil {
			redisStatus = "down"
		}
		brokerStatus := "disabled"
		if broker != nil {
			brokerStatus = "ok"
			if !broker.Healthy() {
				brokerStatus = "down"
			}
		}

		status := "ready"
		statusCode := fiber.StatusOK
		if pgErr != nil || redisErr != nil {
			status = "not_ready"
			statusCode = fiber.StatusServiceUnavailable
		}

		return c.Status(statusCode).JSON(fiber.Map{
			"status": status,
			"checks": fiber.Map{
				"postgres": pgStatus,
				"redis":    redisStatus,
				"rabbitmq": brokerStatus,
			},
		})
	}
}
