package internal

import (
	"errors"
	"fmt"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"time"
)

// PaymentService is what the HTTP layer needs from the relay.
type PaymentService interface {
	Enqueue(r PaymentRequest) error
	Summary(from, to time.Time) Summary
	Health() MetricsSnapshot
}

func NewApp(svc PaymentService, logger zerolog.Logger) *fiber.App {
	log := logger.With().Str("component", "http").Logger()
	app := fiber.New(fiber.Config{
		AppName:               "payrelay",
		DisableStartupMessage: true,
		JSONEncoder:           json.Marshal,
		JSONDecoder:           json.Unmarshal,
	})

	app.Post("/payments", func(c *fiber.Ctx) error {
		r, err := decodePayment(c.Body())
		if err != nil {
			log.Debug().Err(err).Msg("rejected payment")
			return c.SendStatus(fiber.StatusBadRequest)
		}

		err = svc.Enqueue(r)
		switch {
		case err == nil:
			return c.SendStatus(fiber.StatusAccepted)
		case errors.Is(err, ErrDuplicate), errors.Is(err, ErrQueueFull):
			return c.SendStatus(fiber.StatusTooManyRequests)
		case errors.Is(err, ErrInvalidPayment):
			return c.SendStatus(fiber.StatusBadRequest)
		default:
			log.Error().Err(err).Str("correlationId", r.CorrelationId).Msg("enqueue failed")
			return c.SendStatus(fiber.StatusInternalServerError)
		}
	})

	app.Get("/payments-summary", func(c *fiber.Ctx) error {
		from, err := ParseTimeOrDefault(c.Query("from"), time.Time{})
		if err != nil {
			return c.Status(fiber.StatusBadRequest).SendString("invalid from")
		}
		to, err := ParseTimeOrDefault(c.Query("to"), time.Time{})
		if err != nil {
			return c.Status(fiber.StatusBadRequest).SendString("invalid to")
		}
		return c.JSON(svc.Summary(from, to))
	})

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(svc.Health())
	})

	return app
}

func decodePayment(body []byte) (PaymentRequest, error) {
	var in paymentInput
	if err := json.Unmarshal(body, &in); err != nil {
		return PaymentRequest{}, errors.Join(ErrInvalidPayment, err)
	}
	if _, err := uuid.Parse(in.CorrelationId); err != nil {
		return PaymentRequest{}, errors.Join(ErrInvalidPayment, err)
	}
	if !in.Amount.Valid() {
		return PaymentRequest{}, fmt.Errorf("%w: amount %s out of range", ErrInvalidPayment, in.Amount)
	}
	return PaymentRequest{CorrelationId: in.CorrelationId, Amount: in.Amount}, nil
}
