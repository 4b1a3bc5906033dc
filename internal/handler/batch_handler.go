package handler

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/hydrex-protocol/bribe-batcher/internal/auth"
	"github.com/hydrex-protocol/bribe-batcher/internal/domain"
	"github.com/hydrex-protocol/bribe-batcher/internal/observability"
	"github.com/hydrex-protocol/bribe-batcher/internal/service"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

type BatchService interface {
	Create(ctx context.Context, params service.CreateParams) (*domain.Batch, error)
	PopulateRecipients(ctx context.Context, batchID uint64, config domain.RecipientConfig, executeImmediately bool) (*domain.Batch, error)
	ExecuteBatches(ctx context.Context, batchIDs []uint64) ([]domain.Batch, uint64, error)
	Stop(ctx context.Context, batchID uint64) (*domain.Batch, error)
	SweepStopped(ctx context.Context, batchID uint64, to string) (*big.Int, error)
	Get(batchID uint64) (*domain.Batch, error)
	ListActivePaginated(offset, limit int) ([]domain.Batch, int)
	ListByDepositor(depositor string) []domain.Batch
	CurrentEpoch() uint64
	Executions(ctx context.Context, batchID uint64) ([]domain.Execution, error)
}

type BatchHandler struct {
	service BatchService
}

func NewBatchHandler(service BatchService) (*BatchHandler, error) {
	if service == nil {
		return nil, fmt.Errorf("batch service is required")
	}
	return &BatchHandler{service: service}, nil
}

// RegisterBatchRoutes mounts the batch API. Reads are unrestricted; every
// mutation requires a verified role.
func RegisterBatchRoutes(router fiber.Router, service BatchService, verifier *auth.Verifier) error {
	h, err := NewBatchHandler(service)
	if err != nil {
		return err
	}
	if verifier == nil {
		return fmt.Errorf("auth verifier is required")
	}

	v1 := router.Group("/v1")

	v1.Get("/epoch", h.GetEpoch)
	v1.Get("/batches/active", h.ListActive)
	v1.Get("/batches/:id", h.GetBatch)
	v1.Get("/batches/:id/executions", h.ListExecutions)
	v1.Get("/depositors/:depositor/batches", h.ListByDepositor)

	authed := v1.Group("", verifier.Authenticate())
	authed.Post("/batches", h.CreateBatch)
	authed.Post("/batches/execute", auth.RequireRole(auth.RoleOperator), h.ExecuteBatches)
	authed.Post("/batches/:id/recipients", auth.RequireRole(auth.RoleOperator), h.PopulateRecipients)
	authed.Post("/batches/:id/stop", auth.RequireRole(auth.RoleAdmin), h.StopBatch)
	authed.Post("/batches/:id/sweep", auth.RequireRole(auth.RoleAdmin), h.SweepBatch)

	return nil
}

type recipientItem struct {
	Handle    string `json:"handle"`
	WeightBps uint32 `json:"weightBps"`
}

type createBatchRequest struct {
	RewardToken        string          `json:"rewardToken"`
	TotalAmount        string          `json:"totalAmount"`
	TotalPeriods       uint64          `json:"totalPeriods"`
	Recipients         []recipientItem `json:"recipients,omitempty"`
	ExecuteImmediately bool            `json:"executeImmediately,omitempty"`
}

type populateRecipientsRequest struct {
	Recipients         []recipientItem `json:"recipients"`
	ExecuteImmediately bool            `json:"executeImmediately"`
}

type executeBatchesRequest struct {
	BatchIDs []uint64 `json:"batchIds"`
}

type sweepBatchRequest struct {
	To string `json:"to"`
}

type batchResponse struct {
	ID                uint64          `json:"id"`
	Depositor         string          `json:"depositor"`
	RewardToken       string          `json:"rewardToken"`
	TotalAmount       string          `json:"totalAmount"`
	TotalPeriods      uint64          `json:"totalPeriods"`
	PeriodsExecuted   uint64          `json:"periodsExecuted"`
	StartTime         time.Time       `json:"startTime"`
	LastExecutedEpoch *uint64         `json:"lastExecutedEpoch,omitempty"`
	Status            string          `json:"status"`
	Recipients        []recipientItem `json:"recipients"`
	SweptAt           *time.Time      `json:"sweptAt,omitempty"`
	CreatedAt         time.Time       `json:"createdAt"`
	UpdatedAt         time.Time       `json:"updatedAt"`
}

type listBatchesResponse struct {
	Data []batchResponse `json:"data"`
	Meta listMeta        `json:"meta"`
}

type listMeta struct {
	Offset int `json:"offset"`
	Limit  int `json:"limit"`
	Total  int `json:"total"`
}

type executeBatchesResponse struct {
	Epoch   uint64          `json:"epoch"`
	Batches []batchResponse `json:"batches"`
}

type executionResponse struct {
	ID        string    `json:"id"`
	BatchID   uint64    `json:"batchId"`
	Epoch     uint64    `json:"epoch"`
	Period    uint64    `json:"period"`
	Amount    string    `json:"amount"`
	CreatedAt time.Time `json:"createdAt"`
}

type sweepBatchResponse struct {
	BatchID uint64 `json:"batchId"`
	To      string `json:"to"`
	Amount  string `json:"amount"`
}

type epochResponse struct {
	Epoch uint64 `json:"epoch"`
}

func (h *BatchHandler) CreateBatch(c *fiber.Ctx) error {
	claims, ok := auth.CallerFromCtx(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	var req createBatchRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	amount, err := parseAmount(req.TotalAmount)
	if err != nil {
		return toHTTPError(err)
	}

	created, err := h.service.Create(requestContext(c), service.CreateParams{
		Depositor:          claims.Subject,
		RewardToken:        strings.TrimSpace(req.RewardToken),
		TotalAmount:        amount,
		TotalPeriods:       req.TotalPeriods,
		Recipients:         toRecipientConfig(req.Recipients),
		ExecuteImmediately: req.ExecuteImmediately,
	})
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusCreated).JSON(toBatchResponse(created))
}

func (h *BatchHandler) PopulateRecipients(c *fiber.Ctx) error {
	batchID, err := parseBatchID(c)
	if err != nil {
		return toHTTPError(err)
	}

	var req populateRecipientsRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	updated, err := h.service.PopulateRecipients(requestContext(c), batchID, toRecipientConfig(req.Recipients), req.ExecuteImmediately)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(toBatchResponse(updated))
}

func (h *BatchHandler) ExecuteBatches(c *fiber.Ctx) error {
	var req executeBatchesRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	executed, epoch, err := h.service.ExecuteBatches(requestContext(c), req.BatchIDs)
	if err != nil {
		return toHTTPError(err)
	}

	responses := make([]batchResponse, 0, len(executed))
	for i := range executed {
		responses = append(responses, toBatchResponse(&executed[i]))
	}

	// The epoch the call actually gated on, not a re-read that may have
	// rolled over since.
	return c.Status(fiber.StatusOK).JSON(executeBatchesResponse{
		Epoch:   epoch,
		Batches: responses,
	})
}

func (h *BatchHandler) StopBatch(c *fiber.Ctx) error {
	batchID, err := parseBatchID(c)
	if err != nil {
		return toHTTPError(err)
	}

	stopped, err := h.service.Stop(requestContext(c), batchID)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(toBatchResponse(stopped))
}

func (h *BatchHandler) SweepBatch(c *fiber.Ctx) error {
	batchID, err := parseBatchID(c)
	if err != nil {
		return toHTTPError(err)
	}

	// The body is optional; without it the remainder goes to the depositor.
	var req sweepBatchRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
	}

	to := strings.TrimSpace(req.To)
	amount, err := h.service.SweepStopped(requestContext(c), batchID, to)
	if err != nil {
		return toHTTPError(err)
	}

	if to == "" {
		if batch, getErr := h.service.Get(batchID); getErr == nil {
			to = batch.Depositor
		}
	}

	return c.Status(fiber.StatusOK).JSON(sweepBatchResponse{
		BatchID: batchID,
		To:      to,
		Amount:  amount.String(),
	})
}

func (h *BatchHandler) GetBatch(c *fiber.Ctx) error {
	batchID, err := parseBatchID(c)
	if err != nil {
		return toHTTPError(err)
	}

	batch, err := h.service.Get(batchID)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(toBatchResponse(batch))
}

func (h *BatchHandler) ListActive(c *fiber.Ctx) error {
	offset := c.QueryInt("offset", 0)
	limit := c.QueryInt("limit", defaultListLimit)

	if offset < 0 {
		return toHTTPError(fmt.Errorf("%w: offset must be >= 0", domain.ErrValidation))
	}
	if limit < 1 || limit > maxListLimit {
		return toHTTPError(fmt.Errorf("%w: limit must be between 1 and %d", domain.ErrValidation, maxListLimit))
	}

	batches, total := h.service.ListActivePaginated(offset, limit)
	responses := make([]batchResponse, 0, len(batches))
	for i := range batches {
		responses = append(responses, toBatchResponse(&batches[i]))
	}

	return c.Status(fiber.StatusOK).JSON(listBatchesResponse{
		Data: responses,
		Meta: listMeta{Offset: offset, Limit: limit, Total: total},
	})
}

func (h *BatchHandler) ListByDepositor(c *fiber.Ctx) error {
	depositor := strings.TrimSpace(c.Params("depositor"))
	if depositor == "" {
		return toHTTPError(fmt.Errorf("%w: depositor is required", domain.ErrValidation))
	}

	batches := h.service.ListByDepositor(depositor)
	responses := make([]batchResponse, 0, len(batches))
	for i := range batches {
		responses = append(responses, toBatchResponse(&batches[i]))
	}

	return c.Status(fiber.StatusOK).JSON(listBatchesResponse{
		Data: responses,
		Meta: listMeta{Offset: 0, Limit: len(responses), Total: len(responses)},
	})
}

func (h *BatchHandler) ListExecutions(c *fiber.Ctx) error {
	batchID, err := parseBatchID(c)
	if err != nil {
		return toHTTPError(err)
	}

	executions, err := h.service.Executions(requestContext(c), batchID)
	if err != nil {
		return toHTTPError(err)
	}

	responses := make([]executionResponse, 0, len(executions))
	for _, execution := range executions {
		responses = append(responses, executionResponse{
			ID:        execution.ID,
			BatchID:   execution.BatchID,
			Epoch:     execution.Epoch,
			Period:    execution.Period,
			Amount:    execution.Amount.String(),
			CreatedAt: execution.CreatedAt,
		})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"data": responses})
}

func (h *BatchHandler) GetEpoch(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(epochResponse{Epoch: h.service.CurrentEpoch()})
}

// requestContext carries the request id into the service layer so published
// events and logs can be correlated with the originating call.
func requestContext(c *fiber.Ctx) context.Context {
	ctx := c.UserContext()
	if ctx == nil {
		ctx = context.Background()
	}
	if rid, ok := c.Locals(requestid.ConfigDefault.ContextKey).(string); ok && rid != "" {
		ctx = observability.WithCorrelationID(ctx, rid)
	}
	return ctx
}

func parseBatchID(c *fiber.Ctx) (uint64, error) {
	raw := strings.TrimSpace(c.Params("id"))
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("%w: invalid batch id %q", domain.ErrValidation, raw)
	}
	return id, nil
}

// parseAmount reads a base-10 integer amount in token base units.
func parseAmount(raw string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, fmt.Errorf("%w: totalAmount is required", domain.ErrValidation)
	}

	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("%w: totalAmount must be a base-10 integer", domain.ErrValidation)
	}
	return amount, nil
}

func toRecipientConfig(items []recipientItem) domain.RecipientConfig {
	if len(items) == 0 {
		return nil
	}
	config := make(domain.RecipientConfig, 0, len(items))
	for _, item := range items {
		config = append(config, domain.Recipient{
			Handle:    strings.TrimSpace(item.Handle),
			WeightBps: item.WeightBps,
		})
	}
	return config
}

func toBatchResponse(b *domain.Batch) batchResponse {
	if b == nil {
		return batchResponse{}
	}

	recipients := make([]recipientItem, 0, len(b.Recipients))
	for _, r := range b.Recipients {
		recipients = append(recipients, recipientItem{Handle: r.Handle, WeightBps: r.WeightBps})
	}

	amount := "0"
	if b.TotalAmount != nil {
		amount = b.TotalAmount.String()
	}

	return batchResponse{
		ID:                b.ID,
		Depositor:         b.Depositor,
		RewardToken:       b.RewardToken,
		TotalAmount:       amount,
		TotalPeriods:      b.TotalPeriods,
		PeriodsExecuted:   b.PeriodsExecuted,
		StartTime:         b.StartTime,
		LastExecutedEpoch: b.LastExecutedEpoch,
		Status:            b.Status.String(),
		Recipients:        recipients,
		SweptAt:           b.SweptAt,
		CreatedAt:         b.CreatedAt,
		UpdatedAt:         b.UpdatedAt,
	}
}

func toHTTPError(err error) error {
	switch {
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrInvalidPeriods),
		errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrInvalidRecipientConfig),
		errors.Is(err, domain.ErrInvalidWeights):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrBatchNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrBatchCompleted),
		errors.Is(err, domain.ErrBatchAlreadyStopped),
		errors.Is(err, domain.ErrBatchNotActive),
		errors.Is(err, domain.ErrTooEarlyToExecute),
		errors.Is(err, domain.ErrNothingToSweep):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrUnauthorized):
		return fiber.NewError(fiber.StatusUnauthorized, err.Error())
	default:
		return err
	}
}
