package httpgin

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/huynhbt/raffle-go/internal/domain"
	redisrepo "github.com/huynhbt/raffle-go/internal/repository/redis"
	"github.com/huynhbt/raffle-go/internal/service"
	"github.com/huynhbt/raffle-go/internal/service/inventory"
	"github.com/huynhbt/raffle-go/internal/service/lifecycle"
	"github.com/huynhbt/raffle-go/internal/service/messages"
	"github.com/huynhbt/raffle-go/internal/ticketimg"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

func NewRouter(
	svcs *service.Services,
	sessions *redisrepo.SessionStore,
	idem *redisrepo.IdempotencyStore,
	renderer *ticketimg.Renderer,
	logger *slog.Logger,
	middlewares ...gin.HandlerFunc,
) *gin.Engine {
	r := gin.New()

	r.Use(
		gin.Recovery(),
		LoggingMiddleware(logger),
		RequestIDMiddleware(),
		MetricsMiddleware(),
		CORS(),
		SessionMiddleware(sessions, int((24 * time.Hour).Seconds())),
	)
	for _, m := range middlewares {
		if m != nil {
			r.Use(m)
		}
	}

	// Swagger UI
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// observability
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// ticket browsing
	r.GET("/tickets", handleListTickets(svcs))
	r.GET("/tickets/availability", handleAvailability(svcs))
	r.GET("/tickets/:number/image", handleTicketImage(svcs, renderer))

	// reservation lifecycle
	r.POST("/tickets/lock", handleLockTickets(svcs, sessions, idem))
	r.GET("/checkout", handleCheckout(svcs, sessions))
	r.POST("/checkout/confirm", handleConfirmPurchase(svcs, sessions))
	r.POST("/checkout/cancel", handleCancelLock(svcs, sessions))
	r.GET("/checkout/tickets.zip", handleDownloadSold(svcs, renderer))
	r.POST("/purchase/cancel", handleCancelSale(svcs, sessions))

	// message board
	r.POST("/messages", handleSubmitMessage(svcs))
	r.GET("/messages", handleListMessages(svcs))

	// Admin API
	// TODO: add admin auth middleware before exposing outside the LAN
	admin := r.Group("/admin")
	{
		admin.POST("/tickets/init", handleInitTickets(svcs))
		admin.POST("/tickets/release", handleReleaseTickets(svcs))
		admin.POST("/tickets/mark-sold", handleMarkSold(svcs))
		admin.GET("/tickets/export", handleExportTickets(svcs))
	}

	return r
}

// --- Handlers with Swagger annotations ---

// @Summary  List tickets (paginated)
// @Param    page   query  int  false "page number, 1-based"
// @Param    limit  query  int  false "page size"
// @Success  200  {array}   domain.Ticket
// @Router   /tickets [get]
func handleListTickets(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		// read-path reclamation of stale locks
		_, _ = svcs.Lifecycle.Sweep(c.Request.Context())

		// clamp before computing the offset so page math matches page size
		limit := svcs.Inventory.PageSize(parseIntDefault(c.Query("limit"), 0))
		page := parseIntDefault(c.Query("page"), 1)
		if page < 1 {
			page = 1
		}

		tickets, err := svcs.Inventory.ListTickets(c.Request.Context(), limit, (page-1)*limit)
		if err != nil {
			respondErr(c, err)
			return
		}
		writeJSONWithCache(c, http.StatusOK, tickets, "public, max-age=5", true)
	}
}

// @Summary  Availability counters
// @Success  200  {object}  domain.TicketCounts
// @Router   /tickets/availability [get]
func handleAvailability(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		_, _ = svcs.Lifecycle.Sweep(c.Request.Context())

		counts, err := svcs.Inventory.Counts(c.Request.Context())
		if err != nil {
			respondErr(c, err)
			return
		}
		writeJSONWithCache(c, http.StatusOK, counts, "public, max-age=5", true)
	}
}

// @Summary  Lock tickets (idempotent via Idempotency-Key)
// @Param    req body  LockTicketsRequest true "payload"
// @Success  201 {object} LockTicketsResponse
// @Failure  400 {object} ErrorResponse
// @Failure  409 {object} ErrorResponse "tickets unavailable"
// @Failure  429 {object} ErrorResponse "rate limited"
// @Router   /tickets/lock [post]
func handleLockTickets(
	svcs *service.Services,
	sessions *redisrepo.SessionStore,
	idem *redisrepo.IdempotencyStore,
) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req LockTicketsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		idemKey := strings.TrimSpace(c.GetHeader("Idempotency-Key"))
		var idemStorageKey string
		if idem != nil && idemKey != "" {
			idemStorageKey = redisrepo.KeyIdemLock(idemKey)

			if payload, ok, _ := idem.GetResult(c.Request.Context(), idemStorageKey); ok {
				c.Header("Idempotency-Key", idemKey)
				c.Data(http.StatusCreated, "application/json; charset=utf-8", []byte(payload))
				return
			}

			locked, err := idem.AcquireLock(c.Request.Context(), idemStorageKey, 60*time.Second)
			if err != nil {
				respondErr(c, err)
				return
			}
			if !locked {
				if payload, ok, _ := idem.GetResult(c.Request.Context(), idemStorageKey); ok {
					c.Header("Idempotency-Key", idemKey)
					c.Data(http.StatusCreated, "application/json; charset=utf-8", []byte(payload))
					return
				}
				c.Header("Retry-After", "1")
				c.JSON(http.StatusConflict, ErrorResponse{Error: "idempotency key in progress"})
				return
			}
		}

		sess := sessionFrom(c)
		rlKey := "ip:" + c.ClientIP()

		info, err := svcs.Lifecycle.RequestLock(c.Request.Context(), sess, req.Numbers, rlKey)
		if err != nil {
			if idemStorageKey != "" && idem != nil {
				_ = idem.Release(c.Request.Context(), idemStorageKey)
			}
			respondErr(c, err)
			return
		}

		saveSession(c, sessions, sess)

		resp := lockResponse(info, time.Now())

		if idemStorageKey != "" && idem != nil {
			b, _ := json.Marshal(resp)
			_ = idem.SaveResult(c.Request.Context(), idemStorageKey, string(b))
			c.Header("Idempotency-Key", idemKey)
		}

		c.JSON(http.StatusCreated, resp)
	}
}

// @Summary  Checkout view for the active reservation
// @Success  200 {object} CheckoutResponse
// @Failure  409 {object} ErrorResponse "no reservation / expired"
// @Router   /checkout [get]
func handleCheckout(svcs *service.Services, sessions *redisrepo.SessionStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess := sessionFrom(c)

		info, err := svcs.Lifecycle.Checkout(c.Request.Context(), sess)
		if err != nil {
			// the expired path clears the lock set; persist that
			saveSession(c, sessions, sess)
			respondErr(c, err)
			return
		}

		c.JSON(http.StatusOK, checkoutResponse(info))
	}
}

// @Summary  Confirm purchase of the locked tickets
// @Param    req body  ConfirmPurchaseRequest true "buyer info"
// @Success  201 {object} PurchaseResponse
// @Failure  409 {object} ErrorResponse "expired"
// @Router   /checkout/confirm [post]
func handleConfirmPurchase(svcs *service.Services, sessions *redisrepo.SessionStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ConfirmPurchaseRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		sess := sessionFrom(c)

		result, err := svcs.Lifecycle.ConfirmPurchase(c.Request.Context(), sess, req.Name, req.Phone)
		saveSession(c, sessions, sess)
		if err != nil {
			respondErr(c, err)
			return
		}

		c.JSON(http.StatusCreated, PurchaseResponse{
			Numbers:     result.Numbers,
			TotalAmount: result.Amount.String(),
			QRDataURL:   result.QRDataURL,
		})
	}
}

// @Summary  Cancel the active reservation
// @Success  200 {object} CancelResponse
// @Router   /checkout/cancel [post]
func handleCancelLock(svcs *service.Services, sessions *redisrepo.SessionStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess := sessionFrom(c)
		released := int64(len(sess.Locked))

		if err := svcs.Lifecycle.CancelLock(c.Request.Context(), sess); err != nil {
			respondErr(c, err)
			return
		}

		saveSession(c, sessions, sess)
		c.JSON(http.StatusOK, CancelResponse{Released: released})
	}
}

// @Summary  Cancel the last completed purchase
// @Success  200 {object} CancelResponse
// @Router   /purchase/cancel [post]
func handleCancelSale(svcs *service.Services, sessions *redisrepo.SessionStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess := sessionFrom(c)
		reverted := int64(len(sess.LastSold))

		if err := svcs.Lifecycle.CancelSale(c.Request.Context(), sess); err != nil {
			respondErr(c, err)
			return
		}

		saveSession(c, sessions, sess)
		c.JSON(http.StatusOK, CancelResponse{Released: reverted})
	}
}

// @Summary  Download a sold ticket as PNG
// @Param    number  path  int  true  "Ticket number"
// @Produce  png
// @Success  200
// @Failure  404 {object} ErrorResponse
// @Failure  409 {object} ErrorResponse "ticket not sold"
// @Router   /tickets/{number}/image [get]
func handleTicketImage(svcs *service.Services, renderer *ticketimg.Renderer) gin.HandlerFunc {
	return func(c *gin.Context) {
		number, ok := parseIntParam(c, "number")
		if !ok {
			return
		}

		t, err := svcs.Inventory.Ticket(c.Request.Context(), number)
		if err != nil {
			respondErr(c, err)
			return
		}

		if t.Status != domain.TicketSold {
			c.JSON(http.StatusConflict, ErrorResponse{Error: "ticket not sold"})
			return
		}

		img, err := renderer.Render(*t)
		if err != nil {
			respondErr(c, err)
			return
		}

		c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="ticket_%03d.png"`, number))
		c.Data(http.StatusOK, "image/png", img)
	}
}

// @Summary  Download the last purchase's tickets as a zip of PNGs
// @Produce  octet-stream
// @Success  200
// @Failure  409 {object} ErrorResponse "no purchase in session"
// @Router   /checkout/tickets.zip [get]
func handleDownloadSold(svcs *service.Services, renderer *ticketimg.Renderer) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess := sessionFrom(c)
		if len(sess.LastSold) == 0 {
			c.JSON(http.StatusConflict, ErrorResponse{Error: "no purchase in session"})
			return
		}

		tickets, err := svcs.Inventory.Fetch(c.Request.Context(), sess.LastSold)
		if err != nil {
			respondErr(c, err)
			return
		}

		sold := tickets[:0]
		for _, t := range tickets {
			if t.Status == domain.TicketSold {
				sold = append(sold, t)
			}
		}
		if len(sold) == 0 {
			c.JSON(http.StatusConflict, ErrorResponse{Error: "tickets no longer sold"})
			return
		}

		archive, err := renderer.Archive(sold)
		if err != nil {
			respondErr(c, err)
			return
		}

		c.Header("Content-Disposition", `attachment; filename="tickets.zip"`)
		c.Data(http.StatusOK, "application/zip", archive)
	}
}

// @Summary  Leave a message
// @Param    req body  SubmitMessageRequest true "payload"
// @Success  201 {object} SubmitMessageResponse
// @Router   /messages [post]
func handleSubmitMessage(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req SubmitMessageRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		public := true
		if req.IsPublic != nil {
			public = *req.IsPublic
		}

		id, err := svcs.Messages.Submit(c.Request.Context(), req.Name, req.Phone, req.Message, public)
		if err != nil {
			respondErr(c, err)
			return
		}

		c.JSON(http.StatusCreated, SubmitMessageResponse{MessageID: id})
	}
}

// @Summary  List public messages
// @Param    limit  query  int  false "max messages"
// @Success  200 {array} domain.Message
// @Router   /messages [get]
func handleListMessages(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := parseIntDefault(c.Query("limit"), 50)

		msgs, err := svcs.Messages.ListPublic(c.Request.Context(), limit)
		if err != nil {
			respondErr(c, err)
			return
		}

		writeJSONWithCache(c, http.StatusOK, msgs, "public, max-age=30", true)
	}
}

// @Summary  Ensure the ticket pool exists
// @Success  200 {object} CountResponse
// @Router   /admin/tickets/init [post]
func handleInitTickets(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		created, err := svcs.Inventory.EnsureTickets(c.Request.Context())
		if err != nil {
			respondErr(c, err)
			return
		}

		c.JSON(http.StatusOK, CountResponse{Affected: created})
	}
}

// @Summary  Force tickets back to available
// @Param    req body  TicketNumbersRequest true "payload"
// @Success  200 {object} CountResponse
// @Router   /admin/tickets/release [post]
func handleReleaseTickets(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req TicketNumbersRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		affected, err := svcs.Inventory.Release(c.Request.Context(), req.Numbers)
		if err != nil {
			respondErr(c, err)
			return
		}

		c.JSON(http.StatusOK, CountResponse{Affected: affected})
	}
}

// @Summary  Force-mark tickets as sold
// @Param    req body  MarkSoldRequest true "payload"
// @Success  200 {object} CountResponse
// @Router   /admin/tickets/mark-sold [post]
func handleMarkSold(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req MarkSoldRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		affected, err := svcs.Inventory.MarkSold(
			c.Request.Context(),
			req.Numbers,
			domain.Buyer{Name: req.Name, Phone: req.Phone},
		)
		if err != nil {
			respondErr(c, err)
			return
		}

		c.JSON(http.StatusOK, CountResponse{Affected: affected})
	}
}

// @Summary  Export all tickets as xlsx
// @Produce  octet-stream
// @Success  200
// @Router   /admin/tickets/export [get]
func handleExportTickets(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		f, err := svcs.Inventory.Export(c.Request.Context())
		if err != nil {
			respondErr(c, err)
			return
		}

		buf, err := f.WriteToBuffer()
		if err != nil {
			respondErr(c, err)
			return
		}

		c.Header("Content-Disposition", `attachment; filename="tickets.xlsx"`)
		c.Data(
			http.StatusOK,
			"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
			buf.Bytes(),
		)
	}
}

// --- Helpers ---

func parseIntParam(c *gin.Context, name string) (int, bool) {
	v, err := strconv.Atoi(c.Param(name))
	if err != nil {
		badRequest(c, "invalid "+name)
		return 0, false
	}
	return v, true
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: msg})
}

func respondErr(c *gin.Context, err error) {
	if err == nil {
		c.Status(http.StatusNoContent)
		return
	}

	var unavailable *lifecycle.TicketsUnavailableError
	if errors.As(err, &unavailable) {
		c.JSON(http.StatusConflict, ErrorResponse{
			Error:   "tickets no longer available",
			Numbers: unavailable.Numbers,
		})
		return
	}

	var notFound *lifecycle.TicketsNotFoundError
	if errors.As(err, &notFound) {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "tickets not found",
			Numbers: notFound.Numbers,
		})
		return
	}

	var rateLimited *lifecycle.RateLimitedError
	if errors.As(err, &rateLimited) {
		retry := max(1, int64(rateLimited.RetryAfter.Seconds()))
		c.Header("Retry-After", strconv.FormatInt(retry, 10))
		c.JSON(http.StatusTooManyRequests, ErrorResponse{Error: "rate limited"})
		return
	}

	switch {
	// lifecycle service
	case errors.Is(err, lifecycle.ErrReservationExpired):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "reservation expired", Expired: true})
	case errors.Is(err, lifecycle.ErrNoActiveLock):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "no active reservation"})
	case errors.Is(err, lifecycle.ErrNoTicketsSelected):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "no tickets selected"})
	case errors.Is(err, lifecycle.ErrMissingBuyerInfo):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "buyer name and phone are required"})
	// inventory service
	case errors.Is(err, inventory.ErrTicketNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "ticket not found"})
	case errors.Is(err, inventory.ErrNoTicketsGiven):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "no ticket numbers given"})
	// messages service
	case errors.Is(err, messages.ErrIncompleteMessage):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "name, phone and message are required"})
	default:
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
	}
}
