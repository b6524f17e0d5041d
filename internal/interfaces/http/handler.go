// @title           Bracket Engine API
// @version         1.0
// @description     Operator API for placing bracket trades on Binance USD-M futures, watching their OCO exit legs and reading market data.

// @contact.name   API Support

// @host      localhost:8080
// @BasePath  /api/v1

package http

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	_ "bracket-engine/docs"
	appinterfaces "bracket-engine/internal/application/interfaces"
	"bracket-engine/internal/domain/entity/trading"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

const apiBasePath = "/api/v1"

var (
	errMissingRange    = errors.New("from/to query params required")
	errMissingInterval = errors.New("interval query param required")
	errMissingSymbols  = errors.New("symbols query param required")
)

// Deps are the collaborators of the operator API. Cache may be nil.
type Deps struct {
	Executor   appinterfaces.TradeExecutor
	Pairs      appinterfaces.PairLister
	Orders     appinterfaces.OrderLister
	MarketData appinterfaces.MarketData

	Cache    *redis.Client
	CacheTTL time.Duration

	// Bracket percentages applied when a trade request omits them.
	DefaultStopLossPct   decimal.Decimal
	DefaultTakeProfitPct decimal.Decimal
}

type Handler struct {
	router *gin.Engine
	deps   Deps
	logger *logrus.Entry
}

var _ appinterfaces.HTTPHandler = (*Handler)(nil)

func NewHandler(deps Deps, logger *logrus.Logger) *Handler {
	router := gin.New()
	router.Use(gin.Recovery())

	h := &Handler{
		router: router,
		deps:   deps,
		logger: logger.WithField("component", "http"),
	}
	h.registerRoutes()
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

func (h *Handler) registerRoutes() {
	h.router.GET("/healthz", h.health)
	h.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	h.router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	api := h.router.Group(apiBasePath)
	{
		api.POST("/trades", h.executeTrade)
		api.GET("/pairs", h.listPairs)
		api.GET("/orders/:symbol/open", h.listOpenOrders)
	}

	markets := api.Group("/markets")
	if h.deps.Cache != nil {
		markets.Use(h.cacheMiddleware())
	}
	{
		markets.GET("/symbols", h.listSymbols)
		markets.GET("/prices", h.currentPrices)
		markets.GET("/:symbol/candles", h.historicalCandles)
		markets.GET("/:symbol/candles/stored", h.storedCandles)
		markets.GET("/:symbol/ticks", h.recentTicks)
	}
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":        "ok",
		"tracked_pairs": len(h.deps.Pairs.Pairs()),
	})
}

// Trading handlers

type tradePayload struct {
	Symbol        string           `json:"symbol" binding:"required" example:"BTCUSDT"`
	Side          string           `json:"side" binding:"required" example:"LONG"`
	Quantity      decimal.Decimal  `json:"quantity" swaggertype:"string" example:"0.01"`
	EntryPrice    *decimal.Decimal `json:"entry_price" swaggertype:"string"`
	StopLossPct   *decimal.Decimal `json:"stop_loss_pct" swaggertype:"string" example:"2"`
	TakeProfitPct *decimal.Decimal `json:"take_profit_pct" swaggertype:"string" example:"4"`
}

func (p tradePayload) toDomain(defaultSL, defaultTP decimal.Decimal) (trading.TradeRequest, error) {
	side, err := trading.ParseSide(p.Side)
	if err != nil {
		return trading.TradeRequest{}, err
	}
	req := trading.TradeRequest{
		Symbol:        p.Symbol,
		Side:          side,
		Quantity:      p.Quantity,
		EntryPrice:    p.EntryPrice,
		StopLossPct:   defaultSL,
		TakeProfitPct: defaultTP,
	}
	if p.StopLossPct != nil {
		req.StopLossPct = *p.StopLossPct
	}
	if p.TakeProfitPct != nil {
		req.TakeProfitPct = *p.TakeProfitPct
	}
	return req, nil
}

// @Summary      Execute bracket trade
// @Description  Place a market entry followed by reduce-only stop-loss and take-profit legs. Missing percentages fall back to the configured defaults.
// @Tags         trades
// @Accept       json
// @Produce      json
// @Param        trade  body      tradePayload  true  "Trade request"
// @Success      201    {object}  trading.TrackedOrderPair
// @Failure      400    {object}  map[string]string
// @Failure      500    {object}  map[string]interface{}
// @Failure      502    {object}  map[string]interface{}
// @Router       /trades [post]
func (h *Handler) executeTrade(c *gin.Context) {
	var payload tradePayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		writeError(c, http.StatusBadRequest, err)
		return
	}
	req, err := payload.toDomain(h.deps.DefaultStopLossPct, h.deps.DefaultTakeProfitPct)
	if err != nil {
		writeError(c, http.StatusBadRequest, err)
		return
	}

	pair, err := h.deps.Executor.ExecuteTrade(c.Request.Context(), req)
	if err != nil {
		h.writeTradeError(c, pair, err)
		return
	}
	c.JSON(http.StatusCreated, pair)
}

// writeTradeError keeps the order ids in the response whenever orders were
// placed, so the operator can act on them.
func (h *Handler) writeTradeError(c *gin.Context, pair *trading.TrackedOrderPair, err error) {
	log := h.logger.WithError(err)

	var partial *trading.PartialBracketError
	switch {
	case pair != nil:
		log.Error("trade placed but not tracked")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "pair": pair})
	case errors.As(err, &partial):
		log.Error("partial bracket")
		c.JSON(http.StatusBadGateway, gin.H{
			"error":          err.Error(),
			"entry_order_id": partial.EntryOrderID,
			"placed_legs":    partial.PlacedLegs,
		})
	default:
		writeError(c, statusFor(err), err)
	}
}

// @Summary      List tracked pairs
// @Description  Active bracket pairs watched by the OCO monitor, oldest first
// @Tags         trades
// @Produce      json
// @Success      200  {array}  trading.TrackedOrderPair
// @Router       /pairs [get]
func (h *Handler) listPairs(c *gin.Context) {
	c.JSON(http.StatusOK, h.deps.Pairs.Pairs())
}

// @Summary      List open orders
// @Description  Open orders on the venue for a symbol
// @Tags         orders
// @Produce      json
// @Param        symbol  path      string  true  "Symbol"
// @Success      200     {array}   trading.Order
// @Failure      502     {object}  map[string]string
// @Router       /orders/{symbol}/open [get]
func (h *Handler) listOpenOrders(c *gin.Context) {
	symbol := strings.ToUpper(c.Param("symbol"))
	orders, err := h.deps.Orders.ListOpenOrders(c.Request.Context(), symbol)
	if err != nil {
		writeError(c, http.StatusBadGateway, err)
		return
	}
	c.JSON(http.StatusOK, orders)
}

// Market data handlers

// @Summary      List symbols
// @Description  Symbols currently trading on the venue
// @Tags         markets
// @Produce      json
// @Success      200  {array}   string
// @Failure      502  {object}  map[string]string
// @Router       /markets/symbols [get]
func (h *Handler) listSymbols(c *gin.Context) {
	symbols, err := h.deps.MarketData.ListSymbols(c.Request.Context())
	if err != nil {
		writeError(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusOK, symbols)
}

// @Summary      Current prices
// @Description  Latest prices for a comma separated list of symbols
// @Tags         markets
// @Produce      json
// @Param        symbols  query     string  true  "Comma separated symbols"
// @Success      200      {object}  map[string]string
// @Failure      400      {object}  map[string]string
// @Router       /markets/prices [get]
//
// currentPrices takes a comma separated symbols list. Symbols whose price
// cannot be fetched are left out of the response.
func (h *Handler) currentPrices(c *gin.Context) {
	var symbols []string
	for _, s := range strings.Split(c.Query("symbols"), ",") {
		if s = strings.TrimSpace(s); s != "" {
			symbols = append(symbols, s)
		}
	}
	if len(symbols) == 0 {
		writeError(c, http.StatusBadRequest, errMissingSymbols)
		return
	}
	prices, err := h.deps.MarketData.CurrentPrices(c.Request.Context(), symbols)
	if err != nil {
		writeError(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusOK, prices)
}

// @Summary      Historical candles
// @Description  Klines from the venue
// @Tags         markets
// @Produce      json
// @Param        symbol    path      string  true   "Symbol"
// @Param        interval  query     string  true   "Kline interval, e.g. 5m"
// @Param        limit     query     int     false  "Max candles (default 100, max 1500)"
// @Param        start     query     string  false  "Start time (RFC3339)"
// @Param        end       query     string  false  "End time (RFC3339)"
// @Success      200       {array}   marketdata.Candle
// @Failure      400       {object}  map[string]string
// @Failure      502       {object}  map[string]string
// @Router       /markets/{symbol}/candles [get]
func (h *Handler) historicalCandles(c *gin.Context) {
	interval := c.Query("interval")
	if interval == "" {
		writeError(c, http.StatusBadRequest, errMissingInterval)
		return
	}
	limit, err := parseOptionalInt(c, "limit")
	if err != nil {
		writeError(c, http.StatusBadRequest, err)
		return
	}
	start, err := parseOptionalTime(c, "start")
	if err != nil {
		writeError(c, http.StatusBadRequest, err)
		return
	}
	end, err := parseOptionalTime(c, "end")
	if err != nil {
		writeError(c, http.StatusBadRequest, err)
		return
	}
	candles, err := h.deps.MarketData.HistoricalCandles(c.Request.Context(), c.Param("symbol"), interval, start, end, limit)
	if err != nil {
		writeError(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusOK, candles)
}

// @Summary      Stored candles
// @Description  Candles from Postgres in a time range
// @Tags         markets
// @Produce      json
// @Param        symbol    path      string  true  "Symbol"
// @Param        interval  query     string  true  "Kline interval"
// @Param        from      query     string  true  "From (RFC3339)"
// @Param        to        query     string  true  "To (RFC3339)"
// @Success      200       {array}   marketdata.Candle
// @Failure      400       {object}  map[string]string
// @Failure      503       {object}  map[string]string
// @Router       /markets/{symbol}/candles/stored [get]
func (h *Handler) storedCandles(c *gin.Context) {
	interval := c.Query("interval")
	if interval == "" {
		writeError(c, http.StatusBadRequest, errMissingInterval)
		return
	}
	from, to, err := parseTimeRange(c)
	if err != nil {
		writeError(c, http.StatusBadRequest, err)
		return
	}
	candles, err := h.deps.MarketData.StoredCandles(c.Request.Context(), c.Param("symbol"), interval, from, to)
	if err != nil {
		writeError(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusOK, candles)
}

// @Summary      Recorded ticks
// @Description  Most recent recorded price ticks, newest first
// @Tags         markets
// @Produce      json
// @Param        symbol    path      string  true   "Symbol"
// @Param        interval  query     string  false  "Kline interval"
// @Param        limit     query     int     false  "Max ticks"
// @Success      200       {array}   marketdata.PriceTick
// @Failure      400       {object}  map[string]string
// @Failure      503       {object}  map[string]string
// @Router       /markets/{symbol}/ticks [get]
func (h *Handler) recentTicks(c *gin.Context) {
	limit, err := parseOptionalInt(c, "limit")
	if err != nil {
		writeError(c, http.StatusBadRequest, err)
		return
	}
	ticks, err := h.deps.MarketData.RecentTicks(c.Request.Context(), c.Param("symbol"), c.Query("interval"), limit)
	if err != nil {
		writeError(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusOK, ticks)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, trading.ErrInvalidInput), errors.Is(err, trading.ErrInvalidSide):
		return http.StatusBadRequest
	case errors.Is(err, trading.ErrStorageDisabled):
		return http.StatusServiceUnavailable
	case errors.Is(err, trading.ErrPriceUnavailable),
		errors.Is(err, trading.ErrGateway),
		errors.Is(err, trading.ErrPartialBracket):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, status int, err error) {
	if err == nil {
		status = http.StatusInternalServerError
		err = errors.New("unknown error")
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// cacheMiddleware caches successful GET responses in Redis.
func (h *Handler) cacheMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodGet {
			c.Next()
			return
		}

		key := cacheKey(c)
		ctx := c.Request.Context()

		if cached, err := h.deps.Cache.Get(ctx, key).Bytes(); err == nil {
			c.Data(http.StatusOK, "application/json; charset=utf-8", cached)
			c.Abort()
			return
		} else if !errors.Is(err, redis.Nil) {
			h.logger.WithError(err).Debug("cache read failed")
		}

		recorder := &responseRecorder{
			ResponseWriter: c.Writer,
			status:         http.StatusOK,
			body:           &bytes.Buffer{},
		}
		c.Writer = recorder

		c.Next()

		if recorder.status >= 200 && recorder.status < 300 && recorder.body.Len() > 0 {
			if err := h.deps.Cache.Set(ctx, key, recorder.body.Bytes(), h.deps.CacheTTL).Err(); err != nil {
				h.logger.WithError(err).Debug("cache write failed")
			}
		}
	}
}

type responseRecorder struct {
	gin.ResponseWriter
	body   *bytes.Buffer
	status int
}

func (r *responseRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseRecorder) Write(data []byte) (int, error) {
	if len(data) > 0 {
		r.body.Write(data)
	}
	return r.ResponseWriter.Write(data)
}

// cacheKey uses the concrete path so each symbol gets its own entry.
func cacheKey(c *gin.Context) string {
	return fmt.Sprintf("cache:%s:%s?%s", c.Request.Method, c.Request.URL.Path, c.Request.URL.RawQuery)
}

func parseOptionalInt(c *gin.Context, key string) (int, error) {
	value := c.Query(key)
	if value == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s query param must be an integer", key)
	}
	return n, nil
}

func parseOptionalTime(c *gin.Context, key string) (*time.Time, error) {
	value := c.Query(key)
	if value == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return nil, fmt.Errorf("%s query param must be RFC3339", key)
	}
	return &t, nil
}

func parseTimeRange(c *gin.Context) (time.Time, time.Time, error) {
	fromStr := c.Query("from")
	toStr := c.Query("to")
	if fromStr == "" || toStr == "" {
		return time.Time{}, time.Time{}, errMissingRange
	}
	from, err := time.Parse(time.RFC3339, fromStr)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("from: %w", err)
	}
	to, err := time.Parse(time.RFC3339, toStr)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("to: %w", err)
	}
	return from, to, nil
}
