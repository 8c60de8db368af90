// Package api exposes the report pipeline over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	apperrors "adreport/internal/errors"
	"adreport/internal/log"
	"adreport/internal/metric"
	"adreport/internal/model"
	"adreport/internal/report"
)

// Runner executes one daily report request.
type Runner interface {
	Run(ctx context.Context, req report.Request) (*report.Result, error)
}

var _ Runner = (*report.Pipeline)(nil)

// RunRequest is the POST /api body. Update and Save default to true when
// omitted.
type RunRequest struct {
	AdNetwork string `json:"ad_network" binding:"required"`
	Date      string `json:"date" binding:"required"`
	Update    *bool  `json:"update"`
	Save      *bool  `json:"save"`
}

type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

type RowResponse struct {
	Date        string          `json:"date"`
	App         string          `json:"app"`
	Platform    string          `json:"platform"`
	Requests    int64           `json:"requests"`
	Impressions int64           `json:"impressions"`
	Revenue     decimal.Decimal `json:"revenue"`
}

type RawResponse struct {
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows"`
}

type RunResponse struct {
	RequestID   string             `json:"request_id"`
	AdNetwork   string             `json:"ad_network"`
	Date        string             `json:"date"`
	URL         string             `json:"url"`
	Saved       bool               `json:"saved"`
	Valid       bool               `json:"valid"`
	Currency    string             `json:"currency,omitempty"`
	Diagnostics report.Diagnostics `json:"diagnostics,omitempty"`
	Rows        []RowResponse      `json:"rows,omitempty"`
	Raw         *RawResponse       `json:"raw,omitempty"`
}

type Options struct {
	Logger  log.Logger
	Metrics *metric.Metrics
	Now     func() time.Time
}

type Server struct {
	runner  Runner
	logger  log.Logger
	metrics *metric.Metrics
	now     func() time.Time
}

func NewServer(runner Runner, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = log.New()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Server{
		runner:  runner,
		logger:  opts.Logger,
		metrics: opts.Metrics,
		now:     opts.Now,
	}
}

// Router builds the gin engine with all routes and middleware.
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(RequestID(), AccessLog(s.logger, s.metrics), Recovery(s.logger))

	router.GET("/health", s.health)
	router.POST("/api", s.runReport)
	if s.metrics != nil {
		router.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}
	return router
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   s.now().Unix(),
	})
}

func (s *Server) runReport(c *gin.Context) {
	var body RunRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:     string(apperrors.CategoryRequest),
			Code:      "INVALID_BODY",
			RequestID: requestIDFrom(c),
		})
		return
	}

	req := report.Request{
		AdNetwork: body.AdNetwork,
		Date:      body.Date,
		Update:    boolOr(body.Update, true),
		Save:      boolOr(body.Save, true),
	}
	result, err := s.runner.Run(c.Request.Context(), req)
	if err != nil {
		c.JSON(statusFor(err), ErrorResponse{
			Error:     string(apperrors.GetCategory(err)),
			Code:      apperrors.GetCode(err),
			RequestID: requestIDFrom(c),
		})
		return
	}
	c.JSON(http.StatusOK, newRunResponse(requestIDFrom(c), result))
}

func newRunResponse(requestID string, result *report.Result) RunResponse {
	resp := RunResponse{
		RequestID:   requestID,
		AdNetwork:   result.Network.Name,
		Date:        result.Date.Format(model.StorageDateLayout),
		URL:         result.URL,
		Saved:       result.Saved,
		Valid:       result.Valid(),
		Currency:    string(result.Currency),
		Diagnostics: result.Diagnostics,
	}
	if !result.Saved {
		resp.Raw = &RawResponse{Columns: result.Raw.Columns, Rows: result.Raw.Rows}
		return resp
	}
	resp.Rows = make([]RowResponse, 0, len(result.Rows))
	for _, row := range result.Rows {
		resp.Rows = append(resp.Rows, RowResponse{
			Date:        row.Date.Format(model.StorageDateLayout),
			App:         row.App,
			Platform:    row.Platform,
			Requests:    row.Requests,
			Impressions: row.Impressions,
			Revenue:     row.Revenue.Round(2),
		})
	}
	return resp
}

func statusFor(err error) int {
	switch apperrors.GetCategory(err) {
	case apperrors.CategoryRequest:
		return http.StatusBadRequest
	case apperrors.CategoryNetwork:
		if apperrors.GetCode(err) == apperrors.CodeUnknownNetwork {
			return http.StatusNotFound
		}
		return http.StatusUnprocessableEntity
	case apperrors.CategoryFetch:
		return http.StatusBadGateway
	case apperrors.CategorySchema, apperrors.CategoryCurrency, apperrors.CategoryAggregation:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func boolOr(v *bool, fallback bool) bool {
	if v == nil {
		return fallback
	}
	return *v
}
