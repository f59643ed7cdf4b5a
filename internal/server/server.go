// Package server exposes the dashboard and trigger API over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ahting/billsplit/constants"
	"github.com/ahting/billsplit/internal/common"
	"github.com/ahting/billsplit/internal/export"
	"github.com/ahting/billsplit/internal/money"
	"github.com/ahting/billsplit/internal/runner"
	"github.com/ahting/billsplit/internal/store"
)

// Server serves bill state and lets an operator trigger lifecycle runs.
type Server struct {
	bills    store.BillStore
	run      *runner.Runner
	exporter *export.Service
	logger   *zap.Logger
	engine   *gin.Engine
}

func New(bills store.BillStore, run *runner.Runner, exporter *export.Service, logger *zap.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	s := &Server{
		bills:    bills,
		run:      run,
		exporter: exporter,
		logger:   logger,
		engine:   gin.New(),
	}
	s.engine.Use(gin.Recovery(), s.requestLogger())
	s.routes()
	return s
}

func (s *Server) routes() {
	s.engine.GET("/healthz", s.health)

	api := s.engine.Group("/api")
	{
		api.GET("/bills", s.listBills)
		api.GET("/bills/:id", s.getBill)
		api.GET("/summary", s.summary)
		api.GET("/export", s.exportXLSX)
		api.POST("/process-bills", s.processBills)
		api.POST("/check-payments", s.checkPayments)
		api.POST("/run", s.runFull)
	}
}

// Handler returns the http.Handler for mounting in an http.Server.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// ListenAndServe blocks until ctx is done, then drains in-flight requests.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server.listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Info("http.request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Int64("elapsed_ms", time.Since(start).Milliseconds()),
		)
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) listBills(c *gin.Context) {
	bills, err := s.bills.ListAll(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	if status := c.Query("status"); status != "" {
		filtered := bills[:0]
		for _, b := range bills {
			if string(b.Status) == status {
				filtered = append(filtered, b)
			}
		}
		bills = filtered
	}
	c.JSON(http.StatusOK, gin.H{"bills": bills, "count": len(bills)})
}

func (s *Server) getBill(c *gin.Context) {
	id := c.Param("id")
	bill, err := s.bills.Fetch(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	log, err := s.bills.ListLog(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"bill": bill, "log": log})
}

type summaryResponse struct {
	TotalBills      int    `json:"total_bills"`
	OpenBills       int    `json:"open_bills"`
	PaidBills       int    `json:"paid_bills"`
	OutstandingOwed string `json:"outstanding_owed"`
	TotalCollected  string `json:"total_collected"`
	TotalBilled     string `json:"total_billed"`
	LatestDueDate   string `json:"latest_due_date,omitempty"`
	OldestOpenDue   string `json:"oldest_open_due,omitempty"`
}

func (s *Server) summary(c *gin.Context) {
	bills, err := s.bills.ListAll(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	var resp summaryResponse
	var outstanding, collected, billed money.Cents
	for _, b := range bills {
		resp.TotalBills++
		billed += b.Amount
		switch {
		case b.Status == constants.BillStatusPaid:
			resp.PaidBills++
			if b.PaymentAmount != nil {
				collected += *b.PaymentAmount
			} else {
				collected += b.CounterpartyPortion
			}
		case b.Status.Open():
			resp.OpenBills++
			outstanding += b.CounterpartyPortion
			if resp.OldestOpenDue == "" || b.DueDate.Format("2006-01-02") < resp.OldestOpenDue {
				resp.OldestOpenDue = b.DueDate.Format("2006-01-02")
			}
		}
		if d := b.DueDate.Format("2006-01-02"); d > resp.LatestDueDate {
			resp.LatestDueDate = d
		}
	}
	resp.OutstandingOwed = outstanding.Dollars()
	resp.TotalCollected = collected.Dollars()
	resp.TotalBilled = billed.Dollars()
	c.JSON(http.StatusOK, resp)
}

func (s *Server) exportXLSX(c *gin.Context) {
	data, err := s.exporter.ExportBillsXLSX(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	name := fmt.Sprintf("bills-%s.xlsx", time.Now().Format("20060102"))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", data)
}

func (s *Server) processBills(c *gin.Context) {
	opts, ok := s.bindOptions(c)
	if !ok {
		return
	}
	sum := runner.Summary{Errors: []string{}}
	if err := s.run.ProcessBills(c.Request.Context(), opts, &sum); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sum)
}

func (s *Server) checkPayments(c *gin.Context) {
	opts, ok := s.bindOptions(c)
	if !ok {
		return
	}
	sum := runner.Summary{Errors: []string{}}
	if err := s.run.CheckPayments(c.Request.Context(), opts, &sum); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sum)
}

func (s *Server) runFull(c *gin.Context) {
	opts, ok := s.bindOptions(c)
	if !ok {
		return
	}
	sum, err := s.run.Run(c.Request.Context(), opts)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "summary": sum})
		return
	}
	c.JSON(http.StatusOK, sum)
}

// bindOptions reads optional run options from the request body. An empty
// body means defaults.
func (s *Server) bindOptions(c *gin.Context) (runner.Options, bool) {
	var opts runner.Options
	if c.Request.ContentLength == 0 {
		return opts, true
	}
	if err := c.ShouldBindJSON(&opts); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid request body: %v", err)})
		return opts, false
	}
	return opts, true
}

func (s *Server) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, common.ErrNotFound) {
		status = http.StatusNotFound
	} else if errors.Is(err, common.ErrInvalidInput) {
		status = http.StatusBadRequest
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error("http.error", zap.String("path", c.Request.URL.Path), zap.Error(err))
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
