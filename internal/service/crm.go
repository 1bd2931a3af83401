package service

import (
	"context"
	"fmt"
	"time"

	"minicrm/internal/domain"
	"minicrm/internal/store"
	"minicrm/internal/util"
)

type CRMStore interface {
	InsertCustomer(ctx context.Context, in store.CustomerInsert) (int64, error)
	ListCustomers(ctx context.Context) ([]store.Customer, error)
	DeleteCustomer(ctx context.Context, customerID int64) (bool, error)
	InsertOrder(ctx context.Context, in store.OrderInsert) (int64, error)
	ListOrders(ctx context.Context) ([]store.Order, error)
	ListOrdersByCustomer(ctx context.Context, customerID int64) ([]store.Order, error)
}

// CRMService covers the plain record-keeping surface: customers and orders.
type CRMService struct {
	Store        CRMStore
	StoreTimeout time.Duration
}

func (s *CRMService) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := s.StoreTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return context.WithTimeout(ctx, timeout)
}

func parseDate(s string) (time.Time, error) {
	for _, layout := range []string{"2006-01-02", time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: unparseable date %q", domain.ErrValidation, s)
}

func (s *CRMService) AddCustomer(ctx context.Context, req domain.AddCustomerRequest) (int64, error) {
	if err := req.Validate(); err != nil {
		return 0, err
	}
	visit, err := parseDate(req.LastVisitDate)
	if err != nil {
		return 0, err
	}
	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	return s.Store.InsertCustomer(sctx, store.CustomerInsert{
		Name:          req.Name,
		Email:         req.Email,
		Phone:         req.Phone,
		TotalSpending: req.TotalSpending,
		LastVisitDate: visit,
		Now:           util.NowUTC(),
	})
}

func (s *CRMService) ListCustomers(ctx context.Context) ([]store.Customer, error) {
	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	return s.Store.ListCustomers(sctx)
}

func (s *CRMService) DeleteCustomer(ctx context.Context, customerID int64) error {
	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	found, err := s.Store.DeleteCustomer(sctx, customerID)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("customer %d: %w", customerID, domain.ErrNotFound)
	}
	return nil
}

func (s *CRMService) AddOrder(ctx context.Context, req domain.AddOrderRequest) (int64, error) {
	if err := req.Validate(); err != nil {
		return 0, err
	}
	date, err := parseDate(req.OrderDate)
	if err != nil {
		return 0, err
	}
	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	return s.Store.InsertOrder(sctx, store.OrderInsert{
		CustomerID:  req.CustomerID,
		OrderDate:   date,
		OrderAmount: req.OrderAmount,
	})
}

func (s *CRMService) ListOrders(ctx context.Context) ([]store.Order, error) {
	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	return s.Store.ListOrders(sctx)
}

func (s *CRMService) ListOrdersByCustomer(ctx context.Context, customerID int64) ([]store.Order, error) {
	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	return s.Store.ListOrdersByCustomer(sctx, customerID)
}
