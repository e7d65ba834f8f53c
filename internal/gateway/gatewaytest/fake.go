// Package gatewaytest provides a scriptable in-memory Gateway for tests.
package gatewaytest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/kimhsiao/fieldsync/internal/gateway"
	"github.com/kimhsiao/fieldsync/internal/models"
)

// Call is one recorded gateway invocation.
type Call struct {
	Op      string
	Payload any
}

// Fake records every call and answers from the configured funcs. A nil func
// accepts the call.
type Fake struct {
	mu    sync.Mutex
	calls []Call
	next  int

	VisitFunc    func(ctx context.Context, v models.Visit) error
	LocationFunc func(ctx context.Context, l models.LocationLog) error
	SaleFunc     func(ctx context.Context, s models.Sale) error
	SchemeFunc   func(ctx context.Context, s models.Scheme) error

	Doctors   []models.Doctor
	Products  []models.Product
	Stockists []models.Stockist
	ListErr   error
}

// New returns a Fake that accepts everything.
func New() *Fake {
	return &Fake{}
}

func (f *Fake) record(op string, payload any) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, Call{Op: op, Payload: payload})
	f.next++
	return fmt.Sprintf("%s-%d", op, f.next)
}

// Calls returns a copy of the recorded calls.
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// CallCount returns how many calls of op were made.
func (f *Fake) CallCount(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.Op == op {
			n++
		}
	}
	return n
}

// VisitDoctors returns the doctor ids of recorded CreateVisit calls in order.
func (f *Fake) VisitDoctors() []string {
	var out []string
	for _, c := range f.Calls() {
		if v, ok := c.Payload.(models.Visit); ok {
			out = append(out, v.DoctorID)
		}
	}
	return out
}

// CreateVisit implements gateway.Gateway.
func (f *Fake) CreateVisit(ctx context.Context, v models.Visit) (gateway.Receipt, error) {
	id := f.record("CreateVisit", v)
	if f.VisitFunc != nil {
		if err := f.VisitFunc(ctx, v); err != nil {
			return gateway.Receipt{}, err
		}
	}
	return gateway.Receipt{ID: id}, nil
}

// CreateLocationLog implements gateway.Gateway.
func (f *Fake) CreateLocationLog(ctx context.Context, l models.LocationLog) (gateway.Receipt, error) {
	id := f.record("CreateLocationLog", l)
	if f.LocationFunc != nil {
		if err := f.LocationFunc(ctx, l); err != nil {
			return gateway.Receipt{}, err
		}
	}
	return gateway.Receipt{ID: id}, nil
}

// CreateSale implements gateway.Gateway.
func (f *Fake) CreateSale(ctx context.Context, s models.Sale) (gateway.Receipt, error) {
	id := f.record("CreateSale", s)
	if f.SaleFunc != nil {
		if err := f.SaleFunc(ctx, s); err != nil {
			return gateway.Receipt{}, err
		}
	}
	return gateway.Receipt{ID: id}, nil
}

// CreateScheme implements gateway.Gateway.
func (f *Fake) CreateScheme(ctx context.Context, s models.Scheme) (gateway.Receipt, error) {
	id := f.record("CreateScheme", s)
	if f.SchemeFunc != nil {
		if err := f.SchemeFunc(ctx, s); err != nil {
			return gateway.Receipt{}, err
		}
	}
	return gateway.Receipt{ID: id}, nil
}

// ListDoctors implements gateway.Gateway.
func (f *Fake) ListDoctors(ctx context.Context) ([]models.Doctor, error) {
	f.record("ListDoctors", nil)
	return f.Doctors, f.ListErr
}

// ListProducts implements gateway.Gateway.
func (f *Fake) ListProducts(ctx context.Context) ([]models.Product, error) {
	f.record("ListProducts", nil)
	return f.Products, f.ListErr
}

// ListStockists implements gateway.Gateway.
func (f *Fake) ListStockists(ctx context.Context) ([]models.Stockist, error) {
	f.record("ListStockists", nil)
	return f.Stockists, f.ListErr
}

// Conflict returns the error create-visit produces for a duplicate.
func Conflict(existingVisitID string) error {
	return gateway.ResponseError(&gateway.StatusError{
		StatusCode:      http.StatusConflict,
		Message:         "visit already exists",
		ExistingVisitID: existingVisitID,
	}, true)
}

// Status returns the classified error for a non-2xx status.
func Status(code int) error {
	return gateway.ResponseError(&gateway.StatusError{
		StatusCode: code,
		Message:    http.StatusText(code),
	}, false)
}

// Unreachable returns a transport failure.
func Unreachable() error {
	return gateway.NetworkError(errors.New("dial tcp: connection refused"))
}

var _ gateway.Gateway = (*Fake)(nil)
