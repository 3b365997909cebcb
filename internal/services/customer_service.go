package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/frozen-haven/api/internal/domain"
	pfirestore "github.com/frozen-haven/api/internal/platform/firestore"
	"github.com/frozen-haven/api/internal/repositories"
)

const defaultCustomerListLimit = 100

var (
	// ErrCustomerInvalidInput signals the caller provided invalid arguments.
	ErrCustomerInvalidInput = errors.New("customer: invalid input")
	// ErrCustomerNotFound indicates the customer could not be located.
	ErrCustomerNotFound = errors.New("customer: not found")
)

// CustomerServiceDeps bundles the collaborators required to construct a customer service.
type CustomerServiceDeps struct {
	Customers repositories.CustomerRepository
	ListLimit int
}

type customerService struct {
	customers repositories.CustomerRepository
	listLimit int
}

// NewCustomerService wires dependencies into a concrete CustomerService implementation.
func NewCustomerService(deps CustomerServiceDeps) (CustomerService, error) {
	if deps.Customers == nil {
		return nil, errors.New("customer service: customer repository is required")
	}

	listLimit := deps.ListLimit
	if listLimit <= 0 {
		listLimit = defaultCustomerListLimit
	}

	return &customerService{
		customers: deps.Customers,
		listLimit: listLimit,
	}, nil
}

func (s *customerService) GetCustomer(ctx context.Context, id string) (domain.Customer, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Customer{}, fmt.Errorf("%w: customer id is required", ErrCustomerInvalidInput)
	}

	customer, err := s.customers.Get(ctx, id)
	if err != nil {
		var fsErr *pfirestore.Error
		if errors.As(err, &fsErr) && fsErr.IsNotFound() {
			return domain.Customer{}, fmt.Errorf("%w: %s", ErrCustomerNotFound, id)
		}
		return domain.Customer{}, err
	}
	return customer, nil
}

func (s *customerService) ListCustomers(ctx context.Context, limit int) ([]domain.Customer, error) {
	if limit <= 0 || limit > s.listLimit {
		limit = s.listLimit
	}
	return s.customers.List(ctx, limit)
}
