package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/frozen-haven/api/internal/domain"
	pfirestore "github.com/frozen-haven/api/internal/platform/firestore"
	"github.com/frozen-haven/api/internal/repositories"
)

const customersCollection = "customers"

// CustomerRepository maintains per-email order aggregates in Firestore.
type CustomerRepository struct {
	provider *pfirestore.Provider
}

// NewCustomerRepository constructs a Firestore backed customer repository.
func NewCustomerRepository(provider *pfirestore.Provider) (*CustomerRepository, error) {
	if provider == nil {
		return nil, errors.New("customer repository requires firestore provider")
	}
	return &CustomerRepository{provider: provider}, nil
}

// RecordOrder upserts the customer keyed by normalised email. The aggregate
// counters are read and written in one transaction so concurrent orders for
// the same customer do not lose increments.
func (r *CustomerRepository) RecordOrder(ctx context.Context, snapshot repositories.CustomerOrderSnapshot) (domain.Customer, error) {
	if r == nil || r.provider == nil {
		return domain.Customer{}, errors.New("customer repository not initialised")
	}
	email := domain.NormalizeEmail(snapshot.Email)
	if email == "" {
		return domain.Customer{}, errors.New("customer email is required")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.Customer{}, pfirestore.WrapError("customers.recordOrder", err)
	}

	orderedAt := snapshot.OrderedAt.UTC()
	var recorded domain.Customer
	err = pfirestore.RunTransaction(ctx, client, func(ctx context.Context, tx *firestore.Transaction) error {
		ref := client.Collection(customersCollection).Doc(email)
		snap, err := tx.Get(ref)
		if err != nil && status.Code(err) != codes.NotFound {
			return err
		}

		var doc customerDocument
		if snap != nil && snap.Exists() {
			if err := snap.DataTo(&doc); err != nil {
				return fmt.Errorf("decode customer %s: %w", email, err)
			}
		} else {
			doc = customerDocument{Email: email, CreatedAt: orderedAt}
		}

		doc.Name = strings.TrimSpace(snapshot.Name)
		doc.Phone = strings.TrimSpace(snapshot.Phone)
		doc.Address = strings.TrimSpace(snapshot.Address)
		doc.TotalOrders++
		doc.TotalSpent = domain.Round2(doc.TotalSpent + snapshot.Total)
		doc.LastOrderAt = orderedAt
		doc.UpdatedAt = orderedAt

		recorded = doc.toDomain(email)
		return tx.Set(ref, doc)
	})
	if err != nil {
		return domain.Customer{}, pfirestore.WrapError("customers.recordOrder", err)
	}
	return recorded, nil
}

// Get loads a customer profile by id (the normalised email).
func (r *CustomerRepository) Get(ctx context.Context, id string) (domain.Customer, error) {
	if r == nil || r.provider == nil {
		return domain.Customer{}, errors.New("customer repository not initialised")
	}
	id = domain.NormalizeEmail(id)
	if id == "" {
		return domain.Customer{}, errors.New("customer id is required")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.Customer{}, pfirestore.WrapError("customers.get", err)
	}

	snap, err := client.Collection(customersCollection).Doc(id).Get(ctx)
	if err != nil {
		return domain.Customer{}, pfirestore.WrapError("customers.get", err)
	}

	var doc customerDocument
	if err := snap.DataTo(&doc); err != nil {
		return domain.Customer{}, fmt.Errorf("decode customer %s: %w", id, err)
	}
	return doc.toDomain(snap.Ref.ID), nil
}

// List returns customers ordered by most recent order first.
func (r *CustomerRepository) List(ctx context.Context, limit int) ([]domain.Customer, error) {
	if r == nil || r.provider == nil {
		return nil, errors.New("customer repository not initialised")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, pfirestore.WrapError("customers.list", err)
	}

	q := client.Collection(customersCollection).Query.OrderBy("lastOrderAt", firestore.Desc)
	if limit > 0 {
		q = q.Limit(limit)
	}

	iter := q.Documents(ctx)
	defer iter.Stop()

	var customers []domain.Customer
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, pfirestore.WrapError("customers.list", err)
		}
		var doc customerDocument
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("decode customer %s: %w", snap.Ref.ID, err)
		}
		customers = append(customers, doc.toDomain(snap.Ref.ID))
	}
	return customers, nil
}

type customerDocument struct {
	Email       string    `firestore:"email"`
	Name        string    `firestore:"name"`
	Phone       string    `firestore:"phone"`
	Address     string    `firestore:"address"`
	TotalOrders int       `firestore:"totalOrders"`
	TotalSpent  float64   `firestore:"totalSpent"`
	LastOrderAt time.Time `firestore:"lastOrderAt"`
	CreatedAt   time.Time `firestore:"createdAt"`
	UpdatedAt   time.Time `firestore:"updatedAt"`
}

func (d customerDocument) toDomain(id string) domain.Customer {
	return domain.Customer{
		ID:          id,
		Email:       d.Email,
		Name:        d.Name,
		Phone:       d.Phone,
		Address:     d.Address,
		TotalOrders: d.TotalOrders,
		TotalSpent:  d.TotalSpent,
		LastOrderAt: d.LastOrderAt,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
}
