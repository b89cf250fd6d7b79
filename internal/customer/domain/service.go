package domain

import (
	"context"
	"errors"

	"github.com/smallbiznis/billbook/pkg/db/pagination"
)

type ListCustomerRequest struct {
	pagination.Pagination
	Name string `form:"name"`
}

type ListCustomerFilter struct {
	Name string
}

type ListCustomerResponse struct {
	pagination.PageInfo
	Customers []Customer `json:"customers"`
}

type CreateCustomerRequest struct {
	Name     string         `json:"name"`
	Email    string         `json:"email"`
	Phone    string         `json:"phone"`
	Address  string         `json:"address"`
	Metadata map[string]any `json:"metadata"`
}

type Service interface {
	Create(context.Context, CreateCustomerRequest) (Customer, error)
	List(context.Context, ListCustomerRequest) (ListCustomerResponse, error)
	GetByID(context.Context, string) (Customer, error)
}

var (
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidName         = errors.New("invalid_name")
	ErrInvalidEmail        = errors.New("invalid_email")
	ErrInvalidID           = errors.New("invalid_id")
	ErrNotFound            = errors.New("customer_not_found")
)
