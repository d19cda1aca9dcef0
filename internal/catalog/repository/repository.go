package repository

import (
	"context"

	"cloudlab-control-plane/internal/catalog/domain"
)

// Repository defines persistence for the course catalog.
type Repository interface {
	GetCourseByID(ctx context.Context, id string) (*domain.Course, error)
	GetCourseByCode(ctx context.Context, code string) (*domain.Course, error)
	ListCourses(ctx context.Context) ([]*domain.Course, error)
	CreateCourse(ctx context.Context, c *domain.Course) error
}
