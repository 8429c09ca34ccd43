package main

import (
	"github.com/Gobusters/ectoinject"
	"github.com/Gobusters/ectoinject/ectocontainer"
	"github.com/labstack/echo/v4"
)

// registration binds one concrete value into the DI container under its type.
type registration interface {
	register(container ectocontainer.DIContainer) error
}

type instance[T any] struct {
	value T
}

func (i instance[T]) register(container ectocontainer.DIContainer) error {
	return ectoinject.RegisterInstance[T](container, i.value)
}

func registerInstances(container ectocontainer.DIContainer, regs ...registration) error {
	for _, r := range regs {
		if err := r.register(container); err != nil {
			return err
		}
	}
	return nil
}

// diMiddleware attaches the container to each request context so handlers can
// resolve their dependencies with ectoinject.GetContext.
func diMiddleware(container ectocontainer.DIContainer) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx, err := ectoinject.SetActiveContainer(c.Request().Context(), container.GetContainerID())
			if err != nil {
				return err
			}
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}
