package utils

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
)

const (
	defaultPerPage = 20
	maxPerPage     = 100
)

// PageParams holds the pagination window of a listing request.
type PageParams struct {
	Page    int
	PerPage int
	Offset  int
}

// ParsePageParams reads the page and per_page query params, clamping
// per_page to a sane maximum.
func ParsePageParams(c *fiber.Ctx) PageParams {
	page, err := strconv.Atoi(c.Query("page", "1"))
	if err != nil || page < 1 {
		page = 1
	}

	perPage, err := strconv.Atoi(c.Query("per_page", strconv.Itoa(defaultPerPage)))
	if err != nil || perPage < 1 {
		perPage = defaultPerPage
	}
	if perPage > maxPerPage {
		perPage = maxPerPage
	}

	return PageParams{
		Page:    page,
		PerPage: perPage,
		Offset:  (page - 1) * perPage,
	}
}
