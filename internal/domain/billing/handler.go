package billing

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/hms/orderflow/internal/platform/auth"
	"github.com/hms/orderflow/pkg/pagination"
)

type Handler struct {
	ledger *Ledger
}

func NewHandler(ledger *Ledger) *Handler {
	return &Handler{ledger: ledger}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	read := api.Group("", auth.RequireRole(auth.RoleStaff, auth.RoleOther))
	read.GET("/billing/by-reference", h.CheckByReference)
	read.GET("/billing/bills/:id", h.GetBill)
	read.GET("/billing/bills", h.ListBills)

	write := api.Group("", auth.RequireRole(auth.RoleStaff))
	write.POST("/billing/bills", h.CreateBill)
	write.POST("/billing/bills/:id/payments", h.RecordPayment)
}

// CheckByReference resolves a billing reference into the payment read model.
// 404 means nothing billable exists for the reference; an unpaid bill is a
// 200 with paid=false, because callers need the balance to act on.
func (h *Handler) CheckByReference(c echo.Context) error {
	itemType := c.QueryParam("item_type")
	if itemType == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "item_type is required")
	}
	referenceID, err := uuid.Parse(c.QueryParam("reference_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid reference_id")
	}

	check, _, err := h.ledger.CheckByReference(c.Request().Context(), itemType, referenceID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if !check.Exists {
		return echo.NewHTTPError(http.StatusNotFound, "no bill for reference")
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"data": check})
}

func (h *Handler) GetBill(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	bill, err := h.ledger.GetBill(c.Request().Context(), id)
	if err != nil {
		if err == ErrNotFound {
			return echo.NewHTTPError(http.StatusNotFound, "bill not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"data": bill})
}

func (h *Handler) ListBills(c echo.Context) error {
	pg := pagination.FromContext(c)
	patientID, err := uuid.Parse(c.QueryParam("patient_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "patient_id is required")
	}
	items, total, err := h.ledger.ListBillsByPatient(c.Request().Context(), patientID, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) CreateBill(c echo.Context) error {
	var b Bill
	if err := c.Bind(&b); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.ledger.CreateBill(c.Request().Context(), &b); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, map[string]interface{}{"data": b})
}

type paymentRequest struct {
	Amount float64 `json:"amount"`
	Method *string `json:"method,omitempty"`
}

func (h *Handler) RecordPayment(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req paymentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	bill, err := h.ledger.RecordPayment(c.Request().Context(), id, req.Amount, req.Method)
	if err != nil {
		if err == ErrNotFound {
			return echo.NewHTTPError(http.StatusNotFound, "bill not found")
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"data": bill})
}
