package orders

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/hms/orderflow/internal/platform/auth"
	"github.com/hms/orderflow/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	// Any authenticated caller may read and may request a transition; the
	// state machine decides who can actually move the order.
	read := api.Group("", auth.RequireRole(auth.RoleStaff, auth.RoleOther))
	read.GET("/orders", h.ListOrders)
	read.GET("/orders/:id", h.GetOrder)
	read.GET("/orders/:id/history", h.OrderHistory)
	read.PATCH("/orders/:id/status", h.UpdateStatus)

	write := api.Group("", auth.RequireRole(auth.RoleStaff))
	write.POST("/orders", h.CreateOrder)

	admin := api.Group("", auth.RequireRole(auth.RoleAdmin))
	admin.DELETE("/orders/:id", h.DeleteOrder)
}

type transitionRequest struct {
	Status string `json:"status"`
}

// lifecycleErrorBody is the structured failure payload. The code string is
// what clients branch on; PAYMENT_REQUIRED additionally carries the bill so
// they can send the user to the payment flow.
type lifecycleErrorBody struct {
	Code          ErrorCode   `json:"code"`
	Message       string      `json:"message"`
	CurrentStatus Status      `json:"current_status,omitempty"`
	Bill          interface{} `json:"bill,omitempty"`
}

func lifecycleErrorResponse(c echo.Context, le *LifecycleError) error {
	body := lifecycleErrorBody{
		Code:          le.Code,
		Message:       le.Error(),
		CurrentStatus: le.Current,
	}
	if le.Bill != nil {
		body.Bill = le.Bill
	}

	status := http.StatusConflict
	switch le.Code {
	case CodePermissionDenied:
		status = http.StatusForbidden
	case CodePaymentRequired:
		status = http.StatusPaymentRequired
	case CodeNotFound:
		status = http.StatusNotFound
	}
	return c.JSON(status, body)
}

// UpdateStatus is the transition endpoint. The actor comes from the verified
// request context; the body supplies only the target status.
func (h *Handler) UpdateStatus(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req transitionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	target, err := ParseStatus(req.Status)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	actor := auth.ActorFromContext(c.Request().Context())
	order, err := h.svc.RequestTransition(c.Request().Context(), id, target, actor)
	if err != nil {
		if le := AsLifecycleError(err); le != nil {
			return lifecycleErrorResponse(c, le)
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"data": order})
}

func (h *Handler) CreateOrder(c echo.Context) error {
	var o ClinicalOrder
	if err := c.Bind(&o); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.CreateOrder(c.Request().Context(), &o); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, map[string]interface{}{"data": o})
}

func (h *Handler) GetOrder(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	order, err := h.svc.GetOrder(c.Request().Context(), id)
	if err != nil {
		if err == ErrNotFound {
			return echo.NewHTTPError(http.StatusNotFound, "order not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"data": order})
}

func (h *Handler) ListOrders(c echo.Context) error {
	pg := pagination.FromContext(c)
	var filter ListFilter

	if v := c.QueryParam("patient_id"); v != "" {
		pid, err := uuid.Parse(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid patient_id")
		}
		filter.PatientID = &pid
	}
	if v := c.QueryParam("assigned_staff_id"); v != "" {
		sid, err := uuid.Parse(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid assigned_staff_id")
		}
		filter.AssignedStaffID = &sid
	}
	if v := c.QueryParam("status"); v != "" {
		status, err := ParseStatus(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		filter.Status = status
	}
	if v := c.QueryParam("kind"); v != "" {
		kind, err := ParseKind(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		filter.Kind = kind
	}

	items, total, err := h.svc.ListOrders(c.Request().Context(), filter, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) OrderHistory(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	changes, err := h.svc.OrderHistory(c.Request().Context(), id)
	if err != nil {
		if err == ErrNotFound {
			return echo.NewHTTPError(http.StatusNotFound, "order not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"data": changes})
}

func (h *Handler) DeleteOrder(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.svc.DeleteOrder(c.Request().Context(), id); err != nil {
		if err == ErrNotFound {
			return echo.NewHTTPError(http.StatusNotFound, "order not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}
