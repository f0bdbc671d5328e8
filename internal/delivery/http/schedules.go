package http

import (
	"errors"
	"net/http"
	"strconv"

	"renthouse-scheduler/internal/dto"
	"renthouse-scheduler/internal/model"
	"renthouse-scheduler/internal/service"

	goValidator "github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

func (h *HttpAPIHandler) SetupSchedules(base *echo.Group) {
	v1 := base.Group("/v1/schedules")
	{
		v1.POST("", h.CreateSchedule)
		v1.GET("", h.ListSchedules)
		v1.PUT("/:id", h.UpdateSchedule)
		v1.DELETE("/:id", h.DeleteSchedule)
		v1.POST("/:id/run", h.RunSchedule)
	}
}

func (h *HttpAPIHandler) CreateSchedule(c echo.Context) error {
	var req dto.CreateScheduleJobRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, dto.NewBadRequestResponse(err.Error()))
	}

	job, err := h.service.SchedulerService.CreateJob(c.Request().Context(), &req)
	if err != nil {
		return h.errorResponse(c, err)
	}
	return c.JSON(http.StatusCreated, dto.NewBaseResponse(http.StatusCreated, "Schedule created", job))
}

func (h *HttpAPIHandler) ListSchedules(c echo.Context) error {
	param := model.GetScheduleJobParam{}
	if active := c.QueryParam("is_active"); active != "" {
		v, err := strconv.ParseBool(active)
		if err != nil {
			return c.JSON(http.StatusBadRequest, dto.NewBadRequestResponse("invalid is_active filter"))
		}
		param.IsActive = &v
	}

	jobs, err := h.service.SchedulerService.GetJobs(c.Request().Context(), param)
	if err != nil {
		return h.errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, dto.NewSuccessResponse("OK", jobs))
}

func (h *HttpAPIHandler) UpdateSchedule(c echo.Context) error {
	jobID, err := h.pathJobID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, dto.NewBadRequestResponse("invalid schedule id"))
	}

	var req dto.UpdateScheduleJobRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, dto.NewBadRequestResponse(err.Error()))
	}

	job, err := h.service.SchedulerService.UpdateJob(c.Request().Context(), jobID, &req)
	if err != nil {
		return h.errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, dto.NewSuccessResponse("Schedule updated", job))
}

func (h *HttpAPIHandler) DeleteSchedule(c echo.Context) error {
	jobID, err := h.pathJobID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, dto.NewBadRequestResponse("invalid schedule id"))
	}

	if err := h.service.SchedulerService.RemoveJob(c.Request().Context(), jobID); err != nil {
		return h.errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, dto.NewSuccessResponse("Schedule removed", nil))
}

func (h *HttpAPIHandler) RunSchedule(c echo.Context) error {
	jobID, err := h.pathJobID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, dto.NewBadRequestResponse("invalid schedule id"))
	}

	if err := h.service.SchedulerService.RunJobTask(c.Request().Context(), jobID); err != nil {
		return h.errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, dto.NewSuccessResponse("Schedule tick executed", nil))
}

func (h *HttpAPIHandler) pathJobID(c echo.Context) (uint, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		return 0, err
	}
	return uint(id), nil
}

func (h *HttpAPIHandler) errorResponse(c echo.Context, err error) error {
	var validationErrs goValidator.ValidationErrors
	switch {
	case errors.Is(err, service.ErrRuleParse), errors.As(err, &validationErrs):
		return c.JSON(http.StatusBadRequest, dto.NewBadRequestResponse(err.Error()))
	case errors.Is(err, service.ErrJobNotFound):
		return c.JSON(http.StatusNotFound, dto.NewBaseResponse(http.StatusNotFound, err.Error(), nil))
	case errors.Is(err, service.ErrTickInFlight):
		return c.JSON(http.StatusConflict, dto.NewBaseResponse(http.StatusConflict, err.Error(), nil))
	default:
		return c.JSON(http.StatusInternalServerError, dto.NewBaseResponse(http.StatusInternalServerError, err.Error(), nil))
	}
}
