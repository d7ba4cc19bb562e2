package api

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/pgorski/dosetrack/internal/adherence"
	apperrors "github.com/pgorski/dosetrack/internal/errors"
	"github.com/pgorski/dosetrack/internal/model"
)

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":    "healthy",
		"version":   "0.1.0",
		"timestamp": time.Now().Unix(),
	})
}

// respondError maps domain errors to HTTP statuses. Anything not
// recognizably a client fault logs and answers 500 without leaking
// the cause.
func (s *Server) respondError(c *fiber.Ctx, err error) error {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		switch appErr.Code {
		case "MED_001", "GEN_001":
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": appErr.Message})
		case "MED_002", "MED_003", "SUPPLY_001", "GEN_002":
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": appErr.Message})
		}
	}

	s.logger.Error("Request failed", zap.String("path", c.Path()), zap.Error(err))
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal error"})
}

func (s *Server) handleListMedications(c *fiber.Ctx) error {
	meds := s.store.List(c.UserContext())
	now := s.now()

	out := make([]MedicationResponse, 0, len(meds))
	for i := range meds {
		out = append(out, toResponse(&meds[i], now))
	}
	return c.JSON(out)
}

func (s *Server) handleCreateMedication(c *fiber.Ctx) error {
	var req MedicationRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request"})
	}
	if req.Name == "" {
		return s.respondError(c, apperrors.ErrNameRequired)
	}

	freq := model.Daily(1)
	if req.Frequency != "" {
		freq = model.ParseFrequency(req.Frequency)
		if freq.Kind == model.FrequencyUnknown {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "unsupported frequency"})
		}
	}
	if req.Supply < 0 {
		return s.respondError(c, apperrors.ErrSupplyNotPositive)
	}

	med := &model.Medication{
		Name:            req.Name,
		Frequency:       freq,
		DoseAmount:      req.DoseAmount,
		DoseUnit:        req.DoseUnit,
		AvailableSupply: req.Supply,
		ExpiryDate:      req.ExpiryDate,
	}

	if _, err := s.store.Create(c.UserContext(), med); err != nil {
		return s.respondError(c, err)
	}
	s.scheduler.ScheduleReminders(med)

	return c.Status(fiber.StatusCreated).JSON(toResponse(med, s.now()))
}

func (s *Server) handleGetMedication(c *fiber.Ctx) error {
	med, err := s.store.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return s.respondError(c, err)
	}
	if med == nil {
		return s.respondError(c, apperrors.ErrMedicationNotFound)
	}
	return c.JSON(toResponse(med, s.now()))
}

func (s *Server) handleUpdateMedication(c *fiber.Ctx) error {
	var req MedicationRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request"})
	}
	if req.Name == "" {
		return s.respondError(c, apperrors.ErrNameRequired)
	}

	freq := model.ParseFrequency(req.Frequency)
	if freq.Kind == model.FrequencyUnknown {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "unsupported frequency"})
	}
	if req.Supply < 0 {
		return s.respondError(c, apperrors.ErrSupplyNotPositive)
	}

	ctx := c.UserContext()
	med, err := s.store.Get(ctx, c.Params("id"))
	if err != nil {
		return s.respondError(c, err)
	}
	if med == nil {
		return s.respondError(c, apperrors.ErrMedicationNotFound)
	}

	med.Name = req.Name
	med.Frequency = freq
	med.DoseAmount = req.DoseAmount
	med.DoseUnit = req.DoseUnit
	med.AvailableSupply = req.Supply
	med.ExpiryDate = req.ExpiryDate

	if err := s.store.Update(ctx, med); err != nil {
		return s.respondError(c, err)
	}
	s.scheduler.ScheduleReminders(med)

	return c.JSON(toResponse(med, s.now()))
}

func (s *Server) handleDeleteMedication(c *fiber.Ctx) error {
	id := c.Params("id")
	ctx := c.UserContext()

	med, err := s.store.Get(ctx, id)
	if err != nil {
		return s.respondError(c, err)
	}
	if med == nil {
		return s.respondError(c, apperrors.ErrMedicationNotFound)
	}

	s.scheduler.CancelReminders(id)
	if err := s.store.Delete(ctx, id); err != nil {
		return s.respondError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// parseMarkDate reads the optional date from the body, defaulting to
// today. An empty body is fine; a present but unparseable one is not.
func (s *Server) parseMarkDate(c *fiber.Ctx) (string, error) {
	if len(c.Body()) == 0 {
		return s.now().Format(model.DateLayout), nil
	}

	var req MarkRequest
	if err := c.BodyParser(&req); err != nil {
		return "", apperrors.ErrBadRequest
	}
	if req.Date == "" {
		return s.now().Format(model.DateLayout), nil
	}
	return req.Date, nil
}

func (s *Server) handleMarkTaken(c *fiber.Ctx) error {
	date, err := s.parseMarkDate(c)
	if err != nil {
		return s.respondError(c, err)
	}

	med, err := s.coordinator.MarkTaken(c.UserContext(), c.Params("id"), date)
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(toResponse(med, s.now()))
}

func (s *Server) handleMarkNotTaken(c *fiber.Ctx) error {
	date, err := s.parseMarkDate(c)
	if err != nil {
		return s.respondError(c, err)
	}

	med, err := s.coordinator.MarkNotTaken(c.UserContext(), c.Params("id"), date)
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(toResponse(med, s.now()))
}

func (s *Server) handleAddSupply(c *fiber.Ctx) error {
	var req SupplyRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request"})
	}

	med, err := s.coordinator.AddSupply(c.UserContext(), c.Params("id"), req.Packages, req.UnitsPerPackage, req.ExpiryDate)
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(toResponse(med, s.now()))
}

func (s *Server) handleStats(c *fiber.Ctx) error {
	stats := adherence.Calculate(s.store.List(c.UserContext()), s.now())
	return c.JSON(stats)
}

func (s *Server) handleSchedule(c *fiber.Ctx) error {
	now := s.now()
	date := now
	if raw := c.Query("date"); raw != "" {
		parsed, err := time.ParseInLocation(model.DateLayout, raw, now.Location())
		if err != nil {
			return s.respondError(c, apperrors.ErrBadRequest)
		}
		date = parsed
	}

	due := adherence.DueOn(s.store.List(c.UserContext()), date)
	entries := make([]ScheduleEntry, 0, len(due))
	for i := range due {
		entries = append(entries, ScheduleEntry{
			Medication: toResponse(&due[i].Medication, now),
			Taken:      due[i].Taken,
		})
	}

	return c.JSON(ScheduleResponse{
		Date:    date.Format(model.DateLayout),
		Entries: entries,
	})
}
