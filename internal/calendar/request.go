package calendar

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/dukerupert/daybook/internal/model"
)

// BookingRequest is what a member of the public submits for a day.
type BookingRequest struct {
	Name         string `json:"name" validate:"required,max=200"`
	Email        string `json:"email" validate:"required,email,max=320"`
	Title        string `json:"title" validate:"required,max=200"`
	StartTime    string `json:"startTime" validate:"required,clock"`
	EndTime      string `json:"endTime" validate:"required,clock"`
	ActivityType string `json:"activityType" validate:"required,max=100"`
	Description  string `json:"description" validate:"required,max=2000"`
}

func (r BookingRequest) trimmed() BookingRequest {
	r.Name = strings.TrimSpace(r.Name)
	r.Email = strings.TrimSpace(r.Email)
	r.Title = strings.TrimSpace(r.Title)
	r.StartTime = strings.TrimSpace(r.StartTime)
	r.EndTime = strings.TrimSpace(r.EndTime)
	r.ActivityType = strings.TrimSpace(r.ActivityType)
	r.Description = strings.TrimSpace(r.Description)
	return r
}

// Details converts the request into an unapproved activity owned by the
// requester.
func (r BookingRequest) Details() model.ActivityDetails {
	return model.ActivityDetails{
		Title:        r.Title,
		StartTime:    r.StartTime,
		EndTime:      r.EndTime,
		ActivityType: r.ActivityType,
		Notes:        r.Description,
		BookedBy: &model.BookedBy{
			Name:  strings.TrimSpace(r.Name),
			Email: strings.TrimSpace(r.Email),
		},
	}
}

// ActivityInput is what an admin submits to add an activity.
type ActivityInput struct {
	Title          string `json:"title" validate:"required,max=200"`
	StartTime      string `json:"startTime" validate:"required,clock"`
	EndTime        string `json:"endTime" validate:"required,clock"`
	ActivityType   string `json:"activityType" validate:"max=100"`
	Notes          string `json:"notes" validate:"max=2000"`
	Approved       bool   `json:"approved"`
	ForceAvailable bool   `json:"forceAvailable"`
}

func (in ActivityInput) trimmed() ActivityInput {
	in.Title = strings.TrimSpace(in.Title)
	in.StartTime = strings.TrimSpace(in.StartTime)
	in.EndTime = strings.TrimSpace(in.EndTime)
	in.ActivityType = strings.TrimSpace(in.ActivityType)
	in.Notes = strings.TrimSpace(in.Notes)
	return in
}

func (in ActivityInput) Details() model.ActivityDetails {
	return model.ActivityDetails{
		Title:        in.Title,
		StartTime:    in.StartTime,
		EndTime:      in.EndTime,
		ActivityType: in.ActivityType,
		Notes:        in.Notes,
	}
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	v.RegisterValidation("clock", func(fl validator.FieldLevel) bool {
		_, ok := model.ParseClock(fl.Field().String())
		return ok
	})
	return v
}

// validate checks struct tags, then that the activity ends after it starts.
func (s *Service) validate(req any, start, end string) error {
	err := s.validator.Struct(req)
	var verrs validator.ValidationErrors
	if err != nil && !errors.As(err, &verrs) {
		return err
	}

	ve := &ValidationError{}
	for _, fe := range verrs {
		ve.Fields = append(ve.Fields, FieldError{Field: fe.Field(), Message: fieldMessage(fe)})
	}
	if len(ve.Fields) == 0 {
		from, _ := model.ParseClock(start)
		to, _ := model.ParseClock(end)
		if to <= from {
			ve.Fields = append(ve.Fields, FieldError{Field: "endTime", Message: "must be after startTime"})
		}
	}
	if len(ve.Fields) > 0 {
		return ve
	}
	return nil
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "clock":
		return "must be a time such as 05:00 PM"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	}
	return "is invalid"
}
