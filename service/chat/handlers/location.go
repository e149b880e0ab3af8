package handlers

import (
	"context"

	"PMobility/global/event"
	usermodel "PMobility/module/user/model"
	"PMobility/service/chat"
	"PMobility/tools/decode"
	"PMobility/tools/errs"
)

type LocationUpdater interface {
	UpdateLocation(ctx context.Context, userID string, loc usermodel.Location) (int, error)
}

// {"type":"location_update","location":{"lat":..,"lng":..}}
type locationPayload struct {
	Location *usermodel.Location `json:"location"`
}

type Location struct {
	users LocationUpdater
}

func NewLocation(users LocationUpdater) *Location { return &Location{users: users} }

func (h *Location) Type() string { return event.TypeLocationUpdate }

func (h *Location) Handle(ctx context.Context, s *chat.Session, f *chat.Frame) error {
	p, err := decode.Decode[locationPayload](f.Payload)
	if err != nil {
		return errs.ErrInvalidInput.WrapMsg(err.Error())
	}
	if p.Location == nil {
		return errs.ErrInvalidInput.WrapMsg("location is required")
	}
	_, err = h.users.UpdateLocation(ctx, s.UserID, *p.Location)
	return err
}
