package plex

import (
	"context"
	"strconv"
	"time"

	"github.com/hubboard/hubboard/internal/pinflow"
)

// LinkVendor adapts the plex.tv PIN API to the flow controller.
type LinkVendor struct {
	Pins *PinClient
}

func NewLinkVendor(clientID string, timeout time.Duration) *LinkVendor {
	return &LinkVendor{Pins: NewPinClient(clientID, timeout)}
}

func (v *LinkVendor) RequestCode(ctx context.Context) (pinflow.Code, error) {
	pin, err := v.Pins.RequestPin(ctx)
	if err != nil {
		return pinflow.Code{}, err
	}
	return pinflow.Code{
		Ref:       strconv.Itoa(pin.ID),
		Code:      pin.Code,
		ExpiresIn: time.Duration(pin.ExpiresIn) * time.Second,
	}, nil
}

func (v *LinkVendor) CheckCode(ctx context.Context, ref string) (string, bool, error) {
	id, err := strconv.Atoi(ref)
	if err != nil {
		return "", false, err
	}
	pin, err := v.Pins.CheckPin(ctx, id)
	if err != nil {
		return "", false, err
	}
	return pin.AuthToken, pin.AuthToken != "", nil
}
