package automation

import (
	"context"
	"fmt"

	"github.com/nerrad567/idiotic-core/internal/device"
)

// Resolver finds devices for actions. *device.Registry implements it.
type Resolver interface {
	ResolveRef(ref device.Ref) (device.Device, error)
}

// SetAttribute returns an action that writes value to attr on the device
// addressed by ref. The device is resolved each time the action runs.
func SetAttribute(r Resolver, ref device.Ref, attr string, value any) Action {
	return func(ctx context.Context) error {
		d, err := r.ResolveRef(ref)
		if err != nil {
			return err
		}
		if _, err := device.Update(ctx, d, attr, value); err != nil {
			return fmt.Errorf("set %s.%s: %w", ref, attr, err)
		}
		return nil
	}
}

// CallAction returns an action that invokes the named device action.
func CallAction(r Resolver, ref device.Ref, action string) Action {
	return func(ctx context.Context) error {
		d, err := r.ResolveRef(ref)
		if err != nil {
			return err
		}
		if err := device.Invoke(ctx, d, action); err != nil {
			return fmt.Errorf("call %s.%s: %w", ref, action, err)
		}
		return nil
	}
}
