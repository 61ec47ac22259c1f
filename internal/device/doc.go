// Package device provides the attribute model and device registry of
// Idiotic Core.
//
// # Key Types
//
//   - Attribute: an observable value slot with a getter, an optional
//     setter and an ordered subscriber list
//   - Device: the interface every device class implements; Base supplies
//     the uuid and name identity attributes and the attribute tables
//   - Generic: a device class declared in the site file
//   - Catalog: class name to factory, used when a new device says hello
//   - Registry: live devices by id and by (class, name), plus the
//     transport connection serving each device
//   - Feed: asynchronous fan-out of attribute changes to sinks
//   - SQLiteRepository: identities of every device ever seen
//
// # Write path
//
//	dev, _ := registry.ResolveRef(device.Ref{ID: "62:01:94:31:6A:EA"})
//	device.Update(ctx, dev, "temperature", 31.5)
//
// Update runs the setter and alerts every subscriber in the order they
// subscribed, all under the attribute's lock. Subscribers (triggers, the
// feed) only record or schedule work, so nothing re-enters the lock.
//
// # Identity
//
// A device is constructed, identified with Identify, then registered.
// From registration on its uuid is fixed (ErrIdentityLocked) and a
// rename moves its (class, name) index entry.
package device
