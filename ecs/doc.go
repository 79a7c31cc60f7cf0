// Package ecs provides ECS adapters for unirender's window visibility
// notifications.
//
// The primary adapter is [NewVisibilitySink], which bridges the visibility
// map of each prepared frame into a [Donburi] world as typed events.
// Subscribe to [VisibilityEventType] in your ECS systems to receive them.
//
// Usage:
//
//	sink := ecs.NewVisibilitySink(world)
//	service.SetVisibilityCallback(sink)
//
// [Donburi]: https://github.com/yohamta/donburi
package ecs
