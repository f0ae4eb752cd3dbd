/*
Package event provides the lifecycle notification bus for worldkeeper.

Components announce world and backup lifecycle changes on a Bus that they
receive at construction; there is no process-global bus.

# Cancellable Events

world.load and world.unload are raised with Allow before the action takes
place. Interceptors registered with Intercept run synchronously, in
registration order, on the caller's goroutine (the main loop for world
lifecycle). The first interceptor returning false vetoes the action and the
emitter aborts without changing any state:

	unregister := bus.Intercept(event.WorldUnload, func(e event.Event) bool {
		return e.Data.(event.WorldData).Name != "lobby"
	})
	defer unregister()

# Notifications

world.loaded, world.unloaded, world.discovered, backup.created,
backup.deleted, backup.restored and the player.* events are delivered with
PublishSync (same goroutine) or Publish (one goroutine per subscriber).

# Streaming

Every delivered event is also mirrored, JSON encoded, onto the watermill
gochannel topic "worldkeeper.lifecycle". Stream subscribes to it; the HTTP
server uses this to feed its SSE endpoint.
*/
package event
