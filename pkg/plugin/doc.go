// Package plugin is the capability-indexed module registry at the heart of the
// wisp host.
//
// Modules declare the capabilities they provide as Contract values. The
// Registry indexes each module under its contracts and their ancestors, then
// drives every module through link, configure, start, stop and destroy:
//
//	reg := plugin.NewRegistry()
//	reg.MustRegister(server)
//	reg.MustRegister(echo)
//	if err := reg.LinkAll(ctx); err != nil { ... }
//	if err := reg.ConfigureAll(ctx, cfg); err != nil { ... }
//	if err := reg.StartAll(ctx); err != nil { ... }
//	defer reg.DestroyAll(ctx)
//
// During Link a module resolves its collaborators through the Locator:
//
//	bus, err := plugin.FirstOf(loc, broker.Capability)
//	for h := range plugin.AllOf(loc, websocket.PathHandlerCapability) { ... }
package plugin
