// Package shutdown provides graceful shutdown for clipshare.
//
// Hooks run in reverse registration order under one deadline, so
// components registered first (the store) are closed last.
//
// Usage:
//
//	h := shutdown.NewHandler(10*time.Second, logger)
//	h.OnShutdown("store", store.Close)
//	h.OnShutdown("http", srv.Shutdown)
//	err := h.Wait(ctx)
package shutdown
