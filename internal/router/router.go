package router

import (
	"net/http"

	"github.com/fafwork/backend/internal/auth"
	"github.com/fafwork/backend/internal/checkpoints"
	"github.com/fafwork/backend/internal/contracts"
	"github.com/fafwork/backend/internal/disputes"
	"github.com/fafwork/backend/internal/jobs"
	"github.com/fafwork/backend/internal/middleware"
	"github.com/fafwork/backend/internal/notifications"
	"github.com/fafwork/backend/internal/proposals"
	"github.com/fafwork/backend/internal/wallet"
)

// Handlers bundles the per-domain handlers the router mounts.
type Handlers struct {
	Auth          *auth.Handler
	Wallet        *wallet.Handler
	Jobs          *jobs.Handler
	Contracts     *contracts.Handler
	Checkpoints   *checkpoints.Handler
	Disputes      *disputes.Handler
	Proposals     *proposals.Handler
	Notifications *notifications.Handler
}

// New returns an http.Handler serving the API under /api/v1. Everything but
// auth and the open job board requires a bearer token.
func New(h Handlers, validator middleware.TokenValidator) http.Handler {
	mux := http.NewServeMux()
	const base = "/api/v1"
	protect := middleware.BearerAuth(validator)

	mux.HandleFunc("POST "+base+"/auth/register", h.Auth.Register)
	mux.HandleFunc("POST "+base+"/auth/login", h.Auth.Login)

	mux.HandleFunc("GET "+base+"/jobs", h.Jobs.ListOpen)
	mux.HandleFunc("GET "+base+"/jobs/{id}", h.Jobs.Get)
	// Literal segment so it wins over the public /jobs/{id} pattern.
	mux.Handle("GET "+base+"/jobs/mine", protect(http.HandlerFunc(h.Jobs.ListMine)))

	authed := http.NewServeMux()
	authed.HandleFunc("GET "+base+"/wallet", h.Wallet.GetWallet)
	authed.HandleFunc("POST "+base+"/wallet/deposit", h.Wallet.Deposit)
	authed.HandleFunc("GET "+base+"/wallet/transactions", h.Wallet.ListTransactions)

	authed.HandleFunc("POST "+base+"/jobs/{id}/proposals", h.Proposals.Create)
	authed.HandleFunc("GET "+base+"/jobs/{id}/proposals", h.Proposals.ListByJob)

	authed.HandleFunc("GET "+base+"/proposals/mine", h.Proposals.ListMine)
	authed.HandleFunc("POST "+base+"/proposals/{id}/accept", h.Proposals.Accept)

	authed.HandleFunc("POST "+base+"/contracts", h.Contracts.Create)
	authed.HandleFunc("GET "+base+"/contracts", h.Contracts.List)
	authed.HandleFunc("GET "+base+"/contracts/{id}", h.Contracts.Get)
	authed.HandleFunc("POST "+base+"/contracts/{id}/sign", h.Contracts.Sign)
	authed.HandleFunc("POST "+base+"/contracts/{id}/terminate", h.Contracts.Terminate)
	authed.HandleFunc("POST "+base+"/contracts/{id}/settlement/request", h.Contracts.RequestSettlement)
	authed.HandleFunc("POST "+base+"/contracts/{id}/settlement/finalize", h.Contracts.FinalizeSettlement)

	authed.HandleFunc("POST "+base+"/checkpoints/{id}/submit", h.Checkpoints.Submit)
	authed.HandleFunc("POST "+base+"/checkpoints/{id}/approve", h.Checkpoints.Approve)
	authed.HandleFunc("POST "+base+"/checkpoints/{id}/reject", h.Checkpoints.Reject)

	authed.HandleFunc("POST "+base+"/disputes", h.Disputes.Open)
	authed.HandleFunc("GET "+base+"/disputes", h.Disputes.ListOpen)
	authed.HandleFunc("GET "+base+"/disputes/{id}", h.Disputes.Get)
	authed.HandleFunc("POST "+base+"/disputes/{id}/resolve", h.Disputes.Resolve)

	authed.HandleFunc("GET "+base+"/notifications", h.Notifications.List)
	authed.HandleFunc("POST "+base+"/notifications/{id}/read", h.Notifications.MarkRead)

	mux.Handle("/", protect(authed))
	return mux
}
