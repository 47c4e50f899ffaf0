package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	log "github.com/sirupsen/logrus"
	"github.com/tentens-tech/rental-deposit/internal/application/command/escrow"
	"github.com/tentens-tech/rental-deposit/internal/infrastructure/custody"
	"github.com/tentens-tech/rental-deposit/internal/infrastructure/storage"
)

const (
	DefaultAccountHeader = "x-account"
	DefaultMaxBodyBytes  = 1 << 20
)

var (
	errMissingAccount = errors.New("missing caller account")
	errBadRequest     = errors.New("bad request")
)

type CreateLeaseRequest struct {
	Landlord      escrow.Account `json:"landlord"`
	DepositAmount uint64         `json:"depositAmount"`
	StartDate     uint64         `json:"startDate"`
	EndDate       uint64         `json:"endDate"`
	AttachedValue uint64         `json:"attachedValue"`
}

type FundRequest struct {
	Amount uint64 `json:"amount"`
}

type LeaseIDResponse struct {
	ID uint64 `json:"id"`
}

type CountResponse struct {
	Count uint64 `json:"count"`
}

type ListResponse struct {
	Count  uint64         `json:"count"`
	Leases []escrow.Lease `json:"leases"`
}

type BalanceResponse struct {
	Account escrow.Account `json:"account"`
	Balance uint64         `json:"balance"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func (app *Application) CreateLeaseHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, err := callerAccount(r)
		if err != nil {
			writeError(w, err)
			return
		}

		var request CreateLeaseRequest
		if err = readJSON(r, &request); err != nil {
			writeError(w, err)
			return
		}

		leaseID, err := app.CreateLease(r.Context(), caller, escrow.LeaseTerms{
			Landlord:      request.Landlord,
			DepositAmount: request.DepositAmount,
			StartDate:     request.StartDate,
			EndDate:       request.EndDate,
		}, request.AttachedValue)
		if err != nil {
			log.Warnf("Failed to create lease for %v: %v", caller, err)
			writeError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, LeaseIDResponse{ID: leaseID})
	}
}

func (app *Application) ApproveDepositReturnHandler() http.HandlerFunc {
	return app.leaseActionHandler("approve deposit return", app.ApproveDepositReturn)
}

func (app *Application) WithdrawDepositHandler() http.HandlerFunc {
	return app.leaseActionHandler("withdraw deposit", app.WithdrawDeposit)
}

func (app *Application) ReturnDepositHandler() http.HandlerFunc {
	return app.leaseActionHandler("return deposit", app.ReturnDeposit)
}

func (app *Application) leaseActionHandler(name string, action func(ctx context.Context, caller escrow.Account, leaseID uint64) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, err := callerAccount(r)
		if err != nil {
			writeError(w, err)
			return
		}

		leaseID, err := pathLeaseID(r)
		if err != nil {
			writeError(w, err)
			return
		}

		if err = action(r.Context(), caller, leaseID); err != nil {
			log.Warnf("Failed to %v for lease %v by %v: %v", name, leaseID, caller, err)
			writeError(w, err)
			return
		}

		lease, err := app.LeaseDetails(r.Context(), leaseID)
		if err != nil {
			log.Errorf("Failed to read lease %v back after %v: %v", leaseID, name, err)
			writeJSON(w, http.StatusOK, LeaseIDResponse{ID: leaseID})
			return
		}

		writeJSON(w, http.StatusOK, lease)
	}
}

func (app *Application) LeaseCountHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		count, err := app.LeaseCount(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, CountResponse{Count: count})
	}
}

func (app *Application) LeaseDetailsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		leaseID, err := pathLeaseID(r)
		if err != nil {
			writeError(w, err)
			return
		}

		lease, err := app.LeaseDetails(r.Context(), leaseID)
		if err != nil {
			writeError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, lease)
	}
}

func (app *Application) ListLeasesHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		leases, err := app.ListLeases(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, ListResponse{Count: uint64(len(leases)), Leases: leases})
	}
}

func (app *Application) BalanceHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		account := escrow.Account(r.PathValue("account"))

		writeJSON(w, http.StatusOK, BalanceResponse{Account: account, Balance: app.Balance(account)})
	}
}

func (app *Application) FundHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		account := escrow.Account(r.PathValue("account"))

		var request FundRequest
		if err := readJSON(r, &request); err != nil {
			writeError(w, err)
			return
		}

		if err := app.Fund(account, request.Amount); err != nil {
			writeError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, BalanceResponse{Account: account, Balance: app.Balance(account)})
	}
}

func HealthHandler() http.HandlerFunc {
	return func(writer http.ResponseWriter, _ *http.Request) {
		writer.WriteHeader(http.StatusOK)
	}
}

// StatusCode maps an operation error onto the HTTP status returned to callers.
func StatusCode(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, errMissingAccount):
		return http.StatusUnauthorized
	case errors.Is(err, errBadRequest),
		errors.Is(err, escrow.ErrValueMismatch),
		errors.Is(err, escrow.ErrInvalidTerm):
		return http.StatusBadRequest
	case errors.Is(err, escrow.ErrNotFound), errors.Is(err, ErrFaucetDisabled):
		return http.StatusNotFound
	case errors.Is(err, escrow.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, escrow.ErrAlreadyFinalized), errors.Is(err, storage.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, escrow.ErrTermNotEnded), errors.Is(err, escrow.ErrApprovalMissing):
		return http.StatusPreconditionFailed
	case errors.Is(err, custody.ErrInsufficientFunds):
		return http.StatusPaymentRequired
	default:
		return http.StatusInternalServerError
	}
}

func callerAccount(r *http.Request) (escrow.Account, error) {
	account := r.Header.Get(DefaultAccountHeader)
	if account == "" {
		return "", fmt.Errorf("%w: set the %v header", errMissingAccount, DefaultAccountHeader)
	}
	return escrow.Account(account), nil
}

func pathLeaseID(r *http.Request) (uint64, error) {
	leaseIDString := r.PathValue("id")
	leaseID, err := strconv.ParseUint(leaseIDString, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid lease id %q", errBadRequest, leaseIDString)
	}
	return leaseID, nil
}

func readJSON(r *http.Request, v any) error {
	decoder := json.NewDecoder(io.LimitReader(r.Body, DefaultMaxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(v); err != nil {
		return fmt.Errorf("%w: failed to unmarshal request body: %v", errBadRequest, err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Errorf("Failed to write response, %v", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := StatusCode(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		log.Errorf("%v", err)
		message = http.StatusText(status)
	}

	writeJSON(w, status, ErrorResponse{Error: message})
}
