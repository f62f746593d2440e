package controller

import (
	"net/http"

	"github.com/canopy-network/canopyx-points/pkg/ledger"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
)

// AverageResponse is the body of /accounts/{id}/average.
type AverageResponse struct {
	AccountID string          `json:"accountId"`
	From      int64           `json:"from"`
	To        int64           `json:"to"`
	Average   decimal.Decimal `json:"average"`
}

// CumulativeResponse is the body of /accounts/{id}/cumulative.
type CumulativeResponse struct {
	AccountID                string          `json:"accountId"`
	At                       int64           `json:"at"`
	CumulativeBalanceSeconds decimal.Decimal `json:"cumulativeBalanceSeconds"`
}

// HandleAccount returns the running state of one account, 404 when it has never been observed.
func (c *Controller) HandleAccount(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	acc, err := c.App.Ledger.Account(r.Context(), id)
	if err != nil {
		c.writeLedgerError(w, r, err)
		return
	}
	if acc == nil {
		writeError(w, http.StatusNotFound, "account not found")
		return
	}

	writeJSON(w, http.StatusOK, acc)
}

// HandleSnapshots returns an account's snapshots ordered by sequence.
// Query parameters:
//   - cursor: sequence to start after (exclusive)
//   - limit: max number of results (default/max defined in parsePageSpec)
func (c *Controller) HandleSnapshots(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	page, err := parsePageSpec(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// Query with limit+1 to detect if there are more pages
	rows, err := c.App.Ledger.Snapshots(r.Context(), id, page.Cursor, page.Limit+1)
	if err != nil {
		c.writeLedgerError(w, r, err)
		return
	}

	nextCursor := (*uint64)(nil)
	if len(rows) > page.Limit {
		rows = rows[:page.Limit]
		cursor := rows[len(rows)-1].Sequence
		nextCursor = &cursor
	}
	if rows == nil {
		rows = []ledger.Snapshot{}
	}

	writeJSON(w, http.StatusOK, pagedResponse[ledger.Snapshot]{
		Data:       rows,
		Limit:      page.Limit,
		NextCursor: nextCursor,
	})
}

// HandleAverage returns the time-weighted average balance over [from, to].
func (c *Controller) HandleAverage(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	from, err := parseUnix(r, "from")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	to, err := parseUnix(r, "to")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	avg, err := c.App.Ledger.AverageBalance(r.Context(), id, from, to)
	if err != nil {
		c.writeLedgerError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, AverageResponse{AccountID: id, From: from, To: to, Average: avg})
}

// HandleCumulative returns the estimated balance-seconds of an account at a time.
func (c *Controller) HandleCumulative(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	at, err := parseUnix(r, "at")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	cum, err := c.App.Ledger.CumulativeAtTime(r.Context(), id, at)
	if err != nil {
		c.writeLedgerError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, CumulativeResponse{AccountID: id, At: at, CumulativeBalanceSeconds: cum})
}
