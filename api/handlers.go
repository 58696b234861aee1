package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/xraph/ballot"
	"github.com/xraph/ballot/fee"
	"github.com/xraph/ballot/project"
	"github.com/xraph/ballot/types"
	"github.com/xraph/ballot/voter"
)

// maxPageSize caps list endpoints.
const maxPageSize = 500

// RegisterProjectRequest is the body of POST /projects.
type RegisterProjectRequest struct {
	Name string `json:"name"`
}

// UpdateFeeRequest is the body of PUT /fees. Amount is in major units
// ("2.5") unless BaseUnits is set, in which case it is an integer count of
// the token's smallest unit.
type UpdateFeeRequest struct {
	Amount    string `json:"amount"`
	BaseUnits bool   `json:"base_units,omitempty"`
}

// FeeView describes the current fee and the collected balance.
type FeeView struct {
	TokenFeeAmount types.Amount  `json:"token_fee_amount"`
	TokenFee       string        `json:"token_fee"`
	Collected      types.Amount  `json:"collected"`
	Owner          types.Address `json:"owner"`
	SystemAccount  types.Address `json:"system_account"`
	Unit           types.Unit    `json:"unit"`
}

// CountView wraps a count.
type CountView struct {
	Count uint64 `json:"count"`
}

// HasVotedView answers whether a voter voted on a project.
type HasVotedView struct {
	Voter     types.Address `json:"voter"`
	ProjectID uint64        `json:"project_id"`
	Voted     bool          `json:"voted"`
}

func (s *Server) health(c *gin.Context) {
	if err := s.engine.Store().Ping(c.Request.Context()); err != nil {
		fail(c, fmt.Errorf("%w: %v", ballot.ErrStoreNotReady, err))
		return
	}
	respond(c, http.StatusOK, gin.H{"status": "ok"})
}

// ──────────────────────────────────────────────────
// Projects
// ──────────────────────────────────────────────────

func (s *Server) registerProject(c *gin.Context) {
	var req RegisterProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, ballot.ValidationError{Field: "body", Message: err.Error()})
		return
	}
	p, err := s.engine.RegisterProject(c.Request.Context(), req.Name)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusCreated, p)
}

func (s *Server) listProjects(c *gin.Context) {
	limit, offset, err := page(c)
	if err != nil {
		fail(c, err)
		return
	}
	ps, err := s.engine.ListProjects(c.Request.Context(), project.ListOpts{Limit: limit, Offset: offset})
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, ps)
}

func (s *Server) projectCount(c *gin.Context) {
	n, err := s.engine.ProjectCount(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, CountView{Count: n})
}

func (s *Server) projectDetails(c *gin.Context) {
	projectID, err := projectParam(c)
	if err != nil {
		fail(c, err)
		return
	}
	p, err := s.engine.ProjectDetails(c.Request.Context(), projectID)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, p)
}

// ──────────────────────────────────────────────────
// Voting
// ──────────────────────────────────────────────────

func (s *Server) castVote(c *gin.Context) {
	projectID, err := projectParam(c)
	if err != nil {
		fail(c, err)
		return
	}
	v, err := s.engine.CastVote(c.Request.Context(), projectID)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusCreated, v)
}

func (s *Server) voterDetails(c *gin.Context) {
	snap, err := s.engine.VoterDetails(c.Request.Context(), addressParam(c))
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, snap)
}

func (s *Server) listVotes(c *gin.Context) {
	limit, offset, err := page(c)
	if err != nil {
		fail(c, err)
		return
	}
	votes, err := s.engine.ListVotes(c.Request.Context(), addressParam(c), voter.ListOpts{Limit: limit, Offset: offset})
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, votes)
}

func (s *Server) hasVoted(c *gin.Context) {
	projectID, err := projectParam(c)
	if err != nil {
		fail(c, err)
		return
	}
	addr := addressParam(c)
	voted, err := s.engine.HasVoted(c.Request.Context(), addr, projectID)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, HasVotedView{Voter: addr, ProjectID: projectID, Voted: voted})
}

// ──────────────────────────────────────────────────
// Fees
// ──────────────────────────────────────────────────

func (s *Server) feeDetails(c *gin.Context) {
	ctx := c.Request.Context()
	amount, err := s.engine.TokenFeeAmount(ctx)
	if err != nil {
		fail(c, err)
		return
	}
	collected, err := s.engine.CollectedFees(ctx)
	if err != nil {
		fail(c, err)
		return
	}
	unit := s.engine.Unit()
	respond(c, http.StatusOK, FeeView{
		TokenFeeAmount: amount,
		TokenFee:       unit.Format(amount),
		Collected:      collected,
		Owner:          s.engine.Owner(),
		SystemAccount:  s.engine.SystemAccount(),
		Unit:           unit,
	})
}

func (s *Server) updateFee(c *gin.Context) {
	var req UpdateFeeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, ballot.ValidationError{Field: "body", Message: err.Error()})
		return
	}

	var (
		amount types.Amount
		err    error
	)
	if req.BaseUnits {
		amount, err = types.ParseAmount(req.Amount)
	} else {
		amount, err = s.engine.Unit().Parse(req.Amount)
	}
	if err != nil {
		fail(c, err)
		return
	}

	change, err := s.engine.UpdateTokenFees(c.Request.Context(), amount)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, change)
}

func (s *Server) withdrawFees(c *gin.Context) {
	w, err := s.engine.WithdrawFees(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, w)
}

func (s *Server) listFeeChanges(c *gin.Context) {
	limit, offset, err := page(c)
	if err != nil {
		fail(c, err)
		return
	}
	changes, err := s.engine.ListFeeChanges(c.Request.Context(), fee.ListOpts{Limit: limit, Offset: offset})
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, changes)
}

func (s *Server) listWithdrawals(c *gin.Context) {
	limit, offset, err := page(c)
	if err != nil {
		fail(c, err)
		return
	}
	ws, err := s.engine.ListWithdrawals(c.Request.Context(), fee.ListOpts{Limit: limit, Offset: offset})
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, ws)
}

// ──────────────────────────────────────────────────
// Parameters
// ──────────────────────────────────────────────────

func projectParam(c *gin.Context) (uint64, error) {
	raw := c.Param("id")
	projectID, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, ballot.ValidationError{Field: "id", Message: fmt.Sprintf("%q is not a project id", raw)}
	}
	return projectID, nil
}

func addressParam(c *gin.Context) types.Address {
	return types.NormalizeAddress(c.Param("address"))
}

func page(c *gin.Context) (limit, offset int, err error) {
	if limit, err = intQuery(c, "limit"); err != nil {
		return 0, 0, err
	}
	if offset, err = intQuery(c, "offset"); err != nil {
		return 0, 0, err
	}
	if limit == 0 || limit > maxPageSize {
		limit = maxPageSize
	}
	return limit, offset, nil
}

func intQuery(c *gin.Context, key string) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, ballot.ValidationError{Field: key, Message: fmt.Sprintf("%q is not a non-negative integer", raw)}
	}
	return n, nil
}
