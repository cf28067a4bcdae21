package credits

import (
	"context"
	"strings"

	"go.uber.org/zap"

	domain "github.com/bryanwahyu/footprint/internal/domain/credits"
	"github.com/bryanwahyu/footprint/internal/domain/scans"
	"github.com/bryanwahyu/footprint/internal/logging"
)

// MaxGrant caps a single manual grant.
const MaxGrant = 100000

type Service struct {
	Ledger domain.Ledger
	Log    *zap.Logger
}

func NewService(l domain.Ledger, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{Ledger: l, Log: log}
}

// BalanceView is the response of GET /credits.
type BalanceView struct {
	WorkspaceID string `json:"workspace_id"`
	Balance     int    `json:"balance"`
}

func (s *Service) Balance(ctx context.Context, workspace string) (BalanceView, error) {
	b, err := s.Ledger.Balance(ctx, workspace)
	if err != nil {
		return BalanceView{}, err
	}
	return BalanceView{WorkspaceID: workspace, Balance: b}, nil
}

func (s *Service) Entries(ctx context.Context, workspace string, limit int) ([]domain.Entry, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	return s.Ledger.Entries(ctx, workspace, limit)
}

// Grant credits a workspace. Only positive amounts are accepted; debits go
// through Spend.
func (s *Service) Grant(ctx context.Context, workspace string, amount int, reason string) (domain.Entry, error) {
	if amount <= 0 || amount > MaxGrant {
		return domain.Entry{}, scans.Invalid(scans.CodeInvalidRequest, "amount must be between 1 and %d", MaxGrant)
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = domain.ReasonGrant
	}
	e, err := s.Ledger.Grant(ctx, workspace, amount, reason, "")
	if err != nil {
		return domain.Entry{}, err
	}
	s.Log.Info("credits granted", logging.Workspace(workspace), zap.Int("amount", amount), zap.String("reason", reason))
	return e, nil
}
