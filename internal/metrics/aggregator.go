package metrics

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"rwaScope/internal/model"
	"rwaScope/internal/storage"
)

// reported when no operation carries both timestamps yet
const placeholderConfirmationTime = 30 * time.Second

const defaultGasThreshold = 500_000

// Aggregator recomputes health metrics on demand from the authoritative
// store. Nothing is cached here; callers that need caching layer it on.
type Aggregator struct {
	store        storage.Store
	gasThreshold uint64
	now          func() time.Time
}

func NewAggregator(store storage.Store, gasThreshold uint64) *Aggregator {
	if gasThreshold == 0 {
		gasThreshold = defaultGasThreshold
	}
	return &Aggregator{store: store, gasThreshold: gasThreshold, now: time.Now}
}

// ComputeNetwork builds the metrics view for one network.
func (a *Aggregator) ComputeNetwork(ctx context.Context, network string) (model.NetworkMetrics, error) {
	out := model.NetworkMetrics{Network: network, ComputedAt: a.now().UTC()}

	ops, err := a.store.ListOperations(ctx, network)
	if err != nil {
		return out, fmt.Errorf("list operations for %s: %w", network, err)
	}

	confirmed, underThreshold := 0, 0
	var confirmationTotal time.Duration
	timedConfirmations := 0
	investors := make(map[string]struct{})
	for _, op := range ops {
		// per-type totals report completed work, so only confirmed
		// operations count
		if op.Status == model.OpConfirmed {
			switch op.Type {
			case model.OpDeployment:
				out.TotalDeployments++
			case model.OpBridgeTransfer:
				out.TotalBridgeTransfers++
			case model.OpIdentityVerification:
				out.IdentityVerifications++
			case model.OpAgentOperation:
				out.AgentOperations++
			}
			confirmed++
			if op.GasUsed < a.gasThreshold {
				underThreshold++
			}
			if op.ConfirmedAt != nil && !op.RecordedAt.IsZero() {
				confirmationTotal += op.ConfirmedAt.Sub(op.RecordedAt)
				timedConfirmations++
			}
		}
		out.TotalGasUsed += op.GasUsed
		for _, addr := range []string{op.From, op.To, op.UserAddress} {
			if addr != "" {
				investors[strings.ToLower(addr)] = struct{}{}
			}
		}
	}

	// no operations means nothing has failed
	out.SuccessRate = 100
	if resolved := resolvedCount(ops); resolved > 0 {
		out.SuccessRate = float64(confirmed) / float64(resolved) * 100
	}
	out.GasEfficiency = 100
	if confirmed > 0 {
		out.GasEfficiency = float64(underThreshold) / float64(confirmed) * 100
	}
	out.AvgConfirmationTime = placeholderConfirmationTime
	if timedConfirmations > 0 {
		out.AvgConfirmationTime = confirmationTotal / time.Duration(timedConfirmations)
	}

	out.ActiveInvestors = len(investors)
	if out.ActiveInvestors == 0 {
		chainInvestors, err := a.store.ActiveInvestors(ctx, network)
		if err != nil {
			return out, fmt.Errorf("count investors for %s: %w", network, err)
		}
		out.ActiveInvestors = chainInvestors
	}

	_, transfers, err := a.store.QueryTransfers(ctx, storage.TransferFilter{Network: network, Limit: 1})
	if err != nil {
		return out, fmt.Errorf("count transfers for %s: %w", network, err)
	}
	out.TotalTransfers = transfers

	violations, err := a.store.CountViolations(ctx, network)
	if err != nil {
		return out, fmt.Errorf("count violations for %s: %w", network, err)
	}
	out.ComplianceViolations = violations

	reorgs, err := a.store.CountReorgs(ctx, network)
	if err != nil {
		return out, fmt.Errorf("count reorgs for %s: %w", network, err)
	}
	out.ReorgCount = reorgs

	return out, nil
}

func resolvedCount(ops []model.TrackedOperation) int {
	resolved := 0
	for _, op := range ops {
		if op.Status == model.OpConfirmed || op.Status == model.OpFailed {
			resolved++
		}
	}
	return resolved
}

// ComputeGlobal folds per-network reports into one platform view. A
// network reported more than once counts once; the first report wins.
func ComputeGlobal(reports []model.NetworkMetrics) model.GlobalMetrics {
	var out model.GlobalMetrics
	seen := make(map[string]struct{})
	for _, report := range reports {
		if _, ok := seen[report.Network]; ok {
			continue
		}
		seen[report.Network] = struct{}{}
		out.TotalDeployments += report.TotalDeployments
		out.TotalTransfers += report.TotalTransfers
		out.TotalGasUsed += report.TotalGasUsed
		out.ComplianceViolations += report.ComplianceViolations
		out.ActiveNetworks = append(out.ActiveNetworks, report.Network)
	}
	sort.Strings(out.ActiveNetworks)
	return out
}
