// Package scanx defines the risk verdict collaborator consulted between
// decompiling and patching. Scoring engines plug in behind the Scanner
// interface; the pipeline only consumes the verdict.
package scanx

import (
	"context"

	"github.com/jamesainslie/purify/pkg/purify/analyze"
	"github.com/jamesainslie/purify/pkg/purify/patterns"
	"github.com/jamesainslie/purify/pkg/purify/types"
)

// Scanner produces a risk verdict for a decompiled tree.
type Scanner interface {
	Scan(ctx context.Context, projectDir string) (types.RiskLevel, error)
}

// Func adapts a plain function to the Scanner interface.
type Func func(ctx context.Context, projectDir string) (types.RiskLevel, error)

// Scan implements Scanner.
func (f Func) Scan(ctx context.Context, projectDir string) (types.RiskLevel, error) {
	return f(ctx, projectDir)
}

// Static returns a scanner that always reports the given level. Useful
// as a default and in tests.
func Static(level types.RiskLevel) Scanner {
	return Func(func(context.Context, string) (types.RiskLevel, error) {
		return level, nil
	})
}

// Footprint thresholds on the number of ad-library code units.
const (
	footprintMedium = 1
	footprintHigh   = 20
)

// Footprint returns a scanner that grades a decompiled tree by how much
// ad-library code it contains. It never reports CRITICAL; that level is
// reserved for scoring engines with real threat knowledge.
func Footprint(pats *patterns.Set) Scanner {
	return Func(func(ctx context.Context, projectDir string) (types.RiskLevel, error) {
		analysis, err := analyze.AnalyzeTree(projectDir, pats)
		if err != nil {
			return types.RiskLow, err
		}
		n := len(analysis.AdRelatedFiles)
		switch {
		case n >= footprintHigh:
			return types.RiskHigh, nil
		case n >= footprintMedium:
			return types.RiskMedium, nil
		default:
			return types.RiskLow, nil
		}
	})
}
