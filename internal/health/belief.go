package health

// #region imports
import (
	"sync"
)

// #endregion

// #region belief-state

// Beliefs is the two-hypothesis posterior over the cause of disconnects.
// Advisory telemetry only: control logic never reads it.
type Beliefs struct {
	NetworkIssue  float64 `json:"network_issue"`
	PlatformIssue float64 `json:"platform_issue"`
}

// Likelihood maps a disconnect reason code to P(evidence|hypothesis).
type Likelihood map[int]float64

// unseen reason codes get a small non-zero likelihood so a single
// surprising code can never collapse a hypothesis irreversibly
const defaultLikelihood = 0.05

// DefaultNetworkLikelihood and DefaultPlatformLikelihood mirror the
// transport's wire-level disconnect codes: 408 timed out, 428 connection
// lost, 440 connection replaced, 401 logged out.
func DefaultNetworkLikelihood() Likelihood {
	return Likelihood{408: 0.7, 428: 0.8, 440: 0.1}
}

func DefaultPlatformLikelihood() Likelihood {
	return Likelihood{408: 0.3, 428: 0.2, 440: 0.9, 401: 1.0}
}

// #endregion

// #region updater

// BeliefUpdater performs one Bayesian step per disconnect event.
type BeliefUpdater struct {
	mu       sync.Mutex
	beliefs  Beliefs
	network  Likelihood
	platform Likelihood
}

// NewBeliefUpdater starts from a uniform prior.
func NewBeliefUpdater(network, platform Likelihood) *BeliefUpdater {
	if network == nil {
		network = DefaultNetworkLikelihood()
	}
	if platform == nil {
		platform = DefaultPlatformLikelihood()
	}
	return &BeliefUpdater{
		beliefs:  Beliefs{NetworkIssue: 0.5, PlatformIssue: 0.5},
		network:  network,
		platform: platform,
	}
}

// Update runs prior x likelihood, then normalizes. Reason code 0 means
// "no evidence" and is a no-op.
func (b *BeliefUpdater) Update(reason int) Beliefs {
	b.mu.Lock()
	defer b.mu.Unlock()

	if reason == 0 {
		return b.beliefs
	}

	pE1 := b.network[reason]
	if pE1 == 0 {
		pE1 = defaultLikelihood
	}
	pE2 := b.platform[reason]
	if pE2 == 0 {
		pE2 = defaultLikelihood
	}

	pE := pE1*b.beliefs.NetworkIssue + pE2*b.beliefs.PlatformIssue
	if pE == 0 {
		return b.beliefs
	}

	post1 := pE1 * b.beliefs.NetworkIssue / pE
	post2 := pE2 * b.beliefs.PlatformIssue / pE
	norm := post1 + post2
	b.beliefs = Beliefs{NetworkIssue: post1 / norm, PlatformIssue: post2 / norm}
	return b.beliefs
}

// Current returns the posterior for logging and the operator console.
func (b *BeliefUpdater) Current() Beliefs {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.beliefs
}

// #endregion
