package detector

import (
	"errors"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/aknirmal90/liquidations-v2-sub000/projector"
)

// Candidate is one precomputed liquidation opportunity for a user: the
// collateral/debt asset pair to liquidate, the debt to cover, and the
// expected profit. The rows are computed externally into a fast-lookup
// table; the detector only reads them.
type Candidate struct {
	CollateralAsset common.Address
	DebtAsset       common.Address
	DebtToCover     *big.Int
	Profit          *big.Int
}

// CandidatesFunc looks up the precomputed candidate rows for a user.
type CandidatesFunc func(user common.Address) []Candidate

// Detection is one emitted liquidation candidate record: one per
// (user, candidate) pair, tagged with the assets whose predicted prices
// produced it. Records are append-only: the same opportunity observed
// across consecutive pending transmissions yields one record per
// observation, and downstream consumers own deduplication.
type Detection struct {
	User                  common.Address
	Source                common.Address
	TransmissionHash      common.Hash
	CollateralAsset       common.Address
	DebtAsset             common.Address
	DebtToCover           string
	Profit                string
	CurrentHealthFactor   string
	PredictedHealthFactor string
	EffectiveCollateral   string
	EffectiveDebt         string
	UpdatedAssets         []common.Address
	DetectedAt            time.Time
}

// EmitFunc receives each detection as it is recorded. Emission happens
// outside the detector's lock so a slow sink cannot stall recording.
type EmitFunc func(Detection)

type Detector struct {
	candidates CandidatesFunc
	emit       EmitFunc
	now        func() time.Time

	mu         sync.Mutex
	detections []Detection
}

func NewDetector(candidates CandidatesFunc, emit EmitFunc) (*Detector, error) {
	if candidates == nil {
		return nil, errors.New("candidates function is required")
	}
	if emit == nil {
		return nil, errors.New("emit function is required")
	}
	return &Detector{candidates: candidates, emit: emit, now: time.Now}, nil
}

// Record converts the projector's at-risk users into detections: one per
// (user, candidate) pair from the precomputed table, each stamped with the
// observation that produced it and the updated-asset tag. A user the table
// has no rows for yet still yields one bare record, so the health-factor
// crossing is never silently lost.
func (d *Detector) Record(source common.Address, txHash common.Hash, updatedAssets []common.Address, users []projector.AtRiskUser) []Detection {
	if len(users) == 0 {
		return nil
	}

	tagged := make([]common.Address, len(updatedAssets))
	copy(tagged, updatedAssets)

	now := d.now()
	out := make([]Detection, 0, len(users))
	for _, u := range users {
		base := Detection{
			User:                  u.User,
			Source:                source,
			TransmissionHash:      txHash,
			CurrentHealthFactor:   u.CurrentHealthFactor.String(),
			PredictedHealthFactor: u.PredictedHealthFactor.String(),
			EffectiveCollateral:   u.EffectiveCollateral.String(),
			EffectiveDebt:         u.EffectiveDebt.String(),
			UpdatedAssets:         tagged,
			DetectedAt:            now,
		}

		candidates := d.candidates(u.User)
		if len(candidates) == 0 {
			out = append(out, base)
			continue
		}
		for _, c := range candidates {
			det := base
			det.CollateralAsset = c.CollateralAsset
			det.DebtAsset = c.DebtAsset
			det.DebtToCover = bigString(c.DebtToCover)
			det.Profit = bigString(c.Profit)
			out = append(out, det)
		}
	}

	d.mu.Lock()
	d.detections = append(d.detections, out...)
	d.mu.Unlock()

	for _, det := range out {
		d.emit(det)
	}
	return out
}

// Detections returns a copy of every record made so far, oldest first.
func (d *Detector) Detections() []Detection {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Detection, len(d.detections))
	copy(out, d.detections)
	return out
}

func (d *Detector) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.detections)
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
