// Package policy implements the SuspicionSource collaborator: a
// scoring/rate-limiting tracker generalized from "ban an IP" to "flag a
// uid suspicious with a penalty factor".
package policy

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/tos-network/subtensor-validator/internal/config"
	"github.com/tos-network/subtensor-validator/internal/util"
)

// uidScore tracks one uid's accumulated suspicion score.
type uidScore struct {
	mu            sync.Mutex
	score         int32
	lastReset     int64
	suspicious    int32 // atomic flag, 1 = suspicious
	penaltyFactor float64
}

// SuspicionTracker implements SuspicionSource: it accumulates per-uid
// suspicion cost and exposes a penalty factor once a uid crosses the
// configured threshold.
type SuspicionTracker struct {
	cfg config.SuspicionConfig

	mu     sync.RWMutex
	scores map[uint16]*uidScore

	manual    sync.RWMutex
	blacklist map[uint16]float64 // uid -> forced penalty factor, e.g. from an external anomaly service
}

// NewSuspicionTracker builds a tracker from configuration.
func NewSuspicionTracker(cfg config.SuspicionConfig) *SuspicionTracker {
	return &SuspicionTracker{
		cfg:       cfg,
		scores:    make(map[uint16]*uidScore),
		blacklist: make(map[uint16]float64),
	}
}

func (t *SuspicionTracker) getScore(uid uint16) *uidScore {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.scores[uid]
	if !ok {
		s = &uidScore{lastReset: time.Now().Unix()}
		t.scores[uid] = s
	}
	return s
}

// AddCost adds a suspicion cost to a uid, e.g. for an observed IP
// conflict or a failed challenge, and returns the uid's updated
// suspicious flag.
func (t *SuspicionTracker) AddCost(uid uint16, cost int32) bool {
	if !t.cfg.Enabled {
		return false
	}

	s := t.getScore(uid)
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().Unix()
	if now-s.lastReset >= int64(t.cfg.ScoreResetTime.Seconds()) {
		s.score = 0
		atomic.StoreInt32(&s.suspicious, 0)
		s.lastReset = now
	}

	s.score += cost
	if s.score >= t.cfg.MaxScore {
		atomic.StoreInt32(&s.suspicious, 1)
		s.penaltyFactor = t.cfg.MinPenaltyFactor
		util.Warnf("policy: uid %d flagged suspicious, score %d >= %d", uid, s.score, t.cfg.MaxScore)
	}

	return atomic.LoadInt32(&s.suspicious) > 0
}

// FlagExternal records a penalty factor supplied by an external
// anomaly/monitoring service, overriding the score-derived value. This
// is the adapter seam for a separate anomaly service, which the
// component design treats as an out-of-process collaborator.
func (t *SuspicionTracker) FlagExternal(uid uint16, penaltyFactor float64) {
	t.manual.Lock()
	defer t.manual.Unlock()
	t.blacklist[uid] = penaltyFactor

	s := t.getScore(uid)
	s.mu.Lock()
	atomic.StoreInt32(&s.suspicious, 1)
	s.penaltyFactor = penaltyFactor
	s.mu.Unlock()
}

// IsSuspicious reports whether uid is currently flagged, and its
// penalty factor. A missing penalty factor is reported as 0, matching
// the scoring engine's documented treatment of a flagged-but-unscored
// miner.
func (t *SuspicionTracker) IsSuspicious(uid uint16) (bool, float64) {
	t.manual.RLock()
	if pf, ok := t.blacklist[uid]; ok {
		t.manual.RUnlock()
		return true, pf
	}
	t.manual.RUnlock()

	t.mu.RLock()
	s, ok := t.scores[uid]
	t.mu.RUnlock()
	if !ok {
		return false, 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if atomic.LoadInt32(&s.suspicious) == 0 {
		return false, 0
	}
	return true, s.penaltyFactor
}

// Clear removes a uid's tracked state entirely, used when a uid is
// deregistered from the subnet.
func (t *SuspicionTracker) Clear(uid uint16) {
	t.mu.Lock()
	delete(t.scores, uid)
	t.mu.Unlock()

	t.manual.Lock()
	delete(t.blacklist, uid)
	t.manual.Unlock()
}
