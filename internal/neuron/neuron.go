// Package neuron holds the round-local data model shared by the
// challenge, scoring, and smoothing stages: the per-miner snapshot and
// the immutable challenge tuple each round is built from.
package neuron

// Miner is the round-local snapshot of one neuron under evaluation.
// A fresh snapshot is built at the start of every round from the chain
// probe's metagraph view; the fields after UID/Hotkey/IP/Port are filled
// in as the round's stages run.
type Miner struct {
	UID    uint16
	Hotkey string
	IP     string
	Port   uint16

	Country   string
	Subregion string

	// Stage A (reachability) outcome.
	Reachable    bool
	RoutingTime  float64 // milliseconds, EMA-smoothed; -1 means "no prior sample"
	ProbeReason  string  // populated only on failure

	// Stage B (RPC replay) outcome. Per the adopted Stage-A-failure-is-final
	// policy, these are not written whenever Reachable is false:
	// Verified/Sync/RPCReason stay at zero value and ProcessTime keeps
	// its prior value.
	Verified    bool
	Sync        bool
	ProcessTime float64 // milliseconds, EMA-smoothed; -1 means "no prior sample"
	RPCReason   string  // populated only when Verified is false

	HasIPConflicts  bool
	IPOccurrences   int
	ChallengeAttempts  int
	ChallengeSuccesses int

	// Suspicion, set by the SuspicionSource before scoring.
	Suspicious    bool
	PenaltyFactor float64

	// Sub-scores, filled in by the scoring engine.
	AvailabilityScore float64
	ReliabilityScore  float64
	LatencyScore      float64
	PerformanceScore  float64
	DistributionScore float64
	FinalScore        float64

	Version uint32
}

// NoPriorSample is the sentinel EMA value meaning "no measurement has
// ever been recorded for this miner" — the next sample is stored
// verbatim rather than averaged in.
const NoPriorSample = -1.0

// UpdateTiming applies the round's EMA rule to a timing field: store the
// sample verbatim when there is no prior measurement, otherwise average
// the previous value with the new sample. This is the corrected
// semantics: the sentinel check gates "store", not "average".
func UpdateTiming(prev, sample float64) float64 {
	if prev == NoPriorSample {
		return sample
	}
	return (prev + sample) / 2
}

// Challenge is the immutable per-round verification tuple: a historical
// (subnet, neuron, property) triple drawn from the validator's own
// trusted chain view, replayed against every selected miner.
type Challenge struct {
	RoundID uint64
	Block   uint64

	SubnetUID     uint16
	NeuronUID     uint16
	PropertyName  string
	ExpectedValue Property

	SelectedUIDs []uint16
}

// AxonInfo is the subset of on-chain axon metadata a neuron carries.
type AxonInfo struct {
	IP        string `json:"ip"`
	Port      uint16 `json:"port"`
	IsServing bool   `json:"is_serving"`
}

// NeuronLite is the chain-reported metagraph record for one neuron, as
// returned by ChainProbe.NeuronsLite/NeuronForUidLite. Stake,
// ValidatorTrust and Dividends are only meaningful for a neuron that is
// not currently serving (a validator-mode neuron).
type NeuronLite struct {
	UID        uint16   `json:"uid"`
	Hotkey     string   `json:"hotkey"`
	Coldkey    string   `json:"coldkey"`
	Rank       float64  `json:"rank"`
	Emission   float64  `json:"emission"`
	Incentive  float64  `json:"incentive"`
	Consensus  float64  `json:"consensus"`
	Trust      float64  `json:"trust"`
	LastUpdate uint64   `json:"last_update"`
	Axon       AxonInfo `json:"axon_info"`

	Stake          float64 `json:"stake"`
	ValidatorTrust float64 `json:"validator_trust"`
	Dividends      float64 `json:"dividends"`
}

// PropertyKind tags which variant of Value a Property holds, since a
// bare interface{} comparison would not distinguish a zero value from
// an absent property.
type PropertyKind int

const (
	PropertyString PropertyKind = iota
	PropertyUint64
	PropertyFloat64
	PropertyAxon
)

// Property is a typed, ordinal-tagged accessor for the fixed set of
// miner/validator properties exchanged during a challenge, replacing a
// dynamic string-keyed lookup with a checked variant type.
type Property struct {
	Kind PropertyKind
	Str  string
	U64  uint64
	F64  float64
	Axon AxonInfo
}

// Equal reports whether two properties carry the same kind and value.
func (p Property) Equal(o Property) bool {
	if p.Kind != o.Kind {
		return false
	}
	switch p.Kind {
	case PropertyString:
		return p.Str == o.Str
	case PropertyUint64:
		return p.U64 == o.U64
	case PropertyFloat64:
		return p.F64 == o.F64
	case PropertyAxon:
		return p.Axon == o.Axon
	default:
		return false
	}
}

// MinerProperties is the ordered list of properties chosen from when the
// selected neuron's axon is currently serving.
var MinerProperties = []string{
	"hotkey", "coldkey", "rank", "emission", "incentive", "consensus", "trust", "last_update", "axon_info",
}

// ValidatorProperties is the ordered list of properties chosen from when
// the selected neuron is a validator (its axon is not serving).
var ValidatorProperties = []string{
	"hotkey", "coldkey", "stake", "rank", "emission", "validator_trust", "dividends", "last_update", "axon_info",
}

// Property returns the named field's typed value. An unrecognized name
// returns the zero Property, which compares unequal to every populated
// property since its Kind (PropertyString) pairs with an empty Str that
// only coincidentally matches another empty string — callers only ever
// pass names drawn from MinerProperties/ValidatorProperties.
func (n NeuronLite) Property(name string) Property {
	switch name {
	case "hotkey":
		return Property{Kind: PropertyString, Str: n.Hotkey}
	case "coldkey":
		return Property{Kind: PropertyString, Str: n.Coldkey}
	case "rank":
		return Property{Kind: PropertyFloat64, F64: n.Rank}
	case "emission":
		return Property{Kind: PropertyFloat64, F64: n.Emission}
	case "incentive":
		return Property{Kind: PropertyFloat64, F64: n.Incentive}
	case "consensus":
		return Property{Kind: PropertyFloat64, F64: n.Consensus}
	case "trust":
		return Property{Kind: PropertyFloat64, F64: n.Trust}
	case "last_update":
		return Property{Kind: PropertyUint64, U64: n.LastUpdate}
	case "axon_info":
		return Property{Kind: PropertyAxon, Axon: n.Axon}
	case "stake":
		return Property{Kind: PropertyFloat64, F64: n.Stake}
	case "validator_trust":
		return Property{Kind: PropertyFloat64, F64: n.ValidatorTrust}
	case "dividends":
		return Property{Kind: PropertyFloat64, F64: n.Dividends}
	default:
		return Property{}
	}
}

// NewMiner builds a fresh round-local snapshot from a chain-reported
// neuron record, seeding the timing fields to "no prior sample".
func NewMiner(n *NeuronLite) *Miner {
	return &Miner{
		UID:         n.UID,
		Hotkey:      n.Hotkey,
		IP:          n.Axon.IP,
		Port:        n.Axon.Port,
		RoutingTime: NoPriorSample,
		ProcessTime: NoPriorSample,
	}
}
